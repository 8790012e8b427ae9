package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tunebridge/internal/billing"
	"tunebridge/internal/cliptune"
	"tunebridge/internal/config"
	"tunebridge/internal/db"
	"tunebridge/internal/email"
	httpapi "tunebridge/internal/http"
	"tunebridge/internal/identity"
	"tunebridge/internal/services"
	"tunebridge/internal/store"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			logrus.WithError(err).Warn("load .env failed")
		}
	} else if err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("stat .env failed")
	}

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logrus.WithError(err).Fatal("migrations failed")
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logrus.WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	accounts := store.NewPostgres(pool)
	stripeClient := billing.NewStripeClient(cfg.StripeSecretKey)
	mailer := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.EmailUser, cfg.EmailPass, cfg.EmailFromName, cfg.VerifyEmailBaseURL)
	verifier, err := identity.NewGoogleVerifier(ctx, cfg.GoogleIssuerURL, cfg.GoogleClientID)
	if err != nil {
		logrus.WithError(err).Warn("google verifier unavailable, google login disabled")
	}
	generator := cliptune.New(cfg.ClipTuneAPIURL, cfg.ClipTuneGenerateTimeout)

	svc := services.New(accounts, stripeClient, mailer, verifierOrNoop(verifier), cfg)
	server := httpapi.NewServer(svc, generator, cfg)

	httpServer := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: server.Routes(),
	}

	go func() {
		logrus.WithField("addr", cfg.ServerAddr).Info("server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("server shutdown error")
	}
}

func verifierOrNoop(v *identity.GoogleVerifier) services.TokenVerifier {
	if v != nil {
		return v
	}
	return identity.Unavailable{}
}
