package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"tunebridge/internal/cliptune"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Generator is the narrow interface over the remote generation service so
// the proxy workflow is testable without network calls.
type Generator interface {
	RequestUploadTicket(ctx context.Context) (cliptune.Ticket, error)
	Upload(ctx context.Context, putURL, contentType string, body io.Reader) error
	Generate(ctx context.Context, params cliptune.GenerateParams) (json.RawMessage, error)
}

// handleProcessVideo runs the two-phase upload-and-generate proxy workflow:
// obtain a write ticket, stream the uploaded video to it, submit the
// generation job, relay the remote response verbatim. Each step is a hard
// dependency on the previous one; any failure short-circuits. The chain is
// detached from request cancellation: a client disconnect does not abort an
// in-flight upload or generation job.
func (s *Server) handleProcessVideo(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("video")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "No video uploaded."})
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}

	ctx := context.WithoutCancel(r.Context())

	ticket, err := s.generator.RequestUploadTicket(ctx)
	if err != nil {
		s.respondGenerationError(w, r, err)
		return
	}

	if err := s.generator.Upload(ctx, ticket.PutURL, contentType, file); err != nil {
		s.respondGenerationError(w, r, err)
		return
	}

	params := cliptune.GenerateParams{
		Instrumental:     formValueOr(r, "instrumental", "true"),
		SongTitle:        formValueOr(r, "song_title", "test_clip"),
		VideoDuration:    formValueOr(r, "video_duration", "30"),
		VideoURL:         ticket.GCSURI,
		YouTubeURLs:      normalizeYouTubeURLs(r.FormValue("youtubeUrls")),
		ExtraDescription: r.FormValue("extra_description"),
		Lyrics:           r.FormValue("lyrics"),
	}

	result, err := s.generator.Generate(ctx, params)
	if err != nil {
		s.respondGenerationError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result)
}

func (s *Server) respondGenerationError(w http.ResponseWriter, r *http.Request, err error) {
	logrus.WithFields(logrus.Fields{
		"request_id": middleware.GetReqID(r.Context()),
	}).WithError(err).Error("generation failed")

	var details any = err.Error()
	var remoteErr *cliptune.RemoteError
	if errors.As(err, &remoteErr) {
		details = remoteErr.Details()
	}
	respondJSON(w, http.StatusInternalServerError, map[string]any{
		"error":   "Music generation failed",
		"details": details,
	})
}

func formValueOr(r *http.Request, key, def string) string {
	if v := r.FormValue(key); v != "" {
		return v
	}
	return def
}

// normalizeYouTubeURLs re-encodes the submitted JSON array string; anything
// unparseable falls back to an empty list.
func normalizeYouTubeURLs(raw string) string {
	if raw == "" {
		return "[]"
	}
	var parsed []any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil || parsed == nil {
		return "[]"
	}
	encoded, err := json.Marshal(parsed)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}
