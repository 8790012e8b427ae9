package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/customer"
	"github.com/stripe/stripe-go/v76/paymentintent"
)

var ErrNotConfigured = errors.New("stripe not configured")

// StripeClient adapts the Stripe SDK to the narrow surface the services
// layer needs: customers, payment intents and saved payment methods.
type StripeClient struct {
	configured bool
}

func NewStripeClient(secretKey string) *StripeClient {
	if secretKey != "" {
		stripe.Key = secretKey
	}
	return &StripeClient{configured: secretKey != ""}
}

func (c *StripeClient) CreateCustomer(ctx context.Context, email string) (string, error) {
	if !c.configured {
		return "", ErrNotConfigured
	}
	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	cust, err := customer.New(params)
	if err != nil {
		return "", wrapStripeErr(err)
	}
	return cust.ID, nil
}

func (c *StripeClient) CreatePaymentIntent(ctx context.Context, amountCents int64, currency string) (string, error) {
	if !c.configured {
		return "", ErrNotConfigured
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", wrapStripeErr(err)
	}
	return pi.ClientSecret, nil
}

func (c *StripeClient) HasDefaultPaymentMethod(ctx context.Context, customerID string) (bool, error) {
	if !c.configured {
		return false, ErrNotConfigured
	}
	params := &stripe.CustomerParams{}
	params.Context = ctx
	cust, err := customer.Get(customerID, params)
	if err != nil {
		return false, wrapStripeErr(err)
	}
	return cust.InvoiceSettings != nil && cust.InvoiceSettings.DefaultPaymentMethod != nil, nil
}

func wrapStripeErr(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return fmt.Errorf("stripe error: %s - %s", stripeErr.Code, stripeErr.Msg)
	}
	return err
}
