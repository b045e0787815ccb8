package gateway

import (
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
)

// TopUpSessionParams describes a wallet top-up paid by international card
// through Stripe Checkout instead of the domestic gateway.
type TopUpSessionParams struct {
	UserID      string
	Amount      int64 // display currency units
	Description string
	SuccessURL  string
	CancelURL   string
}

// StripeClient creates Checkout Sessions for international-card top-ups.
type StripeClient interface {
	CreateTopUpSession(params *TopUpSessionParams) (*stripe.CheckoutSession, error)
}

// LiveStripeClient implements StripeClient with the real Stripe SDK.
type LiveStripeClient struct{}

// NewStripeClient creates a Stripe client with the given API key.
func NewStripeClient(apiKey string) *LiveStripeClient {
	stripe.Key = apiKey
	return &LiveStripeClient{}
}

// CreateTopUpSession creates a single-line-item Checkout Session for a
// wallet top-up. The session ID doubles as the transaction reference on
// return.
func (c *LiveStripeClient) CreateTopUpSession(params *TopUpSessionParams) (*stripe.CheckoutSession, error) {
	sessionParams := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String("vnd"),
					UnitAmount: stripe.Int64(params.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Wallet top-up"),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		ClientReferenceID: stripe.String(params.UserID),
	}

	return session.New(sessionParams)
}
