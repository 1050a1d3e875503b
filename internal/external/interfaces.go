package external

import (
	"context"

	"bookingrelay/internal/types"
)

// WebhookVerifier authenticates an inbound provider webhook and decodes it.
type WebhookVerifier interface {
	// Verify checks the signature header against payload and returns the
	// decoded event. A missing header yields ErrCodeSignatureMissing; any
	// other verification failure yields ErrCodeSignatureInvalid.
	Verify(payload []byte, header string) (*types.ProviderEvent, error)
}

// SessionLookup finds the checkout session that produced a payment intent.
type SessionLookup interface {
	// FindSessionByPaymentIntent returns (nil, nil) when no session matches.
	// An error means the provider could not be asked.
	FindSessionByPaymentIntent(ctx context.Context, paymentIntentID string) (*types.CheckoutSession, error)
}

// CheckoutCreator creates hosted checkout sessions.
type CheckoutCreator interface {
	CreateCheckoutSession(ctx context.Context, req types.CheckoutRequest) (*types.CheckoutSession, error)
}

// PayloadForwarder delivers canonical payloads to the downstream collaborator.
type PayloadForwarder interface {
	// Forward returns nil on any 2xx and when no destination is configured.
	Forward(ctx context.Context, payload *types.CanonicalPayload) error
}

// Stripe event type constants prevent magic strings in webhook handling.
const (
	EventStripeCheckoutCompleted = "checkout.session.completed"
	EventStripePaymentSucceeded  = "payment_intent.succeeded"
	EventStripePaymentCanceled   = "payment_intent.canceled"
)
