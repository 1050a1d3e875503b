package types

import "time"

// EventKind is the relay's classification of an inbound provider event.
// Only the kinds listed here are acted upon; everything else is EventKindOther.
type EventKind string

const (
	EventKindCheckoutCompleted EventKind = "checkout_session_completed"
	EventKindPaymentSucceeded  EventKind = "payment_intent_succeeded"
	EventKindPaymentCanceled   EventKind = "payment_intent_canceled"
	EventKindOther             EventKind = "other"
)

// ProviderEvent is a verified webhook event, reduced to the fields the relay
// reads. It is created per inbound request and discarded after normalization.
type ProviderEvent struct {
	ID      string
	Kind    EventKind
	Type    string // provider event type as received, e.g. "checkout.session.completed"
	Created time.Time
	Object  EventObject
}

// EventObject is the checkout session or payment intent nested in an event.
// Absent provider fields are left at their zero values; Metadata is never nil.
type EventObject struct {
	ID                 string
	PaymentIntent      string
	PaymentStatus      string
	PaymentMethodTypes []string
	Metadata           map[string]string
	CustomerEmail      string // customer_details.email (checkout sessions)
	ReceiptEmail       string // receipt_email (payment intents)
}

// CheckoutSession is a hosted checkout session as returned by the provider,
// either on creation or by payment-intent lookup.
type CheckoutSession struct {
	ID                 string
	URL                string
	PaymentIntent      string
	PaymentStatus      string
	PaymentMethodTypes []string
	Metadata           map[string]string
}

// PayloadSchemaVersion identifies the downstream payload contract.
const PayloadSchemaVersion = "v1"

// Canonical payload types sent downstream.
const (
	PayloadTypeCheckoutCompleted     = "checkout.session.completed"
	PayloadTypeAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	PayloadTypePaymentCanceled       = "payment_intent.canceled"
)

// PaymentState is the relay's view of whether a booking has been paid.
type PaymentState string

const (
	PaymentStatePending  PaymentState = "pending"
	PaymentStateComplete PaymentState = "complete"
)

// CanonicalPayload is the JSON body delivered to the downstream collaborator.
// Completion payloads populate Status, SessionID, PaymentStatus, PaymentMethod
// and Metadata; cancellation payloads populate Email. PaymentIntent is set for
// every type. Email is set to a non-nil pointer on cancellations so the field
// is always present there, possibly empty.
type CanonicalPayload struct {
	SchemaVersion string            `json:"schema_version"`
	Type          string            `json:"type"`
	EventID       string            `json:"event_id"`
	Status        PaymentState      `json:"status,omitempty"`
	SessionID     string            `json:"sessionId,omitempty"`
	PaymentIntent string            `json:"payment_intent"`
	PaymentStatus string            `json:"payment_status,omitempty"`
	PaymentMethod string            `json:"payment_method,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Email         *string           `json:"email,omitempty"`
}

// IsCancellation reports whether the payload is a cancellation notice.
func (p *CanonicalPayload) IsCancellation() bool {
	return p.Type == PayloadTypePaymentCanceled
}
