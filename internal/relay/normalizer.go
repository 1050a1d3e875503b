// Package relay holds the booking relay's domain logic: mapping verified
// provider events to the downstream payload contract, and turning inbound
// reservation requests into checkout sessions.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"bookingrelay/internal/external"
	"bookingrelay/internal/types"
)

// defaultPaymentMethod is reported when an object lists no payment method types.
const defaultPaymentMethod = "card"

// EventNormalizer maps a verified provider event to the payload forwarded
// downstream. A nil payload with a nil error means there is nothing to forward.
type EventNormalizer interface {
	Normalize(ctx context.Context, event *types.ProviderEvent) (*types.CanonicalPayload, error)
}

// NormalizerConfig holds the normalizer's settings.
type NormalizerConfig struct {
	// PayAtStoreMethod marks completed sessions that are still awaiting payment.
	PayAtStoreMethod string
	// LookupTimeout bounds the session-by-payment-intent lookup.
	LookupTimeout time.Duration
}

type normalizerImpl struct {
	lookup external.SessionLookup
	cfg    NormalizerConfig
	logger *slog.Logger
}

var _ EventNormalizer = (*normalizerImpl)(nil)

// NewNormalizer creates an EventNormalizer.
func NewNormalizer(lookup external.SessionLookup, cfg NormalizerConfig, logger *slog.Logger) *normalizerImpl {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 10 * time.Second
	}
	return &normalizerImpl{
		lookup: lookup,
		cfg:    cfg,
		logger: logger,
	}
}

// Normalize dispatches on the event kind. The only error source is the
// session lookup for payment_intent.succeeded; a lookup miss is not an error.
func (n *normalizerImpl) Normalize(ctx context.Context, event *types.ProviderEvent) (*types.CanonicalPayload, error) {
	switch event.Kind {
	case types.EventKindCheckoutCompleted:
		return n.checkoutCompleted(event), nil
	case types.EventKindPaymentSucceeded:
		return n.paymentSucceeded(ctx, event)
	case types.EventKindPaymentCanceled:
		return n.paymentCanceled(event), nil
	default:
		n.logger.DebugContext(ctx, "event type not relayed",
			"event_id", event.ID,
			"event_type", event.Type,
		)
		return nil, nil
	}
}

func (n *normalizerImpl) checkoutCompleted(event *types.ProviderEvent) *types.CanonicalPayload {
	obj := event.Object
	status, method := n.classify(obj.PaymentMethodTypes)

	return &types.CanonicalPayload{
		SchemaVersion: types.PayloadSchemaVersion,
		Type:          types.PayloadTypeCheckoutCompleted,
		EventID:       event.ID,
		Status:        status,
		SessionID:     obj.ID,
		PaymentIntent: obj.PaymentIntent,
		PaymentStatus: obj.PaymentStatus,
		PaymentMethod: method,
		Metadata:      copyMetadata(obj.Metadata),
	}
}

// paymentSucceeded recovers the booking metadata from the checkout session
// that created the payment intent. Intent-level metadata is ignored.
func (n *normalizerImpl) paymentSucceeded(ctx context.Context, event *types.ProviderEvent) (*types.CanonicalPayload, error) {
	obj := event.Object

	lookupCtx, cancel := context.WithTimeout(ctx, n.cfg.LookupTimeout)
	defer cancel()

	session, err := n.lookup.FindSessionByPaymentIntent(lookupCtx, obj.PaymentIntent)
	if err != nil {
		n.logger.ErrorContext(ctx, "checkout session lookup failed",
			"event_id", event.ID,
			"payment_intent", obj.PaymentIntent,
			"error", err,
		)
		return nil, err
	}
	if session == nil {
		n.logger.InfoContext(ctx, "no checkout session for payment intent; nothing to forward",
			"event_id", event.ID,
			"payment_intent", obj.PaymentIntent,
		)
		return nil, nil
	}

	methods := obj.PaymentMethodTypes
	if len(methods) == 0 {
		methods = session.PaymentMethodTypes
	}
	_, method := n.classify(methods)

	paymentStatus := session.PaymentStatus
	if paymentStatus == "" {
		paymentStatus = obj.PaymentStatus
	}

	return &types.CanonicalPayload{
		SchemaVersion: types.PayloadSchemaVersion,
		Type:          types.PayloadTypeAsyncPaymentSucceeded,
		EventID:       event.ID,
		Status:        types.PaymentStateComplete,
		SessionID:     session.ID,
		PaymentIntent: obj.PaymentIntent,
		PaymentStatus: paymentStatus,
		PaymentMethod: method,
		Metadata:      copyMetadata(session.Metadata),
	}, nil
}

func (n *normalizerImpl) paymentCanceled(event *types.ProviderEvent) *types.CanonicalPayload {
	obj := event.Object
	email := lo.CoalesceOrEmpty(obj.ReceiptEmail, obj.Metadata["email"])

	return &types.CanonicalPayload{
		SchemaVersion: types.PayloadSchemaVersion,
		Type:          types.PayloadTypePaymentCanceled,
		EventID:       event.ID,
		PaymentIntent: obj.PaymentIntent,
		Email:         &email,
	}
}

// classify reports a completed session as pending when the pay-at-store
// method was offered, since the payer has not paid yet.
func (n *normalizerImpl) classify(methods []string) (types.PaymentState, string) {
	if n.cfg.PayAtStoreMethod != "" && lo.Contains(methods, n.cfg.PayAtStoreMethod) {
		return types.PaymentStatePending, n.cfg.PayAtStoreMethod
	}
	return types.PaymentStateComplete, firstMethod(methods)
}

func firstMethod(methods []string) string {
	if len(methods) == 0 || methods[0] == "" {
		return defaultPaymentMethod
	}
	return methods[0]
}

func copyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
