// Package handlers contains the HTTP handler implementations for the booking
// relay.
//
// The Stripe webhook route is unauthenticated; it is called directly by Stripe
// and secured by verifying the Stripe-Signature header over the raw body.
package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"bookingrelay/internal/core"
	"bookingrelay/internal/external"
	"bookingrelay/internal/relay"
	"bookingrelay/internal/types"
)

// maxWebhookBodySize is the maximum allowed size of a Stripe webhook payload (64 KB).
// Stripe webhook payloads are typically small; this limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// defaultForwardTimeout bounds the downstream call when none is configured.
const defaultForwardTimeout = 10 * time.Second

// ForwardRecorder receives the outcome of each downstream delivery.
type ForwardRecorder interface {
	RecordForward(payloadType string, result types.ForwardResult)
}

// StripeWebhookHandler verifies Stripe events, normalizes them and forwards
// the result downstream. Stripe gets its 200 only after the forward attempt
// has completed; a failed forward is a 500 so Stripe redelivers.
type StripeWebhookHandler struct {
	verifier       external.WebhookVerifier
	normalizer     relay.EventNormalizer
	forwarder      external.PayloadForwarder
	recorder       ForwardRecorder
	forwardTimeout time.Duration
	logger         *slog.Logger
}

// NewStripeWebhookHandler creates a new StripeWebhookHandler. recorder may be nil.
func NewStripeWebhookHandler(
	verifier external.WebhookVerifier,
	normalizer relay.EventNormalizer,
	forwarder external.PayloadForwarder,
	recorder ForwardRecorder,
	forwardTimeout time.Duration,
	logger *slog.Logger,
) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if forwardTimeout <= 0 {
		forwardTimeout = defaultForwardTimeout
	}
	return &StripeWebhookHandler{
		verifier:       verifier,
		normalizer:     normalizer,
		forwarder:      forwarder,
		recorder:       recorder,
		forwardTimeout: forwardTimeout,
		logger:         logger,
	}
}

// RegisterRoutes mounts the Stripe webhook endpoint.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhook", h.Handle)
}

// webhookAck is the body Stripe receives on success.
type webhookAck struct {
	Received bool `json:"received"`
}

// Handle processes an incoming Stripe webhook event:
//  1. Reads the raw body. It must not be decoded before verification.
//  2. Verifies the Stripe-Signature header and decodes the event.
//  3. Normalizes the event, looking up the checkout session if needed.
//  4. Forwards the payload, if any, and waits for the result.
//  5. Acknowledges with {"received": true}.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Step 1: Read the raw body with size limit.
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to read webhook body", "error", err)
		webhookError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	// Step 2: Verify the signature and decode the event object.
	event, err := h.verifier.Verify(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.WarnContext(ctx, "webhook event rejected", "error", err)
		webhookError(w, statusOf(err), messageOf(err))
		return
	}

	logger := h.logger.With("event_id", event.ID, "event_type", event.Type)

	// Step 3: Normalize.
	canonical, err := h.normalizer.Normalize(ctx, event)
	if err != nil {
		logger.ErrorContext(ctx, "webhook event normalization failed", "error", err)
		webhookError(w, http.StatusInternalServerError, messageOf(err))
		return
	}

	if canonical == nil {
		h.record(event.Type, types.ForwardResultSkipped)
		core.JSON(w, r, http.StatusOK, webhookAck{Received: true})
		return
	}

	// Step 4: Forward.
	if err := h.forward(ctx, canonical); err != nil {
		logger.ErrorContext(ctx, "webhook forward failed",
			"payload_type", canonical.Type,
			"error", err,
		)
		h.record(canonical.Type, types.ForwardResultFailed)
		webhookError(w, http.StatusInternalServerError, messageOf(err))
		return
	}
	h.record(canonical.Type, types.ForwardResultDelivered)

	// Step 5: Acknowledge.
	core.JSON(w, r, http.StatusOK, webhookAck{Received: true})
}

func (h *StripeWebhookHandler) forward(ctx context.Context, payload *types.CanonicalPayload) error {
	ctx, cancel := context.WithTimeout(ctx, h.forwardTimeout)
	defer cancel()
	return h.forwarder.Forward(ctx, payload)
}

func (h *StripeWebhookHandler) record(payloadType string, result types.ForwardResult) {
	if h.recorder != nil {
		h.recorder.RecordForward(payloadType, result)
	}
}

// webhookError writes the plain-text failure body Stripe shows in its dashboard.
func webhookError(w http.ResponseWriter, status int, reason string) {
	core.Text(w, status, "Webhook Error: "+reason)
}

func statusOf(err error) int {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

func messageOf(err error) string {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}
