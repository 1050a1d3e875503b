package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"bookingrelay/internal/types"
)

// HTTPForwarder POSTs canonical payloads to the downstream ingestion URL. It
// makes a single attempt per call: a failed forward surfaces as a 5xx on the
// webhook response and Stripe redelivers the event.
type HTTPForwarder struct {
	base   *BaseClient
	url    string
	logger *slog.Logger
}

var _ PayloadForwarder = (*HTTPForwarder)(nil)

// NewHTTPForwarder creates a forwarder for targetURL. An empty targetURL is
// allowed and turns Forward into a logged no-op.
func NewHTTPForwarder(httpClient *http.Client, targetURL string, logger *slog.Logger, opts ...BaseClientOption) *HTTPForwarder {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPForwarder{
		base:   NewBaseClient(httpClient, "downstream", NoRetryPolicy(), "BookingRelay/1.0", opts...),
		url:    targetURL,
		logger: logger,
	}
}

// Forward delivers payload as JSON. Any 2xx is success; everything else is a
// downstream_unavailable error carrying the status and a body excerpt.
func (f *HTTPForwarder) Forward(ctx context.Context, payload *types.CanonicalPayload) error {
	if f.url == "" {
		f.logger.WarnContext(ctx, "downstream URL not configured; payload dropped",
			"type", payload.Type,
			"event_id", payload.EventID,
		)
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build downstream request", err)
	}
	deliveryID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Relay-Delivery-Id", deliveryID)

	resp, err := f.base.Do(req)
	if err != nil {
		return f.downstreamError(ctx, payload, deliveryID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt := readExcerpt(resp.Body)
		f.logger.ErrorContext(ctx, "downstream rejected payload",
			"type", payload.Type,
			"event_id", payload.EventID,
			"delivery_id", deliveryID,
			"status", resp.StatusCode,
			"body", excerpt,
		)
		return types.NewAppErrorWithDetails(
			types.ErrCodeDownstreamUnavailable,
			fmt.Sprintf("downstream returned %d", resp.StatusCode),
			nil,
			map[string]any{"status": resp.StatusCode, "body": excerpt},
		)
	}

	f.logger.InfoContext(ctx, "payload forwarded",
		"type", payload.Type,
		"event_id", payload.EventID,
		"delivery_id", deliveryID,
		"status", resp.StatusCode,
	)
	return nil
}

// downstreamError rewraps a BaseClient failure under the downstream code,
// keeping whatever status and body details it captured.
func (f *HTTPForwarder) downstreamError(ctx context.Context, payload *types.CanonicalPayload, deliveryID string, err error) error {
	details := map[string]any{}
	msg := "downstream request failed"

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		for k, v := range appErr.Details {
			details[k] = v
		}
		if status, ok := appErr.Details["status"].(int); ok {
			msg = fmt.Sprintf("downstream returned %d", status)
		}
	}

	f.logger.ErrorContext(ctx, "downstream forward failed",
		"type", payload.Type,
		"event_id", payload.EventID,
		"delivery_id", deliveryID,
		"error", err,
	)
	return types.NewAppErrorWithDetails(types.ErrCodeDownstreamUnavailable, msg, err, details)
}
