package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"bookingrelay/internal/types"
)

// stripeAPIBase is the default Stripe API base URL.
// Overridable in tests via StripeClientConfig.BaseURL.
const stripeAPIBase = "https://api.stripe.com"

// konbiniMethod is Stripe's payment method type for convenience-store payment.
const konbiniMethod = "konbini"

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey string
	BaseURL   string // Override for testing; defaults to stripeAPIBase
	UserAgent string
	Logger    *slog.Logger
}

// StripeClient creates and looks up checkout sessions by making direct HTTP
// calls to the Stripe REST API through BaseClient. This routes all requests
// through the relay's resilience infrastructure (circuit breaker, retries,
// error mapping) and makes testing with httptest straightforward.
type StripeClient struct {
	base      *BaseClient
	secretKey string
	baseURL   string
	logger    *slog.Logger
	newKey    func() string // idempotency keys; uuid by default
}

var (
	_ CheckoutCreator = (*StripeClient)(nil)
	_ SessionLookup   = (*StripeClient)(nil)
)

// NewStripeClient creates a StripeClient. The httpClient timeout bounds each
// attempt; the caller's context bounds the whole call including retries.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig, opts ...BaseClientOption) *StripeClient {
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "BookingRelay/1.0"
	}
	base := NewBaseClient(httpClient, "stripe", DefaultRetryPolicy(), userAgent, opts...)
	return NewStripeClientWithBase(base, cfg)
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured BaseClient.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
		newKey:    uuid.NewString,
	}
}

// CreateCheckoutSession creates a hosted payment-mode Checkout Session with a
// single price_data line item. Metadata is attached to both the session and
// its payment intent, so payment_intent.* events carry it as well.
func (s *StripeClient) CreateCheckoutSession(ctx context.Context, req types.CheckoutRequest) (*types.CheckoutSession, error) {
	params := url.Values{}
	params.Set("mode", "payment")
	params.Set("success_url", req.SuccessURL)
	params.Set("cancel_url", req.CancelURL)
	params.Set("line_items[0][quantity]", "1")
	params.Set("line_items[0][price_data][currency]", req.Currency)
	params.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.AmountMinor, 10))
	params.Set("line_items[0][price_data][product_data][name]", req.ProductName)

	for i, method := range req.PaymentMethodTypes {
		params.Set(fmt.Sprintf("payment_method_types[%d]", i), method)
	}
	if req.KonbiniExpiresAfterDays > 0 && lo.Contains(req.PaymentMethodTypes, konbiniMethod) {
		params.Set("payment_method_options[konbini][expires_after_days]", strconv.Itoa(req.KonbiniExpiresAfterDays))
	}

	if req.Email != "" {
		params.Set("customer_email", req.Email)
	}
	for k, v := range req.Metadata {
		params.Set("metadata["+k+"]", v)
		params.Set("payment_intent_data[metadata]["+k+"]", v)
	}

	resp, err := s.doPost(ctx, "/v1/checkout/sessions", params)
	if err != nil {
		return nil, s.wrapStripeError("CreateCheckoutSession", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "CreateCheckoutSession")
	}

	var session stripe.CheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamStripe,
			"failed to decode Stripe checkout session response",
			err,
		)
	}
	if session.URL == "" {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("Stripe returned checkout session %s without a URL", session.ID),
			nil,
		)
	}

	s.logger.InfoContext(ctx, "checkout session created",
		"session_id", session.ID,
		"amount_minor", req.AmountMinor,
		"currency", req.Currency,
	)

	return mapCheckoutSession(&session), nil
}

// FindSessionByPaymentIntent lists checkout sessions filtered by payment
// intent. An empty list is a miss, not an error: the session may not be
// visible yet or the intent was created outside Checkout.
func (s *StripeClient) FindSessionByPaymentIntent(ctx context.Context, paymentIntentID string) (*types.CheckoutSession, error) {
	params := url.Values{}
	params.Set("payment_intent", paymentIntentID)
	params.Set("limit", "1")

	resp, err := s.doGet(ctx, "/v1/checkout/sessions", params)
	if err != nil {
		return nil, s.wrapStripeError("FindSessionByPaymentIntent", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "FindSessionByPaymentIntent")
	}

	var list stripe.CheckoutSessionList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamStripe,
			"failed to decode Stripe checkout session list",
			err,
		)
	}

	if len(list.Data) == 0 {
		return nil, nil
	}
	return mapCheckoutSession(list.Data[0]), nil
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

// doGet performs an authenticated GET request to the Stripe API.
func (s *StripeClient) doGet(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	reqURL := s.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

// doPost performs an authenticated POST request with a form-encoded body. The
// idempotency key makes BaseClient retries safe.
func (s *StripeClient) doPost(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", s.newKey())
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

// setAuthHeaders sets the Stripe API authentication and version headers.
func (s *StripeClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

// stripeErrorResponse is the JSON error envelope returned by the Stripe API.
type stripeErrorResponse struct {
	Error *stripe.Error `json:"error"`
}

// handleErrorResponse reads a non-200 Stripe response and maps it to a
// types.AppError.
func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyExcerpt))
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var envelope stripeErrorResponse
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil {
		return types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d with an unexpected body", operation, resp.StatusCode),
			err,
			map[string]any{"status": resp.StatusCode},
		)
	}

	return s.mapStripeError(operation, resp.StatusCode, envelope.Error)
}

// mapStripeError translates a Stripe API error into a types.AppError. The
// message is Stripe's own, which is safe to show to the payer.
func (s *StripeClient) mapStripeError(operation string, statusCode int, stripeErr *stripe.Error) error {
	details := map[string]any{
		"status": statusCode,
	}
	if stripeErr.Code != "" {
		details["stripe_code"] = string(stripeErr.Code)
	}
	if stripeErr.Param != "" {
		details["param"] = stripeErr.Param
	}
	if stripeErr.RequestID != "" {
		details["stripe_request_id"] = stripeErr.RequestID
	}

	s.logger.Warn("stripe request rejected",
		"operation", operation,
		"status", statusCode,
		"type", string(stripeErr.Type),
		"code", string(stripeErr.Code),
		"message", stripeErr.Msg,
	)

	code := types.ErrCodeUpstreamStripe
	if statusCode == http.StatusTooManyRequests {
		code = types.ErrCodeUpstreamRateLimited
	}

	msg := stripeErr.Msg
	if msg == "" {
		msg = fmt.Sprintf("Stripe error (%d)", statusCode)
	}
	return types.NewAppErrorWithDetails(code, msg, stripeErr, details)
}

// wrapStripeError wraps a BaseClient transport error with context.
func (s *StripeClient) wrapStripeError(operation string, err error) error {
	// Already mapped by BaseClient (breaker open, retries exhausted).
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: Stripe request failed", operation),
		err,
	)
}

// mapCheckoutSession converts a Stripe session to the relay's view of it.
func mapCheckoutSession(cs *stripe.CheckoutSession) *types.CheckoutSession {
	out := &types.CheckoutSession{
		ID:                 cs.ID,
		URL:                cs.URL,
		PaymentStatus:      string(cs.PaymentStatus),
		PaymentMethodTypes: cs.PaymentMethodTypes,
		Metadata:           cs.Metadata,
	}
	if cs.PaymentIntent != nil {
		out.PaymentIntent = cs.PaymentIntent.ID
	}
	if out.Metadata == nil {
		out.Metadata = map[string]string{}
	}
	return out
}

// ---------------------------------------------------------------------------
// Webhook Verification
// ---------------------------------------------------------------------------

// StripeVerifier implements WebhookVerifier with stripe-go's webhook package:
// HMAC-SHA256 over "timestamp.payload" with a bounded timestamp tolerance.
type StripeVerifier struct {
	secret    string
	tolerance time.Duration
}

var _ WebhookVerifier = (*StripeVerifier)(nil)

// NewStripeVerifier creates a verifier for the given endpoint signing secret.
func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{secret: secret, tolerance: webhook.DefaultTolerance}
}

// Verify authenticates payload and decodes it into a ProviderEvent. The API
// version pinned by the account may differ from the library's; only the
// fields read here need to be present.
func (v *StripeVerifier) Verify(payload []byte, header string) (*types.ProviderEvent, error) {
	if header == "" {
		return nil, types.NewAppError(types.ErrCodeSignatureMissing, "missing Stripe-Signature header", webhook.ErrNotSigned)
	}

	event, err := webhook.ConstructEventWithOptions(payload, header, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeSignatureInvalid, err.Error(), err)
	}

	return decodeProviderEvent(&event)
}

// decodeProviderEvent classifies the event and reads the nested object. Event
// types the relay does not act on are returned with only the envelope set.
func decodeProviderEvent(event *stripe.Event) (*types.ProviderEvent, error) {
	out := &types.ProviderEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Kind:    types.EventKindOther,
		Created: time.Unix(event.Created, 0).UTC(),
		Object:  types.EventObject{Metadata: map[string]string{}},
	}

	var raw json.RawMessage
	if event.Data != nil {
		raw = event.Data.Raw
	}

	switch string(event.Type) {
	case EventStripeCheckoutCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(raw, &cs); err != nil {
			return nil, types.NewAppError(types.ErrCodeValidationMalformedEvent, "malformed checkout session object", err)
		}
		out.Kind = types.EventKindCheckoutCompleted
		out.Object.ID = cs.ID
		out.Object.PaymentStatus = string(cs.PaymentStatus)
		out.Object.PaymentMethodTypes = cs.PaymentMethodTypes
		if cs.PaymentIntent != nil {
			out.Object.PaymentIntent = cs.PaymentIntent.ID
		}
		if cs.CustomerDetails != nil {
			out.Object.CustomerEmail = cs.CustomerDetails.Email
		}
		if cs.Metadata != nil {
			out.Object.Metadata = cs.Metadata
		}

	case EventStripePaymentSucceeded, EventStripePaymentCanceled:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return nil, types.NewAppError(types.ErrCodeValidationMalformedEvent, "malformed payment intent object", err)
		}
		out.Kind = types.EventKindPaymentSucceeded
		if string(event.Type) == EventStripePaymentCanceled {
			out.Kind = types.EventKindPaymentCanceled
		}
		out.Object.ID = pi.ID
		out.Object.PaymentIntent = pi.ID
		out.Object.PaymentStatus = string(pi.Status)
		out.Object.PaymentMethodTypes = pi.PaymentMethodTypes
		out.Object.ReceiptEmail = pi.ReceiptEmail
		if pi.Metadata != nil {
			out.Object.Metadata = pi.Metadata
		}
	}

	return out, nil
}
