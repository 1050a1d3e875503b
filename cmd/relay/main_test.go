package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"

	"bookingrelay/internal/config"
	"bookingrelay/internal/core"
	"bookingrelay/internal/types"
)

const testWebhookSecret = "whsec_main_test"

// setTestEnv points the relay at local fakes. Variables are restored by t.Setenv.
func setTestEnv(t *testing.T, stripeURL, downstreamURL string) {
	t.Helper()
	t.Setenv("APP_ENV", "local")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("STRIPE_MODE", "test")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_main")
	t.Setenv("STRIPE_WEBHOOK_SECRET", testWebhookSecret)
	t.Setenv("STRIPE_API_BASE", stripeURL)
	t.Setenv("DOWNSTREAM_URL", downstreamURL)
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("BOOKING_CUTOFF_ENABLED", "false")
	for _, k := range []string{"STRIPE_SECRET_KEY_SSM_PARAM", "STRIPE_WEBHOOK_SECRET_SSM_PARAM", "DOWNSTREAM_URL_SSM_PARAM"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

// buildTestServer wires the production graph against the given fakes.
func buildTestServer(t *testing.T, stripeURL, downstreamURL string) *core.Server {
	t.Helper()
	setTestEnv(t, stripeURL, downstreamURL)

	cfg, err := config.LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := buildServer(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("buildServer: %v", err)
	}
	return srv
}

// fakeStripe serves the two Stripe endpoints the relay calls.
type fakeStripe struct {
	mu        sync.Mutex
	forms     []url.Values
	sessionPI string
}

func (f *fakeStripe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/checkout/sessions":
		_ = r.ParseForm()
		f.mu.Lock()
		f.forms = append(f.forms, r.PostForm)
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"id":"cs_main","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_main"}`)

	case r.Method == http.MethodGet && r.URL.Path == "/v1/checkout/sessions":
		if r.URL.Query().Get("payment_intent") != f.sessionPI {
			_, _ = io.WriteString(w, `{"object":"list","data":[],"has_more":false}`)
			return
		}
		_, _ = io.WriteString(w, `{"object":"list","has_more":false,"data":[{
			"id":"cs_async","object":"checkout.session","payment_intent":"`+f.sessionPI+`",
			"payment_status":"paid","payment_method_types":["konbini"],
			"metadata":{"checkin":"2031-05-01","email":"guest@example.com"}}]}`)

	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"type":"invalid_request_error","message":"unknown route"}}`)
	}
}

// fakeDownstream captures forwarded payloads.
type fakeDownstream struct {
	mu       sync.Mutex
	payloads []types.CanonicalPayload
}

func (f *fakeDownstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var p types.CanonicalPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.payloads = append(f.payloads, p)
	f.mu.Unlock()
	w.WriteHeader(http.StatusAccepted)
}

func signedRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	header := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(body),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	}).Header

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", header)
	return req
}

func TestHealthEndpoint(t *testing.T) {
	srv := buildTestServer(t, "http://127.0.0.1:1", "")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("GET /health: got status %d, want %d; body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
}

func TestRedirectPagesMounted(t *testing.T) {
	srv := buildTestServer(t, "http://127.0.0.1:1", "")

	for _, path := range []string{"/success", "/cancel"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s: got status %d, want 200", path, rec.Code)
		}
		if rec.Body.Len() == 0 {
			t.Errorf("GET %s: empty body", path)
		}
	}
}

func TestCreateCheckoutSessionEndToEnd(t *testing.T) {
	stripe := &fakeStripe{}
	stripeSrv := httptest.NewServer(stripe)
	defer stripeSrv.Close()

	srv := buildTestServer(t, stripeSrv.URL, "")

	body := `{"amount":"12000","email":"guest@example.com","checkin":"2031-05-01","metadata[adults]":"2"}`
	req := httptest.NewRequest(http.MethodPost, "/create-checkout-session", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.URL != "https://checkout.stripe.com/c/pay/cs_main" {
		t.Errorf("url = %q", resp.URL)
	}

	if len(stripe.forms) != 1 {
		t.Fatalf("stripe calls = %d, want 1", len(stripe.forms))
	}
	form := stripe.forms[0]
	checks := map[string]string{
		"line_items[0][price_data][unit_amount]": "12000",
		"line_items[0][price_data][currency]":    "jpy",
		"customer_email":                         "guest@example.com",
		"metadata[checkin]":                      "2031-05-01",
		"metadata[adults]":                       "2",
		"metadata[email]":                        "guest@example.com",
	}
	for k, want := range checks {
		if got := form.Get(k); got != want {
			t.Errorf("form[%s] = %q, want %q", k, got, want)
		}
	}
}

func TestWebhookEndToEnd(t *testing.T) {
	stripe := &fakeStripe{sessionPI: "pi_async"}
	stripeSrv := httptest.NewServer(stripe)
	defer stripeSrv.Close()

	downstream := &fakeDownstream{}
	downstreamSrv := httptest.NewServer(downstream)
	defer downstreamSrv.Close()

	srv := buildTestServer(t, stripeSrv.URL, downstreamSrv.URL)

	events := []string{
		`{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{
			"id":"cs_1","object":"checkout.session","payment_intent":"pi_1","payment_status":"unpaid",
			"payment_method_types":["konbini"],"metadata":{"checkin":"2031-05-01"}}}}`,
		`{"id":"evt_2","object":"event","type":"payment_intent.succeeded","data":{"object":{
			"id":"pi_async","object":"payment_intent","status":"succeeded","payment_method_types":["konbini"]}}}`,
		`{"id":"evt_3","object":"event","type":"payment_intent.canceled","data":{"object":{
			"id":"pi_3","object":"payment_intent","status":"canceled","receipt_email":"guest@example.com"}}}`,
		`{"id":"evt_4","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`,
	}

	for _, body := range events {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, signedRequest(t, body))
		if rec.Code != http.StatusOK {
			t.Fatalf("got status %d, want 200; body: %s", rec.Code, rec.Body.String())
		}
	}

	if len(downstream.payloads) != 3 {
		t.Fatalf("forwarded %d payloads, want 3", len(downstream.payloads))
	}

	pending := downstream.payloads[0]
	if pending.Type != types.PayloadTypeCheckoutCompleted || pending.Status != types.PaymentStatePending {
		t.Errorf("first payload = %+v, want pending checkout completion", pending)
	}

	async := downstream.payloads[1]
	if async.Type != types.PayloadTypeAsyncPaymentSucceeded || async.SessionID != "cs_async" {
		t.Errorf("second payload = %+v, want async success for cs_async", async)
	}
	if async.Metadata["email"] != "guest@example.com" {
		t.Errorf("async metadata = %v", async.Metadata)
	}

	canceled := downstream.payloads[2]
	if canceled.Type != types.PayloadTypePaymentCanceled || canceled.Email == nil || *canceled.Email != "guest@example.com" {
		t.Errorf("third payload = %+v, want cancellation with email", canceled)
	}
}

func TestWebhookRejectsUnsigned(t *testing.T) {
	downstream := &fakeDownstream{}
	downstreamSrv := httptest.NewServer(downstream)
	defer downstreamSrv.Close()

	srv := buildTestServer(t, "http://127.0.0.1:1", downstreamSrv.URL)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"id":"evt_1"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", rec.Code)
	}
	if !strings.HasPrefix(rec.Body.String(), "Webhook Error: ") {
		t.Errorf("body = %q", rec.Body.String())
	}
	if len(downstream.payloads) != 0 {
		t.Errorf("forwarded %d payloads, want 0", len(downstream.payloads))
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		logger := newLogger(tt.level)
		if !logger.Enabled(context.Background(), tt.want) {
			t.Errorf("newLogger(%q) does not enable %v", tt.level, tt.want)
		}
		if tt.want > slog.LevelDebug && logger.Enabled(context.Background(), tt.want-4) {
			t.Errorf("newLogger(%q) enables level below %v", tt.level, tt.want)
		}
	}
}

func TestIsLambdaEnvironment(t *testing.T) {
	t.Setenv("AWS_LAMBDA_RUNTIME_API", "")
	t.Setenv("_LAMBDA_SERVER_PORT", "")
	os.Unsetenv("AWS_LAMBDA_RUNTIME_API")
	os.Unsetenv("_LAMBDA_SERVER_PORT")

	if isLambdaEnvironment() {
		t.Error("expected false without runtime variables")
	}

	t.Setenv("AWS_LAMBDA_RUNTIME_API", "127.0.0.1:9001")
	if !isLambdaEnvironment() {
		t.Error("expected true with AWS_LAMBDA_RUNTIME_API set")
	}
}
