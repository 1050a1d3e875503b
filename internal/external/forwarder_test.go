package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bookingrelay/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testForwardPayload() *types.CanonicalPayload {
	return &types.CanonicalPayload{
		SchemaVersion: types.PayloadSchemaVersion,
		Type:          types.PayloadTypeCheckoutCompleted,
		EventID:       "evt_1",
		Status:        types.PaymentStateComplete,
		SessionID:     "cs_1",
		PaymentIntent: "pi_1",
		PaymentStatus: "paid",
		PaymentMethod: "card",
		Metadata:      map[string]string{"checkin": "2026-11-02"},
	}
}

func newTestForwarder(url string, logger *slog.Logger) *HTTPForwarder {
	return NewHTTPForwarder(&http.Client{Timeout: 2 * time.Second}, url, logger, WithSleepFunc(noopSleep))
}

func TestHTTPForwarder_Success(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %q", ct)
		}
		if r.Header.Get("X-Relay-Delivery-Id") == "" {
			t.Error("expected X-Relay-Delivery-Id header")
		}
		if r.Header.Get("X-Request-Id") != "req-fwd" {
			t.Errorf("expected request id propagation, got %q", r.Header.Get("X-Request-Id"))
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("invalid JSON body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	fwd := newTestForwarder(server.URL, testLogger())
	ctx := types.WithRequestID(context.Background(), "req-fwd")

	if err := fwd.Forward(ctx, testForwardPayload()); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if received["type"] != types.PayloadTypeCheckoutCompleted {
		t.Errorf("unexpected type %v", received["type"])
	}
	if received["sessionId"] != "cs_1" {
		t.Errorf("unexpected sessionId %v", received["sessionId"])
	}
	if received["schema_version"] != types.PayloadSchemaVersion {
		t.Errorf("unexpected schema_version %v", received["schema_version"])
	}
	if _, ok := received["email"]; ok {
		t.Error("completion payload must not carry an email field")
	}
}

func TestHTTPForwarder_CancellationCarriesEmptyEmail(t *testing.T) {
	var raw []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	empty := ""
	payload := &types.CanonicalPayload{
		SchemaVersion: types.PayloadSchemaVersion,
		Type:          types.PayloadTypePaymentCanceled,
		EventID:       "evt_c",
		PaymentIntent: "pi_c",
		Email:         &empty,
	}

	if err := newTestForwarder(server.URL, testLogger()).Forward(context.Background(), payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Contains(raw, []byte(`"email":""`)) {
		t.Errorf("expected empty email field in %s", raw)
	}
}

func TestHTTPForwarder_Non2xx(t *testing.T) {
	statuses := []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError, http.StatusServiceUnavailable}

	for _, status := range statuses {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var calls int
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(status)
				w.Write([]byte("sheet locked"))
			}))
			defer server.Close()

			err := newTestForwarder(server.URL, testLogger()).Forward(context.Background(), testForwardPayload())

			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *types.AppError, got %T: %v", err, err)
			}
			if appErr.Code != types.ErrCodeDownstreamUnavailable {
				t.Errorf("expected %s, got %s", types.ErrCodeDownstreamUnavailable, appErr.Code)
			}
			if appErr.Details["status"] != status {
				t.Errorf("expected status detail %d, got %v", status, appErr.Details["status"])
			}
			if appErr.Details["body"] != "sheet locked" {
				t.Errorf("expected body excerpt, got %v", appErr.Details["body"])
			}
			if calls != 1 {
				t.Errorf("expected a single attempt, got %d", calls)
			}
		})
	}
}

func TestHTTPForwarder_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	err := newTestForwarder(url, testLogger()).Forward(context.Background(), testForwardPayload())

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeDownstreamUnavailable {
		t.Errorf("expected %s, got %s", types.ErrCodeDownstreamUnavailable, appErr.Code)
	}
	if appErr.HTTPStatus() != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", appErr.HTTPStatus())
	}
}

func TestHTTPForwarder_UnconfiguredURLIsNoop(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := newTestForwarder("", logger).Forward(context.Background(), testForwardPayload())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !strings.Contains(buf.String(), "downstream URL not configured") {
		t.Errorf("expected warning log, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), `"level":"WARN"`) {
		t.Errorf("expected WARN level, got %q", buf.String())
	}
}
