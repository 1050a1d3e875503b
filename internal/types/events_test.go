package types

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalPayload_CompletionShape(t *testing.T) {
	p := CanonicalPayload{
		SchemaVersion: PayloadSchemaVersion,
		Type:          PayloadTypeCheckoutCompleted,
		EventID:       "evt_1",
		Status:        PaymentStatePending,
		SessionID:     "cs_test_1",
		PaymentIntent: "pi_1",
		PaymentStatus: "unpaid",
		PaymentMethod: "konbini",
		Metadata:      map[string]string{"checkin": "2025-06-01"},
	}

	b, err := json.Marshal(p)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))

	assert.Equal(t, "v1", got["schema_version"])
	assert.Equal(t, "checkout.session.completed", got["type"])
	assert.Equal(t, "pending", got["status"])
	assert.Equal(t, "cs_test_1", got["sessionId"])
	assert.Equal(t, "pi_1", got["payment_intent"])
	assert.Equal(t, "konbini", got["payment_method"])
	assert.NotContains(t, got, "email")
	assert.False(t, p.IsCancellation())
}

// TestCanonicalPayload_CancellationEmailAlwaysPresent verifies an empty email
// is serialized as "" rather than omitted or null.
func TestCanonicalPayload_CancellationEmailAlwaysPresent(t *testing.T) {
	empty := ""
	p := CanonicalPayload{
		SchemaVersion: PayloadSchemaVersion,
		Type:          PayloadTypePaymentCanceled,
		EventID:       "evt_2",
		PaymentIntent: "pi_2",
		Email:         &empty,
	}

	b, err := json.Marshal(p)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))

	require.Contains(t, got, "email")
	assert.Equal(t, "", got["email"])
	assert.NotContains(t, got, "metadata")
	assert.NotContains(t, got, "sessionId")
	assert.True(t, p.IsCancellation())
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	assert.Equal(t, "req-123", GetRequestID(ctx))
	assert.Equal(t, "", GetRequestID(context.Background()))
}

func TestFixedClock(t *testing.T) {
	at := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, at, FixedClock{T: at}.Now())
	assert.Equal(t, time.UTC, RealClock{}.Now().Location())
}
