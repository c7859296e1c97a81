package alpaca

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelalgo/momentum/internal/broker"
	"github.com/kestrelalgo/momentum/internal/ratelimit"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	budgetPath := filepath.Join(t.TempDir(), "rate_budget.json")
	return NewClient(Config{
		APIKey: "key", APISecret: "secret", BaseURL: srv.URL, DataURL: srv.URL,
	}, ratelimit.New(budgetPath, 200, 20))
}

func TestClient_GetClock_ParsesResponseAndSendsAuthHeaders(t *testing.T) {
	var gotKey, gotSecret string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("APCA-API-KEY-ID")
		gotSecret = r.Header.Get("APCA-API-SECRET-KEY")
		json.NewEncoder(w).Encode(map[string]any{"is_open": true})
	})

	clock, err := c.GetClock(context.Background())
	require.NoError(t, err)
	assert.True(t, clock.IsOpen)
	assert.Equal(t, "key", gotKey)
	assert.Equal(t, "secret", gotSecret)
}

func TestClient_GetAccount_ParsesStringDecimals(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"equity": "15234.50", "cash": "9000.00"})
	})

	acct, err := c.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 15234.50, acct.Equity)
	assert.Equal(t, 9000.00, acct.Cash)
}

func TestClient_Do_ServerErrorBecomesError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := c.GetClock(context.Background())
	assert.Error(t, err)
}

func TestClient_Do_RetriesTransientErrorsThenSucceeds(t *testing.T) {
	oldDelay := transientRetryBaseDelay
	transientRetryBaseDelay = time.Millisecond
	t.Cleanup(func() { transientRetryBaseDelay = oldDelay })

	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"is_open": true})
	})

	clock, err := c.GetClock(context.Background())
	require.NoError(t, err)
	assert.True(t, clock.IsOpen)
	assert.Equal(t, 3, calls, "should have retried the first two 503s before succeeding")
}

func TestClient_Do_PermanentErrorNeverRetries(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.GetClock(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, calls, "a permanent (non-retryable) error should not be retried")
}

func TestClient_Do_ClientErrorBecomesError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err := c.GetClock(context.Background())
	assert.Error(t, err)
}

func TestClient_SubmitOrder_ReturnsOrderID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		json.NewEncoder(w).Encode(map[string]any{"id": "ord-123"})
	})

	id, err := c.SubmitOrder(context.Background(), broker.OrderRequest{
		Symbol: "AAPL", Side: broker.Buy, Type: broker.Market, Qty: 5, ClientOrderID: "c1",
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-123", id)
}

var _ broker.Broker = (*Client)(nil)
