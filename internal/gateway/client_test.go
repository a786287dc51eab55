package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGatewayServer struct {
	tokenCalls atomic.Int64
	payments   map[string]map[string]any
	cancelCode int
	cancelMsg  string
}

func (f *fakeGatewayServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/getToken", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		f.tokenCalls.Add(1)
		var creds map[string]string
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds["api_key"] != "key" || creds["api_secret"] != "secret" {
			writeEnvelope(w, 1, "invalid credentials", nil)
			return
		}
		writeEnvelope(w, 0, "", map[string]any{
			"access_token": "tok-1",
			"expired_at":   time.Now().Add(time.Hour).Unix(),
		})
	})
	mux.HandleFunc("/payments/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		record, ok := f.payments[strings.TrimPrefix(r.URL.Path, "/payments/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeEnvelope(w, 0, "", record)
	})
	mux.HandleFunc("/payments/cancel", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if f.cancelCode != 0 {
			writeEnvelope(w, f.cancelCode, f.cancelMsg, nil)
			return
		}
		record, ok := f.payments[req["reference"]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		record["cancelled_at"] = time.Now().Unix()
		record["cancel_reason"] = req["reason"]
		writeEnvelope(w, 0, "", record)
	})
	return mux
}

func writeEnvelope(w http.ResponseWriter, code int, msg string, response any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":     code,
		"message":  msg,
		"response": response,
	})
}

func newTestClient(t *testing.T, f *fakeGatewayServer) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return New(Config{
		APIKey:       "key",
		APISecret:    "secret",
		EndpointBase: srv.URL,
		Timeout:      2 * time.Second,
	})
}

func TestFindByReference(t *testing.T) {
	f := &fakeGatewayServer{
		payments: map[string]map[string]any{
			"gw-1": {
				"merchant_reference": "mref-1",
				"amount":             10000,
				"status":             "paid",
				"paid_at":            1700000000,
				"receipt_url":        "https://gw.example/r/1",
			},
		},
	}
	client := newTestClient(t, f)

	meta, err := client.FindByReference(context.Background(), "gw-1")
	require.NoError(t, err)
	assert.Equal(t, "mref-1", meta.MerchantRef)
	assert.Equal(t, int64(10000), meta.Amount)
	assert.Equal(t, "paid", meta.Status)
	require.NotNil(t, meta.PaidAt)
	assert.Equal(t, int64(1700000000), *meta.PaidAt)
	assert.NotEmpty(t, meta.Raw)
}

func TestFindByReferenceNotFound(t *testing.T) {
	client := newTestClient(t, &fakeGatewayServer{payments: map[string]map[string]any{}})

	_, err := client.FindByReference(context.Background(), "no-such-ref")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = client.FindByReference(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancel(t *testing.T) {
	f := &fakeGatewayServer{
		payments: map[string]map[string]any{
			"gw-1": {
				"merchant_reference": "mref-1",
				"amount":             10000,
				"paid_at":            1700000000,
			},
		},
	}
	client := newTestClient(t, f)

	meta, err := client.Cancel(context.Background(), "customer request", "gw-1")
	require.NoError(t, err)
	require.NotNil(t, meta.CancelledAt)
	assert.Equal(t, "customer request", meta.CancelReason)
}

func TestCancelResponseError(t *testing.T) {
	f := &fakeGatewayServer{
		payments:   map[string]map[string]any{},
		cancelCode: 40,
		cancelMsg:  "payment already cancelled",
	}
	client := newTestClient(t, f)

	_, err := client.Cancel(context.Background(), "retry", "gw-1")
	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, 40, respErr.Code)
	assert.Contains(t, respErr.Message, "already cancelled")
}

func TestTokenReused(t *testing.T) {
	f := &fakeGatewayServer{
		payments: map[string]map[string]any{
			"gw-1": {"merchant_reference": "mref-1", "amount": 1},
		},
	}
	client := newTestClient(t, f)

	_, err := client.FindByReference(context.Background(), "gw-1")
	require.NoError(t, err)
	_, err = client.FindByReference(context.Background(), "gw-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.tokenCalls.Load())
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	client := New(Config{APIKey: "key", APISecret: "secret", EndpointBase: srv.URL})
	srv.Close()

	_, err := client.FindByReference(context.Background(), "gw-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	var respErr *ResponseError
	assert.False(t, errors.As(err, &respErr))
}
