package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	mu  sync.Mutex
	req rpcRequest
}

func (r *recorded) last() rpcRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.req
}

// rpcServer answers every request with result and records the last request.
func rpcServer(t *testing.T, result any) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		rec.mu.Lock()
		rec.req = req
		rec.mu.Unlock()

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestHTTPClient_GetSignaturesForAddress(t *testing.T) {
	srv, rec := rpcServer(t, []map[string]any{
		{"signature": "sig1", "slot": 100, "blockTime": 1700000000, "err": nil},
		{"signature": "sig2", "slot": 101, "blockTime": nil, "err": map[string]any{"InstructionError": []any{0, "Custom"}}},
	})

	sigs, err := NewHTTPClient(srv.URL).GetSignaturesForAddress(context.Background(), "wallet", &SignaturesOpts{Limit: 10})
	require.NoError(t, err)

	assert.Equal(t, "getSignaturesForAddress", rec.last().Method)
	require.Len(t, rec.last().Params, 2)
	assert.Equal(t, map[string]any{"limit": float64(10)}, rec.last().Params[1])

	require.Len(t, sigs, 2)
	assert.Equal(t, "sig1", sigs[0].Signature)
	require.NotNil(t, sigs[0].BlockTime)
	assert.Equal(t, int64(1700000000), *sigs[0].BlockTime)
	assert.Nil(t, sigs[0].Err)

	assert.Equal(t, int64(101), sigs[1].Slot)
	assert.Nil(t, sigs[1].BlockTime)
	assert.NotNil(t, sigs[1].Err)
}

func TestHTTPClient_GetSignaturesForAddress_NoOpts(t *testing.T) {
	srv, rec := rpcServer(t, []any{})

	sigs, err := NewHTTPClient(srv.URL).GetSignaturesForAddress(context.Background(), "wallet", nil)
	require.NoError(t, err)
	assert.Empty(t, sigs)
	assert.Len(t, rec.last().Params, 1)
}

func TestHTTPClient_RetriesRateLimit(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"value":{"amount":"1000000000","decimals":6,"uiAmountString":"1000"}}}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, WithMaxRetries(3), WithRetryDelay(10*time.Millisecond))

	supply, err := client.GetTokenSupply(context.Background(), "mint")
	require.NoError(t, err)
	assert.Equal(t, "1000", supply.UIAmount.String())
	assert.Equal(t, int32(3), attempts.Load())
}

func TestHTTPClient_RetriesExhausted(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, WithMaxRetries(2), WithRetryDelay(time.Millisecond))

	_, err := client.GetTokenSupply(context.Background(), "mint")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retries exhausted")
	assert.Equal(t, int32(3), attempts.Load())
}

func TestHTTPClient_RPCErrorIsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32600,"message":"Invalid Request"}}`))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL).GetTokenSupply(context.Background(), "mint")

	var rpcErr *rpcError
	require.True(t, errors.As(err, &rpcErr), "got %T", err)
	assert.Equal(t, -32600, rpcErr.Code)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestHTTPClient_GetAccountInfo(t *testing.T) {
	srv, rec := rpcServer(t, map[string]any{
		"value": map[string]any{
			"lamports":   1000000,
			"owner":      "11111111111111111111111111111111",
			"data":       []string{"SGVsbG8gV29ybGQ=", "base64"},
			"executable": false,
			"rentEpoch":  100,
		},
	})

	info, err := NewHTTPClient(srv.URL).GetAccountInfo(context.Background(), "pubkey")
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.Equal(t, "getAccountInfo", rec.last().Method)
	assert.Equal(t, uint64(1000000), info.Lamports)
	assert.Equal(t, "11111111111111111111111111111111", info.Owner)
	assert.Equal(t, "SGVsbG8gV29ybGQ=", info.Data)
	assert.Equal(t, uint64(100), info.RentEpoch)
}

func TestHTTPClient_GetAccountInfo_NotFound(t *testing.T) {
	srv, _ := rpcServer(t, map[string]any{"value": nil})

	info, err := NewHTTPClient(srv.URL).GetAccountInfo(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPClient(srv.URL).GetTokenSupply(ctx, "mint")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPClient_GetTokenSupply(t *testing.T) {
	tests := []struct {
		name  string
		value map[string]any
		want  string
	}{
		{
			name:  "ui amount string",
			value: map[string]any{"amount": "1000000", "decimals": 6, "uiAmountString": "1"},
			want:  "1",
		},
		{
			name:  "raw amount fallback",
			value: map[string]any{"amount": "999999999500000", "decimals": 6},
			want:  "999999999.5",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, rec := rpcServer(t, map[string]any{"value": tt.value})

			supply, err := NewHTTPClient(srv.URL).GetTokenSupply(context.Background(), "mint")
			require.NoError(t, err)
			assert.Equal(t, "getTokenSupply", rec.last().Method)
			assert.Equal(t, uint8(6), supply.Decimals)
			assert.Equal(t, tt.want, supply.UIAmount.String())
		})
	}
}

func TestHTTPClient_GetTokenSupply_Empty(t *testing.T) {
	srv, _ := rpcServer(t, map[string]any{"value": nil})

	_, err := NewHTTPClient(srv.URL).GetTokenSupply(context.Background(), "mint")
	assert.Error(t, err)
}

func TestHTTPClient_Backoff(t *testing.T) {
	c := NewHTTPClient("http://unused", WithRetryDelay(time.Second), WithMaxDelay(5*time.Second))

	assert.Equal(t, time.Second, c.backoff(1))
	assert.Equal(t, 2*time.Second, c.backoff(2))
	assert.Equal(t, 4*time.Second, c.backoff(3))
	assert.Equal(t, 5*time.Second, c.backoff(4))
}

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"))
	assert.Error(t, ValidateAddress("not-base58-0OIl"))
	assert.Error(t, ValidateAddress("abc"))
}
