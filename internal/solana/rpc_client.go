package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"alpha-finder/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient implements RPCClient over HTTP JSON-RPC 2.0.
// Transport failures, 429 and non-200 responses are retried with
// exponential backoff. JSON-RPC error objects are returned as is.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	nextID      atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.client.Timeout = d }
}

// WithMaxRetries sets how many times a failed request is retried.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) { c.maxRetries = n }
}

// WithRetryDelay sets the first backoff delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.retryDelay = d }
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.maxDelay = d }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) { c.client = hc }
}

// NewHTTPClient creates a client for the RPC node at endpoint.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// rpcError is a JSON-RPC error object. It is never retried.
type rpcError struct {
	Code    int
	Message string
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// retryable marks a failure worth another attempt.
type retryable struct{ err error }

func (r retryable) Error() string { return r.err.Error() }
func (r retryable) Unwrap() error { return r.err }

// call posts one JSON-RPC request and returns its "result" member.
func (c *HTTPClient) call(ctx context.Context, method string, params ...any) (gjson.Result, error) {
	start := time.Now()
	defer func() { observability.RecordRPCLatency(method, time.Since(start).Seconds()) }()

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("marshal %s request: %w", method, err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.backoff(attempt)); err != nil {
				return gjson.Result{}, err
			}
		}
		result, err := c.post(ctx, body)
		var retry retryable
		if !errors.As(err, &retry) {
			return result, err
		}
		lastErr = retry.err
	}
	return gjson.Result{}, fmt.Errorf("%s: retries exhausted: %w", method, lastErr)
}

func (c *HTTPClient) post(ctx context.Context, body []byte) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return gjson.Result{}, ctx.Err()
		}
		return gjson.Result{}, retryable{fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	switch {
	case err != nil:
		return gjson.Result{}, retryable{fmt.Errorf("read response: %w", err)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return gjson.Result{}, retryable{errors.New("rate limited (429)")}
	case resp.StatusCode != http.StatusOK:
		return gjson.Result{}, retryable{fmt.Errorf("status %d: %s", resp.StatusCode, raw)}
	case !gjson.ValidBytes(raw):
		return gjson.Result{}, retryable{errors.New("malformed json response")}
	}

	doc := gjson.ParseBytes(raw)
	if e := doc.Get("error"); e.Exists() && e.Type != gjson.Null {
		return gjson.Result{}, &rpcError{Code: int(e.Get("code").Int()), Message: e.Get("message").String()}
	}
	return doc.Get("result"), nil
}

func (c *HTTPClient) backoff(attempt int) time.Duration {
	d := c.retryDelay
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * c.backoffMult)
		if d >= c.maxDelay {
			return c.maxDelay
		}
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// GetSignaturesForAddress retrieves signatures for an address, newest first.
func (c *HTTPClient) GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error) {
	params := []any{address}
	if opts != nil {
		cfg := map[string]any{}
		if opts.Before != "" {
			cfg["before"] = opts.Before
		}
		if opts.Until != "" {
			cfg["until"] = opts.Until
		}
		if opts.Limit > 0 {
			cfg["limit"] = opts.Limit
		}
		if len(cfg) > 0 {
			params = append(params, cfg)
		}
	}

	result, err := c.call(ctx, "getSignaturesForAddress", params...)
	if err != nil {
		return nil, err
	}

	items := result.Array()
	sigs := make([]SignatureInfo, 0, len(items))
	for _, item := range items {
		sig := SignatureInfo{
			Signature: item.Get("signature").String(),
			Slot:      item.Get("slot").Int(),
		}
		if bt := item.Get("blockTime"); bt.Type == gjson.Number {
			ts := bt.Int()
			sig.BlockTime = &ts
		}
		if e := item.Get("err"); e.Exists() && e.Type != gjson.Null {
			sig.Err = e.Value()
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

// GetAccountInfo returns base64 account data, or nil when the account does not exist.
func (c *HTTPClient) GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error) {
	result, err := c.call(ctx, "getAccountInfo", pubkey, map[string]any{"encoding": "base64"})
	if err != nil {
		return nil, err
	}

	v := result.Get("value")
	if !v.Exists() || v.Type == gjson.Null {
		return nil, nil
	}
	return &AccountInfo{
		Lamports:   v.Get("lamports").Uint(),
		Owner:      v.Get("owner").String(),
		Data:       v.Get("data.0").String(),
		Executable: v.Get("executable").Bool(),
		RentEpoch:  v.Get("rentEpoch").Uint(),
	}, nil
}

// GetTokenSupply retrieves the supply of an SPL token mint.
func (c *HTTPClient) GetTokenSupply(ctx context.Context, mint string) (*TokenSupply, error) {
	result, err := c.call(ctx, "getTokenSupply", mint)
	if err != nil {
		return nil, err
	}

	v := result.Get("value")
	if !v.Exists() || v.Type == gjson.Null {
		return nil, fmt.Errorf("token supply for %s: empty result", mint)
	}
	supply := &TokenSupply{
		Amount:   v.Get("amount").String(),
		Decimals: uint8(v.Get("decimals").Uint()),
	}

	if s := v.Get("uiAmountString").String(); s != "" {
		if supply.UIAmount, err = decimal.NewFromString(s); err != nil {
			return nil, fmt.Errorf("parse ui supply %q: %w", s, err)
		}
		return supply, nil
	}

	// uiAmountString is missing on older nodes.
	raw, err := decimal.NewFromString(supply.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse token supply %q: %w", supply.Amount, err)
	}
	supply.UIAmount = raw.Shift(-int32(supply.Decimals))
	return supply, nil
}

var _ RPCClient = (*HTTPClient)(nil)
