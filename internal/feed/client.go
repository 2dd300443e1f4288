package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"alpha-finder/internal/domain"
	"alpha-finder/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout    = 20 * time.Second
	DefaultPageSize   = 50
	DefaultMaxPages   = 200
	DefaultRatePerSec = 5
	DefaultMaxRetries = 3
	DefaultRetryDelay = 500 * time.Millisecond
	DefaultInterval   = "1m"
	APIKeyHeader      = "X-API-KEY"
	ChainHeader       = "x-chain"
)

// Client implements TransactionFeed and PriceHistoryProvider over a
// Birdeye-compatible HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	limiter    *rate.Limiter
	pageSize   int
	maxPages   int
	maxRetries int
	retryDelay time.Duration
	interval   string
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.client = hc }
}

// WithRateLimit sets requests per second and burst.
func WithRateLimit(perSec float64, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSec), burst) }
}

// WithPageSize sets transactions per page.
func WithPageSize(n int) ClientOption {
	return func(c *Client) { c.pageSize = n }
}

// WithMaxPages caps pagination per token.
func WithMaxPages(n int) ClientOption {
	return func(c *Client) { c.maxPages = n }
}

// WithRetries sets retry attempts on 429/5xx and the delay between them.
func WithRetries(n int, delay time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
		c.retryDelay = delay
	}
}

// WithInterval sets the price history candle interval (e.g. "1m", "5m").
func WithInterval(interval string) ClientOption {
	return func(c *Client) { c.interval = interval }
}

// NewClient creates a market-data client.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		client:     &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRatePerSec), DefaultRatePerSec),
		pageSize:   DefaultPageSize,
		maxPages:   DefaultMaxPages,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		interval:   DefaultInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transactions pages through the token's swap history, oldest first, and
// returns it sorted by timestamp ascending. Swaps whose legs do not involve
// the token are skipped. A history longer than the page cap fails with
// ErrTruncated rather than returning a partial set.
func (c *Client) Transactions(ctx context.Context, token string) ([]domain.FeedTransaction, error) {
	var out []domain.FeedTransaction

	for page := 0; ; page++ {
		if page >= c.maxPages {
			return nil, fmt.Errorf("transactions %s: more than %d pages of %d: %w", token, c.maxPages, c.pageSize, ErrTruncated)
		}

		q := url.Values{}
		q.Set("address", token)
		q.Set("tx_type", "swap")
		q.Set("sort_type", "asc")
		q.Set("offset", strconv.Itoa(page*c.pageSize))
		q.Set("limit", strconv.Itoa(c.pageSize))

		body, err := c.get(ctx, "/defi/txs/token", q)
		if err != nil {
			return nil, fmt.Errorf("fetch transactions %s: %w", token, err)
		}

		items := body.Get("data.items").Array()
		for _, item := range items {
			tx, ok, err := parseSwap(token, item)
			if err != nil {
				return nil, fmt.Errorf("parse transaction %s: %w", token, err)
			}
			if ok {
				out = append(out, tx)
			}
		}

		if !body.Get("data.hasNext").Bool() || len(items) == 0 {
			break
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

// PriceHistory returns the token's price series in [from, to].
func (c *Client) PriceHistory(ctx context.Context, token string, from, to int64) ([]domain.PricePoint, error) {
	q := url.Values{}
	q.Set("address", token)
	q.Set("address_type", "token")
	q.Set("type", c.interval)
	q.Set("time_from", strconv.FormatInt(from, 10))
	q.Set("time_to", strconv.FormatInt(to, 10))

	body, err := c.get(ctx, "/defi/history_price", q)
	if err != nil {
		return nil, fmt.Errorf("fetch price history %s: %w", token, err)
	}

	items := body.Get("data.items").Array()
	out := make([]domain.PricePoint, 0, len(items))
	for _, item := range items {
		ts := item.Get("unixTime")
		if !ts.Exists() {
			return nil, fmt.Errorf("price point without unixTime: %w", ErrMalformed)
		}
		v, err := parseDecimal(item.Get("value"))
		if err != nil {
			return nil, fmt.Errorf("price point value: %w", err)
		}
		out = append(out, domain.PricePoint{UnixTime: ts.Int(), Value: v})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].UnixTime < out[j].UnixTime })
	return out, nil
}

// get performs a rate-limited GET, retrying 429 and 5xx responses.
func (c *Client) get(ctx context.Context, path string, q url.Values) (gjson.Result, error) {
	start := time.Now()
	defer func() {
		observability.RecordFeedLatency(path, time.Since(start).Seconds())
	}()

	endpoint := c.baseURL + path + "?" + q.Encode()
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return gjson.Result{}, ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return gjson.Result{}, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set(ChainHeader, "solana")
		if c.apiKey != "" {
			req.Header.Set(APIKeyHeader, c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}
		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = ErrRateLimited
			continue
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("unexpected status %d", resp.StatusCode)
			continue
		case resp.StatusCode != http.StatusOK:
			return gjson.Result{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(raw))
		}

		if !gjson.ValidBytes(raw) {
			return gjson.Result{}, fmt.Errorf("invalid json: %w", ErrMalformed)
		}
		body := gjson.ParseBytes(raw)
		if !body.Get("success").Bool() {
			return gjson.Result{}, fmt.Errorf("provider reported failure %q: %w", body.Get("message").String(), ErrMalformed)
		}
		return body, nil
	}

	return gjson.Result{}, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// parseSwap converts one swap item. The token leg is whichever of from/to
// carries the token address; ok is false when neither does.
func parseSwap(token string, item gjson.Result) (domain.FeedTransaction, bool, error) {
	var leg gjson.Result
	switch token {
	case item.Get("to.address").String():
		leg = item.Get("to")
	case item.Get("from.address").String():
		leg = item.Get("from")
	default:
		return domain.FeedTransaction{}, false, nil
	}

	side := domain.Side(item.Get("side").String())
	if !side.IsValid() {
		return domain.FeedTransaction{}, false, nil
	}

	owner := item.Get("owner").String()
	if owner == "" {
		return domain.FeedTransaction{}, false, fmt.Errorf("swap %s without owner: %w", item.Get("txHash").String(), ErrMalformed)
	}

	amount, err := parseDecimal(leg.Get("uiAmount"))
	if err != nil {
		return domain.FeedTransaction{}, false, fmt.Errorf("amount: %w", err)
	}
	price, err := parseDecimal(leg.Get("price"))
	if err != nil {
		return domain.FeedTransaction{}, false, fmt.Errorf("price: %w", err)
	}

	return domain.FeedTransaction{
		Owner:     owner,
		Signature: item.Get("txHash").String(),
		Side:      side,
		Amount:    amount.Abs(),
		Price:     price.Abs(),
		Timestamp: item.Get("blockUnixTime").Int(),
	}, true, nil
}

// parseDecimal reads a JSON number or numeric string without going through float64.
func parseDecimal(r gjson.Result) (decimal.Decimal, error) {
	switch r.Type {
	case gjson.Number:
		return decimal.NewFromString(r.Raw)
	case gjson.String:
		return decimal.NewFromString(r.Str)
	case gjson.Null:
		return decimal.Zero, nil
	default:
		return decimal.Zero, fmt.Errorf("not a number %q: %w", r.Raw, ErrMalformed)
	}
}

var (
	_ TransactionFeed      = (*Client)(nil)
	_ PriceHistoryProvider = (*Client)(nil)
)
