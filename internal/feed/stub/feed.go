// Package stub provides in-memory feed implementations for tests and dry runs.
package stub

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"alpha-finder/internal/domain"
	"alpha-finder/internal/feed"
)

// Feed implements feed.TransactionFeed and feed.PriceHistoryProvider from maps.
type Feed struct {
	mu     sync.Mutex
	Txs    map[string][]domain.FeedTransaction
	Prices map[string][]domain.PricePoint
	Errors map[string]error // keyed by token, returned by every call
	Calls  int
}

// NewFeed creates an empty stub feed.
func NewFeed() *Feed {
	return &Feed{
		Txs:    make(map[string][]domain.FeedTransaction),
		Prices: make(map[string][]domain.PricePoint),
		Errors: make(map[string]error),
	}
}

// Transactions returns the stored transactions sorted by timestamp.
func (f *Feed) Transactions(_ context.Context, token string) ([]domain.FeedTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++

	if err := f.Errors[token]; err != nil {
		return nil, err
	}
	out := append([]domain.FeedTransaction(nil), f.Txs[token]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

// PriceHistory returns stored points within [from, to].
func (f *Feed) PriceHistory(_ context.Context, token string, from, to int64) ([]domain.PricePoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++

	if err := f.Errors[token]; err != nil {
		return nil, err
	}
	series, ok := f.Prices[token]
	if !ok {
		return nil, fmt.Errorf("price history for %s: not found", token)
	}
	var out []domain.PricePoint
	for _, p := range series {
		if p.UnixTime >= from && p.UnixTime <= to {
			out = append(out, p)
		}
	}
	return out, nil
}

var (
	_ feed.TransactionFeed      = (*Feed)(nil)
	_ feed.PriceHistoryProvider = (*Feed)(nil)
)
