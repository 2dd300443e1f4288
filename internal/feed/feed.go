// Package feed is the market-data client that supplies swap transactions and
// price history for runner tokens.
package feed

import (
	"context"
	"errors"

	"alpha-finder/internal/domain"
)

// Sentinel errors.
var (
	// ErrRateLimited is returned when the provider answers 429 on every attempt.
	ErrRateLimited = errors.New("feed: rate limited")
	// ErrMalformed is returned when a response cannot be parsed.
	ErrMalformed = errors.New("feed: malformed response")
	// ErrTruncated is returned when the provider still reports more pages
	// after the page cap was reached.
	ErrTruncated = errors.New("feed: transaction history truncated")
)

// TransactionFeed supplies the swap transactions of a token, oldest first.
type TransactionFeed interface {
	Transactions(ctx context.Context, token string) ([]domain.FeedTransaction, error)
}

// PriceHistoryProvider supplies a token's price series within [from, to], oldest first.
type PriceHistoryProvider interface {
	PriceHistory(ctx context.Context, token string, from, to int64) ([]domain.PricePoint, error)
}
