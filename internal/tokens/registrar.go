// Package tokens registers runner tokens: mints whose price history crossed
// the runner market-cap threshold.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"alpha-finder/internal/domain"
	"alpha-finder/internal/feed"
	"alpha-finder/internal/milestone"
	"alpha-finder/internal/solana"
	"alpha-finder/internal/storage"
)

// DefaultLookback is how far back the price history is requested.
const DefaultLookback = 90 * 24 * time.Hour

// Sentinel errors.
var (
	// ErrNotRunner is returned when the ATH market cap is below the runner threshold.
	ErrNotRunner = errors.New("token is not a runner")
	// ErrNoPriceHistory is returned when the provider has no samples for the mint.
	ErrNoPriceHistory = errors.New("no price history")
)

// MetadataFetcher returns token metadata for a mint.
type MetadataFetcher interface {
	Fetch(ctx context.Context, mint string) (Metadata, error)
}

// Options for creating a Registrar.
type Options struct {
	Store      storage.RunnerTokenStore
	Supply     solana.SupplyProvider
	Prices     feed.PriceHistoryProvider
	Metadata   MetadataFetcher // optional
	Thresholds milestone.Thresholds
	Runner     decimal.Decimal // ATH market cap required, zero uses milestone.DefaultRunner
	Lookback   time.Duration
	Logger     zerolog.Logger
	Clock      func() time.Time
}

// Registrar evaluates mints and inserts the ones that qualify as runners.
type Registrar struct {
	store      storage.RunnerTokenStore
	supply     solana.SupplyProvider
	prices     feed.PriceHistoryProvider
	metadata   MetadataFetcher
	thresholds milestone.Thresholds
	runner     decimal.Decimal
	lookback   time.Duration
	logger     zerolog.Logger
	clock      func() time.Time
}

// NewRegistrar creates a Registrar.
func NewRegistrar(opts Options) *Registrar {
	if opts.Thresholds.Low.IsZero() && opts.Thresholds.High.IsZero() {
		opts.Thresholds = milestone.DefaultThresholds()
	}
	if opts.Runner.IsZero() {
		opts.Runner = milestone.DefaultRunner
	}
	if opts.Lookback <= 0 {
		opts.Lookback = DefaultLookback
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Registrar{
		store:      opts.Store,
		supply:     opts.Supply,
		prices:     opts.Prices,
		metadata:   opts.Metadata,
		thresholds: opts.Thresholds,
		runner:     opts.Runner,
		lookback:   opts.Lookback,
		logger:     opts.Logger.With().Str("component", "tokens").Logger(),
		clock:      opts.Clock,
	}
}

// Register evaluates mint and inserts it as an unchecked runner token.
// Returns storage.ErrDuplicateKey if the mint is already registered and
// ErrNotRunner if its ATH market cap is below the runner threshold.
func (r *Registrar) Register(ctx context.Context, mint string) (*domain.RunnerToken, error) {
	if err := solana.ValidateAddress(mint); err != nil {
		return nil, fmt.Errorf("register %s: %w: %v", mint, storage.ErrInvalidInput, err)
	}

	if _, err := r.store.GetByAddress(ctx, mint); err == nil {
		return nil, fmt.Errorf("register %s: %w", mint, storage.ErrDuplicateKey)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("register %s: lookup: %w", mint, err)
	}

	token, err := r.Evaluate(ctx, mint)
	if err != nil {
		return nil, err
	}

	if err := r.store.Insert(ctx, token); err != nil {
		return nil, fmt.Errorf("register %s: insert: %w", mint, err)
	}

	r.logger.Info().
		Str("token", mint).
		Str("symbol", token.Symbol).
		Str("ath_market_cap", token.ATHMarketCap.StringFixed(0)).
		Msg("runner registered")
	return token, nil
}

// Evaluate builds the RunnerToken for mint without storing it.
func (r *Registrar) Evaluate(ctx context.Context, mint string) (*domain.RunnerToken, error) {
	supply, err := r.supply.GetTokenSupply(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: supply: %w", mint, err)
	}

	now := r.clock()
	series, err := r.prices.PriceHistory(ctx, mint, now.Add(-r.lookback).Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: price history: %w", mint, err)
	}

	ath, ok := milestone.AllTimeHigh(series)
	if !ok {
		return nil, fmt.Errorf("evaluate %s: %w", mint, ErrNoPriceHistory)
	}
	athCap := ath.Value.Mul(supply.UIAmount)
	if athCap.LessThan(r.runner) {
		return nil, fmt.Errorf("evaluate %s: ath market cap %s: %w", mint, athCap.StringFixed(0), ErrNotRunner)
	}

	found := milestone.Locate(series, supply.UIAmount, r.thresholds)
	token := &domain.RunnerToken{
		Address:      mint,
		ATHPrice:     ath.Value,
		ATHMarketCap: athCap,
		TotalSupply:  supply.UIAmount,
		CreatedAt:    now.Unix(),
		Milestones: domain.Milestones{
			Early:       found.Early,
			Late:        found.Late,
			TwoMillion:  milestone.FirstCrossing(series, supply.UIAmount, milestone.TwoMillion),
			FiveMillion: milestone.FirstCrossing(series, supply.UIAmount, milestone.FiveMillion),
		},
	}
	r.applyMetadata(ctx, token)
	return token, nil
}

func (r *Registrar) applyMetadata(ctx context.Context, token *domain.RunnerToken) {
	if r.metadata != nil {
		md, err := r.metadata.Fetch(ctx, token.Address)
		switch {
		case err == nil:
			token.Name, token.Symbol, token.Logo = md.Name, md.Symbol, md.URI
		case errors.Is(err, ErrBadURI):
			token.Name, token.Symbol = md.Name, md.Symbol
			r.logger.Warn().Err(err).Str("token", token.Address).Msg("metadata uri unreadable, logo left empty")
		default:
			r.logger.Warn().Err(err).Str("token", token.Address).Msg("metadata unavailable")
		}
	}
	if token.Name == "" {
		token.Name = shortAddress(token.Address)
	}
	if token.Symbol == "" {
		token.Symbol = "UNKNOWN"
	}
}

func shortAddress(addr string) string {
	if len(addr) <= 8 {
		return addr
	}
	return addr[:4] + ".." + addr[len(addr)-4:]
}
