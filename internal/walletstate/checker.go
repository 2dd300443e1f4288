package walletstate

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"alpha-finder/internal/observability"
	"alpha-finder/internal/scoring"
)

// Check parameters.
const (
	InactiveAfter      = 30 * 24 * time.Hour
	ComebackWindow     = 100 // activities inspected by the comeback check
	ComebackMinStale   = 50  // stale activities required within the window
	DefaultRatePerSec  = 10
	DefaultBurst       = 5
	DefaultTripAfter   = 5
	DefaultOpenTimeout = 30 * time.Second
)

// Options configures a Checker.
type Options struct {
	Provider    ActivityProvider
	RatePerSec  float64       // activity requests per second, 0 uses DefaultRatePerSec
	Burst       int           // 0 uses DefaultBurst
	TripAfter   uint32        // consecutive failures that open the breaker, 0 uses DefaultTripAfter
	OpenTimeout time.Duration // how long the breaker stays open, 0 uses DefaultOpenTimeout
	Logger      zerolog.Logger
	Clock       func() time.Time // nil uses time.Now
}

// Checker implements scoring.StateChecker over an ActivityProvider.
// Calls are rate limited and guarded by a circuit breaker; any failure
// evaluates the check to false.
type Checker struct {
	provider ActivityProvider
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	logger   zerolog.Logger
	clock    func() time.Time
}

// NewChecker creates a Checker.
func NewChecker(opts Options) *Checker {
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = DefaultRatePerSec
	}
	if opts.Burst <= 0 {
		opts.Burst = DefaultBurst
	}
	if opts.TripAfter == 0 {
		opts.TripAfter = DefaultTripAfter
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = DefaultOpenTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	logger := opts.Logger.With().Str("component", "walletstate").Logger()
	tripAfter := opts.TripAfter
	st := gobreaker.Settings{
		Name:    "wallet-activity",
		Timeout: opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= tripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit state changed")
		},
	}

	return &Checker{
		provider: opts.Provider,
		limiter:  rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.Burst),
		breaker:  gobreaker.NewCircuitBreaker(st),
		logger:   logger,
		clock:    opts.Clock,
	}
}

// IsDeadWallet reports whether the wallet's most recent activity is older than 30 days.
func (c *Checker) IsDeadWallet(ctx context.Context, address string) bool {
	acts, ok := c.fetch(ctx, "dead", address, 1)
	if !ok {
		return false
	}
	if len(acts) == 0 {
		return c.record("dead", false)
	}
	cutoff := c.clock().Add(-InactiveAfter).Unix()
	return c.record("dead", acts[0].Timestamp < cutoff)
}

// IsComebackTrader reports whether at least 50 of the wallet's last 100
// activities are older than 30 days.
func (c *Checker) IsComebackTrader(ctx context.Context, address string) bool {
	acts, ok := c.fetch(ctx, "comeback", address, ComebackWindow)
	if !ok {
		return false
	}
	if len(acts) == 0 {
		return c.record("comeback", false)
	}
	cutoff := c.clock().Add(-InactiveAfter).Unix()
	stale := 0
	for _, a := range acts {
		if a.Timestamp < cutoff {
			stale++
		}
	}
	return c.record("comeback", stale >= ComebackMinStale)
}

func (c *Checker) fetch(ctx context.Context, check, address string, limit int) ([]Activity, bool) {
	if c.provider == nil {
		return nil, false
	}
	if err := c.limiter.Wait(ctx); err != nil {
		c.fail(check, address, err)
		return nil, false
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.provider.Activity(ctx, address, limit)
	})
	if err != nil {
		c.fail(check, address, err)
		return nil, false
	}
	return res.([]Activity), true
}

func (c *Checker) fail(check, address string, err error) {
	observability.RecordWalletStateCheck(check, "error")
	c.logger.Warn().Err(err).Str("check", check).Str("wallet", address).Msg("wallet-state check failed")
}

func (c *Checker) record(check string, result bool) bool {
	if result {
		observability.RecordWalletStateCheck(check, "true")
	} else {
		observability.RecordWalletStateCheck(check, "false")
	}
	return result
}

var _ scoring.StateChecker = (*Checker)(nil)
