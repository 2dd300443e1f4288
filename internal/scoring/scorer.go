package scoring

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"alpha-finder/internal/domain"
	"alpha-finder/internal/observability"
)

// Options configures a Scorer.
type Options struct {
	Checker StateChecker // wallet-state checks, may be nil
	Rules   []Rule       // nil uses DefaultRules
	Logger  zerolog.Logger
	Clock   func() time.Time // nil uses time.Now
}

// Scorer scores a wallet end to end: pending participations, aggregate,
// PnL and badge.
type Scorer struct {
	engine *BadgeEngine
	logger zerolog.Logger
	clock  func() time.Time
}

// NewScorer creates a Scorer.
func NewScorer(opts Options) *Scorer {
	rules := opts.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Scorer{
		engine: NewBadgeEngineWithRules(rules, opts.Checker),
		logger: opts.Logger.With().Str("component", "scorer").Logger(),
		clock:  clock,
	}
}

// WalletResult describes what ScoreWallet did.
type WalletResult struct {
	Aggregate           Aggregate
	Badge               domain.Badge // empty when no rule matched
	NewlyScored         int
	ParticipationErrors []error
}

// ScoreWallet mutates w in place: scores every unscored participation,
// recomputes confidence score and PnL, and runs the badge cascade.
// Participations that fail to score are skipped and reported.
func (s *Scorer) ScoreWallet(ctx context.Context, w *domain.Wallet, globalRunnerCount int) WalletResult {
	now := s.clock()
	var res WalletResult

	for i := range w.Runners {
		p := &w.Runners[i]
		if p.Scored {
			continue
		}
		err := ScoreParticipation(p, now)
		observability.RecordParticipationScored(err)
		if err != nil {
			s.logger.Warn().Err(err).
				Str("wallet", w.Address).
				Str("token", p.Address).
				Msg("participation skipped")
			res.ParticipationErrors = append(res.ParticipationErrors, err)
			continue
		}
		res.NewlyScored++
	}

	res.Aggregate = ComputeAggregate(w, now)
	w.ConfidenceScore = res.Aggregate.Confidence
	w.PnL = WalletPnL(w)

	if badge, ok := s.engine.Assign(ctx, w, globalRunnerCount); ok {
		res.Badge = badge
	}
	w.UpdatedAt = now.Unix()

	observability.RecordWalletScored()
	s.logger.Debug().
		Str("wallet", w.Address).
		Str("confidence", w.ConfidenceScore.StringFixed(4)).
		Str("badge", string(res.Badge)).
		Int("participations", len(w.Runners)).
		Msg("wallet scored")

	return res
}
