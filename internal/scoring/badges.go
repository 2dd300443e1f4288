package scoring

import (
	"context"

	"github.com/shopspring/decimal"

	"alpha-finder/internal/domain"
)

// WhaleBuyNotional is the single-buy USD notional that earns "whale buyer".
var WhaleBuyNotional = decimal.NewFromInt(5000)

// LegendaryParticipations is the participation count that earns "legendary buyer".
const LegendaryParticipations = 10

// StateChecker answers the wallet-state questions behind the last two badges.
// Implementations are best-effort and return false on any failure.
type StateChecker interface {
	IsDeadWallet(ctx context.Context, address string) bool
	IsComebackTrader(ctx context.Context, address string) bool
}

// RuleInput is what a badge predicate sees.
type RuleInput struct {
	Wallet            *domain.Wallet
	GlobalRunnerCount int
	Checker           StateChecker // may be nil
}

// Ratio returns participations / global runner count × 100. ok is false
// when there are no runner tokens.
func (in RuleInput) Ratio() (ratio decimal.Decimal, ok bool) {
	if in.GlobalRunnerCount <= 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromInt(int64(len(in.Wallet.Runners))).
		Div(decimal.NewFromInt(int64(in.GlobalRunnerCount))).
		Mul(hundred), true
}

// Rule is one (predicate, badge) pair of the cascade.
type Rule struct {
	Badge   domain.Badge
	Match   func(ctx context.Context, in RuleInput) bool
	Removes []domain.Badge // previously-held badges dropped when this rule fires
}

// DefaultRules returns the badge cascade in evaluation order.
func DefaultRules() []Rule {
	clearsOneHit := []domain.Badge{domain.BadgeOneHitWonder}

	return []Rule{
		{
			Badge:   domain.BadgeLegendaryBuyer,
			Removes: clearsOneHit,
			Match: func(_ context.Context, in RuleInput) bool {
				return len(in.Wallet.Runners) >= LegendaryParticipations
			},
		},
		{
			Badge:   domain.BadgePotentialAlpha,
			Removes: clearsOneHit,
			Match: func(_ context.Context, in RuleInput) bool {
				r, ok := in.Ratio()
				return ok && r.GreaterThanOrEqual(decimal.NewFromInt(20))
			},
		},
		{
			Badge:   domain.BadgeHighConviction,
			Removes: clearsOneHit,
			Match: func(_ context.Context, in RuleInput) bool {
				for i := range in.Wallet.Runners {
					if in.Wallet.Runners[i].SoldAfterMilestone() {
						return true
					}
				}
				return false
			},
		},
		{
			Badge:   domain.BadgeMidTrader,
			Removes: clearsOneHit,
			Match: func(_ context.Context, in RuleInput) bool {
				r, ok := in.Ratio()
				return ok && r.GreaterThanOrEqual(decimal.NewFromInt(10)) && r.LessThanOrEqual(decimal.NewFromInt(20))
			},
		},
		{
			Badge:   domain.BadgeDegenSprayer,
			Removes: clearsOneHit,
			Match: func(_ context.Context, in RuleInput) bool {
				r, ok := in.Ratio()
				return ok && r.LessThanOrEqual(decimal.NewFromInt(10))
			},
		},
		{
			Badge: domain.BadgeOneHitWonder,
			Match: func(_ context.Context, in RuleInput) bool {
				return len(in.Wallet.Runners) == 1
			},
		},
		{
			Badge:   domain.BadgeDiamondHands,
			Removes: clearsOneHit,
			Match: func(_ context.Context, in RuleInput) bool {
				held := 0
				for i := range in.Wallet.Runners {
					if heldPastMilestone(&in.Wallet.Runners[i]) {
						held++
					}
				}
				return held >= 2
			},
		},
		{
			Badge: domain.BadgeWhaleBuyer,
			Match: func(_ context.Context, in RuleInput) bool {
				for i := range in.Wallet.Runners {
					for _, tx := range in.Wallet.Runners[i].Transactions.Buys {
						if tx.Notional().GreaterThanOrEqual(WhaleBuyNotional) {
							return true
						}
					}
				}
				return false
			},
		},
		{
			Badge: domain.BadgeDeadWallet,
			Match: func(ctx context.Context, in RuleInput) bool {
				return in.Checker != nil && in.Checker.IsDeadWallet(ctx, in.Wallet.Address)
			},
		},
		{
			Badge:   domain.BadgeComebackTrader,
			Removes: []domain.Badge{domain.BadgeDeadWallet},
			Match: func(ctx context.Context, in RuleInput) bool {
				return in.Checker != nil && in.Checker.IsComebackTrader(ctx, in.Wallet.Address)
			},
		},
	}
}

// heldPastMilestone reports whether the position was still open when the
// milestone hit: it has buys and no sell at or before the milestone.
func heldPastMilestone(p *domain.RunnerParticipation) bool {
	if len(p.Transactions.Buys) == 0 {
		return false
	}
	for _, tx := range p.Transactions.Sells {
		if tx.Timestamp <= p.MillionTimestamp {
			return false
		}
	}
	return true
}

// BadgeEngine evaluates an ordered rule cascade; the first matching rule wins.
type BadgeEngine struct {
	rules   []Rule
	checker StateChecker
}

// NewBadgeEngine creates an engine with DefaultRules. checker may be nil, in
// which case the wallet-state badges never fire.
func NewBadgeEngine(checker StateChecker) *BadgeEngine {
	return &BadgeEngine{rules: DefaultRules(), checker: checker}
}

// NewBadgeEngineWithRules creates an engine with a custom cascade.
func NewBadgeEngineWithRules(rules []Rule, checker StateChecker) *BadgeEngine {
	return &BadgeEngine{rules: rules, checker: checker}
}

// Assign runs the cascade for w, adds the winning badge, applies its removals
// and normalizes the badge set. Returns the assigned badge, or false when no
// rule matched. Rules after the first match are not evaluated, so the
// wallet-state checks only run for wallets that fall through.
func (e *BadgeEngine) Assign(ctx context.Context, w *domain.Wallet, globalRunnerCount int) (domain.Badge, bool) {
	in := RuleInput{Wallet: w, GlobalRunnerCount: globalRunnerCount, Checker: e.checker}

	defer w.NormalizeBadges()
	for _, rule := range e.rules {
		if !rule.Match(ctx, in) {
			continue
		}
		for _, b := range rule.Removes {
			w.RemoveBadge(b)
		}
		w.AddBadge(rule.Badge)
		return rule.Badge, true
	}
	return "", false
}
