package scoring

import (
	"time"

	"github.com/shopspring/decimal"

	"alpha-finder/internal/domain"
)

// Decay starts after InactivityGrace and grows per DecayPeriod by DecayRate of the score sum.
const (
	InactivityGrace = 30 * 24 * time.Hour
	DecayPeriod     = 7 * 24 * time.Hour
)

var (
	// DecayRate is the fraction of the score sum lost per inactive week.
	DecayRate = decimal.NewFromFloat(0.02)

	multiplierTiers = []tier{
		{min: decimal.NewFromInt(50), value: decimal.NewFromFloat(1.5)},
		{min: decimal.NewFromInt(20), value: decimal.NewFromFloat(1.2)},
		{min: decimal.NewFromInt(10), value: decimal.NewFromInt(1)},
	}
	multiplierFloor = decimal.NewFromFloat(0.5)
)

// Aggregate is the wallet-level score for one run.
type Aggregate struct {
	Sum           decimal.Decimal // sum of participation scores, unscored count as 0
	Successes     int
	SuccessRate   decimal.Decimal // percent
	Multiplier    decimal.Decimal
	LastActivity  int64 // unix seconds, 0 when the wallet has no transactions
	WeeksInactive int64
	Decay         decimal.Decimal
	Confidence    decimal.Decimal
}

// ComputeAggregate computes the confidence score of w at now.
func ComputeAggregate(w *domain.Wallet, now time.Time) Aggregate {
	agg := Aggregate{Sum: decimal.Zero, SuccessRate: decimal.Zero, Decay: decimal.Zero}
	nowUnix := now.Unix()

	for i := range w.Runners {
		p := &w.Runners[i]
		if p.Score != nil {
			agg.Sum = agg.Sum.Add(*p.Score)
		}
		if isSuccessful(p, nowUnix) {
			agg.Successes++
		}
		if last := p.LastActivity(); last > agg.LastActivity {
			agg.LastActivity = last
		}
	}

	if n := len(w.Runners); n > 0 {
		agg.SuccessRate = decimal.NewFromInt(int64(agg.Successes)).
			Div(decimal.NewFromInt(int64(n))).
			Mul(hundred)
	}
	agg.Multiplier = lookup(multiplierTiers, multiplierFloor, agg.SuccessRate)

	if agg.LastActivity > 0 {
		inactive := now.Sub(time.Unix(agg.LastActivity, 0))
		if inactive > InactivityGrace {
			agg.WeeksInactive = int64((inactive - InactivityGrace) / DecayPeriod)
			agg.Decay = agg.Sum.Mul(decimal.NewFromInt(agg.WeeksInactive)).Mul(DecayRate)
		}
	}

	agg.Confidence = agg.Sum.Mul(agg.Multiplier).Sub(agg.Decay)
	return agg
}

// isSuccessful reports whether p sold after its milestone, or never sold
// and the milestone is already in the past.
func isSuccessful(p *domain.RunnerParticipation, now int64) bool {
	if len(p.Transactions.Sells) == 0 {
		return now > p.MillionTimestamp
	}
	return p.SoldAfterMilestone()
}

// ParticipationPnL returns sell proceeds minus buy cost for p.
func ParticipationPnL(p *domain.RunnerParticipation) decimal.Decimal {
	pnl := decimal.Zero
	for _, tx := range p.Transactions.Sells {
		pnl = pnl.Add(tx.Notional())
	}
	for _, tx := range p.Transactions.Buys {
		pnl = pnl.Sub(tx.Notional())
	}
	return pnl
}

// WalletPnL sums ParticipationPnL over all participations.
func WalletPnL(w *domain.Wallet) decimal.Decimal {
	pnl := decimal.Zero
	for i := range w.Runners {
		pnl = pnl.Add(ParticipationPnL(&w.Runners[i]))
	}
	return pnl
}

// Bot heuristic thresholds.
const (
	botBuysPerToken = 15
	botShare        = 0.70
)

// IsLikelyBot reports whether more than 70% of the wallet's participations
// have more than 15 buys.
func IsLikelyBot(w *domain.Wallet) bool {
	if len(w.Runners) == 0 {
		return false
	}
	heavy := 0
	for i := range w.Runners {
		if len(w.Runners[i].Transactions.Buys) > botBuysPerToken {
			heavy++
		}
	}
	return float64(heavy)/float64(len(w.Runners)) > botShare
}
