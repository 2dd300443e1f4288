// Package scoring computes participation scores, wallet confidence scores
// and behavioral badges.
package scoring

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"alpha-finder/internal/domain"
)

// Computation errors. A participation that fails with one of these is left unscored.
var (
	ErrNoBuys               = errors.New("participation has no buys")
	ErrInvalidATH           = errors.New("ath price must be positive")
	ErrInvalidHoldingWindow = errors.New("earliest buy is not before the milestone")
	ErrNoBuyVolume          = errors.New("total bought amount is zero")
)

// RecentBuyWindow is how recent the last buy of an unsold position must be
// to earn the higher conviction bonus.
const RecentBuyWindow = 90 * 24 * time.Hour

var (
	hundred = decimal.NewFromInt(100)

	pointsTiers = []tier{
		{min: decimal.NewFromInt(75), value: decimal.NewFromInt(5)},
		{min: decimal.NewFromInt(50), value: decimal.NewFromInt(4)},
		{min: decimal.NewFromInt(25), value: decimal.NewFromInt(3)},
	}
	pointsFloor = decimal.NewFromInt(2)

	holdingTiers = []tier{
		{min: decimal.NewFromInt(5), value: decimal.NewFromFloat(1.5)},
		{min: decimal.NewFromInt(2), value: decimal.NewFromFloat(1.2)},
		{min: decimal.NewFromInt(1), value: decimal.NewFromInt(1)},
	}
	holdingFloor = decimal.NewFromFloat(0.7)

	convictionTiers = []tier{
		{min: decimal.NewFromInt(2), value: decimal.NewFromFloat(1.2)},
		{min: decimal.NewFromInt(1), value: decimal.NewFromInt(1)},
	}
	convictionFloor = decimal.NewFromFloat(0.8)

	convictionHeldRecent = decimal.NewFromFloat(1.5)
	convictionHeldStale  = decimal.NewFromFloat(1.2)

	penaltyUnder25 = decimal.NewFromFloat(0.40)
	penaltyUnder50 = decimal.NewFromFloat(0.30)
)

// tier maps a lower bound (inclusive) to a value.
type tier struct {
	min   decimal.Decimal
	value decimal.Decimal
}

func lookup(tiers []tier, floor, x decimal.Decimal) decimal.Decimal {
	for _, t := range tiers {
		if x.GreaterThanOrEqual(t.min) {
			return t.value
		}
	}
	return floor
}

// Breakdown holds the factors of a participation score.
type Breakdown struct {
	MaxDiscount decimal.Decimal // percent below ATH of the cheapest buy
	Points      decimal.Decimal
	BestRatio   decimal.Decimal // zero when there are no sells
	Holding     decimal.Decimal
	Conviction  decimal.Decimal
	SoldPct     decimal.Decimal // zero when there are no sells
	Penalty     decimal.Decimal
	Score       decimal.Decimal
}

// ScoreParticipation scores p once and marks it scored. Scored participations
// are left untouched. On error p is not modified.
func ScoreParticipation(p *domain.RunnerParticipation, now time.Time) error {
	if p.Scored {
		return nil
	}

	b, err := Compute(p, now)
	if err != nil {
		return err
	}

	score := b.Score
	p.Score = &score
	p.Scored = true
	return nil
}

// Compute evaluates the score factors of p without modifying it.
func Compute(p *domain.RunnerParticipation, now time.Time) (Breakdown, error) {
	var b Breakdown

	buys, sells := p.Transactions.Buys, p.Transactions.Sells
	if len(buys) == 0 {
		return b, fmt.Errorf("score %s: %w", p.Address, ErrNoBuys)
	}
	if !p.ATHPrice.IsPositive() {
		return b, fmt.Errorf("score %s: %w", p.Address, ErrInvalidATH)
	}

	b.MaxDiscount = maxDiscount(buys, p.ATHPrice)
	b.Points = lookup(pointsTiers, pointsFloor, b.MaxDiscount)

	earliest, latest := buyBounds(buys)

	if len(sells) == 0 {
		b.Holding = decimal.NewFromInt(1)
		if now.Sub(time.Unix(latest, 0)) <= RecentBuyWindow {
			b.Conviction = convictionHeldRecent
		} else {
			b.Conviction = convictionHeldStale
		}
		b.Penalty = decimal.Zero
	} else {
		window := p.MillionTimestamp - earliest
		if window <= 0 {
			return b, fmt.Errorf("score %s: %w", p.Address, ErrInvalidHoldingWindow)
		}
		b.BestRatio = bestRatio(sells, earliest, window)
		b.Holding = lookup(holdingTiers, holdingFloor, b.BestRatio)
		b.Conviction = lookup(convictionTiers, convictionFloor, b.BestRatio)

		bought := sumAmount(buys)
		if !bought.IsPositive() {
			return b, fmt.Errorf("score %s: %w", p.Address, ErrNoBuyVolume)
		}
		b.SoldPct = sumAmount(sells).Div(bought).Mul(hundred)
		b.Penalty = earlyExitPenalty(b.SoldPct)
	}

	b.Score = b.Points.Mul(b.Holding).Mul(b.Conviction).Mul(decimal.NewFromInt(1).Sub(b.Penalty))
	return b, nil
}

func maxDiscount(buys []domain.Transaction, ath decimal.Decimal) decimal.Decimal {
	var best decimal.Decimal
	for i, tx := range buys {
		d := ath.Sub(tx.Price).Div(ath).Mul(hundred)
		if i == 0 || d.GreaterThan(best) {
			best = d
		}
	}
	return best
}

func buyBounds(buys []domain.Transaction) (earliest, latest int64) {
	earliest, latest = buys[0].Timestamp, buys[0].Timestamp
	for _, tx := range buys[1:] {
		if tx.Timestamp < earliest {
			earliest = tx.Timestamp
		}
		if tx.Timestamp > latest {
			latest = tx.Timestamp
		}
	}
	return earliest, latest
}

func bestRatio(sells []domain.Transaction, earliest, window int64) decimal.Decimal {
	w := decimal.NewFromInt(window)
	var best decimal.Decimal
	for i, tx := range sells {
		r := decimal.NewFromInt(tx.Timestamp - earliest).Div(w)
		if i == 0 || r.GreaterThan(best) {
			best = r
		}
	}
	return best
}

func earlyExitPenalty(soldPct decimal.Decimal) decimal.Decimal {
	switch {
	case soldPct.LessThan(decimal.NewFromInt(25)):
		return penaltyUnder25
	case soldPct.LessThan(decimal.NewFromInt(50)):
		return penaltyUnder50
	default:
		return decimal.Zero
	}
}

func sumAmount(txs []domain.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Amount)
	}
	return total
}
