// Package milestone locates market-cap threshold crossings in a price series.
package milestone

import (
	"github.com/shopspring/decimal"

	"alpha-finder/internal/domain"
)

// Default market-cap thresholds in USD.
var (
	DefaultLow    = decimal.NewFromInt(200_000)
	DefaultHigh   = decimal.NewFromInt(500_000)
	DefaultRunner = decimal.NewFromInt(1_000_000)
	TwoMillion    = decimal.NewFromInt(2_000_000)
	FiveMillion   = decimal.NewFromInt(5_000_000)
)

// Thresholds configures the early/late market-cap levels.
type Thresholds struct {
	Low  decimal.Decimal
	High decimal.Decimal
}

// DefaultThresholds returns the 200k / 500k thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: DefaultLow, High: DefaultHigh}
}

// Result is the outcome of a locator scan. Nil means never crossed.
type Result struct {
	Early *int64
	Late  *int64
}

// Found reports whether both milestones are present.
func (r Result) Found() bool {
	return r.Early != nil && r.Late != nil
}

// Locate scans the series once. Early is the timestamp of the last sample
// whose market cap (value × supply) is at or above th.Low, late the last one
// at or above th.High. A later qualifying sample always overwrites an earlier one.
//
// Every sample at or above th.High is also at or above th.Low, so whenever
// late is found the clamp below makes early equal to late. th.Low only
// matters for series that never reach th.High.
func Locate(series []domain.PricePoint, supply decimal.Decimal, th Thresholds) Result {
	var res Result
	for _, p := range series {
		mc := p.Value.Mul(supply)
		if mc.GreaterThanOrEqual(th.Low) {
			ts := p.UnixTime
			res.Early = &ts
		}
		if mc.GreaterThanOrEqual(th.High) {
			ts := p.UnixTime
			res.Late = &ts
		}
	}
	if res.Early != nil && res.Late != nil && *res.Early > *res.Late {
		ts := *res.Late
		res.Early = &ts
	}
	return res
}

// FirstCrossing returns the timestamp of the first sample whose market cap
// is at or above threshold, or nil.
func FirstCrossing(series []domain.PricePoint, supply, threshold decimal.Decimal) *int64 {
	for _, p := range series {
		if p.Value.Mul(supply).GreaterThanOrEqual(threshold) {
			ts := p.UnixTime
			return &ts
		}
	}
	return nil
}

// AllTimeHigh returns the highest sample of the series. ok is false for an empty series.
func AllTimeHigh(series []domain.PricePoint) (ath domain.PricePoint, ok bool) {
	for i, p := range series {
		if i == 0 || p.Value.GreaterThan(ath.Value) {
			ath = p
			ok = true
		}
	}
	return ath, ok
}
