package cohort

import (
	"sort"

	"github.com/shopspring/decimal"

	"alpha-finder/internal/domain"
)

// SandwichConfig tunes DetectSandwich.
type SandwichConfig struct {
	Window    int64           // max seconds between the opening buy and closing sell
	Tolerance decimal.Decimal // max relative notional difference, e.g. 0.1 for 10%
}

// DefaultSandwichConfig returns a 30 second window with 10% tolerance.
func DefaultSandwichConfig() SandwichConfig {
	return SandwichConfig{Window: 30, Tolerance: decimal.NewFromFloat(0.1)}
}

// DetectSandwich returns owners that buy and then sell a comparable notional
// within the configured window, sorted by address.
//
// Cleanup does not apply it.
func DetectSandwich(txs []domain.FeedTransaction, cfg SandwichConfig) []string {
	byOwner := make(map[string][]domain.FeedTransaction)
	for _, tx := range txs {
		byOwner[tx.Owner] = append(byOwner[tx.Owner], tx)
	}

	var flagged []string
	for owner, list := range byOwner {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Timestamp < list[j].Timestamp })
		if hasSandwichPair(list, cfg) {
			flagged = append(flagged, owner)
		}
	}
	sort.Strings(flagged)
	return flagged
}

func hasSandwichPair(list []domain.FeedTransaction, cfg SandwichConfig) bool {
	for i, open := range list {
		if open.Side != domain.SideBuy {
			continue
		}
		buyNotional := open.Amount.Mul(open.Price)
		if buyNotional.IsZero() {
			continue
		}
		for _, closing := range list[i+1:] {
			if closing.Timestamp-open.Timestamp > cfg.Window {
				break
			}
			if closing.Side != domain.SideSell {
				continue
			}
			diff := closing.Amount.Mul(closing.Price).Sub(buyNotional).Abs()
			if diff.Div(buyNotional).LessThanOrEqual(cfg.Tolerance) {
				return true
			}
		}
	}
	return false
}
