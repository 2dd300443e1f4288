// Package cohort reconstructs the early-buyer cohort of a runner token from
// its raw transaction feed.
package cohort

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"alpha-finder/internal/domain"
)

// MinBuyNotional is the USD buy notional below which a wallet with no sells
// is dropped as noise.
var MinBuyNotional = decimal.NewFromInt(50)

// ErrNoMilestone is returned when the token has no early or late milestone.
var ErrNoMilestone = errors.New("token has no milestone")

// Cohort is the set of early buyers of one runner token.
type Cohort struct {
	Token   domain.TokenSnapshot      // MillionTimestamp carries the late milestone
	Wallets map[string]*domain.Trades // keyed by owner address
}

// Addresses returns the cohort wallet addresses in sorted order.
func (c *Cohort) Addresses() []string {
	out := make([]string, 0, len(c.Wallets))
	for addr := range c.Wallets {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// Extract groups transactions strictly before early by owner, drops noise
// wallets, then back-fills each surviving wallet with its transactions at or
// after early.
func Extract(token *domain.RunnerToken, txs []domain.FeedTransaction, early, late *int64) (*Cohort, error) {
	if early == nil || late == nil {
		return nil, fmt.Errorf("extract cohort %s: %w", token.Address, ErrNoMilestone)
	}

	wallets := make(map[string]*domain.Trades)
	for _, tx := range txs {
		if tx.Timestamp >= *early || !tx.Side.IsValid() {
			continue
		}
		appendTx(wallets, tx)
	}

	Cleanup(wallets)

	for _, tx := range txs {
		if tx.Timestamp < *early || !tx.Side.IsValid() {
			continue
		}
		if _, ok := wallets[tx.Owner]; !ok {
			continue
		}
		appendTx(wallets, tx)
	}

	for _, trades := range wallets {
		sortByTime(trades.Buys)
		sortByTime(trades.Sells)
	}

	snap := token.Snapshot()
	snap.MillionTimestamp = *late

	return &Cohort{Token: snap, Wallets: wallets}, nil
}

// Cleanup removes wallets whose total buy notional is under MinBuyNotional
// and that have no sells. Returns the number of wallets removed.
func Cleanup(wallets map[string]*domain.Trades) int {
	removed := 0
	for addr, trades := range wallets {
		if len(trades.Sells) > 0 {
			continue
		}
		if BuyNotional(trades).LessThan(MinBuyNotional) {
			delete(wallets, addr)
			removed++
		}
	}
	return removed
}

// BuyNotional sums amount × price over the buys.
func BuyNotional(trades *domain.Trades) decimal.Decimal {
	total := decimal.Zero
	for _, b := range trades.Buys {
		total = total.Add(b.Notional())
	}
	return total
}

func appendTx(wallets map[string]*domain.Trades, tx domain.FeedTransaction) {
	trades, ok := wallets[tx.Owner]
	if !ok {
		trades = &domain.Trades{}
		wallets[tx.Owner] = trades
	}
	switch tx.Side {
	case domain.SideBuy:
		trades.Buys = append(trades.Buys, tx.Transaction())
	case domain.SideSell:
		trades.Sells = append(trades.Sells, tx.Transaction())
	}
}

func sortByTime(txs []domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Timestamp < txs[j].Timestamp
	})
}
