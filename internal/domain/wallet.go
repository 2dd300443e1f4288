package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Badge is a behavioral tag assigned to a wallet.
type Badge string

// Badge constants
const (
	BadgeLegendaryBuyer Badge = "legendary buyer"
	BadgePotentialAlpha Badge = "potential alpha"
	BadgeHighConviction Badge = "high conviction"
	BadgeMidTrader      Badge = "mid trader"
	BadgeDegenSprayer   Badge = "degen sprayer"
	BadgeOneHitWonder   Badge = "one-hit wonder"
	BadgeDiamondHands   Badge = "diamond hands"
	BadgeWhaleBuyer     Badge = "whale buyer"
	BadgeDeadWallet     Badge = "dead wallet"
	BadgeComebackTrader Badge = "comeback trader"
)

// AllBadges lists every badge in cascade order.
var AllBadges = []Badge{
	BadgeLegendaryBuyer,
	BadgePotentialAlpha,
	BadgeHighConviction,
	BadgeMidTrader,
	BadgeDegenSprayer,
	BadgeOneHitWonder,
	BadgeDiamondHands,
	BadgeWhaleBuyer,
	BadgeDeadWallet,
	BadgeComebackTrader,
}

// String returns the badge tag.
func (b Badge) String() string {
	return string(b)
}

// IsValid reports whether b is a known badge.
func (b Badge) IsValid() bool {
	for _, known := range AllBadges {
		if b == known {
			return true
		}
	}
	return false
}

// Wallet is the durable per-wallet history and score.
// Corresponds to wallets table in PostgreSQL.
type Wallet struct {
	Address         string
	Runners         []RunnerParticipation // ordered by merge time
	ConfidenceScore decimal.Decimal       // recomputed in full every run
	PnL             decimal.Decimal       // realized sell proceeds minus buy cost
	Badges          []Badge               // deduplicated, sorted
	UpdatedAt       int64                 // unix seconds of last write
}

// NewWallet creates an empty wallet with no badges.
func NewWallet(address string) *Wallet {
	return &Wallet{
		Address:         address,
		ConfidenceScore: decimal.Zero,
		PnL:             decimal.Zero,
		Badges:          []Badge{},
	}
}

// HasBadge reports whether the wallet holds b.
func (w *Wallet) HasBadge(b Badge) bool {
	for _, held := range w.Badges {
		if held == b {
			return true
		}
	}
	return false
}

// AddBadge adds b if it is not already held.
func (w *Wallet) AddBadge(b Badge) {
	if !w.HasBadge(b) {
		w.Badges = append(w.Badges, b)
	}
}

// RemoveBadge drops b from the badge set.
func (w *Wallet) RemoveBadge(b Badge) {
	kept := w.Badges[:0]
	for _, held := range w.Badges {
		if held != b {
			kept = append(kept, held)
		}
	}
	w.Badges = kept
}

// NormalizeBadges deduplicates and sorts the badge set.
func (w *Wallet) NormalizeBadges() {
	seen := make(map[Badge]struct{}, len(w.Badges))
	out := make([]Badge, 0, len(w.Badges))
	for _, b := range w.Badges {
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	w.Badges = out
}

// HasParticipation reports whether the wallet already holds a participation for token.
func (w *Wallet) HasParticipation(token string) bool {
	for i := range w.Runners {
		if w.Runners[i].Address == token {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the wallet.
func (w *Wallet) Clone() *Wallet {
	c := *w
	c.Badges = append([]Badge(nil), w.Badges...)
	c.Runners = make([]RunnerParticipation, len(w.Runners))
	for i := range w.Runners {
		c.Runners[i] = w.Runners[i].Clone()
	}
	return &c
}

// Clone returns a deep copy of the participation.
func (p *RunnerParticipation) Clone() RunnerParticipation {
	c := *p
	c.Transactions.Buys = append([]Transaction(nil), p.Transactions.Buys...)
	c.Transactions.Sells = append([]Transaction(nil), p.Transactions.Sells...)
	if p.Score != nil {
		s := *p.Score
		c.Score = &s
	}
	return c
}
