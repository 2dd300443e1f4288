package domain

import "github.com/shopspring/decimal"

// ScoreSnapshot is a point-in-time copy of a wallet's score written after a cycle.
// Corresponds to wallet_score_snapshots table in ClickHouse.
type ScoreSnapshot struct {
	RunID           string          // scoring cycle id
	Wallet          string          // wallet address
	ConfidenceScore decimal.Decimal // score at ComputedAt
	PnL             decimal.Decimal
	Participations  int     // number of runner participations
	Badges          []Badge // badge set at ComputedAt
	ComputedAt      int64   // unix seconds
}
