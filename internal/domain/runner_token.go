package domain

import "github.com/shopspring/decimal"

// Milestones holds the market-cap crossing timestamps of a runner token.
// A nil pointer means the threshold was never crossed.
type Milestones struct {
	Early       *int64 `json:"early,omitempty"`       // last sample at or above the low threshold (unix seconds)
	Late        *int64 `json:"late,omitempty"`        // last sample at or above the high threshold (unix seconds)
	TwoMillion  *int64 `json:"twoMillion,omitempty"`  // first crossing of 2M market cap
	FiveMillion *int64 `json:"fiveMillion,omitempty"` // first crossing of 5M market cap
}

// RunnerToken is a token that reached the runner market-cap milestone.
// Corresponds to runner_tokens table in PostgreSQL.
type RunnerToken struct {
	Address      string          // mint address, unique
	Name         string          // token name from metadata
	Symbol       string          // token symbol from metadata
	Logo         string          // logo URI, may be empty
	ATHPrice     decimal.Decimal // all-time-high price in USD
	ATHMarketCap decimal.Decimal // all-time-high market cap in USD
	TotalSupply  decimal.Decimal // UI supply (raw / 10^decimals)
	CreatedAt    int64           // unix seconds when the runner was registered
	Milestones   Milestones
	Checked      bool // true once the scoring pipeline completed for this token
}

// Snapshot copies the token fields embedded into a participation.
func (t *RunnerToken) Snapshot() TokenSnapshot {
	s := TokenSnapshot{
		Address:      t.Address,
		Name:         t.Name,
		Symbol:       t.Symbol,
		Logo:         t.Logo,
		ATHPrice:     t.ATHPrice,
		ATHMarketCap: t.ATHMarketCap,
		TotalSupply:  t.TotalSupply,
		CreatedAt:    t.CreatedAt,
	}
	if t.Milestones.Late != nil {
		s.MillionTimestamp = *t.Milestones.Late
	}
	return s
}
