package domain

import "github.com/shopspring/decimal"

// TokenSnapshot is the read-only copy of runner token fields taken at merge time.
type TokenSnapshot struct {
	Address          string          `json:"address"`
	Name             string          `json:"name"`
	Symbol           string          `json:"symbol"`
	Logo             string          `json:"logo,omitempty"`
	ATHPrice         decimal.Decimal `json:"athPrice"`
	ATHMarketCap     decimal.Decimal `json:"athMarketCap"`
	TotalSupply      decimal.Decimal `json:"totalSupply"`
	CreatedAt        int64           `json:"createdAt"`
	MillionTimestamp int64           `json:"millionTimeStamp"` // late milestone (unix seconds)
}

// RunnerParticipation is one wallet's activity on one runner token.
// Score is nil until the participation has been scored. Once Scored is
// true the score is never recomputed.
type RunnerParticipation struct {
	TokenSnapshot
	Transactions Trades           `json:"transactions"`
	Score        *decimal.Decimal `json:"score,omitempty"`
	Scored       bool             `json:"scored"`
}

// Trades groups a wallet's transactions on one token by side.
type Trades struct {
	Buys  []Transaction `json:"buy"`
	Sells []Transaction `json:"sell"`
}

// LastActivity returns the latest buy or sell timestamp, or 0 when empty.
func (p *RunnerParticipation) LastActivity() int64 {
	var last int64
	for _, tx := range p.Transactions.Buys {
		if tx.Timestamp > last {
			last = tx.Timestamp
		}
	}
	for _, tx := range p.Transactions.Sells {
		if tx.Timestamp > last {
			last = tx.Timestamp
		}
	}
	return last
}

// SoldAfterMilestone reports whether any sell happened strictly after the late milestone.
func (p *RunnerParticipation) SoldAfterMilestone() bool {
	for _, tx := range p.Transactions.Sells {
		if tx.Timestamp > p.MillionTimestamp {
			return true
		}
	}
	return false
}
