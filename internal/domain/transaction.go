package domain

import "github.com/shopspring/decimal"

// Side is the direction of a transaction relative to the runner token.
type Side string

// Transaction side constants
const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// IsValid reports whether s is a known side.
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// Transaction is a single buy or sell recorded in a participation.
type Transaction struct {
	Side      Side            `json:"type"`
	Amount    decimal.Decimal `json:"amount"`    // token units, non-negative
	Price     decimal.Decimal `json:"price"`     // USD per token at execution, non-negative
	Timestamp int64           `json:"timestamp"` // unix seconds
}

// Notional returns amount × price.
func (t Transaction) Notional() decimal.Decimal {
	return t.Amount.Mul(t.Price)
}

// FeedTransaction is a transaction as delivered by the market-data feed,
// before it is grouped by owner.
type FeedTransaction struct {
	Owner     string // wallet address
	Signature string // transaction signature, informational
	Side      Side
	Amount    decimal.Decimal
	Price     decimal.Decimal
	Timestamp int64 // unix seconds
}

// Transaction strips the owner from a feed transaction.
func (f FeedTransaction) Transaction() Transaction {
	return Transaction{
		Side:      f.Side,
		Amount:    f.Amount,
		Price:     f.Price,
		Timestamp: f.Timestamp,
	}
}

// PricePoint is one sample of a token price series.
type PricePoint struct {
	UnixTime int64           // unix seconds
	Value    decimal.Decimal // USD price
}
