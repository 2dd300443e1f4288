package cohort

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpha-finder/internal/domain"
)

func ftx(owner string, side domain.Side, amount, price float64, ts int64) domain.FeedTransaction {
	return domain.FeedTransaction{
		Owner:     owner,
		Side:      side,
		Amount:    decimal.NewFromFloat(amount),
		Price:     decimal.NewFromFloat(price),
		Timestamp: ts,
	}
}

func i64(v int64) *int64 { return &v }

func testToken() *domain.RunnerToken {
	return &domain.RunnerToken{
		Address:      "MintRunner111",
		Name:         "Runner",
		Symbol:       "RUN",
		ATHPrice:     decimal.NewFromFloat(0.01),
		ATHMarketCap: decimal.NewFromInt(10_000_000),
		TotalSupply:  decimal.NewFromInt(1_000_000_000),
		CreatedAt:    500,
	}
}

func TestExtract_MissingMilestone(t *testing.T) {
	_, err := Extract(testToken(), nil, nil, i64(10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoMilestone))

	_, err = Extract(testToken(), nil, i64(10), nil)
	assert.True(t, errors.Is(err, ErrNoMilestone))
}

func TestExtract_PartitionCleanupBackfill(t *testing.T) {
	txs := []domain.FeedTransaction{
		ftx("whale", domain.SideBuy, 100000, 0.001, 100),  // $100
		ftx("dust", domain.SideBuy, 1000, 0.001, 110),     // $1, dropped
		ftx("flipper", domain.SideBuy, 1000, 0.001, 120),  // $1 but sells
		ftx("flipper", domain.SideSell, 1000, 0.002, 150), // before early
		ftx("late", domain.SideBuy, 1e6, 0.005, 300),      // only after early, not a cohort member
		ftx("whale", domain.SideSell, 50000, 0.01, 400),   // back-filled
		ftx("dust", domain.SideSell, 1000, 0.01, 410),     // dust already dropped
		ftx("whale", domain.SideBuy, 10, 0.004, 200),      // exactly at early, back-filled
	}

	c, err := Extract(testToken(), txs, i64(200), i64(350))
	require.NoError(t, err)

	assert.Equal(t, []string{"flipper", "whale"}, c.Addresses())
	assert.Equal(t, int64(350), c.Token.MillionTimestamp)
	assert.Equal(t, "MintRunner111", c.Token.Address)

	whale := c.Wallets["whale"]
	require.Len(t, whale.Buys, 2)
	assert.Equal(t, int64(100), whale.Buys[0].Timestamp)
	assert.Equal(t, int64(200), whale.Buys[1].Timestamp)
	require.Len(t, whale.Sells, 1)
	assert.Equal(t, int64(400), whale.Sells[0].Timestamp)

	flipper := c.Wallets["flipper"]
	assert.Len(t, flipper.Buys, 1)
	assert.Len(t, flipper.Sells, 1)
}

func TestExtract_NoTransactionsBeforeEarly(t *testing.T) {
	txs := []domain.FeedTransaction{ftx("a", domain.SideBuy, 1e6, 1, 500)}
	c, err := Extract(testToken(), txs, i64(200), i64(350))
	require.NoError(t, err)
	assert.Empty(t, c.Wallets)
}

func TestCleanup_Idempotent(t *testing.T) {
	wallets := map[string]*domain.Trades{
		"keep": {Buys: []domain.Transaction{{Side: domain.SideBuy, Amount: decimal.NewFromInt(50), Price: decimal.NewFromInt(1)}}},
		"drop": {Buys: []domain.Transaction{{Side: domain.SideBuy, Amount: decimal.NewFromInt(49), Price: decimal.NewFromInt(1)}}},
		"seller": {
			Sells: []domain.Transaction{{Side: domain.SideSell, Amount: decimal.NewFromInt(1), Price: decimal.NewFromInt(1)}},
		},
	}

	assert.Equal(t, 1, Cleanup(wallets))
	assert.Len(t, wallets, 2)
	assert.Contains(t, wallets, "keep")
	assert.Contains(t, wallets, "seller")

	assert.Equal(t, 0, Cleanup(wallets))
	assert.Len(t, wallets, 2)
}

func TestDetectSandwich(t *testing.T) {
	txs := []domain.FeedTransaction{
		ftx("bot", domain.SideBuy, 1000, 1, 100),
		ftx("bot", domain.SideSell, 1000, 1.05, 110),
		ftx("slow", domain.SideBuy, 1000, 1, 100),
		ftx("slow", domain.SideSell, 1000, 1, 500),
		ftx("partial", domain.SideBuy, 1000, 1, 100),
		ftx("partial", domain.SideSell, 100, 1, 105),
	}

	assert.Equal(t, []string{"bot"}, DetectSandwich(txs, DefaultSandwichConfig()))
}
