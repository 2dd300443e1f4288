package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpha-finder/internal/domain"
	"alpha-finder/internal/feed"
	"alpha-finder/internal/feed/stub"
	"alpha-finder/internal/merge"
	"alpha-finder/internal/scoring"
	"alpha-finder/internal/solana"
	solstub "alpha-finder/internal/solana/stub"
	"alpha-finder/internal/storage"
	"alpha-finder/internal/storage/memory"
)

const (
	mintA = "MintA1111111111111111111111111111111111111"
	mintB = "MintB1111111111111111111111111111111111111"
)

func i64(v int64) *int64 { return &v }

func ftx(owner string, side domain.Side, amount, price string, ts int64) domain.FeedTransaction {
	return domain.FeedTransaction{
		Owner:     owner,
		Side:      side,
		Amount:    decimal.RequireFromString(amount),
		Price:     decimal.RequireFromString(price),
		Timestamp: ts,
	}
}

func runner(addr string, created int64, early, late *int64) *domain.RunnerToken {
	return &domain.RunnerToken{
		Address:      addr,
		Name:         "Runner",
		Symbol:       "RUN",
		ATHPrice:     decimal.RequireFromString("0.01"),
		ATHMarketCap: decimal.NewFromInt(10_000_000),
		TotalSupply:  decimal.NewFromInt(1_000_000_000),
		CreatedAt:    created,
		Milestones:   domain.Milestones{Early: early, Late: late},
	}
}

// cohortTxs gives walletA and walletB a qualifying early buy and adds noise.
func cohortTxs() []domain.FeedTransaction {
	return []domain.FeedTransaction{
		ftx("walletA", domain.SideBuy, "100000", "0.001", 100),
		ftx("walletB", domain.SideBuy, "60000", "0.002", 150),
		ftx("dust", domain.SideBuy, "10", "0.001", 160),
		ftx("walletA", domain.SideSell, "50000", "0.008", 500),
	}
}

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]*domain.Wallet
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, wallets []*domain.Wallet) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.batches = append(f.batches, wallets)
	return len(wallets), nil
}

// flakyWallets fails Upsert for the listed addresses.
type flakyWallets struct {
	*memory.WalletStore
	mu   sync.Mutex
	fail map[string]bool
}

func (f *flakyWallets) Upsert(ctx context.Context, w *domain.Wallet) error {
	f.mu.Lock()
	failing := f.fail[w.Address]
	f.mu.Unlock()
	if failing {
		return errors.New("write timeout")
	}
	return f.WalletStore.Upsert(ctx, w)
}

func (f *flakyWallets) heal() {
	f.mu.Lock()
	f.fail = map[string]bool{}
	f.mu.Unlock()
}

type fixture struct {
	tokens    *memory.RunnerTokenStore
	wallets   *flakyWallets
	snapshots *memory.ScoreSnapshotStore
	feed      *stub.Feed
	rpc       *solstub.RPCClient
	board     *fakePublisher
	now       time.Time
	cycle     *Cycle
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		tokens:    memory.NewRunnerTokenStore(),
		wallets:   &flakyWallets{WalletStore: memory.NewWalletStore(), fail: map[string]bool{}},
		snapshots: memory.NewScoreSnapshotStore(),
		feed:      stub.NewFeed(),
		rpc:       solstub.NewRPCClient(),
		board:     &fakePublisher{},
		now:       time.Unix(1_000_000, 0),
	}
	clock := func() time.Time { return f.now }
	f.cycle = New(Options{
		Tokens:      f.tokens,
		Wallets:     f.wallets,
		Feed:        f.feed,
		Prices:      f.feed,
		Supply:      f.rpc,
		Scorer:      scoring.NewScorer(scoring.Options{Logger: zerolog.Nop(), Clock: clock}),
		Merger:      merge.NewMerger(merge.Options{Store: f.wallets, Workers: 2, Logger: zerolog.Nop()}),
		Snapshots:   f.snapshots,
		Leaderboard: f.board,
		Workers:     2,
		Logger:      zerolog.Nop(),
		Clock:       clock,
	})
	return f
}

func (f *fixture) addToken(t *testing.T, tok *domain.RunnerToken, txs []domain.FeedTransaction) {
	t.Helper()
	require.NoError(t, f.tokens.Insert(context.Background(), tok))
	f.feed.Txs[tok.Address] = txs
}

func TestCycle_Run(t *testing.T) {
	f := newFixture(t)
	f.addToken(t, runner(mintA, 1, i64(200), i64(400)), cohortTxs())
	ctx := context.Background()

	result, err := f.cycle.Run(ctx)
	require.NoError(t, err)
	require.Len(t, result.Tokens, 1)

	tr := result.Tokens[0]
	assert.Equal(t, StatusChecked, tr.Status)
	assert.Equal(t, 2, tr.CohortSize)
	assert.Equal(t, 2, tr.WalletsWritten)
	assert.NoError(t, tr.Err)
	assert.Equal(t, 1, result.Succeeded())
	assert.NotEmpty(t, result.RunID)

	tok, err := f.tokens.GetByAddress(ctx, mintA)
	require.NoError(t, err)
	assert.True(t, tok.Checked)

	w, err := f.wallets.GetByAddress(ctx, "walletA")
	require.NoError(t, err)
	require.Len(t, w.Runners, 1)
	p := w.Runners[0]
	assert.True(t, p.Scored)
	require.NotNil(t, p.Score)
	assert.Equal(t, int64(400), p.MillionTimestamp)
	assert.Len(t, p.Transactions.Buys, 1)
	assert.Len(t, p.Transactions.Sells, 1, "sell after early is back-filled")
	assert.Equal(t, f.now.Unix(), w.UpdatedAt)
	assert.True(t, w.ConfidenceScore.IsPositive())

	_, err = f.wallets.GetByAddress(ctx, "dust")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	snaps, err := f.snapshots.GetByRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.Len(t, snaps, 2)

	require.Len(t, f.board.batches, 1)
	assert.Len(t, f.board.batches[0], 2)
	assert.Equal(t, 2, result.Ranked)
	assert.Same(t, result, f.cycle.Last())
}

func TestCycle_SandwichWalletsAreCountedNotDropped(t *testing.T) {
	f := newFixture(t)
	txs := append(cohortTxs(), ftx("walletB", domain.SideSell, "60000", "0.002", 170))
	f.addToken(t, runner(mintA, 1, i64(200), i64(400)), txs)

	result, err := f.cycle.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Tokens, 1)

	tr := result.Tokens[0]
	assert.Equal(t, StatusChecked, tr.Status)
	assert.Equal(t, 1, tr.SuspectedSandwich)
	assert.Equal(t, 2, tr.WalletsWritten)
}

func TestCycle_RunIsIdempotentOnceChecked(t *testing.T) {
	f := newFixture(t)
	f.addToken(t, runner(mintA, 1, i64(200), i64(400)), cohortTxs())
	ctx := context.Background()

	_, err := f.cycle.Run(ctx)
	require.NoError(t, err)
	before, err := f.wallets.GetByAddress(ctx, "walletA")
	require.NoError(t, err)

	second, err := f.cycle.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, second.Tokens)

	after, err := f.wallets.GetByAddress(ctx, "walletA")
	require.NoError(t, err)
	assert.Len(t, after.Runners, 1)
	assert.True(t, before.ConfidenceScore.Equal(after.ConfidenceScore))
}

func TestCycle_FeedErrorLeavesTokenUnchecked(t *testing.T) {
	f := newFixture(t)
	f.addToken(t, runner(mintA, 1, i64(200), i64(400)), nil)
	f.feed.Errors[mintA] = errors.New("503 from provider")
	ctx := context.Background()

	result, err := f.cycle.Run(ctx)
	require.NoError(t, err)
	require.Len(t, result.Tokens, 1)
	assert.Equal(t, StatusFeedError, result.Tokens[0].Status)
	assert.Error(t, result.Tokens[0].Err)
	assert.Equal(t, 1, result.Failed())

	pending, err := f.tokens.GetUnchecked(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	assert.Empty(t, f.board.batches)
}

func TestCycle_TruncatedHistoryLeavesTokenUnchecked(t *testing.T) {
	f := newFixture(t)
	f.addToken(t, runner(mintA, 1, i64(200), i64(400)), nil)
	f.feed.Errors[mintA] = fmt.Errorf("transactions %s: %w", mintA, feed.ErrTruncated)
	ctx := context.Background()

	result, err := f.cycle.Run(ctx)
	require.NoError(t, err)
	require.Len(t, result.Tokens, 1)
	assert.Equal(t, StatusFeedError, result.Tokens[0].Status)
	assert.ErrorIs(t, result.Tokens[0].Err, feed.ErrTruncated)

	pending, err := f.tokens.GetUnchecked(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = f.wallets.GetByAddress(ctx, "walletA")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCycle_NoMilestoneMarksChecked(t *testing.T) {
	f := newFixture(t)
	f.addToken(t, runner(mintA, 1, nil, nil), cohortTxs())
	f.rpc.Supplies[mintA] = &solana.TokenSupply{UIAmount: decimal.NewFromInt(1_000_000_000)}
	// Never above the 200k low threshold.
	f.feed.Prices[mintA] = []domain.PricePoint{
		{UnixTime: f.now.Unix() - 120, Value: decimal.RequireFromString("0.00005")},
		{UnixTime: f.now.Unix() - 60, Value: decimal.RequireFromString("0.0001")},
	}
	ctx := context.Background()

	result, err := f.cycle.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusNoMilestone, result.Tokens[0].Status)
	assert.True(t, result.Tokens[0].OK())

	tok, err := f.tokens.GetByAddress(ctx, mintA)
	require.NoError(t, err)
	assert.True(t, tok.Checked)

	wallets, err := f.wallets.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, wallets)
}

func TestCycle_LocatesMissingMilestones(t *testing.T) {
	f := newFixture(t)
	f.addToken(t, runner(mintA, 1, nil, nil), cohortTxs())
	f.rpc.Supplies[mintA] = &solana.TokenSupply{UIAmount: decimal.NewFromInt(1_000_000_000)}
	// caps: 100k @50, 300k @200, 600k @400; both milestones land on 400.
	f.feed.Prices[mintA] = []domain.PricePoint{
		{UnixTime: 50, Value: decimal.RequireFromString("0.0001")},
		{UnixTime: 200, Value: decimal.RequireFromString("0.0003")},
		{UnixTime: 400, Value: decimal.RequireFromString("0.0006")},
	}
	ctx := context.Background()

	result, err := f.cycle.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusChecked, result.Tokens[0].Status)
	assert.Equal(t, 2, result.Tokens[0].CohortSize)

	w, err := f.wallets.GetByAddress(ctx, "walletA")
	require.NoError(t, err)
	assert.Equal(t, int64(400), w.Runners[0].MillionTimestamp)
}

func TestCycle_MilestoneProviderErrorSkipsToken(t *testing.T) {
	f := newFixture(t)
	f.addToken(t, runner(mintA, 1, nil, nil), cohortTxs())
	f.rpc.Errors[mintA] = errors.New("node unavailable")

	result, err := f.cycle.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusFeedError, result.Tokens[0].Status)
}

func TestCycle_PartialWriteRetriesWithoutDoubleCounting(t *testing.T) {
	f := newFixture(t)
	f.addToken(t, runner(mintA, 1, i64(200), i64(400)), cohortTxs())
	f.wallets.fail["walletB"] = true
	ctx := context.Background()

	first, err := f.cycle.Run(ctx)
	require.NoError(t, err)
	tr := first.Tokens[0]
	assert.Equal(t, StatusWriteError, tr.Status)
	assert.Equal(t, 1, tr.WalletsWritten)
	require.Len(t, tr.WalletErrors, 1)
	assert.Equal(t, "walletB", tr.WalletErrors[0].Wallet)

	tok, err := f.tokens.GetByAddress(ctx, mintA)
	require.NoError(t, err)
	assert.False(t, tok.Checked)

	f.wallets.heal()
	second, err := f.cycle.Run(ctx)
	require.NoError(t, err)
	tr = second.Tokens[0]
	assert.Equal(t, StatusChecked, tr.Status)
	assert.Equal(t, 1, tr.Deduplicated)
	assert.Equal(t, 1, tr.WalletsWritten)

	a, err := f.wallets.GetByAddress(ctx, "walletA")
	require.NoError(t, err)
	assert.Len(t, a.Runners, 1)
	b, err := f.wallets.GetByAddress(ctx, "walletB")
	require.NoError(t, err)
	assert.Len(t, b.Runners, 1)
}

func TestCycle_WalletAcrossTokens(t *testing.T) {
	f := newFixture(t)
	f.addToken(t, runner(mintA, 1, i64(200), i64(400)), cohortTxs())
	f.addToken(t, runner(mintB, 2, i64(200), i64(400)), []domain.FeedTransaction{
		ftx("walletA", domain.SideBuy, "90000", "0.001", 120),
	})
	ctx := context.Background()

	result, err := f.cycle.Run(ctx)
	require.NoError(t, err)
	require.Len(t, result.Tokens, 2)
	assert.Equal(t, mintA, result.Tokens[0].Token)
	assert.Equal(t, mintB, result.Tokens[1].Token)

	w, err := f.wallets.GetByAddress(ctx, "walletA")
	require.NoError(t, err)
	require.Len(t, w.Runners, 2)
	assert.Equal(t, mintA, w.Runners[0].Address)
	assert.Equal(t, mintB, w.Runners[1].Address)

	// walletA written twice in the cycle but snapshotted once.
	snaps, err := f.snapshots.GetByRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
	assert.Equal(t, 3, result.WalletsWritten)
}

func TestCycle_LeaderboardErrorDoesNotFailCycle(t *testing.T) {
	f := newFixture(t)
	f.addToken(t, runner(mintA, 1, i64(200), i64(400)), cohortTxs())
	f.board.err = errors.New("redis down")

	result, err := f.cycle.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusChecked, result.Tokens[0].Status)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "leaderboard")
}

func TestCycle_RejectsOverlappingRuns(t *testing.T) {
	f := newFixture(t)
	f.cycle.running.Store(true)

	_, err := f.cycle.Run(context.Background())
	assert.ErrorIs(t, err, ErrCycleRunning)
	_, err = f.cycle.Rescore(context.Background())
	assert.ErrorIs(t, err, ErrCycleRunning)
}

func TestCycle_RescoreAppliesDecay(t *testing.T) {
	f := newFixture(t)
	f.addToken(t, runner(mintA, 1, i64(200), i64(400)), cohortTxs())
	ctx := context.Background()

	_, err := f.cycle.Run(ctx)
	require.NoError(t, err)
	before, err := f.wallets.GetByAddress(ctx, "walletB")
	require.NoError(t, err)

	// walletB last traded at ts 150; move 30 days + 3 weeks past it.
	f.now = time.Unix(150, 0).Add(30*24*time.Hour + 21*24*time.Hour)
	result, err := f.cycle.Rescore(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rescore", result.Kind)
	assert.Equal(t, 2, result.WalletsWritten)

	after, err := f.wallets.GetByAddress(ctx, "walletB")
	require.NoError(t, err)
	assert.True(t, after.ConfidenceScore.LessThan(before.ConfidenceScore),
		"expected decay: before %s after %s", before.ConfidenceScore, after.ConfidenceScore)
	require.NotNil(t, after.Runners[0].Score)
	assert.True(t, before.Runners[0].Score.Equal(*after.Runners[0].Score), "scored participations are not recomputed")
	assert.Equal(t, f.now.Unix(), after.UpdatedAt)

	snaps, err := f.snapshots.GetByWallet(ctx, "walletB")
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
}

func TestCycle_RescoreReportsWriteErrors(t *testing.T) {
	f := newFixture(t)
	f.addToken(t, runner(mintA, 1, i64(200), i64(400)), cohortTxs())
	ctx := context.Background()

	_, err := f.cycle.Run(ctx)
	require.NoError(t, err)

	f.wallets.fail["walletA"] = true
	result, err := f.cycle.Rescore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.WalletsWritten)
	require.Len(t, result.WalletErrors, 1)
	assert.Equal(t, "walletA", result.WalletErrors[0].Wallet)
}
