// Package pipeline runs the scoring cycle: for every unchecked runner token
// it rebuilds the early-buyer cohort, merges it into wallet histories,
// rescores the affected wallets and persists them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"alpha-finder/internal/cohort"
	"alpha-finder/internal/domain"
	"alpha-finder/internal/feed"
	"alpha-finder/internal/merge"
	"alpha-finder/internal/milestone"
	"alpha-finder/internal/observability"
	"alpha-finder/internal/scoring"
	"alpha-finder/internal/solana"
	"alpha-finder/internal/storage"
)

// Defaults.
const (
	DefaultWorkers  = 8
	DefaultLookback = 90 * 24 * time.Hour
)

// ErrCycleRunning is returned when Run or Rescore is called while another cycle is in flight.
var ErrCycleRunning = errors.New("scoring cycle already running")

// Publisher ranks scored wallets on a read-side cache.
type Publisher interface {
	Publish(ctx context.Context, wallets []*domain.Wallet) (int, error)
}

// Options for creating a Cycle.
type Options struct {
	// Required
	Tokens  storage.RunnerTokenStore
	Wallets storage.WalletStore
	Feed    feed.TransactionFeed
	Scorer  *scoring.Scorer
	Merger  *merge.Merger

	// Used to locate milestones for tokens registered without them
	Prices feed.PriceHistoryProvider
	Supply solana.SupplyProvider

	// Optional sinks
	Snapshots   storage.ScoreSnapshotStore
	Leaderboard Publisher

	Thresholds milestone.Thresholds
	Workers    int           // concurrent wallet scoring, 0 uses DefaultWorkers
	Lookback   time.Duration // price history window when locating milestones
	Logger     zerolog.Logger
	Clock      func() time.Time
}

// Cycle is the scoring pipeline. It is safe for concurrent use; overlapping
// calls to Run or Rescore return ErrCycleRunning.
type Cycle struct {
	tokens      storage.RunnerTokenStore
	wallets     storage.WalletStore
	feed        feed.TransactionFeed
	prices      feed.PriceHistoryProvider
	supply      solana.SupplyProvider
	scorer      *scoring.Scorer
	merger      *merge.Merger
	snapshots   storage.ScoreSnapshotStore
	leaderboard Publisher
	thresholds  milestone.Thresholds
	workers     int
	lookback    time.Duration
	logger      zerolog.Logger
	clock       func() time.Time

	running atomic.Bool
	mu      sync.RWMutex
	last    *CycleResult
}

// New creates a Cycle.
func New(opts Options) *Cycle {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Lookback <= 0 {
		opts.Lookback = DefaultLookback
	}
	if opts.Thresholds.Low.IsZero() && opts.Thresholds.High.IsZero() {
		opts.Thresholds = milestone.DefaultThresholds()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Cycle{
		tokens:      opts.Tokens,
		wallets:     opts.Wallets,
		feed:        opts.Feed,
		prices:      opts.Prices,
		supply:      opts.Supply,
		scorer:      opts.Scorer,
		merger:      opts.Merger,
		snapshots:   opts.Snapshots,
		leaderboard: opts.Leaderboard,
		thresholds:  opts.Thresholds,
		workers:     opts.Workers,
		lookback:    opts.Lookback,
		logger:      opts.Logger.With().Str("component", "pipeline").Logger(),
		clock:       opts.Clock,
	}
}

// Last returns the result of the most recent finished cycle, or nil.
func (c *Cycle) Last() *CycleResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Run processes every unchecked runner token, one token at a time.
// Token-level failures are reported in the result and leave the token
// unchecked; only store failures while loading tokens abort the cycle.
func (c *Cycle) Run(ctx context.Context) (*CycleResult, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrCycleRunning
	}
	defer c.running.Store(false)

	result := c.begin("run")
	log := c.logger.With().Str("run_id", result.RunID).Logger()

	pending, err := c.tokens.GetUnchecked(ctx)
	if err != nil {
		return nil, c.abort(result, fmt.Errorf("load unchecked tokens: %w", err))
	}
	global, err := c.tokens.Count(ctx)
	if err != nil {
		return nil, c.abort(result, fmt.Errorf("count runner tokens: %w", err))
	}
	log.Info().Int("pending", len(pending)).Int("runners", global).Msg("scoring cycle started")

	written := make(map[string]*domain.Wallet)
	for _, token := range pending {
		if ctx.Err() != nil {
			break
		}
		tr, wallets := c.processToken(ctx, log, token, global)
		observability.RecordTokenProcessed(string(tr.Status))
		result.Tokens = append(result.Tokens, tr)
		result.WalletsWritten += tr.WalletsWritten
		for _, w := range wallets {
			written[w.Address] = w
		}
	}

	c.publish(ctx, log, result, sortedWallets(written))
	c.finish(result)
	log.Info().
		Int("tokens_ok", result.Succeeded()).
		Int("tokens_failed", result.Failed()).
		Int("wallets_written", result.WalletsWritten).
		Msg("scoring cycle finished")

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// Rescore recomputes confidence score, PnL and badges for every stored
// wallet so decay progresses for wallets absent from new cohorts.
// Already-scored participations are left untouched.
func (c *Cycle) Rescore(ctx context.Context) (*CycleResult, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrCycleRunning
	}
	defer c.running.Store(false)

	result := c.begin("rescore")
	log := c.logger.With().Str("run_id", result.RunID).Logger()

	wallets, err := c.wallets.List(ctx)
	if err != nil {
		return nil, c.abort(result, fmt.Errorf("list wallets: %w", err))
	}
	global, err := c.tokens.Count(ctx)
	if err != nil {
		return nil, c.abort(result, fmt.Errorf("count runner tokens: %w", err))
	}

	if err := c.scoreAll(ctx, wallets, global); err != nil {
		return nil, c.abort(result, err)
	}

	var ok []*domain.Wallet
	for _, w := range wallets {
		if err := c.wallets.Upsert(ctx, w); err != nil {
			observability.RecordWalletWriteError()
			log.Error().Err(err).Str("wallet", w.Address).Msg("wallet write failed")
			result.WalletErrors = append(result.WalletErrors, WalletError{Wallet: w.Address, Err: err})
			continue
		}
		ok = append(ok, w)
	}
	result.WalletsWritten = len(ok)

	c.publish(ctx, log, result, ok)
	c.finish(result)
	log.Info().Int("wallets", len(wallets)).Int("written", len(ok)).Msg("rescore finished")
	return result, nil
}

// processToken runs locate → extract → merge → score → persist for one token.
// It returns the wallets that were written.
func (c *Cycle) processToken(ctx context.Context, log zerolog.Logger, token *domain.RunnerToken, global int) (TokenResult, []*domain.Wallet) {
	tr := TokenResult{Token: token.Address}
	log = log.With().Str("token", token.Address).Logger()

	if err := c.ensureMilestones(ctx, token); err != nil {
		tr.Status, tr.Err = StatusFeedError, err
		log.Warn().Err(err).Msg("milestones unavailable, token skipped")
		return tr, nil
	}

	txs, err := c.feed.Transactions(ctx, token.Address)
	if err != nil {
		tr.Status, tr.Err = StatusFeedError, fmt.Errorf("fetch transactions: %w", err)
		log.Warn().Err(err).Msg("feed unavailable, token skipped")
		return tr, nil
	}

	coh, err := cohort.Extract(token, txs, token.Milestones.Early, token.Milestones.Late)
	if errors.Is(err, cohort.ErrNoMilestone) {
		if err := c.tokens.MarkChecked(ctx, token.Address); err != nil {
			tr.Status, tr.Err = StatusError, fmt.Errorf("mark checked: %w", err)
			return tr, nil
		}
		tr.Status = StatusNoMilestone
		log.Info().Msg("token never crossed its milestones, marked checked")
		return tr, nil
	}
	if err != nil {
		tr.Status, tr.Err = StatusError, err
		return tr, nil
	}
	tr.CohortSize = len(coh.Wallets)
	for _, addr := range cohort.DetectSandwich(txs, cohort.DefaultSandwichConfig()) {
		if _, ok := coh.Wallets[addr]; ok {
			tr.SuspectedSandwich++
			log.Debug().Str("wallet", addr).Msg("cohort wallet matches sandwich pattern")
		}
	}

	merged, err := c.merger.Merge(ctx, coh)
	if err != nil {
		tr.Status, tr.Err = StatusError, err
		log.Error().Err(err).Msg("merge failed")
		return tr, nil
	}

	fresh := merged[:0]
	for _, w := range merged {
		if participationCount(w, token.Address) > 1 {
			tr.Deduplicated++
			continue
		}
		fresh = append(fresh, w)
	}

	if err := c.scoreAll(ctx, fresh, global); err != nil {
		tr.Status, tr.Err = StatusError, err
		return tr, nil
	}
	for _, w := range fresh {
		tr.ParticipationErrors += unscored(w, token.Address)
	}

	// Wallets are written only after their score is complete.
	var written []*domain.Wallet
	for _, w := range fresh {
		if err := c.wallets.Upsert(ctx, w); err != nil {
			observability.RecordWalletWriteError()
			log.Error().Err(err).Str("wallet", w.Address).Msg("wallet write failed")
			tr.WalletErrors = append(tr.WalletErrors, WalletError{Wallet: w.Address, Err: err})
			continue
		}
		written = append(written, w)
	}
	tr.WalletsWritten = len(written)

	if len(tr.WalletErrors) > 0 {
		tr.Status = StatusWriteError
		tr.Err = fmt.Errorf("%d of %d wallet writes failed", len(tr.WalletErrors), len(fresh))
		return tr, written
	}

	if err := c.tokens.MarkChecked(ctx, token.Address); err != nil {
		tr.Status, tr.Err = StatusError, fmt.Errorf("mark checked: %w", err)
		return tr, written
	}
	tr.Status = StatusChecked
	log.Info().
		Int("cohort", tr.CohortSize).
		Int("deduplicated", tr.Deduplicated).
		Int("suspected_sandwich", tr.SuspectedSandwich).
		Int("written", tr.WalletsWritten).
		Msg("token processed")
	return tr, written
}

// ensureMilestones fills in missing early/late milestones from price history.
// Tokens without a price source keep whatever they were registered with.
func (c *Cycle) ensureMilestones(ctx context.Context, token *domain.RunnerToken) error {
	if token.Milestones.Early != nil && token.Milestones.Late != nil {
		return nil
	}
	if c.prices == nil || c.supply == nil {
		return nil
	}

	supply, err := c.supply.GetTokenSupply(ctx, token.Address)
	if err != nil {
		return fmt.Errorf("token supply: %w", err)
	}
	now := c.clock()
	series, err := c.prices.PriceHistory(ctx, token.Address, now.Add(-c.lookback).Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("price history: %w", err)
	}

	found := milestone.Locate(series, supply.UIAmount, c.thresholds)
	token.Milestones.Early, token.Milestones.Late = found.Early, found.Late
	return nil
}

// scoreAll scores wallets on a bounded worker pool. Each wallet is touched
// by exactly one worker.
func (c *Cycle) scoreAll(ctx context.Context, wallets []*domain.Wallet, global int) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, w := range wallets {
		w := w
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c.scorer.ScoreWallet(gctx, w, global)
			return nil
		})
	}
	return g.Wait()
}

// publish appends score snapshots and updates the leaderboard. Failures are
// recorded on the result and never fail the cycle.
func (c *Cycle) publish(ctx context.Context, log zerolog.Logger, result *CycleResult, wallets []*domain.Wallet) {
	if len(wallets) == 0 {
		return
	}

	if c.snapshots != nil {
		snaps := make([]*domain.ScoreSnapshot, len(wallets))
		for i, w := range wallets {
			snaps[i] = &domain.ScoreSnapshot{
				RunID:           result.RunID,
				Wallet:          w.Address,
				ConfidenceScore: w.ConfidenceScore,
				PnL:             w.PnL,
				Participations:  len(w.Runners),
				Badges:          append([]domain.Badge(nil), w.Badges...),
				ComputedAt:      w.UpdatedAt,
			}
		}
		if err := c.snapshots.InsertBulk(ctx, snaps); err != nil {
			log.Error().Err(err).Msg("score snapshots failed")
			result.Errors = append(result.Errors, fmt.Sprintf("snapshots: %v", err))
		}
	}

	if c.leaderboard != nil {
		ranked, err := c.leaderboard.Publish(ctx, wallets)
		if err != nil {
			log.Error().Err(err).Msg("leaderboard publish failed")
			result.Errors = append(result.Errors, fmt.Sprintf("leaderboard: %v", err))
		}
		result.Ranked = ranked
	}
}

func (c *Cycle) begin(kind string) *CycleResult {
	return &CycleResult{
		RunID:     uuid.NewString(),
		Kind:      kind,
		StartedAt: c.clock().Unix(),
	}
}

func (c *Cycle) abort(result *CycleResult, err error) error {
	observability.RecordCycleRun(result.Kind, "error", float64(c.clock().Unix()-result.StartedAt))
	c.logger.Error().Err(err).Str("run_id", result.RunID).Str("kind", result.Kind).Msg("cycle aborted")
	return err
}

func (c *Cycle) finish(result *CycleResult) {
	result.FinishedAt = c.clock().Unix()
	status := "ok"
	if result.Failed() > 0 || len(result.WalletErrors) > 0 {
		status = "partial"
	}
	observability.RecordCycleRun(result.Kind, status, float64(result.FinishedAt-result.StartedAt))
	if status == "ok" {
		observability.RecordCycleSuccess(result.FinishedAt)
	}

	c.mu.Lock()
	c.last = result
	c.mu.Unlock()
}

func participationCount(w *domain.Wallet, token string) int {
	n := 0
	for i := range w.Runners {
		if w.Runners[i].Address == token {
			n++
		}
	}
	return n
}

func unscored(w *domain.Wallet, token string) int {
	n := 0
	for i := range w.Runners {
		if w.Runners[i].Address == token && !w.Runners[i].Scored {
			n++
		}
	}
	return n
}

func sortedWallets(m map[string]*domain.Wallet) []*domain.Wallet {
	out := make([]*domain.Wallet, 0, len(m))
	for _, w := range m {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}
