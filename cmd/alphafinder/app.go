package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"alpha-finder/internal/config"
	"alpha-finder/internal/feed"
	"alpha-finder/internal/leaderboard"
	"alpha-finder/internal/merge"
	"alpha-finder/internal/observability"
	"alpha-finder/internal/pipeline"
	"alpha-finder/internal/scoring"
	"alpha-finder/internal/solana"
	"alpha-finder/internal/storage"
	chstore "alpha-finder/internal/storage/clickhouse"
	"alpha-finder/internal/storage/memory"
	"alpha-finder/internal/storage/migrations"
	pgstore "alpha-finder/internal/storage/postgres"
	"alpha-finder/internal/tokens"
	"alpha-finder/internal/walletstate"
)

// stores holds the storage implementations selected by config.
type stores struct {
	tokens    storage.RunnerTokenStore
	wallets   storage.WalletStore
	snapshots storage.ScoreSnapshotStore // nil when no analytics store is configured
}

// app wires every component from one Config.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	stores    *stores
	rpc       *solana.HTTPClient
	feed      *feed.Client
	cycle     *pipeline.Cycle
	registrar *tokens.Registrar
	cleanup   []func()
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := observability.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}

	st, cleanup, err := createStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.stores = st
	a.cleanup = append(a.cleanup, cleanup)

	a.rpc = solana.NewHTTPClient(cfg.Solana.RPCEndpoint,
		solana.WithTimeout(cfg.Solana.Timeout),
		solana.WithMaxRetries(cfg.Solana.MaxRetries),
	)
	a.feed = feed.NewClient(cfg.MarketData.BaseURL, cfg.MarketData.APIKey,
		feed.WithRateLimit(cfg.MarketData.RatePerSec, 1),
		feed.WithInterval(cfg.MarketData.Interval),
	)

	checker := walletstate.NewChecker(walletstate.Options{
		Provider:    walletstate.NewRPCActivityProvider(a.rpc),
		RatePerSec:  cfg.WalletState.RatePerSec,
		TripAfter:   cfg.WalletState.TripAfter,
		OpenTimeout: cfg.WalletState.OpenTimeout,
		Logger:      logger,
	})
	scorer := scoring.NewScorer(scoring.Options{Checker: checker, Logger: logger})
	merger := merge.NewMerger(merge.Options{
		Store:   st.wallets,
		Workers: cfg.Scoring.Workers,
		Logger:  logger,
	})

	opts := pipeline.Options{
		Tokens:     st.tokens,
		Wallets:    st.wallets,
		Feed:       a.feed,
		Scorer:     scorer,
		Merger:     merger,
		Prices:     a.feed,
		Supply:     a.rpc,
		Snapshots:  st.snapshots,
		Thresholds: cfg.Thresholds(),
		Workers:    cfg.Scoring.Workers,
		Lookback:   cfg.Scoring.Lookback,
		Logger:     logger,
	}
	if cfg.Redis.Addr != "" {
		rdb, err := leaderboard.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.cleanup = append(a.cleanup, func() { rdb.Close() })
		opts.Leaderboard = leaderboard.NewPublisher(rdb, cfg.Redis.Prefix, logger)
	}
	a.cycle = pipeline.New(opts)

	a.registrar = tokens.NewRegistrar(tokens.Options{
		Store:      st.tokens,
		Supply:     a.rpc,
		Prices:     a.feed,
		Metadata:   tokens.NewMetadataSource(a.rpc),
		Thresholds: cfg.Thresholds(),
		Runner:     cfg.RunnerThreshold(),
		Lookback:   cfg.Scoring.Lookback,
		Logger:     logger,
	})
	return a, nil
}

// Close releases connections in reverse order of creation.
func (a *app) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}

// createStores builds in-memory stores or connects to Postgres (and
// ClickHouse when a DSN is set), applying migrations first.
func createStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, func(), error) {
	if cfg.Storage.UseMemory {
		logger.Warn().Msg("using in-memory storage, state is lost on exit")
		return &stores{
			tokens:    memory.NewRunnerTokenStore(),
			wallets:   memory.NewWalletStore(),
			snapshots: memory.NewScoreSnapshotStore(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}

	st := &stores{
		tokens:  pgstore.NewRunnerTokenStore(pool),
		wallets: pgstore.NewWalletStore(pool),
	}
	if cfg.Storage.ClickHouseDSN == "" {
		logger.Info().Msg("clickhouse not configured, score snapshots disabled")
		return st, pool.Close, nil
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	st.snapshots = chstore.NewScoreSnapshotStore(conn)

	cleanup := func() {
		conn.Close()
		pool.Close()
	}
	return st, cleanup, nil
}
