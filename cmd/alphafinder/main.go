// Command alphafinder scores wallets that traded runner tokens and keeps
// their confidence scores, badges and leaderboard up to date.
//
// Subcommands:
//   - serve: run scoring cycles on a cron schedule behind an ops server
//   - run: run one scoring cycle and exit
//   - rescore: recompute aggregate scores and badges for every stored wallet
//   - register: evaluate mints and store the ones that qualify as runners
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"alpha-finder/internal/pipeline"
	"alpha-finder/internal/server"
	"alpha-finder/internal/storage"
	"alpha-finder/internal/tokens"
)

const shutdownTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd(ctx).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd(ctx context.Context) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "alphafinder",
		Short:         "Wallet scoring for Solana runner tokens",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to YAML config (optional)")

	root.AddCommand(serveCmd(ctx, &configPath))
	root.AddCommand(runCmd(ctx, &configPath))
	root.AddCommand(rescoreCmd(ctx, &configPath))
	root.AddCommand(registerCmd(ctx, &configPath))
	return root
}

func serveCmd(ctx context.Context, configPath *string) *cobra.Command {
	var runNow bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run scoring cycles on schedule with /health, /status and /metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(ctx, a, runNow)
		},
	}
	cmd.Flags().BoolVar(&runNow, "run-now", false, "run one cycle immediately on startup")
	return cmd
}

func serve(ctx context.Context, a *app, runNow bool) error {
	log := a.logger

	sched, err := server.NewScheduler(ctx, a.cfg.Scoring.Cron, a.cycle, log)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", a.cfg.Scoring.Cron, err)
	}
	ops := server.New(a.cfg.Server.Addr, a.cycle, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- ops.Start()
	}()

	sched.Start()
	log.Info().Str("cron", a.cfg.Scoring.Cron).Msg("scheduler started")
	if runNow {
		go sched.Tick(ctx)
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("ops server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	select {
	case <-sched.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn().Msg("running cycle did not finish before shutdown timeout")
	}
	if err := ops.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("ops server shutdown")
	}
	log.Info().Msg("stopped")
	return nil
}

func runCmd(ctx context.Context, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one scoring cycle over unchecked runner tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.cycle.Run(ctx)
			if result != nil {
				printResult(cmd, a.logger, result)
			}
			return err
		},
	}
}

func rescoreCmd(ctx context.Context, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rescore",
		Short: "Recompute scores and badges for every stored wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.cycle.Rescore(ctx)
			if result != nil {
				printResult(cmd, a.logger, result)
			}
			return err
		},
	}
}

func registerCmd(ctx context.Context, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "register <mint>...",
		Short: "Register mints whose all-time-high market cap reaches the runner threshold",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			var failed int
			for _, mint := range args {
				token, err := a.registrar.Register(ctx, mint)
				switch {
				case err == nil:
					fmt.Fprintf(cmd.OutOrStdout(), "registered %s (%s) ath_mcap=%s\n", token.Address, token.Symbol, token.ATHMarketCap.StringFixed(0))
				case errors.Is(err, storage.ErrDuplicateKey):
					fmt.Fprintf(cmd.OutOrStdout(), "skipped %s: already registered\n", mint)
				case errors.Is(err, tokens.ErrNotRunner):
					fmt.Fprintf(cmd.OutOrStdout(), "skipped %s: below runner threshold\n", mint)
				default:
					failed++
					a.logger.Error().Err(err).Str("mint", mint).Msg("register failed")
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d mints failed to register", failed, len(args))
			}
			return nil
		},
	}
}

func printResult(cmd *cobra.Command, log zerolog.Logger, r *pipeline.CycleResult) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: tokens ok=%d failed=%d, wallets written=%d, ranked=%d\n",
		r.Kind, r.RunID, r.Succeeded(), r.Failed(), r.WalletsWritten, r.Ranked)
	for _, t := range r.Tokens {
		if t.OK() {
			continue
		}
		ev := log.Warn().Str("token", t.Token).Str("status", string(t.Status)).Int("wallet_errors", len(t.WalletErrors))
		if t.Err != nil {
			ev = ev.Err(t.Err)
		}
		ev.Msg("token left unchecked")
	}
	for _, msg := range r.Errors {
		log.Warn().Str("run_id", r.RunID).Msg(msg)
	}
}
