// Package merge folds a token cohort into durable wallet records.
package merge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"alpha-finder/internal/cohort"
	"alpha-finder/internal/domain"
	"alpha-finder/internal/storage"
)

// DefaultWorkers bounds concurrent wallet lookups.
const DefaultWorkers = 8

// Options for creating a Merger.
type Options struct {
	Store   storage.WalletStore
	Workers int
	Logger  zerolog.Logger
}

// Merger appends a new participation to every cohort wallet, creating
// wallets that do not exist yet. It never writes to the store.
type Merger struct {
	store   storage.WalletStore
	workers int
	logger  zerolog.Logger
}

// NewMerger creates a Merger.
func NewMerger(opts Options) *Merger {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Merger{
		store:   opts.Store,
		workers: opts.Workers,
		logger:  opts.Logger.With().Str("component", "merge").Logger(),
	}
}

// Merge returns one wallet per cohort member, sorted by address. Each
// returned wallet carries its stored history plus an unscored participation
// built from the cohort's token snapshot and that member's trades.
// Merging the same cohort twice appends twice.
func (m *Merger) Merge(ctx context.Context, c *cohort.Cohort) ([]*domain.Wallet, error) {
	addrs := c.Addresses()
	out := make([]*domain.Wallet, 0, len(addrs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	for _, addr := range addrs {
		addr := addr
		trades := c.Wallets[addr]
		g.Go(func() error {
			w, err := m.load(gctx, addr)
			if err != nil {
				return err
			}
			w.Runners = append(w.Runners, Participation(c.Token, trades))

			mu.Lock()
			out = append(out, w)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("merge cohort %s: %w", c.Token.Address, err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	m.logger.Debug().Str("token", c.Token.Address).Int("wallets", len(out)).Msg("cohort merged")
	return out, nil
}

func (m *Merger) load(ctx context.Context, addr string) (*domain.Wallet, error) {
	w, err := m.store.GetByAddress(ctx, addr)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.NewWallet(addr), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load wallet %s: %w", addr, err)
	}
	return w, nil
}

// Participation builds an unscored participation from a token snapshot and trades.
func Participation(token domain.TokenSnapshot, trades *domain.Trades) domain.RunnerParticipation {
	p := domain.RunnerParticipation{TokenSnapshot: token}
	if trades != nil {
		p.Transactions.Buys = append([]domain.Transaction(nil), trades.Buys...)
		p.Transactions.Sells = append([]domain.Transaction(nil), trades.Sells...)
	}
	return p
}
