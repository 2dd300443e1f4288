package storage

import (
	"context"

	"alpha-finder/internal/domain"
)

// WalletStore provides access to wallets storage.
type WalletStore interface {
	// GetByAddress retrieves a wallet with its participations. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, address string) (*domain.Wallet, error)

	// Upsert inserts the wallet or replaces the stored one. Last writer wins.
	Upsert(ctx context.Context, w *domain.Wallet) error

	// List retrieves all wallets ordered by address ASC.
	List(ctx context.Context) ([]*domain.Wallet, error)
}

// RunnerTokenStore provides access to runner_tokens storage.
type RunnerTokenStore interface {
	// Insert adds a new runner token. Returns ErrDuplicateKey if address exists.
	Insert(ctx context.Context, t *domain.RunnerToken) error

	// GetByAddress retrieves a runner token. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, address string) (*domain.RunnerToken, error)

	// GetAll retrieves all runner tokens ordered by created_at ASC, address ASC.
	GetAll(ctx context.Context) ([]*domain.RunnerToken, error)

	// GetUnchecked retrieves runner tokens with checked = false, same order as GetAll.
	GetUnchecked(ctx context.Context) ([]*domain.RunnerToken, error)

	// Count returns the total number of runner tokens.
	Count(ctx context.Context) (int, error)

	// MarkChecked sets checked = true. Returns ErrNotFound if not exists.
	MarkChecked(ctx context.Context, address string) error
}

// ScoreSnapshotStore provides access to wallet_score_snapshots storage.
type ScoreSnapshotStore interface {
	// InsertBulk appends snapshots. Snapshots are append-only.
	InsertBulk(ctx context.Context, snapshots []*domain.ScoreSnapshot) error

	// GetByWallet retrieves a wallet's snapshots ordered by computed_at ASC.
	GetByWallet(ctx context.Context, wallet string) ([]*domain.ScoreSnapshot, error)

	// GetByRun retrieves all snapshots of one cycle ordered by wallet ASC.
	GetByRun(ctx context.Context, runID string) ([]*domain.ScoreSnapshot, error)
}
