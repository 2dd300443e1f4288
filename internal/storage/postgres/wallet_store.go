package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"alpha-finder/internal/domain"
	"alpha-finder/internal/observability"
	"alpha-finder/internal/storage"
)

// WalletStore implements storage.WalletStore using PostgreSQL.
// Participations are stored as a JSONB array on the wallet row.
type WalletStore struct {
	pool *Pool
}

// NewWalletStore creates a new WalletStore.
func NewWalletStore(pool *Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

const walletColumns = `address, runners, confidence_score::text, pnl::text, badges, updated_at`

// GetByAddress retrieves a wallet. Returns ErrNotFound if not exists.
func (s *WalletStore) GetByAddress(ctx context.Context, address string) (*domain.Wallet, error) {
	start := time.Now()
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE address = $1`

	w, err := scanWallet(s.pool.QueryRow(ctx, query, address))
	err = translate(err, "get wallet")
	recorded := err
	if errors.Is(err, storage.ErrNotFound) {
		recorded = nil
	}
	observability.RecordDBQuery("postgres", "get_wallet", time.Since(start).Seconds(), recorded)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Upsert inserts the wallet or replaces the stored row.
func (s *WalletStore) Upsert(ctx context.Context, w *domain.Wallet) error {
	if w == nil || w.Address == "" {
		return storage.ErrInvalidInput
	}

	runners := w.Runners
	if runners == nil {
		runners = []domain.RunnerParticipation{}
	}
	runnersJSON, err := json.Marshal(runners)
	if err != nil {
		return fmt.Errorf("encode wallet runners: %w", err)
	}

	query := `
		INSERT INTO wallets (address, runners, confidence_score, pnl, badges, updated_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6)
		ON CONFLICT (address) DO UPDATE SET
			runners = EXCLUDED.runners,
			confidence_score = EXCLUDED.confidence_score,
			pnl = EXCLUDED.pnl,
			badges = EXCLUDED.badges,
			updated_at = EXCLUDED.updated_at
	`

	start := time.Now()
	_, err = s.pool.Exec(ctx, query,
		w.Address,
		runnersJSON,
		w.ConfidenceScore.String(),
		w.PnL.String(),
		badgeStrings(w.Badges),
		w.UpdatedAt,
	)
	observability.RecordDBQuery("postgres", "upsert_wallet", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("upsert wallet: %w", err)
	}
	return nil
}

// List retrieves all wallets ordered by address ASC.
func (s *WalletStore) List(ctx context.Context) ([]*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets ORDER BY address ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []*domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet row: %w", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet rows: %w", err)
	}
	return wallets, nil
}

// scanWallet scans a single row into a Wallet.
func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var (
		w           domain.Wallet
		runnersJSON []byte
		confidence  string
		pnl         string
		badgeStrs   []string
	)

	if err := row.Scan(&w.Address, &runnersJSON, &confidence, &pnl, &badgeStrs, &w.UpdatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(runnersJSON, &w.Runners); err != nil {
		return nil, fmt.Errorf("decode wallet runners: %w", err)
	}
	var err error
	if w.ConfidenceScore, err = decimal.NewFromString(confidence); err != nil {
		return nil, fmt.Errorf("parse confidence_score: %w", err)
	}
	if w.PnL, err = decimal.NewFromString(pnl); err != nil {
		return nil, fmt.Errorf("parse pnl: %w", err)
	}
	w.Badges = make([]domain.Badge, len(badgeStrs))
	for i, b := range badgeStrs {
		w.Badges[i] = domain.Badge(b)
	}
	return &w, nil
}

func badgeStrings(badges []domain.Badge) []string {
	out := make([]string, len(badges))
	for i, b := range badges {
		out[i] = string(b)
	}
	return out
}
