package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"alpha-finder/internal/domain"
	"alpha-finder/internal/storage"
)

// RunnerTokenStore implements storage.RunnerTokenStore using PostgreSQL.
type RunnerTokenStore struct {
	pool *Pool
}

// NewRunnerTokenStore creates a new RunnerTokenStore.
func NewRunnerTokenStore(pool *Pool) *RunnerTokenStore {
	return &RunnerTokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunnerTokenStore = (*RunnerTokenStore)(nil)

const runnerTokenColumns = `
	address, name, symbol, logo,
	ath_price::text, ath_market_cap::text, total_supply::text,
	created_at, early_ts, late_ts, two_million_ts, five_million_ts, checked
`

// Insert adds a new runner token. Returns ErrDuplicateKey if address exists.
func (s *RunnerTokenStore) Insert(ctx context.Context, t *domain.RunnerToken) error {
	if t == nil || t.Address == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO runner_tokens (
			address, name, symbol, logo, ath_price, ath_market_cap, total_supply,
			created_at, early_ts, late_ts, two_million_ts, five_million_ts, checked
		) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.pool.Exec(ctx, query,
		t.Address,
		t.Name,
		t.Symbol,
		t.Logo,
		t.ATHPrice.String(),
		t.ATHMarketCap.String(),
		t.TotalSupply.String(),
		t.CreatedAt,
		t.Milestones.Early,
		t.Milestones.Late,
		t.Milestones.TwoMillion,
		t.Milestones.FiveMillion,
		t.Checked,
	)
	return translate(err, "insert runner token")
}

// GetByAddress retrieves a runner token. Returns ErrNotFound if not exists.
func (s *RunnerTokenStore) GetByAddress(ctx context.Context, address string) (*domain.RunnerToken, error) {
	query := `SELECT ` + runnerTokenColumns + ` FROM runner_tokens WHERE address = $1`

	t, err := scanRunnerToken(s.pool.QueryRow(ctx, query, address))
	if err != nil {
		return nil, translate(err, "get runner token")
	}
	return t, nil
}

// GetAll retrieves all runner tokens ordered by created_at ASC, address ASC.
func (s *RunnerTokenStore) GetAll(ctx context.Context) ([]*domain.RunnerToken, error) {
	query := `SELECT ` + runnerTokenColumns + ` FROM runner_tokens ORDER BY created_at ASC, address ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all runner tokens: %w", err)
	}
	defer rows.Close()

	return scanRunnerTokens(rows)
}

// GetUnchecked retrieves runner tokens with checked = false.
func (s *RunnerTokenStore) GetUnchecked(ctx context.Context) ([]*domain.RunnerToken, error) {
	query := `SELECT ` + runnerTokenColumns + `
		FROM runner_tokens
		WHERE checked = FALSE
		ORDER BY created_at ASC, address ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get unchecked runner tokens: %w", err)
	}
	defer rows.Close()

	return scanRunnerTokens(rows)
}

// Count returns the total number of runner tokens.
func (s *RunnerTokenStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM runner_tokens`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count runner tokens: %w", err)
	}
	return n, nil
}

// MarkChecked sets checked = true. Returns ErrNotFound if not exists.
func (s *RunnerTokenStore) MarkChecked(ctx context.Context, address string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE runner_tokens SET checked = TRUE WHERE address = $1`, address)
	if err != nil {
		return fmt.Errorf("mark runner token checked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanRunnerToken scans a single row into a RunnerToken.
func scanRunnerToken(row pgx.Row) (*domain.RunnerToken, error) {
	var t domain.RunnerToken
	var athPrice, athMarketCap, totalSupply string

	err := row.Scan(
		&t.Address,
		&t.Name,
		&t.Symbol,
		&t.Logo,
		&athPrice,
		&athMarketCap,
		&totalSupply,
		&t.CreatedAt,
		&t.Milestones.Early,
		&t.Milestones.Late,
		&t.Milestones.TwoMillion,
		&t.Milestones.FiveMillion,
		&t.Checked,
	)
	if err != nil {
		return nil, err
	}

	if t.ATHPrice, err = decimal.NewFromString(athPrice); err != nil {
		return nil, fmt.Errorf("parse ath_price: %w", err)
	}
	if t.ATHMarketCap, err = decimal.NewFromString(athMarketCap); err != nil {
		return nil, fmt.Errorf("parse ath_market_cap: %w", err)
	}
	if t.TotalSupply, err = decimal.NewFromString(totalSupply); err != nil {
		return nil, fmt.Errorf("parse total_supply: %w", err)
	}
	return &t, nil
}

// scanRunnerTokens scans multiple rows into a slice of RunnerToken.
func scanRunnerTokens(rows pgx.Rows) ([]*domain.RunnerToken, error) {
	var tokens []*domain.RunnerToken

	for rows.Next() {
		t, err := scanRunnerToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan runner token row: %w", err)
		}
		tokens = append(tokens, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runner token rows: %w", err)
	}

	return tokens, nil
}
