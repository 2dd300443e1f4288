package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"alpha-finder/internal/domain"
	"alpha-finder/internal/observability"
	"alpha-finder/internal/storage"
)

// ScoreSnapshotStore implements storage.ScoreSnapshotStore using ClickHouse.
type ScoreSnapshotStore struct {
	conn *Conn
}

// NewScoreSnapshotStore creates a new ScoreSnapshotStore.
func NewScoreSnapshotStore(conn *Conn) *ScoreSnapshotStore {
	return &ScoreSnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ScoreSnapshotStore = (*ScoreSnapshotStore)(nil)

// InsertBulk appends snapshots in a single batch.
func (s *ScoreSnapshotStore) InsertBulk(ctx context.Context, snapshots []*domain.ScoreSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	for _, snap := range snapshots {
		if snap == nil || snap.RunID == "" || snap.Wallet == "" {
			return storage.ErrInvalidInput
		}
	}

	start := time.Now()
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO wallet_score_snapshots (
			run_id, wallet, confidence_score, pnl, participations, badges, computed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, snap := range snapshots {
		err = batch.Append(
			snap.RunID, snap.Wallet, snap.ConfidenceScore, snap.PnL,
			uint32(snap.Participations), badgeStrings(snap.Badges),
			time.Unix(snap.ComputedAt, 0).UTC(),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	err = batch.Send()
	observability.RecordDBQuery("clickhouse", "insert_snapshots", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByWallet retrieves a wallet's snapshots ordered by computed_at ASC.
func (s *ScoreSnapshotStore) GetByWallet(ctx context.Context, wallet string) ([]*domain.ScoreSnapshot, error) {
	query := `
		SELECT run_id, wallet, confidence_score, pnl, participations, badges, computed_at
		FROM wallet_score_snapshots
		WHERE wallet = ?
		ORDER BY computed_at ASC, run_id ASC
	`

	rows, err := s.conn.Query(ctx, query, wallet)
	if err != nil {
		return nil, fmt.Errorf("query snapshots by wallet: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// GetByRun retrieves all snapshots of one cycle ordered by wallet ASC.
func (s *ScoreSnapshotStore) GetByRun(ctx context.Context, runID string) ([]*domain.ScoreSnapshot, error) {
	query := `
		SELECT run_id, wallet, confidence_score, pnl, participations, badges, computed_at
		FROM wallet_score_snapshots
		WHERE run_id = ?
		ORDER BY wallet ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query snapshots by run: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// chRows is the subset of driver.Rows used by scanners.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanSnapshots(rows chRows) ([]*domain.ScoreSnapshot, error) {
	var snapshots []*domain.ScoreSnapshot

	for rows.Next() {
		var (
			snap           domain.ScoreSnapshot
			confidence     decimal.Decimal
			pnl            decimal.Decimal
			participations uint32
			badges         []string
			computedAt     time.Time
		)
		if err := rows.Scan(&snap.RunID, &snap.Wallet, &confidence, &pnl, &participations, &badges, &computedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snap.ConfidenceScore = confidence
		snap.PnL = pnl
		snap.Participations = int(participations)
		snap.ComputedAt = computedAt.Unix()
		snap.Badges = make([]domain.Badge, len(badges))
		for i, b := range badges {
			snap.Badges[i] = domain.Badge(b)
		}
		snapshots = append(snapshots, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return snapshots, nil
}

func badgeStrings(badges []domain.Badge) []string {
	out := make([]string, len(badges))
	for i, b := range badges {
		out[i] = string(b)
	}
	return out
}
