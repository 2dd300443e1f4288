package migrations

import (
	"context"

	"alpha-finder/internal/storage/postgres"
)

// RunPostgresMigrations applies the embedded Postgres schema. Every file is
// idempotent and sent as a single multi-statement exec.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	scripts, err := load(PostgresFS, "postgres")
	if err != nil {
		return err
	}
	return apply(ctx, scripts, false, func(ctx context.Context, stmt string) error {
		_, err := pool.Exec(ctx, stmt)
		return err
	})
}
