package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// ReplaceConfig names the rows owned by one key in a table.
type ReplaceConfig struct {
	Table   string   // target table, optionally schema-qualified
	KeyCol  string   // column that scopes the rows (e.g. session_id)
	Columns []string // columns written by COPY
}

// ReplaceRows atomically swaps every row whose KeyCol equals key for rows.
// 1. DELETE the existing rows for key
// 2. COPY the new rows in
// Both run in one transaction so readers never see a partial list.
func ReplaceRows(ctx context.Context, pool Pool, cfg ReplaceConfig, key any, rows [][]any) (int64, error) {
	if cfg.KeyCol == "" {
		return 0, eris.New("db: replace: no key column specified")
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: replace: no columns specified")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: replace: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE %s = $1",
		sanitizeTable(cfg.Table), pgx.Identifier{cfg.KeyCol}.Sanitize())
	if _, err := tx.Exec(ctx, deleteSQL, key); err != nil {
		return 0, eris.Wrapf(err, "db: replace: delete from %s", cfg.Table)
	}

	var n int64
	if len(rows) > 0 {
		n, err = tx.CopyFrom(ctx, identifier(cfg.Table), cfg.Columns, pgx.CopyFromRows(rows))
		if err != nil {
			return 0, eris.Wrapf(err, "db: replace: COPY INTO %s", cfg.Table)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: replace: commit tx")
	}
	return n, nil
}
