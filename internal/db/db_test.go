package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertSQL(t *testing.T) {
	sql, err := UpsertSQL(UpsertConfig{
		Table:        "sessions",
		Columns:      []string{"id", "article", "status"},
		ConflictKeys: []string{"id"},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "sessions" ("id", "article", "status") VALUES ($1, $2, $3) ON CONFLICT ("id") DO UPDATE SET "article" = EXCLUDED."article", "status" = EXCLUDED."status"`,
		sql)
}

func TestUpsertSQL_ExplicitUpdateCols(t *testing.T) {
	sql, err := UpsertSQL(UpsertConfig{
		Table:        "wbcard.credentials",
		Columns:      []string{"id", "token", "saved_at"},
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{"token"},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, `INSERT INTO "wbcard"."credentials"`)
	assert.Contains(t, sql, `DO UPDATE SET "token" = EXCLUDED."token"`)
	assert.NotContains(t, sql, `"saved_at" = EXCLUDED`)
}

func TestUpsertSQL_OnlyKeys(t *testing.T) {
	sql, err := UpsertSQL(UpsertConfig{
		Table:        "tags",
		Columns:      []string{"id"},
		ConflictKeys: []string{"id"},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "DO NOTHING")
}

func TestUpsertSQL_NoColumns(t *testing.T) {
	_, err := UpsertSQL(UpsertConfig{Table: "sessions", ConflictKeys: []string{"id"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestUpsertSQL_NoConflictKeys(t *testing.T) {
	_, err := UpsertSQL(UpsertConfig{Table: "sessions", Columns: []string{"id"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"wbcard.assets", `"wbcard"."assets"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeTable(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"id", "name", "value"})
	assert.Equal(t, `"id", "name", "value"`, result)
}

var assetCfg = ReplaceConfig{
	Table:   "assets",
	KeyCol:  "session_id",
	Columns: []string{"session_id", "position", "file_name"},
}

func TestReplaceRows_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "assets" WHERE "session_id" = \$1`).
		WithArgs("s1").
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectCopyFrom(pgx.Identifier{"assets"}, assetCfg.Columns).WillReturnResult(2)
	mock.ExpectCommit()

	rows := [][]any{{"s1", 0, "a.png"}, {"s1", 1, "b.png"}}
	n, err := ReplaceRows(context.Background(), mock, assetCfg, "s1", rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceRows_EmptyListOnlyDeletes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "assets"`).
		WithArgs("s1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	n, err := ReplaceRows(context.Background(), mock, assetCfg, "s1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceRows_CopyErrorRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "assets"`).
		WithArgs("s1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"assets"}, assetCfg.Columns).WillReturnError(fmt.Errorf("copy failed"))
	mock.ExpectRollback()

	_, err = ReplaceRows(context.Background(), mock, assetCfg, "s1", [][]any{{"s1", 0, "a.png"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO assets")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceRows_InvalidConfig(t *testing.T) {
	_, err := ReplaceRows(context.Background(), nil, ReplaceConfig{Table: "assets", Columns: []string{"a"}}, "s1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no key column")

	_, err = ReplaceRows(context.Background(), nil, ReplaceConfig{Table: "assets", KeyCol: "session_id"}, "s1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns")
}
