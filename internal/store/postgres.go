package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/wbcard-cli/internal/db"
	"github.com/sells-group/wbcard-cli/internal/model"
)

// PostgresStore implements Store using pgxpool. It lets a team share
// sessions and generated assets across workstations.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var (
	sessionUpsert = mustUpsert(db.UpsertConfig{
		Table:        "sessions",
		Columns:      []string{"id", "article", "status", "result", "log_entries", "validation_score", "error", "started_at", "updated_at"},
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{"article", "status", "result", "log_entries", "validation_score", "error", "updated_at"},
	})
	credentialsUpsert = mustUpsert(db.UpsertConfig{
		Table:        "credentials",
		Columns:      []string{"id", "username", "token", "saved_at"},
		ConflictKeys: []string{"id"},
	})
	assetsReplace = db.ReplaceConfig{
		Table:   "assets",
		KeyCol:  "session_id",
		Columns: []string{"id", "session_id", "position", "kind", "source", "file_name", "file_url", "source_url", "created_at"},
	}
)

func mustUpsert(cfg db.UpsertConfig) string {
	sql, err := db.UpsertSQL(cfg)
	if err != nil {
		panic(err)
	}
	return sql
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	article          TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'processing',
	result           JSONB,
	log_entries      JSONB NOT NULL DEFAULT '[]',
	validation_score DOUBLE PRECISION,
	error            TEXT NOT NULL DEFAULT '',
	active           BOOLEAN NOT NULL DEFAULT false,
	started_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS credentials (
	id       INTEGER PRIMARY KEY CHECK (id = 1),
	username TEXT NOT NULL,
	token    TEXT NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS assets (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	position   INTEGER NOT NULL,
	kind       TEXT NOT NULL,
	source     TEXT NOT NULL DEFAULT '',
	file_name  TEXT NOT NULL DEFAULT '',
	file_url   TEXT NOT NULL,
	source_url TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_article ON sessions(article);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_single_active ON sessions(active) WHERE active;
CREATE INDEX IF NOT EXISTS idx_assets_session_id ON assets(session_id, position);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, sess *model.Session) error {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if sess.StartedAt.IsZero() {
		sess.StartedAt = now
	}
	sess.UpdatedAt = now

	resultJSON, err := encodeResult(sess.Result)
	if err != nil {
		return eris.Wrap(err, "postgres: save session")
	}
	logsJSON, err := encodeLogs(sess.LogEntries)
	if err != nil {
		return eris.Wrap(err, "postgres: save session")
	}

	_, err = s.pool.Exec(ctx, sessionUpsert,
		sess.ID, sess.Article, string(sess.Status), resultJSON, logsJSON,
		sess.ValidationScore, sess.Error, sess.StartedAt, sess.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: save session %s", sess.ID)
}

const sessionUpdate = `UPDATE sessions SET
	article = $2, status = $3, result = $4, log_entries = $5,
	validation_score = $6, error = $7, updated_at = $8
WHERE id = $1`

func (s *PostgresStore) UpdateSession(ctx context.Context, sess *model.Session) error {
	sess.UpdatedAt = time.Now().UTC()

	resultJSON, err := encodeResult(sess.Result)
	if err != nil {
		return eris.Wrap(err, "postgres: update session")
	}
	logsJSON, err := encodeLogs(sess.LogEntries)
	if err != nil {
		return eris.Wrap(err, "postgres: update session")
	}

	tag, err := s.pool.Exec(ctx, sessionUpdate,
		sess.ID, sess.Article, string(sess.Status), resultJSON, logsJSON,
		sess.ValidationScore, sess.Error, sess.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update session %s", sess.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: update session %s", sess.ID)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	sess, err := scanPgSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get session %s", id)
	}
	return sess, err
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Article != "" {
		query += fmt.Sprintf(` AND article = $%d`, argIdx)
		args = append(args, filter.Article)
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanPgSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}

func (s *PostgresStore) SetActiveSession(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin set active")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `UPDATE sessions SET active = false WHERE active`); err != nil {
		return eris.Wrap(err, "postgres: clear active session")
	}
	tag, err := tx.Exec(ctx, `UPDATE sessions SET active = true WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: set active session %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "session %s", id)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit set active")
}

func (s *PostgresStore) ActiveSession(ctx context.Context) (*model.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE active LIMIT 1`)
	sess, err := scanPgSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return sess, err
}

func (s *PostgresStore) DeleteAllSessions(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete sessions")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) SaveCredentials(ctx context.Context, c model.Credentials) error {
	if c.SavedAt.IsZero() {
		c.SavedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, credentialsUpsert, 1, c.Username, c.Token, c.SavedAt)
	return eris.Wrap(err, "postgres: save credentials")
}

func (s *PostgresStore) LoadCredentials(ctx context.Context) (*model.Credentials, error) {
	var c model.Credentials
	err := s.pool.QueryRow(ctx,
		`SELECT username, token, saved_at FROM credentials WHERE id = 1`,
	).Scan(&c.Username, &c.Token, &c.SavedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load credentials")
	}
	return &c, nil
}

func (s *PostgresStore) ClearCredentials(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM credentials`)
	return eris.Wrap(err, "postgres: clear credentials")
}

func (s *PostgresStore) LoadAssets(ctx context.Context, sessionID string) ([]model.Asset, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, source, file_name, file_url, source_url, created_at
		 FROM assets WHERE session_id = $1 ORDER BY position`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load assets")
	}
	defer rows.Close()

	assets := []model.Asset{}
	for rows.Next() {
		var a model.Asset
		var kind string
		if err := rows.Scan(&a.ID, &kind, &a.Source, &a.FileName, &a.FileURL, &a.SourceURL, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan asset")
		}
		a.Kind = model.AssetKind(kind)
		assets = append(assets, a)
	}
	return assets, eris.Wrap(rows.Err(), "postgres: load assets iterate")
}

func (s *PostgresStore) SaveAssets(ctx context.Context, sessionID string, assets []model.Asset) error {
	rows := make([][]any, 0, len(assets))
	for i, a := range assets {
		prepareAsset(&a)
		rows = append(rows, []any{
			a.ID, sessionID, i, string(a.Kind), a.Source, a.FileName, a.FileURL, a.SourceURL, a.CreatedAt,
		})
	}
	_, err := db.ReplaceRows(ctx, s.pool, assetsReplace, sessionID, rows)
	return eris.Wrapf(err, "postgres: save assets for %s", sessionID)
}

func scanPgSession(row pgx.Row) (*model.Session, error) {
	var sess model.Session
	var status string
	var resultJSON, logsJSON []byte

	err := row.Scan(&sess.ID, &sess.Article, &status, &resultJSON, &logsJSON,
		&sess.ValidationScore, &sess.Error, &sess.Active, &sess.StartedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan session")
	}
	sess.Status = model.SessionStatus(status)

	if sess.Result, err = decodeResult(resultJSON); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal result")
	}
	if sess.LogEntries, err = decodeLogs(logsJSON); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal log entries")
	}
	return &sess, nil
}
