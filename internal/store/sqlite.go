package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/wbcard-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// pragmas below are per connection
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY,
	article          TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'processing',
	result           TEXT,
	log_entries      TEXT NOT NULL DEFAULT '[]',
	validation_score REAL,
	error            TEXT NOT NULL DEFAULT '',
	active           INTEGER NOT NULL DEFAULT 0,
	started_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS credentials (
	id       INTEGER PRIMARY KEY CHECK (id = 1),
	username TEXT NOT NULL,
	token    TEXT NOT NULL,
	saved_at DATETIME NOT NULL DEFAULT (datetime('now'))
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
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_article ON sessions(article);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
CREATE INDEX IF NOT EXISTS idx_assets_session_id ON assets(session_id, position);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sessionColumns = `id, article, status, result, log_entries, validation_score, error, active, started_at, updated_at`

func (s *SQLiteStore) SaveSession(ctx context.Context, sess *model.Session) error {
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
		return eris.Wrap(err, "sqlite: save session")
	}
	logsJSON, err := encodeLogs(sess.LogEntries)
	if err != nil {
		return eris.Wrap(err, "sqlite: save session")
	}

	var result any
	if resultJSON != nil {
		result = string(resultJSON)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, article, status, result, log_entries, validation_score, error, started_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			article = excluded.article,
			status = excluded.status,
			result = excluded.result,
			log_entries = excluded.log_entries,
			validation_score = excluded.validation_score,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		sess.ID, sess.Article, string(sess.Status), result, string(logsJSON),
		nullFloat(sess.ValidationScore), sess.Error, sess.StartedAt, sess.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: save session %s", sess.ID)
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, sess *model.Session) error {
	sess.UpdatedAt = time.Now().UTC()

	resultJSON, err := encodeResult(sess.Result)
	if err != nil {
		return eris.Wrap(err, "sqlite: update session")
	}
	logsJSON, err := encodeLogs(sess.LogEntries)
	if err != nil {
		return eris.Wrap(err, "sqlite: update session")
	}

	var result any
	if resultJSON != nil {
		result = string(resultJSON)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET
			article = ?, status = ?, result = ?, log_entries = ?,
			validation_score = ?, error = ?, updated_at = ?
		 WHERE id = ?`,
		sess.Article, string(sess.Status), result, string(logsJSON),
		nullFloat(sess.ValidationScore), sess.Error, sess.UpdatedAt, sess.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update session %s", sess.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: update session %s", sess.ID)
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: update session %s", sess.ID)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: session %s", id)
	}
	return sess, err
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Article != "" {
		query += ` AND article = ?`
		args = append(args, filter.Article)
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

func (s *SQLiteStore) SetActiveSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin set active")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET active = 0 WHERE active = 1`); err != nil {
		return eris.Wrap(err, "sqlite: clear active session")
	}
	res, err := tx.ExecContext(ctx, `UPDATE sessions SET active = 1 WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set active session %s", id)
	}
	if err := checkRowsAffected(res, "session", id); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit set active")
}

func (s *SQLiteStore) ActiveSession(ctx context.Context) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE active = 1 LIMIT 1`)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sess, err
}

func (s *SQLiteStore) DeleteAllSessions(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin delete sessions")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM assets`); err != nil {
		return 0, eris.Wrap(err, "sqlite: delete assets")
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete sessions")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), eris.Wrap(tx.Commit(), "sqlite: commit delete sessions")
}

func (s *SQLiteStore) SaveCredentials(ctx context.Context, c model.Credentials) error {
	if c.SavedAt.IsZero() {
		c.SavedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (id, username, token, saved_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET username = excluded.username, token = excluded.token, saved_at = excluded.saved_at`,
		c.Username, c.Token, c.SavedAt,
	)
	return eris.Wrap(err, "sqlite: save credentials")
}

func (s *SQLiteStore) LoadCredentials(ctx context.Context) (*model.Credentials, error) {
	var c model.Credentials
	err := s.db.QueryRowContext(ctx,
		`SELECT username, token, saved_at FROM credentials WHERE id = 1`,
	).Scan(&c.Username, &c.Token, &c.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load credentials")
	}
	return &c, nil
}

func (s *SQLiteStore) ClearCredentials(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM credentials`)
	return eris.Wrap(err, "sqlite: clear credentials")
}

func (s *SQLiteStore) LoadAssets(ctx context.Context, sessionID string) ([]model.Asset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, source, file_name, file_url, source_url, created_at
		 FROM assets WHERE session_id = ? ORDER BY position`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load assets")
	}
	defer rows.Close()

	assets := []model.Asset{}
	for rows.Next() {
		var a model.Asset
		if err := rows.Scan(&a.ID, &a.Kind, &a.Source, &a.FileName, &a.FileURL, &a.SourceURL, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan asset")
		}
		assets = append(assets, a)
	}
	return assets, eris.Wrap(rows.Err(), "sqlite: load assets iterate")
}

func (s *SQLiteStore) SaveAssets(ctx context.Context, sessionID string, assets []model.Asset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save assets")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM assets WHERE session_id = ?`, sessionID); err != nil {
		return eris.Wrapf(err, "sqlite: clear assets for %s", sessionID)
	}
	for i, a := range assets {
		prepareAsset(&a)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO assets (id, session_id, position, kind, source, file_name, file_url, source_url, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, sessionID, i, string(a.Kind), a.Source, a.FileName, a.FileURL, a.SourceURL, a.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert asset %s", a.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save assets")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSession(row scannable) (*model.Session, error) {
	var sess model.Session
	var resultJSON sql.NullString
	var logsJSON string
	var score sql.NullFloat64
	var active int

	err := row.Scan(&sess.ID, &sess.Article, &sess.Status, &resultJSON, &logsJSON,
		&score, &sess.Error, &active, &sess.StartedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan session")
	}

	if resultJSON.Valid {
		if sess.Result, err = decodeResult([]byte(resultJSON.String)); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	if sess.LogEntries, err = decodeLogs([]byte(logsJSON)); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal log entries")
	}
	if score.Valid {
		v := score.Float64
		sess.ValidationScore = &v
	}
	sess.Active = active == 1
	return &sess, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// prepareAsset fills the id and timestamp of an asset that has none yet.
func prepareAsset(a *model.Asset) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
}
