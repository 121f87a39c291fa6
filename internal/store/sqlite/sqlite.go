package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"urlitrim/internal/core"
	"urlitrim/internal/store"
)

// Store implements core.Store backed by SQLite. Timestamps are stored as
// Unix milliseconds so range predicates compare numerically.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite DB at path and applies migrations.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA foreign_keys = ON;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logger.Warn("sqlite pragma failed", "pragma", pragma, "err", err)
		}
	}

	if err := applyMigrations(db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying DB.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

const linkColumns = `id, short_code, original_url, created_at, clicks, expires_at, max_clicks, password, show_preview`

// CreateLink inserts l and sets its ID. Returns core.ErrConflict if the code is taken.
func (s *Store) CreateLink(ctx context.Context, l *core.Link) error {
	const q = `
INSERT INTO links(short_code, original_url, created_at, clicks, expires_at, max_clicks, password, show_preview)
VALUES (?, ?, ?, 0, ?, ?, ?, ?);`
	res, err := s.db.ExecContext(ctx, q,
		l.ShortCode,
		l.OriginalURL,
		toMillis(l.CreatedAt),
		nullMillis(l.ExpiresAt),
		nullInt(l.MaxClicks),
		nullString(l.PasswordHash),
		l.ShowPreview,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrConflict
		}
		return storageErr("create link", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return storageErr("create link", err)
	}
	l.ID = id
	l.Clicks = 0
	return nil
}

// CodeExists reports whether code is already assigned.
func (s *Store) CodeExists(ctx context.Context, code string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM links WHERE short_code = ? LIMIT 1;`, code).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, storageErr("code exists", err)
	}
	return true, nil
}

// FindLinkByCode returns the link for code (expired included).
func (s *Store) FindLinkByCode(ctx context.Context, code string) (*core.Link, error) {
	q := `SELECT ` + linkColumns + ` FROM links WHERE short_code = ? LIMIT 1;`
	l, err := scanLink(s.db.QueryRowContext(ctx, q, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, storageErr("find link", err)
	}
	return l, nil
}

// FindLinksByCodes returns the existing links among codes, oldest first.
func (s *Store) FindLinksByCodes(ctx context.Context, codes []string) ([]core.Link, error) {
	if len(codes) == 0 {
		return []core.Link{}, nil
	}
	args := make([]any, len(codes))
	for i, c := range codes {
		args[i] = c
	}
	q := `SELECT ` + linkColumns + ` FROM links WHERE short_code IN (` + placeholders(len(codes)) + `) ORDER BY created_at, id;`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageErr("find links", err)
	}
	defer rows.Close()

	out := make([]core.Link, 0, len(codes))
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, storageErr("find links", err)
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("find links", err)
	}
	return out, nil
}

// RecordClick increments the link's counter and inserts c in one
// transaction. The increment is conditional on the link being unexpired
// and under its cap at now; if not, nothing is written and
// core.ErrNotFound is returned.
func (s *Store) RecordClick(ctx context.Context, c core.Click, now time.Time) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("record click", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const bump = `
UPDATE links SET clicks = clicks + 1
WHERE id = ?
  AND (expires_at IS NULL OR expires_at > ?)
  AND (max_clicks IS NULL OR clicks < max_clicks);`
	res, err := tx.ExecContext(ctx, bump, c.LinkID, toMillis(now))
	if err != nil {
		return storageErr("record click", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("record click", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}

	const insert = `
INSERT INTO clicks(link_id, timestamp, referrer, user_agent, country)
VALUES (?, ?, ?, ?, ?);`
	if _, err = tx.ExecContext(ctx, insert,
		c.LinkID,
		toMillis(c.Timestamp),
		nullString(c.Referrer),
		nullString(c.UserAgent),
		nullString(c.Country),
	); err != nil {
		return storageErr("record click", err)
	}

	if err = tx.Commit(); err != nil {
		return storageErr("record click", err)
	}
	return nil
}

// FindClicksByLinkIDs returns clicks for ids at or after since, oldest first.
func (s *Store) FindClicksByLinkIDs(ctx context.Context, ids []int64, since time.Time) ([]core.Click, error) {
	if len(ids) == 0 {
		return []core.Click{}, nil
	}
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, toMillis(since))

	q := `
SELECT id, link_id, timestamp, referrer, user_agent, country
FROM clicks
WHERE link_id IN (` + placeholders(len(ids)) + `) AND timestamp >= ?
ORDER BY timestamp, id;`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageErr("find clicks", err)
	}
	defer rows.Close()

	out := []core.Click{}
	for rows.Next() {
		var (
			c                    core.Click
			ts                   int64
			ref, ua, countryCode sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.LinkID, &ts, &ref, &ua, &countryCode); err != nil {
			return nil, storageErr("find clicks", err)
		}
		c.Timestamp = fromMillis(ts)
		c.Referrer = ref.String
		c.UserAgent = ua.String
		c.Country = countryCode.String
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("find clicks", err)
	}
	return out, nil
}

// DeleteExpiredLinks deletes links expired at now together with their
// clicks, and returns the number of links removed.
func (s *Store) DeleteExpiredLinks(ctx context.Context, now time.Time) (deleted int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("delete expired", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	cutoff := toMillis(now)
	// Explicit so the sweep does not depend on the foreign_keys pragma.
	const dropClicks = `
DELETE FROM clicks
WHERE link_id IN (SELECT id FROM links WHERE expires_at IS NOT NULL AND expires_at <= ?);`
	if _, err = tx.ExecContext(ctx, dropClicks, cutoff); err != nil {
		return 0, storageErr("delete expired", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM links WHERE expires_at IS NOT NULL AND expires_at <= ?;`, cutoff)
	if err != nil {
		return 0, storageErr("delete expired", err)
	}
	deleted, err = res.RowsAffected()
	if err != nil {
		return 0, storageErr("delete expired", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, storageErr("delete expired", err)
	}
	return deleted, nil
}

// ---- helpers ----

type scanner interface {
	Scan(dest ...any) error
}

func scanLink(row scanner) (*core.Link, error) {
	var (
		l         core.Link
		created   int64
		expires   sql.NullInt64
		maxClicks sql.NullInt64
		password  sql.NullString
	)
	if err := row.Scan(&l.ID, &l.ShortCode, &l.OriginalURL, &created, &l.Clicks,
		&expires, &maxClicks, &password, &l.ShowPreview); err != nil {
		return nil, err
	}
	l.CreatedAt = fromMillis(created)
	if expires.Valid {
		t := fromMillis(expires.Int64)
		l.ExpiresAt = &t
	}
	if maxClicks.Valid {
		n := maxClicks.Int64
		l.MaxClicks = &n
	}
	l.PasswordHash = password.String
	return &l, nil
}

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func storageErr(op string, err error) error {
	return &core.StorageError{Op: op, Err: err}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toMillis(*t)
}

func nullInt(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ store.Store = (*Store)(nil)
