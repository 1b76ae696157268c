package respcache

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS response_cache (
	key TEXT PRIMARY KEY,
	body BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS response_cache_expires_at ON response_cache (expires_at);
`

// Sqlite keeps the cache in a local database file, for single-binary
// deployments without a redis to lean on.
type Sqlite struct {
	db  *sql.DB
	now func() time.Time
}

func NewSqlite(path string) (*Sqlite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(sqliteSchema)
	if err != nil {
		return nil, err
	}
	return &Sqlite{db: db, now: time.Now}, nil
}

func (s *Sqlite) Get(ctx context.Context, key string) ([]byte, bool) {
	var body []byte
	var expiresAt int64
	err := s.db.QueryRowContext(
		ctx,
		"SELECT body, expires_at FROM response_cache WHERE key = ?",
		key,
	).Scan(&body, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		slog.WarnContext(ctx, "response cache read failed", "key", key, "err", err)
		return nil, false
	}
	if s.now().Unix() >= expiresAt {
		_, err = s.db.ExecContext(ctx, "DELETE FROM response_cache WHERE key = ?", key)
		if err != nil {
			slog.WarnContext(ctx, "response cache cleanup failed", "key", key, "err", err)
		}
		return nil, false
	}
	return body, true
}

func (s *Sqlite) Set(ctx context.Context, key string, body []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO response_cache (key, body, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET body = excluded.body, expires_at = excluded.expires_at`,
		key, body, s.now().Add(ttl).Unix(),
	)
	if err != nil {
		slog.WarnContext(ctx, "response cache write failed", "key", key, "err", err)
	}
}

func (s *Sqlite) Close() error {
	return s.db.Close()
}
