// internal/store/sqlite.go
//
// SQLite-backed KV implementation over the shared database handle.
// Rows live in the kv table keyed (owner, key); ForOwner scopes a KV view
// to one owner (user ID or anonymous cookie ID) so the same logical keys
// ("gameStats_daily", "dailyGameState", ...) never collide across players.

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// sqliteKV is a KV view over one owner's rows.
type sqliteKV struct {
	db    *sql.DB
	owner string
}

// ForOwner returns a KV scoped to the given owner identifier.
func ForOwner(db *sql.DB, owner string) KV {
	return &sqliteKV{db: db, owner: owner}
}

func (s *sqliteKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE owner=? AND key=?`, s.owner, key,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *sqliteKV) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO kv (owner, key, value, updated_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(owner, key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		s.owner, key, value, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *sqliteKV) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE owner=? AND key=?`, s.owner, key)
	return err
}
