// Package sqlite implements the post store on an embedded SQLite database,
// so a restart keeps the correlation window it had built up.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/calbers/lastwords/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	rkey TEXT PRIMARY KEY,
	inserted_at INTEGER NOT NULL,
	value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_posts_inserted_at ON posts (inserted_at);
`

// Store implements store.PostStore on SQLite. The rkey primary key gives the
// insert-if-absent semantics the create path needs; the inserted_at index
// serves age trimming and the oldest/newest probes.
type Store struct {
	db       *sql.DB
	maxItems int64
	maxAge   int64 // milliseconds
	logger   *slog.Logger
}

var _ store.PostStore = (*Store)(nil)

// NewStore opens (or creates) the database at path and prepares the schema.
// The caller should Close the store when done with it.
func NewStore(path string, maxItems int64, maxAge int64, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// The ingestion controller is the sole writer and SQLite allows one
	// writer at a time; a single connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set synchronous: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, maxItems: maxItems, maxAge: maxAge, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Put(ctx context.Context, t int64, rkey string, v store.Value) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO posts (rkey, inserted_at, value)
		VALUES (?, ?, ?)
		ON CONFLICT (rkey) DO NOTHING`,
		rkey, t, string(encoded),
	)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return s.Trim(ctx, t)
}

func (s *Store) Update(ctx context.Context, t int64, rkey string, v store.Value) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}

	// inserted_at stays: the post's age is measured from its creation.
	_, err = s.db.ExecContext(ctx,
		`UPDATE posts SET value = ? WHERE rkey = ?`,
		string(encoded), rkey,
	)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	return s.Trim(ctx, t)
}

func (s *Store) Take(ctx context.Context, now int64, rkey string) (*store.TakenPost, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var insertedAt int64
	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT inserted_at, value FROM posts WHERE rkey = ?`, rkey,
	).Scan(&insertedAt, &raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query post: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE rkey = ?`, rkey); err != nil {
		return nil, fmt.Errorf("delete post: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit take: %w", err)
	}

	if insertedAt < now-s.maxAge {
		// present but expired: purged above, not found for correlation
		return nil, nil
	}

	var v store.Value
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		// a single corrupt record must not abort the cycle
		s.logger.Error("corrupt stored value, dropping", "rkey", rkey, "error", err)
		return nil, nil
	}

	return &store.TakenPost{Value: v, Age: now - insertedAt}, nil
}

func (s *Store) Size(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return count, nil
}

func (s *Store) Oldest(ctx context.Context) (int64, bool, error) {
	return s.edge(ctx, `SELECT MIN(inserted_at) FROM posts`)
}

func (s *Store) Newest(ctx context.Context) (int64, bool, error) {
	return s.edge(ctx, `SELECT MAX(inserted_at) FROM posts`)
}

func (s *Store) edge(ctx context.Context, query string) (int64, bool, error) {
	var t sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query).Scan(&t); err != nil {
		return 0, false, fmt.Errorf("query edge: %w", err)
	}
	if !t.Valid {
		return 0, false, nil
	}
	return t.Int64, true, nil
}

// Trim drops entries older than now-maxAge, then any excess beyond maxItems,
// keeping the most recently inserted. Both bounds are enforced together.
func (s *Store) Trim(ctx context.Context, now int64) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM posts WHERE inserted_at < ?`, now-s.maxAge,
	); err != nil {
		return fmt.Errorf("delete expired posts: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM posts WHERE rkey IN (
			SELECT rkey FROM posts
			ORDER BY inserted_at DESC
			LIMIT -1 OFFSET ?
		)`, s.maxItems,
	); err != nil {
		return fmt.Errorf("delete excess posts: %w", err)
	}

	return nil
}
