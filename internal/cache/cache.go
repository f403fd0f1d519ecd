package cache

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"lukechampine.com/blake3"

	"videocutter/internal/transcriber"
)

const schema = `
create table if not exists transcripts (
	id integer primary key autoincrement,
	media_hash text not null,
	model text not null,
	window_start real not null,
	window_end real not null,
	created_at integer not null,
	unique (media_hash, model, window_start, window_end)
);
create table if not exists tokens (
	transcript_id integer not null references transcripts(id) on delete cascade,
	seq integer not null,
	text text not null,
	start_s real not null,
	end_s real not null,
	primary key (transcript_id, seq)
);
`

// Key identifies one cached transcript. WindowEnd of -1 means the whole file.
type Key struct {
	MediaHash   string
	Model       string
	WindowStart float64
	WindowEnd   float64
}

// HashFile returns the hex blake3 digest of r
func HashFile(r io.Reader) (string, error) {
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("calculating blake3 hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashPath hashes the file at path
func HashPath(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer f.Close()
	return HashFile(f)
}

// Cache stores finished transcripts in sqlite
type Cache struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens or creates the cache database. ":memory:" gives a private in-memory cache.
func Open(path string, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
		dsn = "file:" + path + "?_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening transcript cache: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating transcript cache schema: %w", err)
	}

	logger.Info("transcript cache opened", zap.String("path", path))
	return &Cache{db: db, logger: logger}, nil
}

// Get returns the cached tokens for key
func (c *Cache) Get(ctx context.Context, key Key) ([]transcriber.Token, bool, error) {
	var id int64
	err := c.db.QueryRowContext(ctx,
		"select id from transcripts where media_hash = $1 and model = $2 and window_start = $3 and window_end = $4",
		key.MediaHash, key.Model, key.WindowStart, key.WindowEnd,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get transcript by hash: %w", err)
	}

	rows, err := c.db.QueryContext(ctx,
		"select text, start_s, end_s from tokens where transcript_id = $1 order by seq", id)
	if err != nil {
		return nil, false, fmt.Errorf("get transcript tokens: %w", err)
	}
	defer rows.Close()

	tokens := []transcriber.Token{}
	for rows.Next() {
		var t transcriber.Token
		if err := rows.Scan(&t.Text, &t.Start, &t.End); err != nil {
			return nil, false, fmt.Errorf("scanning transcript token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("reading transcript tokens: %w", err)
	}

	c.logger.Debug("transcript cache hit",
		zap.String("media_hash", key.MediaHash),
		zap.Int("tokens", len(tokens)))
	return tokens, true, nil
}

// Put replaces the transcript stored under key
func (c *Cache) Put(ctx context.Context, key Key, tokens []transcriber.Token) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storing transcript: begin trx: %w", err)
	}

	if err := c.put(ctx, tx, key, tokens); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return fmt.Errorf("rollback store transcript: %w", rerr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storing transcript: committing: %w", err)
	}

	c.logger.Info("transcript cached",
		zap.String("media_hash", key.MediaHash),
		zap.String("model", key.Model),
		zap.Int("tokens", len(tokens)))
	return nil
}

func (c *Cache) put(ctx context.Context, tx *sql.Tx, key Key, tokens []transcriber.Token) error {
	var old int64
	err := tx.QueryRowContext(ctx,
		"select id from transcripts where media_hash = $1 and model = $2 and window_start = $3 and window_end = $4",
		key.MediaHash, key.Model, key.WindowStart, key.WindowEnd,
	).Scan(&old)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx, "delete from tokens where transcript_id = $1", old); err != nil {
			return fmt.Errorf("deleting stale tokens: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "delete from transcripts where id = $1", old); err != nil {
			return fmt.Errorf("deleting stale transcript: %w", err)
		}
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("looking up transcript: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		"insert into transcripts (media_hash, model, window_start, window_end, created_at) values ($1, $2, $3, $4, $5)",
		key.MediaHash, key.Model, key.WindowStart, key.WindowEnd, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("persisting transcript into sqlite: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading transcript id: %w", err)
	}

	for first := 0; first < len(tokens); first += insertBatch {
		last := first + insertBatch
		if last > len(tokens) {
			last = len(tokens)
		}
		if err := insertTokens(ctx, tx, id, first, tokens[first:last]); err != nil {
			return err
		}
	}
	return nil
}

// insertBatch keeps each statement well under sqlite's bound-parameter limit
const insertBatch = 500

func insertTokens(ctx context.Context, tx *sql.Tx, id int64, offset int, tokens []transcriber.Token) error {
	var query strings.Builder
	query.WriteString("insert into tokens (transcript_id, seq, text, start_s, end_s) values ")
	args := make([]any, 0, 5*len(tokens))
	for n, t := range tokens {
		if n > 0 {
			query.WriteString(", ")
		}
		query.WriteString("(?, ?, ?, ?, ?)")
		args = append(args, id, offset+n, t.Text, t.Start, t.End)
	}
	if _, err := tx.ExecContext(ctx, query.String(), args...); err != nil {
		return fmt.Errorf("inserting tokens: %w", err)
	}
	return nil
}

// Close closes the database
func (c *Cache) Close() error {
	return c.db.Close()
}
