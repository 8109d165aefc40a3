// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/gofrs/flock"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
	_ "modernc.org/sqlite"
)

// SQL dialects supported by SQLStore.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

var cacheColumns = []string{
	"id", "collected_at", "author_handle", "posted_at", "source_url", "view_count",
	"like_count", "comment_count", "transcript", "hook", "caption", "platform", "source",
}

// SQLStore is the relational cache store. Timestamps are stored as unix
// nanoseconds so ordering works the same way on every dialect.
type SQLStore struct {
	db      *sql.DB
	dialect string
	builder sq.StatementBuilderType
	mu      sync.Mutex
	lock    *flock.Flock // sqlite only; serialises writers across processes.
}

// OpenSQLiteStore opens (or creates) the database file at path.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	if path == "" {
		return nil, errors.New("sqlite cache requires a database path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	store := &SQLStore{
		db:      db,
		dialect: DialectSQLite,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
		lock:    flock.New(path + ".lock"),
	}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// OpenPostgresStore connects through the pgx stdlib driver.
func OpenPostgresStore(ctx context.Context, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres cache requires a DSN")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store := &SQLStore{
		db:      db,
		dialect: DialectPostgres,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, table := range []string{model.PlatformYouTube.Table(), model.PlatformInstagramReel.Table()} {
		statements := []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id TEXT NOT NULL,
				collected_at BIGINT NOT NULL,
				author_handle TEXT NOT NULL DEFAULT '',
				posted_at BIGINT NOT NULL DEFAULT 0,
				source_url TEXT NOT NULL,
				view_count BIGINT NOT NULL DEFAULT 0,
				like_count BIGINT NOT NULL DEFAULT 0,
				comment_count BIGINT NOT NULL DEFAULT 0,
				transcript TEXT NOT NULL,
				hook TEXT NOT NULL DEFAULT '-',
				caption TEXT NOT NULL DEFAULT '',
				platform TEXT NOT NULL,
				source TEXT NOT NULL DEFAULT ''
			)`, table),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_source_url_idx ON %s (source_url, collected_at)", table, table),
		}
		for _, stmt := range statements {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrate %s: %w", table, err)
			}
		}
	}
	return nil
}

func (s *SQLStore) Lookup(ctx context.Context, platform model.Platform, sourceURL string) (*model.CacheRecord, bool, error) {
	query, args, err := s.builder.
		Select(cacheColumns...).
		From(platform.Table()).
		Where(sq.Eq{"source_url": model.NormalizeURL(sourceURL)}).
		OrderBy("collected_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, false, err
	}
	var (
		record      model.CacheRecord
		collectedAt int64
		postedAt    int64
		platformCol string
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&record.Id, &collectedAt, &record.AuthorHandle, &postedAt, &record.SourceURL,
		&record.ViewCount, &record.LikeCount, &record.CommentCount, &record.Transcript,
		&record.Hook, &record.Caption, &platformCol, &record.Source,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup: %w", err)
	}
	record.CollectedAt = time.Unix(0, collectedAt).UTC()
	if postedAt != 0 {
		record.PostedAt = time.Unix(0, postedAt).UTC()
	}
	record.Platform = model.Platform(platformCol)
	return &record, true, nil
}

// Upsert replaces every row of the source URL with record in one transaction.
func (s *SQLStore) Upsert(ctx context.Context, record *model.CacheRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	return s.write(ctx, func(tx *sql.Tx) error {
		if s.dialect == DialectPostgres {
			if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", record.SourceURL); err != nil {
				return err
			}
		}
		query, args, err := s.builder.Delete(record.Platform.Table()).Where(sq.Eq{"source_url": record.SourceURL}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
		return s.insert(ctx, tx, record)
	})
}

func (s *SQLStore) Append(ctx context.Context, record *model.CacheRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	return s.write(ctx, func(tx *sql.Tx) error {
		return s.insert(ctx, tx, record)
	})
}

func (s *SQLStore) insert(ctx context.Context, tx *sql.Tx, record *model.CacheRecord) error {
	var postedAt int64
	if !record.PostedAt.IsZero() {
		postedAt = record.PostedAt.UnixNano()
	}
	query, args, err := s.builder.
		Insert(record.Platform.Table()).
		Columns(cacheColumns...).
		Values(record.Id, record.CollectedAt.UnixNano(), record.AuthorHandle, postedAt, record.SourceURL,
			record.ViewCount, record.LikeCount, record.CommentCount, record.Transcript,
			record.Hook, record.Caption, string(record.Platform), record.Source).
		ToSql()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

func (s *SQLStore) write(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lock != nil {
		if err := s.lock.Lock(); err != nil {
			return fmt.Errorf("acquire cache lock: %w", err)
		}
		defer func() { _ = s.lock.Unlock() }()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("cache write: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

func (s *SQLStore) KnownIDs(ctx context.Context, platform model.Platform) (map[string]bool, error) {
	query, args, err := s.builder.Select("DISTINCT id").From(platform.Table()).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("known ids: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("known ids: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
