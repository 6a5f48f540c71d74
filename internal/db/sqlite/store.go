// Package sqlite implements the content store on SQLite with an FTS5 keyword index.
// Each collection lives in its own database file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/kailas-cloud/ragstore/internal/db"
	"github.com/kailas-cloud/ragstore/internal/db/sqlite/migrations"
	"github.com/kailas-cloud/ragstore/internal/domain"
)

// Compile-time check: Store implements db.ContentStore.
var _ db.ContentStore = (*Store)(nil)

// DefaultBusyTimeout is how long a writer waits for SQLite's write lock.
const DefaultBusyTimeout = 5 * time.Second

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Store is one collection database. A Store returned to a WithTx callback
// runs every statement inside that transaction.
type Store struct {
	db   *sql.DB
	q    querier
	tx   *sql.Tx
	path string
}

// Open opens (creating if needed) the database at path, probes FTS5 and applies migrations.
func Open(ctx context.Context, path string, busyTimeout time.Duration) (*Store, error) {
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		path, busyTimeout.Milliseconds())
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &db.Error{Op: db.OpOpen, Err: err}
	}

	if err := probeFTS5(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := migrate(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return &Store{db: sqlDB, q: sqlDB, path: path}, nil
}

func probeFTS5(ctx context.Context, sqlDB *sql.DB) error {
	var enabled int
	err := sqlDB.QueryRowContext(ctx, `SELECT sqlite_compileoption_used('ENABLE_FTS5')`).Scan(&enabled)
	if err != nil {
		return &db.Error{Op: db.OpFTSProbe, Err: err}
	}
	if enabled != 1 {
		return domain.NewConfigurationError("storage",
			"sqlite build lacks FTS5; keyword and hybrid search require it")
	}
	return nil
}

// addedColumns were introduced after their table; migrate adds them to
// databases created without them.
var addedColumns = []struct{ table, column, decl string }{
	{"collections", "embedding_provider", "TEXT NOT NULL DEFAULT ''"},
}

func migrate(ctx context.Context, sqlDB *sql.DB) error {
	names, err := fs.Glob(migrations.SQLite, "*.sql")
	if err != nil {
		return &db.Error{Op: db.OpMigrate, Err: err}
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := migrations.SQLite.ReadFile(name)
		if err != nil {
			return &db.Error{Op: db.OpMigrate, Err: fmt.Errorf("read %s: %w", name, err)}
		}
		if _, err := sqlDB.ExecContext(ctx, string(data)); err != nil {
			return &db.Error{Op: db.OpMigrate, Err: fmt.Errorf("exec %s: %w", name, err)}
		}
	}
	for _, c := range addedColumns {
		var n int
		err := sqlDB.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, c.table, c.column).Scan(&n)
		if err != nil {
			return &db.Error{Op: db.OpMigrate, Err: fmt.Errorf("inspect %s: %w", c.table, err)}
		}
		if n > 0 {
			continue
		}
		stmt := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, c.table, c.column, c.decl)
		if _, err := sqlDB.ExecContext(ctx, stmt); err != nil {
			return &db.Error{Op: db.OpMigrate, Err: fmt.Errorf("add %s.%s: %w", c.table, c.column, err)}
		}
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close closes the database. Closing a transaction-scoped Store is a no-op.
func (s *Store) Close() error {
	if s.tx != nil {
		return nil
	}
	return s.db.Close()
}

// WithTx runs fn in a single transaction and commits when fn returns nil.
// Nested calls reuse the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx db.ContentStore) error) error {
	if s.tx != nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &db.Error{Op: db.OpBegin, Err: err}
	}
	scoped := &Store{db: s.db, q: tx, tx: tx, path: s.path}
	if err := fn(scoped); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return &db.Error{Op: db.OpCommit, Err: err}
	}
	return nil
}

// inTx runs fn inside the current transaction or a fresh one.
func (s *Store) inTx(ctx context.Context, fn func(s *Store) error) error {
	return s.WithTx(ctx, func(tx db.ContentStore) error {
		return fn(tx.(*Store))
	})
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// maxVars bounds the number of bound parameters per IN list.
const maxVars = 500

func chunks[T any](items []T, size int) [][]T {
	var out [][]T
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
