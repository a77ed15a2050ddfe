package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/steveyegge/hindsight/internal/storage"
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db          *sql.DB
	opTimeout   time.Duration
	busyRetries int
}

// Options tunes the storage backend. Zero values get defaults.
type Options struct {
	// OpTimeout bounds every store operation (default 5s). Callers never
	// hang on a wedged database; they get an error and fail soft.
	OpTimeout time.Duration

	// BusyRetries is how many times a locked-database error is retried
	// transparently before surfacing as ErrConflict (default 3).
	BusyRetries int
}

// New creates a new SQLite storage backend
func New(path string, opts Options) (*SQLiteStorage, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Initialize schema
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 5 * time.Second
	}
	if opts.BusyRetries <= 0 {
		opts.BusyRetries = 3
	}

	return &SQLiteStorage{
		db:          db,
		opTimeout:   opts.OpTimeout,
		busyRetries: opts.BusyRetries,
	}, nil
}

// Compile-time check that SQLiteStorage implements the Storage interface
var _ storage.Storage = (*SQLiteStorage)(nil)

// opCtx bounds an operation with the configured timeout
func (s *SQLiteStorage) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// withRetry runs fn, retrying transparently on lock contention. SQLite
// surfaces write conflicts as "database is locked" errors; a small bounded
// retry absorbs the common case and anything persistent comes back as
// ErrConflict for the caller to handle.
func (s *SQLiteStorage) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= s.busyRetries; attempt++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		select {
		case <-time.After(time.Duration(attempt+1) * 25 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: %v", storage.ErrConflict, err)
}

// isBusy reports whether err is SQLite lock contention
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

// immediateTx runs fn inside a BEGIN IMMEDIATE transaction on a dedicated
// connection. IMMEDIATE acquires the write lock up front, serializing
// read-modify-write sequences across concurrent writers. database/sql's
// BeginTx cannot express transaction modes with the sqlite3 driver, so the
// statements are issued raw on a pinned connection.
func (s *SQLiteStorage) immediateTx(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("failed to begin immediate transaction: %w", err)
	}

	// Use context.Background() for ROLLBACK so cleanup happens even if ctx
	// was canceled mid-transaction.
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(conn); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
