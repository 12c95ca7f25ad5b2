package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteCounter implements Counter using SQLite for persistence.
// Suitable for single-instance deployments where counter windows should
// survive restarts (so a restart does not hand every tenant a fresh quota).
//
// SQLite has no TTL mechanism, so expired windows are removed by a sweep
// that runs on a cron schedule rather than piggybacking on reads.
type SQLiteCounter struct {
	db        *sql.DB
	cron      *cron.Cron
	logger    *slog.Logger
	closeOnce sync.Once

	upsertStmt *sql.Stmt
	sweepStmt  *sql.Stmt
}

// SQLiteCounterConfig configures the SQLite backend.
type SQLiteCounterConfig struct {
	// Path is the SQLite database file path.
	Path string

	// SweepSchedule is a cron expression for the expired-window sweep.
	// Default: "@every 1m".
	SweepSchedule string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds.
	BusyTimeout time.Duration

	// Logger receives sweep results. Defaults to slog.Default.
	Logger *slog.Logger
}

const counterSchema = `
CREATE TABLE IF NOT EXISTS counters (
	key        TEXT PRIMARY KEY,
	count      INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_counters_expires ON counters(expires_at);
`

// NewSQLiteCounter creates a SQLite-backed counter with default settings.
func NewSQLiteCounter(path string) (*SQLiteCounter, error) {
	return NewSQLiteCounterWithConfig(SQLiteCounterConfig{Path: path})
}

// NewSQLiteCounterWithConfig creates a SQLite-backed counter with custom
// configuration.
func NewSQLiteCounterWithConfig(cfg SQLiteCounterConfig) (*SQLiteCounter, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite counter: path is required")
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = "@every 1m"
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// A single writer avoids SQLITE_BUSY churn under concurrent increments.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(counterSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create counters schema: %w", err)
	}

	c := &SQLiteCounter{
		db:     db,
		logger: cfg.Logger.With("component", "store.sqlite"),
	}

	// The upsert either starts a new window (when the row is absent or its
	// window has passed) or increments the live one, in a single statement
	// so concurrent callers on the shared connection never under-count.
	c.upsertStmt, err = db.Prepare(`
		INSERT INTO counters (key, count, expires_at) VALUES (?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET
			count      = CASE WHEN counters.expires_at <= ?2 - ?3 THEN 1 ELSE counters.count + 1 END,
			expires_at = CASE WHEN counters.expires_at <= ?2 - ?3 THEN ?2 ELSE counters.expires_at END
		RETURNING count, expires_at`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare upsert: %w", err)
	}

	c.sweepStmt, err = db.Prepare(`DELETE FROM counters WHERE expires_at <= ?`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare sweep: %w", err)
	}

	c.cron = cron.New()
	if _, err := c.cron.AddFunc(cfg.SweepSchedule, c.runSweep); err != nil {
		db.Close()
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", cfg.SweepSchedule, err)
	}
	c.cron.Start()

	return c, nil
}

// IncrementAndCheck increments the window counter for key in one upsert.
func (c *SQLiteCounter) IncrementAndCheck(ctx context.Context, key string, limit int64, window time.Duration) (Result, error) {
	if limit <= 0 || window <= 0 {
		return Result{}, ErrInvalidLimit
	}

	nowMs := time.Now().UnixMilli()
	expiresMs := nowMs + window.Milliseconds()

	var count, storedExpiry int64
	err := c.upsertStmt.QueryRowContext(ctx, key, expiresMs, window.Milliseconds()).
		Scan(&count, &storedExpiry)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if count > limit {
		retry := time.Duration(storedExpiry-nowMs) * time.Millisecond
		if retry < 0 {
			retry = 0
		}
		return Result{Allowed: false, Remaining: 0, RetryAfter: retry}, nil
	}

	return Result{Allowed: true, Remaining: limit - count}, nil
}

// Ping verifies the database is usable.
func (c *SQLiteCounter) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close stops the sweep schedule and closes the database.
func (c *SQLiteCounter) Close() error {
	var err error
	c.closeOnce.Do(func() {
		ctx := c.cron.Stop()
		<-ctx.Done()
		err = c.db.Close()
	})
	return err
}

// Sweep removes windows that expired before now. Exposed for tests; the
// cron schedule calls it in normal operation.
func (c *SQLiteCounter) Sweep(ctx context.Context) (int64, error) {
	res, err := c.sweepStmt.ExecContext(ctx, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sweep failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (c *SQLiteCounter) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deleted, err := c.Sweep(ctx)
	if err != nil {
		c.logger.Warn("counter sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		c.logger.Debug("swept expired counter windows", "deleted", deleted)
	}
}
