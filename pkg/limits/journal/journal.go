package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // cgo SQLite driver, "sqlite3"
	_ "modernc.org/sqlite"          // pure Go SQLite driver, "sqlite"

	"mercator-hq/quota/pkg/limits"
)

// Supported database/sql driver names.
const (
	DriverModernc = "sqlite"
	DriverCgo     = "sqlite3"
)

// Scopes recorded in the scope column.
const (
	ScopeGlobal   = "global"
	ScopeIdentity = "identity"
)

// Config configures a Journal.
type Config struct {
	// Path is the SQLite database file.
	Path string

	// Driver selects the SQLite driver: DriverModernc (default) or DriverCgo.
	Driver string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// Journal appends usage snapshots to a SQLite database for offline
// capacity planning. It is write-only from the engine's point of view:
// quota state is never restored from it.
type Journal struct {
	db        *sql.DB
	path      string
	driver    string
	mu        sync.Mutex
	closeOnce sync.Once

	insertStmt *sql.Stmt
	pruneStmt  *sql.Stmt
	countStmt  *sql.Stmt
}

// Open opens (and creates if needed) the journal database.
func Open(cfg Config) (*Journal, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("journal path cannot be empty")
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverModernc
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn, err := dataSourceName(cfg)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	j := &Journal{db: db, path: cfg.Path, driver: cfg.Driver}

	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	if err := j.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare journal statements: %w", err)
	}
	return j, nil
}

// dataSourceName builds a DSN with WAL and a busy timeout. The two drivers
// spell pragmas differently.
func dataSourceName(cfg Config) (string, error) {
	ms := cfg.BusyTimeout.Milliseconds()
	switch cfg.Driver {
	case DriverModernc:
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
			cfg.Path, ms), nil
	case DriverCgo:
		return fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL",
			cfg.Path, ms), nil
	default:
		return "", fmt.Errorf("unsupported journal driver %q (must be %q or %q)",
			cfg.Driver, DriverModernc, DriverCgo)
	}
}

func (j *Journal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage_snapshots (
		snapshot_id TEXT NOT NULL,
		taken_at INTEGER NOT NULL,
		scope TEXT NOT NULL,
		name TEXT NOT NULL,
		identity TEXT,
		refs INTEGER NOT NULL DEFAULT 0,
		capacity INTEGER NOT NULL,
		used INTEGER NOT NULL,
		overdraft INTEGER NOT NULL DEFAULT 0,
		strategy TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_usage_taken_at ON usage_snapshots(taken_at);
	CREATE INDEX IF NOT EXISTS idx_usage_identity ON usage_snapshots(identity);
	`
	_, err := j.db.Exec(schema)
	return err
}

func (j *Journal) prepareStatements() error {
	var err error

	j.insertStmt, err = j.db.Prepare(`
		INSERT INTO usage_snapshots
			(snapshot_id, taken_at, scope, name, identity, refs, capacity, used, overdraft, strategy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}

	j.pruneStmt, err = j.db.Prepare(`DELETE FROM usage_snapshots WHERE taken_at < ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare prune statement: %w", err)
	}

	j.countStmt, err = j.db.Prepare(`SELECT COUNT(*) FROM usage_snapshots`)
	if err != nil {
		return fmt.Errorf("failed to prepare count statement: %w", err)
	}
	return nil
}

// Record writes one row for the global budget and one per live identity,
// all under a fresh snapshot id. It returns the snapshot id.
func (j *Journal) Record(ctx context.Context, snap limits.Snapshot, takenAt time.Time) (string, error) {
	id := uuid.New().String()
	ts := takenAt.UnixMilli()

	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin journal transaction: %w", err)
	}
	defer tx.Rollback()

	stmt := tx.StmtContext(ctx, j.insertStmt)

	g := snap.Global
	if _, err := stmt.ExecContext(ctx, id, ts, ScopeGlobal, g.Name, nil, 0,
		g.Capacity, g.Used, g.Overdraft, g.Strategy); err != nil {
		return "", fmt.Errorf("failed to record global usage: %w", err)
	}

	for _, e := range snap.Identities {
		b := e.Budget
		if _, err := stmt.ExecContext(ctx, id, ts, ScopeIdentity, b.Name, e.Identity, e.Refs,
			b.Capacity, b.Used, b.Overdraft, b.Strategy); err != nil {
			return "", fmt.Errorf("failed to record usage of %q: %w", e.Identity, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit journal transaction: %w", err)
	}
	return id, nil
}

// Prune deletes rows taken before cutoff and returns how many were removed.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	res, err := j.pruneStmt.ExecContext(ctx, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned rows: %w", err)
	}
	return n, nil
}

// Count returns the number of journal rows.
func (j *Journal) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := j.countStmt.QueryRowContext(ctx).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count journal rows: %w", err)
	}
	return n, nil
}

// Path returns the database file path.
func (j *Journal) Path() string {
	return j.path
}

// Driver returns the database/sql driver name in use.
func (j *Journal) Driver() string {
	return j.driver
}

// Ping verifies the database is reachable.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Close closes the statements and the database. It is safe to call more
// than once.
func (j *Journal) Close() error {
	var err error
	j.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{j.insertStmt, j.pruneStmt, j.countStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		err = j.db.Close()
	})
	return err
}
