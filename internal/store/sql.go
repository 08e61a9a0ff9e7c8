package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sethvargo/go-retry"
	_ "modernc.org/sqlite"

	"github.com/calidata/icaflow/internal/config"
)

// lockKey is the advisory lock identity shared by all pipeline runs
// against one Postgres store.
const lockKey int64 = 0x1CAF10

// dialect abstracts the few per-backend differences.
type dialect interface {
	// name is the goose dialect and migrations subdirectory.
	name() string
	// rebind rewrites ? placeholders into the backend's syntax.
	rebind(query string) string
	// lock serializes concurrent runs inside a transaction.
	lock(ctx context.Context, tx *sql.Tx) error
}

type sqliteDialect struct{}

func (sqliteDialect) name() string { return "sqlite" }

func (sqliteDialect) rebind(query string) string { return query }

// lock is a no-op: the connection opens with _txlock=immediate, so the
// write transaction itself takes the database lock.
func (sqliteDialect) lock(context.Context, *sql.Tx) error { return nil }

type postgresDialect struct {
	advisory bool
}

func (postgresDialect) name() string { return "postgres" }

func (postgresDialect) rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d postgresDialect) lock(ctx context.Context, tx *sql.Tx) error {
	if !d.advisory {
		return nil
	}
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", lockKey); err != nil {
		return fmt.Errorf("%w: acquire run lock: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// DB implements Store on top of database/sql.
type DB struct {
	db     *sql.DB
	d      dialect
	logger *slog.Logger
}

// Open connects to the configured backend. Connectivity is verified
// with a bounded number of retries; failure surfaces as
// ErrStoreUnavailable rather than a hang.
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var (
		driver string
		dsn    string
		d      dialect
	)
	switch cfg.Type {
	case "sqlite":
		driver = "sqlite"
		dsn = sqliteDSN(cfg)
		d = sqliteDialect{}
	case "postgres":
		driver = "pgx"
		dsn = postgresDSN(cfg)
		d = postgresDialect{advisory: cfg.LockMode == "advisory"}
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStoreUnavailable, cfg.Type, err)
	}

	if cfg.Type == "sqlite" {
		// A single writer connection keeps the immediate
		// transaction semantics meaningful.
		db.SetMaxOpenConns(1)
	}

	backoff := retry.WithMaxRetries(uint64(cfg.MaxRetries), retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			logger.Debug("store ping failed, retrying", "type", cfg.Type, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", ErrStoreUnavailable, cfg.Type, err)
	}

	logger.Debug("store connected", "type", cfg.Type)
	return &DB{db: db, d: d, logger: logger}, nil
}

func sqliteDSN(cfg config.StoreConfig) string {
	params := []string{"_pragma=foreign_keys(1)", "_pragma=busy_timeout(5000)"}
	if cfg.LockMode == "advisory" {
		params = append(params, "_txlock=immediate")
	}
	return cfg.Path + "?" + strings.Join(params, "&")
}

func postgresDSN(cfg config.StoreConfig) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s", host, port, cfg.Database, sslmode)
	if cfg.User != "" {
		dsn += " user=" + cfg.User
	}
	if cfg.Password != "" {
		dsn += " password=" + cfg.Password
	}
	return dsn
}

// Close closes the underlying pool.
func (s *DB) Close() error {
	return s.db.Close()
}

// begin starts the run transaction and takes the run lock.
func (s *DB) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", ErrStoreUnavailable, err)
	}
	if err := s.d.lock(ctx, tx); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return tx, nil
}

// scanTime tolerates the different shapes the drivers hand back for
// timestamp columns.
func scanTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return parseStoredTime(t)
	case []byte:
		return parseStoredTime(string(t))
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("cannot scan %T as time", v)
	}
}

func parseStoredTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse stored time %q", s)
}
