package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/compozy/relay/pkg/config"
	"github.com/compozy/relay/pkg/logger"
	"github.com/pressly/goose/v3"

	// Register the database/sql drivers.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const storageTable = "relay_storage"

//go:embed migrations
var migrationsFS embed.FS

var gooseMu sync.Mutex

// Dialects supported by the SQL storage.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// SQL stores values in a relational table. Keys live under a prefix so
// several applications can share one table.
type SQL struct {
	db      *sql.DB
	builder squirrel.StatementBuilderType
	prefix  string
	now     func() time.Time
	once    sync.Once
	closed  atomic.Bool
}

// NewSQL opens the database of dialect, applies the storage migrations
// and verifies the connection.
func NewSQL(ctx context.Context, dialect string, cfg *config.DatabaseConfig, prefix string) (*SQL, error) {
	log := logger.FromContext(ctx).With("component", "storage_sql", "dialect", dialect)
	driver, dsn, err := buildDSN(dialect, cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open database: %w", dialect, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: ping database: %w", dialect, err)
	}
	if err := applyMigrations(ctx, db, dialect); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("SQL storage ready", "prefix", prefix)
	return &SQL{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(placeholderFor(dialect)),
		prefix:  prefix,
		now:     time.Now,
	}, nil
}

// placeholderFor returns the bind variable style of dialect.
func placeholderFor(dialect string) squirrel.PlaceholderFormat {
	var placeholder squirrel.PlaceholderFormat = squirrel.Question
	if dialect == DialectPostgres {
		placeholder = squirrel.Dollar
	}
	return placeholder
}

func buildDSN(dialect string, cfg *config.DatabaseConfig) (string, string, error) {
	switch dialect {
	case DialectSQLite:
		if cfg.Path == "" {
			return "", "", errors.New("sqlite: database path is required")
		}
		busy := cfg.BusyTimeout
		if busy <= 0 {
			busy = 5 * time.Second
		}
		dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)", cfg.Path, busy.Milliseconds())
		return "sqlite", dsn, nil
	case DialectPostgres:
		if cfg.DSN == "" {
			return "", "", errors.New("postgres: database dsn is required")
		}
		return "pgx", cfg.DSN.Value(), nil
	default:
		return "", "", fmt.Errorf("unknown SQL dialect %q", dialect)
	}
}

func applyMigrations(ctx context.Context, db *sql.DB, dialect string) error {
	gooseMu.Lock()
	defer func() {
		goose.SetBaseFS(nil)
		gooseMu.Unlock()
	}()
	goose.SetBaseFS(migrationsFS)
	gooseDialect := "sqlite3"
	if dialect == DialectPostgres {
		gooseDialect = "postgres"
	}
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("%s: set goose dialect: %w", dialect, err)
	}
	if err := goose.UpContext(ctx, db, "migrations/"+dialect); err != nil {
		return fmt.Errorf("%s: apply migrations: %w", dialect, err)
	}
	return nil
}

func (s *SQL) key(k string) string {
	return s.prefix + k
}

func (s *SQL) Read(ctx context.Context, key string) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrClosed
	}
	query, args, err := s.builder.
		Select("value", "expires_at").
		From(storageTable).
		Where(squirrel.Eq{"storage_key": s.key(key)}).
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("building read of %s: %w", key, err)
	}
	var value []byte
	var expiresAt sql.NullInt64
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", key, err)
	}
	if expiresAt.Valid && s.now().UnixMilli() >= expiresAt.Int64 {
		return nil, false, s.Remove(ctx, key)
	}
	return value, true, nil
}

func (s *SQL) Write(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}
	var expiresAt any
	if ttl > 0 {
		expiresAt = s.now().Add(ttl).UnixMilli()
	}
	if value == nil {
		value = []byte{}
	}
	query, args, err := s.builder.
		Insert(storageTable).
		Columns("storage_key", "value", "expires_at").
		Values(s.key(key), value, expiresAt).
		Suffix("ON CONFLICT (storage_key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building write of %s: %w", key, err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (s *SQL) Remove(ctx context.Context, key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	query, args, err := s.builder.
		Delete(storageTable).
		Where(squirrel.Eq{"storage_key": s.key(key)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building remove of %s: %w", key, err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("removing %s: %w", key, err)
	}
	return nil
}

// PurgeExpired deletes the expired values under the prefix and returns how
// many were removed.
func (s *SQL) PurgeExpired(ctx context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	query, args, err := s.builder.
		Delete(storageTable).
		Where(squirrel.Like{"storage_key": s.prefix + "%"}).
		Where(squirrel.LtOrEq{"expires_at": s.now().UnixMilli()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building purge: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("purging expired values: %w", err)
	}
	return res.RowsAffected()
}

// Shutdown closes the database once.
func (s *SQL) Shutdown(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		err = s.db.Close()
		if err != nil {
			logger.FromContext(ctx).Error("SQL storage close failed", "error", err)
		}
	})
	return err
}
