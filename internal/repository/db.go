package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/efddrsn/cartorio-AI/internal/common"
)

type Config struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ConfigFrom maps application database config onto the repository config.
func ConfigFrom(c common.DatabaseConfig) Config {
	return Config{
		DSN:              c.DSN,
		MaxConns:         c.MaxConns,
		MinConns:         c.MinConns,
		MaxConnLifetime:  c.MaxConnLifetime,
		MaxConnIdleTime:  c.MaxConnIdleTime,
		DialTimeout:      c.DialTimeout,
		StatementTimeout: c.StatementTimeout,
	}
}

// DB bundles the ent SQL driver with the handles needed to close it.
type DB struct {
	Driver  *entsql.Driver
	Dialect string
	sqlDB   *sql.DB
	pool    *pgxpool.Pool
}

// IsPostgres reports whether dsn names a Postgres server.
func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Open connects to Postgres (pgx pool) or SQLite depending on the DSN and
// creates the ledger table if needed.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		db  *DB
		err error
	)
	if IsPostgres(cfg.DSN) {
		db, err = openPostgres(ctx, cfg, logger)
	} else {
		db, err = openSQLite(cfg, logger)
	}
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close(logger)
		return nil, fmt.Errorf("%w: migrate: %v", common.ErrDatabase, err)
	}
	logger.Info("successfully connected to database", "dialect", db.Dialect)
	return db, nil
}

func openPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	logger.Info("connecting to database", "driver", "pgx")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "cartorio"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(cfg.StatementTimeout.Milliseconds())
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}
	// Wrap pool as *sql.DB for ent's SQL driver
	sqlDB := stdlib.OpenDBFromPool(pool)
	return &DB{Driver: entsql.OpenDB(dialect.Postgres, sqlDB), Dialect: dialect.Postgres, sqlDB: sqlDB, pool: pool}, nil
}

func openSQLite(cfg Config, logger *slog.Logger) (*DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = "file:cartorio.db"
	}
	logger.Info("connecting to database", "driver", "sqlite", "dsn", dsn)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// single writer avoids SQLITE_BUSY between pipeline workers
	sqlDB.SetMaxOpenConns(1)
	return &DB{Driver: entsql.OpenDB(dialect.SQLite, sqlDB), Dialect: dialect.SQLite, sqlDB: sqlDB}, nil
}

// Close closes the database connections gracefully
func (db *DB) Close(logger *slog.Logger) {
	if db == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("closing database connections")
	if err := db.Driver.Close(); err != nil {
		logger.Error("failed to close sql driver", "error", err)
	}
	if db.pool != nil {
		db.pool.Close()
	}
	logger.Info("database connections closed")
}

// HealthCheck pings the database to catch DSN issues early.
func (db *DB) HealthCheck(ctx context.Context, timeout time.Duration, logger *slog.Logger) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := db.sqlDB.PingContext(ctx); err != nil {
		if logger != nil {
			logger.Error("database ping failed", "error", err)
		}
		return err
	}
	return nil
}

// Migrate creates the ledger table and its index if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	b := entsql.Dialect(db.Dialect)
	q, args := b.CreateTable(jobTable).IfNotExists().
		Columns(
			entsql.Column("id").Type("TEXT").Attr("PRIMARY KEY"),
			entsql.Column("file_name").Type("TEXT").Attr("NOT NULL"),
			entsql.Column("status").Type("TEXT").Attr("NOT NULL"),
			entsql.Column("pages").Type("INTEGER").Attr("NOT NULL DEFAULT 0"),
			entsql.Column("ocr_text").Type("TEXT"),
			entsql.Column("extracted_json").Type("TEXT"),
			entsql.Column("model_name").Type("TEXT"),
			entsql.Column("error_kind").Type("TEXT"),
			entsql.Column("error_message").Type("TEXT"),
			entsql.Column("started_at").Type("TEXT").Attr("NOT NULL"),
			entsql.Column("finished_at").Type("TEXT"),
		).
		Query()
	if err := db.Driver.Exec(ctx, q, args, nil); err != nil {
		return fmt.Errorf("create %s: %w", jobTable, err)
	}
	idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_status_started_at ON %s (status, started_at)", jobTable, jobTable)
	if err := db.Driver.Exec(ctx, idx, []any{}, nil); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}
