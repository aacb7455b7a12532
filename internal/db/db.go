// Package db provides job listing storage on PostgreSQL or SQLite.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver
)

// Dialect identifies the SQL flavor behind a DB.
type Dialect string

// Supported dialects
const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DB wraps a database/sql pool with the dialect it speaks
type DB struct {
	conn    *sql.DB
	dialect Dialect
}

// Open connects to databaseURL. postgres:// and postgresql:// URLs use pgx;
// sqlite://path, file: URIs and ":memory:" use the pure Go SQLite driver.
func Open(ctx context.Context, databaseURL string) (*DB, error) {
	driver, dsn, dialect, err := resolveDSN(databaseURL)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == DialectSQLite {
		// One writer; also keeps an in-memory database on a single connection.
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn: conn, dialect: dialect}, nil
}

func resolveDSN(databaseURL string) (driver, dsn string, dialect Dialect, err error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return "pgx", databaseURL, DialectPostgres, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return "sqlite", sqliteDSN(strings.TrimPrefix(databaseURL, "sqlite://")), DialectSQLite, nil
	case strings.HasPrefix(databaseURL, "file:"), strings.HasPrefix(databaseURL, ":memory:"):
		return "sqlite", sqliteDSN(databaseURL), DialectSQLite, nil
	case databaseURL == "":
		return "", "", "", fmt.Errorf("database URL is required")
	default:
		return "", "", "", fmt.Errorf("unsupported database URL scheme: %q", databaseURL)
	}
}

// sqliteDSN makes the driver write timestamps in a format it can read back.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_time_format=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_time_format=sqlite"
}

// Close closes the connection pool
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// Dialect reports which SQL flavor the store speaks
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Ping verifies the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// bind returns the placeholder for the n-th (1-based) query argument.
func (db *DB) bind(n int) string {
	if db.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS job_listings (
		id               UUID PRIMARY KEY,
		source_url       TEXT NOT NULL,
		title            TEXT NOT NULL,
		company          TEXT NOT NULL,
		location         TEXT NOT NULL,
		job_type         TEXT NOT NULL,
		posted_date      TIMESTAMPTZ NOT NULL,
		deadline         TIMESTAMPTZ NOT NULL,
		description      TEXT NOT NULL DEFAULT '',
		requirements     JSONB NOT NULL DEFAULT '[]',
		responsibilities JSONB NOT NULL DEFAULT '[]',
		category         TEXT,
		experience_level TEXT,
		salary           TEXT,
		source           TEXT NOT NULL,
		is_active        BOOLEAN NOT NULL DEFAULT TRUE,
		last_fetched     TIMESTAMPTZ NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_job_listings_source_url ON job_listings (source_url)`,
	`CREATE INDEX IF NOT EXISTS idx_job_listings_source_active ON job_listings (source, is_active)`,
	`CREATE INDEX IF NOT EXISTS idx_job_listings_posted_date ON job_listings (posted_date DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_job_listings_search ON job_listings USING GIN (` + postgresSearchVector + `)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS job_listings (
		id               TEXT PRIMARY KEY,
		source_url       TEXT NOT NULL,
		title            TEXT NOT NULL,
		company          TEXT NOT NULL,
		location         TEXT NOT NULL,
		job_type         TEXT NOT NULL,
		posted_date      DATETIME NOT NULL,
		deadline         DATETIME NOT NULL,
		description      TEXT NOT NULL DEFAULT '',
		requirements     TEXT NOT NULL DEFAULT '[]',
		responsibilities TEXT NOT NULL DEFAULT '[]',
		category         TEXT,
		experience_level TEXT,
		salary           TEXT,
		source           TEXT NOT NULL,
		is_active        BOOLEAN NOT NULL DEFAULT TRUE,
		last_fetched     DATETIME NOT NULL,
		created_at       DATETIME NOT NULL,
		updated_at       DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_job_listings_source_url ON job_listings (source_url)`,
	`CREATE INDEX IF NOT EXISTS idx_job_listings_source_active ON job_listings (source, is_active)`,
	`CREATE INDEX IF NOT EXISTS idx_job_listings_posted_date ON job_listings (posted_date DESC)`,
}

// Migrate creates the listing table and its indexes if they do not exist
func (db *DB) Migrate(ctx context.Context) error {
	stmts := sqliteSchema
	if db.dialect == DialectPostgres {
		stmts = postgresSchema
	}
	for _, stmt := range stmts {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}
