package cursor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Dialect holds the statements that differ between SQL engines.
type Dialect struct {
	Name   string
	Create string
	Select string
	Upsert string
}

var (
	SQLiteDialect = Dialect{
		Name:   BackendSQLite,
		Create: `CREATE TABLE IF NOT EXISTS cursors (name TEXT PRIMARY KEY, value TEXT NOT NULL, updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP)`,
		Select: `SELECT value FROM cursors WHERE name = ?`,
		Upsert: `INSERT INTO cursors (name, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT (name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
	}

	PostgresDialect = Dialect{
		Name:   BackendPostgres,
		Create: `CREATE TABLE IF NOT EXISTS cursors (name TEXT PRIMARY KEY, value TEXT NOT NULL, updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW())`,
		Select: `SELECT value FROM cursors WHERE name = $1`,
		Upsert: `INSERT INTO cursors (name, value, updated_at) VALUES ($1, $2, NOW())
			ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
	}
)

// SQLStore keeps the cursor as one row of the cursors table.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	name    string
	logger  *zap.Logger
}

// NewSQLStore wraps an open database. Call Migrate before first use.
func NewSQLStore(db *sql.DB, dialect Dialect, name string, logger *zap.Logger) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, name: name, logger: logger}
}

// OpenSQLite opens (creating if needed) a SQLite database file.
func OpenSQLite(ctx context.Context, path, name string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	// SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	return openSQL(ctx, db, SQLiteDialect, name, logger)
}

// OpenPostgres connects to Postgres using a lib/pq DSN.
func OpenPostgres(ctx context.Context, dsn, name string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	return openSQL(ctx, db, PostgresDialect, name, logger)
}

func openSQL(ctx context.Context, db *sql.DB, dialect Dialect, name string, logger *zap.Logger) (*SQLStore, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to %s: %w", dialect.Name, err)
	}

	s := NewSQLStore(db, dialect, name, logger)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the cursors table if it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.Create); err != nil {
		return fmt.Errorf("creating cursors table: %w", err)
	}
	return nil
}

// Load reads the cursor row. A missing row loads as absent.
func (s *SQLStore) Load(ctx context.Context) (int64, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, s.dialect.Select, s.name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading %s cursor %q: %w", s.dialect.Name, s.name, err)
	}

	v, ok := parse(raw)
	if !ok {
		s.logger.Warn("ignoring unparsable cursor row", zap.String("name", s.name), zap.String("value", raw))
	}
	return v, ok, nil
}

// Save upserts the cursor row.
func (s *SQLStore) Save(ctx context.Context, sequenceID int64) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.Upsert, s.name, format(sequenceID)); err != nil {
		return fmt.Errorf("failed to persist cursor: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
