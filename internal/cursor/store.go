// Package cursor persists the sequence ID of the last processed event so
// polling can resume after a restart.
//
// Every backend stores the value as plain integer text. A missing or
// unparsable value loads as absent, which callers treat as "never polled".
// Any other read failure is returned as an error.
package cursor

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Store loads and saves the cursor. Save must be durable before it returns.
// Load reports ok=false with a nil error only when no usable value is stored.
type Store interface {
	Load(ctx context.Context) (int64, bool, error)
	Save(ctx context.Context, sequenceID int64) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Backends lists every supported backend.
var Backends = []string{BackendFile, BackendSQLite, BackendPostgres, BackendRedis}

// Options selects and configures a backend.
type Options struct {
	Backend string
	// Path is the state file for the file backend and the database file
	// for sqlite.
	Path string
	// DSN is the Postgres connection string.
	DSN string
	// Name identifies this cursor inside a shared table or key space.
	Name string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open returns the store described by opts.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (Store, error) {
	switch opts.Backend {
	case BackendFile, "":
		return NewFileStore(opts.Path, logger), nil
	case BackendSQLite:
		return OpenSQLite(ctx, opts.Path, opts.Name, logger)
	case BackendPostgres:
		return OpenPostgres(ctx, opts.DSN, opts.Name, logger)
	case BackendRedis:
		return OpenRedis(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.Name, logger)
	default:
		return nil, fmt.Errorf("unknown cursor backend %q", opts.Backend)
	}
}

func parse(raw string) (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func format(sequenceID int64) string {
	return strconv.FormatInt(sequenceID, 10)
}
