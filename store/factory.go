package store

import (
	"context"
	"fmt"
	"path/filepath"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	DataDir string

	// SQLDriver is the database/sql driver name for the sqlite backend:
	// "sqlite3" (mattn/go-sqlite3) or "sqlite" (modernc.org/sqlite).
	SQLDriver string

	Elasticsearch ElasticsearchOptions
}

// New creates a Store based on the backend name.
//
// Supported backends:
//
//	"sqlite"        - SQLite database at dataDir/catalog.db (default)
//	"file"          - static catalog directory tree in dataDir
//	"memory"        - in-memory (ephemeral, for testing)
//	"elasticsearch" - Elasticsearch cluster
func New(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "sqlite", "":
		dbPath := filepath.Join(opts.DataDir, "catalog.db")
		return NewSqliteStore(dbPath, opts.SQLDriver)
	case "file":
		return NewFileStore(opts.DataDir)
	case "memory":
		return NewMemoryStore(), nil
	case "elasticsearch", "es":
		return NewElasticsearchStore(ctx, opts.Elasticsearch)
	default:
		return nil, fmt.Errorf("unknown store backend: %q (supported: sqlite, file, memory, elasticsearch)", opts.Backend)
	}
}
