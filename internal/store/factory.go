package store

import (
	"fmt"
	"strings"
)

// Backend names the concrete persistence engine DB_URI selects.
type Backend int

const (
	BackendSQLite Backend = iota
	BackendPostgres
)

// DetectBackend inspects a DB_URI value and picks the engine, defaulting to
// SQLite per spec.md §6.3 ("Two logical databases (by default SQLite
// files)"). A postgres:// or postgresql:// scheme opts into the Postgres
// implementation.
func DetectBackend(dbURI string) Backend {
	if strings.HasPrefix(dbURI, "postgres://") || strings.HasPrefix(dbURI, "postgresql://") {
		return BackendPostgres
	}
	return BackendSQLite
}

// SQLitePathFromURI strips an optional "file:" / "sqlite:" prefix from a
// DB_URI value, or returns it unchanged if it's already a bare filesystem
// path (the common case: DB_URI unset or naming a local .db file).
func SQLitePathFromURI(dbURI string) string {
	for _, prefix := range []string{"sqlite://", "file://", "sqlite:"} {
		if strings.HasPrefix(dbURI, prefix) {
			return strings.TrimPrefix(dbURI, prefix)
		}
	}
	if dbURI == "" {
		return "tgsentinel.db"
	}
	return dbURI
}

// ErrUnsupportedBackend is returned by callers that only implement a subset
// of backends (e.g. a CLI subcommand that only supports Postgres migration).
var ErrUnsupportedBackend = fmt.Errorf("unsupported storage backend")
