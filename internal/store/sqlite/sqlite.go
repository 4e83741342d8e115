// Package sqlite implements the store interfaces against a local SQLite
// file, the default worker database per spec.md §6.3 ("Two logical
// databases (by default SQLite files)... Migrations are additive on
// startup"). Postgres (internal/store/pg) remains available for deployments
// that point DB_URI at a postgres:// DSN; see internal/store/factory.go for
// the selection rule.
package sqlite

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure-Go driver, registers "sqlite"
)

// Open connects to the SQLite file at path (created if absent) in WAL mode
// with a 5-second busy timeout.
func Open(path string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return db, nil
}
