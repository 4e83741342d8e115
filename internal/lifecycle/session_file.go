package lifecycle

import (
	"errors"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure-Go driver, registers "sqlite"
)

// sqliteHeaderMagic is the fixed 16-byte prefix of every SQLite3 database
// file (https://www.sqlite.org/fileformat.html §1.3).
const sqliteHeaderMagic = "SQLite format 3\x00"

// requiredSessionTables are the tables the platform client's session schema
// must carry for a file to be usable as a session (version/entity cache
// tables are optional extras the client rebuilds on first connect).
var requiredSessionTables = []string{"sessions", "entities"}

var (
	ErrNotSQLite         = errors.New("lifecycle: not a SQLite database")
	ErrMissingTable      = errors.New("lifecycle: session file missing required table")
	ErrNoAuthKey         = errors.New("lifecycle: session file has no auth key")
	ErrSessionFileUnread = errors.New("lifecycle: could not read session file")
)

// ValidateSessionFile checks an uploaded file against the file-upload
// boundary spec.md §4.9 requires before it is ever handed to a platform
// client: a real SQLite header, the tables a session needs, and a
// non-null auth key in the sessions table.
func ValidateSessionFile(path string) error {
	if err := checkSQLiteHeader(path); err != nil {
		return err
	}

	db, err := sqlx.Open("sqlite", path+"?mode=ro&_pragma=query_only(1)")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionFileUnread, err)
	}
	defer db.Close()

	for _, table := range requiredSessionTables {
		var name string
		err := db.Get(&name, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrMissingTable, table)
		}
	}

	var authKey []byte
	if err := db.Get(&authKey, "SELECT auth_key FROM sessions LIMIT 1"); err != nil {
		return fmt.Errorf("%w: %v", ErrNoAuthKey, err)
	}
	if len(authKey) == 0 {
		return ErrNoAuthKey
	}
	return nil
}

func checkSQLiteHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionFileUnread, err)
	}
	defer f.Close()

	header := make([]byte, len(sqliteHeaderMagic))
	if _, err := f.Read(header); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionFileUnread, err)
	}
	if string(header) != sqliteHeaderMagic {
		return ErrNotSQLite
	}
	return nil
}

// sessionSidecarSuffixes are the WAL-mode sidecar files that travel with a
// session's main database file and must be cleaned up alongside it.
var sessionSidecarSuffixes = []string{"", "-shm", "-wal", "-journal"}

// RemoveSessionFiles deletes path and its WAL-mode sidecars, ignoring
// already-absent files (logout may race a prior partial cleanup).
func RemoveSessionFiles(path string) error {
	var firstErr error
	for _, suffix := range sessionSidecarSuffixes {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
