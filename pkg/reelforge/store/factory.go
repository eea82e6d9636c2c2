package store

import (
	"fmt"
	"net/url"
	"strings"
)

// Open dispatches on rawURL's scheme to construct the configured
// JobStore, per spec §6 (JOB_STORE_URL, opaque to the core beyond this
// factory). Supported schemes: "sqlite" (path after the scheme, or a
// bare filesystem path with no scheme at all) and "postgres"/
// "postgresql" (passed through as a pgx DSN).
func Open(rawURL string) (JobStore, error) {
	if rawURL == "" {
		rawURL = "sqlite://./data/reelforge.db"
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		// No parseable scheme: treat the whole value as a SQLite file path.
		return OpenSQLite(SQLiteConfig{Path: rawURL})
	}

	switch strings.ToLower(u.Scheme) {
	case "sqlite", "sqlite3", "file":
		path := u.Opaque
		if path == "" {
			path = u.Path
			if u.Host != "" {
				path = u.Host + path
			}
		}
		return OpenSQLite(SQLiteConfig{Path: path})
	case "postgres", "postgresql":
		return OpenPostgres(PostgresConfig{DSN: rawURL})
	default:
		return nil, fmt.Errorf("job store: unsupported scheme %q in JOB_STORE_URL", u.Scheme)
	}
}
