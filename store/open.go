package store

import (
	"context"
	"fmt"
)

// Open selects a backend by driver name. An empty driver defaults to
// SQLite.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLite(SQLiteConfig{DSN: dsn})
	case "postgres":
		return NewPostgres(ctx, PostgresConfig{DSN: dsn})
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}
