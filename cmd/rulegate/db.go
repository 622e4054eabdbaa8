package main

import (
	"database/sql"
	"strings"

	_ "github.com/lib/pq"  // Postgres Driver
	_ "modernc.org/sqlite" // SQLite Driver (lite mode, no CGO)
)

// openDatabase picks the driver from the DSN scheme. Anything that is not
// a postgres URL is treated as a SQLite path, which keeps local development
// free of infrastructure.
func openDatabase(dsn string) (*sql.DB, error) {
	driver := "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "postgres"
	}
	return sql.Open(driver, dsn)
}
