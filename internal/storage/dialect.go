package storage

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// DriverSQLite selects the modernc SQLite driver.
	DriverSQLite = "sqlite"
	// DriverPostgres selects the lib/pq driver.
	DriverPostgres = "postgres"
)

const jobsTable = "jobs"

// dialect captures the SQL differences between the supported drivers.
type dialect struct {
	driver string
	// placeholder returns the bind marker for the n-th argument, 1-based.
	placeholder func(n int) string
	like        string
	setup       []string
}

var dialects = map[string]dialect{
	DriverSQLite: {
		driver:      DriverSQLite,
		placeholder: func(int) string { return "?" },
		like:        "LIKE",
		setup:       []string{"PRAGMA busy_timeout = 5000"},
	},
	DriverPostgres: {
		driver:      DriverPostgres,
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
		like:        "ILIKE",
	},
}

func dialectFor(driver string) (dialect, error) {
	d, ok := dialects[strings.ToLower(strings.TrimSpace(driver))]
	if !ok {
		return dialect{}, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	return d, nil
}

// Timestamps are stored as fixed-width UTC text so that range comparisons
// work lexically in both dialects.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	platform TEXT NOT NULL,
	status TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	retries INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

var indexSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_jobs_account_created ON jobs (account_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status)`,
}
