package storage

import "time"

// SQLiteConfig configures connection pooling for the conversation store.
type SQLiteConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultSQLiteConfig returns default connection pool settings. The defaults
// hold the pool to a single connection: SQLite accepts one writer at a time,
// and letting database/sql hand writes to concurrent connections just
// serializes them behind SQLITE_BUSY retries instead of Go's own pool queue.
// A caller-supplied MaxOpenConns is applied as given.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: 0,
		ConnMaxIdleTime: 0,
		ConnectTimeout:  10 * time.Second,
	}
}
