package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values: "memory", "file", "sqlite", "redis", "postgres".
// If Driver is empty the memory driver is used.
type Config struct {
	Driver string

	// Path is the directory (file) or database file (sqlite).
	Path string
	// DSN is the postgres connection string.
	DSN string

	// Redis.
	Addr     string
	Password string
	DB       int

	BusyTimeout time.Duration // sqlite only; 0 means default
	KeyPrefix   string
}
