package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "mindwatch/pkg/logx"
)

// Store is a whole-document key/value store.
type Store interface {
	// Get returns the document stored at key. ok is false when absent.
	Get(ctx context.Context, key string) (doc []byte, ok bool, err error)
	// Put replaces the document stored at key.
	Put(ctx context.Context, key string, doc []byte) error
	Close() error
}

const openTimeout = 10 * time.Second

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))

	var (
		st  Store
		err error
	)
	switch driver {
	case "", "memory", "mem":
		st = NewMemory()
	case "file":
		st, err = openFile(cfg, log)
	case "sqlite", "sqlite3":
		st, err = openSQLite(cfg, log)
	case "redis":
		st, err = openRedis(cfg, log)
	case "postgres", "postgresql", "pg":
		st, err = openPostgres(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
	if err != nil {
		return nil, err
	}
	if p := strings.TrimSpace(cfg.KeyPrefix); p != "" {
		st = &prefixed{Store: st, prefix: p}
	}
	return st, nil
}

// prefixed namespaces keys so several deployments can share one backend.
type prefixed struct {
	Store
	prefix string
}

func (p *prefixed) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return p.Store.Get(ctx, p.prefix+key)
}

func (p *prefixed) Put(ctx context.Context, key string, doc []byte) error {
	return p.Store.Put(ctx, p.prefix+key, doc)
}

func validKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("storage: empty key")
	}
	return nil
}
