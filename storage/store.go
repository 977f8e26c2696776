package storage

import (
	"context"
	"errors"
	"fmt"

	"shopmon/config"
)

// The engine persists two JSON blobs: the whole product list and the
// activity log ring. Backends only need opaque save/load per key.

const (
	KeyProducts = "products"
	KeyLogs     = "logs"
)

var ErrUnknownBackend = errors.New("unknown storage backend")

type Store interface {
	Save(ctx context.Context, key string, blob []byte) error
	// Load returns nil, nil when the key has never been written.
	Load(ctx context.Context, key string) ([]byte, error)
	Close() error
}

// Open builds the blob store selected by STORE_BACKEND.
func Open(ctx context.Context, cfg *config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "", "sqlite":
		return NewSQLiteStore(cfg.DBPath)
	case "postgres":
		return NewPostgresStore(ctx, cfg.PGURL)
	case "s3":
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
}
