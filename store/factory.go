package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"rabbitry/config"
)

// NewBundle creates a store Bundle based on the storage configuration
func NewBundle(ctx context.Context, cfg *config.StorageConfig) (*Bundle, error) {
	if cfg == nil {
		return NewMemoryBundle(), nil
	}

	var (
		b   *Bundle
		err error
	)
	switch cfg.Backend {
	case "sqlite":
		// Ensure directory exists
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create storage directory %s: %w", dir, err)
		}
		b, err = NewSQLiteBundle(cfg.Path)
		if err == nil && cfg.Seed {
			if seedErr := b.Farm.(*SQLiteTabular).Seed(ctx, time.Now()); seedErr != nil {
				b.Close()
				return nil, seedErr
			}
		}

	case "postgres":
		b, err = NewPostgresBundle(ctx, cfg.DSN)

	case "memory":
		b = NewMemoryBundle()
		if cfg.Seed {
			SeedMemory(b.Farm.(*MemoryTabular), time.Now())
		}

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (expected 'memory', 'sqlite' or 'postgres')", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if !cfg.RecordHistory() {
		b.History = nil
	}
	return b, nil
}
