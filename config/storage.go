package config

import "fmt"

// StorageConfig defines the backend holding farm data and query history
type StorageConfig struct {
	Backend string `hcl:"backend,optional"` // "memory", "sqlite" or "postgres"
	Path    string `hcl:"path,optional"`    // SQLite file path (default: ".rabbitry/farm.db")
	DSN     string `hcl:"dsn,optional"`     // Postgres connection string
	History *bool  `hcl:"history,optional"` // record queries (default: true)
	Seed    bool   `hcl:"seed,optional"`    // load the demo farm into empty tables
}

// Defaults fills in default values for unset fields
func (s *StorageConfig) Defaults() {
	if s.Backend == "" {
		s.Backend = "memory"
	}
	if s.Path == "" {
		s.Path = ".rabbitry/farm.db"
	}
}

// RecordHistory reports whether queries should be written to the history store.
func (s *StorageConfig) RecordHistory() bool {
	return s.History == nil || *s.History
}

func (s *StorageConfig) Validate() error {
	switch s.Backend {
	case "memory", "sqlite":
		return nil
	case "postgres":
		if s.DSN == "" {
			return fmt.Errorf("dsn is required for the postgres backend")
		}
		return nil
	default:
		return fmt.Errorf("unknown backend '%s' (expected 'memory', 'sqlite' or 'postgres')", s.Backend)
	}
}
