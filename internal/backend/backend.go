// Package backend opens the store selected by configuration.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/shopload/internal/config"
	"github.com/JonMunkholm/shopload/internal/ingest"
	"github.com/JonMunkholm/shopload/internal/store/document"
	"github.com/JonMunkholm/shopload/internal/store/memory"
	"github.com/JonMunkholm/shopload/internal/store/relational"
)

// ErrUnsupportedBackend is returned for a backend name Open does not know.
var ErrUnsupportedBackend = errors.New("unsupported backend")

// Provisioner is implemented by stores that can create their own schema.
type Provisioner interface {
	Provision(ctx context.Context) error
}

// Capabilities lists the optional interfaces a store implements.
type Capabilities struct {
	Sequences  bool // ingest.SequenceSource
	RunHistory bool // ingest.RunRecorder
	Provision  bool // Provisioner
}

// Inspect reports the capabilities of store.
func Inspect(store ingest.Store) Capabilities {
	_, seq := store.(ingest.SequenceSource)
	_, runs := store.(ingest.RunRecorder)
	_, prov := store.(Provisioner)
	return Capabilities{Sequences: seq, RunHistory: runs, Provision: prov}
}

// Open connects to the configured backend. Connection failures are
// *ingest.ConnectivityError.
func Open(ctx context.Context, cfg *config.Config) (ingest.Store, error) {
	var (
		store ingest.Store
		err   error
	)

	switch cfg.Backend {
	case config.BackendPostgres:
		store, err = relational.Open(ctx, relational.Config{
			Dialect:   relational.Postgres,
			DSN:       cfg.Postgres.DSN(),
			MaxConns:  int32(cfg.Postgres.MaxConns),
			ChunkSize: cfg.Ingest.ChunkSize,
		})
	case config.BackendSQLite:
		store, err = relational.Open(ctx, relational.Config{
			Dialect:   relational.SQLite,
			DSN:       cfg.SQLite.Path,
			ChunkSize: cfg.Ingest.ChunkSize,
		})
	case config.BackendMongo:
		store, err = document.Open(ctx, document.Config{
			URI:            cfg.Mongo.ConnectionURI(),
			Database:       cfg.Mongo.Database,
			ChunkSize:      cfg.Ingest.ChunkSize,
			ConnectTimeout: cfg.Mongo.ConnectTimeout,
		})
	case config.BackendMemory:
		store = memory.New()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	caps := Inspect(store)
	slog.Debug("store opened",
		"backend", cfg.Backend,
		"sequences", caps.Sequences,
		"run_history", caps.RunHistory,
	)
	return store, nil
}

// Connector adapts Open to the coordinator's connect step.
func Connector(cfg *config.Config) ingest.Connector {
	return func(ctx context.Context) (ingest.Store, error) {
		return Open(ctx, cfg)
	}
}

// Provision creates the schema of the configured backend. For postgres the
// database itself is created first when missing. Backends without a schema
// succeed without doing anything.
func Provision(ctx context.Context, cfg *config.Config) error {
	if cfg.Backend == config.BackendPostgres {
		created, err := relational.EnsureDatabase(ctx, cfg.Postgres.DSN())
		if err != nil {
			return err
		}
		if created {
			slog.Info("database created", "database", cfg.Postgres.Database)
		}
	}

	store, err := Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	p, ok := store.(Provisioner)
	if !ok {
		slog.Info("backend has no schema to provision", "backend", cfg.Backend)
		return nil
	}
	if err := p.Provision(ctx); err != nil {
		return fmt.Errorf("provision %s: %w", cfg.Backend, err)
	}
	slog.Info("schema provisioned", "backend", cfg.Backend)
	return nil
}
