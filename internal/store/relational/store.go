// Package relational implements ingest.Store on SQL databases.
//
// PostgreSQL is reached through a pgx connection pool exposed as a
// database/sql handle; SQLite uses the pure-Go modernc.org/sqlite driver.
// Both dialects share the insert path: records are written in chunks, one
// transaction per chunk and one savepoint per record, so a failing record
// rolls back alone while the rest of the chunk commits.
package relational

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JonMunkholm/shopload/internal/ingest"
)

// DefaultChunkSize is the number of records written per transaction.
const DefaultChunkSize = 500

// Config holds connection settings.
type Config struct {
	Dialect   Dialect
	DSN       string // postgres URL or keyword string, or SQLite file path
	MaxConns  int32  // postgres pool size, 0 keeps the pgxpool default
	ChunkSize int
}

// Store is a relational ingest.Store.
type Store struct {
	db        *sql.DB
	pool      *pgxpool.Pool // nil unless opened by Open with Postgres
	dialect   Dialect
	chunkSize int

	closeOnce sync.Once
	closeErr  error
}

// Open connects and verifies the connection. Connection failures are
// returned as *ingest.ConnectivityError.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	switch cfg.Dialect {
	case Postgres:
		poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse postgres dsn: %w", err)
		}
		if cfg.MaxConns > 0 {
			poolConfig.MaxConns = cfg.MaxConns
		}

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, &ingest.ConnectivityError{Op: "connect", Err: err}
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, &ingest.ConnectivityError{Op: "connect", Err: err}
		}

		s := New(stdlib.OpenDBFromPool(pool), Postgres, cfg.ChunkSize)
		s.pool = pool
		return s, nil

	case SQLite:
		db, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, &ingest.ConnectivityError{Op: "connect", Err: err}
		}
		// One connection keeps ":memory:" databases alive across calls and
		// serializes writers.
		db.SetMaxOpenConns(1)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, &ingest.ConnectivityError{Op: "connect", Err: err}
		}
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
		return New(db, SQLite, cfg.ChunkSize), nil

	default:
		return nil, fmt.Errorf("unknown SQL dialect: %q", cfg.Dialect)
	}
}

// New wraps an open database handle.
func New(db *sql.DB, dialect Dialect, chunkSize int) *Store {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Store{db: db, dialect: dialect, chunkSize: chunkSize}
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the SQL dialect of the store.
func (s *Store) Dialect() Dialect { return s.dialect }

// Close implements ingest.Store.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
		if s.pool != nil {
			s.pool.Close()
		}
	})
	return s.closeErr
}

// Lookup implements ingest.Store.
func (s *Store) Lookup(ctx context.Context, entity ingest.EntityType, key ingest.Key) (int64, bool, error) {
	query, ok := lookupSQL[entity][key.Field]
	if !ok {
		return 0, false, fmt.Errorf("no lookup for %s by %s", entity, key.Field)
	}

	var id int64
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(query), key.Value).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, batchFatal(ctx, "lookup", err)
	}
	return id, true, nil
}

// LastSequence implements ingest.SequenceSource.
func (s *Store) LastSequence(ctx context.Context, conversationID int64) (int64, error) {
	var last int64
	err := s.db.QueryRowContext(ctx,
		s.dialect.rebind("SELECT COALESCE(MAX(sequence_number), 0) FROM messages WHERE conversation_id = ?"),
		conversationID,
	).Scan(&last)
	if err != nil {
		return 0, batchFatal(ctx, "last sequence", err)
	}
	return last, nil
}

// runEntity is the JSON form of one entity's statistics in ingestion_runs.
type runEntity struct {
	Entity    string `json:"entity"`
	Status    string `json:"status"`
	Processed int    `json:"processed"`
	Inserted  int    `json:"inserted"`
	Errors    int    `json:"errors"`
	Skipped   int    `json:"skipped"`
	Error     string `json:"error,omitempty"`
}

// RecordRun implements ingest.RunRecorder.
func (s *Store) RecordRun(ctx context.Context, run ingest.RunSummary) error {
	details := make([]runEntity, 0, len(run.Entities))
	for _, es := range run.Entities {
		re := runEntity{
			Entity:    string(es.Entity),
			Status:    string(es.Status),
			Processed: es.Processed,
			Inserted:  es.Inserted,
			Errors:    es.Errors,
			Skipped:   es.Skipped,
		}
		if es.Err != nil {
			re.Error = es.Err.Error()
		}
		details = append(details, re)
	}
	detailJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode run details: %w", err)
	}

	var errMsg sql.NullString
	if run.Err != nil {
		errMsg = sql.NullString{String: run.Err.Error(), Valid: true}
	}

	totals := run.Totals()
	_, err = s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO ingestion_runs
			(run_id, status, started_at, finished_at, processed, inserted, errors, skipped, error_message, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		run.RunID.String(), string(run.Status), run.StartedAt, run.FinishedAt,
		totals.Processed, totals.Inserted, totals.Errors, totals.Skipped,
		errMsg, string(detailJSON),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}
