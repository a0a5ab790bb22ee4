// Package memory implements an in-process ingest.Store.
//
// It enforces the same unique and reference constraints as the relational
// schema, so a dry run reports the same per-record failures a database
// would. Nothing is persisted.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JonMunkholm/shopload/internal/ingest"
)

// Row is a stored record and its generated id.
type Row struct {
	ID     int64
	Record ingest.Record
}

// Store is a map-backed ingest.Store. It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	nextID  map[ingest.EntityType]int64
	rows    map[ingest.EntityType][]Row
	index   map[ingest.EntityType]map[ingest.Key]int64
	lastSeq map[int64]int64
	runs    []ingest.RunSummary

	unreachable error
	closed      int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:  make(map[ingest.EntityType]int64),
		rows:    make(map[ingest.EntityType][]Row),
		index:   make(map[ingest.EntityType]map[ingest.Key]int64),
		lastSeq: make(map[int64]int64),
	}
}

// SetUnreachable makes every later call fail with a *ingest.ConnectivityError
// wrapping err. A nil err restores the store.
func (s *Store) SetUnreachable(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unreachable = err
}

// Lookup implements ingest.Store.
func (s *Store) Lookup(ctx context.Context, entity ingest.EntityType, key ingest.Key) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reachable("lookup"); err != nil {
		return 0, false, err
	}
	id, ok := s.index[entity][key]
	return id, ok, nil
}

// InsertBatch implements ingest.Store.
func (s *Store) InsertBatch(ctx context.Context, entity ingest.EntityType, records []ingest.Record) (ingest.BatchResult, error) {
	res := ingest.BatchResult{IDs: make([]int64, len(records))}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := s.reachable("insert"); err != nil {
			return res, err
		}

		if err := s.check(rec); err != nil {
			res.Errors = append(res.Errors, ingest.RecordError{Index: i, Err: err})
			continue
		}

		s.nextID[entity]++
		id := s.nextID[entity]
		s.rows[entity] = append(s.rows[entity], Row{ID: id, Record: rec})
		for _, k := range keysOf(rec) {
			s.indexKey(entity, k, id)
		}
		if m, ok := rec.(*ingest.Message); ok && m.SequenceNumber > s.lastSeq[m.ConversationID] {
			s.lastSeq[m.ConversationID] = m.SequenceNumber
		}

		res.IDs[i] = id
		res.Inserted++
	}
	return res, nil
}

// LastSequence implements ingest.SequenceSource.
func (s *Store) LastSequence(ctx context.Context, conversationID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reachable("last sequence"); err != nil {
		return 0, err
	}
	return s.lastSeq[conversationID], nil
}

// RecordRun implements ingest.RunRecorder.
func (s *Store) RecordRun(_ context.Context, run ingest.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

// Close implements ingest.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// CloseCount returns how many times Close was called.
func (s *Store) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Rows returns the stored rows of an entity type in insertion order.
func (s *Store) Rows(entity ingest.EntityType) []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Row(nil), s.rows[entity]...)
}

// Count returns the number of stored rows of an entity type.
func (s *Store) Count(entity ingest.EntityType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows[entity])
}

// Runs returns the recorded run summaries.
func (s *Store) Runs() []ingest.RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ingest.RunSummary(nil), s.runs...)
}

func (s *Store) reachable(op string) error {
	if s.unreachable != nil {
		return &ingest.ConnectivityError{Op: op, Err: s.unreachable}
	}
	return nil
}

func (s *Store) indexKey(entity ingest.EntityType, key ingest.Key, id int64) {
	m, ok := s.index[entity]
	if !ok {
		m = make(map[ingest.Key]int64)
		s.index[entity] = m
	}
	m[key] = id
}

func (s *Store) has(entity ingest.EntityType, key ingest.Key) bool {
	_, ok := s.index[entity][key]
	return ok
}

func (s *Store) exists(entity ingest.EntityType, id int64) bool {
	return id > 0 && id <= s.nextID[entity]
}

// check enforces the unique and foreign key constraints of the schema.
func (s *Store) check(rec ingest.Record) error {
	line := rec.SourceLine()
	unique := func(entity ingest.EntityType, key ingest.Key) error {
		if s.has(entity, key) {
			return &ingest.ConstraintViolation{Line: line, Constraint: "unique",
				Err: fmt.Errorf("%s %s already exists", entity, key)}
		}
		return nil
	}
	foreign := func(entity ingest.EntityType, id int64) error {
		if !s.exists(entity, id) {
			return &ingest.ConstraintViolation{Line: line, Constraint: "foreign_key",
				Err: fmt.Errorf("%s id %d does not exist", entity, id)}
		}
		return nil
	}

	switch r := rec.(type) {
	case *ingest.Category:
		return unique(ingest.EntityCategory, ingest.Key{Field: ingest.KeyName, Value: r.Name})
	case *ingest.Product:
		if r.SKU.Valid {
			return unique(ingest.EntityProduct, ingest.Key{Field: ingest.KeySKU, Value: r.SKU.String})
		}
	case *ingest.User:
		if r.Email.Valid {
			return unique(ingest.EntityUser, ingest.Key{Field: ingest.KeyEmail, Value: r.Email.String})
		}
	case *ingest.Order:
		return unique(ingest.EntityOrder, ingest.Key{Field: ingest.KeyOrderNumber, Value: r.OrderNumber})
	case *ingest.OrderItem:
		if err := foreign(ingest.EntityOrder, r.OrderID); err != nil {
			return err
		}
		return foreign(ingest.EntityProduct, r.ProductID)
	case *ingest.Message:
		return foreign(ingest.EntityConversation, r.ConversationID)
	}
	return nil
}

// keysOf returns every key a record can be looked up by.
func keysOf(rec ingest.Record) []ingest.Key {
	switch r := rec.(type) {
	case *ingest.Category:
		return []ingest.Key{{Field: ingest.KeyName, Value: r.Name}}
	case *ingest.Product:
		keys := []ingest.Key{{Field: ingest.KeyName, Value: r.Name}}
		if r.SKU.Valid {
			keys = append(keys, ingest.Key{Field: ingest.KeySKU, Value: r.SKU.String})
		}
		return keys
	case *ingest.User:
		if r.Email.Valid {
			return []ingest.Key{{Field: ingest.KeyEmail, Value: r.Email.String}}
		}
	case *ingest.Order:
		return []ingest.Key{{Field: ingest.KeyOrderNumber, Value: r.OrderNumber}}
	case *ingest.Conversation:
		return []ingest.Key{{Field: ingest.KeySessionID, Value: r.SessionID}}
	}
	return nil
}
