// Package document implements ingest.Store on MongoDB.
//
// Each entity type lives in its own collection. Documents carry int64 _id
// values reserved from a counters collection, so ids look the same as the
// relational backend's and references between collections stay numeric.
package document

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/JonMunkholm/shopload/internal/ingest"
)

const (
	DefaultChunkSize      = 500
	defaultConnectTimeout = 10 * time.Second

	countersCollection = "counters"
	runsCollection     = "ingestion_runs"
)

// Config holds connection settings.
type Config struct {
	URI            string
	Database       string
	ChunkSize      int
	ConnectTimeout time.Duration
}

// Store is a MongoDB ingest.Store.
type Store struct {
	client    *mongo.Client
	db        *mongo.Database
	chunkSize int

	closeOnce sync.Once
	closeErr  error
}

// Open connects and pings the primary. Connection failures are returned as
// *ingest.ConnectivityError.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Database == "" {
		return nil, errors.New("mongodb database name is required")
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(timeout).
		SetConnectTimeout(timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, &ingest.ConnectivityError{Op: "connect", Err: err}
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, &ingest.ConnectivityError{Op: "connect", Err: err}
	}
	return New(client, cfg.Database, cfg.ChunkSize), nil
}

// New wraps a connected client.
func New(client *mongo.Client, database string, chunkSize int) *Store {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Store{client: client, db: client.Database(database), chunkSize: chunkSize}
}

// Database returns the underlying database handle.
func (s *Store) Database() *mongo.Database { return s.db }

// Close implements ingest.Store.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
		defer cancel()
		s.closeErr = s.client.Disconnect(ctx)
	})
	return s.closeErr
}

// lookupFields lists the natural key fields each collection can be searched by.
var lookupFields = map[ingest.EntityType][]string{
	ingest.EntityCategory:     {ingest.KeyName},
	ingest.EntityProduct:      {ingest.KeySKU, ingest.KeyName},
	ingest.EntityUser:         {ingest.KeyEmail},
	ingest.EntityOrder:        {ingest.KeyOrderNumber},
	ingest.EntityConversation: {ingest.KeySessionID},
}

func canLookup(entity ingest.EntityType, field string) bool {
	for _, f := range lookupFields[entity] {
		if f == field {
			return true
		}
	}
	return false
}

type idDoc struct {
	ID int64 `bson:"_id"`
}

// Lookup implements ingest.Store. Conversations resolve to the most recent
// one for the session, everything else to the first match.
func (s *Store) Lookup(ctx context.Context, entity ingest.EntityType, key ingest.Key) (int64, bool, error) {
	if !canLookup(entity, key.Field) {
		return 0, false, fmt.Errorf("no lookup for %s by %s", entity, key.Field)
	}

	order := 1
	if entity == ingest.EntityConversation {
		order = -1
	}
	opts := options.FindOne().
		SetSort(bson.D{{Key: "_id", Value: order}}).
		SetProjection(bson.D{{Key: "_id", Value: 1}})

	var doc idDoc
	err := s.db.Collection(string(entity)).FindOne(ctx, bson.D{{Key: key.Field, Value: key.Value}}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, batchFatal(ctx, "lookup", err)
	}
	return doc.ID, true, nil
}

// LastSequence implements ingest.SequenceSource.
func (s *Store) LastSequence(ctx context.Context, conversationID int64) (int64, error) {
	opts := options.FindOne().
		SetSort(bson.D{{Key: "sequence_number", Value: -1}}).
		SetProjection(bson.D{{Key: "sequence_number", Value: 1}})

	var doc struct {
		Seq int64 `bson:"sequence_number"`
	}
	err := s.db.Collection(string(ingest.EntityMessage)).
		FindOne(ctx, bson.D{{Key: "conversation_id", Value: conversationID}}, opts).
		Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, batchFatal(ctx, "last sequence", err)
	}
	return doc.Seq, nil
}

// reserveIDs atomically advances the collection's counter by n and returns
// the first id of the reserved block.
func (s *Store) reserveIDs(ctx context.Context, collection string, n int) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.db.Collection(countersCollection).FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: collection}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "seq", Value: int64(n)}}}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, batchFatal(ctx, "reserve ids", err)
	}
	return counter.Seq - int64(n) + 1, nil
}

type runEntityDoc struct {
	Entity    string `bson:"entity"`
	Status    string `bson:"status"`
	Processed int    `bson:"processed"`
	Inserted  int    `bson:"inserted"`
	Errors    int    `bson:"errors"`
	Skipped   int    `bson:"skipped"`
	Error     string `bson:"error,omitempty"`
}

type runDoc struct {
	RunID        string         `bson:"run_id"`
	Status       string         `bson:"status"`
	StartedAt    time.Time      `bson:"started_at"`
	FinishedAt   time.Time      `bson:"finished_at"`
	Processed    int            `bson:"processed"`
	Inserted     int            `bson:"inserted"`
	Errors       int            `bson:"errors"`
	Skipped      int            `bson:"skipped"`
	ErrorMessage string         `bson:"error_message,omitempty"`
	Entities     []runEntityDoc `bson:"entities"`
}

func newRunDoc(run ingest.RunSummary) runDoc {
	totals := run.Totals()
	doc := runDoc{
		RunID:      run.RunID.String(),
		Status:     string(run.Status),
		StartedAt:  run.StartedAt.UTC(),
		FinishedAt: run.FinishedAt.UTC(),
		Processed:  totals.Processed,
		Inserted:   totals.Inserted,
		Errors:     totals.Errors,
		Skipped:    totals.Skipped,
		Entities:   make([]runEntityDoc, 0, len(run.Entities)),
	}
	if run.Err != nil {
		doc.ErrorMessage = run.Err.Error()
	}
	for _, es := range run.Entities {
		e := runEntityDoc{
			Entity:    string(es.Entity),
			Status:    string(es.Status),
			Processed: es.Processed,
			Inserted:  es.Inserted,
			Errors:    es.Errors,
			Skipped:   es.Skipped,
		}
		if es.Err != nil {
			e.Error = es.Err.Error()
		}
		doc.Entities = append(doc.Entities, e)
	}
	return doc
}

// RecordRun implements ingest.RunRecorder.
func (s *Store) RecordRun(ctx context.Context, run ingest.RunSummary) error {
	if _, err := s.db.Collection(runsCollection).InsertOne(ctx, newRunDoc(run)); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}
