package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the storage backend seen by the coordinator. Implementations
// translate normalized records into their own schema.
type Store interface {
	// Lookup returns the id of the record of entity whose natural key is key.
	// found is false when no such record exists. A non-nil error is a
	// *ConnectivityError or the context's error.
	Lookup(ctx context.Context, entity EntityType, key Key) (id int64, found bool, err error)

	// InsertBatch persists records in order. Per-record failures are reported
	// in BatchResult.Errors and do not stop the batch. A non-nil error means
	// the backend became unreachable or ctx was cancelled; records counted
	// in the result before that point stay committed.
	InsertBatch(ctx context.Context, entity EntityType, records []Record) (BatchResult, error)

	// Close releases connections. It is safe to call more than once.
	Close() error
}

// RecordError is the failure of one record within a batch.
type RecordError struct {
	Index int // position in the records slice passed to InsertBatch
	Err   error
}

// BatchResult reports the outcome of InsertBatch.
type BatchResult struct {
	Inserted int
	IDs      []int64 // one per input record, 0 where the insert failed
	Errors   []RecordError
}

// SequenceSource is implemented by stores that can report the highest
// message sequence number already stored for a conversation.
type SequenceSource interface {
	LastSequence(ctx context.Context, conversationID int64) (int64, error)
}

// RunRecorder is implemented by stores that keep an ingestion history.
type RunRecorder interface {
	RecordRun(ctx context.Context, run RunSummary) error
}

// RunStatus is the terminal status of a run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// RunSummary is the result of one ingestion run.
type RunSummary struct {
	RunID      uuid.UUID
	Status     RunStatus
	Err        error // fatal error, when Status is not completed
	StartedAt  time.Time
	FinishedAt time.Time
	Entities   []EntityStats // in load order, only for attempted entities
}

// Stats returns the statistics for one entity type.
func (s RunSummary) Stats(entity EntityType) (EntityStats, bool) {
	for _, es := range s.Entities {
		if es.Entity == entity {
			return es, true
		}
	}
	return EntityStats{}, false
}

// Totals sums the counters of every entity type.
func (s RunSummary) Totals() EntityStats {
	var t EntityStats
	for _, es := range s.Entities {
		t.Processed += es.Processed
		t.Inserted += es.Inserted
		t.Errors += es.Errors
		t.Skipped += es.Skipped
	}
	return t
}

// Failed reports whether the run should end with a non-zero exit code: the
// run ended fatally, or some entity type had non-duplicate rows but stored
// none of them. Duplicate skips are excluded on purpose, so a rerun over an
// already loaded store succeeds.
func (s RunSummary) Failed() bool {
	if s.Status != RunCompleted {
		return true
	}
	for _, es := range s.Entities {
		if es.Inserted == 0 && es.Processed-es.Skipped > 0 {
			return true
		}
	}
	return false
}
