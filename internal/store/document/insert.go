package document

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JonMunkholm/shopload/internal/ingest"
)

// MongoDB server error codes for rejected documents.
const (
	codeDuplicateKey       = 11000
	codeDuplicateKeyLegacy = 11001
	codeDocumentValidation = 121
)

// InsertBatch implements ingest.Store.
//
// Each chunk reserves a block of ids and is written with one unordered
// InsertMany, so a rejected document does not stop the ones after it.
func (s *Store) InsertBatch(ctx context.Context, entity ingest.EntityType, records []ingest.Record) (ingest.BatchResult, error) {
	res := ingest.BatchResult{IDs: make([]int64, len(records))}
	if !entity.Valid() {
		return res, errors.New("unknown entity type: " + string(entity))
	}
	coll := s.db.Collection(string(entity))

	for start := 0; start < len(records); start += s.chunkSize {
		end := min(start+s.chunkSize, len(records))
		if err := s.insertChunk(ctx, coll, records[start:end], start, &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (s *Store) insertChunk(ctx context.Context, coll *mongo.Collection, chunk []ingest.Record, offset int, res *ingest.BatchResult) error {
	first, err := s.reserveIDs(ctx, coll.Name(), len(chunk))
	if err != nil {
		return err
	}

	// docs holds only the convertible records; positions maps a document
	// index back to its position in chunk.
	docs := make([]any, 0, len(chunk))
	positions := make([]int, 0, len(chunk))
	for i, rec := range chunk {
		doc, err := toDocument(first+int64(i), rec)
		if err != nil {
			res.Errors = append(res.Errors, ingest.RecordError{
				Index: offset + i,
				Err:   &ingest.ConstraintViolation{Line: rec.SourceLine(), Err: err},
			})
			continue
		}
		docs = append(docs, doc)
		positions = append(positions, i)
	}
	if len(docs) == 0 {
		return nil
	}

	_, err = coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	rejected, fatal := writeErrors(err)
	if fatal != nil {
		return batchFatal(ctx, "insert "+coll.Name(), fatal)
	}

	for docIdx, i := range positions {
		rec := chunk[i]
		if we, ok := rejected[docIdx]; ok {
			res.Errors = append(res.Errors, ingest.RecordError{
				Index: offset + i,
				Err: &ingest.ConstraintViolation{
					Line:       rec.SourceLine(),
					Constraint: constraintKind(we.Code),
					Err:        we,
				},
			})
			continue
		}
		res.IDs[offset+i] = first + int64(i)
		res.Inserted++
	}
	return nil
}

// writeErrors splits an InsertMany error into per-document rejections and a
// batch-fatal remainder. A write concern error is fatal because the
// acknowledged state of the batch is unknown.
func writeErrors(err error) (map[int]mongo.WriteError, error) {
	if err == nil {
		return nil, nil
	}

	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || bwe.WriteConcernError != nil || len(bwe.WriteErrors) == 0 {
		return nil, err
	}

	rejected := make(map[int]mongo.WriteError, len(bwe.WriteErrors))
	for _, we := range bwe.WriteErrors {
		rejected[we.Index] = we.WriteError
	}
	return rejected, nil
}

func constraintKind(code int) string {
	switch code {
	case codeDuplicateKey, codeDuplicateKeyLegacy:
		return "unique"
	case codeDocumentValidation:
		return "check"
	}
	return ""
}

// batchFatal converts a failure into the form promised by ingest.Store: the
// context error when ctx is done, a connectivity error otherwise.
func batchFatal(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var conn *ingest.ConnectivityError
	if errors.As(err, &conn) {
		return err
	}
	return &ingest.ConnectivityError{Op: op, Err: err}
}
