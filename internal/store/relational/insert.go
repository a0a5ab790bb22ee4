package relational

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/shopload/internal/ingest"
)

// InsertBatch implements ingest.Store.
//
// Records are written chunkSize at a time, each chunk in its own
// transaction with a savepoint per record. A constraint violation rolls back
// to the record's savepoint and the chunk continues. Losing the connection
// abandons the open chunk; chunks committed before stay committed.
func (s *Store) InsertBatch(ctx context.Context, entity ingest.EntityType, records []ingest.Record) (ingest.BatchResult, error) {
	res := ingest.BatchResult{IDs: make([]int64, len(records))}

	def, ok := tables[entity]
	if !ok {
		return res, fmt.Errorf("no table for entity %s", entity)
	}
	query := def.insertSQL(s.dialect)

	for start := 0; start < len(records); start += s.chunkSize {
		end := min(start+s.chunkSize, len(records))
		if err := s.insertChunk(ctx, def, query, records[start:end], start, &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (s *Store) insertChunk(ctx context.Context, def tableDef, query string, chunk []ingest.Record, offset int, res *ingest.BatchResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return batchFatal(ctx, "begin transaction", err)
	}
	defer tx.Rollback()

	ids := make([]int64, len(chunk))
	var failed []ingest.RecordError

	for i, rec := range chunk {
		savepoint := fmt.Sprintf("sp_%d", i)
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
			return batchFatal(ctx, "create savepoint", err)
		}

		var id int64
		err := tx.QueryRowContext(ctx, query, def.args(rec)...).Scan(&id)
		if err != nil {
			if ctx.Err() != nil || isConnectivity(err) {
				return batchFatal(ctx, "insert "+def.name, err)
			}
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
				return batchFatal(ctx, "rollback savepoint", rbErr)
			}
			failed = append(failed, ingest.RecordError{
				Index: offset + i,
				Err: &ingest.ConstraintViolation{
					Line:       rec.SourceLine(),
					Constraint: constraintKind(err),
					Err:        err,
				},
			})
			continue
		}

		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
			return batchFatal(ctx, "release savepoint", err)
		}
		ids[i] = id
	}

	if err := tx.Commit(); err != nil {
		return batchFatal(ctx, "commit", err)
	}

	for i, id := range ids {
		if id != 0 {
			res.IDs[offset+i] = id
			res.Inserted++
		}
	}
	res.Errors = append(res.Errors, failed...)
	return nil
}
