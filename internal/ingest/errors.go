package ingest

// errors.go defines the fault taxonomy of an ingestion run and the support
// codes attached to each fault.
//
// Propagation policy:
//
//	CONN001        ConnectivityError         fatal to the run, no retry
//	SCH001         SchemaMismatchError       fatal to one entity type
//	VAL001-VAL004  ValidationRejection       one row, counted as an error
//	REF001         UnresolvedReferenceError  one row, counted as an error
//	DUP001         ErrDuplicate              one row, counted as skipped
//	DB001-DB004    ConstraintViolation       one record, counted as an error
//	SRC001         SourceError               fatal to one entity type
//
// Row-level faults never interrupt a batch. Entity-level faults advance the
// coordinator to the next entity type. Connectivity faults end the run.

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicate marks a row dropped because its natural key was already seen
// in the batch or already exists in storage. It is informational.
var ErrDuplicate = errors.New("duplicate natural key")

// ErrSourceMissing is returned by a Sources implementation when no source
// file exists for an entity type. The coordinator skips that entity.
var ErrSourceMissing = errors.New("source not found")

// ConnectivityError reports that the storage backend could not be reached.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("storage unreachable during %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// SchemaMismatchError reports required columns missing from a source header.
type SchemaMismatchError struct {
	Entity  EntityType
	Missing []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("%s: missing required columns: %s", e.Entity, strings.Join(e.Missing, ", "))
}

// SourceError reports that a source file could not be opened or parsed.
type SourceError struct {
	Entity EntityType
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: read source: %v", e.Entity, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Rejection reasons for ValidationRejection.
const (
	ReasonRequired    = "required field is empty"
	ReasonInvalid     = "invalid value"
	ReasonNegative    = "must not be negative"
	ReasonNotPositive = "must be greater than zero"
	ReasonEnum        = "value not allowed"
)

// ValidationRejection reports a row rejected during normalization.
type ValidationRejection struct {
	Line   int
	Field  string
	Value  string
	Reason string
}

func (e *ValidationRejection) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("line %d: %s %q: %s", e.Line, e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("line %d: %s: %s", e.Line, e.Field, e.Reason)
}

// UnresolvedReferenceError reports a hard reference that matched nothing.
type UnresolvedReferenceError struct {
	Line   int
	Target EntityType
	Key    Key
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("line %d: unresolved reference to %s %s", e.Line, e.Target, e.Key)
}

// ConstraintViolation reports a record the backend refused to store.
type ConstraintViolation struct {
	Line       int
	Constraint string // "unique", "foreign_key", "check", "not_null" or ""
	Err        error
}

func (e *ConstraintViolation) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("line %d: %s constraint: %v", e.Line, e.Constraint, e.Err)
	}
	return fmt.Sprintf("line %d: insert: %v", e.Line, e.Err)
}

func (e *ConstraintViolation) Unwrap() error { return e.Err }

// Code returns the support code for a fault, or "ERR000" when err is not part
// of the taxonomy. A nil error has no code.
func Code(err error) string {
	if err == nil {
		return ""
	}

	var (
		conn   *ConnectivityError
		schema *SchemaMismatchError
		src    *SourceError
		val    *ValidationRejection
		ref    *UnresolvedReferenceError
		cv     *ConstraintViolation
	)

	switch {
	case errors.As(err, &conn):
		return "CONN001"
	case errors.As(err, &schema):
		return "SCH001"
	case errors.As(err, &src):
		return "SRC001"
	case errors.As(err, &val):
		switch val.Reason {
		case ReasonRequired:
			return "VAL001"
		case ReasonNegative, ReasonNotPositive:
			return "VAL003"
		case ReasonEnum:
			return "VAL004"
		default:
			return "VAL002"
		}
	case errors.As(err, &ref):
		return "REF001"
	case errors.Is(err, ErrDuplicate):
		return "DUP001"
	case errors.As(err, &cv):
		switch cv.Constraint {
		case "unique":
			return "DB001"
		case "foreign_key":
			return "DB002"
		case "check", "not_null":
			return "DB003"
		default:
			return "DB004"
		}
	}
	return "ERR000"
}

// IsFatal reports whether err ends the whole run.
func IsFatal(err error) bool {
	var conn *ConnectivityError
	return errors.As(err, &conn)
}
