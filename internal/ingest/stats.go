package ingest

// EntityStatus is the outcome of loading one entity type.
type EntityStatus string

const (
	StatusLoaded        EntityStatus = "loaded"
	StatusSkipped       EntityStatus = "skipped"        // no source
	StatusSchemaInvalid EntityStatus = "schema_invalid" // required columns missing
	StatusSourceError   EntityStatus = "source_error"
	StatusAborted       EntityStatus = "aborted" // connectivity loss or cancellation
)

// EntityStats holds per-entity counters.
//
// Every processed row lands in exactly one bucket:
//
//	Processed = Inserted + Errors + Skipped
type EntityStats struct {
	Entity    EntityType
	Processed int
	Inserted  int
	Errors    int
	Skipped   int // duplicate natural keys
	Status    EntityStatus
	Err       error // entity-level failure, nil when Status is loaded
}

// Balanced reports whether the counters add up.
func (s EntityStats) Balanced() bool {
	return s.Processed == s.Inserted+s.Errors+s.Skipped
}
