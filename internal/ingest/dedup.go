package ingest

import "context"

// Deduplicator drops records whose natural key was already seen, earlier in
// the same source or in storage. The first occurrence wins.
type Deduplicator struct {
	resolver *Resolver
	seen     map[EntityType]map[Key]int // key -> source line of first occurrence
}

// NewDeduplicator creates a deduplicator. When resolver is nil only
// in-batch duplicates are detected.
func NewDeduplicator(resolver *Resolver) *Deduplicator {
	return &Deduplicator{
		resolver: resolver,
		seen:     make(map[EntityType]map[Key]int),
	}
}

// Duplicate is a dropped record and the reason it was dropped.
type Duplicate struct {
	Record    Record
	Key       Key
	FirstLine int  // line of the winning row, 0 when the key came from storage
	Stored    bool // key already existed in storage
}

// Filter splits records into the ones to keep and the duplicates, keeping
// source order. Records that do not implement Keyed, or whose key is
// absent, are always kept. The error is non-nil only when a storage lookup
// failed.
func (d *Deduplicator) Filter(ctx context.Context, entity EntityType, records []Record) ([]Record, []Duplicate, error) {
	seen, ok := d.seen[entity]
	if !ok {
		seen = make(map[Key]int)
		d.seen[entity] = seen
	}

	kept := make([]Record, 0, len(records))
	var dups []Duplicate

	for _, rec := range records {
		keyed, ok := rec.(Keyed)
		if !ok {
			kept = append(kept, rec)
			continue
		}
		key, ok := keyed.NaturalKey()
		if !ok {
			kept = append(kept, rec)
			continue
		}

		if first, dup := seen[key]; dup {
			dups = append(dups, Duplicate{Record: rec, Key: key, FirstLine: first})
			continue
		}

		if d.resolver != nil {
			_, stored, err := d.resolver.Resolve(ctx, entity, key)
			if err != nil {
				return nil, nil, err
			}
			if stored {
				seen[key] = 0
				dups = append(dups, Duplicate{Record: rec, Key: key, Stored: true})
				continue
			}
		}

		seen[key] = rec.SourceLine()
		kept = append(kept, rec)
	}
	return kept, dups, nil
}
