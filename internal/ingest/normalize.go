package ingest

// normalize.go turns raw CSV rows into canonical records.
//
// Normalization happens at two levels:
//  1. Header validation: every required column must be present, otherwise
//     the whole source is rejected with a SchemaMismatchError.
//  2. Row normalization: each recognized column is cleaned and coerced;
//     omitted optional columns take entity defaults; the first invalid field
//     rejects the row with a ValidationRejection.

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgtype"
)

// ColumnSpec describes one recognized source column.
type ColumnSpec struct {
	Name     string // lowercased header name
	Required bool   // column must exist in the header
}

// NormalizeFunc converts a raw row into a record. The returned error is
// always a *ValidationRejection. now is the load time used for defaults.
type NormalizeFunc func(row RawRow, now time.Time) (Record, error)

// EntitySpec contains everything needed to normalize one entity type.
type EntitySpec struct {
	Entity    EntityType
	Columns   []ColumnSpec
	Normalize NormalizeFunc
}

// RequiredColumns returns the names of the required columns.
func (s EntitySpec) RequiredColumns() []string {
	var cols []string
	for _, c := range s.Columns {
		if c.Required {
			cols = append(cols, c.Name)
		}
	}
	return cols
}

var (
	specs   = make(map[EntityType]EntitySpec)
	specsMu sync.RWMutex
)

// Register adds an entity spec. It panics on duplicate registration.
func Register(spec EntitySpec) {
	specsMu.Lock()
	defer specsMu.Unlock()

	if _, exists := specs[spec.Entity]; exists {
		panic(fmt.Sprintf("entity already registered: %s", spec.Entity))
	}
	specs[spec.Entity] = spec
}

// Spec returns the registered spec for an entity type.
func Spec(entity EntityType) (EntitySpec, bool) {
	specsMu.RLock()
	defer specsMu.RUnlock()

	s, ok := specs[entity]
	return s, ok
}

// ValidateHeaders checks that every required column of spec is in header.
// header names are expected lowercased, as produced by ReadTable.
func ValidateHeaders(header []string, spec EntitySpec) error {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}

	var missing []string
	for _, col := range spec.RequiredColumns() {
		if !present[col] {
			missing = append(missing, col)
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return &SchemaMismatchError{Entity: spec.Entity, Missing: missing}
	}
	return nil
}

// Normalized is the output of NormalizeTable: accepted records in source
// order plus one rejection per refused row.
type Normalized struct {
	Records  []Record
	Rejected []*ValidationRejection
}

// NormalizeTable validates the header and normalizes every row.
// A non-nil error means the whole table was refused.
func NormalizeTable(t *Table, spec EntitySpec, now time.Time) (*Normalized, error) {
	if err := ValidateHeaders(t.Header, spec); err != nil {
		return nil, err
	}

	out := &Normalized{Records: make([]Record, 0, len(t.Rows))}
	for _, row := range t.Rows {
		rec, err := spec.Normalize(row, now)
		if err != nil {
			rej, ok := err.(*ValidationRejection)
			if !ok {
				rej = &ValidationRejection{Line: row.Line, Reason: err.Error()}
			}
			out.Rejected = append(out.Rejected, rej)
			continue
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

// cells reads typed values out of a row and remembers the first rejection.
// Once a rejection is recorded every accessor returns a zero value.
type cells struct {
	row RawRow
	err *ValidationRejection
}

func newCells(row RawRow) *cells {
	return &cells{row: row}
}

func (c *cells) reject(field, value, reason string) {
	if c.err == nil {
		c.err = &ValidationRejection{Line: c.row.Line, Field: field, Value: value, Reason: reason}
	}
}

// result returns the first rejection as an error, or nil.
func (c *cells) result() error {
	if c.err == nil {
		return nil
	}
	return c.err
}

func (c *cells) raw(col string) string {
	return c.row.Get(col)
}

func (c *cells) required(col string) string {
	v := CleanText(c.raw(col))
	if v == "" {
		c.reject(col, "", ReasonRequired)
	}
	return v
}

func (c *cells) optional(col string) string {
	return CleanText(c.raw(col))
}

func (c *cells) text(col string) pgtype.Text {
	v := c.optional(col)
	if v == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: v, Valid: true}
}

func (c *cells) email(col string) pgtype.Text {
	v := c.optional(col)
	if v == "" {
		return pgtype.Text{Valid: false}
	}
	if !ValidateEmail(v) {
		c.reject(col, v, ReasonInvalid)
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: v, Valid: true}
}

// price returns a non-negative decimal. Empty cells reject the row when
// required and otherwise yield def.
func (c *cells) price(col string, required bool, def pgtype.Numeric) pgtype.Numeric {
	raw := c.raw(col)
	if raw == "" {
		if required {
			c.reject(col, "", ReasonRequired)
		}
		return def
	}
	if p := ValidatePrice(raw); p.Valid {
		return p
	}
	if parseDecimal(raw).Valid {
		c.reject(col, raw, ReasonNegative)
	} else {
		c.reject(col, raw, ReasonInvalid)
	}
	return pgtype.Numeric{Valid: false}
}

// count returns a non-negative integer, or def when the cell is empty.
func (c *cells) count(col string, def int64) int64 {
	raw := c.raw(col)
	if raw == "" {
		return def
	}
	v := ValidateInteger(raw)
	switch {
	case !v.Valid:
		c.reject(col, raw, ReasonInvalid)
		return 0
	case v.Int64 < 0:
		c.reject(col, raw, ReasonNegative)
		return 0
	}
	return v.Int64
}

// quantity returns a required integer greater than zero.
func (c *cells) quantity(col string) int64 {
	raw := c.raw(col)
	if raw == "" {
		c.reject(col, "", ReasonRequired)
		return 0
	}
	v := ValidateInteger(raw)
	switch {
	case !v.Valid:
		c.reject(col, raw, ReasonInvalid)
		return 0
	case v.Int64 <= 0:
		c.reject(col, raw, ReasonNotPositive)
		return 0
	}
	return v.Int64
}

// optionalCount is count without a default: empty cells stay null.
func (c *cells) optionalCount(col string) pgtype.Int8 {
	if c.raw(col) == "" {
		return pgtype.Int8{Valid: false}
	}
	v := c.count(col, 0)
	if c.err != nil {
		return pgtype.Int8{Valid: false}
	}
	return pgtype.Int8{Int64: v, Valid: true}
}

func (c *cells) boolean(col string, def bool) bool {
	raw := c.raw(col)
	if raw == "" {
		return def
	}
	v := ParseBool(raw)
	if !v.Valid {
		c.reject(col, raw, ReasonInvalid)
		return def
	}
	return v.Bool
}

func (c *cells) enum(col string, allowed []string, def string) string {
	raw := c.raw(col)
	if raw == "" {
		if def == "" {
			c.reject(col, "", ReasonRequired)
		}
		return def
	}
	v, ok := ParseEnum(raw, allowed)
	if !ok {
		c.reject(col, raw, ReasonEnum)
		return def
	}
	return v
}

func (c *cells) timestamp(col string) pgtype.Timestamptz {
	raw := c.raw(col)
	if raw == "" {
		return pgtype.Timestamptz{Valid: false}
	}
	v := ParseTimestamp(raw)
	if !v.Valid {
		c.reject(col, raw, ReasonInvalid)
	}
	return v
}

func (c *cells) json(col string) json.RawMessage {
	raw := c.raw(col)
	if raw == "" {
		return nil
	}
	v, ok := ParseJSON(raw)
	if !ok {
		c.reject(col, truncate(raw, 40), ReasonInvalid)
		return nil
	}
	return v
}

func (c *cells) confidence(col string) pgtype.Numeric {
	raw := c.raw(col)
	if raw == "" {
		return pgtype.Numeric{Valid: false}
	}
	v := ParseConfidence(raw)
	if !v.Valid {
		c.reject(col, raw, ReasonInvalid)
	}
	return v
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return strings.TrimSpace(s[:n]) + "..."
}

func timestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}
