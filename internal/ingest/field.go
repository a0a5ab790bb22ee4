package ingest

// field.go provides the per-field cleaning and coercion rules applied to CSV
// cells before they become record attributes.
//
// Every function here is total: it never panics and never returns an error.
// Invalid input maps to an invalid pgtype value (Valid=false) or false, which
// the normalizers interpret as "use the default" when the cell is empty and as
// "reject the row" when the cell is present.

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would land more than this many years in the future are moved
// to the previous century.
var TwoDigitYearPivot = 20

var (
	timestampLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
		"1/2/2006 15:04:05",
		"1/2/2006 15:04",
	}
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"2006-01-02", "2006/01/02", "2006.01.02",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
)

// CleanText trims surrounding whitespace. Missing input is the empty string.
func CleanText(s string) string {
	return strings.TrimSpace(s)
}

// ValidateEmail is deliberately shallow: non-empty and containing "@".
func ValidateEmail(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && strings.Contains(s, "@")
}

// ValidatePrice converts a price cell to pgtype.Numeric.
// Currency symbols and thousands separators are removed. Missing, non-numeric
// and negative values return an invalid Numeric.
func ValidatePrice(s string) pgtype.Numeric {
	n := parseDecimal(s)
	if !n.Valid || n.Int.Sign() < 0 {
		return pgtype.Numeric{Valid: false}
	}
	return n
}

// ValidateInteger converts a cell to pgtype.Int8. Fractional values are
// truncated through a float conversion, so "3.9" becomes 3.
func ValidateInteger(s string) pgtype.Int8 {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Int8{Valid: false}
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return pgtype.Int8{Valid: false}
	}
	f = math.Trunc(f)
	if f > math.MaxInt64 || f < math.MinInt64 {
		return pgtype.Int8{Valid: false}
	}
	return pgtype.Int8{Int64: int64(f), Valid: true}
}

// ParseBool accepts true/false, yes/no, t/f, y/n and 1/0.
func ParseBool(s string) pgtype.Bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "1":
		return pgtype.Bool{Bool: true, Valid: true}
	case "false", "f", "no", "n", "0":
		return pgtype.Bool{Bool: false, Valid: true}
	default:
		return pgtype.Bool{Valid: false}
	}
}

// ParseTimestamp accepts RFC 3339, "YYYY-MM-DD HH:MM:SS" and the common date
// layouts. Date-only values resolve to midnight UTC.
func ParseTimestamp(s string) pgtype.Timestamptz {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Timestamptz{Valid: false}
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
		}
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return pgtype.Timestamptz{Time: t, Valid: true}
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return pgtype.Timestamptz{Time: t, Valid: true}
		}
	}

	return pgtype.Timestamptz{Valid: false}
}

// ParseConfidence converts a confidence score in [0, 1].
func ParseConfidence(s string) pgtype.Numeric {
	n := parseDecimal(s)
	if !n.Valid {
		return n
	}
	f, err := n.Float64Value()
	if err != nil || !f.Valid || f.Float64 < 0 || f.Float64 > 1 {
		return pgtype.Numeric{Valid: false}
	}
	return n
}

// ParseJSON returns the compacted JSON text when s holds an object or array.
func ParseJSON(s string) (json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return nil, false
	}
	if !json.Valid([]byte(s)) {
		return nil, false
	}
	return json.RawMessage(s), true
}

// ParseEnum matches s case-insensitively against allowed and returns the
// canonical spelling.
func ParseEnum(s string, allowed []string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, v := range allowed {
		if strings.EqualFold(v, s) {
			return v, true
		}
	}
	return "", false
}

// parseDecimal handles currency symbols, thousands separators and accounting
// negatives such as "(12.50)".
func parseDecimal(s string) pgtype.Numeric {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Numeric{Valid: false}
	}

	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "")
	s = strings.ReplaceAll(s, "£", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return pgtype.Numeric{Valid: false}
	}

	// pgtype only scans plain decimals, so the exponent is applied here.
	var exp int64
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		e, err := strconv.ParseInt(s[i+1:], 10, 16)
		if err != nil {
			return pgtype.Numeric{Valid: false}
		}
		s, exp = s[:i], e
	}

	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return pgtype.Numeric{Valid: false}
	}
	n.Exp += int32(exp)
	return n
}

// MakeHeaderIndex maps lowercased, cleaned header names to column positions.
// The first occurrence of a repeated header wins.
func MakeHeaderIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		if _, seen := idx[key]; !seen {
			idx[key] = i
		}
	}
	return idx
}

// CleanCell removes common CSV artifacts from a cell value:
// surrounding whitespace, the Excel formula prefix (="...") and a matching
// pair of surrounding quotes. Quotes inside the value are kept.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if len(s) >= 3 && strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	}

	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'') && first == last {
			s = s[1 : len(s)-1]
		}
	}
	return strings.TrimSpace(s)
}
