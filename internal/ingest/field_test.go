package ingest

import (
	"testing"
	"time"
)

// ----------------------------------------------------------------------------
// ValidatePrice Tests
// ----------------------------------------------------------------------------

func TestValidatePrice(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantValid bool
		want      float64
	}{
		{name: "plain decimal", input: "19.99", wantValid: true, want: 19.99},
		{name: "currency and thousands", input: "$1,299.00", wantValid: true, want: 1299},
		{name: "euro sign", input: "€45.50", wantValid: true, want: 45.5},
		{name: "pound sign", input: "£3", wantValid: true, want: 3},
		{name: "zero", input: "0", wantValid: true, want: 0},
		{name: "leading decimal point", input: ".99", wantValid: true, want: 0.99},
		{name: "surrounding whitespace", input: "  12.5  ", wantValid: true, want: 12.5},
		{name: "scientific notation", input: "1.5e2", wantValid: true, want: 150},
		{name: "scientific notation negative exponent", input: "25E-1", wantValid: true, want: 2.5},
		{name: "scientific notation integer", input: "1e5", wantValid: true, want: 100000},

		{name: "negative", input: "-5", wantValid: false},
		{name: "accounting negative", input: "(12.50)", wantValid: false},
		{name: "empty", input: "", wantValid: false},
		{name: "whitespace only", input: "   ", wantValid: false},
		{name: "text", input: "abc", wantValid: false},
		{name: "two decimal points", input: "1.2.3", wantValid: false},
		{name: "dangling exponent", input: "1.5e", wantValid: false},
		{name: "negative exponent form", input: "-1.5e2", wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidatePrice(tt.input)

			if result.Valid != tt.wantValid {
				t.Fatalf("ValidatePrice(%q).Valid = %v, want %v", tt.input, result.Valid, tt.wantValid)
			}
			if !tt.wantValid {
				return
			}

			f, err := result.Float64Value()
			if err != nil {
				t.Fatalf("Float64Value() error: %v", err)
			}
			if f.Float64 != tt.want {
				t.Errorf("ValidatePrice(%q) = %v, want %v", tt.input, f.Float64, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ValidateInteger Tests
// ----------------------------------------------------------------------------

func TestValidateInteger(t *testing.T) {
	tests := []struct {
		input     string
		wantValid bool
		want      int64
	}{
		{"42", true, 42},
		{"0", true, 0},
		{"-3", true, -3},
		{"3.9", true, 3},
		{"-3.9", true, -3},
		{"1,000", true, 1000},
		{" 7 ", true, 7},
		{"", false, 0},
		{"abc", false, 0},
		{"NaN", false, 0},
		{"Inf", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ValidateInteger(tt.input)
			if result.Valid != tt.wantValid {
				t.Fatalf("ValidateInteger(%q).Valid = %v, want %v", tt.input, result.Valid, tt.wantValid)
			}
			if result.Int64 != tt.want {
				t.Errorf("ValidateInteger(%q) = %d, want %d", tt.input, result.Int64, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Text, email, bool Tests
// ----------------------------------------------------------------------------

func TestCleanText(t *testing.T) {
	if got := CleanText("  Books \n"); got != "Books" {
		t.Errorf("CleanText() = %q, want %q", got, "Books")
	}
	if got := CleanText(""); got != "" {
		t.Errorf("CleanText(\"\") = %q, want empty", got)
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"alice@example.com", true},
		{" bob@shop.io ", true},
		{"a@b", true},
		{"alice.example.com", false},
		{"", false},
		{"   ", false},
	}

	for _, tt := range tests {
		if got := ValidateEmail(tt.input); got != tt.want {
			t.Errorf("ValidateEmail(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		input     string
		wantValid bool
		want      bool
	}{
		{"true", true, true},
		{"TRUE", true, true},
		{"yes", true, true},
		{"1", true, true},
		{"false", true, false},
		{"No", true, false},
		{"0", true, false},
		{"", false, false},
		{"maybe", false, false},
	}

	for _, tt := range tests {
		result := ParseBool(tt.input)
		if result.Valid != tt.wantValid || result.Bool != tt.want {
			t.Errorf("ParseBool(%q) = %+v, want valid=%v bool=%v", tt.input, result, tt.wantValid, tt.want)
		}
	}
}

// ----------------------------------------------------------------------------
// ParseTimestamp Tests
// ----------------------------------------------------------------------------

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantValid bool
		want      time.Time
	}{
		{
			name:      "RFC 3339",
			input:     "2024-03-15T10:30:00Z",
			wantValid: true,
			want:      time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:      "RFC 3339 with offset",
			input:     "2024-03-15T12:30:00+02:00",
			wantValid: true,
			want:      time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:      "SQL datetime",
			input:     "2024-03-15 10:30:00",
			wantValid: true,
			want:      time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:      "ISO date",
			input:     "2024-03-15",
			wantValid: true,
			want:      time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "US date",
			input:     "3/15/2024",
			wantValid: true,
			want:      time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "two digit year",
			input:     "3/15/99",
			wantValid: true,
			want:      time.Date(1999, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		{name: "empty", input: "", wantValid: false},
		{name: "garbage", input: "yesterday", wantValid: false},
		{name: "impossible date", input: "2024-02-30", wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseTimestamp(tt.input)
			if result.Valid != tt.wantValid {
				t.Fatalf("ParseTimestamp(%q).Valid = %v, want %v", tt.input, result.Valid, tt.wantValid)
			}
			if tt.wantValid && !result.Time.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.input, result.Time, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Confidence, JSON, enum Tests
// ----------------------------------------------------------------------------

func TestParseConfidence(t *testing.T) {
	tests := []struct {
		input     string
		wantValid bool
	}{
		{"0.95", true},
		{"0", true},
		{"1", true},
		{"1.01", false},
		{"-0.1", false},
		{"high", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := ParseConfidence(tt.input); got.Valid != tt.wantValid {
			t.Errorf("ParseConfidence(%q).Valid = %v, want %v", tt.input, got.Valid, tt.wantValid)
		}
	}
}

func TestParseJSON(t *testing.T) {
	tests := []struct {
		input  string
		wantOK bool
	}{
		{`{"order_id": "ORD-1"}`, true},
		{`[1, 2, 3]`, true},
		{`  {}  `, true},
		{`{"broken": }`, false},
		{`"just a string"`, false},
		{`42`, false},
		{``, false},
	}

	for _, tt := range tests {
		raw, ok := ParseJSON(tt.input)
		if ok != tt.wantOK {
			t.Errorf("ParseJSON(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
		}
		if ok && len(raw) == 0 {
			t.Errorf("ParseJSON(%q) returned empty JSON", tt.input)
		}
	}
}

func TestParseEnum(t *testing.T) {
	got, ok := ParseEnum(" Shipped ", OrderStatuses)
	if !ok || got != "shipped" {
		t.Errorf("ParseEnum(Shipped) = %q, %v; want shipped, true", got, ok)
	}
	if _, ok := ParseEnum("lost", OrderStatuses); ok {
		t.Error("ParseEnum(lost) should not match")
	}
}

// ----------------------------------------------------------------------------
// CleanCell / MakeHeaderIndex Tests
// ----------------------------------------------------------------------------

func TestCleanCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "Books", want: "Books"},
		{name: "whitespace", input: "  Books  ", want: "Books"},
		{name: "excel formula", input: `="00123"`, want: "00123"},
		{name: "double quoted", input: `"Books"`, want: "Books"},
		{name: "single quoted", input: `'Books'`, want: "Books"},
		{name: "mismatched quotes kept", input: `"Books'`, want: `"Books'`},
		{name: "inner quotes kept", input: `He said "hi"`, want: `He said "hi"`},
		{name: "empty", input: "", want: ""},
		{name: "lone quote", input: `"`, want: `"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanCell(tt.input); got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMakeHeaderIndex(t *testing.T) {
	idx := MakeHeaderIndex([]string{" Name ", "PRICE", "name", `"SKU"`})

	want := map[string]int{"name": 0, "price": 1, "sku": 3}
	if len(idx) != len(want) {
		t.Fatalf("got %d columns, want %d: %v", len(idx), len(want), idx)
	}
	for col, pos := range want {
		if idx[col] != pos {
			t.Errorf("idx[%q] = %d, want %d", col, idx[col], pos)
		}
	}
}
