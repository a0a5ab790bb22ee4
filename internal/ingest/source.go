package ingest

// source.go reads one CSV source per entity type into raw rows.
//
// Readers are wrapped so that a UTF-8 BOM written by Windows tools is
// dropped and invalid UTF-8 sequences are replaced before the CSV parser
// sees them.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Sources opens the raw CSV stream for an entity type. Implementations
// return an error wrapping ErrSourceMissing when the entity has no source.
type Sources interface {
	Open(entity EntityType) (rc io.ReadCloser, name string, err error)
}

// DirSources reads <Dir>/<entity>.csv, with optional per-entity overrides.
type DirSources struct {
	Dir       string
	Overrides map[EntityType]string
}

// Open implements Sources.
func (d DirSources) Open(entity EntityType) (io.ReadCloser, string, error) {
	path := filepath.Join(d.Dir, entity.FileName())
	if p, ok := d.Overrides[entity]; ok && p != "" {
		path = p
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, path, fmt.Errorf("%s: %w", path, ErrSourceMissing)
	}
	if err != nil {
		return nil, path, err
	}
	return f, path, nil
}

// RawRow is one data row keyed by lowercased column name.
// Columns absent from the header are absent from Values.
type RawRow struct {
	Line   int
	Values map[string]string
}

// Has reports whether the column exists in the source header.
func (r RawRow) Has(col string) bool {
	_, ok := r.Values[col]
	return ok
}

// Get returns the cleaned cell value, or "" when the column is absent.
func (r RawRow) Get(col string) string {
	return CleanCell(r.Values[col])
}

// Table is a parsed source: its header and non-empty data rows.
type Table struct {
	Name   string
	Header []string
	Rows   []RawRow
}

// ReadTable parses CSV from r. The first non-empty record is the header.
// Blank lines are skipped; rows shorter than the header leave the trailing
// columns empty, longer rows have their extra cells ignored.
func ReadTable(r io.Reader, name string) (*Table, error) {
	cr := csv.NewReader(newUTF8Sanitizer(newBOMSkippingReader(r)))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	t := &Table{Name: name}
	var index map[string]int

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		line, _ := cr.FieldPos(0)

		if isEmptyRow(record) {
			continue
		}

		if index == nil {
			t.Header = make([]string, len(record))
			for i, h := range record {
				t.Header[i] = strings.ToLower(CleanCell(h))
			}
			index = MakeHeaderIndex(record)
			continue
		}

		values := make(map[string]string, len(index))
		for col, pos := range index {
			if pos < len(record) {
				values[col] = record[pos]
			} else {
				values[col] = ""
			}
		}
		t.Rows = append(t.Rows, RawRow{Line: line, Values: values})
	}

	if index == nil {
		return nil, errors.New("empty file")
	}
	return t, nil
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// bomSkippingReader drops a leading UTF-8 BOM (EF BB BF).
type bomSkippingReader struct {
	r       io.Reader
	checked bool
	eof     bool
	pending []byte
}

func newBOMSkippingReader(r io.Reader) *bomSkippingReader {
	return &bomSkippingReader{r: r}
}

func (b *bomSkippingReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		var buf [3]byte
		n, err := io.ReadFull(b.r, buf[:])
		switch err {
		case nil:
		case io.EOF, io.ErrUnexpectedEOF:
			b.eof = true
		default:
			return 0, err
		}
		if n == 3 && buf[0] == 0xEF && buf[1] == 0xBB && buf[2] == 0xBF {
			n = 0
		}
		b.pending = append(b.pending, buf[:n]...)
	}

	if len(b.pending) > 0 {
		n := copy(p, b.pending)
		b.pending = b.pending[n:]
		return n, nil
	}
	if b.eof {
		return 0, io.EOF
	}
	return b.r.Read(p)
}

// utf8Sanitizer replaces invalid UTF-8 bytes with '?' while streaming,
// holding back an incomplete trailing sequence until the next read.
type utf8Sanitizer struct {
	r       io.Reader
	pending []byte // incomplete sequence from the previous read
	ready   []byte // sanitized bytes that did not fit a short p
	err     error  // error to report once ready is drained
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(s.ready) > 0 {
		n := copy(p, s.ready)
		s.ready = s.ready[n:]
		return n, nil
	}
	if s.err != nil {
		err := s.err
		s.err = nil
		return 0, err
	}

	// A short p cannot hold a held-back sequence plus the bytes that
	// complete it, so sanitize into a scratch buffer and hand it out.
	if len(p) < 2*utf8.UTFMax {
		var buf [2 * utf8.UTFMax]byte
		n, err := s.Read(buf[:])
		k := copy(p, buf[:n])
		if k < n {
			s.ready = append([]byte(nil), buf[k:n]...)
			s.err = err
			return k, nil
		}
		return k, err
	}

	offset := copy(p, s.pending)
	s.pending = s.pending[:0]

	n, err := s.r.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}

	atEOF := err == io.EOF
	write := 0
	for read := 0; read < n; {
		if p[read] < utf8.RuneSelf {
			p[write] = p[read]
			write++
			read++
			continue
		}
		if !atEOF && !utf8.FullRune(p[read:n]) {
			s.pending = append(s.pending, p[read:n]...)
			break
		}
		r, size := utf8.DecodeRune(p[read:n])
		if r == utf8.RuneError && size == 1 {
			p[write] = '?'
			write++
			read++
			continue
		}
		copy(p[write:], p[read:read+size])
		write += size
		read += size
	}

	if write == 0 && err == nil && len(s.pending) > 0 {
		// Only an incomplete sequence arrived; read again to complete it.
		return s.Read(p)
	}
	return write, err
}
