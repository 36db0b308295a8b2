package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// WriteCSV exports the store: a header of Columns, then one row per record.
func (s *Store) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(s.Columns()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := cw.WriteAll(s.Rows()); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return nil
}

// ReadCSV parses an exported roster. Fixed columns fill the record fields;
// every other header becomes an extra, in header order. Every extra column
// is kept on every record, empty cells and cells missing from short rows
// included, so an extra whose value is "" survives a round trip.
//
// A leading UTF-8 or UTF-16 byte order mark is honoured and stripped. The
// index cell must be an integer or empty (0).
func ReadCSV(r io.Reader) (*Table, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	table := &Table{}
	for _, h := range header {
		if !IsFixedColumn(h) {
			table.Extras = append(table.Extras, h)
		}
	}

	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", line, err)
		}

		rec := Record{Extras: NewExtras()}
		for i, h := range header {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			if err := rec.SetField(h, value); err != nil {
				return nil, fmt.Errorf("row %d: %w", line, err)
			}
		}
		table.Records = append(table.Records, rec)
	}
	return table, nil
}

// Table is the content of an imported CSV file.
type Table struct {
	// Extras lists the non-fixed header columns in file order.
	Extras  []string
	Records []Record
}

// Load appends every record of t to the store and declares its extra
// columns, header order first, and returns how many records were added.
//
// Load is all or nothing: every record is validated and every index checked
// against the store and the rest of t before anything changes. On error the
// store is left exactly as it was and 0 is returned.
//
// # Errors
//
//   - ErrDuplicateIndex: an index is already stored or appears twice in t.
//   - ErrFixedColumn: a fixed field name is listed in t.Extras.
//   - Record validation errors, wrapped with the record's position.
func (s *Store) Load(t *Table) (int, error) {
	for _, c := range t.Extras {
		if strings.TrimSpace(c) == "" {
			return 0, errors.New("column name is empty")
		}
		if IsFixedColumn(c) {
			return 0, fmt.Errorf("%w: %q", ErrFixedColumn, c)
		}
	}
	recs := make([]Record, len(t.Records))
	for i, rec := range t.Records {
		if err := rec.Validate(); err != nil {
			return 0, fmt.Errorf("record %d: %w", i+1, err)
		}
		recs[i] = rec.Clone()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int]bool, len(recs))
	for _, rec := range recs {
		if _, dup := s.byIndex[rec.Index]; dup || seen[rec.Index] {
			return 0, fmt.Errorf("%w: %d", ErrDuplicateIndex, rec.Index)
		}
		seen[rec.Index] = true
	}

	for _, c := range t.Extras {
		s.discover([]string{strings.TrimSpace(c)})
	}
	for _, rec := range recs {
		s.byIndex[rec.Index] = len(s.records)
		s.records = append(s.records, rec)
		s.discover(rec.Extras.Keys())
	}
	return len(recs), nil
}

// SaveFile writes the store to path as CSV, replacing any existing file.
func (s *Store) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := s.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// OpenFile reads a CSV roster from path into a new store.
func OpenFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	table, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	s := NewStore()
	if _, err := s.Load(table); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return s, nil
}
