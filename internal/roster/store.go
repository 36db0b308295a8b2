package roster

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrDuplicateIndex is returned when a record's index is already stored.
	ErrDuplicateIndex = errors.New("duplicate record index")

	// ErrUnknownIndex is returned when replacing a record that is not stored.
	ErrUnknownIndex = errors.New("no record with that index")
)

// Store is the ordered, index-keyed collection of records for one roster.
//
// Its column set is the fixed columns followed by every extra column in the
// order it was first seen, whether through a record's extras or AddColumn.
// A column, once seen, stays for the lifetime of the store, so an extra
// introduced by one record becomes an empty cell for every other record on
// export. Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records []Record
	byIndex map[int]int
	extras  []string
	known   map[string]bool
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		byIndex: make(map[int]int),
		known:   make(map[string]bool),
	}
}

// Append adds rec at the end.
//
// Parameters:
//   - rec: The record to store. It is cloned, so later changes to the
//     caller's Extras do not reach the store. Any new extra column is added
//     to the column set.
//
// Returns:
//   - error: Non-nil if the record was not stored.
//
// # Errors
//
// A record whose index is already present is rejected with
// ErrDuplicateIndex. A record with an extra named after a fixed column is
// rejected with ErrFixedColumn. In both cases the store is left unchanged.
func (s *Store) Append(rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	rec = rec.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.byIndex[rec.Index]; dup {
		return fmt.Errorf("%w: %d", ErrDuplicateIndex, rec.Index)
	}
	s.byIndex[rec.Index] = len(s.records)
	s.records = append(s.records, rec)
	s.discover(rec.Extras.Keys())
	return nil
}

// Replace swaps the stored record that has rec's index for rec.
func (s *Store) Replace(rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	rec = rec.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.byIndex[rec.Index]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownIndex, rec.Index)
	}
	s.records[pos] = rec
	s.discover(rec.Extras.Keys())
	return nil
}

// AddColumn declares an extra column shown for every record. Adding a
// column that already exists is a no-op.
func (s *Store) AddColumn(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("column name is empty")
	}
	if IsFixedColumn(name) {
		return fmt.Errorf("%w: %q", ErrFixedColumn, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.discover([]string{name})
	return nil
}

// discover records new extra columns. Callers hold s.mu.
func (s *Store) discover(keys []string) {
	for _, k := range keys {
		if !s.known[k] {
			s.known[k] = true
			s.extras = append(s.extras, k)
		}
	}
}

// Columns returns FixedColumns followed by the extra columns.
func (s *Store) Columns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.columnsLocked()
}

func (s *Store) columnsLocked() []string {
	cols := make([]string, 0, len(FixedColumns)+len(s.extras))
	cols = append(cols, FixedColumns[:]...)
	return append(cols, s.extras...)
}

// Rows renders every record over Columns. Missing extras are "".
func (s *Store) Rows() [][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cols := s.columnsLocked()
	rows := make([][]string, 0, len(s.records))
	for _, rec := range s.records {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i], _ = rec.Field(c)
		}
		rows = append(rows, row)
	}
	return rows
}

// Records returns copies of the stored records in order.
func (s *Store) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, len(s.records))
	for i, rec := range s.records {
		out[i] = rec.Clone()
	}
	return out
}

// Get returns a copy of the record with the given index.
func (s *Store) Get(index int) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.byIndex[index]
	if !ok {
		return Record{}, false
	}
	return s.records[pos].Clone(), true
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// NextIndex returns one past the largest stored index, or 1 when empty.
func (s *Store) NextIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	next := 1
	for idx := range s.byIndex {
		if idx >= next {
			next = idx + 1
		}
	}
	return next
}

// Reset empties the store, including its column set.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.byIndex = make(map[int]int)
	s.extras = nil
	s.known = make(map[string]bool)
}
