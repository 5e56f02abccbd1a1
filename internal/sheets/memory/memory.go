// Package memory is an in-process sheets adapter used by default and in
// tests.
package memory

import (
	"context"
	"slices"
	"sync"

	"spendlog/internal/core"
	"spendlog/internal/sheets"
)

type Store struct {
	mu      sync.Mutex
	stats   map[string]sheets.StatsSheet
	records []core.Record
	writes  int
}

var _ sheets.Exporter = (*Store)(nil)

func New() *Store {
	return &Store{stats: make(map[string]sheets.StatsSheet)}
}

// WriteStats replaces the sheet with the same title.
func (s *Store) WriteStats(_ context.Context, sheet sheets.StatsSheet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sheet.Rows = slices.Clone(sheet.Rows)
	s.stats[sheet.Title] = sheet
	s.writes++
	return nil
}

// WriteRecords replaces the exported records.
func (s *Store) WriteRecords(_ context.Context, records []core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = slices.Clone(records)
	s.writes++
	return nil
}

// Stats returns the last sheet written under title.
func (s *Store) Stats(title string) (sheets.StatsSheet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sheet, ok := s.stats[title]
	return sheet, ok
}

func (s *Store) Records() []core.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.records)
}

// Writes counts successful writes of either kind.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
