// Package store holds the canonical, ordered collection of expense records.
// Every mutation is persisted through kv.Storage and then published to
// subscribers as a fresh snapshot.
package store

import (
	"context"
	"slices"
	"sync"

	"spendlog/internal/core"
	"spendlog/internal/kv"
	"spendlog/internal/live"
	"spendlog/internal/log"
)

// DefaultKey is the storage key holding the record snapshot.
const DefaultKey = "expenses"

type Option func(*Store)

// WithKey overrides the storage key.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store is safe for concurrent use. Snapshots handed to subscribers are
// shared and must be treated as read-only.
//
// Subscribers run while the store's writer lock is held and must not call
// back into Add, Update, Remove or Reload.
type Store struct {
	mu      sync.Mutex
	storage *kv.Storage
	key     string
	logger  *log.Logger
	records *live.Cell[[]core.Record]
}

var _ live.Source[[]core.Record] = (*Store)(nil)

// New loads the persisted snapshot. A missing or unreadable snapshot starts
// the store empty.
func New(ctx context.Context, storage *kv.Storage, opts ...Option) *Store {
	s := &Store{
		storage: storage,
		key:     DefaultKey,
		logger:  log.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent(log.ComponentStore)

	loaded := s.load(ctx)
	s.records = live.NewCell(loaded)
	s.logger.InfoContext(ctx, "Record store loaded", log.FieldKey, s.key, log.FieldRecords, len(loaded))
	return s
}

// Add appends r. A record whose ID is already present is rejected with a
// *core.ValidationError and the store is left unchanged.
func (s *Store) Add(ctx context.Context, r core.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.records.Get()
	if indexOf(current, r.ID) >= 0 {
		return &core.ValidationError{Field: "id", Err: core.ErrDuplicateID}
	}

	next := make([]core.Record, 0, len(current)+1)
	next = append(next, current...)
	next = append(next, r)
	s.commit(ctx, next)

	s.logger.DebugContext(ctx, "Record added", log.FieldOperation, log.OpCreate, log.FieldRecordID, r.ID)
	return nil
}

// Update replaces the record with r's ID. An unknown ID leaves the sequence
// as it was without validating r; the snapshot is persisted and published
// either way.
func (s *Store) Update(ctx context.Context, r core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := slices.Clone(s.records.Get())
	i := indexOf(next, r.ID)
	if i < 0 {
		s.logger.DebugContext(ctx, "Update for unknown record ignored", log.FieldRecordID, r.ID)
		s.commit(ctx, next)
		return nil
	}
	if err := r.Validate(); err != nil {
		return err
	}
	next[i] = r
	s.commit(ctx, next)
	return nil
}

// Remove deletes every record with id. Unknown IDs are a no-op apart from
// the persist and publish.
func (s *Store) Remove(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.records.Get()
	next := make([]core.Record, 0, len(current))
	for _, r := range current {
		if r.ID != id {
			next = append(next, r)
		}
	}
	s.commit(ctx, next)

	s.logger.DebugContext(ctx, "Record removed", log.FieldOperation, log.OpDelete, log.FieldRecordID, id)
}

// GetByID looks a record up by ID. The empty ID is never found.
func (s *Store) GetByID(id string) (core.Record, bool) {
	if id == "" {
		return core.Record{}, false
	}
	current := s.records.Get()
	if i := indexOf(current, id); i >= 0 {
		return current[i], true
	}
	return core.Record{}, false
}

// Snapshot returns a copy of the current records in insertion order.
func (s *Store) Snapshot() []core.Record {
	return slices.Clone(s.records.Get())
}

// Subscribe calls fn with the current snapshot and again after every
// mutation.
func (s *Store) Subscribe(fn func([]core.Record)) (unsubscribe func()) {
	return s.records.Subscribe(fn)
}

// Categories lists the categories a record may carry.
func (s *Store) Categories() []core.Category {
	return core.Categories()
}

// Reload replaces the in-memory records with the persisted snapshot and
// publishes it. Processes sharing a backend use it to pick up each other's
// writes.
func (s *Store) Reload(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loaded := s.load(ctx)
	s.records.Set(loaded)
	s.logger.InfoContext(ctx, "Record store reloaded", log.FieldOperation, log.OpReload, log.FieldRecords, len(loaded))
}

// commit persists next and publishes it. Caller holds mu.
func (s *Store) commit(ctx context.Context, next []core.Record) {
	s.storage.SetItem(ctx, s.key, next)
	s.records.Set(next)
}

func (s *Store) load(ctx context.Context) []core.Record {
	var loaded []core.Record
	if !s.storage.GetItem(ctx, s.key, &loaded) || loaded == nil {
		return []core.Record{}
	}
	return loaded
}

func indexOf(records []core.Record, id string) int {
	return slices.IndexFunc(records, func(r core.Record) bool { return r.ID == id })
}
