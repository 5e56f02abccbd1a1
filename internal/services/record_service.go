package services

import (
	"context"
	"fmt"

	"spendlog/internal/amqp"
	"spendlog/internal/core"
	"spendlog/internal/log"
	"spendlog/internal/store"
)

// ChangePublisher announces record changes to other processes.
type ChangePublisher interface {
	PublishRecordChange(ctx context.Context, op, id string) error
}

// RecordService orchestrates record mutations across the store and AMQP.
// The store write is authoritative; publishing is best effort.
type RecordService struct {
	store     *store.Store
	publisher ChangePublisher
	closers   []func() error
	logger    *log.Logger
}

// NewRecordService wires the store to an optional publisher. closers run on
// Close in order, e.g. the storage backend and the AMQP client.
func NewRecordService(st *store.Store, publisher ChangePublisher, logger *log.Logger, closers ...func() error) *RecordService {
	if logger == nil {
		logger = log.Discard()
	}
	return &RecordService{
		store:     st,
		publisher: publisher,
		closers:   closers,
		logger:    logger.WithComponent(log.ComponentService),
	}
}

// Store exposes the record store for building views.
func (s *RecordService) Store() *store.Store {
	return s.store
}

// CreateRecord saves r and publishes a create message.
func (s *RecordService) CreateRecord(ctx context.Context, r core.Record) error {
	if err := s.store.Add(ctx, r); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Record created",
		log.NewFields().
			WithRecord(r.ID, string(r.Category), r.Amount.String()).
			WithOperation(log.OpCreate).
			ToSlice()...)
	s.publish(ctx, amqp.OpCreate, r.ID)
	return nil
}

// UpdateRecord replaces the record with r's ID. It reports whether such a
// record existed; an unknown ID is not an error.
func (s *RecordService) UpdateRecord(ctx context.Context, r core.Record) (bool, error) {
	_, existed := s.store.GetByID(r.ID)
	if err := s.store.Update(ctx, r); err != nil {
		return false, err
	}
	if existed {
		s.publish(ctx, amqp.OpUpdate, r.ID)
	}
	return existed, nil
}

// DeleteRecord removes id and reports whether it existed.
func (s *RecordService) DeleteRecord(ctx context.Context, id string) bool {
	_, existed := s.store.GetByID(id)
	s.store.Remove(ctx, id)
	if existed {
		s.logger.InfoContext(ctx, "Record deleted", log.FieldRecordID, id)
		s.publish(ctx, amqp.OpDelete, id)
	}
	return existed
}

func (s *RecordService) GetRecord(id string) (core.Record, bool) {
	return s.store.GetByID(id)
}

func (s *RecordService) ListRecords() []core.Record {
	return s.store.Snapshot()
}

func (s *RecordService) Categories() []core.Category {
	return s.store.Categories()
}

func (s *RecordService) publish(ctx context.Context, op, id string) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP client not available, skipping change message", log.FieldRecordID, id)
		return
	}
	if err := s.publisher.PublishRecordChange(ctx, op, id); err != nil {
		// The record is saved locally; consumers catch up on the next change.
		s.logger.ErrorContext(ctx, "Failed to publish change message",
			log.FieldOperation, log.OpPublish,
			log.FieldChange, op,
			log.FieldRecordID, id,
			log.FieldError, err)
	}
}

// Close releases everything passed to NewRecordService.
func (s *RecordService) Close() error {
	var errs []error
	for _, c := range s.closers {
		if c == nil {
			continue
		}
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close record service: %v", errs)
	}
	return nil
}
