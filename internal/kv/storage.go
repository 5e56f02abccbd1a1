package kv

import (
	"context"
	"encoding/json"
	"reflect"

	"spendlog/internal/log"
)

// Storage encodes values as JSON on top of a Backend. No method returns an
// error: failures are logged and the caller carries on with whatever it had.
type Storage struct {
	backend Backend
	logger  *log.Logger
}

func NewStorage(backend Backend, logger *log.Logger) *Storage {
	if logger == nil {
		logger = log.Discard()
	}
	return &Storage{
		backend: backend,
		logger:  logger.WithComponent(log.ComponentStorage),
	}
}

// GetItem decodes the value under key into dst. It reports false when the
// key is missing or the value cannot be read; dst is left untouched then.
func (s *Storage) GetItem(ctx context.Context, key string, dst any) bool {
	data, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		s.logger.Failure(ctx, "Failed to read item", err, log.FieldKey, key)
		return false
	}
	if !ok {
		return false
	}
	target := reflect.ValueOf(dst)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		s.logger.Failure(ctx, "Failed to decode item", &json.InvalidUnmarshalError{Type: reflect.TypeOf(dst)}, log.FieldKey, key)
		return false
	}
	// json.Unmarshal can fill part of its target before failing.
	fresh := reflect.New(target.Elem().Type())
	if err := json.Unmarshal(data, fresh.Interface()); err != nil {
		s.logger.Failure(ctx, "Failed to decode item", err, log.FieldKey, key)
		return false
	}
	target.Elem().Set(fresh.Elem())
	return true
}

// SetItem stores v under key.
func (s *Storage) SetItem(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Failure(ctx, "Failed to encode item", err, log.FieldKey, key)
		return
	}
	if err := s.backend.Set(ctx, key, data); err != nil {
		s.logger.Failure(ctx, "Failed to write item", err, log.FieldKey, key)
	}
}

// RemoveItem deletes key. Missing keys are fine.
func (s *Storage) RemoveItem(ctx context.Context, key string) {
	if err := s.backend.Remove(ctx, key); err != nil {
		s.logger.Failure(ctx, "Failed to remove item", err, log.FieldKey, key)
	}
}

// Clear deletes every key.
func (s *Storage) Clear(ctx context.Context) {
	if err := s.backend.Clear(ctx); err != nil {
		s.logger.Failure(ctx, "Failed to clear storage", err)
	}
}
