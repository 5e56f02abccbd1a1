// Package kv is the persistence boundary: a string-keyed store of opaque
// values with interchangeable backends, and Storage, which layers JSON
// encoding on top and absorbs every backend failure.
package kv

import (
	"context"
	"errors"
)

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("kv: backend closed")

// Backend is a key-value store. Get reports ok=false for a missing key.
type Backend interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}
