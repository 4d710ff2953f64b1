package store

import (
	"context"
	"encoding/json"
	"time"
)

// Document is the single stored site configuration row.
type Document struct {
	Data      json.RawMessage
	Version   int64
	UpdatedAt time.Time
}

// ConfigRepository persists exactly one site configuration document.
// Version starts at 1 on first write and increases by one on every write.
type ConfigRepository interface {
	// Get returns the stored document, or ErrNotFound when none exists yet.
	Get(ctx context.Context) (*Document, error)
	// Put inserts or replaces the document. Last writer wins.
	Put(ctx context.Context, data json.RawMessage) (*Document, error)
	// CompareAndPut writes only if the stored version equals expectedVersion.
	// An expectedVersion of 0 means "no document yet". Returns ErrConflict
	// when the stored version differs.
	CompareAndPut(ctx context.Context, data json.RawMessage, expectedVersion int64) (*Document, error)
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}
