// Package snapshot keeps a last-known-good copy of the site configuration on
// disk, optionally mirrored to S3-compatible storage. The public read path
// falls back to it when the config store is unreachable.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/tidwall/gjson"

	"github.com/hyperengineering/sitecms/internal/store"
)

// ErrEmpty is returned when there is no document to snapshot yet.
var ErrEmpty = errors.New("no site config to snapshot")

// File is the on-disk snapshot envelope.
type File struct {
	ID        string          `json:"id"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
	CreatedAt time.Time       `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

// Source provides the document to snapshot.
type Source interface {
	Snapshot(ctx context.Context) (*store.Document, error)
}

// Writer writes snapshots of Source to path and uploads them.
type Writer struct {
	src      Source
	path     string
	uploader Uploader
	now      func() time.Time
}

// NewWriter creates a Writer. A nil uploader keeps snapshots local.
func NewWriter(src Source, path string, uploader Uploader) *Writer {
	if uploader == nil {
		uploader = &NoopUploader{}
	}
	return &Writer{src: src, path: path, uploader: uploader, now: time.Now}
}

// Path returns the local snapshot file path.
func (w *Writer) Path() string {
	return w.path
}

// Write snapshots the current document. The file is replaced atomically.
func (w *Writer) Write(ctx context.Context) (*File, error) {
	doc, err := w.src.Snapshot(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	f := &File{
		ID:        ulid.Make().String(),
		Version:   doc.Version,
		UpdatedAt: doc.UpdatedAt,
		CreatedAt: w.now().UTC(),
		Data:      doc.Data,
	}
	if err := writeAtomic(w.path, f); err != nil {
		return nil, err
	}

	if err := w.uploader.Upload(ctx, CurrentKey, w.path); err != nil {
		return f, err
	}
	if err := w.uploader.Upload(ctx, HistoryKey(f.ID), w.path); err != nil {
		return f, err
	}

	slog.Info("snapshot written",
		"component", "snapshot",
		"snapshot_id", f.ID,
		"version", f.Version,
		"path", w.path,
	)
	return f, nil
}

func writeAtomic(path string, f *File) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := json.NewEncoder(tmp).Encode(f); err != nil {
		tmp.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Load reads a snapshot written by Writer.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	if !gjson.ParseBytes(f.Data).IsObject() {
		return nil, fmt.Errorf("parse snapshot: data is not a JSON object")
	}
	return &f, nil
}
