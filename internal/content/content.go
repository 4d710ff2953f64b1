// Package content reads and writes the site configuration document at
// whole-document, section and intent granularity.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hyperengineering/sitecms/internal/store"
	"github.com/hyperengineering/sitecms/internal/types"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// CacheTag is the tag invalidated after every successful write.
const CacheTag = "siteConfig"

// defaultMaxAttempts bounds read-modify-write retries on a concurrent write.
const defaultMaxAttempts = 3

var (
	ErrInvalidDocument = errors.New("site config must be a JSON object")
	ErrInvalidValue    = errors.New("value must be valid JSON")
	ErrInvalidSection  = errors.New("unknown section")
	ErrInvalidIntent   = errors.New("unknown intent")
)

// Invalidator drops cached views of the document for a tag.
type Invalidator interface {
	Invalidate(tag string)
}

// Value is one section or intent read out of the document, plus the
// document version it was read at.
type Value struct {
	Data    json.RawMessage
	Version int64
}

// Service implements the Config Store operations over a ConfigRepository.
type Service struct {
	repo        store.ConfigRepository
	invalidator Invalidator
	logger      *slog.Logger
	maxAttempts int
}

// Option configures a Service.
type Option func(*Service)

// WithInvalidator registers the cache to invalidate after writes.
func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) { s.invalidator = inv }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service backed by repo.
func NewService(repo store.ConfigRepository, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		logger:      slog.Default(),
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type writeOptions struct {
	expectedVersion *int64
}

// WriteOption configures a single write.
type WriteOption func(*writeOptions)

// WithExpectedVersion makes the write fail with store.ErrConflict unless the
// stored document is still at version v (0 means no document yet).
func WithExpectedVersion(v int64) WriteOption {
	return func(o *writeOptions) { o.expectedVersion = &v }
}

// ReadConfig returns the whole stored document, or store.ErrNotFound when unseeded.
func (s *Service) ReadConfig(ctx context.Context) (*store.Document, error) {
	doc, err := s.repo.Get(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return doc, nil
}

// Snapshot returns the current document for snapshotting. It is ReadConfig
// under the name the snapshot worker depends on.
func (s *Service) Snapshot(ctx context.Context) (*store.Document, error) {
	return s.ReadConfig(ctx)
}

// WriteConfig replaces the whole document. data must be a JSON object.
func (s *Service) WriteConfig(ctx context.Context, data json.RawMessage, opts ...WriteOption) (*store.Document, error) {
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return nil, ErrInvalidDocument
	}

	wo := applyWriteOptions(opts)
	var (
		doc *store.Document
		err error
	)
	if wo.expectedVersion != nil {
		doc, err = s.repo.CompareAndPut(ctx, data, *wo.expectedVersion)
	} else {
		doc, err = s.repo.Put(ctx, data)
	}
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("write config: %w", err)
	}

	s.invalidate()
	s.logger.Info("config written", "version", doc.Version, "bytes", len(data))
	return doc, nil
}

// ReadSection returns the raw value of section name. It returns nil, nil when
// the section is absent, null, or no document exists yet.
func (s *Service) ReadSection(ctx context.Context, name types.SectionName) (*Value, error) {
	if !name.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSection, name)
	}
	return s.readPath(ctx, string(name))
}

// WriteSection replaces one top-level section, leaving siblings untouched.
func (s *Service) WriteSection(ctx context.Context, name types.SectionName, value json.RawMessage, opts ...WriteOption) (*store.Document, error) {
	if !name.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSection, name)
	}
	if !json.Valid(value) {
		return nil, ErrInvalidValue
	}

	doc, err := s.update(ctx, func(cur []byte) ([]byte, error) {
		return sjson.SetRawBytes(cur, string(name), value)
	}, opts)
	if err != nil {
		return nil, err
	}

	s.logger.Info("section written", "section", name, "version", doc.Version)
	return doc, nil
}

// ReadIntent returns landing[key], or nil, nil when absent.
func (s *Service) ReadIntent(ctx context.Context, key types.IntentKey) (*Value, error) {
	if !key.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIntent, key)
	}
	return s.readPath(ctx, types.LandingKey+"."+string(key))
}

// WriteIntent replaces landing[key], creating landing when missing.
func (s *Service) WriteIntent(ctx context.Context, key types.IntentKey, value json.RawMessage, opts ...WriteOption) (*store.Document, error) {
	if !key.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIntent, key)
	}
	if !json.Valid(value) {
		return nil, ErrInvalidValue
	}

	doc, err := s.update(ctx, func(cur []byte) ([]byte, error) {
		if landing := gjson.GetBytes(cur, types.LandingKey); landing.Exists() && !landing.IsObject() {
			var err error
			if cur, err = sjson.SetRawBytes(cur, types.LandingKey, []byte("{}")); err != nil {
				return nil, err
			}
		}
		return sjson.SetRawBytes(cur, types.LandingKey+"."+string(key), value)
	}, opts)
	if err != nil {
		return nil, err
	}

	s.logger.Info("intent written", "intent", key, "version", doc.Version)
	return doc, nil
}

func (s *Service) readPath(ctx context.Context, path string) (*Value, error) {
	doc, err := s.repo.Get(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	r := gjson.GetBytes(doc.Data, path)
	if !r.Exists() || r.Type == gjson.Null {
		return nil, nil
	}
	return &Value{Data: json.RawMessage(r.Raw), Version: doc.Version}, nil
}

// update performs a read-modify-write of the whole document guarded by
// CompareAndPut. Without an expected version it retries on conflict.
func (s *Service) update(ctx context.Context, mutate func([]byte) ([]byte, error), opts []WriteOption) (*store.Document, error) {
	wo := applyWriteOptions(opts)

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		base := []byte("{}")
		var version int64

		cur, err := s.repo.Get(ctx)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			base = cur.Data
			version = cur.Version
		}

		if wo.expectedVersion != nil && *wo.expectedVersion != version {
			return nil, fmt.Errorf("%w: expected version %d, stored %d", store.ErrConflict, *wo.expectedVersion, version)
		}
		if !gjson.ParseBytes(base).IsObject() {
			return nil, fmt.Errorf("stored config: %w", ErrInvalidDocument)
		}

		next, err := mutate(append([]byte(nil), base...))
		if err != nil {
			return nil, fmt.Errorf("apply change: %w", err)
		}

		doc, err := s.repo.CompareAndPut(ctx, next, version)
		if err == nil {
			s.invalidate()
			return doc, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("write config: %w", err)
		}
		if wo.expectedVersion != nil {
			return nil, err
		}
		s.logger.Debug("config write raced, retrying", "attempt", attempt, "version", version)
	}

	return nil, fmt.Errorf("%w: gave up after %d attempts", store.ErrConflict, s.maxAttempts)
}

func (s *Service) invalidate() {
	if s.invalidator != nil {
		s.invalidator.Invalidate(CacheTag)
	}
}

func applyWriteOptions(opts []WriteOption) writeOptions {
	var wo writeOptions
	for _, opt := range opts {
		opt(&wo)
	}
	return wo
}
