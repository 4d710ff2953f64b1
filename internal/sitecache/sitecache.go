// Package sitecache serves the resolved site configuration to the public
// renderer. Reads are cached for a TTL, deduplicated while filling and
// degrade to the last snapshot or the embedded defaults when the store is
// unreachable.
package sitecache

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/sync/singleflight"

	"github.com/hyperengineering/sitecms/internal/content"
	"github.com/hyperengineering/sitecms/internal/snapshot"
	"github.com/hyperengineering/sitecms/internal/store"
	"github.com/hyperengineering/sitecms/internal/types"
)

//go:embed default_site_config.json
var defaultSiteConfig []byte

// DefaultTTL matches the public page revalidation window.
const DefaultTTL = 60 * time.Second

// DefaultFillTimeout bounds a single store read made to fill the cache.
const DefaultFillTimeout = 10 * time.Second

const yearPlaceholder = "{{YEAR}}"

// Source reports where a resolved config came from.
type Source string

const (
	SourceStore    Source = "store"
	SourceSnapshot Source = "snapshot"
	SourceEmbedded Source = "embedded"
)

// Resolved is the public view of the site configuration.
type Resolved struct {
	Config    json.RawMessage `json:"config"`
	Source    Source          `json:"source"`
	Version   int64           `json:"version,omitempty"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// DocumentReader reads the stored document.
type DocumentReader interface {
	ReadConfig(ctx context.Context) (*store.Document, error)
}

// Reader caches the resolved site config. It implements content.Invalidator.
type Reader struct {
	src          DocumentReader
	snapshotPath string
	ttl          time.Duration
	fillTimeout  time.Duration
	now          func() time.Time
	logger       *slog.Logger

	group singleflight.Group

	mu      sync.RWMutex
	cached  *Resolved
	expires time.Time
	gen     uint64
}

var _ content.Invalidator = (*Reader)(nil)

// NewReader creates a Reader. An empty snapshotPath skips the snapshot fallback.
func NewReader(src DocumentReader, snapshotPath string, ttl time.Duration, logger *slog.Logger) *Reader {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		src:          src,
		snapshotPath: snapshotPath,
		ttl:          ttl,
		fillTimeout:  DefaultFillTimeout,
		now:          time.Now,
		logger:       logger.With("component", "sitecache"),
	}
}

// SetSource replaces the document reader. It is used when the service is
// constructed after the Reader it invalidates.
func (r *Reader) SetSource(src DocumentReader) {
	r.mu.Lock()
	r.src = src
	r.mu.Unlock()
}

// Get returns the cached resolved config, filling it when stale. The fill is
// shared by concurrent callers and is not cancelled when ctx is; a caller
// whose ctx ends first gets ctx.Err().
func (r *Reader) Get(ctx context.Context) (*Resolved, error) {
	r.mu.RLock()
	if r.cached != nil && r.now().Before(r.expires) {
		res := r.cached
		r.mu.RUnlock()
		return res, nil
	}
	r.mu.RUnlock()

	ch := r.group.DoChan(content.CacheTag, func() (interface{}, error) {
		return r.fill(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Resolved), nil
	}
}

// Invalidate drops the cached view when tag is the site config tag.
func (r *Reader) Invalidate(tag string) {
	if tag != content.CacheTag {
		return
	}
	r.mu.Lock()
	r.cached = nil
	r.gen++
	r.mu.Unlock()
	r.logger.Debug("cache invalidated", "tag", tag)
}

func (r *Reader) fill(ctx context.Context) (*Resolved, error) {
	r.mu.RLock()
	gen := r.gen
	src := r.src
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, r.fillTimeout)
	defer cancel()

	res, err := r.load(ctx, src)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	// A write landed while loading, or the store read ran out of time and
	// the result is a fallback; serve it but don't keep it.
	if gen == r.gen && (res.Source == SourceStore || ctx.Err() == nil) {
		r.cached = res
		r.expires = r.now().Add(r.ttl)
	}
	r.mu.Unlock()
	return res, nil
}

func (r *Reader) load(ctx context.Context, src DocumentReader) (*Resolved, error) {
	year := r.now().Year()

	if src != nil {
		doc, err := src.ReadConfig(ctx)
		if err == nil {
			cfg, rerr := Resolve(doc.Data, year)
			if rerr == nil {
				return &Resolved{Config: cfg, Source: SourceStore, Version: doc.Version, FetchedAt: r.now()}, nil
			}
			err = rerr
		}
		r.logger.Warn("config store unavailable, falling back", "error", err)
	}

	if r.snapshotPath != "" {
		f, err := snapshot.Load(r.snapshotPath)
		if err == nil {
			cfg, rerr := Resolve(f.Data, year)
			if rerr == nil {
				return &Resolved{Config: cfg, Source: SourceSnapshot, Version: f.Version, FetchedAt: r.now()}, nil
			}
			err = rerr
		}
		r.logger.Warn("snapshot unavailable, falling back to embedded defaults", "error", err, "path", r.snapshotPath)
	}

	cfg, err := Resolve(defaultSiteConfig, year)
	if err != nil {
		return nil, fmt.Errorf("resolve embedded config: %w", err)
	}
	return &Resolved{Config: cfg, Source: SourceEmbedded, FetchedAt: r.now()}, nil
}

// DefaultConfig returns a copy of the embedded default site configuration.
func DefaultConfig() json.RawMessage {
	return append(json.RawMessage(nil), defaultSiteConfig...)
}

// Resolve applies the derived fields the public renderer expects:
// landing.speed and landing.skill get usp = problem when usp is unset, and
// the first {{YEAR}} in common.copyright becomes year.
func Resolve(data []byte, year int) (json.RawMessage, error) {
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return nil, fmt.Errorf("site config is not a JSON object")
	}
	out := append([]byte(nil), data...)

	var err error
	for _, key := range []types.IntentKey{types.IntentSpeed, types.IntentSkill} {
		base := types.LandingKey + "." + string(key)
		problem := gjson.GetBytes(out, base+".problem")
		usp := gjson.GetBytes(out, base+".usp")
		if problem.Exists() && problem.Type != gjson.Null && (!usp.Exists() || usp.Type == gjson.Null) {
			if out, err = sjson.SetRawBytes(out, base+".usp", []byte(problem.Raw)); err != nil {
				return nil, fmt.Errorf("set %s.usp: %w", base, err)
			}
		}
	}

	copyright := gjson.GetBytes(out, "common.copyright")
	if copyright.Type == gjson.String && strings.Contains(copyright.String(), yearPlaceholder) {
		replaced := strings.Replace(copyright.String(), yearPlaceholder, strconv.Itoa(year), 1)
		if out, err = sjson.SetBytes(out, "common.copyright", replaced); err != nil {
			return nil, fmt.Errorf("set copyright: %w", err)
		}
	}

	return out, nil
}
