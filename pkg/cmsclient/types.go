package cmsclient

import (
	"encoding/json"
	"net/http"
	"time"
)

// Config holds the CMS client configuration
type Config struct {
	BaseURL    string        // CMS server URL, e.g. http://localhost:8080
	Password   string        // Admin password used by Login
	Origin     string        // Origin header sent with preview messages (default: BaseURL)
	Timeout    time.Duration // Per-request timeout (default: 30 seconds)
	MaxRetries uint64        // Retries for idempotent reads (default: 3)
	HTTPClient *http.Client  // Optional; its Jar is replaced by the client's own
}

// Value is a raw JSON value read from the CMS along with the document
// version it was read at.
type Value struct {
	Data    json.RawMessage
	Version int64
}

// HealthStatus is the body of GET /api/health.
type HealthStatus struct {
	Status             string `json:"status"`
	Version            string `json:"version"`
	Store              string `json:"store"`
	PreviewSubscribers int    `json:"preview_subscribers"`
}

// SiteConfig is the resolved public site config.
type SiteConfig struct {
	Config    json.RawMessage `json:"config"`
	Source    string          `json:"source"`
	Version   int64           `json:"version"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Preview message types.
const (
	PreviewUpdate    = "PREVIEW_UPDATE"
	PreviewScrollTo  = "PREVIEW_SCROLL_TO"
	PreviewHighlight = "PREVIEW_HIGHLIGHT"
	PreviewReady     = "PREVIEW_READY"
)

// PreviewMessage is a live preview message relayed by the server.
type PreviewMessage struct {
	Type    string          `json:"type"`
	Section string          `json:"section,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Intent  string          `json:"intent,omitempty"`
	Theme   string          `json:"theme,omitempty"`
}

// Preview stream roles.
const (
	RoleEditor  = "editor"
	RoleReplica = "replica"
)

type savedResponse struct {
	Success bool  `json:"success"`
	Version int64 `json:"version"`
}

type verifyResponse struct {
	Authenticated bool `json:"authenticated"`
}
