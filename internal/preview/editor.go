package preview

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/bep/debounce"

	"github.com/hyperengineering/sitecms/internal/types"
)

// DefaultDebounce is the quiet period before a draft update is sent.
const DefaultDebounce = 300 * time.Millisecond

// EditorState is the editor's view of the preview connection.
type EditorState int

const (
	Disconnected EditorState = iota
	AwaitingReady
	Ready
)

func (s EditorState) String() string {
	switch s {
	case AwaitingReady:
		return "awaiting_ready"
	case Ready:
		return "ready"
	default:
		return "disconnected"
	}
}

// Update is a draft change the editor wants reflected in the preview.
type Update struct {
	Section Section
	Data    json.RawMessage
	Intent  string
	Theme   string
}

// Editor is the admin side of the bridge. Updates are only sent while the
// preview is open and has announced itself ready; bursts are debounced so
// only the latest update in a quiet period is delivered.
type Editor struct {
	origin string
	port   Port
	logger *slog.Logger

	debounced func(func())

	mu      sync.Mutex
	state   EditorState
	intent  types.IntentKey
	pending *Message
}

// NewEditor creates an Editor running on origin that sends through port.
// A non-positive delay means DefaultDebounce.
func NewEditor(origin string, port Port, delay time.Duration, logger *slog.Logger) *Editor {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Editor{
		origin:    origin,
		port:      port,
		logger:    logger.With("component", "preview-editor"),
		debounced: debounce.New(delay),
		intent:    types.DefaultIntent,
	}
}

// Open shows the preview panel for intent and waits for PREVIEW_READY.
// Unknown intents fall back to the default intent.
func (e *Editor) Open(intent string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.intent = types.ParseIntent(intent)
	e.pending = nil
	e.state = AwaitingReady
}

// Close hides the panel. Readiness is reset and pending sends are cancelled.
func (e *Editor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = Disconnected
	e.pending = nil
}

// State returns the current connection state.
func (e *Editor) State() EditorState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// PreviewURL returns the replica page path for the current intent.
func (e *Editor) PreviewURL() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return "/admin/preview?intent=" + url.QueryEscape(string(e.intent))
}

// HandleMessage processes a message received from the replica. Messages
// from any origin other than the editor's own are discarded.
func (e *Editor) HandleMessage(env Envelope) error {
	if env.Origin != e.origin {
		e.logger.Debug("discarded preview message", "origin", env.Origin)
		return ErrForeignOrigin
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if env.Data.Type == TypeReady && e.state == AwaitingReady {
		e.state = Ready
		e.logger.Debug("preview ready", "intent", e.intent)
	}
	return nil
}

// Sync queues u for delivery. It reports false and does nothing unless the
// preview is ready and u carries data.
func (e *Editor) Sync(u Update) bool {
	if len(u.Data) == 0 || string(u.Data) == "null" {
		return false
	}
	msg := Message{Type: TypeUpdate, Section: u.Section, Data: u.Data, Intent: u.Intent, Theme: u.Theme}
	if err := msg.Validate(); err != nil {
		e.logger.Warn("invalid preview update", "error", err)
		return false
	}

	e.mu.Lock()
	if e.state != Ready {
		e.mu.Unlock()
		return false
	}
	e.pending = &msg
	e.mu.Unlock()

	e.debounced(e.flush)
	return true
}

func (e *Editor) flush() {
	e.mu.Lock()
	if e.state != Ready || e.pending == nil {
		e.mu.Unlock()
		return
	}
	msg := *e.pending
	e.pending = nil
	e.mu.Unlock()

	if err := e.port.PostMessage(msg, e.origin); err != nil {
		e.logger.Warn("preview send failed", "section", msg.Section, "error", err)
	}
}
