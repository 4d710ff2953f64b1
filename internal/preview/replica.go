package preview

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hyperengineering/sitecms/internal/types"
)

const (
	// DefaultHighlight is how long an updated section stays highlighted.
	DefaultHighlight = 2 * time.Second
	// DefaultTheme is used when the intent has no theme.
	DefaultTheme = "#FECE48"
)

// ReplicaState is what the preview page renders from. Hero and USP are raw
// content objects; everything else on the page comes from the stored config.
type ReplicaState struct {
	Intent      types.IntentKey
	Hero        json.RawMessage
	USP         json.RawMessage
	Theme       string
	DesignStyle string
	Highlighted string
}

// Replica is the preview side of the bridge.
type Replica struct {
	origin    string
	parent    Port
	highlight time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	state   ReplicaState
	mounted bool
	timer   *time.Timer
	gen     uint64
}

// NewReplica creates a Replica for intent, seeded from the site config.
// Unknown intents fall back to the default intent.
func NewReplica(origin string, parent Port, intent string, siteConfig json.RawMessage, highlight time.Duration, logger *slog.Logger) *Replica {
	if highlight <= 0 {
		highlight = DefaultHighlight
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Replica{
		origin:    origin,
		parent:    parent,
		highlight: highlight,
		logger:    logger.With("component", "preview-replica"),
		state:     initialState(types.ParseIntent(intent), siteConfig),
	}
}

func initialState(intent types.IntentKey, cfg json.RawMessage) ReplicaState {
	base := types.LandingKey + "." + string(intent)
	fallback := types.LandingKey + "." + string(types.DefaultIntent)

	pick := func(field string) json.RawMessage {
		if r := gjson.GetBytes(cfg, base+"."+field); truthy(r) {
			return json.RawMessage(r.Raw)
		}
		if r := gjson.GetBytes(cfg, fallback+"."+field); truthy(r) {
			return json.RawMessage(r.Raw)
		}
		return nil
	}

	theme := gjson.GetBytes(cfg, base+".theme").String()
	if theme == "" {
		theme = DefaultTheme
	}

	return ReplicaState{
		Intent:      intent,
		Hero:        pick("hero"),
		USP:         pick("problem"),
		Theme:       theme,
		DesignStyle: gjson.GetBytes(cfg, base+".designStyle").String(),
	}
}

// Mount announces readiness to the editor. Only the first call posts.
func (r *Replica) Mount() error {
	r.mu.Lock()
	if r.mounted {
		r.mu.Unlock()
		return nil
	}
	r.mounted = true
	r.mu.Unlock()

	return r.parent.PostMessage(Message{Type: TypeReady}, r.origin)
}

// HandleMessage applies a message from the editor. Messages from any other
// origin are discarded.
func (r *Replica) HandleMessage(env Envelope) error {
	if env.Origin != r.origin {
		r.logger.Debug("discarded preview message", "origin", env.Origin)
		return ErrForeignOrigin
	}

	msg := env.Data
	switch msg.Type {
	case TypeUpdate:
		if msg.Section == "" {
			return nil
		}
		r.mu.Lock()
		r.applyOverrides(msg)
		r.mu.Unlock()
	case TypeScrollTo, TypeHighlight:
	default:
		return nil
	}

	if id, ok := ScrollTarget(msg.Section); ok {
		r.highlightSection(id)
	}
	return nil
}

// applyOverrides must be called with r.mu held.
func (r *Replica) applyOverrides(msg Message) {
	theme := gjson.GetBytes(msg.Data, "theme")

	switch msg.Section {
	case SectionIntentHero:
		if hero := gjson.GetBytes(msg.Data, "hero"); truthy(hero) {
			r.state.Hero = json.RawMessage(hero.Raw)
		}
		r.applyTheme(theme, msg.Theme)
		if ds := gjson.GetBytes(msg.Data, "designStyle"); truthy(ds) {
			r.state.DesignStyle = ds.String()
		}
	case SectionIntentProblem:
		if problem := gjson.GetBytes(msg.Data, "problem"); truthy(problem) {
			r.state.USP = json.RawMessage(problem.Raw)
		}
	case SectionIntentTheme:
		r.applyTheme(theme, msg.Theme)
	}
}

func (r *Replica) applyTheme(fromData gjson.Result, fromMessage string) {
	switch {
	case truthy(fromData):
		r.state.Theme = fromData.String()
	case fromMessage != "":
		r.state.Theme = fromMessage
	}
}

// highlightSection marks id highlighted and clears it after the highlight
// duration. A newer highlight replaces and restarts an older one.
func (r *Replica) highlightSection(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timer != nil {
		r.timer.Stop()
	}
	r.gen++
	gen := r.gen
	r.state.Highlighted = id

	r.timer = time.AfterFunc(r.highlight, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.gen == gen {
			r.state.Highlighted = ""
		}
	})
}

// State returns a snapshot of what the page should render.
func (r *Replica) State() ReplicaState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// truthy reports whether r would count as set on the page: present, not
// null or false, and not an empty string or zero.
func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.String:
		return r.Str != ""
	case gjson.Number:
		return r.Num != 0
	default:
		return true
	}
}
