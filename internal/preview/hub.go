package preview

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// Role identifies which side of the bridge a subscriber is.
type Role string

const (
	RoleEditor  Role = "editor"
	RoleReplica Role = "replica"
)

// ParseRole returns the role named by s.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleEditor, RoleReplica:
		return Role(s), true
	}
	return "", false
}

// Hub relays preview messages between editor and replica subscribers on a
// single origin. PREVIEW_READY goes to editors; everything else goes to
// replicas. Slow subscribers drop messages rather than block the sender.
type Hub struct {
	origin string
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[Role]map[string]chan Message
	closed      bool
}

// NewHub creates a hub accepting messages from origin. Pass nil logger for
// default.
func NewHub(origin string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		origin:      strings.TrimRight(origin, "/"),
		logger:      logger.With("component", "preview-hub"),
		subscribers: make(map[Role]map[string]chan Message),
	}
}

// Origin returns the origin the hub accepts messages from.
func (h *Hub) Origin() string {
	return h.origin
}

// CheckOrigin reports whether origin may post to the hub. An empty origin
// is a same-origin request from a client that omitted the header.
func (h *Hub) CheckOrigin(origin string) bool {
	return origin == "" || strings.TrimRight(origin, "/") == h.origin
}

// Subscribe registers a subscriber for role. The subscription is removed
// when ctx is cancelled.
func (h *Hub) Subscribe(ctx context.Context, role Role) (<-chan Message, string) {
	subID := uuid.New().String()
	ch := make(chan Message, subscriberBufferSize)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := h.subscribers[role]; !ok {
		h.subscribers[role] = make(map[string]chan Message)
	}
	h.subscribers[role][subID] = ch
	h.mu.Unlock()

	h.logger.Debug("subscriber added", "role", role, "sub_id", subID)

	go func() {
		<-ctx.Done()
		h.Unsubscribe(role, subID)
	}()

	return ch, subID
}

// Deliver validates env and routes it to the subscribers of the other side.
// It returns the number of subscribers that received the message.
func (h *Hub) Deliver(env Envelope) (int, error) {
	if !h.CheckOrigin(env.Origin) {
		return 0, fmt.Errorf("%w: %s", ErrForeignOrigin, env.Origin)
	}
	if err := env.Data.Validate(); err != nil {
		return 0, err
	}

	role := RoleReplica
	if env.Data.Type == TypeReady {
		role = RoleEditor
	}
	return h.publish(role, env.Data), nil
}

// publish holds the read lock across the non-blocking sends so a concurrent
// Unsubscribe cannot close a channel mid-send.
func (h *Hub) publish(role Role, msg Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for id, ch := range h.subscribers[role] {
		select {
		case ch <- msg:
			sent++
		default:
			h.logger.Debug("dropped message for slow subscriber",
				"role", role,
				"sub_id", id,
				"type", msg.Type)
		}
	}
	return sent
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(role Role, subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscribers[role]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}
	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(h.subscribers, role)
	}

	h.logger.Debug("subscriber removed", "role", role, "sub_id", subID)
}

// Subscribers returns the number of subscribers for role.
func (h *Hub) Subscribers(role Role) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[role])
}

// Close closes every subscriber channel. Later subscriptions are closed
// immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for role, subs := range h.subscribers {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(h.subscribers, role)
	}
	h.closed = true
	h.logger.Debug("hub closed")
}

// Port returns a Port that delivers through the hub from the hub's own origin.
func (h *Hub) Port() Port {
	return PortFunc(func(msg Message, targetOrigin string) error {
		if !h.CheckOrigin(targetOrigin) {
			return fmt.Errorf("%w: %s", ErrForeignOrigin, targetOrigin)
		}
		_, err := h.Deliver(Envelope{Origin: h.origin, Data: msg})
		return err
	})
}
