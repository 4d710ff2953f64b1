package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hyperengineering/sitecms/internal/preview"
)

// heartbeatInterval keeps idle preview streams open through proxies.
const heartbeatInterval = 25 * time.Second

// PreviewStream handles GET /api/admin/preview/stream?role=editor|replica.
// Each relayed message is one "preview" SSE event.
func (h *Handler) PreviewStream(w http.ResponseWriter, r *http.Request) {
	roleParam := r.URL.Query().Get("role")
	if roleParam == "" {
		roleParam = string(preview.RoleReplica)
	}
	role, ok := preview.ParseRole(roleParam)
	if !ok {
		WriteProblem(w, r, http.StatusBadRequest, KeyInvalidMessage, "role must be editor or replica")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteProblem(w, r, http.StatusInternalServerError, KeyInternal, "Streaming unsupported")
		return
	}

	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	ctx := r.Context()
	msgs, subID := h.hub.Subscribe(ctx, role)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	writeSSEEvent(w, "subscribed", map[string]string{"role": string(role), "sub_id": subID})
	flusher.Flush()

	slog.Debug("preview stream opened",
		"component", "api",
		"role", role,
		"sub_id", subID,
	)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			writeSSEEvent(w, "preview", msg)
			flusher.Flush()
		}
	}
}

// PostPreviewMessage handles POST /api/admin/preview/messages. The Origin
// header must match the site origin when present.
func (h *Handler) PostPreviewMessage(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if !h.hub.CheckOrigin(origin) {
		slog.Warn("preview message from foreign origin", "origin", origin, "remote_ip", r.RemoteAddr)
		WriteProblem(w, r, http.StatusForbidden, KeyForbiddenOrigin, "Origin not allowed")
		return
	}

	var msg preview.Message
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&msg); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, KeyInvalidJSON, "Request body must be a preview message")
		return
	}

	delivered, err := h.hub.Deliver(preview.Envelope{Origin: origin, Data: msg})
	if err != nil {
		if errors.Is(err, preview.ErrForeignOrigin) {
			WriteProblem(w, r, http.StatusForbidden, KeyForbiddenOrigin, "Origin not allowed")
			return
		}
		WriteProblem(w, r, http.StatusBadRequest, KeyInvalidMessage, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]int{"delivered": delivered})
}

// writeSSEEvent writes a single SSE event to the response writer.
func writeSSEEvent(w http.ResponseWriter, event string, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		slog.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}
