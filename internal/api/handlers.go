package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hyperengineering/sitecms/internal/content"
	"github.com/hyperengineering/sitecms/internal/preview"
	"github.com/hyperengineering/sitecms/internal/session"
	"github.com/hyperengineering/sitecms/internal/sitecache"
	"github.com/hyperengineering/sitecms/internal/types"
	"github.com/hyperengineering/sitecms/internal/validation"
)

// maxBodyBytes caps request bodies. The whole site config is well under this.
const maxBodyBytes = 1 << 20

// SiteReader serves the resolved public site config.
type SiteReader interface {
	Get(ctx context.Context) (*sitecache.Resolved, error)
}

// Pinger reports storage reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler implements the API handlers
type Handler struct {
	content *content.Service
	guard   *session.Guard
	site    SiteReader
	hub     *preview.Hub
	pinger  Pinger
	version string
}

// NewHandler creates a new Handler.
func NewHandler(svc *content.Service, guard *session.Guard, site SiteReader, hub *preview.Hub, pinger Pinger, version string) *Handler {
	return &Handler{
		content: svc,
		guard:   guard,
		site:    site,
		hub:     hub,
		pinger:  pinger,
		version: version,
	}
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status             string `json:"status"`
	Version            string `json:"version"`
	Store              string `json:"store"`
	PreviewSubscribers int    `json:"preview_subscribers"`
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "healthy",
		Version: h.version,
		Store:   "ok",
	}
	if h.hub != nil {
		resp.PreviewSubscribers = h.hub.Subscribers(preview.RoleEditor) + h.hub.Subscribers(preview.RoleReplica)
	}

	status := http.StatusOK
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.pinger.Ping(ctx); err != nil {
			slog.Warn("health check: store unreachable", "error", err)
			resp.Status = "degraded"
			resp.Store = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, resp)
}

// Login handles POST /api/admin/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, KeyInvalidJSON, "Request body must be a JSON object with a password")
		return
	}

	if !h.guard.VerifyPassword(req.Password) {
		slog.Warn("login failure", "remote_ip", r.RemoteAddr)
		WriteProblem(w, r, http.StatusUnauthorized, KeyInvalidCredentials, "Invalid password")
		return
	}

	token, err := h.guard.CreateToken()
	if err != nil {
		slog.Error("session token creation failed", "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, KeyInternal, "Internal Server Error")
		return
	}

	h.guard.SetCookie(w, token)
	slog.Info("admin login", "remote_ip", r.RemoteAddr)
	writeJSON(w, http.StatusOK, types.SuccessResponse{Success: true})
}

// Logout handles POST /api/admin/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.guard.ClearCookie(w)
	writeJSON(w, http.StatusOK, types.SuccessResponse{Success: true})
}

// Verify handles GET /api/admin/auth/verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	if !h.guard.IsAuthenticated(r) {
		writeJSON(w, http.StatusUnauthorized, types.VerifyResponse{Authenticated: false})
		return
	}
	writeJSON(w, http.StatusOK, types.VerifyResponse{Authenticated: true})
}

// GetConfig handles GET /api/admin/config
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	doc, err := h.content.ReadConfig(r.Context())
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeRaw(w, doc.Version, doc.Data)
}

// PutConfig handles PUT /api/admin/config
func (h *Handler) PutConfig(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSONBody(w, r)
	if !ok {
		return
	}
	if errs := validation.ValidateDocument(body); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Site config contains invalid fields", errs)
		return
	}
	opts, ok := writeOptions(w, r)
	if !ok {
		return
	}

	doc, err := h.content.WriteConfig(r.Context(), body, opts...)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeSaved(w, doc.Version)
}

// GetSection handles GET /api/admin/config/{section}
func (h *Handler) GetSection(w http.ResponseWriter, r *http.Request) {
	name := MustSectionFromContext(r.Context())

	v, err := h.content.ReadSection(r.Context(), name)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	if v == nil {
		WriteProblem(w, r, http.StatusNotFound, KeyNotFound, fmt.Sprintf("Section %s has no content", name))
		return
	}
	writeRaw(w, v.Version, v.Data)
}

// PutSection handles PUT /api/admin/config/{section}
func (h *Handler) PutSection(w http.ResponseWriter, r *http.Request) {
	name := MustSectionFromContext(r.Context())

	body, ok := readJSONBody(w, r)
	if !ok {
		return
	}
	if errs := validation.ValidateSection(name, body); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Section contains invalid fields", errs)
		return
	}
	opts, ok := writeOptions(w, r)
	if !ok {
		return
	}

	doc, err := h.content.WriteSection(r.Context(), name, body, opts...)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeSaved(w, doc.Version)
}

// GetIntent handles GET /api/admin/config/intents/{intent}
func (h *Handler) GetIntent(w http.ResponseWriter, r *http.Request) {
	key := MustIntentFromContext(r.Context())

	v, err := h.content.ReadIntent(r.Context(), key)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	if v == nil {
		WriteProblem(w, r, http.StatusNotFound, KeyNotFound, fmt.Sprintf("Intent %s has no content", key))
		return
	}
	writeRaw(w, v.Version, v.Data)
}

// PutIntent handles PUT /api/admin/config/intents/{intent}
func (h *Handler) PutIntent(w http.ResponseWriter, r *http.Request) {
	key := MustIntentFromContext(r.Context())

	body, ok := readJSONBody(w, r)
	if !ok {
		return
	}
	if errs := validation.ValidateIntent(key, body); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Intent content contains invalid fields", errs)
		return
	}
	opts, ok := writeOptions(w, r)
	if !ok {
		return
	}

	doc, err := h.content.WriteIntent(r.Context(), key, body, opts...)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeSaved(w, doc.Version)
}

// SiteConfig handles GET /api/site/config
func (h *Handler) SiteConfig(w http.ResponseWriter, r *http.Request) {
	res, err := h.site.Get(r.Context())
	if err != nil {
		slog.Error("site config unavailable", "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, KeyStorageUnavailable, "Site config unavailable")
		return
	}
	w.Header().Set("X-Config-Source", string(res.Source))
	writeJSON(w, http.StatusOK, res)
}

// readJSONBody reads the request body and rejects anything that is not a
// single well-formed JSON value.
func readJSONBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteProblem(w, r, http.StatusRequestEntityTooLarge, KeyInvalidJSON, "Request body too large")
			return nil, false
		}
		WriteProblem(w, r, http.StatusBadRequest, KeyInvalidJSON, "Could not read request body")
		return nil, false
	}
	if verr := validation.ValidateJSON("body", body); verr != nil {
		WriteProblem(w, r, http.StatusBadRequest, KeyInvalidJSON, "Request body must be valid JSON")
		return nil, false
	}
	return json.RawMessage(body), true
}

// writeOptions turns an If-Match header into an expected-version write.
// "*" and an absent header write unconditionally.
func writeOptions(w http.ResponseWriter, r *http.Request) ([]content.WriteOption, bool) {
	v, ok, err := parseIfMatch(r.Header.Get("If-Match"))
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, KeyInvalidPrecondition, "If-Match must be a document version")
		return nil, false
	}
	if !ok {
		return nil, true
	}
	return []content.WriteOption{content.WithExpectedVersion(v)}, true
}

func parseIfMatch(header string) (int64, bool, error) {
	header = strings.TrimSpace(header)
	if header == "" || header == "*" {
		return 0, false, nil
	}
	header = strings.TrimPrefix(header, "W/")
	header = strings.Trim(header, `"`)
	v, err := strconv.ParseInt(header, 10, 64)
	if err != nil || v < 0 {
		return 0, false, fmt.Errorf("invalid If-Match %q", header)
	}
	return v, true, nil
}

func etag(version int64) string {
	return `"` + strconv.FormatInt(version, 10) + `"`
}

func writeRaw(w http.ResponseWriter, version int64, data json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("ETag", etag(version))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func writeSaved(w http.ResponseWriter, version int64) {
	w.Header().Set("ETag", etag(version))
	writeJSON(w, http.StatusOK, types.SuccessResponse{Success: true, Version: version})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
