package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperengineering/sitecms/internal/content"
	"github.com/hyperengineering/sitecms/internal/preview"
	"github.com/hyperengineering/sitecms/internal/session"
	"github.com/hyperengineering/sitecms/internal/sitecache"
	"github.com/hyperengineering/sitecms/internal/store"
	"github.com/hyperengineering/sitecms/internal/types"
)

const testOrigin = "https://school.example"

// --- Mock Implementations for Testing ---

// memRepo implements store.ConfigRepository in memory.
type memRepo struct {
	mu      sync.Mutex
	doc     *store.Document
	err     error
	pingErr error
}

func (m *memRepo) Get(ctx context.Context) (*store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.doc == nil {
		return nil, store.ErrNotFound
	}
	d := *m.doc
	return &d, nil
}

func (m *memRepo) Put(ctx context.Context, data json.RawMessage) (*store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.writeLocked(data), nil
}

func (m *memRepo) CompareAndPut(ctx context.Context, data json.RawMessage, expected int64) (*store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var current int64
	if m.doc != nil {
		current = m.doc.Version
	}
	if current != expected {
		return nil, store.ErrConflict
	}
	return m.writeLocked(data), nil
}

func (m *memRepo) writeLocked(data json.RawMessage) *store.Document {
	var version int64 = 1
	if m.doc != nil {
		version = m.doc.Version + 1
	}
	m.doc = &store.Document{
		Data:      append(json.RawMessage(nil), data...),
		Version:   version,
		UpdatedAt: time.Now().UTC(),
	}
	d := *m.doc
	return &d
}

func (m *memRepo) Ping(ctx context.Context) error { return m.pingErr }
func (m *memRepo) Close() error                   { return nil }

type testServer struct {
	router http.Handler
	repo   *memRepo
	guard  *session.Guard
	hub    *preview.Hub
}

// newTestServer wires the full router over an in-memory repository.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	repo := &memRepo{}
	guard := newTestGuard()
	reader := sitecache.NewReader(nil, "", time.Minute, nil)
	svc := content.NewService(repo, content.WithInvalidator(reader))
	reader.SetSource(svc)
	hub := preview.NewHub(testOrigin, nil)
	t.Cleanup(hub.Close)

	h := NewHandler(svc, guard, reader, hub, repo, "1.2.3")
	return &testServer{router: NewRouter(h), repo: repo, guard: guard, hub: hub}
}

// do sends a request through the router, authenticated when auth is true.
func (s *testServer) do(t *testing.T, method, path, body string, auth bool, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if auth {
		req.AddCookie(sessionCookie(t, s.guard))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) ProblemWithErrors {
	t.Helper()
	var p ProblemWithErrors
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("failed to unmarshal problem %q: %v", w.Body.String(), err)
	}
	return p
}

// --- Auth ---

func TestLogin_WrongPassword(t *testing.T) {
	s := newTestServer(t)

	for _, body := range []string{`{"password":"nope"}`, `{"password":""}`, `{}`} {
		w := s.do(t, http.MethodPost, "/api/admin/auth/login", body, false)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("login %s: status = %d, want 401", body, w.Code)
		}
		if p := decodeProblem(t, w); p.Key != KeyInvalidCredentials {
			t.Errorf("login %s: key = %q, want %q", body, p.Key, KeyInvalidCredentials)
		}
		if w.Header().Get("Set-Cookie") != "" {
			t.Errorf("login %s: failed login must not set a cookie", body)
		}
	}
}

func TestLogin_MalformedBody(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/admin/auth/login", `{"password":`, false)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if p := decodeProblem(t, w); p.Key != KeyInvalidJSON {
		t.Errorf("key = %q, want %q", p.Key, KeyInvalidJSON)
	}
}

func TestLogin_SetsSessionCookie(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/admin/auth/login", `{"password":"`+testPassword+`"}`, false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp map[string]bool
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || !resp["success"] {
		t.Errorf("body = %s, want {success:true}", w.Body.String())
	}

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d, want 1", len(cookies))
	}
	c := cookies[0]
	if c.Name != session.CookieName {
		t.Errorf("cookie name = %q", c.Name)
	}
	if !c.HttpOnly {
		t.Error("cookie must be HttpOnly")
	}
	if c.SameSite != http.SameSiteStrictMode {
		t.Errorf("SameSite = %v, want Strict", c.SameSite)
	}
	if c.MaxAge != 86400 {
		t.Errorf("MaxAge = %d, want 86400", c.MaxAge)
	}
	if c.Path != "/" {
		t.Errorf("Path = %q, want /", c.Path)
	}
	if !s.guard.VerifyToken(c.Value) {
		t.Error("issued token does not verify")
	}
}

func TestLoginVerifyLogout_Scenario(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/admin/auth/verify", "", false)
	if w.Code != http.StatusUnauthorized || !strings.Contains(w.Body.String(), `"authenticated":false`) {
		t.Errorf("verify before login: %d %s", w.Code, w.Body.String())
	}

	login := s.do(t, http.MethodPost, "/api/admin/auth/login", `{"password":"`+testPassword+`"}`, false)
	cookie := login.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodGet, "/api/admin/auth/verify", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"authenticated":true`) {
		t.Errorf("verify after login: %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/api/admin/auth/logout", "", false)
	if w.Code != http.StatusOK {
		t.Errorf("logout status = %d", w.Code)
	}
	cleared := w.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge >= 0 || cleared[0].Value != "" {
		t.Errorf("logout cookie = %+v, want expired empty cookie", cleared)
	}
}

func TestAdminRoutes_RequireSession(t *testing.T) {
	s := newTestServer(t)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/admin/config"},
		{http.MethodPut, "/api/admin/config"},
		{http.MethodGet, "/api/admin/config/faq"},
		{http.MethodPut, "/api/admin/config/faq"},
		{http.MethodGet, "/api/admin/config/bogus"},
		{http.MethodGet, "/api/admin/config/intents/speed"},
		{http.MethodPut, "/api/admin/config/intents/speed"},
		{http.MethodGet, "/api/admin/preview/stream"},
		{http.MethodPost, "/api/admin/preview/messages"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := s.do(t, rt.method, rt.path, `{}`, false)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
			if p := decodeProblem(t, w); p.Key != KeyUnauthenticated {
				t.Errorf("key = %q, want %q", p.Key, KeyUnauthenticated)
			}
		})
	}
}

// --- Sections ---

func TestSection_RoundTrip(t *testing.T) {
	s := newTestServer(t)
	body := `{"title":"Questions","items":[{"q":"How long?","a":"Two weeks"}]}`

	w := s.do(t, http.MethodPut, "/api/admin/config/faq", body, true)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d: %s", w.Code, w.Body.String())
	}
	var saved types.SuccessResponse
	if err := json.Unmarshal(w.Body.Bytes(), &saved); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if !saved.Success || saved.Version != 1 {
		t.Errorf("saved = %+v, want success version 1", saved)
	}
	if w.Header().Get("ETag") != `"1"` {
		t.Errorf("ETag = %q, want \"1\"", w.Header().Get("ETag"))
	}

	w = s.do(t, http.MethodGet, "/api/admin/config/faq", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d", w.Code)
	}
	if w.Body.String() != body {
		t.Errorf("GET body = %s, want %s", w.Body.String(), body)
	}
}

func TestSection_BogusName(t *testing.T) {
	s := newTestServer(t)

	for _, method := range []string{http.MethodGet, http.MethodPut} {
		w := s.do(t, method, "/api/admin/config/bogus", `{}`, true)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", method, w.Code)
		}
		if p := decodeProblem(t, w); p.Key != KeyInvalidSection {
			t.Errorf("%s key = %q, want %q", method, p.Key, KeyInvalidSection)
		}
	}
	if s.repo.doc != nil {
		t.Error("bogus section must not write")
	}
}

func TestGet_Unseeded(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/admin/config", "/api/admin/config/header", "/api/admin/config/intents/cost"} {
		w := s.do(t, http.MethodGet, path, "", true)
		if w.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, w.Code)
		}
		if p := decodeProblem(t, w); p.Key != KeyNotFound {
			t.Errorf("GET %s key = %q", path, p.Key)
		}
	}
}

func TestSection_MalformedJSON(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPut, "/api/admin/config/faq", `{"title":`, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if p := decodeProblem(t, w); p.Key != KeyInvalidJSON {
		t.Errorf("key = %q, want %q", p.Key, KeyInvalidJSON)
	}
}

func TestSection_ShapeMismatch(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPut, "/api/admin/config/faq", `{"title":5}`, true)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	p := decodeProblem(t, w)
	if p.Key != KeyInvalidContent {
		t.Errorf("key = %q, want %q", p.Key, KeyInvalidContent)
	}
	if len(p.Errors) == 0 || p.Errors[0].Field != "faq.title" {
		t.Errorf("errors = %v, want faq.title", p.Errors)
	}
}

func TestSection_SiblingsPreserved(t *testing.T) {
	s := newTestServer(t)
	header := `{ "nav" : {"usp":"Why us",  "faq":"FAQ"} }`
	s.repo.doc = &store.Document{Data: json.RawMessage(`{"header":` + header + `,"faq":{"title":"old"}}`), Version: 4}

	w := s.do(t, http.MethodPut, "/api/admin/config/faq", `{"title":"new"}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d: %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/api/admin/config/header", "", true)
	if w.Body.String() != header {
		t.Errorf("header = %q, want untouched %q", w.Body.String(), header)
	}
	if w.Header().Get("ETag") != `"5"` {
		t.Errorf("ETag = %q, want \"5\"", w.Header().Get("ETag"))
	}
}

func TestSection_IfMatch(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPut, "/api/admin/config/faq", `{"title":"a"}`, true, "If-Match", `"0"`)
	if w.Code != http.StatusOK {
		t.Fatalf("first write with If-Match 0: %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodPut, "/api/admin/config/faq", `{"title":"b"}`, true, "If-Match", `"1"`)
	if w.Code != http.StatusOK {
		t.Fatalf("write at current version: %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodPut, "/api/admin/config/faq", `{"title":"stale"}`, true, "If-Match", `"1"`)
	if w.Code != http.StatusConflict {
		t.Errorf("stale write status = %d, want 409", w.Code)
	}
	if p := decodeProblem(t, w); p.Key != KeyConflict {
		t.Errorf("key = %q, want %q", p.Key, KeyConflict)
	}

	w = s.do(t, http.MethodPut, "/api/admin/config/faq", `{"title":"c"}`, true, "If-Match", "yesterday")
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid If-Match status = %d, want 400", w.Code)
	}

	w = s.do(t, http.MethodPut, "/api/admin/config/faq", `{"title":"d"}`, true, "If-Match", "*")
	if w.Code != http.StatusOK {
		t.Errorf("If-Match * status = %d, want 200", w.Code)
	}
}

func TestParseIfMatch(t *testing.T) {
	tests := []struct {
		header  string
		want    int64
		wantOK  bool
		wantErr bool
	}{
		{"", 0, false, false},
		{"*", 0, false, false},
		{`"7"`, 7, true, false},
		{`W/"7"`, 7, true, false},
		{"7", 7, true, false},
		{`"-1"`, 0, false, true},
		{`"abc"`, 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok, err := parseIfMatch(tt.header)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("parseIfMatch(%q) = %d, %v; want %d, %v", tt.header, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// --- Intents ---

func TestIntent_RoundTrip(t *testing.T) {
	s := newTestServer(t)
	body := `{"hero":{"title":"Pass fast"},"theme":"#DC2626"}`

	w := s.do(t, http.MethodPut, "/api/admin/config/intents/speed", body, true)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d: %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/api/admin/config/intents/speed", "", true)
	if w.Code != http.StatusOK || w.Body.String() != body {
		t.Errorf("GET = %d %s, want %s", w.Code, w.Body.String(), body)
	}

	w = s.do(t, http.MethodGet, "/api/admin/config/intents/cost", "", true)
	if w.Code != http.StatusNotFound {
		t.Errorf("absent intent status = %d, want 404", w.Code)
	}
}

func TestIntent_Invalid(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPut, "/api/admin/config/intents/luxury", `{}`, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if p := decodeProblem(t, w); p.Key != KeyInvalidIntent {
		t.Errorf("key = %q, want %q", p.Key, KeyInvalidIntent)
	}

	w = s.do(t, http.MethodPut, "/api/admin/config/intents/speed", `{"hero":"Fast"}`, true)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("shape mismatch status = %d, want 422", w.Code)
	}
}

// --- Whole document ---

func TestConfig_PutAndGet(t *testing.T) {
	s := newTestServer(t)
	doc := `{"faq":{"title":"FAQ"},"landing":{"cost":{"theme":"#2563EB"}}}`

	w := s.do(t, http.MethodPut, "/api/admin/config", doc, true)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d: %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/api/admin/config", "", true)
	if w.Code != http.StatusOK || w.Body.String() != doc {
		t.Errorf("GET = %d %s", w.Code, w.Body.String())
	}
}

func TestConfig_PutRejectsInvalid(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		body       string
		wantStatus int
	}{
		{`[1,2]`, http.StatusUnprocessableEntity},
		{`"text"`, http.StatusUnprocessableEntity},
		{`{"faq":{"items":"none"}}`, http.StatusUnprocessableEntity},
		{`{"landing":{"vip":{}}}`, http.StatusUnprocessableEntity},
		{`{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		w := s.do(t, http.MethodPut, "/api/admin/config", tt.body, true)
		if w.Code != tt.wantStatus {
			t.Errorf("PUT %s status = %d, want %d", tt.body, w.Code, tt.wantStatus)
		}
	}
	if s.repo.doc != nil {
		t.Error("invalid documents must not be written")
	}
}

func TestStorageFailure(t *testing.T) {
	s := newTestServer(t)
	s.repo.err = errors.New("database is locked")

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/admin/config", ""},
		{http.MethodGet, "/api/admin/config/faq", ""},
		{http.MethodPut, "/api/admin/config/faq", `{"title":"x"}`},
		{http.MethodPut, "/api/admin/config/intents/cost", `{}`},
	} {
		w := s.do(t, tc.method, tc.path, tc.body, true)
		if w.Code != http.StatusInternalServerError {
			t.Errorf("%s %s status = %d, want 500", tc.method, tc.path, w.Code)
		}
		p := decodeProblem(t, w)
		if p.Key != KeyStorageUnavailable {
			t.Errorf("%s %s key = %q", tc.method, tc.path, p.Key)
		}
		if strings.Contains(w.Body.String(), "locked") {
			t.Errorf("%s %s leaked internal error", tc.method, tc.path)
		}
	}
}

// --- Public ---

func TestSiteConfig_FallbackThenStore(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/site/config", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("X-Config-Source") != string(sitecache.SourceEmbedded) {
		t.Errorf("source = %q, want embedded", w.Header().Get("X-Config-Source"))
	}

	s.do(t, http.MethodPut, "/api/admin/config/faq", `{"title":"Fresh"}`, true)

	w = s.do(t, http.MethodGet, "/api/site/config", "", false)
	var res sitecache.Resolved
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if res.Source != sitecache.SourceStore {
		t.Errorf("source = %q, want store after write invalidated the cache", res.Source)
	}
	if !strings.Contains(string(res.Config), `"Fresh"`) {
		t.Errorf("config = %s, want written faq", res.Config)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/health", "", false)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if resp.Status != "healthy" || resp.Version != "1.2.3" || resp.Store != "ok" {
		t.Errorf("resp = %+v", resp)
	}

	s.repo.pingErr = errors.New("connection refused")
	w = s.do(t, http.MethodGet, "/api/health", "", false)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("degraded status = %d, want 503", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"store":"unreachable"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

// --- Preview relay ---

func TestPreviewMessages_Origin(t *testing.T) {
	s := newTestServer(t)
	msg := `{"type":"PREVIEW_READY"}`

	w := s.do(t, http.MethodPost, "/api/admin/preview/messages", msg, true, "Origin", "https://evil.example")
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign origin status = %d, want 403", w.Code)
	}
	if p := decodeProblem(t, w); p.Key != KeyForbiddenOrigin {
		t.Errorf("key = %q, want %q", p.Key, KeyForbiddenOrigin)
	}

	w = s.do(t, http.MethodPost, "/api/admin/preview/messages", msg, true, "Origin", testOrigin)
	if w.Code != http.StatusAccepted {
		t.Errorf("same origin status = %d, want 202", w.Code)
	}

	w = s.do(t, http.MethodPost, "/api/admin/preview/messages", msg, true)
	if w.Code != http.StatusAccepted {
		t.Errorf("no Origin header status = %d, want 202", w.Code)
	}
}

func TestPreviewMessages_Invalid(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		body    string
		wantKey string
	}{
		{`not json`, KeyInvalidJSON},
		{`{"type":"PREVIEW_DANCE"}`, KeyInvalidMessage},
		{`{"type":"PREVIEW_UPDATE","section":"pricing","data":{}}`, KeyInvalidMessage},
	}
	for _, tt := range tests {
		w := s.do(t, http.MethodPost, "/api/admin/preview/messages", tt.body, true, "Origin", testOrigin)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", tt.body, w.Code)
		}
		if p := decodeProblem(t, w); p.Key != tt.wantKey {
			t.Errorf("%s key = %q, want %q", tt.body, p.Key, tt.wantKey)
		}
	}
}

func TestPreviewStream_InvalidRole(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/admin/preview/stream?role=spectator", "", true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	name string
	data string
}

func readSSEEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read SSE: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if ev.name != "" || ev.data != "" {
				return ev
			}
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestPreviewStream_RelaysToReplica(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/admin/preview/stream?role=replica", nil)
	req.AddCookie(sessionCookie(t, s.guard))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	if ev := readSSEEvent(t, reader); ev.name != "subscribed" {
		t.Fatalf("first event = %+v, want subscribed", ev)
	}

	post, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/admin/preview/messages",
		strings.NewReader(`{"type":"PREVIEW_UPDATE","section":"intent-hero","data":{"hero":{"title":"Live"}}}`))
	post.AddCookie(sessionCookie(t, s.guard))
	post.Header.Set("Origin", testOrigin)
	postResp, err := http.DefaultClient.Do(post)
	if err != nil {
		t.Fatalf("post message: %v", err)
	}
	postResp.Body.Close()
	if postResp.StatusCode != http.StatusAccepted {
		t.Fatalf("post status = %d", postResp.StatusCode)
	}

	ev := readSSEEvent(t, reader)
	if ev.name != "preview" {
		t.Fatalf("event = %+v, want preview", ev)
	}
	var msg preview.Message
	if err := json.Unmarshal([]byte(ev.data), &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.Type != preview.TypeUpdate || msg.Section != preview.SectionIntentHero {
		t.Errorf("msg = %+v", msg)
	}
}
