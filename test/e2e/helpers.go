package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/hyperengineering/sitecms/internal/api"
	"github.com/hyperengineering/sitecms/internal/content"
	"github.com/hyperengineering/sitecms/internal/preview"
	"github.com/hyperengineering/sitecms/internal/session"
	"github.com/hyperengineering/sitecms/internal/sitecache"
	"github.com/hyperengineering/sitecms/internal/snapshot"
	"github.com/hyperengineering/sitecms/internal/store"
	"github.com/hyperengineering/sitecms/pkg/cmsclient"
)

const testPassword = "e2e-admin-password"

// --- Fixture Loading ---

func fixturesDir() string {
	if dir := os.Getenv("TEST_FIXTURES_DIR"); dir != "" {
		return dir
	}
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "..", "fixtures")
}

func loadFixture(t *testing.T, name string) json.RawMessage {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(fixturesDir(), name))
	if err != nil {
		t.Fatalf("load fixture %s: %v", name, err)
	}
	if !json.Valid(data) {
		t.Fatalf("fixture %s is not valid JSON", name)
	}
	return data
}

// --- In-process Stack ---

// testEnv is the full server stack over a SQLite store, served by httptest.
type testEnv struct {
	server       *httptest.Server
	repo         *store.SQLStore
	svc          *content.Service
	site         *sitecache.Reader
	hub          *preview.Hub
	snapshotPath string
}

// setupTestEnv wires the stack the way the server command does. The hub
// origin is the httptest URL so clients built from it pass the origin check.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	repo, err := store.NewSQLiteStore(filepath.Join(dir, "sitecms.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	var router http.Handler
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		router.ServeHTTP(w, r)
	}))

	snapshotPath := filepath.Join(dir, "snapshot", "site-config.json")
	site := sitecache.NewReader(nil, snapshotPath, time.Minute, nil)
	svc := content.NewService(repo, content.WithInvalidator(site))
	site.SetSource(svc)

	secret, err := session.GenerateSecret()
	if err != nil {
		t.Fatalf("generate secret: %v", err)
	}
	guard := session.NewGuard(session.Config{
		Password: testPassword,
		Secret:   secret,
		TTL:      time.Hour,
	})

	hub := preview.NewHub(srv.URL, nil)
	router = api.NewRouter(api.NewHandler(svc, guard, site, hub, repo, "e2e"))

	// Streams end before the server closes, as in the shutdown sequence.
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	return &testEnv{
		server:       srv,
		repo:         repo,
		svc:          svc,
		site:         site,
		hub:          hub,
		snapshotPath: snapshotPath,
	}
}

func (e *testEnv) client(t *testing.T, password string) *cmsclient.Client {
	t.Helper()
	c, err := cmsclient.New(cmsclient.Config{
		BaseURL:    e.server.URL,
		Password:   password,
		Timeout:    5 * time.Second,
		MaxRetries: 1,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

// seed writes doc directly through the content service.
func (e *testEnv) seed(t *testing.T, doc json.RawMessage) int64 {
	t.Helper()
	d, err := e.svc.WriteConfig(context.Background(), doc)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return d.Version
}

func (e *testEnv) writeSnapshot(t *testing.T) *snapshot.File {
	t.Helper()
	f, err := snapshot.NewWriter(e.svc, e.snapshotPath, nil).Write(context.Background())
	if err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	return f
}

// waitSubscribers polls until role has n subscribers.
func (e *testEnv) waitSubscribers(t *testing.T, role preview.Role, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.hub.Subscribers(role) == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("%s subscribers = %d, want %d", role, e.hub.Subscribers(role), n)
}

// clientPort posts preview messages through c.
func clientPort(ctx context.Context, c *cmsclient.Client) preview.Port {
	return preview.PortFunc(func(msg preview.Message, _ string) error {
		_, err := c.PostPreview(ctx, cmsclient.PreviewMessage{
			Type:    string(msg.Type),
			Section: string(msg.Section),
			Data:    msg.Data,
			Intent:  msg.Intent,
			Theme:   msg.Theme,
		})
		return err
	})
}

func toPreviewMessage(m cmsclient.PreviewMessage) preview.Message {
	return preview.Message{
		Type:    preview.MessageType(m.Type),
		Section: preview.Section(m.Section),
		Data:    m.Data,
		Intent:  m.Intent,
		Theme:   m.Theme,
	}
}
