//go:build e2e

package e2e

import (
	"bytes"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperengineering/sitecms/pkg/cmsclient"
)

// sitecmsServer manages a running sitecms server process.
type sitecmsServer struct {
	cmd     *exec.Cmd
	dataDir string
	address string
	logFile string
	env     []string
}

// startSitecms launches the sitecms binary and waits for it to become
// healthy. The server is configured entirely via environment variables.
func startSitecms(t *testing.T) *sitecmsServer {
	t.Helper()
	requireSitecms(t)

	dataDir := t.TempDir()
	port := freePort(t)
	address := fmt.Sprintf("127.0.0.1:%d", port)
	logFile := filepath.Join(dataDir, "sitecms.log")

	env := append(os.Environ(),
		"SITECMS_PORT="+fmt.Sprintf("%d", port),
		"SITECMS_PUBLIC_ORIGIN=http://"+address,
		"SITECMS_DB_DRIVER=sqlite",
		"SITECMS_DB_PATH="+filepath.Join(dataDir, "sitecms.db"),
		"SITECMS_SNAPSHOT_PATH="+filepath.Join(dataDir, "snapshot", "site-config.json"),
		"SITECMS_CONFIG_PATH="+filepath.Join(dataDir, "nonexistent.yaml"), // skip YAML file
		"SITECMS_SECURE_COOKIE=false",
		"SITECMS_SERVER=http://"+address,
		"CMS_PASSWORD="+testPassword,
		"CMS_SESSION_SECRET="+strings.Repeat("ab", 32),
	)

	cmd := exec.Command(sitecmsBin, "serve")
	cmd.Env = env

	lf, err := os.Create(logFile)
	if err != nil {
		t.Fatalf("create log file: %v", err)
	}
	cmd.Stdout = lf
	cmd.Stderr = lf

	if err := cmd.Start(); err != nil {
		lf.Close()
		t.Fatalf("start sitecms: %v", err)
	}

	s := &sitecmsServer{
		cmd:     cmd,
		dataDir: dataDir,
		address: address,
		logFile: logFile,
		env:     env,
	}

	t.Cleanup(func() {
		s.stop()
		lf.Close()
	})

	if err := s.waitHealthy(10 * time.Second); err != nil {
		logs, _ := os.ReadFile(logFile)
		t.Fatalf("sitecms not healthy: %v\n%s", err, logs)
	}

	return s
}

func (s *sitecmsServer) stop() error {
	if s.cmd == nil || s.cmd.Process == nil || s.cmd.ProcessState != nil {
		return nil
	}
	_ = s.cmd.Process.Signal(os.Interrupt)
	return s.cmd.Wait()
}

func (s *sitecmsServer) baseURL() string {
	return fmt.Sprintf("http://%s", s.address)
}

func (s *sitecmsServer) client(t *testing.T) *cmsclient.Client {
	t.Helper()
	c, err := cmsclient.New(cmsclient.Config{BaseURL: s.baseURL(), Password: testPassword})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

// run executes a sitecms subcommand against the server's environment.
func (s *sitecmsServer) run(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := exec.Command(sitecmsBin, args...)
	cmd.Env = s.env
	cmd.Stdin = strings.NewReader(stdin)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err = cmd.Run()
	return outBuf.String(), errBuf.String(), err
}

func (s *sitecmsServer) waitHealthy(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	url := fmt.Sprintf("%s/api/health", s.baseURL())

	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("sitecms not healthy after %s", timeout)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
