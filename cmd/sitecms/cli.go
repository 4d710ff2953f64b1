package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/hyperengineering/sitecms/internal/config"
	"github.com/hyperengineering/sitecms/internal/content"
	"github.com/hyperengineering/sitecms/internal/store"
	"github.com/hyperengineering/sitecms/pkg/cmsclient"
)

// Flags shared by the commands that talk to a running server.
var (
	serverURL  string
	jsonOutput bool
)

// openLocal loads configuration and opens the configured store for commands
// that work without a running server. The caller closes the repository.
func openLocal(ctx context.Context, w io.Writer) (*config.Config, store.ConfigRepository, *content.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger := newLogger(w, cfg.Log)

	repo, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	svc := content.NewService(repo, content.WithLogger(logger.With("component", "content")))
	return cfg, repo, svc, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newClient builds an API client for the --server flag. The password comes
// from CMS_PASSWORD.
func newClient() (*cmsclient.Client, error) {
	base := serverURL
	if base == "" {
		base = os.Getenv("SITECMS_SERVER")
	}
	if base == "" {
		base = "http://localhost:8080"
	}
	return cmsclient.New(cmsclient.Config{
		BaseURL:  base,
		Password: os.Getenv("CMS_PASSWORD"),
	})
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printRaw writes a raw JSON value indented, keeping key order.
func printRaw(w io.Writer, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, werr := fmt.Fprintln(w, string(raw))
		return werr
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// readInput reads a JSON document from path, or from in when path is "-".
func readInput(in io.Reader, path string) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(in)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s is not valid JSON", path)
	}
	return json.RawMessage(data), nil
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
	)
	switch {
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
