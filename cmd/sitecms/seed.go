package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/hyperengineering/sitecms/internal/content"
	"github.com/hyperengineering/sitecms/internal/store"
	"github.com/hyperengineering/sitecms/internal/validation"
)

// seedDebounce coalesces the burst of events editors emit on save.
const seedDebounce = 500 * time.Millisecond

var (
	seedFile  string
	seedForce bool
	seedWatch bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the site config document from a JSON file",
	Long: "Write the site config document from a JSON file into the configured store. " +
		"An existing document is left alone unless --force is given. Use --file - to read stdin. " +
		"With --watch the file is re-seeded on every change until interrupted.",
	Args: cobra.NoArgs,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "",
		"Path to the site config JSON (default: seed.path from config)")
	seedCmd.Flags().BoolVar(&seedForce, "force", false,
		"Overwrite an existing document")
	seedCmd.Flags().BoolVar(&seedWatch, "watch", false,
		"Re-seed whenever the file changes")
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, repo, svc, err := openLocal(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer repo.Close()

	path := seedFile
	if path == "" {
		path = cfg.Seed.Path
	}
	if path == "-" && seedWatch {
		return errors.New("--watch needs a file, not stdin")
	}

	if err := seedOnce(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), svc, path, seedForce); err != nil {
		return err
	}
	if !seedWatch {
		return nil
	}
	return watchSeed(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), svc, path)
}

// seedOnce validates the file at path and writes it. Without force the write
// only succeeds if no document exists yet.
func seedOnce(ctx context.Context, in io.Reader, out, errOut io.Writer, svc *content.Service, path string, force bool) error {
	data, err := readInput(in, path)
	if err != nil {
		return err
	}
	if errs := validation.ValidateDocument(data); len(errs) > 0 {
		fields := make([]string, 0, len(errs))
		for _, e := range errs {
			fields = append(fields, e.Field+": "+e.Message)
		}
		return fmt.Errorf("%s is not a valid site config:\n  %s", path, strings.Join(fields, "\n  "))
	}

	var opts []content.WriteOption
	if !force {
		opts = append(opts, content.WithExpectedVersion(0))
	}

	doc, err := svc.WriteConfig(ctx, data, opts...)
	if errors.Is(err, store.ErrConflict) && !force {
		existing, rerr := svc.ReadConfig(ctx)
		if rerr != nil {
			return fmt.Errorf("site config exists but could not be read: %w", rerr)
		}
		fmt.Fprintf(errOut, "Site config already seeded (version %d); use --force to overwrite\n", existing.Version)
		return nil
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(out, map[string]any{
			"file":    path,
			"version": doc.Version,
			"bytes":   len(data),
		})
	}
	fmt.Fprintf(out, "Seeded site config from %s (version %d, %d bytes)\n", path, doc.Version, len(data))
	return nil
}

// watchSeed re-seeds path on every write until ctx is cancelled. The parent
// directory is watched so editors that save by rename are still seen.
func watchSeed(ctx context.Context, out, errOut io.Writer, svc *content.Service, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	fmt.Fprintf(errOut, "Watching %s for changes (Ctrl+C to stop)\n", path)

	debounced := debounce.New(seedDebounce)
	reseed := func() {
		if ctx.Err() != nil {
			return
		}
		if err := seedOnce(ctx, nil, out, errOut, svc, path, true); err != nil {
			fmt.Fprintf(errOut, "re-seed failed: %v\n", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				debounced(reseed)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(errOut, "watch error: %v\n", err)
		}
	}
}
