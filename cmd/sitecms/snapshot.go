package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/sitecms/internal/snapshot"
)

var snapshotPresign bool

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Write a last-known-good snapshot of the site config now",
	Long: "Write the stored site config to snapshot.path and, when snapshot storage is configured, " +
		"upload it. The public read path falls back to this file when the store is unreachable.",
	Args: cobra.NoArgs,
	RunE: runSnapshot,
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Describe the local snapshot file",
	Args:  cobra.NoArgs,
	RunE:  runSnapshotShow,
}

func init() {
	snapshotCmd.Flags().BoolVar(&snapshotPresign, "presign", false,
		"Print a pre-signed download URL for the uploaded snapshot")
	snapshotCmd.AddCommand(snapshotShowCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, repo, svc, err := openLocal(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer repo.Close()

	uploader, err := snapshot.NewUploader(cfg.Snapshot.Storage)
	if err != nil {
		return err
	}
	w := snapshot.NewWriter(svc, cfg.Snapshot.Path, uploader)

	f, err := w.Write(ctx)
	if errors.Is(err, snapshot.ErrEmpty) {
		return errors.New("nothing to snapshot: the site config has not been seeded")
	}
	if err != nil {
		return err
	}

	result := map[string]any{
		"id":      f.ID,
		"version": f.Version,
		"path":    w.Path(),
	}

	if snapshotPresign {
		url, expiry, err := uploader.PresignedURL(ctx, snapshot.CurrentKey)
		if errors.Is(err, snapshot.ErrNotConfigured) {
			return errors.New("--presign needs snapshot storage (set SITECMS_SNAPSHOT_BUCKET)")
		}
		if err != nil {
			return fmt.Errorf("presign snapshot: %w", err)
		}
		result["url"] = url
		result["expires_at"] = expiry.UTC().Format(time.RFC3339)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), result)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Snapshot %s (version %d) written to %s\n", f.ID, f.Version, w.Path())
	if u, ok := result["url"]; ok {
		fmt.Fprintf(cmd.OutOrStdout(), "Download: %s\nExpires:  %s\n", u, result["expires_at"])
	}
	return nil
}

func runSnapshotShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	f, err := snapshot.Load(cfg.Snapshot.Path)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"id":         f.ID,
			"version":    f.Version,
			"updated_at": f.UpdatedAt,
			"created_at": f.CreatedAt,
			"bytes":      len(f.Data),
			"path":       cfg.Snapshot.Path,
		})
	}

	tw := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintf(tw, "ID:\t%s\n", f.ID)
	fmt.Fprintf(tw, "Version:\t%d\n", f.Version)
	fmt.Fprintf(tw, "Document updated:\t%s\n", f.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "Snapshot taken:\t%s\n", f.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "Size:\t%s\n", formatSize(int64(len(f.Data))))
	fmt.Fprintf(tw, "Path:\t%s\n", cfg.Snapshot.Path)
	return tw.Flush()
}
