package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/sitecms/internal/preview"
	"github.com/hyperengineering/sitecms/pkg/cmsclient"
)

var (
	previewRole   string
	previewRender bool
	previewIntent string
	previewType   string
	previewTheme  string
	previewData   string
	previewTarget string
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Watch and send live preview messages on a running server",
}

var previewWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print preview messages relayed to a role",
	Long: "Subscribe to the preview relay as --role and print each message as a JSON line. " +
		"With --render (replica role only) the messages drive a preview replica seeded from the " +
		"public site config, and the replica state is printed after each one.",
	Args: cobra.NoArgs,
	RunE: runPreviewWatch,
}

var previewSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one preview message",
	Args:  cobra.NoArgs,
	RunE:  runPreviewSend,
}

func init() {
	previewWatchCmd.Flags().StringVar(&previewRole, "role", cmsclient.RoleReplica,
		"Role to subscribe as: replica or editor")
	previewWatchCmd.Flags().BoolVar(&previewRender, "render", false,
		"Apply messages to a local replica and print its state")
	previewWatchCmd.Flags().StringVar(&previewIntent, "intent", "",
		"Landing intent the rendered replica starts on")

	previewSendCmd.Flags().StringVar(&previewType, "type", cmsclient.PreviewUpdate,
		"Message type")
	previewSendCmd.Flags().StringVar(&previewTarget, "section", "",
		"Editor section the message refers to")
	previewSendCmd.Flags().StringVar(&previewData, "data", "",
		"JSON file with the draft section data (- for stdin)")
	previewSendCmd.Flags().StringVar(&previewIntent, "intent", "",
		"Landing intent the draft belongs to")
	previewSendCmd.Flags().StringVar(&previewTheme, "theme", "",
		"Theme override")

	previewCmd.AddCommand(previewWatchCmd)
	previewCmd.AddCommand(previewSendCmd)
}

func runPreviewWatch(cmd *cobra.Command, args []string) error {
	role, ok := preview.ParseRole(previewRole)
	if !ok {
		return fmt.Errorf("unknown role %q (want replica or editor)", previewRole)
	}
	if previewRender && role != preview.RoleReplica {
		return errors.New("--render needs --role replica")
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	client, err := newClient()
	if err != nil {
		return err
	}

	if previewRender {
		return renderReplica(ctx, cmd.OutOrStdout(), client, previewIntent)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	return client.StreamPreview(ctx, string(role), func(msg cmsclient.PreviewMessage) error {
		return enc.Encode(msg)
	})
}

// renderReplica runs a replica against the relay. READY is announced back
// through the server so an open editor starts sending.
func renderReplica(ctx context.Context, out io.Writer, client *cmsclient.Client, intent string) error {
	site, err := client.SiteConfig(ctx)
	if err != nil {
		return err
	}

	parent := preview.PortFunc(func(msg preview.Message, _ string) error {
		_, err := client.PostPreview(ctx, toClientMessage(msg))
		return err
	})
	replica := preview.NewReplica(client.Origin(), parent, intent, site.Config, 0, nil)

	enc := json.NewEncoder(out)
	if err := enc.Encode(replica.State()); err != nil {
		return err
	}

	if err := replica.Mount(); err != nil {
		return fmt.Errorf("announce ready: %w", err)
	}

	return client.StreamPreview(ctx, cmsclient.RoleReplica, func(msg cmsclient.PreviewMessage) error {
		env := preview.Envelope{Origin: client.Origin(), Data: fromClientMessage(msg)}
		if err := replica.HandleMessage(env); err != nil {
			return err
		}
		return enc.Encode(replica.State())
	})
}

func runPreviewSend(cmd *cobra.Command, args []string) error {
	msg := cmsclient.PreviewMessage{
		Type:    previewType,
		Section: previewTarget,
		Intent:  previewIntent,
		Theme:   previewTheme,
	}
	if previewData != "" {
		data, err := readInput(cmd.InOrStdin(), previewData)
		if err != nil {
			return err
		}
		msg.Data = data
	}
	if err := fromClientMessage(msg).Validate(); err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	delivered, err := client.PostPreview(cmd.Context(), msg)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{"delivered": delivered})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Delivered to %d subscriber(s)\n", delivered)
	return nil
}

func fromClientMessage(m cmsclient.PreviewMessage) preview.Message {
	return preview.Message{
		Type:    preview.MessageType(m.Type),
		Section: preview.Section(m.Section),
		Data:    m.Data,
		Intent:  m.Intent,
		Theme:   m.Theme,
	}
}

func toClientMessage(m preview.Message) cmsclient.PreviewMessage {
	return cmsclient.PreviewMessage{
		Type:    string(m.Type),
		Section: string(m.Section),
		Data:    m.Data,
		Intent:  m.Intent,
		Theme:   m.Theme,
	}
}
