package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/sitecms/internal/session"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Print a new random session secret",
	Long:  "Print 32 random bytes as hex, suitable for CMS_SESSION_SECRET. Rotating the secret signs every admin out.",
	Args:  cobra.NoArgs,
	RunE:  runSecret,
}

func runSecret(cmd *cobra.Command, args []string) error {
	secret, err := session.GenerateSecret()
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]string{"secret": secret})
	}
	fmt.Fprintln(cmd.OutOrStdout(), secret)
	return nil
}
