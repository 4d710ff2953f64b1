package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/hyperengineering/sitecms/internal/types"
)

var putIfMatch int64

var sectionCmd = &cobra.Command{
	Use:   "section",
	Short: "Read and write site config sections on a running server",
	Long:  "Read and write top-level site config sections through the admin API. The admin password is read from CMS_PASSWORD.",
}

var sectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sections and whether each has content",
	Args:  cobra.NoArgs,
	RunE:  runSectionList,
}

var sectionGetCmd = &cobra.Command{
	Use:   "get <section>",
	Short: "Print a section's JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runSectionGet,
}

var sectionPutCmd = &cobra.Command{
	Use:   "put <section> <file|->",
	Short: "Replace a section with the JSON in file (- for stdin)",
	Args:  cobra.ExactArgs(2),
	RunE:  runSectionPut,
}

var intentCmd = &cobra.Command{
	Use:   "intent",
	Short: "Read and write per-intent landing content on a running server",
}

var intentGetCmd = &cobra.Command{
	Use:   "get <intent>",
	Short: "Print an intent's landing content",
	Args:  cobra.ExactArgs(1),
	RunE:  runIntentGet,
}

var intentPutCmd = &cobra.Command{
	Use:   "put <intent> <file|->",
	Short: "Replace an intent's landing content with the JSON in file (- for stdin)",
	Args:  cobra.ExactArgs(2),
	RunE:  runIntentPut,
}

func init() {
	sectionPutCmd.Flags().Int64Var(&putIfMatch, "if-match", 0,
		"Only write if the document is still at this version")
	intentPutCmd.Flags().Int64Var(&putIfMatch, "if-match", 0,
		"Only write if the document is still at this version")

	sectionCmd.AddCommand(sectionListCmd)
	sectionCmd.AddCommand(sectionGetCmd)
	sectionCmd.AddCommand(sectionPutCmd)

	intentCmd.AddCommand(intentGetCmd)
	intentCmd.AddCommand(intentPutCmd)
}

func runSectionList(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	doc, err := client.GetConfig(cmd.Context())
	if err != nil {
		return err
	}

	type row struct {
		Name    string `json:"name"`
		Present bool   `json:"present"`
		Bytes   int    `json:"bytes"`
	}
	rows := make([]row, 0, len(types.Sections))
	for _, name := range types.Sections {
		r := gjson.GetBytes(doc.Data, string(name))
		present := r.Exists() && r.Type != gjson.Null
		rows = append(rows, row{Name: string(name), Present: present, Bytes: len(r.Raw)})
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"version":  doc.Version,
			"sections": rows,
		})
	}

	tw := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(tw, "SECTION\tPRESENT\tBYTES")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%t\t%d\n", r.Name, r.Present, r.Bytes)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nversion %d\n", doc.Version)
	return nil
}

func runSectionGet(cmd *cobra.Command, args []string) error {
	name := types.SectionName(args[0])
	if !name.IsValid() {
		return fmt.Errorf("unknown section %q", args[0])
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	v, err := client.GetSection(cmd.Context(), string(name))
	if err != nil {
		return err
	}
	return printRaw(cmd.OutOrStdout(), v.Data)
}

func runSectionPut(cmd *cobra.Command, args []string) error {
	name := types.SectionName(args[0])
	if !name.IsValid() {
		return fmt.Errorf("unknown section %q", args[0])
	}
	data, err := readInput(cmd.InOrStdin(), args[1])
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	version, err := client.PutSection(cmd.Context(), string(name), data, putIfMatch)
	if err != nil {
		return err
	}
	return printSaved(cmd, string(name), version)
}

func runIntentGet(cmd *cobra.Command, args []string) error {
	key := types.IntentKey(args[0])
	if !key.IsValid() {
		return fmt.Errorf("unknown intent %q", args[0])
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	v, err := client.GetIntent(cmd.Context(), string(key))
	if err != nil {
		return err
	}
	return printRaw(cmd.OutOrStdout(), v.Data)
}

func runIntentPut(cmd *cobra.Command, args []string) error {
	key := types.IntentKey(args[0])
	if !key.IsValid() {
		return fmt.Errorf("unknown intent %q", args[0])
	}
	data, err := readInput(cmd.InOrStdin(), args[1])
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	version, err := client.PutIntent(cmd.Context(), string(key), data, putIfMatch)
	if err != nil {
		return err
	}
	return printSaved(cmd, "landing."+string(key), version)
}

func printSaved(cmd *cobra.Command, what string, version int64) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"saved":   what,
			"version": version,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (version %d)\n", what, version)
	return nil
}
