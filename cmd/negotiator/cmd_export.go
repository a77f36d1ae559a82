package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fish-not-phish/RansomNegotiator/internal/export"
)

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export a session transcript to a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "txt", "output format: txt, md, json")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output path (default: ransomchat-<group>-<date>.<ext>)")
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()
	if err := a.bootstrap(ctx); err != nil {
		return err
	}

	exporter, err := export.NewExporter(exportFormat)
	if err != nil {
		return err
	}

	if err := a.dir.Load(ctx, args[0]); err != nil {
		return err
	}
	messages := a.active.Messages()
	if len(messages) == 0 {
		return fmt.Errorf("session has no messages to export")
	}

	path := exportOut
	if path == "" {
		path = export.DefaultFilename(a.active.GroupName(), exporter.Extension(), time.Now())
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	if err := exporter.Export(a.active.GroupName(), messages, f); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	fmt.Printf("Exported %d messages to %s\n", len(messages), path)
	return nil
}
