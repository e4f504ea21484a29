package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/inboxkeeper/internal/core/db"
	"github.com/solatis/inboxkeeper/internal/types"
)

// exportTimeLayout stamps export file names.
const exportTimeLayout = "2006-01-02_15-04-05"

var exportLinksCmd = &cobra.Command{
	Use:   "export-links",
	Short: "Write extracted links to a timestamped CSV file",
	RunE:  runExportLinks,
}

func init() {
	rootCmd.AddCommand(exportLinksCmd)
	exportLinksCmd.Flags().String("run", "", "export only the links of this run ID")
	exportLinksCmd.Flags().String("output-dir", "", "directory for the CSV file")
	exportLinksCmd.Flags().Bool("with-source", false, "add run and message columns")
}

// exportFileName names a link export created at t.
func exportFileName(t time.Time) string {
	return fmt.Sprintf("extracted_links_%s.csv", t.Format(exportTimeLayout))
}

// writeLinksCSV writes a Link header followed by one row per link.
func writeLinksCSV(w io.Writer, links []db.LinkRow, withSource bool) error {
	cw := csv.NewWriter(w)
	header := []string{"Link"}
	if withSource {
		header = append(header, "Run", "Message", "Extracted At")
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, l := range links {
		row := []string{l.URL}
		if withSource {
			row = append(row, l.RunID, l.MessageID, l.CreatedAt.UTC().Format(time.RFC3339))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func runExportLinks(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	outputDir := cfg.Organizer.OutputDir
	if cmd.Flags().Changed("output-dir") {
		outputDir, _ = cmd.Flags().GetString("output-dir")
	}
	run, _ := cmd.Flags().GetString("run")
	withSource, _ := cmd.Flags().GetBool("with-source")

	var runID types.RunID
	if run != "" {
		if runID, err = types.ParseRunID(run); err != nil {
			return err
		}
	}

	store, err := openStore(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	links, err := store.Links(context.Background(), runID)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(outputDir, exportFileName(time.Now()))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := writeLinksCSV(f, links, withSource); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d links to %s\n", len(links), path)
	return nil
}
