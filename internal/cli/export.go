package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BenjaminSRussell/shopscout/internal/export"
	"github.com/BenjaminSRussell/shopscout/internal/storage"
	"github.com/BenjaminSRussell/shopscout/internal/types"
)

var (
	exportFormat string
	outputFile   string
	exportFrom   string
	exportFailed bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recorded crawls",
	Long:  `Export recorded crawls to JSON, JSONL or CSV`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(exportFormat, outputFile)
		if err != nil {
			return err
		}

		records, err := loadRecords()
		if err != nil {
			return err
		}

		exporter, err := export.NewExporter(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		if err := exporter.Export(records, format, outputFile); err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Successfully exported %d crawls to %s\n", len(records), outputFile)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "json/jsonl/csv (default from the output extension)")
	exportCmd.Flags().StringVar(&outputFile, "output", "crawls.json", "Output file path, relative to the data directory")
	exportCmd.Flags().StringVar(&exportFrom, "from", "sqlite", "Record source: sqlite or jsonl")
	exportCmd.Flags().BoolVar(&exportFailed, "failed", false, "Only failed crawls")
}

func loadRecords() ([]types.CrawlRecord, error) {
	switch exportFrom {
	case "sqlite":
		db, err := openHistory()
		if err != nil {
			return nil, err
		}
		defer db.Close()
		return db.QueryRecords(storage.Filter{FailedOnly: exportFailed})
	case "jsonl":
		records, err := storage.LoadRecords(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to read crawl log: %w", err)
		}
		if !exportFailed {
			return records, nil
		}
		failed := records[:0]
		for _, r := range records {
			if r.Error != "" {
				failed = append(failed, r)
			}
		}
		return failed, nil
	}
	return nil, fmt.Errorf("unknown record source %q", exportFrom)
}
