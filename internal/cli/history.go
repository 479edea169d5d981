package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/BenjaminSRussell/shopscout/internal/storage"
	"github.com/BenjaminSRussell/shopscout/internal/types"
)

var (
	historyStoreType string
	historyLimit     int
	historyFailed    bool
	historyStats     bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded crawls",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		out := cmd.OutOrStdout()
		if historyStats {
			stats, err := db.GetStats()
			if err != nil {
				return fmt.Errorf("failed to read stats: %w", err)
			}
			printStats(out, stats)
			return nil
		}

		records, err := db.QueryRecords(storage.Filter{
			StoreType:  types.StoreType(historyStoreType),
			FailedOnly: historyFailed,
			Limit:      historyLimit,
		})
		if err != nil {
			return fmt.Errorf("failed to query crawl history: %w", err)
		}
		printRecords(out, records)
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyStoreType, "store-type", "", "Only crawls of this store type, e.g. smartstore")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of crawls")
	historyCmd.Flags().BoolVar(&historyFailed, "failed", false, "Only failed crawls")
	historyCmd.Flags().BoolVar(&historyStats, "stats", false, "Print totals instead of crawls")
}

func openHistory() (*storage.SQLiteStorage, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := storage.NewSQLiteStorage(cfg.SQLitePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open crawl history: %w", err)
	}
	return db, nil
}

func printRecords(w io.Writer, records []types.CrawlRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No crawls recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tSTORE\tSOURCE\tIMAGES\tELAPSED\tRESULT")
	for _, r := range records {
		result := r.Title
		if r.Error != "" {
			result = r.ErrorKind + ": " + r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.CrawledAt.Local().Format("2006-01-02 15:04"), r.StoreType, r.Source,
			r.ImageCount, r.Elapsed.Round(time.Millisecond), result)
	}
	tw.Flush()
}

func printStats(w io.Writer, stats map[string]interface{}) {
	fmt.Fprintf(w, "Total: %v, Succeeded: %v, Failed: %v\n",
		stats["total_crawls"], stats["successful_crawls"], stats["failed_crawls"])

	bySource, _ := stats["by_source"].(map[string]int)
	sources := make([]string, 0, len(bySource))
	for s := range bySource {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	for _, s := range sources {
		fmt.Fprintf(w, "  %-12s %d\n", s, bySource[s])
	}
}
