package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BenjaminSRussell/shopscout/internal/crawler"
	"github.com/BenjaminSRussell/shopscout/internal/types"
)

var (
	crawlURL  string
	crawlJSON bool
	crawlSave bool
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Extract one product",
	Long:  `Resolve a product URL and run the extraction stages until one succeeds`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// one-off crawls only reach the history when asked to
		cfg.Store.Enabled = crawlSave

		c, res, err := crawler.NewFromConfig(cfg)
		if err != nil {
			return fmt.Errorf("failed to create crawler: %w", err)
		}
		defer res.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, err := c.CrawlProduct(ctx, types.CrawlTarget{URL: crawlURL, Credentials: cfg.Credentials})
		if err != nil {
			return fmt.Errorf("crawl failed: %w", err)
		}

		if crawlJSON {
			return writeJSON(cmd.OutOrStdout(), p)
		}
		printProduct(cmd.OutOrStdout(), p)
		return nil
	},
}

func init() {
	crawlCmd.Flags().StringVar(&crawlURL, "url", "", "Product URL (required)")
	crawlCmd.Flags().BoolVar(&crawlJSON, "json", false, "Print the product as JSON")
	crawlCmd.Flags().BoolVar(&crawlSave, "save", false, "Record the crawl in the data directory")

	crawlCmd.MarkFlagRequired("url")
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printProduct(w io.Writer, p *types.ExtractedProduct) {
	fmt.Fprintf(w, "Title:   %s\n", p.Title)
	fmt.Fprintf(w, "Source:  %s\n", p.SourceConfidence)
	fmt.Fprintf(w, "Store:   %s", p.Identity.StoreType)
	if p.Identity.ProductID != "" {
		fmt.Fprintf(w, " (product %s)", p.Identity.ProductID)
	}
	fmt.Fprintln(w)
	if p.Price != "" {
		fmt.Fprintf(w, "Price:   %s\n", p.Price)
	}
	if p.Brand != "" {
		fmt.Fprintf(w, "Brand:   %s\n", p.Brand)
	}
	if p.MallName != "" {
		fmt.Fprintf(w, "Mall:    %s\n", p.MallName)
	}
	fmt.Fprintf(w, "Images:  %d\n", len(p.Images))
	fmt.Fprintf(w, "Reviews: %d\n", len(p.Reviews))
	if p.Spec != "" {
		fmt.Fprintf(w, "\n%s\n", p.Spec)
	}
	for i, r := range p.Reviews {
		fmt.Fprintf(w, "\n[review %d] %s\n", i+1, strings.TrimSpace(r))
	}
}
