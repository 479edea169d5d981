package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BenjaminSRussell/shopscout/internal/crawler"
)

var (
	articleURL  string
	articleJSON bool
)

var articleCmd = &cobra.Command{
	Use:   "article",
	Short: "Fetch the text of a blog post, news article or product page",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg.Store.Enabled = false

		c, res, err := crawler.NewFromConfig(cfg)
		if err != nil {
			return fmt.Errorf("failed to create crawler: %w", err)
		}
		defer res.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := c.FetchArticle(ctx, articleURL, cfg.Credentials)
		if err != nil {
			return fmt.Errorf("article fetch failed: %w", err)
		}

		out := cmd.OutOrStdout()
		if articleJSON {
			return writeJSON(out, a)
		}
		fmt.Fprintf(out, "%s\n", a.Title)
		if a.PublishedAt != "" {
			fmt.Fprintf(out, "Published: %s\n", a.PublishedAt)
		}
		fmt.Fprintf(out, "\n%s\n", a.Content)
		return nil
	},
}

func init() {
	articleCmd.Flags().StringVar(&articleURL, "url", "", "Article URL (required)")
	articleCmd.Flags().BoolVar(&articleJSON, "json", false, "Print the article as JSON")

	articleCmd.MarkFlagRequired("url")
}
