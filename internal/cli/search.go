package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/BenjaminSRussell/shopscout/internal/searchapi"
)

var (
	searchQuery   string
	searchKind    string
	searchDisplay int
	searchContent bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Query the official search API",
	Long:  `Query one search vertical, or blog, news and web together with --content`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := searchapi.New(cfg.Search, cfg.Credentials)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if searchContent {
			content, err := client.SearchContent(cmd.Context(), searchQuery)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			printItems(out, "blog", content.Blogs)
			printItems(out, "news", content.News)
			printItems(out, "web", content.Web)
			return nil
		}

		kind, err := searchapi.ParseKind(searchKind)
		if err != nil {
			return err
		}
		items, err := client.Search(cmd.Context(), searchQuery, kind, searchDisplay)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		printItems(out, string(kind), items)
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchQuery, "query", "", "Search query (required)")
	searchCmd.Flags().StringVar(&searchKind, "kind", "shop", "Vertical: shop/image/blog/news/web")
	searchCmd.Flags().IntVar(&searchDisplay, "display", 10, "Number of results (1-100)")
	searchCmd.Flags().BoolVar(&searchContent, "content", false, "Search blog, news and web at once")

	searchCmd.MarkFlagRequired("query")
}

func printItems(w io.Writer, label string, items []searchapi.Item) {
	fmt.Fprintf(w, "%s: %d results\n", label, len(items))
	for i, it := range items {
		fmt.Fprintf(w, "%3d. %s\n     %s\n", i+1, it.Title, it.Link)
		switch {
		case it.LowPrice != "":
			fmt.Fprintf(w, "     %s원 %s\n", it.LowPrice, it.MallName)
		case it.Width > 0:
			fmt.Fprintf(w, "     %dx%d\n", it.Width, it.Height)
		}
	}
}
