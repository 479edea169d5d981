package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BenjaminSRussell/shopscout/internal/crawler"
	"github.com/BenjaminSRussell/shopscout/internal/seeding"
)

var (
	batchFile        string
	batchSitemap     string
	sitemapLimit     int
	batchConcurrency int
	metricsAddr      string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Crawl every product URL in a file",
	Long: `Crawl product URLs read from a file, one per line, or discovered from a
shop's sitemaps. Blank lines and lines starting with # are ignored.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var urls []string
		if batchFile != "" {
			fromFile, err := readURLs(batchFile)
			if err != nil {
				return err
			}
			urls = append(urls, fromFile...)
		}
		if batchSitemap != "" {
			found, err := seeding.NewDiscoverer(&http.Client{Timeout: cfg.HTTPTimeout()}).
				Discover(cmd.Context(), batchSitemap, 0)
			if err != nil {
				return fmt.Errorf("sitemap discovery failed: %w", err)
			}
			products := seeding.ProductURLs(found)
			if sitemapLimit > 0 && len(products) > sitemapLimit {
				products = products[:sitemapLimit]
			}
			zap.L().Info("product URLs discovered", zap.Int("pages", len(found)), zap.Int("products", len(products)))
			urls = append(urls, products...)
		}
		if len(urls) == 0 {
			return fmt.Errorf("no URLs to crawl")
		}

		if cmd.Flags().Changed("concurrency") {
			cfg.Crawl.BatchConcurrency = batchConcurrency
		}
		if cmd.Flags().Changed("metrics-addr") {
			cfg.Crawl.MetricsAddr = metricsAddr
		}

		c, res, err := crawler.NewFromConfig(cfg)
		if err != nil {
			return fmt.Errorf("failed to create crawler: %w", err)
		}
		defer res.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if addr := cfg.Crawl.MetricsAddr; addr != "" {
			srv := serveMetrics(addr)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		if res.Proxies != nil {
			healthy := res.Proxies.Validate(ctx)
			zap.L().Info("proxies validated", zap.Int("healthy", healthy), zap.Int("total", res.Proxies.Len()))
		}

		out := cmd.OutOrStdout()
		var mu sync.Mutex
		results, err := c.CrawlBatch(ctx, urls, cfg.Credentials, cfg.Crawl.BatchConcurrency, func(it crawler.BatchItem) {
			mu.Lock()
			defer mu.Unlock()
			switch {
			case it.Err != nil:
				fmt.Fprintf(out, "FAIL  %s  %s: %v\n", it.URL, crawler.ErrorKind(it.Err), it.Err)
			case it.Cached:
				fmt.Fprintf(out, "CACHE %s  %s\n", it.URL, it.Product.Title)
			default:
				fmt.Fprintf(out, "OK    %s  %s [%s]\n", it.URL, it.Product.Title, it.Product.SourceConfidence)
			}
		})

		fmt.Fprintf(out, "\nBatch completed!\n")
		fmt.Fprintf(out, "Total: %d, Succeeded: %d, Failed: %d, Cached: %d\n",
			results.Total, results.Succeeded, results.Failed, results.Cached)
		if err != nil {
			return fmt.Errorf("batch interrupted: %w", err)
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "File with one URL per line")
	batchCmd.Flags().StringVar(&batchSitemap, "sitemap", "", "Discover product URLs from this site's sitemaps")
	batchCmd.Flags().IntVar(&sitemapLimit, "sitemap-limit", 100, "Maximum products taken from sitemaps (0 for all)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 2, "Crawls in flight")
	batchCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")

	batchCmd.MarkFlagsOneRequired("file", "sitemap")
}

func readURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open URL file: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read URL file: %w", err)
	}
	return urls, nil
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("metrics server failed", zap.Error(err))
		}
	}()
	zap.L().Info("serving metrics", zap.String("addr", addr))
	return srv
}
