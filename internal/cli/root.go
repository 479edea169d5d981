package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BenjaminSRussell/shopscout/internal/config"
)

var (
	cfgFile  string
	logLevel string
	dataDir  string

	// cfg is loaded once per invocation by the root pre-run hook
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "shopscout",
	Short: "Product and article scraper for Korean marketplaces",
	Long: `shopscout extracts product data from Smart Store, Brand Store, Coupang,
Gmarket and other shops by escalating through cheap HTTP, a stealth browser,
the mobile API and the official search API until one of them succeeds.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level = logLevel
		}
		if cmd.Flags().Changed("data-dir") {
			loaded.DataDir = dataDir
		}
		if err := config.InitLogger(loaded.Log); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./shopscout.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug/info/warn/error")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "Data storage directory")

	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(articleCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(exportCmd)
}
