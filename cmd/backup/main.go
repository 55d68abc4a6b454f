package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/semmidev/sqlkeep/internal/app"
	"github.com/semmidev/sqlkeep/internal/config"
)

var (
	cfgFile    string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "sqlkeep",
	Short: "Scheduled logical backups of MySQL databases",
	Long: `sqlkeep writes restorable SQL scripts of MySQL schemas, keeps them under a
retention policy and mirrors them to FTP, S3, Google Drive or Telegram.

Examples:
  # Run the scheduler for every enabled database
  sqlkeep serve --config=configs/config.yaml

  # Take a backup of one database right now
  sqlkeep run shop

  # Check that an artifact is complete
  sqlkeep verify shop backup_shop_2024-01-02_03-04-05.sql.gz`,
	SilenceUsage: true,
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "configs/config.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
}

// openApp loads the config and connects the named databases, or every
// enabled database when names is empty.
func openApp(cmd *cobra.Command, names ...string) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	application, err := app.New(cmd.Context(), cfg, names...)
	if err != nil {
		return nil, fmt.Errorf("initialize app: %w", err)
	}
	return application, nil
}
