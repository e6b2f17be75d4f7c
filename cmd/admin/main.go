package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tendant/schema-content/internal/logger"
	"github.com/tendant/schema-content/pkg/schemacontent"
	"github.com/tendant/schema-content/pkg/schemacontent/config"
	"go.uber.org/zap"
)

var (
	repo      schemacontent.Repository
	closeRepo = func() {}
	log       = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "Schema content admin CLI",
	Long: `Schema content admin CLI

An admin tool for the content repository that only requires database access.
Configuration is read from the environment (and a .env file in the current
directory); see "admin env" for the variables.

Examples:
  admin indexes ensure
  admin stats --app <uuid> --schema <uuid>
  admin query --app <uuid> --schema <uuid> --filter "data/title/iv eq 'Hello'"
  admin scan --app <uuid> --schema <uuid> --status Archived --dry-run`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "env" || cmd.Name() == "help" {
			return nil
		}

		cfg, err := config.Load(config.WithEnv())
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		l, err := logger.New(cfg.Environment)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		log = l

		r, closeFn, err := cfg.BuildRepository(cmd.Context(), log)
		if err != nil {
			return fmt.Errorf("failed to build repository: %w", err)
		}
		repo, closeRepo = r, closeFn
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeRepo()
		_ = log.Sync()
	},
}

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Describe the environment variables read by the commands",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(config.Usage())
	},
}

func init() {
	rootCmd.AddCommand(envCmd)
	rootCmd.AddCommand(indexesCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(scanCmd)
}

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
