package main

import (
	"fmt"
	"os"

	"github.com/quillpad/quillpad/internal/config"
	"github.com/quillpad/quillpad/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "quillctl",
	Short: "Maintenance commands for the quillpad notes service",
	Long: `quillctl reads the same environment and .env file as the server and
operates on the store and object storage selected there.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := os.Getenv("LOG_LEVEL")
		if verbose {
			level = "debug"
		}
		logger.Init(level)

		c, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}
