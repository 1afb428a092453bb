package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"imageorganizer/internal/config"
	"imageorganizer/internal/logging"
)

var (
	cfgPath  string
	logLevel string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "imageorganizer",
	Short: "Find and safely remove duplicate images, locally and in a remote store",
	Long: `imageorganizer locates duplicate and near-duplicate images across the
local filesystem and a remote cloud store, and removes redundant copies
through a reversible staging step with a full audit trail.

Exact duplicates are detected by content hash, near-duplicates by
perceptual hash distance. Nothing is deleted directly: files are first
staged (local staging area or remote trash), every operation is recorded
in a ledger, and destruction requires a separate explicit confirmation.

Example usage:
  imageorganizer scan ./photos          # Scan a local folder
  imageorganizer remote scan            # Scan the configured remote store
  imageorganizer list                   # Show duplicate groups
  imageorganizer reconcile              # Cross-source duplicates
  imageorganizer stage --all            # Stage redundant copies
  imageorganizer operations             # Inspect the ledger
  imageorganizer undo <operation-id>    # Restore a staged file`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		logging.Init(cfg.Log.Level)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to config file (default ~/.imageorganizer/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
}
