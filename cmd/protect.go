package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"imageorganizer/internal/config"
)

var protectCmd = &cobra.Command{
	Use:   "protect [pattern]",
	Short: "Manage protected folders that are never staged",
	Long: `protect marks folders whose images must never be staged for deletion.
Patterns match case-insensitively as substrings of the local path, or of
the remote parent folder reference or file name.

Without arguments, lists the current protected patterns.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			if len(cfg.Protected) == 0 {
				fmt.Println("No protected patterns configured.")
				return nil
			}
			for _, p := range cfg.Protected {
				fmt.Println(p)
			}
			return nil
		}

		pattern := strings.TrimSpace(args[0])
		if pattern == "" {
			return fmt.Errorf("empty pattern")
		}
		for _, p := range cfg.Protected {
			if strings.EqualFold(p, pattern) {
				fmt.Printf("%q is already protected\n", pattern)
				return nil
			}
		}

		cfg.Protected = append(cfg.Protected, pattern)
		if err := config.Save(cfg, cfgPath); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Printf("protected %q\n", pattern)
		return nil
	},
}

var unprotectCmd = &cobra.Command{
	Use:   "unprotect <pattern>",
	Short: "Remove a protected pattern",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern := strings.TrimSpace(args[0])

		kept := cfg.Protected[:0]
		removed := false
		for _, p := range cfg.Protected {
			if strings.EqualFold(p, pattern) {
				removed = true
				continue
			}
			kept = append(kept, p)
		}
		if !removed {
			return fmt.Errorf("%q is not protected", pattern)
		}

		cfg.Protected = kept
		if err := config.Save(cfg, cfgPath); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Printf("unprotected %q\n", pattern)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(protectCmd)
	rootCmd.AddCommand(unprotectCmd)
}
