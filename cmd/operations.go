package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"imageorganizer/internal/models"
)

var (
	opsState     string
	opsJSON      bool
	opsPruneDays int
)

var operationsCmd = &cobra.Command{
	Use:   "operations",
	Short: "Show the staging ledger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch opsState {
		case "", string(models.StateStaged), string(models.StateConfirmed), string(models.StateUndone):
		default:
			return fmt.Errorf("invalid state %q: use staged, confirmed or undone", opsState)
		}

		l, store, err := newLedger(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		if cmd.Flags().Changed("prune") {
			if opsPruneDays < 1 {
				return fmt.Errorf("--prune needs a positive number of days")
			}
			pruned, err := l.Prune(cfg.Staging.Dir, time.Duration(opsPruneDays)*24*time.Hour)
			if err != nil {
				return fmt.Errorf("prune failed: %w", err)
			}
			fmt.Printf("pruned %d staging directories older than %d days\n", pruned, opsPruneDays)
			return nil
		}

		ops, err := l.List(models.OperationState(opsState))
		if err != nil {
			return fmt.Errorf("failed to list operations: %w", err)
		}

		if opsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(ops)
		}

		if len(ops) == 0 {
			fmt.Println("No operations in the ledger.")
			return nil
		}

		for _, op := range ops {
			fmt.Printf("%s  %-9s  [%s] %s (%s)\n",
				op.OperationID, op.State, op.Origin, op.DisplayName, formatSize(op.SizeBytes))
			fmt.Printf("    staged %s  from %s\n", op.CreatedAt.Format("2006-01-02 15:04"), op.OriginalLocation)
			if op.Reason != "" {
				fmt.Printf("    reason: %s\n", op.Reason)
			}
			if op.FailureReason != "" {
				fmt.Printf("    last failure: %s\n", op.FailureReason)
			}
		}
		fmt.Printf("\n%d operations\n", len(ops))
		return nil
	},
}

func init() {
	operationsCmd.Flags().StringVar(&opsState, "state", "", "Filter by state (staged, confirmed, undone)")
	operationsCmd.Flags().BoolVar(&opsJSON, "json", false, "Output operations as JSON")
	operationsCmd.Flags().IntVar(&opsPruneDays, "prune", 0, "Remove staging directories of terminal operations older than N days")
	rootCmd.AddCommand(operationsCmd)
}
