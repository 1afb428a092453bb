package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"imageorganizer/internal/models"
)

var undoAll bool

var undoCmd = &cobra.Command{
	Use:   "undo [operation-id...]",
	Short: "Restore staged files to their original location",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !undoAll {
			return fmt.Errorf("nothing selected: pass operation ids or --all")
		}

		l, store, err := newLedger(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		ids := args
		if undoAll {
			staged, err := l.List(models.StateStaged)
			if err != nil {
				return fmt.Errorf("failed to list staged operations: %w", err)
			}
			ids = ids[:0]
			for _, op := range staged {
				ids = append(ids, op.OperationID)
			}
		}
		if len(ids) == 0 {
			fmt.Println("No staged operations to undo.")
			return nil
		}

		undone, failed := 0, 0
		for _, id := range ids {
			if err := l.Undo(cmd.Context(), id); err != nil {
				log.Errorf("failed to undo %s: %v", id, err)
				failed++
				continue
			}
			fmt.Printf("restored %s\n", id)
			undone++
		}

		fmt.Printf("\n%d operations undone, %d failed\n", undone, failed)
		if failed > 0 {
			return fmt.Errorf("%d operations could not be undone", failed)
		}
		return nil
	},
}

func init() {
	undoCmd.Flags().BoolVar(&undoAll, "all", false, "Undo every staged operation")
	rootCmd.AddCommand(undoCmd)
}
