package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"imageorganizer/internal/ledger"
	"imageorganizer/internal/models"
)

var (
	confirmToken string
	confirmAll   bool
)

var confirmCmd = &cobra.Command{
	Use:   "confirm [operation-id...]",
	Short: "Permanently dispose of staged files",
	Long: `confirm finalizes staged operations: local files move from the staging
area to the system trash, remote files stay in the provider trash.
Confirmed operations can no longer be undone.

Confirmation requires typing the token DELETE, either interactively or
via --token.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !confirmAll {
			return fmt.Errorf("nothing selected: pass operation ids or --all")
		}

		l, store, err := newLedger(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		ids := args
		if confirmAll {
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
			fmt.Println("No staged operations to confirm.")
			return nil
		}

		token := confirmToken
		if token == "" {
			fmt.Printf("About to permanently dispose of %d staged files. This cannot be undone.\n", len(ids))
			fmt.Printf("Type %s to proceed: ", ledger.ConfirmToken)
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("failed to read confirmation: %w", err)
			}
			token = strings.TrimSpace(line)
		}

		confirmed, failed := 0, 0
		for _, id := range ids {
			if err := l.Confirm(cmd.Context(), id, token); err != nil {
				log.Errorf("failed to confirm %s: %v", id, err)
				failed++
				continue
			}
			fmt.Printf("confirmed %s\n", id)
			confirmed++
		}

		fmt.Printf("\n%d operations confirmed, %d failed\n", confirmed, failed)
		if failed > 0 {
			return fmt.Errorf("%d operations could not be confirmed", failed)
		}
		return nil
	},
}

func init() {
	confirmCmd.Flags().StringVar(&confirmToken, "token", "", "Confirmation token (skips the interactive prompt)")
	confirmCmd.Flags().BoolVar(&confirmAll, "all", false, "Confirm every staged operation")
	rootCmd.AddCommand(confirmCmd)
}
