package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"imageorganizer/internal/models"
)

var decideCmd = &cobra.Command{
	Use:   "decide <origin> <source-id> <keep|delete|skip>",
	Short: "Override the decision for one group member",
	Long: `decide overrides the recommended decision for a single record before
staging. origin is 'local' or 'remote'; source-id is the path shown by
'list' for local records or the provider file id for remote ones.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		origin := models.Origin(args[0])
		if origin != models.OriginLocal && origin != models.OriginRemote {
			return fmt.Errorf("invalid origin %q: use local or remote", args[0])
		}

		decision := models.Decision(args[2])
		switch decision {
		case models.DecisionKeep, models.DecisionDelete, models.DecisionSkip:
		default:
			return fmt.Errorf("invalid decision %q: use keep, delete or skip", args[2])
		}

		st, err := openCatalog()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.SetDecision(origin, args[1], decision); err != nil {
			return fmt.Errorf("failed to set decision: %w", err)
		}

		fmt.Printf("%s [%s] marked %s\n", args[1], origin, decision)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(decideCmd)
}
