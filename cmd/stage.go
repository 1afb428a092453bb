package cmd

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"imageorganizer/internal/ledger"
	"imageorganizer/internal/models"
)

var (
	stageGroup  int
	stageAll    bool
	stageDryRun bool
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Stage redundant copies for deletion",
	Long: `stage moves the redundant members of duplicate groups out of the way:
local files into the staging area, remote files into the provider trash.
Nothing is destroyed. Every staged file gets a ledger entry and can be
restored with 'undo' until it is confirmed.

The recommended keeper of each group is never staged, and neither are
skipped or protected members. Use --group to stage one group, --all for
every group in the catalog.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !stageAll && !cmd.Flags().Changed("group") {
			return fmt.Errorf("nothing selected: pass --group <id> or --all")
		}

		st, err := openCatalog()
		if err != nil {
			return err
		}
		defer st.Close()

		groups, err := st.GetGroups()
		if err != nil {
			return fmt.Errorf("failed to load groups: %w", err)
		}

		var selected []*models.DuplicateGroup
		if stageAll {
			selected = groups
		} else {
			for _, g := range groups {
				if g.ID == stageGroup {
					selected = append(selected, g)
					break
				}
			}
			if len(selected) == 0 {
				return fmt.Errorf("group %d not found", stageGroup)
			}
		}

		if stageDryRun {
			var total int64
			count := 0
			for _, g := range selected {
				for _, m := range g.DeleteCandidates() {
					fmt.Printf("would stage [%s] %s (%s)\n", m.Origin, m.SourceID, formatSize(m.SizeBytes))
					count++
					total += m.SizeBytes
				}
			}
			fmt.Printf("%d files, %s\n", count, formatSize(total))
			return nil
		}

		l, store, err := newLedger(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		staged, skipped := 0, 0
		var stagedBytes int64
		for _, g := range selected {
			keep := "?"
			if g.RecommendedKeep != nil {
				keep = g.RecommendedKeep.DisplayName
			}
			for _, m := range g.DeleteCandidates() {
				reason := fmt.Sprintf("duplicate of %s (group %d)", keep, g.ID)
				opID, err := l.Stage(cmd.Context(), m, reason)
				switch {
				case errors.Is(err, ledger.ErrAlreadyStaged):
					log.Debugf("already staged: %s", m.SourceID)
					skipped++
				case errors.Is(err, ledger.ErrProtected):
					log.Infof("protected, skipping: %s", m.SourceID)
					skipped++
				case err != nil:
					log.Errorf("failed to stage %s: %v", m.SourceID, err)
					skipped++
				default:
					fmt.Printf("staged %s (%s) as %s\n", m.SourceID, formatSize(m.SizeBytes), opID)
					staged++
					stagedBytes += m.SizeBytes
				}
			}
		}

		fmt.Printf("\n%d files staged (%s), %d skipped\n", staged, formatSize(stagedBytes), skipped)
		if staged > 0 {
			fmt.Println("Review with 'imageorganizer operations', restore with 'undo', destroy with 'confirm'.")
		}
		return nil
	},
}

func init() {
	stageCmd.Flags().IntVar(&stageGroup, "group", 0, "Stage the redundant members of one group")
	stageCmd.Flags().BoolVar(&stageAll, "all", false, "Stage the redundant members of every group")
	stageCmd.Flags().BoolVar(&stageDryRun, "dry-run", false, "Show what would be staged without moving anything")
	rootCmd.AddCommand(stageCmd)
}
