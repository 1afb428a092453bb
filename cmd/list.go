package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"imageorganizer/internal/models"
)

var (
	listJSON   bool
	listOrigin string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List duplicate groups from the last scans",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openCatalog()
		if err != nil {
			return err
		}
		defer st.Close()

		groups, err := st.GetGroups()
		if err != nil {
			return fmt.Errorf("failed to load groups: %w", err)
		}

		if listOrigin != "" {
			filtered := groups[:0]
			for _, g := range groups {
				if len(g.Members) > 0 && string(g.Members[0].Origin) == listOrigin {
					filtered = append(filtered, g)
				}
			}
			groups = filtered
		}

		if listJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(groups)
		}

		if len(groups) == 0 {
			fmt.Println("No duplicate groups found. Run 'imageorganizer scan' first.")
			return nil
		}

		var reclaimable int64
		duplicates := 0
		for _, g := range groups {
			printGroup(g)
			for _, m := range g.DeleteCandidates() {
				duplicates++
				reclaimable += m.SizeBytes
			}
		}

		fmt.Printf("%d groups, %d redundant copies, %s reclaimable\n", len(groups), duplicates, formatSize(reclaimable))
		return nil
	},
}

func printGroup(g *models.DuplicateGroup) {
	label := "exact"
	if g.Kind == models.MatchNear {
		label = fmt.Sprintf("near, max distance %d", g.MaxInternalDistance)
	}
	fmt.Printf("Group %d (%s, %d members):\n", g.ID, label, len(g.Members))

	for _, m := range g.Members {
		mark := " "
		switch g.Decision(m) {
		case models.DecisionKeep:
			mark = "✓"
		case models.DecisionDelete:
			mark = "✗"
		case models.DecisionSkip:
			mark = "-"
		}

		res := ""
		if m.Width > 0 && m.Height > 0 {
			res = fmt.Sprintf(" %dx%d", m.Width, m.Height)
		}
		fmt.Printf("  %s [%s] %s (%s%s)\n", mark, m.Origin, m.SourceID, formatSize(m.SizeBytes), res)
	}
	fmt.Println()
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output groups as JSON")
	listCmd.Flags().StringVar(&listOrigin, "origin", "", "Filter groups by origin (local or remote)")
	rootCmd.AddCommand(listCmd)
}
