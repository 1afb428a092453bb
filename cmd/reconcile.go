package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"imageorganizer/internal/models"
	"imageorganizer/internal/reconcile"
)

var reconcileJSON bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Find images that exist both locally and in the remote store",
	Long: `reconcile compares the cataloged local and remote records by content
hash and reports images present on both sides. Run 'scan' and
'remote scan' first to populate the catalog.

Matching is exact-only: provider checksums are compared against local
content hashes, so only byte-identical copies are reported.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openCatalog()
		if err != nil {
			return err
		}
		defer st.Close()

		local, err := st.GetRecords(models.OriginLocal)
		if err != nil {
			return fmt.Errorf("failed to load local records: %w", err)
		}
		remote, err := st.GetRecords(models.OriginRemote)
		if err != nil {
			return fmt.Errorf("failed to load remote records: %w", err)
		}

		matches, stats := reconcile.Reconcile(local, remote)

		if reconcileJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Matches []*models.CrossSourceMatch `json:"matches"`
				Stats   *models.ReconcileStats     `json:"stats"`
			}{matches, stats})
		}

		if len(local) == 0 || len(remote) == 0 {
			fmt.Println("Catalog is missing one side. Run 'imageorganizer scan' and 'imageorganizer remote scan' first.")
			return nil
		}

		if len(matches) == 0 {
			fmt.Println("No images found in both sources.")
			return nil
		}

		for _, m := range matches {
			fmt.Printf("%s (%d copies, %s reclaimable)\n", m.DisplayName, m.TotalMembers(), formatSize(m.ReclaimableBytes()))
			for _, r := range m.LocalMembers {
				fmt.Printf("  [local]  %s (%s)\n", r.SourceID, formatSize(r.SizeBytes))
			}
			for _, r := range m.RemoteMembers {
				fmt.Printf("  [remote] %s (%s)\n", r.DisplayName, formatSize(r.SizeBytes))
			}
			fmt.Println()
		}

		fmt.Printf("%d matches across sources: %s local, %s remote, %s reclaimable\n",
			stats.Groups, formatSize(stats.LocalBytes), formatSize(stats.RemoteBytes), formatSize(stats.ReclaimableBytes))
		return nil
	},
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileJSON, "json", false, "Output matches as JSON")
	rootCmd.AddCommand(reconcileCmd)
}
