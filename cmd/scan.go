package cmd

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"imageorganizer/internal/cluster"
	"imageorganizer/internal/models"
	"imageorganizer/internal/rank"
	"imageorganizer/internal/source"
	"imageorganizer/internal/source/local"
	"imageorganizer/internal/storage"
)

var (
	scanWorkers   int
	scanThreshold int
)

var scanCmd = &cobra.Command{
	Use:   "scan <folder> [folder...]",
	Short: "Scan local folders for duplicate and near-duplicate images",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workers := cfg.Scan.Workers
		if cmd.Flags().Changed("workers") {
			workers = scanWorkers
		}
		threshold := cfg.Scan.Threshold
		if cmd.Flags().Changed("threshold") {
			threshold = scanThreshold
		}

		adapter := local.New(args,
			local.WithWorkers(workers),
			local.WithProgress(func(scanned, total int, current string) {
				fmt.Printf("\rFingerprinting %d/%d: %s", scanned, total, truncatePath(current, 50))
			}),
		)

		return runScan(cmd, adapter, threshold, strings.Join(args, ", "))
	},
}

// runScan is the enumerate, persist, cluster, rank pipeline shared by
// the local and remote scan commands.
func runScan(cmd *cobra.Command, adapter source.Adapter, threshold int, target string) error {
	records, err := adapter.Enumerate(cmd.Context())
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	fmt.Println()

	st, err := openCatalog()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SaveRecords(records); err != nil {
		return fmt.Errorf("failed to save records: %w", err)
	}

	groups := cluster.New(threshold).Cluster(records)
	rank.New(
		rank.WithWeights(cfg.Rank.ResolutionWeight, cfg.Rank.SizeWeight),
		rank.WithProtected(cfg.Scopes()),
	).RankAll(groups)

	if err := st.ReplaceGroups(adapter.Origin(), groups); err != nil {
		return fmt.Errorf("failed to save groups: %w", err)
	}

	printScanSummary(st, adapter.Origin(), target, records, groups)
	return nil
}

func printScanSummary(st *storage.Storage, origin models.Origin, target string, records []*models.ImageRecord, groups []*models.DuplicateGroup) {
	duplicates := 0
	var reclaimable int64
	for _, g := range groups {
		for _, m := range g.DeleteCandidates() {
			duplicates++
			reclaimable += m.SizeBytes
		}
	}

	if err := st.RecordScan(origin, target, len(records), len(groups), duplicates); err != nil {
		log.Warnf("failed to record scan history: %v", err)
	}

	failed := 0
	for _, r := range records {
		if r.FingerprintFailed {
			failed++
		}
	}

	fmt.Printf("\nScanned %d images, found %d duplicate groups\n", len(records), len(groups))
	if failed > 0 {
		fmt.Printf("%d images could not be fingerprinted (exact matching only)\n", failed)
	}
	if duplicates > 0 {
		fmt.Printf("%d redundant copies, %s reclaimable\n", duplicates, formatSize(reclaimable))
		fmt.Println("\nRun 'imageorganizer list' to review groups, 'imageorganizer stage' to stage removals.")
	}
}

func truncatePath(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max+3:]
}

func init() {
	scanCmd.Flags().IntVar(&scanWorkers, "workers", 8, "Number of fingerprinting workers")
	scanCmd.Flags().IntVar(&scanThreshold, "threshold", cluster.DefaultThreshold, "Hamming distance threshold for near-duplicates (0-64)")
	rootCmd.AddCommand(scanCmd)
}
