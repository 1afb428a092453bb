package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"imageorganizer/internal/source/remote"
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Operate on the configured remote image store",
}

var remoteThumbnails bool

var remoteScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Enumerate the remote store and find duplicate groups",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := remoteClient()
		if err != nil {
			return err
		}

		fetchThumbs := cfg.Remote.FetchThumbnails
		if cmd.Flags().Changed("thumbnails") {
			fetchThumbs = remoteThumbnails
		}

		adapter := remote.NewAdapter(client,
			remote.WithThumbnails(fetchThumbs),
			remote.WithConcurrency(cfg.Remote.Concurrency),
			remote.WithProgress(func(done, total int, current string) {
				fmt.Printf("\rFetching thumbnails %d/%d: %s", done, total, truncatePath(current, 40))
			}),
		)

		return runScan(cmd, adapter, cfg.Scan.Threshold, cfg.Remote.BaseURL)
	},
}

func init() {
	remoteScanCmd.Flags().BoolVar(&remoteThumbnails, "thumbnails", true, "Fetch thumbnails for perceptual matching")
	remoteCmd.AddCommand(remoteScanCmd)
	rootCmd.AddCommand(remoteCmd)
}
