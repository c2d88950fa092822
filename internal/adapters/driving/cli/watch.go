package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the watcher loop in the foreground",
	Long: `Runs archive discovery and pending-memory draining as a standalone
process. Use this for the split deployment shape, where one process
serves tools and a second owns ingest; both read and write the same
vector store and ingest cache over a shared volume.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if len(cfg.SourceRoots) == 0 {
		cmd.Println("No source roots configured; only pending-memory draining will run.")
	}
	err := watchLoop.Run(cmd.Context())
	if err != nil && cmd.Context().Err() != nil {
		return nil
	}
	return fmt.Errorf("watcher stopped: %w", err)
}
