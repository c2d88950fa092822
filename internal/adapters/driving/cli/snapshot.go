package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Vector collection snapshot commands",
	Long:  `Create and restore point-in-time snapshots of the vector collection, used for cross-host migration.`,
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a collection snapshot",
	RunE: func(cmd *cobra.Command, _ []string) error {
		name, err := indexWriter.SnapshotCreate(cmd.Context())
		if err != nil {
			return fmt.Errorf("creating snapshot: %w", err)
		}
		cmd.Printf("Snapshot created: %s\n", name)
		return nil
	},
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore <name>",
	Short: "Restore the collection from a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := indexWriter.SnapshotRestore(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("restoring snapshot: %w", err)
		}
		cmd.Printf("Collection restored from snapshot %s.\n", args[0])
		return nil
	},
}

func init() {
	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotRestoreCmd)
	rootCmd.AddCommand(snapshotCmd)
}
