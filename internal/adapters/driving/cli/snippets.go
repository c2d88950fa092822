package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var loadSnippetsCmd = &cobra.Command{
	Use:   "load-snippets [dir]",
	Short: "Load curated snippets into the index",
	Long: `Reads snippet files (JSON arrays, Markdown with front-matter, or raw
code files) from a directory and upserts them into the long-term memory
tier. Snippets are content-addressed: re-running with the same files
updates points instead of duplicating them.

The directory defaults to SNIPPETS_DIR when no argument is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLoadSnippets,
}

func init() {
	rootCmd.AddCommand(loadSnippetsCmd)
}

func runLoadSnippets(cmd *cobra.Command, args []string) error {
	dir := cfg.SnippetsDir
	if len(args) > 0 {
		dir = args[0]
	}
	if dir == "" {
		return errors.New("no snippets directory: pass one or set SNIPPETS_DIR")
	}

	loaded, err := snippetLoader.Load(dir)
	if err != nil {
		return fmt.Errorf("loading snippets from %s: %w", dir, err)
	}
	if len(loaded) == 0 {
		cmd.Printf("No snippet files found under %s.\n", dir)
		return nil
	}

	n := memoryStore.IngestSnippets(cmd.Context(), loaded)
	cmd.Printf("Ingested %d/%d snippets from %s.\n", n, len(loaded), dir)
	return nil
}
