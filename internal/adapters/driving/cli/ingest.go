package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Discover and index help archives",
	Long: `Walks the configured source roots, extracts every archive whose
content hash is not already in the ingest cache, converts its pages to
Markdown, embeds them, and upserts the topics into the vector store.

Archives already indexed are skipped; use --recreate to drop the
collection and reindex everything, or --erase-cache to forget ingest
history without touching the collection.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().Bool("dry-run", false, "only report how many archives would be ingested")
	ingestCmd.Flags().Bool("recreate", false, "drop and recreate the vector collection before ingesting")
	ingestCmd.Flags().Bool("erase-cache", false, "wipe the ingest cache, forcing a full re-ingest")
	ingestCmd.Flags().Int("max-tasks", 0, "cap the number of archives processed this run")
	ingestCmd.Flags().Int("workers", 0, "per-archive worker count (default INGEST_WORKERS)")
	ingestCmd.Flags().StringSlice("language", nil, "only ingest archives in these languages")
	ingestCmd.Flags().StringSlice("source", nil, "override the configured source roots")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	opts := ingestOptions()
	opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
	opts.Recreate, _ = cmd.Flags().GetBool("recreate")
	opts.MaxTasks, _ = cmd.Flags().GetInt("max-tasks")
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		opts.Workers = workers
	}
	if langs, _ := cmd.Flags().GetStringSlice("language"); len(langs) > 0 {
		opts.Languages = langs
	}
	if roots, _ := cmd.Flags().GetStringSlice("source"); len(roots) > 0 {
		opts.SourceRoots = roots
	}
	if len(opts.SourceRoots) == 0 {
		return fmt.Errorf("%w: no source roots configured, set HELP_SOURCES_DIR or pass --source", domain.ErrConfiguration)
	}

	if erase, _ := cmd.Flags().GetBool("erase-cache"); erase {
		if err := ingestCache.EraseAll(cmd.Context()); err != nil {
			return fmt.Errorf("erasing ingest cache: %w", err)
		}
		cmd.Println("Ingest cache erased.")
	}

	if err := orchestrator.Run(cmd.Context(), opts); err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	status := orchestrator.Status()
	cmd.Printf("Ingest complete: %d topics (%d embedded, %d skipped), backend %s\n",
		status.TotalTopics, status.TopicsEmbedded, status.TopicsSkipped, status.ActiveBackend)
	if status.Degraded {
		cmd.Println("Warning: embedding backend degraded, placeholder vectors were used.")
	}
	return nil
}
