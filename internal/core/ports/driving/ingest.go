package driving

import (
	"context"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
)

// IngestOptions configures one orchestrator run.
type IngestOptions struct {
	SourceRoots []string
	Languages   []string
	MaxTasks    int
	Workers     int
	DryRun      bool
	Recreate    bool
	// OnlyPath restricts the run to a single archive, used by the watcher
	// when it enqueues an incremental re-ingest for one changed file.
	OnlyPath string
}

// IngestOrchestrator drives the document pipeline, embedding dispatcher,
// and index writer across all discovered archives.
type IngestOrchestrator interface {
	Run(ctx context.Context, opts IngestOptions) error
	Status() domain.IngestStatus
}
