package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
	"github.com/mussolene/1c-hbk-helper/internal/core/ports/driving"
	"github.com/mussolene/1c-hbk-helper/internal/logger"
)

// embeddingEngine is the subset of the embedding dispatcher the
// orchestrator depends on, kept narrow so tests can substitute a fake.
type embeddingEngine interface {
	Name() string
	Degraded() bool
	Dimension() int
	ProbeDimension(ctx context.Context) (int, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

// lexicalEngine is the subset of the lexical index the orchestrator
// keeps current as topics are ingested.
type lexicalEngine interface {
	Index(ctx context.Context, t domain.Topic) error
}

// Orchestrator drives the document pipeline, embedding dispatcher, and
// index writer across discovered archives (component E).
type Orchestrator struct {
	pipeline   *Pipeline
	cache      *IngestCache
	dispatcher embeddingEngine
	writer     *IndexWriter
	lexical    lexicalEngine

	mu         sync.Mutex
	status     domain.IngestStatus
	statusPath string
}

// NewOrchestrator wires the ingest orchestrator's collaborators.
func NewOrchestrator(pipeline *Pipeline, cache *IngestCache, dispatcher embeddingEngine, writer *IndexWriter, lexical lexicalEngine) *Orchestrator {
	return &Orchestrator{
		pipeline:   pipeline,
		cache:      cache,
		dispatcher: dispatcher,
		writer:     writer,
		lexical:    lexical,
		status:     domain.IngestStatus{Phase: domain.PhaseIdle},
	}
}

// SetStatusPath enables best-effort persistence of the status record to
// path, rewritten atomically on every update so a sibling process (split
// deployment mode) can read it.
func (o *Orchestrator) SetStatusPath(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statusPath = path
}

// Status returns a snapshot of the current or last ingest run.
func (o *Orchestrator) Status() domain.IngestStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

func (o *Orchestrator) setPhase(phase domain.IngestPhase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.Phase = phase
	o.status.UpdatedAt = time.Now().UTC()
	o.persistStatusLocked()
}

// persistStatusLocked writes the status record via temp-file rename.
// Failures are logged and ignored: status persistence never blocks or
// fails the pipeline.
func (o *Orchestrator) persistStatusLocked() {
	if o.statusPath == "" {
		return
	}
	data, err := json.Marshal(o.status)
	if err != nil {
		logger.Warn("encoding ingest status: %v", err)
		return
	}
	tmp := o.statusPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		logger.Warn("writing ingest status file: %v", err)
		return
	}
	if err := os.Rename(tmp, o.statusPath); err != nil {
		logger.Warn("renaming ingest status file into place: %v", err)
	}
}

// Run executes one ingest pass: discover, consult cache, extract,
// embed, upsert, and publish progress throughout.
func (o *Orchestrator) Run(ctx context.Context, opts driving.IngestOptions) error {
	o.mu.Lock()
	if o.status.Running {
		o.mu.Unlock()
		return domain.ErrSyncInProgress
	}
	o.status = domain.IngestStatus{
		Phase:     domain.PhaseDiscover,
		StartedAt: time.Now().UTC(),
		Running:   true,
	}
	o.persistStatusLocked()
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.status.Running = false
		o.status.Phase = domain.PhaseDone
		o.status.UpdatedAt = time.Now().UTC()
		o.persistStatusLocked()
		o.mu.Unlock()
	}()

	tasks, err := o.discover(opts)
	if err != nil {
		return fmt.Errorf("discovering archives: %w", err)
	}
	if opts.MaxTasks > 0 && len(tasks) > opts.MaxTasks {
		tasks = tasks[:opts.MaxTasks]
	}

	o.mu.Lock()
	o.status.Versions = collectDistinct(tasks, func(t domain.ArchiveTask) string { return t.Version })
	o.status.Languages = collectDistinct(tasks, func(t domain.ArchiveTask) string { return t.Language })
	o.status.ActiveBackend = o.dispatcher.Name()
	o.status.Folders = folderTotals(opts.SourceRoots, tasks)
	o.persistStatusLocked()
	o.mu.Unlock()

	if opts.DryRun {
		logger.Info("dry run: %d archives discovered", len(tasks))
		return nil
	}

	dim, err := o.dispatcher.ProbeDimension(ctx)
	if err != nil && opts.Recreate {
		dim = o.dispatcher.Dimension()
	} else if err != nil {
		return fmt.Errorf("probing embedding dimension: %w", err)
	}
	// The probe memo only catches a backend changing dimension within
	// this process. The durable guard is the store itself: it compares
	// dim against the persisted collection dimension and, without
	// --recreate, a mismatch comes back as ErrDimensionMismatch and
	// aborts the run with the collection untouched.
	if err := o.writer.EnsureCollection(ctx, dim, opts.Recreate); err != nil {
		return fmt.Errorf("ensuring vector collection: %w", err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultEmbeddingWorkers
	}

	o.setPhase(domain.PhaseExtract)
	taskCh := make(chan domain.ArchiveTask)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskCh {
				o.processArchive(ctx, task)
			}
		}()
	}
	for _, t := range tasks {
		select {
		case taskCh <- t:
		case <-ctx.Done():
			close(taskCh)
			wg.Wait()
			return ctx.Err()
		}
	}
	close(taskCh)
	wg.Wait()
	return nil
}

// discover walks each source root for .hbk archives, deriving
// (version, language) tags and applying the language filter before any
// extraction happens.
func (o *Orchestrator) discover(opts driving.IngestOptions) ([]domain.ArchiveTask, error) {
	allowed := make(map[string]bool, len(opts.Languages))
	for _, l := range opts.Languages {
		allowed[strings.ToLower(l)] = true
	}

	var tasks []domain.ArchiveTask
	for _, root := range opts.SourceRoots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				logger.Warn("discovery error under %s: %v", root, walkErr)
				return nil
			}
			if d.IsDir() {
				return nil
			}
			if !strings.EqualFold(filepath.Ext(path), ".hbk") {
				return nil
			}
			if opts.OnlyPath != "" && path != opts.OnlyPath {
				return nil
			}
			version, language := DeriveTags(path)
			if len(allowed) > 0 && !allowed[strings.ToLower(language)] {
				return nil
			}
			tasks = append(tasks, domain.ArchiveTask{Path: path, Version: version, Language: language})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking source root %s: %w", root, err)
		}
	}
	return tasks, nil
}

func (o *Orchestrator) processArchive(ctx context.Context, task domain.ArchiveTask) {
	hash, err := HashFile(task.Path)
	if err != nil {
		o.cache.MarkFailed(ctx, task.Path, err.Error())
		return
	}

	if rec, _ := o.cache.Lookup(ctx, hash); rec != nil && rec.Status == domain.ArchiveStatusIndexed {
		o.bumpSkipped(task.Path, rec.TopicCount)
		return
	}

	topics, err := o.pipeline.Run(ctx, task)
	if err != nil && len(topics) == 0 {
		o.cache.MarkFailed(ctx, task.Path, err.Error())
		return
	}
	if len(topics) == 0 {
		return
	}

	o.setPhase(domain.PhaseEmbed)
	texts := make([]string, len(topics))
	for i, t := range topics {
		texts[i] = t.Body
	}
	vectors, embedErr := o.dispatcher.EmbedMany(ctx, texts)
	if embedErr != nil {
		o.cache.MarkFailed(ctx, task.Path, embedErr.Error())
		return
	}

	o.setPhase(domain.PhaseUpsert)
	if upsertErr := o.writer.UpsertTopics(ctx, topics, vectors); upsertErr != nil {
		o.cache.MarkFailed(ctx, task.Path, upsertErr.Error())
		return
	}
	if o.lexical != nil {
		for _, t := range topics {
			if idxErr := o.lexical.Index(ctx, t); idxErr != nil {
				logger.Warn("lexical index update failed for %s: %v", t.Path, idxErr)
			}
		}
	}

	if err != nil {
		// partial extraction: topics successfully converted were still
		// upserted, but the archive is never marked indexed.
		logger.Warn("archive %s partially extracted: %v", task.Path, err)
		return
	}

	if markErr := o.cache.MarkIndexed(ctx, hash, domain.ArchiveRecord{
		Version:    task.Version,
		Language:   task.Language,
		TopicCount: len(topics),
	}); markErr != nil {
		logger.Warn("marking %s indexed: %v", task.Path, markErr)
	}
	o.bumpEmbedded(task.Path, len(topics))
}

func (o *Orchestrator) bumpEmbedded(archivePath string, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.TopicsSeen += n
	o.status.TopicsEmbedded += n
	o.status.TotalTopics += n
	o.status.Degraded = o.dispatcher.Degraded()
	o.status.UpdatedAt = time.Now().UTC()
	if elapsed := o.status.UpdatedAt.Sub(o.status.StartedAt).Seconds(); elapsed > 0 {
		o.status.ThroughputPerSec = float64(o.status.TopicsEmbedded) / elapsed
	}
	o.bumpFolderLocked(archivePath, n)
	o.persistStatusLocked()
}

func (o *Orchestrator) bumpSkipped(archivePath string, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.TopicsSkipped += n
	o.status.TotalTopics += n
	o.status.UpdatedAt = time.Now().UTC()
	o.bumpFolderLocked(archivePath, 0)
	o.persistStatusLocked()
}

// bumpFolderLocked advances the per-root archive counters for the root
// containing archivePath and recomputes the run's ETA from the rolling
// per-archive pace across all roots.
func (o *Orchestrator) bumpFolderLocked(archivePath string, topics int) {
	var total, done int
	for i := range o.status.Folders {
		f := &o.status.Folders[i]
		if strings.HasPrefix(archivePath, f.Root) {
			f.ArchivesDone++
			f.TopicsSeen += topics
		}
		total += f.ArchivesTotal
		done += f.ArchivesDone
	}
	elapsed := o.status.UpdatedAt.Sub(o.status.StartedAt)
	switch {
	case done > 0 && done < total:
		o.status.ETA = elapsed / time.Duration(done) * time.Duration(total-done)
	case done >= total:
		o.status.ETA = 0
	}
}

// folderTotals counts discovered archives per source root for the
// status record's per-folder progress.
func folderTotals(roots []string, tasks []domain.ArchiveTask) []domain.FolderProgress {
	out := make([]domain.FolderProgress, 0, len(roots))
	for _, root := range roots {
		fp := domain.FolderProgress{Root: root}
		for _, t := range tasks {
			if strings.HasPrefix(t.Path, root) {
				fp.ArchivesTotal++
			}
		}
		out = append(out, fp)
	}
	return out
}

func collectDistinct(tasks []domain.ArchiveTask, key func(domain.ArchiveTask) string) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range tasks {
		v := key(t)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
