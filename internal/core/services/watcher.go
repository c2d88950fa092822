package services

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
	"github.com/mussolene/1c-hbk-helper/internal/core/ports/driving"
	"github.com/mussolene/1c-hbk-helper/internal/logger"
)

// Watcher intervals when none are configured.
const (
	DefaultScanInterval  = 600 * time.Second
	DefaultDrainInterval = 600 * time.Second
)

// pendingDrainer is the slice of the memory subsystem the watcher drives.
type pendingDrainer interface {
	DrainPending(ctx context.Context) (drained, remaining int)
}

// archiveStamp is the change-detection state for one discovered archive.
type archiveStamp struct {
	modTime time.Time
	size    int64
}

// Watcher periodically rescans the source roots and drains the memory
// subsystem's pending queue (component H). An fsnotify watch on each
// root delivers low-latency change events; the scan ticker is the
// reconciliation fallback for mounts where inotify is unreliable. While
// the process serves tools, ingest is started only by the watcher and
// by the trigger_reindex tool.
type Watcher struct {
	orchestrator  driving.IngestOrchestrator
	memory        pendingDrainer
	opts          driving.IngestOptions
	scanInterval  time.Duration
	drainInterval time.Duration

	mu    sync.Mutex
	known map[string]archiveStamp
}

// NewWatcher wires the watcher. memory may be nil when the memory
// subsystem is disabled; draining is then skipped.
func NewWatcher(orchestrator driving.IngestOrchestrator, memory pendingDrainer, opts driving.IngestOptions, scanInterval, drainInterval time.Duration) *Watcher {
	if scanInterval <= 0 {
		scanInterval = DefaultScanInterval
	}
	if drainInterval <= 0 {
		drainInterval = DefaultDrainInterval
	}
	return &Watcher{
		orchestrator:  orchestrator,
		memory:        memory,
		opts:          opts,
		scanInterval:  scanInterval,
		drainInterval: drainInterval,
		known:         make(map[string]archiveStamp),
	}
}

// Run blocks until ctx is cancelled, selecting over the two interval
// tickers and the fsnotify event stream. The first scan establishes a
// baseline without triggering ingest; the ingest cache already makes a
// redundant trigger cheap, but skipping it avoids a burst at startup.
func (w *Watcher) Run(ctx context.Context) error {
	w.baseline()

	scanTicker := time.NewTicker(w.scanInterval)
	defer scanTicker.Stop()
	drainTicker := time.NewTicker(w.drainInterval)
	defer drainTicker.Stop()

	events := w.notifyChannel(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-scanTicker.C:
			w.Scan(ctx)
		case <-drainTicker.C:
			w.Drain(ctx)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if isArchiveEvent(ev) {
				w.ingestOne(ctx, ev.Name)
			}
		}
	}
}

// notifyChannel starts an fsnotify watch over every source root,
// returning its event channel. A failure to watch is tolerated: the
// scan ticker still covers discovery.
func (w *Watcher) notifyChannel(ctx context.Context) <-chan fsnotify.Event {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("fsnotify unavailable, relying on scan interval only: %v", err)
		return nil
	}
	for _, root := range w.opts.SourceRoots {
		if err := fsw.Add(root); err != nil {
			logger.Warn("watching %s: %v", root, err)
		}
	}
	go func() {
		defer fsw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				logger.Warn("fsnotify: %v", err)
			}
		}
	}()
	return fsw.Events
}

func isArchiveEvent(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return false
	}
	return strings.EqualFold(filepath.Ext(ev.Name), ".hbk")
}

// baseline records the current stamp of every archive without
// triggering ingest.
func (w *Watcher) baseline() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.walk(func(path string, stamp archiveStamp) {
		w.known[path] = stamp
	})
}

// Scan walks the source roots and enqueues an ingest for every archive
// whose mtime or size changed since the last pass.
func (w *Watcher) Scan(ctx context.Context) {
	var changed []string
	w.mu.Lock()
	w.walk(func(path string, stamp archiveStamp) {
		prev, seen := w.known[path]
		if !seen || prev != stamp {
			w.known[path] = stamp
			changed = append(changed, path)
		}
	})
	w.mu.Unlock()

	for _, path := range changed {
		w.ingestOne(ctx, path)
	}
}

func (w *Watcher) walk(visit func(path string, stamp archiveStamp)) {
	for _, root := range w.opts.SourceRoots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return nil
			}
			if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".hbk") {
				return nil
			}
			info, err := os.Stat(path)
			if err != nil {
				return nil
			}
			visit(path, archiveStamp{modTime: info.ModTime(), size: info.Size()})
			return nil
		})
		if err != nil {
			logger.Warn("scanning %s: %v", root, err)
		}
	}
}

// ingestOne runs the orchestrator for a single changed archive. An
// already-running ingest is not an error: the next scan retries.
func (w *Watcher) ingestOne(ctx context.Context, path string) {
	opts := w.opts
	opts.OnlyPath = path
	logger.Info("archive changed, reingesting %s", path)
	if err := w.orchestrator.Run(ctx, opts); err != nil {
		if errors.Is(err, domain.ErrSyncInProgress) {
			// Forget the stamp so the next scan sees the archive as changed.
			w.mu.Lock()
			delete(w.known, path)
			w.mu.Unlock()
			logger.Debug("ingest already running, %s deferred to next scan", path)
			return
		}
		logger.Warn("reingest of %s failed: %v", path, err)
	}
}

// Drain retries the pending-memory queue once.
func (w *Watcher) Drain(ctx context.Context) {
	if w.memory == nil {
		return
	}
	drained, remaining := w.memory.DrainPending(ctx)
	if drained > 0 || remaining > 0 {
		logger.Info("pending memory drain: %d written, %d remaining", drained, remaining)
	}
}
