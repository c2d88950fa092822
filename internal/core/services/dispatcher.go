package services

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
	"github.com/mussolene/1c-hbk-helper/internal/core/ports/driven"
	"github.com/mussolene/1c-hbk-helper/internal/logger"
)

// Embedding pre-processing and batching defaults.
const (
	MaxEmbeddingInputChars     = 2000
	DefaultEmbeddingBatchSize  = 64
	MaxEmbeddingBatchSize      = 256
	DefaultEmbeddingWorkers    = 4
	MaxEmbeddingWorkers        = 16
	DefaultEmbeddingTimeout    = 60 * time.Second
	SemaphoreAcquireTimeout    = 300 * time.Second
	RetryAfterMin              = 1 * time.Second
	RetryAfterMax              = 120 * time.Second
)

var controlCharPattern = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)

// SanitizeForEmbedding strips control bytes 0x00-0x1F except \n \r \t;
// embedding endpoints reject inputs containing them.
func SanitizeForEmbedding(text string) string {
	return controlCharPattern.ReplaceAllString(text, " ")
}

// TruncateForEmbedding caps text at MaxEmbeddingInputChars runes, recording
// whether truncation happened. Truncation never fails the call.
func TruncateForEmbedding(text string) (string, bool) {
	r := []rune(text)
	if len(r) <= MaxEmbeddingInputChars {
		return text, false
	}
	return string(r[:MaxEmbeddingInputChars]), true
}

// DispatcherConfig tunes the cross-cutting behavior wrapped around a backend.
type DispatcherConfig struct {
	BatchSize      int
	Workers        int
	ForceBatch     bool
	SingleTimeout  time.Duration
	MaxConcurrent  int
}

// DefaultDispatcherConfig returns the documented defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		BatchSize:     DefaultEmbeddingBatchSize,
		Workers:       DefaultEmbeddingWorkers,
		SingleTimeout: DefaultEmbeddingTimeout,
		MaxConcurrent: DefaultEmbeddingWorkers,
	}
}

// Dispatcher sanitizes, truncates, batches, rate-limits, retries, and
// falls back across embedding backends. It wraps a single
// driven.EmbeddingBackend with the concerns the backend itself does not
// implement, so backend implementations stay simple tagged variants.
type Dispatcher struct {
	backend driven.EmbeddingBackend
	cfg     DispatcherConfig
	sem     chan struct{}

	mu         sync.RWMutex
	dimension  int
	degraded   atomic.Bool
	countRetry atomic.Int64
}

// NewDispatcher wraps backend with the cross-cutting embedding pipeline.
func NewDispatcher(backend driven.EmbeddingBackend, cfg DispatcherConfig) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultEmbeddingBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultEmbeddingWorkers
	}
	if cfg.ForceBatch {
		cfg.BatchSize = MaxEmbeddingBatchSize
		cfg.Workers = MaxEmbeddingWorkers
	}
	if cfg.BatchSize > MaxEmbeddingBatchSize {
		cfg.BatchSize = MaxEmbeddingBatchSize
	}
	if cfg.Workers > MaxEmbeddingWorkers {
		cfg.Workers = MaxEmbeddingWorkers
	}
	if cfg.SingleTimeout <= 0 {
		cfg.SingleTimeout = DefaultEmbeddingTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = cfg.Workers
	}
	return &Dispatcher{
		backend: backend,
		cfg:     cfg,
		sem:     make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Name reports the wrapped backend's identity.
func (d *Dispatcher) Name() string { return d.backend.Name() }

// Degraded reports whether the last call observed the backend unavailable
// after retries. Sticky until a subsequent call succeeds.
func (d *Dispatcher) Degraded() bool { return d.degraded.Load() }

// CountRetries reports how many embedding_count_retry events have fired,
// exposed for the index_status tool.
func (d *Dispatcher) CountRetries() int64 { return d.countRetry.Load() }

// Dimension returns the memoized probed dimension, or 0 if not yet probed.
func (d *Dispatcher) Dimension() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dimension
}

// acquire bounds concurrent backend calls with a bounded wait so a stuck
// worker cannot wedge the dispatcher.
func (d *Dispatcher) acquire(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, SemaphoreAcquireTimeout)
	defer cancel()
	select {
	case d.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("embedding semaphore acquire timed out: %w", ctx.Err())
	}
}

func (d *Dispatcher) release() { <-d.sem }

func (d *Dispatcher) prepare(text string) (string, bool) {
	sanitized := SanitizeForEmbedding(text)
	truncated, wasTruncated := TruncateForEmbedding(sanitized)
	return truncated, wasTruncated
}

// EmbedOne embeds a single input, applying sanitize/truncate and the
// concurrency semaphore. Errors from the local backend are terminal for
// the call; other backends degrade to a placeholder instead
// of returning an error.
func (d *Dispatcher) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	prepared, truncated := d.prepare(text)
	if truncated {
		logger.Debug("embedding input truncated to %d chars", MaxEmbeddingInputChars)
	}
	if err := d.acquire(ctx); err != nil {
		return nil, err
	}
	defer d.release()

	timeoutCtx, cancel := context.WithTimeout(ctx, d.cfg.SingleTimeout)
	defer cancel()

	vec, err := d.backend.EmbedOne(timeoutCtx, prepared)
	if err != nil {
		if d.backend.Name() == domain.BackendLocal {
			return nil, fmt.Errorf("local embedding backend: %w", err)
		}
		d.degraded.Store(true)
		logger.Warn("embedding backend %s unavailable, using placeholder: %v", d.backend.Name(), err)
		return placeholderVector(text, d.fallbackDimension()), nil
	}
	d.degraded.Store(false)
	d.rememberDimension(len(vec))
	return vec, nil
}

// EmbedMany embeds a slice of inputs, batching, retrying count mismatches,
// and falling back through a fixed ladder: retry once with the
// same batch; on second mismatch split in half and retry; on repeated
// mismatch fall back to one-by-one; on final failure return placeholders
// for the offending slots and mark the call degraded. Output order always
// equals input order.
func (d *Dispatcher) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	prepared := make([]string, len(texts))
	for i, t := range texts {
		p, truncated := d.prepare(t)
		prepared[i] = p
		if truncated {
			logger.Debug("embedding input %d truncated to %d chars", i, MaxEmbeddingInputChars)
		}
	}

	batches := chunkStrings(prepared, d.cfg.BatchSize)
	results := make([][][]float32, len(batches))

	var wg sync.WaitGroup
	errs := make([]error, len(batches))
	for i, batch := range batches {
		i, batch := i, batch
		wg.Add(1)
		go func() {
			defer wg.Done()
			vecs, err := d.embedBatchWithRetry(ctx, batch)
			results[i] = vecs
			errs[i] = err
		}()
	}
	wg.Wait()

	out := make([][]float32, 0, len(prepared))
	for i, r := range results {
		if errs[i] != nil {
			return nil, errs[i]
		}
		out = append(out, r...)
	}
	if len(out) != len(texts) {
		return nil, fmt.Errorf("%w: dispatcher produced %d vectors for %d inputs", domain.ErrVectorCountMismatch, len(out), len(texts))
	}
	return out, nil
}

// embedBatchWithRetry implements the count-mismatch state machine for a
// single batch: retry once with the same batch, then split in half and
// retry each half, then one-by-one with placeholders for slots that
// still fail. The semaphore is held only across individual backend
// calls, never across the recursive split, so a split never needs two
// slots at once.
func (d *Dispatcher) embedBatchWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	vecs, err := d.embedBatchOnce(ctx, batch)
	if err == nil && len(vecs) == len(batch) {
		d.degraded.Store(false)
		if len(vecs) > 0 {
			d.rememberDimension(len(vecs[0]))
		}
		return vecs, nil
	}
	if err != nil && d.backend.Name() == domain.BackendLocal {
		return nil, fmt.Errorf("local embedding backend: %w", err)
	}

	// First mismatch: retry once with the same batch.
	d.countRetry.Add(1)
	logger.Debug("embedding_count_retry: batch of %d", len(batch))
	vecs, err = d.embedBatchOnce(ctx, batch)
	if err == nil && len(vecs) == len(batch) {
		d.degraded.Store(false)
		return vecs, nil
	}

	// Second mismatch: split in half and retry each half.
	if len(batch) > 1 {
		mid := len(batch) / 2
		left, errL := d.embedBatchWithRetry(ctx, batch[:mid])
		right, errR := d.embedBatchWithRetry(ctx, batch[mid:])
		if errL == nil && errR == nil && len(left)+len(right) == len(batch) {
			return append(left, right...), nil
		}
	}

	// Repeated mismatch: fall back to one-by-one.
	if err := d.acquire(ctx); err != nil {
		return nil, err
	}
	defer d.release()
	timeoutCtx, cancel := context.WithTimeout(ctx, d.batchTimeout(len(batch)))
	defer cancel()
	out := make([][]float32, len(batch))
	failed := 0
	for i, t := range batch {
		v, oneErr := d.backend.EmbedOne(timeoutCtx, t)
		if oneErr != nil || len(v) == 0 {
			failed++
			out[i] = placeholderVector(t, d.fallbackDimension())
			continue
		}
		out[i] = v
	}
	if failed > 0 {
		d.degraded.Store(true)
		logger.Warn("embedding backend %s degraded, %d/%d slots used placeholders", d.backend.Name(), failed, len(out))
	} else {
		d.degraded.Store(false)
	}
	return out, nil
}

// embedBatchOnce issues a single EmbedMany call under the semaphore and
// the derived batch timeout.
func (d *Dispatcher) embedBatchOnce(ctx context.Context, batch []string) ([][]float32, error) {
	if err := d.acquire(ctx); err != nil {
		return nil, err
	}
	defer d.release()
	timeoutCtx, cancel := context.WithTimeout(ctx, d.batchTimeout(len(batch)))
	defer cancel()
	return d.backend.EmbedMany(timeoutCtx, batch)
}

// batchTimeout implements max(T_single, 30 + batch/10)
func (d *Dispatcher) batchTimeout(batchLen int) time.Duration {
	derived := (30 + batchLen/10)
	if int(d.cfg.SingleTimeout/time.Second) > derived {
		return d.cfg.SingleTimeout
	}
	return time.Duration(derived) * time.Second
}

// ProbeDimension discovers and memoizes the backend's vector dimension.
// A later call returning a different dimension surfaces
// domain.ErrDimensionMismatch, which the orchestrator converts into a
// collection-recreate request.
func (d *Dispatcher) ProbeDimension(ctx context.Context) (int, error) {
	dim, err := d.backend.ProbeDimension(ctx)
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dimension != 0 && d.dimension != dim {
		prev := d.dimension
		d.dimension = dim
		return dim, fmt.Errorf("%w: was %d, now %d", domain.ErrDimensionMismatch, prev, dim)
	}
	d.dimension = dim
	return dim, nil
}

func (d *Dispatcher) rememberDimension(dim int) {
	if dim == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dimension == 0 {
		d.dimension = dim
	}
}

func (d *Dispatcher) fallbackDimension() int {
	if dim := d.Dimension(); dim != 0 {
		return dim
	}
	return 384
}

func chunkStrings(items []string, size int) [][]string {
	if size <= 0 {
		size = len(items)
	}
	var out [][]string
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}

// ClampRetryAfter clamps an HTTP 429 Retry-After duration to [1s, 120s],
// for Retry-After backoff (a "0" header value
// clamps to the minimum backoff).
func ClampRetryAfter(d time.Duration) time.Duration {
	if d < RetryAfterMin {
		return RetryAfterMin
	}
	if d > RetryAfterMax {
		return RetryAfterMax
	}
	return d
}
