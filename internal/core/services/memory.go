package services

import (
	"container/ring"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
	"github.com/mussolene/1c-hbk-helper/internal/logger"
)

// Memory subsystem defaults, overridable via MEMORY_SHORT_LIMIT,
// MEMORY_MEDIUM_LIMIT and MEMORY_MEDIUM_TTL_DAYS.
const (
	DefaultShortLimit    = 50
	DefaultMediumLimit   = 500
	DefaultMediumTTLDays = 7
)

// memoryEmbedder is the narrow slice of the embedding dispatcher the
// memory subsystem needs for long-tier writes.
type memoryEmbedder interface {
	Degraded() bool
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// memoryWriter is the narrow slice of the index writer the memory
// subsystem needs for long-tier writes.
type memoryWriter interface {
	UpsertMemoryPoint(ctx context.Context, id uint64, vector []float32, payload map[string]any) error
}

// memoryLexical mirrors snippet points into the keyword index so a saved
// snippet is findable by keyword_search as soon as its long-tier write
// lands.
type memoryLexical interface {
	Index(ctx context.Context, t domain.Topic) error
}

// MemoryStore is the three-tier memory subsystem (component F): an
// in-process short-tier ring, an append-only medium-tier journal on
// disk, and long-tier points in the vector store written through the
// embedding dispatcher, falling back to an on-disk pending queue when
// the backend is degraded.
type MemoryStore struct {
	basePath    string
	mediumPath  string
	pendingPath string
	shortLimit  int
	mediumLimit int
	mediumTTL   time.Duration

	shortMu sync.Mutex
	short   *ring.Ring
	shortN  int

	mediumMu sync.Mutex

	embedder memoryEmbedder
	writer   memoryWriter
	lexical  memoryLexical

	enabled bool
}

// NewMemoryStore constructs the memory subsystem rooted at basePath,
// creating the directory if needed. embedder/writer may be nil, in
// which case every event is written to the pending queue.
func NewMemoryStore(basePath string, shortLimit, mediumLimit, mediumTTLDays int, embedder memoryEmbedder, writer memoryWriter, enabled bool) (*MemoryStore, error) {
	if basePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory for memory base path: %w", err)
		}
		basePath = filepath.Join(home, ".1c-hbk-helper")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("creating memory base path %s: %w", basePath, err)
	}
	if shortLimit <= 0 {
		shortLimit = DefaultShortLimit
	}
	if mediumLimit <= 0 {
		mediumLimit = DefaultMediumLimit
	}
	if mediumTTLDays <= 0 {
		mediumTTLDays = DefaultMediumTTLDays
	}
	return &MemoryStore{
		basePath:    basePath,
		mediumPath:  filepath.Join(basePath, "session_memory.jsonl"),
		pendingPath: filepath.Join(basePath, "pending_memory.json"),
		shortLimit:  shortLimit,
		mediumLimit: mediumLimit,
		mediumTTL:   time.Duration(mediumTTLDays) * 24 * time.Hour,
		short:       ring.New(shortLimit),
		embedder:    embedder,
		writer:      writer,
		enabled:     enabled,
	}, nil
}

// SetLexical attaches the keyword index snippet points are mirrored
// into. Optional; a nil lexical index skips mirroring.
func (m *MemoryStore) SetLexical(ix memoryLexical) { m.lexical = ix }

// WriteEvent runs the three-tier write path for one event:
// short tier synchronously, medium tier synchronously (I/O errors logged
// and swallowed), then an attempt at the long tier that falls back to
// the pending queue when the backend is degraded or the write fails.
// Disabled memory is a silent no-op, matching MEMORY_ENABLED gating.
func (m *MemoryStore) WriteEvent(ctx context.Context, evt domain.MemoryEvent) {
	if !m.enabled {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	m.appendShort(evt)

	summary := evt.Summary
	if summary == "" {
		summary = formatMediumSummary(evt)
	}
	m.appendMedium(evt.Timestamp, summary)

	m.writeLongOrPending(ctx, evt, summary)
}

func (m *MemoryStore) appendShort(evt domain.MemoryEvent) {
	m.shortMu.Lock()
	defer m.shortMu.Unlock()
	m.short.Value = evt
	m.short = m.short.Next()
	if m.shortN < m.shortLimit {
		m.shortN++
	}
}

// ShortTier returns the last N events in FIFO order.
func (m *MemoryStore) ShortTier() []domain.MemoryEvent {
	m.shortMu.Lock()
	defer m.shortMu.Unlock()
	out := make([]domain.MemoryEvent, 0, m.shortN)
	m.short.Do(func(v any) {
		if v == nil {
			return
		}
		out = append(out, v.(domain.MemoryEvent))
	})
	return out
}

func formatMediumSummary(evt domain.MemoryEvent) string {
	query, _ := evt.Payload["query"].(string)
	topicPath, _ := evt.Payload["topic_path"].(string)
	desc, _ := evt.Payload["description"].(string)
	if desc == "" {
		if snippet, ok := evt.Payload["response_snippet"].(string); ok {
			if len(snippet) > 200 {
				snippet = snippet[:200]
			}
			desc = snippet
		}
	}
	return fmt.Sprintf("[%s] query=%s topics=%s note=%s", evt.Kind, query, topicPath, desc)
}

func (m *MemoryStore) appendMedium(ts time.Time, summary string) {
	m.mediumMu.Lock()
	defer m.mediumMu.Unlock()

	rec := domain.MediumRecord{Timestamp: ts, Summary: summary}
	line, err := json.Marshal(rec)
	if err != nil {
		logger.Warn("encoding medium-tier record: %v", err)
		return
	}
	f, err := os.OpenFile(m.mediumPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Warn("appending medium-tier journal %s: %v", m.mediumPath, err)
		return
	}
	_, writeErr := f.Write(append(line, '\n'))
	closeErr := f.Close()
	if writeErr != nil {
		logger.Warn("writing medium-tier journal %s: %v", m.mediumPath, writeErr)
		return
	}
	if closeErr != nil {
		logger.Warn("closing medium-tier journal %s: %v", m.mediumPath, closeErr)
	}
	m.trimMedium()
}

// trimMedium drops entries older than the TTL and caps the journal at
// mediumLimit lines, run after every append so the journal never grows
// unbounded between restarts.
func (m *MemoryStore) trimMedium() {
	data, err := os.ReadFile(m.mediumPath)
	if err != nil {
		return
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	cutoff := time.Now().Add(-m.mediumTTL)
	kept := make([]string, 0, len(lines))
	for _, ln := range lines {
		if ln == "" {
			continue
		}
		var rec domain.MediumRecord
		if err := json.Unmarshal([]byte(ln), &rec); err != nil {
			continue
		}
		if rec.Timestamp.After(cutoff) {
			kept = append(kept, ln)
		}
	}
	if len(kept) > m.mediumLimit {
		kept = kept[len(kept)-m.mediumLimit:]
	}
	out := ""
	if len(kept) > 0 {
		out = strings.Join(kept, "\n") + "\n"
	}
	if err := os.WriteFile(m.mediumPath, []byte(out), 0o644); err != nil {
		logger.Warn("rewriting trimmed medium-tier journal %s: %v", m.mediumPath, err)
	}
}

// MediumTier returns the current journal contents, newest last.
func (m *MemoryStore) MediumTier() []domain.MediumRecord {
	m.mediumMu.Lock()
	defer m.mediumMu.Unlock()
	data, err := os.ReadFile(m.mediumPath)
	if err != nil {
		return nil
	}
	var out []domain.MediumRecord
	for _, ln := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		if ln == "" {
			continue
		}
		var rec domain.MediumRecord
		if err := json.Unmarshal([]byte(ln), &rec); err == nil {
			out = append(out, rec)
		}
	}
	return out
}

func (m *MemoryStore) writeLongOrPending(ctx context.Context, evt domain.MemoryEvent, summary string) {
	if m.embedder == nil || m.writer == nil || m.embedder.Degraded() {
		m.appendPending(evt, summary)
		return
	}
	vec, err := m.embedder.EmbedOne(ctx, summary)
	if err != nil {
		m.appendPending(evt, summary)
		return
	}
	domainTag := memoryDomainFor(evt)
	payload := map[string]any{
		"kind":    string(evt.Kind),
		"domain":  domainTag,
		"summary": summary,
		"ts":      evt.Timestamp.Unix(),
	}
	for k, v := range evt.Payload {
		if _, exists := payload[k]; !exists {
			payload[k] = v
		}
	}
	id := memoryPointID(evt, summary)
	if err := m.writer.UpsertMemoryPoint(ctx, id, vec, payload); err != nil {
		logger.Warn("long-tier memory write failed, enqueuing pending: %v", err)
		m.appendPending(evt, summary)
	}
}

func memoryDomainFor(evt domain.MemoryEvent) domain.MemoryDomain {
	if d, ok := evt.Payload["domain"].(string); ok && d != "" {
		return domain.MemoryDomain(d)
	}
	switch evt.Kind {
	case domain.MemoryEventSnippetSave:
		return domain.DomainSnippets
	default:
		return domain.DomainSessions
	}
}

// memoryPointID derives a stable id from the event kind, timestamp, and
// summary so retried pending-queue entries upsert to the same point
// rather than accumulating duplicates.
func memoryPointID(evt domain.MemoryEvent, summary string) uint64 {
	key := fmt.Sprintf("%s|%d|%s", evt.Kind, evt.Timestamp.UnixNano(), summary)
	sum := sha256.Sum256([]byte(key))
	var v uint64
	for i := 0; i < 7; i++ {
		v = v<<8 | uint64(sum[i])
	}
	return v % (1 << 63)
}

// appendPending adds evt to the on-disk pending-writes queue, read-
// modify-write with an atomic rename so a crash mid-write never
// truncates the queue.
func (m *MemoryStore) appendPending(evt domain.MemoryEvent, summary string) {
	m.mediumMu.Lock()
	defer m.mediumMu.Unlock()

	records := m.readPendingLocked()
	payload := map[string]any{"summary": summary, "kind": string(evt.Kind)}
	for k, v := range evt.Payload {
		payload[k] = v
	}
	records = append(records, domain.PendingRecord{
		ID:        uuid.NewString(),
		Payload:   payload,
		CreatedAt: evt.Timestamp,
	})
	m.writePendingLocked(records)
}

func (m *MemoryStore) readPendingLocked() []domain.PendingRecord {
	data, err := os.ReadFile(m.pendingPath)
	if err != nil {
		return nil
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	var records []domain.PendingRecord
	if err := json.Unmarshal(data, &records); err != nil {
		logger.Warn("decoding pending memory queue %s: %v", m.pendingPath, err)
		return nil
	}
	return records
}

func (m *MemoryStore) writePendingLocked(records []domain.PendingRecord) {
	data, err := json.Marshal(records)
	if err != nil {
		logger.Warn("encoding pending memory queue: %v", err)
		return
	}
	tmp := m.pendingPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		logger.Warn("writing pending memory queue temp file: %v", err)
		return
	}
	if err := os.Rename(tmp, m.pendingPath); err != nil {
		logger.Warn("renaming pending memory queue into place: %v", err)
	}
}

// IngestSnippets upserts each snippet directly to the long tier, keyed by
// its content hash so re-running ingest with the same snippets directory
// updates rather than duplicates points. A snippet whose embedding fails
// is skipped and logged; snippet ingest never uses the pending queue
// since it runs at startup, not per-request.
func (m *MemoryStore) IngestSnippets(ctx context.Context, snippets []domain.Snippet) (loaded int) {
	if m.embedder == nil || m.writer == nil {
		return 0
	}
	for _, s := range snippets {
		if err := m.upsertSnippet(ctx, s); err != nil {
			logger.Warn("ingesting snippet %q: %v", s.Title, err)
			continue
		}
		loaded++
	}
	return loaded
}

// upsertSnippet writes one content-addressed snippet point and mirrors
// it into the keyword index.
func (m *MemoryStore) upsertSnippet(ctx context.Context, s domain.Snippet) error {
	vec, err := m.embedder.EmbedOne(ctx, s.Summary())
	if err != nil {
		return fmt.Errorf("embedding snippet: %w", err)
	}
	payload := map[string]any{
		"domain":      string(s.Domain),
		"class":       string(s.Class),
		"title":       s.Title,
		"description": s.Description,
		"code":        s.Code,
	}
	if err := m.writer.UpsertMemoryPoint(ctx, s.ContentHash(), vec, payload); err != nil {
		return fmt.Errorf("upserting snippet point: %w", err)
	}
	if m.lexical != nil {
		if err := m.lexical.Index(ctx, snippetTopic(s)); err != nil {
			logger.Warn("mirroring snippet %q into keyword index: %v", s.Title, err)
		}
	}
	return nil
}

// snippetTopic projects a snippet into the keyword index's document
// shape so keyword_search finds saved snippets alongside help topics.
func snippetTopic(s domain.Snippet) domain.Topic {
	return domain.Topic{
		ID:     s.ContentHash(),
		Title:  s.Title,
		Body:   s.Description + "\n" + s.Code,
		Path:   "snippets/" + s.Title,
		Domain: string(s.Domain),
	}
}

// RecordSnippet runs the save_snippet write path: a snippet_save event
// through the short and medium tiers, then either a direct long-tier
// snippet upsert or, when the backend is degraded or the write fails, a
// pending-queue entry. The return reports whether the write was deferred.
func (m *MemoryStore) RecordSnippet(ctx context.Context, s domain.Snippet) (deferred bool) {
	evt := domain.MemoryEvent{
		Kind:      domain.MemoryEventSnippetSave,
		Timestamp: time.Now().UTC(),
		Payload: map[string]any{
			"title":       s.Title,
			"description": s.Description,
			"code":        s.Code,
			"domain":      string(s.Domain),
			"class":       string(s.Class),
		},
		Summary: s.Summary(),
	}
	if m.enabled {
		m.appendShort(evt)
		m.appendMedium(evt.Timestamp, evt.Summary)
	}
	if m.embedder == nil || m.writer == nil || m.embedder.Degraded() {
		m.appendPending(evt, evt.Summary)
		return true
	}
	if err := m.upsertSnippet(ctx, s); err != nil {
		logger.Warn("snippet long-tier write failed, enqueuing pending: %v", err)
		m.appendPending(evt, evt.Summary)
		return true
	}
	return false
}

// PendingCount reports how many entries await a long-tier write, used by
// index_status.
func (m *MemoryStore) PendingCount() int {
	m.mediumMu.Lock()
	defer m.mediumMu.Unlock()
	return len(m.readPendingLocked())
}

// DrainPending attempts the long-tier write for every queued entry,
// removing each on success and leaving it (to retry next drain) on
// failure. Draining is idempotent: re-entry after a crash mid-drain
// simply resumes from whatever is still on disk.
func (m *MemoryStore) DrainPending(ctx context.Context) (drained, remaining int) {
	if m.embedder == nil || m.writer == nil || m.embedder.Degraded() {
		return 0, m.PendingCount()
	}

	m.mediumMu.Lock()
	records := m.readPendingLocked()
	m.mediumMu.Unlock()
	if len(records) == 0 {
		return 0, 0
	}

	var kept []domain.PendingRecord
	for _, rec := range records {
		if err := m.drainOne(ctx, rec); err != nil {
			rec.Attempts++
			kept = append(kept, rec)
			continue
		}
		drained++
	}

	m.mediumMu.Lock()
	m.writePendingLocked(kept)
	m.mediumMu.Unlock()
	return drained, len(kept)
}

// drainOne retries the long-tier write for one pending record. Snippet
// records (payload carries title+code) go through the content-addressed
// snippet path so a drained snippet lands on the same point a direct
// save would have produced; everything else is written as a session
// event point.
func (m *MemoryStore) drainOne(ctx context.Context, rec domain.PendingRecord) error {
	title, _ := rec.Payload["title"].(string)
	code, _ := rec.Payload["code"].(string)
	if title != "" && code != "" {
		desc, _ := rec.Payload["description"].(string)
		domainTag, _ := rec.Payload["domain"].(string)
		class, _ := rec.Payload["class"].(string)
		s := domain.Snippet{
			Title:       title,
			Description: desc,
			Code:        code,
			Domain:      domain.MemoryDomain(domainTag),
			Class:       domain.SnippetClass(class),
		}
		if s.Domain == "" {
			s.Domain = domain.DomainSnippets
		}
		if s.Class == "" {
			s.Class = domain.SnippetClassSnippet
		}
		return m.upsertSnippet(ctx, s)
	}

	summary, _ := rec.Payload["summary"].(string)
	if summary == "" {
		summary = fmt.Sprintf("pending memory entry %s", rec.ID)
	}
	vec, err := m.embedder.EmbedOne(ctx, summary)
	if err != nil {
		return err
	}
	domainTag := domain.DomainSessions
	if d, ok := rec.Payload["domain"].(string); ok && d != "" {
		domainTag = domain.MemoryDomain(d)
	}
	payload := map[string]any{"domain": domainTag}
	for k, v := range rec.Payload {
		payload[k] = v
	}
	id := memoryPointID(domain.MemoryEvent{Kind: domain.MemoryEventKind(fmt.Sprint(rec.Payload["kind"])), Timestamp: rec.CreatedAt}, summary)
	return m.writer.UpsertMemoryPoint(ctx, id, vec, payload)
}
