package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
	"github.com/mussolene/1c-hbk-helper/internal/core/ports/driven"
	"github.com/mussolene/1c-hbk-helper/internal/core/ports/driving"
	"github.com/mussolene/1c-hbk-helper/internal/logger"
)

// Tool façade input constraints.
const (
	MaxInputBytes  = 64 * 1024
	MinSearchK     = 1
	MaxSearchK     = 50
	DefaultSearchK = 10
)

// DefaultToolRatePerMinute is the per-operation token-bucket rate applied
// when no override is configured.
const DefaultToolRatePerMinute = 120

// facadeEmbedder is the narrow embedding surface the façade needs: a
// single-query embed for semantic_search plus a degraded signal so it
// can fall back to the lexical index without treating degradation as
// an error.
type facadeEmbedder interface {
	Name() string
	Degraded() bool
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// facadeIndex is the narrow vector-store surface the façade searches
// and lists against.
type facadeIndex interface {
	Search(ctx context.Context, vector []float32, k int, filter driven.VectorFilter) ([]driven.VectorHit, error)
	Scroll(ctx context.Context, filter driven.VectorFilter, cursor string, limit int) ([]driven.VectorHit, string, error)
}

// facadeLexical is the narrow lexical-index surface the façade searches.
type facadeLexical interface {
	Search(ctx context.Context, query string, pathPrefix string, k int) ([]domain.SearchResult, error)
	Count() int
}

// facadeMemory is the narrow memory-subsystem surface the façade writes
// through for save_snippet and session events, and reads from for
// index_status.
type facadeMemory interface {
	PendingCount() int
	RecordSnippet(ctx context.Context, s domain.Snippet) (deferred bool)
	WriteEvent(ctx context.Context, evt domain.MemoryEvent)
}

// Facade implements driving.SearchFacade (component G), the single
// surface the MCP transport drives. Every public method is rate-limited
// per operation name. The methods taking a query, path, identifier or
// code check its size before doing any work; ListTitles does not check
// the size of its path prefix or cursor.
type Facade struct {
	index        facadeIndex
	lexical      facadeLexical
	embedder     facadeEmbedder
	cache        *IngestCache
	memory       facadeMemory
	orchestrator driving.IngestOrchestrator
	reindexOpts  driving.IngestOptions

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
	rpm        float64
}

// NewFacade wires the tool façade's collaborators. rpm is the
// per-operation requests-per-minute allowance; a value <= 0 uses
// DefaultToolRatePerMinute.
func NewFacade(index facadeIndex, lexical facadeLexical, embedder facadeEmbedder, cache *IngestCache, memory facadeMemory, orchestrator driving.IngestOrchestrator, reindexOpts driving.IngestOptions, rpm float64) *Facade {
	if rpm <= 0 {
		rpm = DefaultToolRatePerMinute
	}
	return &Facade{
		index:        index,
		lexical:      lexical,
		embedder:     embedder,
		cache:        cache,
		memory:       memory,
		orchestrator: orchestrator,
		reindexOpts:  reindexOpts,
		limiters:     make(map[string]*rate.Limiter),
		rpm:          rpm,
	}
}

// allow enforces the per-operation token bucket, lazily creating one
// limiter per distinct tool name on first use.
func (f *Facade) allow(op string) error {
	f.limitersMu.Lock()
	lim, ok := f.limiters[op]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(f.rpm/60.0), int(f.rpm))
		f.limiters[op] = lim
	}
	f.limitersMu.Unlock()
	if !lim.Allow() {
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, op)
	}
	return nil
}

func checkSize(field, s string) error {
	if len(s) > MaxInputBytes {
		return fmt.Errorf("%w: %s exceeds %d bytes", domain.ErrInvalidInput, field, MaxInputBytes)
	}
	return nil
}

func clampK(k int) int {
	if k <= 0 {
		return DefaultSearchK
	}
	if k < MinSearchK {
		return MinSearchK
	}
	if k > MaxSearchK {
		return MaxSearchK
	}
	return k
}

// SemanticSearch embeds req.Query and ranks the k nearest topics. When
// the embedding backend is degraded or is the placeholder backend it
// falls back to the lexical index and flags the response rather than
// returning an error.
func (f *Facade) SemanticSearch(ctx context.Context, req driving.SemanticSearchRequest) (driving.SemanticSearchResponse, error) {
	if err := f.allow("semantic_search"); err != nil {
		return driving.SemanticSearchResponse{}, err
	}
	if err := checkSize("query", req.Query); err != nil {
		return driving.SemanticSearchResponse{}, err
	}
	if strings.TrimSpace(req.Query) == "" {
		return driving.SemanticSearchResponse{}, fmt.Errorf("%w: query is empty", domain.ErrInvalidInput)
	}
	k := clampK(req.K)

	if f.embedder == nil || f.embedder.Degraded() || f.embedder.Name() == domain.BackendPlaceholder {
		results, err := f.lexical.Search(ctx, req.Query, req.Filter.PathPrefix, k)
		if err != nil {
			return driving.SemanticSearchResponse{}, fmt.Errorf("lexical fallback search: %w", err)
		}
		return driving.SemanticSearchResponse{Results: results, Degraded: true}, nil
	}

	vec, err := f.embedder.EmbedOne(ctx, req.Query)
	if err != nil {
		results, lexErr := f.lexical.Search(ctx, req.Query, req.Filter.PathPrefix, k)
		if lexErr != nil {
			return driving.SemanticSearchResponse{}, fmt.Errorf("embedding query: %w", err)
		}
		logger.Warn("semantic_search embedding failed, using lexical fallback: %v", err)
		return driving.SemanticSearchResponse{Results: results, Degraded: true}, nil
	}

	hits, err := f.index.Search(ctx, vec, k, toVectorFilter(req.Filter))
	if err != nil {
		return driving.SemanticSearchResponse{}, fmt.Errorf("searching vector index: %w", err)
	}
	results := make([]domain.SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, domain.SearchResult{Topic: topicFromPayload(h.Payload), Score: h.Score})
	}
	if f.memory != nil && len(results) > 0 {
		f.memory.WriteEvent(ctx, domain.MemoryEvent{
			Kind:    domain.MemoryEventExchange,
			Payload: map[string]any{"query": req.Query, "topic_path": results[0].Topic.Path},
		})
	}
	return driving.SemanticSearchResponse{Results: results}, nil
}

// KeywordSearch delegates to the lexical index, which already ranks
// title matches ahead of body matches (component I).
func (f *Facade) KeywordSearch(ctx context.Context, req driving.KeywordSearchRequest) ([]domain.SearchResult, error) {
	if err := f.allow("keyword_search"); err != nil {
		return nil, err
	}
	if err := checkSize("query", req.Query); err != nil {
		return nil, err
	}
	return f.lexical.Search(ctx, req.Query, req.PathPrefix, clampK(req.K))
}

// GetTopic resolves a topic by its exact relative path via a bounded
// scroll over the vector store, since path is not part of the point id.
func (f *Facade) GetTopic(ctx context.Context, req driving.GetTopicRequest) (domain.Topic, error) {
	if err := f.allow("get_topic"); err != nil {
		return domain.Topic{}, err
	}
	if err := checkSize("path", req.Path); err != nil {
		return domain.Topic{}, err
	}
	if req.Path == "" {
		return domain.Topic{}, fmt.Errorf("%w: path is required", domain.ErrInvalidInput)
	}

	cursor := ""
	const maxPages = 50
	for page := 0; page < maxPages; page++ {
		hits, next, err := f.index.Scroll(ctx, driven.VectorFilter{PathPrefix: req.Path}, cursor, 200)
		if err != nil {
			return domain.Topic{}, fmt.Errorf("scrolling for topic %s: %w", req.Path, err)
		}
		for _, h := range hits {
			t := topicFromPayload(h.Payload)
			if t.Path == req.Path {
				if f.memory != nil {
					f.memory.WriteEvent(ctx, domain.MemoryEvent{
						Kind:    domain.MemoryEventTopicView,
						Payload: map[string]any{"topic_path": t.Path, "title": t.Title},
					})
				}
				return t, nil
			}
		}
		if next == "" {
			break
		}
		cursor = next
	}
	return domain.Topic{}, fmt.Errorf("%w: topic %s", domain.ErrNotFound, req.Path)
}

// GetFunctionInfo ranks topics by identifier across four bands — exact
// title match, case-insensitive title match, body match, semantic
// neighbor — stable-sorted within each band. ChooseIndex, if
// set, narrows the ranked list to a single disambiguated entry.
func (f *Facade) GetFunctionInfo(ctx context.Context, req driving.GetFunctionInfoRequest) ([]domain.SearchResult, error) {
	if err := f.allow("get_function_info"); err != nil {
		return nil, err
	}
	if err := checkSize("identifier", req.Identifier); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Identifier) == "" {
		return nil, fmt.Errorf("%w: identifier is empty", domain.ErrInvalidInput)
	}

	lexHits, err := f.lexical.Search(ctx, req.Identifier, "", MaxSearchK)
	if err != nil {
		return nil, fmt.Errorf("lexical lookup for %s: %w", req.Identifier, err)
	}

	seen := make(map[uint64]bool, len(lexHits))
	var exact, caseInsensitive, body []domain.SearchResult
	for _, r := range lexHits {
		seen[r.Topic.ID] = true
		switch {
		case r.Topic.Title == req.Identifier:
			exact = append(exact, r)
		case strings.EqualFold(r.Topic.Title, req.Identifier):
			caseInsensitive = append(caseInsensitive, r)
		default:
			body = append(body, r)
		}
	}

	var semantic []domain.SearchResult
	if f.embedder != nil && !f.embedder.Degraded() {
		if vec, embedErr := f.embedder.EmbedOne(ctx, req.Identifier); embedErr == nil {
			hits, searchErr := f.index.Search(ctx, vec, MaxSearchK, driven.VectorFilter{})
			if searchErr == nil {
				for _, h := range hits {
					t := topicFromPayload(h.Payload)
					if seen[t.ID] {
						continue
					}
					seen[t.ID] = true
					semantic = append(semantic, domain.SearchResult{Topic: t, Score: h.Score})
				}
			}
		}
	}

	stableByScore := func(rs []domain.SearchResult) {
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].Score > rs[j].Score })
	}
	stableByScore(exact)
	stableByScore(caseInsensitive)
	stableByScore(body)
	stableByScore(semantic)

	ranked := make([]domain.SearchResult, 0, len(exact)+len(caseInsensitive)+len(body)+len(semantic))
	ranked = append(ranked, exact...)
	ranked = append(ranked, caseInsensitive...)
	ranked = append(ranked, body...)
	ranked = append(ranked, semantic...)

	if len(ranked) == 0 {
		return nil, fmt.Errorf("%w: function %s", domain.ErrNotFound, req.Identifier)
	}
	if req.ChooseIndex > 0 && req.ChooseIndex <= len(ranked) {
		return ranked[req.ChooseIndex-1 : req.ChooseIndex], nil
	}
	return ranked, nil
}

// ListTitles returns a scroll-cursor page of (title, path) pairs.
func (f *Facade) ListTitles(ctx context.Context, req driving.ListTitlesRequest) (driving.ListTitlesResponse, error) {
	if err := f.allow("list_titles"); err != nil {
		return driving.ListTitlesResponse{}, err
	}
	size := req.PageSize
	if size <= 0 || size > 500 {
		size = 100
	}
	hits, next, err := f.index.Scroll(ctx, driven.VectorFilter{PathPrefix: req.PathPrefix}, req.Cursor, size)
	if err != nil {
		return driving.ListTitlesResponse{}, fmt.Errorf("scrolling titles: %w", err)
	}
	items := make([]driving.TitleEntry, 0, len(hits))
	for _, h := range hits {
		t := topicFromPayload(h.Payload)
		items = append(items, driving.TitleEntry{Title: t.Title, Path: t.Path, Version: t.Version})
	}
	return driving.ListTitlesResponse{Items: items, NextCursor: next}, nil
}

// IndexStatus reports the orchestrator's live or last-run status,
// enriched with recent ingest failures and the memory subsystem's
// pending-write backlog.
func (f *Facade) IndexStatus(ctx context.Context) (domain.IngestStatus, error) {
	if err := f.allow("index_status"); err != nil {
		return domain.IngestStatus{}, err
	}
	status := f.orchestrator.Status()
	if f.cache != nil {
		status.RecentFailures = f.cache.RecentFailures(ctx, 20)
	}
	if f.memory != nil {
		status.PendingMemory = f.memory.PendingCount()
	}
	return status, nil
}

// SaveSnippet classifies and writes a user-contributed snippet straight
// to the long tier, deferring (never failing) when the backend is
// degraded.
func (f *Facade) SaveSnippet(ctx context.Context, req driving.SaveSnippetRequest) (driving.SaveSnippetResponse, error) {
	if err := f.allow("save_snippet"); err != nil {
		return driving.SaveSnippetResponse{}, err
	}
	if err := checkSize("code", req.Code); err != nil {
		return driving.SaveSnippetResponse{}, err
	}
	if strings.TrimSpace(req.Code) == "" {
		return driving.SaveSnippetResponse{}, fmt.Errorf("%w: code is empty", domain.ErrInvalidInput)
	}

	snippet := domain.Snippet{
		Title:       req.Title,
		Description: req.Description,
		Code:        req.Code,
		Domain:      domain.DomainSnippets,
		Class:       domain.SnippetClassSnippet,
	}
	if f.memory == nil {
		return driving.SaveSnippetResponse{Deferred: true}, nil
	}
	return driving.SaveSnippetResponse{Deferred: f.memory.RecordSnippet(ctx, snippet)}, nil
}

// TriggerReindex enqueues an ingest run, refusing with ErrSyncInProgress
// if one is already active rather than queueing a second concurrent run.
func (f *Facade) TriggerReindex(ctx context.Context) (driving.TriggerReindexResponse, error) {
	if err := f.allow("trigger_reindex"); err != nil {
		return driving.TriggerReindexResponse{}, err
	}
	if f.orchestrator.Status().Running {
		return driving.TriggerReindexResponse{}, domain.ErrSyncInProgress
	}
	opts := f.reindexOpts
	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
		defer cancel()
		if err := f.orchestrator.Run(runCtx, opts); err != nil {
			logger.Warn("triggered reindex failed: %v", err)
		}
	}()
	return driving.TriggerReindexResponse{Enqueued: true}, nil
}

func toVectorFilter(f domain.SearchFilter) driven.VectorFilter {
	return driven.VectorFilter{Version: f.Version, Language: f.Language, PathPrefix: f.PathPrefix}
}

func topicFromPayload(payload map[string]any) domain.Topic {
	str := func(key string) string {
		v, _ := payload[key].(string)
		return v
	}
	var id uint64
	if v, ok := payload["id"].(float64); ok {
		id = uint64(v)
	}
	return domain.Topic{
		ID:       id,
		Title:    str("title"),
		Body:     str("body"),
		Path:     str("path"),
		Version:  str("version"),
		Language: str("language"),
		Domain:   str("domain"),
	}
}
