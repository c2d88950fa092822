package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
	"github.com/mussolene/1c-hbk-helper/internal/core/ports/driven"
	"github.com/mussolene/1c-hbk-helper/internal/core/ports/driving"
)

// --- Fakes ---

type fakeIndex struct {
	hits       []driven.VectorHit
	scrollHits []driven.VectorHit
	searches   int
}

func (f *fakeIndex) Search(_ context.Context, _ []float32, k int, _ driven.VectorFilter) ([]driven.VectorHit, error) {
	f.searches++
	if k > len(f.hits) {
		return f.hits, nil
	}
	return f.hits[:k], nil
}

func (f *fakeIndex) Scroll(_ context.Context, _ driven.VectorFilter, cursor string, _ int) ([]driven.VectorHit, string, error) {
	if cursor != "" {
		return nil, "", nil
	}
	return f.scrollHits, "", nil
}

type fakeLexical struct {
	results []domain.SearchResult
	queries []string
}

func (f *fakeLexical) Search(_ context.Context, query string, _ string, k int) ([]domain.SearchResult, error) {
	f.queries = append(f.queries, query)
	if k > len(f.results) {
		return f.results, nil
	}
	return f.results[:k], nil
}

func (f *fakeLexical) Count() int { return len(f.results) }

type fakeEmbedder struct {
	degraded bool
	calls    int
}

func (f *fakeEmbedder) Name() string   { return domain.BackendDeterministic }
func (f *fakeEmbedder) Degraded() bool { return f.degraded }
func (f *fakeEmbedder) EmbedOne(context.Context, string) ([]float32, error) {
	f.calls++
	return []float32{1, 0}, nil
}

type fakeFacadeMemory struct {
	pending  int
	deferred bool
	saved    []domain.Snippet
	events   []domain.MemoryEvent
}

func (f *fakeFacadeMemory) PendingCount() int { return f.pending }
func (f *fakeFacadeMemory) RecordSnippet(_ context.Context, s domain.Snippet) bool {
	f.saved = append(f.saved, s)
	return f.deferred
}
func (f *fakeFacadeMemory) WriteEvent(_ context.Context, evt domain.MemoryEvent) {
	f.events = append(f.events, evt)
}

type fakeOrchestrator struct {
	status domain.IngestStatus
	runs   int
}

func (f *fakeOrchestrator) Run(context.Context, driving.IngestOptions) error {
	f.runs++
	return nil
}

func (f *fakeOrchestrator) Status() domain.IngestStatus { return f.status }

func topicHit(title, path string, score float64) driven.VectorHit {
	return driven.VectorHit{
		Payload: map[string]any{"title": title, "path": path, "domain": domain.DomainHelp},
		Score:   score,
	}
}

func newTestFacade(rpm float64) (*Facade, *fakeIndex, *fakeLexical, *fakeEmbedder, *fakeFacadeMemory, *fakeOrchestrator) {
	index := &fakeIndex{}
	lex := &fakeLexical{}
	emb := &fakeEmbedder{}
	mem := &fakeFacadeMemory{}
	orch := &fakeOrchestrator{}
	f := NewFacade(index, lex, emb, NewIngestCache(nil), mem, orch, driving.IngestOptions{}, rpm)
	return f, index, lex, emb, mem, orch
}

// --- Input limits ---

func TestSemanticSearchRejectsOversizedQuery(t *testing.T) {
	f, index, _, emb, _, _ := newTestFacade(0)

	over := strings.Repeat("q", MaxInputBytes+1)
	_, err := f.SemanticSearch(context.Background(), driving.SemanticSearchRequest{Query: over})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, emb.calls, "no embedding call on rejected input")
	assert.Zero(t, index.searches)
}

func TestSemanticSearchAcceptsQueryAtCap(t *testing.T) {
	f, _, _, emb, _, _ := newTestFacade(0)

	atCap := strings.Repeat("q", MaxInputBytes)
	_, err := f.SemanticSearch(context.Background(), driving.SemanticSearchRequest{Query: atCap})
	require.NoError(t, err)
	assert.Equal(t, 1, emb.calls)
}

func TestSemanticSearchRejectsEmptyQuery(t *testing.T) {
	f, _, _, _, _, _ := newTestFacade(0)
	_, err := f.SemanticSearch(context.Background(), driving.SemanticSearchRequest{Query: "   "})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

// --- Degraded fallback ---

func TestSemanticSearchFallsBackToLexicalWhenDegraded(t *testing.T) {
	f, index, lex, emb, _, _ := newTestFacade(0)
	emb.degraded = true
	lex.results = []domain.SearchResult{{Topic: domain.Topic{Title: "Array"}, Score: 1}}

	resp, err := f.SemanticSearch(context.Background(), driving.SemanticSearchRequest{Query: "array"})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Array", resp.Results[0].Topic.Title)
	assert.Zero(t, index.searches)
}

// --- Rate limiting ---

func TestSaveSnippetRateLimited(t *testing.T) {
	f, _, _, _, _, _ := newTestFacade(5)

	for i := 0; i < 5; i++ {
		_, err := f.SaveSnippet(context.Background(), driving.SaveSnippetRequest{Title: "T", Code: "C"})
		require.NoError(t, err, "call %d within the bucket must succeed", i+1)
	}
	_, err := f.SaveSnippet(context.Background(), driving.SaveSnippetRequest{Title: "T", Code: "C"})
	require.ErrorIs(t, err, domain.ErrRateLimited)
}

// --- Function info ranking ---

func TestGetFunctionInfoRanksBands(t *testing.T) {
	f, index, lex, _, _, _ := newTestFacade(0)
	lex.results = []domain.SearchResult{
		{Topic: domain.Topic{ID: 1, Title: "strfind mentioned in body"}, Score: 9},
		{Topic: domain.Topic{ID: 2, Title: "StrFind"}, Score: 5},
		{Topic: domain.Topic{ID: 3, Title: "STRFIND"}, Score: 7},
	}
	index.hits = []driven.VectorHit{topicHit("Related", "r.html", 0.4)}

	results, err := f.GetFunctionInfo(context.Background(), driving.GetFunctionInfoRequest{Identifier: "StrFind"})
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, "StrFind", results[0].Topic.Title, "exact title match first")
	assert.Equal(t, "STRFIND", results[1].Topic.Title, "case-insensitive title match second")
	assert.Equal(t, "strfind mentioned in body", results[2].Topic.Title, "body match third")
	assert.Equal(t, "Related", results[3].Topic.Title, "semantic neighbor last")
}

func TestGetFunctionInfoChooseIndex(t *testing.T) {
	f, _, lex, _, _, _ := newTestFacade(0)
	lex.results = []domain.SearchResult{
		{Topic: domain.Topic{ID: 1, Title: "Open"}, Score: 5},
		{Topic: domain.Topic{ID: 2, Title: "open"}, Score: 4},
	}

	results, err := f.GetFunctionInfo(context.Background(), driving.GetFunctionInfoRequest{Identifier: "Open", ChooseIndex: 2})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "open", results[0].Topic.Title)
}

func TestGetFunctionInfoNotFound(t *testing.T) {
	f, _, _, _, _, _ := newTestFacade(0)
	_, err := f.GetFunctionInfo(context.Background(), driving.GetFunctionInfoRequest{Identifier: "Nothing"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

// --- Topic fetch ---

func TestGetTopicByPath(t *testing.T) {
	f, index, _, _, mem, _ := newTestFacade(0)
	index.scrollHits = []driven.VectorHit{topicHit("Array", "objects/array.html", 0)}

	topic, err := f.GetTopic(context.Background(), driving.GetTopicRequest{Path: "objects/array.html"})
	require.NoError(t, err)
	assert.Equal(t, "Array", topic.Title)
	require.Len(t, mem.events, 1, "a topic view is recorded as a memory event")
	assert.Equal(t, domain.MemoryEventTopicView, mem.events[0].Kind)
}

func TestGetTopicNotFound(t *testing.T) {
	f, _, _, _, _, _ := newTestFacade(0)
	_, err := f.GetTopic(context.Background(), driving.GetTopicRequest{Path: "missing.html"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

// --- Snippet save ---

func TestSaveSnippetDeferredWhenDegraded(t *testing.T) {
	f, _, _, _, mem, _ := newTestFacade(0)
	mem.deferred = true

	resp, err := f.SaveSnippet(context.Background(), driving.SaveSnippetRequest{Title: "T", Code: "C"})
	require.NoError(t, err, "degraded backend must not fail the save")
	assert.True(t, resp.Deferred)
	require.Len(t, mem.saved, 1)
	assert.Equal(t, domain.DomainSnippets, mem.saved[0].Domain)
}

func TestSaveSnippetRejectsEmptyCode(t *testing.T) {
	f, _, _, _, mem, _ := newTestFacade(0)
	_, err := f.SaveSnippet(context.Background(), driving.SaveSnippetRequest{Title: "T"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, mem.saved)
}

// --- Reindex trigger ---

func TestTriggerReindexConflictsWhileRunning(t *testing.T) {
	f, _, _, _, _, orch := newTestFacade(0)
	orch.status.Running = true

	_, err := f.TriggerReindex(context.Background())
	require.ErrorIs(t, err, domain.ErrSyncInProgress)
}

// --- Status ---

func TestIndexStatusIncludesPendingMemory(t *testing.T) {
	f, _, _, _, mem, orch := newTestFacade(0)
	orch.status.TotalTopics = 10
	mem.pending = 3

	status, err := f.IndexStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, status.TotalTopics)
	assert.Equal(t, 3, status.PendingMemory)
}
