// Package driving declares the primary/inbound ports the transport layer
// (MCP stdio/HTTP) drives: the tool façade's eight named operations.
package driving

import (
	"context"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
)

// SemanticSearchRequest is the input to semantic_search.
type SemanticSearchRequest struct {
	Query  string
	K      int
	Filter domain.SearchFilter
}

// SemanticSearchResponse carries results plus a degraded flag: a
// degraded backend is a soft signal, not an error.
type SemanticSearchResponse struct {
	Results  []domain.SearchResult
	Degraded bool
}

// KeywordSearchRequest is the input to keyword_search.
type KeywordSearchRequest struct {
	Query      string
	PathPrefix string
	K          int
}

// GetTopicRequest is the input to get_topic.
type GetTopicRequest struct {
	Path string
}

// GetFunctionInfoRequest is the input to get_function_info.
type GetFunctionInfoRequest struct {
	Identifier  string
	ChooseIndex int
}

// ListTitlesRequest is the input to list_titles.
type ListTitlesRequest struct {
	PathPrefix string
	Cursor     string
	PageSize   int
}

// ListTitlesResponse is a page of (title, path) pairs.
type ListTitlesResponse struct {
	Items      []TitleEntry
	NextCursor string
}

// TitleEntry is one row of a list_titles page.
type TitleEntry struct {
	Title   string
	Path    string
	Version string
}

// SaveSnippetRequest is the input to save_snippet.
type SaveSnippetRequest struct {
	Title       string
	Description string
	Code        string
}

// SaveSnippetResponse acknowledges a save_snippet call.
type SaveSnippetResponse struct {
	Deferred bool
}

// TriggerReindexResponse acknowledges a trigger_reindex call.
type TriggerReindexResponse struct {
	Enqueued bool
}

// SearchFacade is the set of public tool-façade operations.
// Transports (stdio, streamable HTTP) are transparent to this interface.
type SearchFacade interface {
	SemanticSearch(ctx context.Context, req SemanticSearchRequest) (SemanticSearchResponse, error)
	KeywordSearch(ctx context.Context, req KeywordSearchRequest) ([]domain.SearchResult, error)
	GetTopic(ctx context.Context, req GetTopicRequest) (domain.Topic, error)
	GetFunctionInfo(ctx context.Context, req GetFunctionInfoRequest) ([]domain.SearchResult, error)
	ListTitles(ctx context.Context, req ListTitlesRequest) (ListTitlesResponse, error)
	IndexStatus(ctx context.Context) (domain.IngestStatus, error)
	SaveSnippet(ctx context.Context, req SaveSnippetRequest) (SaveSnippetResponse, error)
	TriggerReindex(ctx context.Context) (TriggerReindexResponse, error)
}
