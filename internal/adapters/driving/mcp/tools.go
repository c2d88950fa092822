package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
	"github.com/mussolene/1c-hbk-helper/internal/core/ports/driving"
)

// TopicSummary is one ranked result row shared by the search tools.
type TopicSummary struct {
	Title    string  `json:"title"`
	Path     string  `json:"path"`
	Version  string  `json:"version,omitempty"`
	Language string  `json:"language,omitempty"`
	Snippet  string  `json:"snippet,omitempty"`
	Score    float64 `json:"score"`
}

// SemanticSearchInput is the input schema for semantic_search.
type SemanticSearchInput struct {
	Query    string `json:"query" jsonschema:"natural-language question or phrase to search for"`
	K        int    `json:"k,omitempty" jsonschema:"number of results to return, 1-50 (default 10)"`
	Version  string `json:"version,omitempty" jsonschema:"restrict results to one platform version"`
	Language string `json:"language,omitempty" jsonschema:"restrict results to one documentation language"`
	Path     string `json:"path,omitempty" jsonschema:"restrict results to topics under this path prefix"`
}

// SemanticSearchOutput is the output schema for semantic_search.
type SemanticSearchOutput struct {
	Results  []TopicSummary `json:"results"`
	Count    int            `json:"count"`
	Degraded bool           `json:"degraded,omitempty"`
}

// KeywordSearchInput is the input schema for keyword_search.
type KeywordSearchInput struct {
	Query string `json:"query" jsonschema:"substring or keyword to match in titles and bodies"`
	Path  string `json:"path,omitempty" jsonschema:"restrict results to topics under this path prefix"`
	K     int    `json:"k,omitempty" jsonschema:"number of results to return (default 10)"`
}

// KeywordSearchOutput is the output schema for keyword_search.
type KeywordSearchOutput struct {
	Results []TopicSummary `json:"results"`
	Count   int            `json:"count"`
}

// GetTopicInput is the input schema for get_topic.
type GetTopicInput struct {
	Path string `json:"path" jsonschema:"exact topic path as returned by search or list_titles"`
}

// GetTopicOutput is the output schema for get_topic.
type GetTopicOutput struct {
	Title    string `json:"title"`
	Text     string `json:"text"`
	Path     string `json:"path"`
	Version  string `json:"version,omitempty"`
	Language string `json:"language,omitempty"`
}

// GetFunctionInfoInput is the input schema for get_function_info.
type GetFunctionInfoInput struct {
	Identifier  string `json:"identifier" jsonschema:"API identifier (function, method, or property name)"`
	ChooseIndex int    `json:"choose_index,omitempty" jsonschema:"1-based index to disambiguate a previous multi-match result"`
}

// GetFunctionInfoOutput is the output schema for get_function_info.
type GetFunctionInfoOutput struct {
	Matches []TopicSummary `json:"matches"`
	Count   int            `json:"count"`
}

// ListTitlesInput is the input schema for list_titles.
type ListTitlesInput struct {
	Path     string `json:"path,omitempty" jsonschema:"restrict the listing to topics under this path prefix"`
	Cursor   string `json:"cursor,omitempty" jsonschema:"pagination cursor from a previous call"`
	PageSize int    `json:"page_size,omitempty" jsonschema:"page size, max 500 (default 100)"`
}

// TitleRow is one entry of a list_titles page.
type TitleRow struct {
	Title   string `json:"title"`
	Path    string `json:"path"`
	Version string `json:"version,omitempty"`
}

// ListTitlesOutput is the output schema for list_titles.
type ListTitlesOutput struct {
	Titles     []TitleRow `json:"titles"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// IndexStatusOutput is the output schema for index_status.
type IndexStatusOutput struct {
	Phase            string   `json:"phase"`
	Running          bool     `json:"running"`
	TotalTopics      int      `json:"total_topics"`
	TopicsEmbedded   int      `json:"topics_embedded"`
	TopicsSkipped    int      `json:"topics_skipped"`
	Versions         []string `json:"versions,omitempty"`
	Languages        []string `json:"languages,omitempty"`
	ActiveBackend    string   `json:"active_backend"`
	Degraded         bool     `json:"degraded"`
	ThroughputPerSec float64  `json:"throughput_per_sec,omitempty"`
	ETASeconds       int      `json:"eta_seconds,omitempty"`
	PendingMemory    int      `json:"pending_memory,omitempty"`
	RecentFailures   []string `json:"recent_failures,omitempty"`
}

// SaveSnippetInput is the input schema for save_snippet.
type SaveSnippetInput struct {
	Title       string `json:"title" jsonschema:"short snippet title"`
	Description string `json:"description,omitempty" jsonschema:"what the snippet does and when to use it"`
	Code        string `json:"code" jsonschema:"the snippet source code"`
}

// SaveSnippetOutput is the output schema for save_snippet.
type SaveSnippetOutput struct {
	Saved    bool `json:"saved"`
	Deferred bool `json:"deferred,omitempty"`
}

// TriggerReindexOutput is the output schema for trigger_reindex.
type TriggerReindexOutput struct {
	Enqueued bool `json:"enqueued"`
}

// registerTools registers every tool handler with the MCP server. The
// table below is the complete public operation surface; both transports
// consume the same registrations.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "semantic_search",
		Description: "Search help topics by meaning, ranked by vector similarity",
	}, s.handleSemanticSearch)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "keyword_search",
		Description: "Search help topics and saved snippets by keyword, title matches first",
	}, s.handleKeywordSearch)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_topic",
		Description: "Fetch the full text of one help topic by its path",
	}, s.handleGetTopic)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_function_info",
		Description: "Look up an API identifier, best matches first, with a choose_index disambiguator",
	}, s.handleGetFunctionInfo)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_titles",
		Description: "List topic titles and paths, paginated, optionally under a path prefix",
	}, s.handleListTitles)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "index_status",
		Description: "Report index counts, versions, languages, the active embedding backend, and live ingest progress",
	}, s.handleIndexStatus)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "save_snippet",
		Description: "Save a community code snippet into the shared index",
	}, s.handleSaveSnippet)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "trigger_reindex",
		Description: "Start a background reingest of the help sources",
	}, s.handleTriggerReindex)
}

const snippetPreviewLen = 300

func summaries(results []domain.SearchResult) []TopicSummary {
	out := make([]TopicSummary, len(results))
	for i, r := range results {
		preview := r.Topic.Body
		if len(preview) > snippetPreviewLen {
			preview = preview[:snippetPreviewLen]
		}
		out[i] = TopicSummary{
			Title:    r.Topic.Title,
			Path:     r.Topic.Path,
			Version:  r.Topic.Version,
			Language: r.Topic.Language,
			Snippet:  preview,
			Score:    r.Score,
		}
	}
	return out
}

func (s *Server) handleSemanticSearch(ctx context.Context, _ *mcp.CallToolRequest, input SemanticSearchInput) (*mcp.CallToolResult, SemanticSearchOutput, error) {
	resp, err := s.ports.Facade.SemanticSearch(ctx, driving.SemanticSearchRequest{
		Query: input.Query,
		K:     input.K,
		Filter: domain.SearchFilter{
			Version:    input.Version,
			Language:   input.Language,
			PathPrefix: input.Path,
		},
	})
	if err != nil {
		return nil, SemanticSearchOutput{}, toolError("semantic_search", err)
	}
	rows := summaries(resp.Results)
	return nil, SemanticSearchOutput{Results: rows, Count: len(rows), Degraded: resp.Degraded}, nil
}

func (s *Server) handleKeywordSearch(ctx context.Context, _ *mcp.CallToolRequest, input KeywordSearchInput) (*mcp.CallToolResult, KeywordSearchOutput, error) {
	results, err := s.ports.Facade.KeywordSearch(ctx, driving.KeywordSearchRequest{
		Query:      input.Query,
		PathPrefix: input.Path,
		K:          input.K,
	})
	if err != nil {
		return nil, KeywordSearchOutput{}, toolError("keyword_search", err)
	}
	rows := summaries(results)
	return nil, KeywordSearchOutput{Results: rows, Count: len(rows)}, nil
}

func (s *Server) handleGetTopic(ctx context.Context, _ *mcp.CallToolRequest, input GetTopicInput) (*mcp.CallToolResult, GetTopicOutput, error) {
	topic, err := s.ports.Facade.GetTopic(ctx, driving.GetTopicRequest{Path: input.Path})
	if err != nil {
		return nil, GetTopicOutput{}, toolError("get_topic", err)
	}
	return nil, GetTopicOutput{
		Title:    topic.Title,
		Text:     topic.Body,
		Path:     topic.Path,
		Version:  topic.Version,
		Language: topic.Language,
	}, nil
}

func (s *Server) handleGetFunctionInfo(ctx context.Context, _ *mcp.CallToolRequest, input GetFunctionInfoInput) (*mcp.CallToolResult, GetFunctionInfoOutput, error) {
	results, err := s.ports.Facade.GetFunctionInfo(ctx, driving.GetFunctionInfoRequest{
		Identifier:  input.Identifier,
		ChooseIndex: input.ChooseIndex,
	})
	if err != nil {
		return nil, GetFunctionInfoOutput{}, toolError("get_function_info", err)
	}
	rows := summaries(results)
	return nil, GetFunctionInfoOutput{Matches: rows, Count: len(rows)}, nil
}

func (s *Server) handleListTitles(ctx context.Context, _ *mcp.CallToolRequest, input ListTitlesInput) (*mcp.CallToolResult, ListTitlesOutput, error) {
	resp, err := s.ports.Facade.ListTitles(ctx, driving.ListTitlesRequest{
		PathPrefix: input.Path,
		Cursor:     input.Cursor,
		PageSize:   input.PageSize,
	})
	if err != nil {
		return nil, ListTitlesOutput{}, toolError("list_titles", err)
	}
	rows := make([]TitleRow, len(resp.Items))
	for i, item := range resp.Items {
		rows[i] = TitleRow{Title: item.Title, Path: item.Path, Version: item.Version}
	}
	return nil, ListTitlesOutput{Titles: rows, NextCursor: resp.NextCursor}, nil
}

func (s *Server) handleIndexStatus(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, IndexStatusOutput, error) {
	status, err := s.ports.Facade.IndexStatus(ctx)
	if err != nil {
		return nil, IndexStatusOutput{}, toolError("index_status", err)
	}
	failures := make([]string, 0, len(status.RecentFailures))
	for _, f := range status.RecentFailures {
		failures = append(failures, f.Path+": "+f.Reason)
	}
	return nil, IndexStatusOutput{
		Phase:            string(status.Phase),
		Running:          status.Running,
		TotalTopics:      status.TotalTopics,
		TopicsEmbedded:   status.TopicsEmbedded,
		TopicsSkipped:    status.TopicsSkipped,
		Versions:         status.Versions,
		Languages:        status.Languages,
		ActiveBackend:    status.ActiveBackend,
		Degraded:         status.Degraded,
		ThroughputPerSec: status.ThroughputPerSec,
		ETASeconds:       int(status.ETA / time.Second),
		PendingMemory:    status.PendingMemory,
		RecentFailures:   failures,
	}, nil
}

func (s *Server) handleSaveSnippet(ctx context.Context, _ *mcp.CallToolRequest, input SaveSnippetInput) (*mcp.CallToolResult, SaveSnippetOutput, error) {
	resp, err := s.ports.Facade.SaveSnippet(ctx, driving.SaveSnippetRequest{
		Title:       input.Title,
		Description: input.Description,
		Code:        input.Code,
	})
	if err != nil {
		return nil, SaveSnippetOutput{}, toolError("save_snippet", err)
	}
	return nil, SaveSnippetOutput{Saved: true, Deferred: resp.Deferred}, nil
}

func (s *Server) handleTriggerReindex(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, TriggerReindexOutput, error) {
	resp, err := s.ports.Facade.TriggerReindex(ctx)
	if err != nil {
		return nil, TriggerReindexOutput{}, toolError("trigger_reindex", err)
	}
	return nil, TriggerReindexOutput{Enqueued: resp.Enqueued}, nil
}
