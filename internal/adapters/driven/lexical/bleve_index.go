// Package lexical implements driven.LexicalIndex with bleve/v2. It is a
// derived cache: rebuilt from the vector store's Scroll when serve
// starts and finds the index empty while the store holds help topics.
package lexical

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
)

// topicDoc is the document shape indexed into bleve: the keyword-side
// projection of a topic.
type topicDoc struct {
	ID       uint64 `json:"id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Path     string `json:"path"`
	Version  string `json:"version"`
	Language string `json:"language"`
}

// Index is a bleve-backed LexicalIndex. Safe for concurrent use.
type Index struct {
	mu    sync.RWMutex
	idx   bleve.Index
	path  string
	count int
}

// Open opens or creates a bleve index at path. An empty path creates an
// in-memory index, used in tests and when no persistence directory is
// configured.
func Open(path string) (*Index, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(buildMapping())
		if err != nil {
			return nil, fmt.Errorf("creating in-memory lexical index: %w", err)
		}
		return &Index{idx: idx}, nil
	}

	idx, err := bleve.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			idx, createErr := bleve.New(path, buildMapping())
			if createErr != nil {
				return nil, fmt.Errorf("opening lexical index at %s: %w (recreate failed: %v)", path, err, createErr)
			}
			return &Index{idx: idx, path: path}, nil
		}
		idx, err = bleve.New(path, buildMapping())
		if err != nil {
			return nil, fmt.Errorf("creating lexical index at %s: %w", path, err)
		}
	}
	return &Index{idx: idx, path: path}, nil
}

func buildMapping() *mapping.IndexMappingImpl {
	docMapping := bleve.NewDocumentMapping()

	titleField := bleve.NewTextFieldMapping()
	titleField.Analyzer = "standard"
	docMapping.AddFieldMappingsAt("title", titleField)

	bodyField := bleve.NewTextFieldMapping()
	bodyField.Analyzer = "standard"
	docMapping.AddFieldMappingsAt("body", bodyField)

	keywordField := bleve.NewTextFieldMapping()
	keywordField.Analyzer = "keyword"
	docMapping.AddFieldMappingsAt("path", keywordField)
	docMapping.AddFieldMappingsAt("version", keywordField)
	docMapping.AddFieldMappingsAt("language", keywordField)

	mapping := bleve.NewIndexMapping()
	mapping.DefaultMapping = docMapping
	return mapping
}

// Index adds or updates one topic in the keyword index.
func (i *Index) Index(ctx context.Context, t domain.Topic) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	doc := topicDoc{
		ID:       t.ID,
		Title:    t.Title,
		Body:     t.Body,
		Path:     t.Path,
		Version:  t.Version,
		Language: t.Language,
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.idx.Index(docID(t.ID), doc); err != nil {
		return fmt.Errorf("indexing topic %d: %w", t.ID, err)
	}
	i.count++
	return nil
}

// Search ranks topics whose title or body matches query, title matches
// first, then by BM25 score, optionally restricted to a path prefix.
func (i *Index) Search(ctx context.Context, q string, pathPrefix string, k int) ([]domain.SearchResult, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if k <= 0 {
		k = 10
	}
	titleQuery := bleve.NewMatchQuery(q)
	titleQuery.SetField("title")
	titleQuery.SetBoost(2.0)

	bodyQuery := bleve.NewMatchQuery(q)
	bodyQuery.SetField("body")

	disjunction := bleve.NewDisjunctionQuery(titleQuery, bodyQuery)

	var finalQuery query.Query = disjunction
	if pathPrefix != "" {
		prefixQuery := bleve.NewPrefixQuery(pathPrefix)
		prefixQuery.SetField("path")
		finalQuery = bleve.NewConjunctionQuery(disjunction, prefixQuery)
	}

	req := bleve.NewSearchRequestOptions(finalQuery, k, 0, false)
	req.Fields = []string{"title", "body", "path", "version", "language"}

	i.mu.RLock()
	result, err := i.idx.SearchInContext(ctx, req)
	i.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	out := make([]domain.SearchResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		out = append(out, domain.SearchResult{
			Topic: topicFromFields(hit.ID, hit.Fields),
			Score: hit.Score,
		})
	}
	sort.SliceStable(out, func(a, b int) bool {
		aTitle := strings.Contains(strings.ToLower(out[a].Topic.Title), strings.ToLower(q))
		bTitle := strings.Contains(strings.ToLower(out[b].Topic.Title), strings.ToLower(q))
		if aTitle != bTitle {
			return aTitle
		}
		return out[a].Score > out[b].Score
	})
	return out, nil
}

// Count returns the number of indexed documents.
func (i *Index) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if n, err := i.idx.DocCount(); err == nil {
		return int(n)
	}
	return i.count
}

// Close releases the underlying bleve index.
func (i *Index) Close() error { return i.idx.Close() }

func docID(id uint64) string { return fmt.Sprintf("%d", id) }

func topicFromFields(id string, fields map[string]any) domain.Topic {
	t := domain.Topic{}
	if v, ok := fields["title"].(string); ok {
		t.Title = v
	}
	if v, ok := fields["body"].(string); ok {
		t.Body = v
	}
	if v, ok := fields["path"].(string); ok {
		t.Path = v
	}
	if v, ok := fields["version"].(string); ok {
		t.Version = v
	}
	if v, ok := fields["language"].(string); ok {
		t.Language = v
	}
	fmt.Sscanf(id, "%d", &t.ID)
	return t
}
