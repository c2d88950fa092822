package driven

import "github.com/mussolene/1c-hbk-helper/internal/core/domain"

// SnippetLoader reads snippet records from a mountable, read-only
// directory at startup. Supported formats:
// JSON arrays, Markdown with front-matter, and raw code files.
type SnippetLoader interface {
	Load(dir string) ([]domain.Snippet, error)
}
