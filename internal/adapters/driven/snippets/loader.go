// Package snippets implements driven.SnippetLoader, reading curated code
// snippets from a mountable, read-only directory at startup.
// Three formats are supported: JSON arrays of snippet objects, Markdown
// files with TOML front-matter delimited by +++ lines, and raw code
// files with a recognized extension, each loaded as one snippet with
// the filename stem as title. Snippets carry no language tag.
package snippets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
	"github.com/mussolene/1c-hbk-helper/internal/logger"
)

// Loader implements driven.SnippetLoader.
type Loader struct{}

// New constructs the snippet loader.
func New() *Loader { return &Loader{} }

type jsonSnippet struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Code        string `json:"code"`
	Domain      string `json:"domain"`
	Class       string `json:"class"`
}

type frontMatter struct {
	Title       string `toml:"title"`
	Description string `toml:"description"`
	Domain      string `toml:"domain"`
	Class       string `toml:"class"`
}

// rawCodeExtensions is the set of file extensions loaded as raw code
// snippets, for files with no front-matter or JSON wrapper.
var rawCodeExtensions = map[string]bool{
	".1c": true, ".bsl": true, ".os": true, ".sql": true, ".txt": true,
}

// Load reads every recognized snippet file under dir. A missing or
// unreadable directory is not an error: it yields zero snippets, since
// save_snippet must keep working without a configured snippets mount.
func (l *Loader) Load(dir string) ([]domain.Snippet, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		logger.Warn("snippets directory %s unreadable: %v", dir, err)
		return nil, nil
	}

	var out []domain.Snippet
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		snippets, err := l.loadFile(path)
		if err != nil {
			logger.Warn("skipping snippet file %s: %v", path, err)
			continue
		}
		out = append(out, snippets...)
	}
	return out, nil
}

func (l *Loader) loadFile(path string) ([]domain.Snippet, error) {
	ext := strings.ToLower(filepath.Ext(path))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	switch ext {
	case ".json":
		return loadJSON(data)
	case ".md", ".markdown":
		return loadMarkdown(path, data)
	default:
		if rawCodeExtensions[ext] {
			return loadRaw(path, data)
		}
		return nil, nil
	}
}

func loadJSON(data []byte) ([]domain.Snippet, error) {
	var raw []jsonSnippet
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding json snippet array: %w", err)
	}
	out := make([]domain.Snippet, 0, len(raw))
	for _, r := range raw {
		out = append(out, domain.Snippet{
			Title:       r.Title,
			Description: r.Description,
			Code:        r.Code,
			Domain:      normalizeDomain(r.Domain),
			Class:       normalizeClass(r.Class),
		})
	}
	return out, nil
}

func loadMarkdown(path string, data []byte) ([]domain.Snippet, error) {
	content := string(data)
	fm := frontMatter{}
	body := content

	if strings.HasPrefix(content, "+++\n") {
		rest := content[4:]
		if end := strings.Index(rest, "\n+++"); end >= 0 {
			header := rest[:end]
			if err := toml.Unmarshal([]byte(header), &fm); err != nil {
				return nil, fmt.Errorf("decoding front matter in %s: %w", path, err)
			}
			afterMarker := rest[end+4:]
			body = strings.TrimPrefix(afterMarker, "\n")
		}
	}

	title := fm.Title
	if title == "" {
		title = titleFromFilename(path)
	}
	return []domain.Snippet{{
		Title:       title,
		Description: fm.Description,
		Code:        strings.TrimSpace(body),
		Domain:      normalizeDomain(fm.Domain),
		Class:       normalizeClass(fm.Class),
	}}, nil
}

func loadRaw(path string, data []byte) ([]domain.Snippet, error) {
	return []domain.Snippet{{
		Title:  titleFromFilename(path),
		Code:   string(data),
		Domain: domain.DomainSnippets,
		Class:  domain.SnippetClassSnippet,
	}}, nil
}

func titleFromFilename(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	base = strings.TrimSuffix(base, ext)
	base = strings.ReplaceAll(base, "_", " ")
	base = strings.ReplaceAll(base, "-", " ")
	return base
}

func normalizeDomain(s string) domain.MemoryDomain {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "community_help":
		return domain.DomainCommunityHelp
	case "standards":
		return domain.DomainStandards
	case "sessions":
		return domain.DomainSessions
	default:
		return domain.DomainSnippets
	}
}

func normalizeClass(s string) domain.SnippetClass {
	if strings.ToLower(strings.TrimSpace(s)) == string(domain.SnippetClassReference) {
		return domain.SnippetClassReference
	}
	return domain.SnippetClassSnippet
}
