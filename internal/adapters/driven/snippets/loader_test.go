package snippets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadJSONArray(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "batch.json", `[
		{"title": "Open file", "description": "opens", "code": "f = New File();", "domain": "snippets", "class": "snippet"},
		{"title": "Naming rules", "description": "prose", "code": "Use CamelCase.", "domain": "standards", "class": "reference"}
	]`)

	snippets, err := New().Load(dir)
	require.NoError(t, err)
	require.Len(t, snippets, 2)
	assert.Equal(t, "Open file", snippets[0].Title)
	assert.Equal(t, domain.DomainSnippets, snippets[0].Domain)
	assert.Equal(t, domain.SnippetClassSnippet, snippets[0].Class)
	assert.Equal(t, domain.DomainStandards, snippets[1].Domain)
	assert.Equal(t, domain.SnippetClassReference, snippets[1].Class)
}

func TestLoadMarkdownFrontMatter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "query.md", "+++\ntitle = \"Run query\"\ndescription = \"executes a query\"\ndomain = \"community_help\"\nclass = \"reference\"\n+++\nQuery.Execute();\n")

	snippets, err := New().Load(dir)
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.Equal(t, "Run query", snippets[0].Title)
	assert.Equal(t, domain.DomainCommunityHelp, snippets[0].Domain)
	assert.Equal(t, "Query.Execute();", snippets[0].Code)
}

func TestLoadMarkdownWithoutFrontMatter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "plain_note.md", "Just a note body.")

	snippets, err := New().Load(dir)
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.Equal(t, "plain note", snippets[0].Title, "title falls back to the filename stem")
}

func TestLoadRawCodeFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "open-catalog.bsl", "Catalogs.Items.CreateItem();")

	snippets, err := New().Load(dir)
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.Equal(t, "open catalog", snippets[0].Title)
	assert.Equal(t, domain.DomainSnippets, snippets[0].Domain)
}

func TestLoadSkipsUnrecognizedAndBroken(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "image.png", "\x89PNG")
	writeFile(t, dir, "broken.json", "{not json")
	writeFile(t, dir, "good.bsl", "x = 1;")

	snippets, err := New().Load(dir)
	require.NoError(t, err)
	require.Len(t, snippets, 1, "broken and unrecognized files are skipped, not fatal")
	assert.Equal(t, "good", snippets[0].Title)
}

func TestLoadMissingDirectory(t *testing.T) {
	snippets, err := New().Load("/nonexistent/snippets")
	assert.NoError(t, err, "a missing snippets mount is not an error")
	assert.Empty(t, snippets)
}

func TestLoadEmptyDirArgument(t *testing.T) {
	snippets, err := New().Load("")
	assert.NoError(t, err)
	assert.Empty(t, snippets)
}
