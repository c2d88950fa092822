package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "http://localhost:6333", cfg.QdrantURL)
	assert.Equal(t, DefaultCollection, cfg.Collection)
	assert.Equal(t, DefaultDataDir, cfg.DataDir)
	assert.Equal(t, "none", cfg.Embedding.Backend)
	assert.True(t, cfg.Memory.Enabled)
	assert.True(t, cfg.Watcher.Enabled)
	assert.Equal(t, DefaultScanInterval, cfg.Watcher.ScanInterval)
	assert.Empty(t, cfg.SourceRoots)
}

func TestCanonicalSourcesVariable(t *testing.T) {
	t.Setenv("HELP_SOURCES_DIR", "/data/sources")
	cfg := Load()
	assert.Equal(t, []string{"/data/sources"}, cfg.SourceRoots)
}

func TestDeprecatedSourceBaseAlias(t *testing.T) {
	t.Setenv("HELP_SOURCE_BASE", "/legacy/sources")
	cfg := Load()
	assert.Equal(t, []string{"/legacy/sources"}, cfg.SourceRoots, "the deprecated alias behaves identically")
}

func TestCanonicalWinsOverAlias(t *testing.T) {
	t.Setenv("HELP_SOURCES_DIR", "/new")
	t.Setenv("HELP_SOURCE_BASE", "/old")
	cfg := Load()
	assert.Equal(t, []string{"/new"}, cfg.SourceRoots)
}

func TestCommaSeparatedLists(t *testing.T) {
	t.Setenv("HELP_SOURCES_DIR", "/a, /b ,/c")
	t.Setenv("HELP_LANGUAGE_FILTER", "ru,en")
	cfg := Load()
	assert.Equal(t, []string{"/a", "/b", "/c"}, cfg.SourceRoots)
	assert.Equal(t, []string{"ru", "en"}, cfg.LanguageFilter)
}

func TestEmbeddingSettings(t *testing.T) {
	t.Setenv("EMBEDDING_BACKEND", "Remote")
	t.Setenv("EMBEDDING_URL", "http://embedder:8000/v1")
	t.Setenv("EMBEDDING_BATCH_SIZE", "128")
	t.Setenv("EMBEDDING_WORKERS", "8")
	t.Setenv("EMBEDDING_FORCE_BATCH", "true")
	t.Setenv("EMBEDDING_TIMEOUT", "90")
	t.Setenv("EMBEDDING_MAX_CONCURRENT", "12")

	cfg := Load()
	assert.Equal(t, "remote", cfg.Embedding.Backend, "backend selector is case-insensitive")
	assert.Equal(t, "http://embedder:8000/v1", cfg.Embedding.URL)
	assert.Equal(t, 128, cfg.Embedding.BatchSize)
	assert.Equal(t, 8, cfg.Embedding.Workers)
	assert.True(t, cfg.Embedding.ForceBatch)
	assert.Equal(t, 90*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, 12, cfg.Embedding.MaxConcurrent)
}

func TestWatcherIntervals(t *testing.T) {
	t.Setenv("WATCHER_SCAN_INTERVAL", "30")
	t.Setenv("WATCHER_DRAIN_INTERVAL", "45")
	cfg := Load()
	assert.Equal(t, 30*time.Second, cfg.Watcher.ScanInterval)
	assert.Equal(t, 45*time.Second, cfg.Watcher.DrainInterval)
}

func TestUnknownVariablesAreIgnored(t *testing.T) {
	t.Setenv("HBK_TOTALLY_UNKNOWN_OPTION", "whatever")
	cfg := Load()
	assert.Equal(t, DefaultCollection, cfg.Collection)
}

func TestProductionFlag(t *testing.T) {
	t.Setenv("PRODUCTION", "true")
	cfg := Load()
	assert.True(t, cfg.Production)
}
