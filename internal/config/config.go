// Package config loads all tunables from environment variables through
// viper. Unknown variables are ignored; missing ones fall back to the
// documented defaults. Nothing here reads config files: deployment is
// container-first and every knob is an env var.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mussolene/1c-hbk-helper/internal/logger"
)

// Defaults for paths and intervals.
const (
	DefaultDataDir       = "/app/var/hbk-helper"
	DefaultCollection    = "help_topics"
	DefaultScanInterval  = 600 * time.Second
	DefaultDrainInterval = 600 * time.Second
)

// Embedding selects and tunes the embedding backend.
type Embedding struct {
	Backend       string // "remote", "local", "deterministic", "none"
	Model         string
	URL           string
	APIKey        string
	Dimension     int
	BatchSize     int
	Workers       int
	ForceBatch    bool
	Timeout       time.Duration
	MaxConcurrent int
}

// Memory tunes the three-tier memory subsystem.
type Memory struct {
	Enabled    bool
	BasePath   string
	ShortLimit int
	MedLimit   int
	TTLDays    int
}

// Watcher tunes the background rescan/drain loop.
type Watcher struct {
	Enabled       bool
	ScanInterval  time.Duration
	DrainInterval time.Duration
}

// Config is the root configuration object, built once at startup and
// passed explicitly to components; there is no ambient global config.
type Config struct {
	QdrantURL    string
	QdrantAPIKey string
	Collection   string

	SourceRoots    []string
	LanguageFilter []string
	TempRoot       string
	DataDir        string
	StatusPath     string
	SnippetsDir    string
	LexicalPath    string
	IngestWorkers  int

	Embedding Embedding
	Memory    Memory
	Watcher   Watcher

	ToolRatePerMinute float64
	ServeAllowlist    []string
	Production        bool
	Verbose           bool
}

// Load reads the environment into a Config. HELP_SOURCES_DIR is the
// canonical sources variable; HELP_SOURCE_BASE is honored as a
// deprecated alias with identical behavior and a one-time warning.
func Load() Config {
	v := viper.New()
	v.AutomaticEnv()

	bind := func(key string, envs ...string) {
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}

	bind("qdrant_url", "QDRANT_URL")
	bind("qdrant_api_key", "QDRANT_API_KEY")
	bind("qdrant_collection", "QDRANT_COLLECTION")
	bind("sources_dir", "HELP_SOURCES_DIR", "HELP_SOURCE_BASE")
	bind("language_filter", "HELP_LANGUAGE_FILTER")
	bind("temp_root", "HBK_TEMP_ROOT")
	bind("data_dir", "HBK_DATA_DIR")
	bind("status_path", "HBK_STATUS_PATH")
	bind("snippets_dir", "SNIPPETS_DIR")
	bind("lexical_path", "LEXICAL_INDEX_PATH")
	bind("ingest_workers", "INGEST_WORKERS")

	bind("embedding_backend", "EMBEDDING_BACKEND")
	bind("embedding_model", "EMBEDDING_MODEL")
	bind("embedding_url", "EMBEDDING_URL")
	bind("embedding_api_key", "EMBEDDING_API_KEY")
	bind("embedding_dimension", "EMBEDDING_DIMENSION")
	bind("embedding_batch_size", "EMBEDDING_BATCH_SIZE")
	bind("embedding_workers", "EMBEDDING_WORKERS")
	bind("embedding_force_batch", "EMBEDDING_FORCE_BATCH")
	bind("embedding_timeout", "EMBEDDING_TIMEOUT")
	bind("embedding_max_concurrent", "EMBEDDING_MAX_CONCURRENT")

	bind("memory_enabled", "MEMORY_ENABLED")
	bind("memory_base_path", "MEMORY_BASE_PATH")
	bind("memory_short_limit", "MEMORY_SHORT_LIMIT")
	bind("memory_medium_limit", "MEMORY_MEDIUM_LIMIT")
	bind("memory_medium_ttl_days", "MEMORY_MEDIUM_TTL_DAYS")

	bind("watcher_enabled", "WATCHER_ENABLED")
	bind("watcher_scan_interval", "WATCHER_SCAN_INTERVAL")
	bind("watcher_drain_interval", "WATCHER_DRAIN_INTERVAL")

	bind("tool_rate_limit_per_minute", "TOOL_RATE_LIMIT_PER_MINUTE")
	bind("serve_allowlist", "SERVE_ALLOWLIST")
	bind("production", "PRODUCTION")
	bind("verbose", "VERBOSE")

	v.SetDefault("qdrant_url", "http://localhost:6333")
	v.SetDefault("qdrant_collection", DefaultCollection)
	v.SetDefault("data_dir", DefaultDataDir)
	v.SetDefault("embedding_backend", "none")
	v.SetDefault("memory_enabled", true)
	v.SetDefault("watcher_enabled", true)
	v.SetDefault("watcher_scan_interval", 600)
	v.SetDefault("watcher_drain_interval", 600)

	if v.GetString("HELP_SOURCES_DIR") == "" && v.GetString("HELP_SOURCE_BASE") != "" {
		logger.Warn("HELP_SOURCE_BASE is deprecated, set HELP_SOURCES_DIR instead")
	}

	seconds := func(key string, fallback time.Duration) time.Duration {
		if n := v.GetInt(key); n > 0 {
			return time.Duration(n) * time.Second
		}
		return fallback
	}

	return Config{
		QdrantURL:    v.GetString("qdrant_url"),
		QdrantAPIKey: v.GetString("qdrant_api_key"),
		Collection:   v.GetString("qdrant_collection"),

		SourceRoots:    splitList(v.GetString("sources_dir")),
		LanguageFilter: splitList(v.GetString("language_filter")),
		TempRoot:       v.GetString("temp_root"),
		DataDir:        v.GetString("data_dir"),
		StatusPath:     v.GetString("status_path"),
		SnippetsDir:    v.GetString("snippets_dir"),
		LexicalPath:    v.GetString("lexical_path"),
		IngestWorkers:  v.GetInt("ingest_workers"),

		Embedding: Embedding{
			Backend:       strings.ToLower(v.GetString("embedding_backend")),
			Model:         v.GetString("embedding_model"),
			URL:           v.GetString("embedding_url"),
			APIKey:        v.GetString("embedding_api_key"),
			Dimension:     v.GetInt("embedding_dimension"),
			BatchSize:     v.GetInt("embedding_batch_size"),
			Workers:       v.GetInt("embedding_workers"),
			ForceBatch:    v.GetBool("embedding_force_batch"),
			Timeout:       seconds("embedding_timeout", 0),
			MaxConcurrent: v.GetInt("embedding_max_concurrent"),
		},
		Memory: Memory{
			Enabled:    v.GetBool("memory_enabled"),
			BasePath:   v.GetString("memory_base_path"),
			ShortLimit: v.GetInt("memory_short_limit"),
			MedLimit:   v.GetInt("memory_medium_limit"),
			TTLDays:    v.GetInt("memory_medium_ttl_days"),
		},
		Watcher: Watcher{
			Enabled:       v.GetBool("watcher_enabled"),
			ScanInterval:  seconds("watcher_scan_interval", DefaultScanInterval),
			DrainInterval: seconds("watcher_drain_interval", DefaultDrainInterval),
		},

		ToolRatePerMinute: v.GetFloat64("tool_rate_limit_per_minute"),
		ServeAllowlist:    splitList(v.GetString("serve_allowlist")),
		Production:        v.GetBool("production"),
		Verbose:           v.GetBool("verbose"),
	}
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
