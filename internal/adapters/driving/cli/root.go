// Package cli wires configuration, driven adapters, and core services
// into the hbk-helper command tree.
package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mussolene/1c-hbk-helper/internal/adapters/driven/archive"
	"github.com/mussolene/1c-hbk-helper/internal/adapters/driven/embedding/deterministic"
	"github.com/mussolene/1c-hbk-helper/internal/adapters/driven/embedding/local"
	"github.com/mussolene/1c-hbk-helper/internal/adapters/driven/embedding/placeholder"
	"github.com/mussolene/1c-hbk-helper/internal/adapters/driven/embedding/remote"
	"github.com/mussolene/1c-hbk-helper/internal/adapters/driven/htmlmd"
	"github.com/mussolene/1c-hbk-helper/internal/adapters/driven/lexical"
	"github.com/mussolene/1c-hbk-helper/internal/adapters/driven/snippets"
	"github.com/mussolene/1c-hbk-helper/internal/adapters/driven/storage/sqlite"
	"github.com/mussolene/1c-hbk-helper/internal/adapters/driven/vectorstore/qdrant"
	"github.com/mussolene/1c-hbk-helper/internal/config"
	"github.com/mussolene/1c-hbk-helper/internal/core/ports/driven"
	"github.com/mussolene/1c-hbk-helper/internal/core/ports/driving"
	"github.com/mussolene/1c-hbk-helper/internal/core/services"
	"github.com/mussolene/1c-hbk-helper/internal/logger"
)

// version is overridden at build time via -ldflags.
var version = "dev"

var (
	cfg config.Config

	indexWriter   *services.IndexWriter
	dispatcher    *services.Dispatcher
	ingestCache   *services.IngestCache
	lexicalIndex  *lexical.Index
	memoryStore   *services.MemoryStore
	orchestrator  *services.Orchestrator
	facadeService driving.SearchFacade
	watchLoop     *services.Watcher
	snippetLoader *snippets.Loader
)

var rootCmd = &cobra.Command{
	Use:   "hbk-helper",
	Short: "Vendor help archive search index and MCP tool server",
	Long: `hbk-helper ingests vendor .hbk help archives, converts their pages to
Markdown, builds a semantic and keyword search index in a vector store,
and serves the index to AI agents over the Model Context Protocol.`,
	PersistentPreRunE: initServices,
	SilenceUsage:      true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// initServices builds the whole service graph from the environment.
// It runs once before every subcommand.
func initServices(_ *cobra.Command, _ []string) error {
	cfg = config.Load()
	logger.SetVerbose(cfg.Verbose)
	logger.SetProduction(cfg.Production)

	store := qdrant.New(qdrant.Config{
		URL:        cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.Collection,
	})
	indexWriter = services.NewIndexWriter(store)

	backend, err := buildBackend(cfg.Embedding)
	if err != nil {
		return err
	}
	dispatcher = services.NewDispatcher(backend, services.DispatcherConfig{
		BatchSize:     cfg.Embedding.BatchSize,
		Workers:       cfg.Embedding.Workers,
		ForceBatch:    cfg.Embedding.ForceBatch,
		SingleTimeout: cfg.Embedding.Timeout,
		MaxConcurrent: cfg.Embedding.MaxConcurrent,
	})

	cacheStore, err := sqlite.NewStore(cfg.DataDir)
	if err != nil {
		logger.Warn("ingest cache unavailable, every archive will be treated as unseen: %v", err)
		ingestCache = services.NewIngestCache(nil)
	} else {
		ingestCache = services.NewIngestCache(cacheStore)
	}

	lexicalIndex, err = lexical.Open(cfg.LexicalPath)
	if err != nil {
		return fmt.Errorf("opening lexical index: %w", err)
	}

	memoryBase := cfg.Memory.BasePath
	if memoryBase == "" {
		memoryBase = filepath.Join(cfg.DataDir, "memory")
	}
	memoryStore, err = services.NewMemoryStore(memoryBase, cfg.Memory.ShortLimit, cfg.Memory.MedLimit, cfg.Memory.TTLDays, dispatcher, indexWriter, cfg.Memory.Enabled)
	if err != nil {
		return fmt.Errorf("initializing memory subsystem: %w", err)
	}
	memoryStore.SetLexical(lexicalIndex)

	pipeline := services.NewPipeline(archive.New(), htmlmd.New(), cfg.TempRoot)
	orchestrator = services.NewOrchestrator(pipeline, ingestCache, dispatcher, indexWriter, lexicalIndex)
	statusPath := cfg.StatusPath
	if statusPath == "" {
		statusPath = filepath.Join(cfg.DataDir, "ingest-status.json")
	}
	orchestrator.SetStatusPath(statusPath)

	reindexOpts := ingestOptions()
	facadeService = services.NewFacade(indexWriter, lexicalIndex, dispatcher, ingestCache, memoryStore, orchestrator, reindexOpts, cfg.ToolRatePerMinute)
	watchLoop = services.NewWatcher(orchestrator, memoryStore, reindexOpts, cfg.Watcher.ScanInterval, cfg.Watcher.DrainInterval)
	snippetLoader = snippets.New()

	return nil
}

// ingestOptions derives the default orchestrator options from config.
func ingestOptions() driving.IngestOptions {
	return driving.IngestOptions{
		SourceRoots: cfg.SourceRoots,
		Languages:   cfg.LanguageFilter,
		Workers:     cfg.IngestWorkers,
	}
}

// buildBackend selects the embedding backend variant.
func buildBackend(e config.Embedding) (driven.EmbeddingBackend, error) {
	switch e.Backend {
	case "remote", "openai":
		return remote.New(remote.Config{
			BaseURL: e.URL,
			APIKey:  e.APIKey,
			Model:   e.Model,
			Timeout: e.Timeout,
		})
	case "local", "ollama":
		return local.New(e.URL, e.Model), nil
	case "deterministic":
		return deterministic.New(), nil
	case "", "none":
		return placeholder.New(), nil
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", e.Backend)
	}
}
