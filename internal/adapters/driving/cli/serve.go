package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mussolene/1c-hbk-helper/internal/adapters/driving/mcp"
	"github.com/mussolene/1c-hbk-helper/internal/core/services"
	"github.com/mussolene/1c-hbk-helper/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP tool server",
	Long: `Start the tool server for AI assistant integration.

By default, the server communicates over stdio using JSON-RPC. Use
--port to serve streamable HTTP instead. Tool names and schemas are
identical on both transports.

When the watcher is enabled (WATCHER_ENABLED, default on), the server
also rescans the help sources and drains pending memory writes in the
background.

Examples:
  # Stdio mode (default, for MCP-capable editors and assistants)
  hbk-helper serve

  # HTTP mode
  hbk-helper serve --port 8080 --path /mcp`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	serveCmd.Flags().String("host", "", "HTTP listen host (default all interfaces)")
	serveCmd.Flags().String("path", "/mcp", "HTTP endpoint path")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}
	host, _ := cmd.Flags().GetString("host")
	path, _ := cmd.Flags().GetString("path")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	startupTasks(ctx)

	if cfg.Watcher.Enabled && len(cfg.SourceRoots) > 0 {
		go func() {
			if err := watchLoop.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("watcher stopped: %v", err)
			}
		}()
	}

	server, err := mcp.NewServer(&mcp.Ports{Facade: facadeService})
	if err != nil {
		return err
	}

	if port > 0 {
		addr := fmt.Sprintf("%s:%d", host, port)
		fmt.Fprintf(cmd.OutOrStdout(), "MCP server listening on http://%s%s\n", addr, path)
		return server.RunHTTP(ctx, addr, path)
	}
	return server.Run(ctx)
}

// startupTasks restores derived state before serving: the keyword index
// is rebuilt from the vector store when stale, and the snippets mount is
// loaded. Both are best-effort; the server starts either way.
func startupTasks(ctx context.Context) {
	if services.StaleLexical(ctx, indexWriter, lexicalIndex) {
		n, err := services.RebuildLexical(ctx, indexWriter, lexicalIndex)
		if err != nil {
			logger.Warn("rebuilding keyword index: %v", err)
		} else {
			logger.Info("keyword index rebuilt with %d documents", n)
		}
	}
	if cfg.SnippetsDir != "" {
		loaded, err := snippetLoader.Load(cfg.SnippetsDir)
		if err != nil {
			logger.Warn("loading snippets from %s: %v", cfg.SnippetsDir, err)
		} else if len(loaded) > 0 {
			n := memoryStore.IngestSnippets(ctx, loaded)
			logger.Info("loaded %d/%d snippets from %s", n, len(loaded), cfg.SnippetsDir)
		}
	}
}
