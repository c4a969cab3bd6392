package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/MereWhiplash/phrase-embedder/internal/client"
	"github.com/MereWhiplash/phrase-embedder/internal/shim"
	"github.com/MereWhiplash/phrase-embedder/internal/tools"
)

var mcpAPIURL string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server (stdio mode)",
	Long: `Start the Model Context Protocol server on stdio, exposing the
embed_status, embed_run and embed_get_run tools.

With --api-url (or EMBED_API_URL) the tools forward to a running
"phrase-embedder api" server instead of opening storage locally.`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpAPIURL, "api-url", "", "Forward tools to this API server (env EMBED_API_URL)")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "phrase-embedder",
		Version: version,
	}, nil)

	apiURL := mcpAPIURL
	if apiURL == "" {
		apiURL = os.Getenv("EMBED_API_URL")
	}

	if apiURL != "" {
		shim.Register(server, shim.NewHandler(client.New(apiURL)))
		globalLogger.Info("starting MCP shim", "api_url", apiURL)
		return server.Run(ctx, &mcp.StdioTransport{})
	}

	svc, err := openService(ctx, globalConfig)
	if err != nil {
		return err
	}
	defer svc.Close()

	tools.Register(server, svc)
	globalLogger.Info("starting MCP server", "model", globalConfig.Model)
	return server.Run(ctx, &mcp.StdioTransport{})
}
