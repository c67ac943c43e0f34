package cli

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/librarian/internal/adapters/driving/mcp"
	"github.com/custodia-labs/librarian/internal/core/domain"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = libraryCommand(&cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server for AI assistant integration.

The server offers the tools search, index_status, start_indexing and
cancel_indexing, and exposes indexed books and chapters as resources.

By default, the server communicates over stdio using JSON-RPC and can be
used with Claude Desktop and other MCP-compatible AI assistants.

Use --port to start an HTTP server instead. It listens on server.host
from the configuration.

Examples:
  # Stdio mode (default, for Claude Desktop)
  librarian mcp serve

  # HTTP mode (for MCP Inspector, remote access)
  librarian mcp serve --port 8765

Claude Desktop configuration (claude_desktop_config.json):
  {
    "mcpServers": {
      "librarian": {
        "command": "/path/to/librarian",
        "args": ["mcp", "serve"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runMCPServe,
})

func init() {
	mcpServeCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}

	ports := &mcp.Ports{
		Search:   searchService,
		Indexing: indexingService,
		Library:  libraryService,
		Defaults: domain.SearchOptions{
			Limit:         appConfig.Search.Limit,
			MinSimilarity: appConfig.Search.MinSimilarity,
		},
	}

	server, err := mcp.NewServer(ports)
	if err != nil {
		return err
	}

	if port > 0 {
		addr := net.JoinHostPort(appConfig.Server.Host, strconv.Itoa(port))
		cmd.PrintErrf("MCP server listening on http://%s\n", addr)
		return server.RunHTTP(cmd.Context(), addr)
	}

	return server.Run(cmd.Context())
}
