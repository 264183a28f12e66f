package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ringwire/callflow"
	"github.com/ringwire/callflow/pkg/adapters/mcp"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes flow authoring tools to AI assistants: validate_flow, get_flow,
render_graph and test_webhook, plus the callflow://agents resource.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		addr, _ := cmd.Flags().GetString("addr")
		baseURL, _ := cmd.Flags().GetString("base-url")

		engine, storage, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer storage.Close()
		defer engine.Close()

		srv := mcp.NewServer(engine, callflow.Version, mcp.WithLogger(logger))

		switch transport {
		case "stdio":
			logger.Info("mcp server listening (stdio)")
			return srv.ServeStdio()
		case "sse":
			if baseURL == "" {
				baseURL = "http://localhost" + addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.ServeSSE(ctx, addr, baseURL)
		}
		return fmt.Errorf("unknown transport %q (want stdio or sse)", transport)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("transport", "stdio", "transport: stdio or sse")
	mcpCmd.Flags().String("addr", ":8081", "listen address for the sse transport")
	mcpCmd.Flags().String("base-url", "", "public base URL for the sse transport (default http://localhost<addr>)")
}
