// Package mcptools exposes the orchestration engine as MCP tools over stdio
// or streamable HTTP.
package mcptools

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewMCPServer creates an MCP server with every aiproto tool registered.
func NewMCPServer(svc *Service) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "aiproto",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_deliverables",
		Description: "Generate prototyping documents (problem statement, personas, use cases, ...) from a project idea using the local LM Studio model. Deliverables are produced in order; later ones see earlier results. Returns every outcome and the merged document.",
	}, svc.GenerateDeliverables)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_deliverables",
		Description: "List the deliverable types that can be generated, in chain order.",
	}, svc.ListDeliverables)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_models",
		Description: "List the models loaded in LM Studio. Empty when the server is unreachable.",
	}, svc.ListModels)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "validate_templates",
		Description: "Check that a template exists and parses for every deliverable type.",
	}, svc.ValidateTemplates)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_runs",
		Description: "List recorded generation runs, newest first, with a Mermaid diagram of each run's deliverable chain.",
	}, svc.ListRuns)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_status",
		Description: "Report which deliverable files exist in an output directory and which deliverable is next in the chain.",
	}, svc.GetStatus)

	return server
}

// RunStdio runs the MCP server on stdio transport, blocking until stdin is
// closed or the context is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// Handler serves server over streamable HTTP.
func Handler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)
}

// RunHTTP serves handler on addr until ctx is cancelled.
func RunHTTP(ctx context.Context, addr string, handler http.Handler) error {
	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Shutdown gracefully when context is cancelled.
	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
