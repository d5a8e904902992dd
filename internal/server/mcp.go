package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/docraghq/docrag/internal/rag"
	"github.com/docraghq/docrag/internal/searcher"
)

const (
	mcpServerName    = "docrag"
	mcpServerVersion = "1.0.0"
)

// NewMCPServer exposes question answering over already-uploaded documents as
// an MCP tool. Uploads and builds still happen over HTTP; the tool only
// reads.
func NewMCPServer(svc *rag.Service) *mcpserver.MCPServer {
	tool := mcp.NewTool("ask_documents",
		mcp.WithDescription("Answer a question from the indexed document corpus, with cited sources"),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Natural-language question to answer"),
		),
		mcp.WithNumber("top_k",
			mcp.Description(fmt.Sprintf("How many chunks to retrieve (default %d, max %d)", searcher.DefaultTopK, searcher.MaxTopK)),
		),
	)

	srv := mcpserver.NewMCPServer(mcpServerName, mcpServerVersion, mcpserver.WithToolCapabilities(false))
	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := request.RequireString("question")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		topK := request.GetInt("top_k", 0)

		answer, err := svc.Ask(ctx, question, topK)
		switch {
		case errors.Is(err, rag.ErrNoQuestion):
			return mcp.NewToolResultError("question is empty"), nil
		case errors.Is(err, searcher.ErrIndexNotBuilt):
			return mcp.NewToolResultError("no documents indexed yet, upload and build first"), nil
		case err != nil:
			return mcp.NewToolResultError(err.Error()), nil
		}

		out, err := json.Marshal(map[string]any{
			"answer":  answer.Text,
			"sources": answer.Sources,
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	})

	return srv
}

// ServeMCP runs the MCP server on stdio until the client disconnects.
func ServeMCP(svc *rag.Service) error {
	return mcpserver.ServeStdio(NewMCPServer(svc))
}
