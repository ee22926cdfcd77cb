package mcpserver

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

const protocolVersion = "2024-11-05"

// Connect opens an initialized SSE client to the active server. The caller
// closes it.
func (s *MCPServer) Connect(ctx context.Context) (*client.Client, error) {
	if err := s.RequireActive("connect"); err != nil {
		return nil, err
	}

	c, err := client.NewSSEMCPClient(s.Endpoint())
	if err != nil {
		return nil, fmt.Errorf("failed to create SSE client: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start SSE client: %w", err)
	}

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = protocolVersion
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "scribble-client",
		Version: DefaultVersion,
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := c.Initialize(initCtx, initRequest); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize MCP protocol: %w", err)
	}
	return c, nil
}

// CallText calls tool over c and returns the concatenated text content.
// A tool error is returned as an error.
func CallText(ctx context.Context, c *client.Client, tool string, args map[string]interface{}) (string, error) {
	request := mcp.CallToolRequest{}
	request.Params.Name = tool
	if args != nil {
		request.Params.Arguments = args
	}

	result, err := c.CallTool(ctx, request)
	if err != nil {
		return "", fmt.Errorf("tool call %s failed: %w", tool, err)
	}

	var text string
	for _, content := range result.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			text += tc.Text
		}
	}
	if result.IsError {
		return "", fmt.Errorf("tool %s: %s", tool, text)
	}
	return text, nil
}
