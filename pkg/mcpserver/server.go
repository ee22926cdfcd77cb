// Package mcpserver provides a mock MCP server fixture speaking the SSE
// transport. Tools and their canned responses come from YAML or are added
// programmatically.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"scribble/pkg/fixture"
	"scribble/pkg/logging"
	"scribble/pkg/netutil"
	"scribble/pkg/resource"
)

const (
	DefaultName            = "scribble-mock"
	DefaultVersion         = "1.0.0"
	DefaultStartTimeout    = 5 * time.Second
	DefaultShutdownTimeout = 5 * time.Second

	host = "localhost"
)

// MCPServer is a mock MCP server fixture.
type MCPServer struct {
	fixture.Base

	name         string
	startTimeout time.Duration

	resolver resource.Resolver
	source   string

	mu       sync.Mutex
	tools    []ToolConfig
	calls    map[string]int
	port     int
	sse      *server.SSEServer
	serveErr chan error
}

// NewMCPServer declares a mock server. outer may be nil.
func NewMCPServer(outer fixture.Resource) *MCPServer {
	s := &MCPServer{
		name:         DefaultName,
		startTimeout: DefaultStartTimeout,
		calls:        map[string]int{},
	}
	s.Init("MCPServer", outer)
	s.Declare("name", fixture.Optional)
	s.Declare("config", fixture.Optional)
	s.Declare("tools", fixture.Optional)
	s.Declare("startTimeout", fixture.Optional)
	return s
}

// SetName sets the server name reported during initialization.
func (s *MCPServer) SetName(name string) error {
	if err := s.Configure("name"); err != nil {
		return err
	}
	s.name = name
	return nil
}

// SetConfig reads tool definitions from source on setup.
func (s *MCPServer) SetConfig(r resource.Resolver, source string) error {
	if err := s.Configure("config"); err != nil {
		return err
	}
	s.resolver = r
	s.source = source
	return nil
}

// AddTool registers a tool in addition to the configured ones.
func (s *MCPServer) AddTool(tool ToolConfig) error {
	if err := s.Configure("tools"); err != nil {
		return err
	}
	if tool.Name == "" {
		return errors.New("tool name must not be empty")
	}
	s.mu.Lock()
	s.tools = append(s.tools, tool)
	s.mu.Unlock()
	return nil
}

// SetStartTimeout bounds how long setup waits for the listener.
func (s *MCPServer) SetStartTimeout(d time.Duration) error {
	if err := s.Configure("startTimeout"); err != nil {
		return err
	}
	s.startTimeout = d
	return nil
}

func (s *MCPServer) Before(ctx context.Context) error {
	tools := append([]ToolConfig(nil), s.tools...)
	if s.resolver != nil {
		cfg, err := LoadConfig(s.resolver, s.source)
		if err != nil {
			return err
		}
		tools = append(cfg.Tools, tools...)
	}

	mcpServer := server.NewMCPServer(
		s.name,
		DefaultVersion,
		server.WithToolCapabilities(true),
	)
	serverTools := make([]server.ServerTool, 0, len(tools))
	for _, tool := range tools {
		serverTools = append(serverTools, s.serverTool(tool))
	}
	if len(serverTools) > 0 {
		mcpServer.AddTools(serverTools...)
	}

	port, err := netutil.FindAvailablePort()
	if err != nil {
		return err
	}
	baseURL := fmt.Sprintf("http://%s", net.JoinHostPort(host, strconv.Itoa(port)))
	sse := server.NewSSEServer(
		mcpServer,
		server.WithBaseURL(baseURL),
		server.WithSSEEndpoint("/sse"),
		server.WithMessageEndpoint("/message"),
	)

	s.mu.Lock()
	s.port = port
	s.sse = sse
	s.serveErr = make(chan error, 1)
	serveErr := s.serveErr
	s.mu.Unlock()

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	go func() {
		if err := sse.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("MCPServer", err, "SSE server on %s stopped", addr)
			serveErr <- err
		}
	}()
	s.Defer("sse server", s.shutdown)

	if err := s.waitReady(ctx, serveErr); err != nil {
		return err
	}
	logging.Info("MCPServer", "%s serving %d tools on %s", s.name, len(tools), s.Endpoint())
	return nil
}

func (s *MCPServer) After(ctx context.Context) error {
	return nil
}

func (s *MCPServer) BeforeClass(ctx context.Context) error {
	return s.Before(ctx)
}

func (s *MCPServer) AfterClass(ctx context.Context) error {
	return s.After(ctx)
}

// Endpoint returns the SSE endpoint clients connect to.
func (s *MCPServer) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("http://%s/sse", net.JoinHostPort(host, strconv.Itoa(s.port)))
}

// Calls returns how often tool was called.
func (s *MCPServer) Calls(tool string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[tool]
}

func (s *MCPServer) serverTool(cfg ToolConfig) server.ServerTool {
	handler := newToolHandler(cfg)
	return server.ServerTool{
		Tool: mcp.Tool{
			Name:        cfg.Name,
			Description: cfg.Description,
			InputSchema: inputSchema(cfg.InputSchema),
		},
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			s.mu.Lock()
			s.calls[cfg.Name]++
			s.mu.Unlock()

			args := make(map[string]interface{})
			if req.Params.Arguments != nil {
				if argsMap, ok := req.Params.Arguments.(map[string]interface{}); ok {
					args = argsMap
				}
			}

			result, err := handler.HandleCall(ctx, args)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if text, ok := result.(string); ok {
				return mcp.NewToolResultText(text), nil
			}
			data, err := json.Marshal(result)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("encoding response: %v", err)), nil
			}
			return mcp.NewToolResultText(string(data)), nil
		},
	}
}

func (s *MCPServer) waitReady(ctx context.Context, serveErr <-chan error) error {
	s.mu.Lock()
	remote := netutil.RemotePort(host, s.port)
	s.mu.Unlock()

	deadline := time.Now().Add(s.startTimeout)
	for {
		if remote.IsReachable(100 * time.Millisecond) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("mock MCP server did not come up on %s within %s", remote, s.startTimeout)
		}
		select {
		case err := <-serveErr:
			return fmt.Errorf("starting mock MCP server: %w", err)
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (s *MCPServer) shutdown(ctx context.Context) error {
	s.mu.Lock()
	sse := s.sse
	s.sse = nil
	s.mu.Unlock()
	if sse == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, DefaultShutdownTimeout)
	defer cancel()
	if err := sse.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down SSE server: %w", err)
	}
	logging.Debug("MCPServer", "stopped %s", s.name)
	return nil
}

// inputSchema converts a YAML schema into the tool's input schema. A
// missing schema accepts any object.
func inputSchema(schema map[string]interface{}) mcp.ToolInputSchema {
	out := mcp.ToolInputSchema{
		Type:       "object",
		Properties: map[string]interface{}{},
	}
	if t, ok := schema["type"].(string); ok && t != "" {
		out.Type = t
	}
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		out.Properties = props
	}
	switch required := schema["required"].(type) {
	case []string:
		out.Required = required
	case []interface{}:
		for _, r := range required {
			if name, ok := r.(string); ok {
				out.Required = append(out.Required, name)
			}
		}
	}
	return out
}
