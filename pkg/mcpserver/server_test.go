package mcpserver

import (
	"context"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribble/pkg/fixture"
	"scribble/pkg/resource"
)

const weather = `
tools:
  - name: get_weather
    description: Weather for a city
    inputSchema:
      properties:
        city:
          type: string
      required: [city]
    responses:
      - condition:
          city: Berlin
        response: "{{ .city | upper }}: rain"
      - condition:
          city: Nowhere
        error: unknown city
      - response:
          city: "{{ .city }}"
          forecast: sunny
`

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(resource.Map{"tools.yaml": []byte(weather)}, "tools.yaml")
	require.NoError(t, err)
	require.Len(t, cfg.Tools, 1)
	assert.Equal(t, "get_weather", cfg.Tools[0].Name)
	assert.Len(t, cfg.Tools[0].Responses, 3)

	_, err = LoadConfig(resource.Map{"bad.yaml": []byte("tools:\n  - description: x\n")}, "bad.yaml")
	assert.Error(t, err)

	_, err = LoadConfig(resource.Map{}, "missing.yaml")
	assert.ErrorIs(t, err, resource.ErrNotFound)
}

func TestToolHandler(t *testing.T) {
	cfg, err := LoadConfig(resource.Map{"tools.yaml": []byte(weather)}, "tools.yaml")
	require.NoError(t, err)
	h := newToolHandler(cfg.Tools[0])
	ctx := context.Background()

	got, err := h.HandleCall(ctx, map[string]interface{}{"city": "Berlin"})
	require.NoError(t, err)
	assert.Equal(t, "BERLIN: rain", got)

	_, err = h.HandleCall(ctx, map[string]interface{}{"city": "Nowhere"})
	assert.EqualError(t, err, "unknown city")

	got, err = h.HandleCall(ctx, map[string]interface{}{"city": "Oslo"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"city": "Oslo", "forecast": "sunny"}, got)
}

func TestToolHandler_NoFallback(t *testing.T) {
	h := newToolHandler(ToolConfig{
		Name: "count",
		Responses: []ToolResponse{
			{Condition: map[string]interface{}{"n": 1}, Response: "one"},
		},
	})

	got, err := h.HandleCall(context.Background(), map[string]interface{}{"n": float64(1)})
	require.NoError(t, err)
	assert.Equal(t, "one", got)

	_, err = h.HandleCall(context.Background(), map[string]interface{}{"n": 2})
	assert.Error(t, err)
}

func TestToolHandler_DelayHonoursContext(t *testing.T) {
	h := newToolHandler(ToolConfig{
		Name:      "slow",
		Responses: []ToolResponse{{Response: "done", Delay: "1m"}},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := h.HandleCall(ctx, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInputSchema(t *testing.T) {
	schema := inputSchema(map[string]interface{}{
		"properties": map[string]interface{}{"city": map[string]interface{}{"type": "string"}},
		"required":   []interface{}{"city"},
	})
	assert.Equal(t, "object", schema.Type)
	assert.Equal(t, []string{"city"}, schema.Required)
	assert.Contains(t, schema.Properties, "city")

	assert.Empty(t, inputSchema(nil).Required)
}

func TestMCPServer_Lifecycle(t *testing.T) {
	srv := NewMCPServer(nil)
	require.NoError(t, srv.SetConfig(resource.Map{"tools.yaml": []byte(weather)}, "tools.yaml"))
	require.NoError(t, srv.AddTool(ToolConfig{
		Name:      "ping",
		Responses: []ToolResponse{{Response: "pong"}},
	}))
	assert.Error(t, srv.AddTool(ToolConfig{}))

	_, err := srv.Connect(context.Background())
	assert.ErrorIs(t, err, fixture.ErrIllegalLifecycleState)

	fixture.Run(t, srv, func(ctx context.Context) error {
		c, err := srv.Connect(ctx)
		require.NoError(t, err)
		defer c.Close()

		tools, err := c.ListTools(ctx, mcp.ListToolsRequest{})
		require.NoError(t, err)
		var names []string
		for _, tool := range tools.Tools {
			names = append(names, tool.Name)
		}
		assert.ElementsMatch(t, []string{"get_weather", "ping"}, names)

		text, err := CallText(ctx, c, "get_weather", map[string]interface{}{"city": "Berlin"})
		require.NoError(t, err)
		assert.Equal(t, "BERLIN: rain", text)

		text, err = CallText(ctx, c, "get_weather", map[string]interface{}{"city": "Oslo"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"city":"Oslo","forecast":"sunny"}`, text)

		_, err = CallText(ctx, c, "get_weather", map[string]interface{}{"city": "Nowhere"})
		assert.ErrorContains(t, err, "unknown city")

		text, err = CallText(ctx, c, "ping", nil)
		require.NoError(t, err)
		assert.Equal(t, "pong", text)

		assert.Equal(t, 3, srv.Calls("get_weather"))
		assert.ErrorIs(t, srv.SetName("late"), fixture.ErrIllegalLifecycleState)
		return nil
	})

	assert.Equal(t, fixture.StateDestroyed, srv.State())
}

func TestMCPServer_BadConfigUnwinds(t *testing.T) {
	srv := NewMCPServer(nil)
	require.NoError(t, srv.SetConfig(resource.Map{}, "missing.yaml"))

	err := fixture.Apply(srv, func(ctx context.Context) error {
		t.Fatal("body must not run")
		return nil
	}, fixture.Description{Name: t.Name()})(context.Background())

	assert.ErrorIs(t, err, fixture.ErrResourceAcquisition)
	assert.ErrorIs(t, err, resource.ErrNotFound)
	assert.Equal(t, fixture.StateDestroyed, srv.State())
}
