package mcpserver

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"text/template"
	"time"

	sprig "github.com/go-task/slim-sprig"

	"scribble/pkg/logging"
)

// toolHandler answers calls to a single mock tool.
type toolHandler struct {
	config ToolConfig
}

func newToolHandler(config ToolConfig) *toolHandler {
	return &toolHandler{config: config}
}

// HandleCall selects the response for parameters, applies its delay and
// returns either its error or its rendered response.
func (h *toolHandler) HandleCall(ctx context.Context, parameters map[string]interface{}) (interface{}, error) {
	logging.Debug("MCPServer", "tool %s called with %v", h.config.Name, parameters)

	var selected *ToolResponse
	for i := range h.config.Responses {
		response := &h.config.Responses[i]
		if h.matchesCondition(response.Condition, parameters) {
			selected = response
			break
		}
	}

	// If no conditional response matched, use the fallback
	if selected == nil {
		for i := range h.config.Responses {
			response := &h.config.Responses[i]
			if len(response.Condition) == 0 {
				selected = response
				break
			}
		}
	}

	if selected == nil {
		return nil, fmt.Errorf("no matching response found for tool '%s' with parameters: %v", h.config.Name, parameters)
	}

	if selected.Delay != "" {
		delay, err := time.ParseDuration(selected.Delay)
		if err != nil {
			logging.Warn("MCPServer", "invalid delay %q for tool %s, ignoring", selected.Delay, h.config.Name)
		} else {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	if selected.Error != "" {
		return nil, fmt.Errorf("%s", selected.Error)
	}

	data := map[string]interface{}{
		"parameters": parameters,
	}
	for key, value := range parameters {
		data[key] = value
	}

	rendered, err := render(selected.Response, data)
	if err != nil {
		return nil, fmt.Errorf("template processing failed for tool '%s': %w", h.config.Name, err)
	}
	return rendered, nil
}

// matchesCondition checks if the given parameters match the condition.
// An empty condition never matches; it marks the fallback.
func (h *toolHandler) matchesCondition(condition map[string]interface{}, parameters map[string]interface{}) bool {
	if len(condition) == 0 {
		return false
	}
	for key, expected := range condition {
		actual, exists := parameters[key]
		if !exists || !valuesEqual(expected, actual) {
			return false
		}
	}
	return true
}

// valuesEqual compares two values, treating numbers and strings that
// print the same as equal since YAML and JSON decode them differently.
func valuesEqual(expected, actual interface{}) bool {
	if reflect.DeepEqual(expected, actual) {
		return true
	}
	return fmt.Sprintf("%v", expected) == fmt.Sprintf("%v", actual)
}

// render walks strings, maps and lists of v and executes every string as
// a template against data.
func render(v interface{}, data map[string]interface{}) (interface{}, error) {
	switch val := v.(type) {
	case string:
		tmpl, err := template.New("response").Funcs(sprig.TxtFuncMap()).Option("missingkey=zero").Parse(val)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, err
		}
		return buf.String(), nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			r, err := render(item, data)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, 0, len(val))
		for _, item := range val {
			r, err := render(item, data)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, nil
	default:
		return v, nil
	}
}
