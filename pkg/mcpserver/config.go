package mcpserver

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"scribble/pkg/resource"
)

// Config is the YAML layout of a mock server definition:
//
//	tools:
//	  - name: get_weather
//	    description: Weather for a city
//	    inputSchema:
//	      properties:
//	        city: {type: string}
//	      required: [city]
//	    responses:
//	      - condition: {city: Berlin}
//	        response: "{{ .city | upper }}: rain"
//	      - error: unknown city
type Config struct {
	Tools []ToolConfig `yaml:"tools"`
}

// ToolConfig describes one mock tool.
type ToolConfig struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description,omitempty"`
	InputSchema map[string]interface{} `yaml:"inputSchema,omitempty"`
	Responses   []ToolResponse         `yaml:"responses"`
}

// ToolResponse is a canned answer. The first response whose Condition
// matches the call arguments wins; a response without condition is the
// fallback.
type ToolResponse struct {
	Condition map[string]interface{} `yaml:"condition,omitempty"`
	Response  interface{}            `yaml:"response,omitempty"`
	Delay     string                 `yaml:"delay,omitempty"`
	Error     string                 `yaml:"error,omitempty"`
}

// LoadConfig reads a Config from source.
func LoadConfig(r resource.Resolver, source string) (Config, error) {
	var cfg Config
	data, err := resource.ReadAll(r, source)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing mock server config %s: %w", source, err)
	}
	for i, tool := range cfg.Tools {
		if tool.Name == "" {
			return cfg, fmt.Errorf("tool #%d in %s has no name", i+1, source)
		}
	}
	return cfg, nil
}
