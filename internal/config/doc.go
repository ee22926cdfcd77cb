// Package config provides configuration management for scribble.
//
// This package implements a layered configuration system that describes the
// fixture stack started by "scribble up". Configuration is loaded from
// multiple sources and merged in a specific order, with later sources
// overriding earlier ones.
//
// # Configuration Layers
//
//  1. Default Configuration (embedded in binary)
//     - Log level warn, system temp dir, no fixtures
//
//  2. User Configuration (~/.config/scribble/config.yaml)
//     - Personal defaults such as the temp root or log level
//
//  3. Project Configuration (./.scribble/config.yaml)
//     - The fixture stack of the project, shared via version control
//
// Global settings of a later layer override earlier ones when set. Fixture
// definitions are merged by name: a later definition replaces an earlier one
// with the same name and keeps its position in the stack.
//
// # Configuration Structure
//
//	globalSettings:
//	  logLevel: info
//	  tempRoot: /tmp/scribble
//
//	fixtures:
//	  - name: workspace
//	    type: tempFolder
//	  - name: page
//	    type: tempFile
//	    outer: workspace
//	    filename: index.html
//	    content: site/index.html
//	  - name: site
//	    type: httpServer
//	    outer: workspace
//	    port: 8080
//	    serve:
//	      - path: /
//	        from: page
//	    stubs:
//	      - path: /api/health
//	        body: '{"status":"ok"}'
//	        contentType: application/json
//	  - name: tools
//	    type: mcpServer
//	    config: mcp/tools.yaml
//
// Fixtures are set up in the order they are listed and torn down in reverse
// order. An outer fixture and every fixture served by an HTTP server must be
// listed before the fixtures referring to them.
//
// # Environment Variable Expansion
//
// Configuration values support environment variable expansion:
//
//	tempRoot: "${HOME}/scribble"
//	port: ${SITE_PORT:-8080}
package config
