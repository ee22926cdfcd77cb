package scribble

import (
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/runtime"

	"scribble/pkg/directory"
	"scribble/pkg/fixture"
	"scribble/pkg/httpserver"
	"scribble/pkg/kubecluster"
	"scribble/pkg/mcpserver"
	"scribble/pkg/resource"
	"scribble/pkg/tempfs"
)

type partition struct {
	id     string
	suffix string
}

// DirectoryBuilder builds a Directory.
type DirectoryBuilder struct {
	fixture.Builder[*directory.Directory]

	accessControl *bool
	anonymous     *bool
	partitions    []partition
	ldif          []contentSource
}

func newDirectoryBuilder(folder *tempfs.TemporaryFolder, outerErr error) *DirectoryBuilder {
	b := &DirectoryBuilder{}
	b.Builder = fixture.NewBuilder("DirectoryBuilder", func() (*directory.Directory, error) {
		d := directory.NewDirectory(folder)
		if b.accessControl != nil {
			if err := d.SetAccessControlEnabled(*b.accessControl); err != nil {
				return nil, err
			}
		}
		if b.anonymous != nil {
			if err := d.SetAnonymousAccessEnabled(*b.anonymous); err != nil {
				return nil, err
			}
		}
		for _, p := range b.partitions {
			if err := d.AddPartition(p.id, p.suffix); err != nil {
				return nil, err
			}
		}
		for _, s := range b.ldif {
			rc, err := s.resolver.Open(s.path)
			if err != nil {
				return nil, err
			}
			err = d.ImportLDIF(rc)
			rc.Close()
			if err != nil {
				return nil, fmt.Errorf("importing %s: %w", s.path, err)
			}
		}
		return d, nil
	})
	b.Fail(outerErr)
	return b
}

// WithAccessControl turns access control on or off.
func (b *DirectoryBuilder) WithAccessControl(enabled bool) *DirectoryBuilder {
	if b.Configure("accessControl") {
		b.accessControl = &enabled
	}
	return b
}

// WithAnonymousAccess allows or rejects anonymous binds.
func (b *DirectoryBuilder) WithAnonymousAccess(enabled bool) *DirectoryBuilder {
	if b.Configure("anonymousAccess") {
		b.anonymous = &enabled
	}
	return b
}

// WithPartition adds a partition with the given suffix.
func (b *DirectoryBuilder) WithPartition(id, suffix string) *DirectoryBuilder {
	if b.Configure("partition") {
		b.partitions = append(b.partitions, partition{id: id, suffix: suffix})
	}
	return b
}

// ImportLDIF imports the LDIF file source on setup.
func (b *DirectoryBuilder) ImportLDIF(r resource.Resolver, source string) *DirectoryBuilder {
	if b.Configure("ldif") {
		b.ldif = append(b.ldif, contentSource{r, source})
	}
	return b
}

// HTTPServerBuilder builds an HTTPServer.
type HTTPServerBuilder struct {
	fixture.Builder[*httpserver.HTTPServer]
	options []func(s *httpserver.HTTPServer) error
}

func newHTTPServerBuilder(folder *tempfs.TemporaryFolder, outerErr error) *HTTPServerBuilder {
	b := &HTTPServerBuilder{}
	b.Builder = fixture.NewBuilder("HTTPServerBuilder", func() (*httpserver.HTTPServer, error) {
		var outer fixture.Resource
		if folder != nil {
			outer = folder
		}
		s := httpserver.NewHTTPServer(outer)
		for _, opt := range b.options {
			if err := opt(s); err != nil {
				return nil, err
			}
		}
		return s, nil
	})
	b.Fail(outerErr)
	return b
}

func (b *HTTPServerBuilder) option(name string, fn func(s *httpserver.HTTPServer) error) *HTTPServerBuilder {
	if b.Configure(name) {
		b.options = append(b.options, fn)
	}
	return b
}

// WithHost sets the interface the server binds to.
func (b *HTTPServerBuilder) WithHost(host string) *HTTPServerBuilder {
	return b.option("host", func(s *httpserver.HTTPServer) error { return s.SetHost(host) })
}

// WithPort sets a fixed port.
func (b *HTTPServerBuilder) WithPort(port int) *HTTPServerBuilder {
	return b.option("port", func(s *httpserver.HTTPServer) error { return s.SetPort(port) })
}

// WithShutdownTimeout bounds the teardown wait for open requests.
func (b *HTTPServerBuilder) WithShutdownTimeout(d time.Duration) *HTTPServerBuilder {
	return b.option("shutdownTimeout", func(s *httpserver.HTTPServer) error { return s.SetShutdownTimeout(d) })
}

// ContentFrom serves a temporary file or zip file below urlPath.
func (b *HTTPServerBuilder) ContentFrom(urlPath string, src fixture.Resource) *HTTPServerBuilder {
	return b.option("content", func(s *httpserver.HTTPServer) error { return s.ContentFrom(urlPath, src) })
}

// ContentFromZip serves the entries of a zip archive below urlPath.
func (b *HTTPServerBuilder) ContentFromZip(urlPath string, r resource.Resolver, source string) *HTTPServerBuilder {
	return b.option("content", func(s *httpserver.HTTPServer) error { return s.ContentFromZip(urlPath, r, source) })
}

// MCPServerBuilder builds a mock MCP server.
type MCPServerBuilder struct {
	fixture.Builder[*mcpserver.MCPServer]
	options []func(s *mcpserver.MCPServer) error
}

func newMCPServerBuilder(outer fixture.Resource, outerErr error) *MCPServerBuilder {
	b := &MCPServerBuilder{}
	b.Builder = fixture.NewBuilder("MCPServerBuilder", func() (*mcpserver.MCPServer, error) {
		s := mcpserver.NewMCPServer(outer)
		for _, opt := range b.options {
			if err := opt(s); err != nil {
				return nil, err
			}
		}
		return s, nil
	})
	b.Fail(outerErr)
	return b
}

func (b *MCPServerBuilder) option(name string, fn func(s *mcpserver.MCPServer) error) *MCPServerBuilder {
	if b.Configure(name) {
		b.options = append(b.options, fn)
	}
	return b
}

// WithName sets the server name reported to clients.
func (b *MCPServerBuilder) WithName(name string) *MCPServerBuilder {
	return b.option("name", func(s *mcpserver.MCPServer) error { return s.SetName(name) })
}

// WithConfig reads the tool definitions from source on setup.
func (b *MCPServerBuilder) WithConfig(r resource.Resolver, source string) *MCPServerBuilder {
	return b.option("config", func(s *mcpserver.MCPServer) error { return s.SetConfig(r, source) })
}

// WithTool adds a tool.
func (b *MCPServerBuilder) WithTool(tool mcpserver.ToolConfig) *MCPServerBuilder {
	return b.option("tool", func(s *mcpserver.MCPServer) error { return s.AddTool(tool) })
}

// FakeClusterBuilder builds a fake Kubernetes cluster.
type FakeClusterBuilder struct {
	fixture.Builder[*kubecluster.FakeCluster]
	options []func(c *kubecluster.FakeCluster) error
}

func newFakeClusterBuilder(outer fixture.Resource, outerErr error) *FakeClusterBuilder {
	b := &FakeClusterBuilder{}
	b.Builder = fixture.NewBuilder("FakeClusterBuilder", func() (*kubecluster.FakeCluster, error) {
		c := kubecluster.NewFakeCluster(outer)
		for _, opt := range b.options {
			if err := opt(c); err != nil {
				return nil, err
			}
		}
		return c, nil
	})
	b.Fail(outerErr)
	return b
}

func (b *FakeClusterBuilder) option(name string, fn func(c *kubecluster.FakeCluster) error) *FakeClusterBuilder {
	if b.Configure(name) {
		b.options = append(b.options, fn)
	}
	return b
}

// WithNamespaces creates the namespaces on setup.
func (b *FakeClusterBuilder) WithNamespaces(names ...string) *FakeClusterBuilder {
	return b.option("namespaces", func(c *kubecluster.FakeCluster) error { return c.AddNamespaces(names...) })
}

// WithObjects seeds typed objects.
func (b *FakeClusterBuilder) WithObjects(objs ...runtime.Object) *FakeClusterBuilder {
	return b.option("objects", func(c *kubecluster.FakeCluster) error { return c.AddObjects(objs...) })
}

// WithManifests seeds the objects of YAML manifests.
func (b *FakeClusterBuilder) WithManifests(r resource.Resolver, sources ...string) *FakeClusterBuilder {
	return b.option("manifests", func(c *kubecluster.FakeCluster) error { return c.SetManifests(r, sources...) })
}
