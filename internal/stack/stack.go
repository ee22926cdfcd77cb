// Package stack turns the fixture definitions of a configuration into a
// running fixture chain for the CLI.
package stack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"scribble/internal/config"
	"scribble/pkg/contentrepo"
	"scribble/pkg/directory"
	"scribble/pkg/fixture"
	"scribble/pkg/httpserver"
	"scribble/pkg/kubecluster"
	"scribble/pkg/logging"
	"scribble/pkg/mcpserver"
	"scribble/pkg/resource"
	"scribble/pkg/tempfs"
)

// Endpoint describes how to reach an active fixture.
type Endpoint struct {
	Name    string
	Type    config.FixtureType
	Address string
}

type entry struct {
	def      config.FixtureDefinition
	resource fixture.Resource
}

// Stack is the set of fixtures declared by a configuration, in setup order.
type Stack struct {
	entries []entry
	byName  map[string]fixture.Resource
}

// Build declares every fixture of cfg. Nothing is set up yet.
func Build(cfg config.ScribbleConfig) (*Stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Fixtures) == 0 {
		return nil, errors.New("no fixtures configured")
	}

	s := &Stack{byName: make(map[string]fixture.Resource, len(cfg.Fixtures))}
	for _, def := range cfg.Fixtures {
		r, err := s.declare(def, cfg.GlobalSettings)
		if err != nil {
			return nil, fmt.Errorf("fixture %q: %w", def.Name, err)
		}
		s.entries = append(s.entries, entry{def: def, resource: r})
		s.byName[def.Name] = r
		logging.Debug("Stack", "declared %s fixture %s", def.Type, def.Name)
	}
	return s, nil
}

// Resources returns the fixtures in setup order.
func (s *Stack) Resources() []fixture.Resource {
	out := make([]fixture.Resource, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.resource)
	}
	return out
}

// Lookup returns the fixture declared under name.
func (s *Stack) Lookup(name string) (fixture.Resource, bool) {
	r, ok := s.byName[name]
	return r, ok
}

// Run sets up the whole stack in suite scope, calls ready and keeps the
// stack up until ctx is done. Teardown does not inherit the cancellation
// of ctx so that servers can shut down gracefully.
func (s *Stack) Run(ctx context.Context, ready func(endpoints []Endpoint) error) error {
	body := func(context.Context) error {
		if ready != nil {
			if err := ready(s.Endpoints()); err != nil {
				return err
			}
		}
		<-ctx.Done()
		logging.Info("Stack", "stopping %d fixtures", len(s.entries))
		return nil
	}
	desc := fixture.Description{Name: "stack", Suite: true}
	return fixture.Chain(s.Resources()...).Apply(body, desc)(context.WithoutCancel(ctx))
}

// Endpoints lists the addresses of the active fixtures.
func (s *Stack) Endpoints() []Endpoint {
	var out []Endpoint
	for _, e := range s.entries {
		if !fixture.IsActive(e.resource) {
			continue
		}
		if addr := address(e.resource); addr != "" {
			out = append(out, Endpoint{Name: e.def.Name, Type: e.def.Type, Address: addr})
		}
	}
	return out
}

func address(r fixture.Resource) string {
	switch v := r.(type) {
	case *tempfs.TemporaryFolder:
		return v.Root()
	case *tempfs.TemporaryFile:
		return v.Path()
	case *tempfs.TemporaryZipFile:
		return v.Path()
	case *contentrepo.StandaloneContentRepository:
		return v.Workdir()
	case *contentrepo.InMemoryContentRepository:
		return "memory"
	case *directory.Directory:
		var suffixes []string
		for _, p := range v.Partitions() {
			suffixes = append(suffixes, p.Suffix)
		}
		return strings.Join(suffixes, ", ")
	case *httpserver.HTTPServer:
		return v.BaseURL()
	case *mcpserver.MCPServer:
		return v.Endpoint()
	case *kubecluster.FakeCluster:
		return "in-process"
	}
	return ""
}

func (s *Stack) declare(def config.FixtureDefinition, global config.GlobalSettings) (fixture.Resource, error) {
	res := resolver(def.BaseDir)

	var folder *tempfs.TemporaryFolder
	var outer fixture.Resource
	if def.Outer != "" {
		outer = s.byName[def.Outer]
		folder, _ = outer.(*tempfs.TemporaryFolder)
	}

	switch def.Type {
	case config.FixtureTypeTempFolder:
		parent := def.Parent
		if parent == "" {
			parent = global.TempRoot
		}
		return tempfs.NewTemporaryFolder(parent), nil

	case config.FixtureTypeTempFile:
		f := tempfs.NewTemporaryFile(folder, def.Filename)
		if def.Content != "" {
			if err := f.SetContent(res, def.Content); err != nil {
				return nil, err
			}
		}
		return f, nil

	case config.FixtureTypeTempZipFile:
		z := tempfs.NewTemporaryZipFile(folder, def.Filename)
		names := make([]string, 0, len(def.Entries))
		for name := range def.Entries {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := z.AddEntry(name, res, def.Entries[name]); err != nil {
				return nil, err
			}
		}
		return z, nil

	case config.FixtureTypeInMemoryRepository:
		c := contentrepo.NewInMemoryContentRepository(folder)
		return c, configureRepository(&c.ContentRepository, res, def)

	case config.FixtureTypeStandaloneRepository:
		c := contentrepo.NewStandaloneContentRepository(folder)
		if def.Config != "" {
			if err := c.SetConfig(res, def.Config); err != nil {
				return nil, err
			}
		}
		return c, configureRepository(&c.ContentRepository, res, def)

	case config.FixtureTypeDirectory:
		return declareDirectory(folder, res, def)

	case config.FixtureTypeHTTPServer:
		return s.declareHTTPServer(outer, def)

	case config.FixtureTypeMCPServer:
		m := mcpserver.NewMCPServer(outer)
		if err := m.SetName(def.Name); err != nil {
			return nil, err
		}
		if def.Config != "" {
			if err := m.SetConfig(res, def.Config); err != nil {
				return nil, err
			}
		}
		return m, nil

	case config.FixtureTypeFakeCluster:
		c := kubecluster.NewFakeCluster(outer)
		if len(def.Namespaces) > 0 {
			if err := c.AddNamespaces(def.Namespaces...); err != nil {
				return nil, err
			}
		}
		if len(def.Manifests) > 0 {
			if err := c.SetManifests(res, def.Manifests...); err != nil {
				return nil, err
			}
		}
		return c, nil
	}
	return nil, fmt.Errorf("unsupported fixture type %q", def.Type)
}

func configureRepository(c *contentrepo.ContentRepository, res resource.Resolver, def config.FixtureDefinition) error {
	for _, p := range def.NodeTypes {
		if err := c.SetNodeTypes(res, p); err != nil {
			return err
		}
	}
	for _, p := range def.InitialContent {
		if err := c.SetInitialContent(res, p); err != nil {
			return err
		}
	}
	return nil
}

func declareDirectory(folder *tempfs.TemporaryFolder, res resource.Resolver, def config.FixtureDefinition) (*directory.Directory, error) {
	d := directory.NewDirectory(folder)
	if err := d.SetAccessControlEnabled(def.AccessControl); err != nil {
		return nil, err
	}
	if def.AnonymousAccess != nil {
		if err := d.SetAnonymousAccessEnabled(*def.AnonymousAccess); err != nil {
			return nil, err
		}
	}
	for _, p := range def.Partitions {
		if err := d.AddPartition(p.ID, p.Suffix); err != nil {
			return nil, err
		}
	}
	for _, source := range def.LDIF {
		rc, err := res.Open(source)
		if err != nil {
			return nil, err
		}
		err = d.ImportLDIF(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("importing %s: %w", source, err)
		}
	}
	return d, nil
}

func (s *Stack) declareHTTPServer(outer fixture.Resource, def config.FixtureDefinition) (*httpserver.HTTPServer, error) {
	srv := httpserver.NewHTTPServer(outer)
	if def.Host != "" {
		if err := srv.SetHost(def.Host); err != nil {
			return nil, err
		}
	}
	if def.Port != 0 {
		if err := srv.SetPort(def.Port); err != nil {
			return nil, err
		}
	}
	for _, serve := range def.Serve {
		if err := srv.ContentFrom(serve.Path, s.byName[serve.From]); err != nil {
			return nil, err
		}
	}
	for _, stub := range def.Stubs {
		method := stub.Method
		if method == "" {
			method = http.MethodGet
		}
		st := srv.On(strings.ToUpper(method), stub.Path)
		if stub.Template {
			st.RespondTemplate(stub.Body)
		} else {
			st.Respond(stub.Body)
		}
		if stub.Status != 0 {
			st.WithStatus(stub.Status)
		}
		if stub.ContentType != "" {
			st.WithContentType(stub.ContentType)
		}
		for k, v := range stub.Headers {
			st.WithHeader(k, v)
		}
	}
	return srv, nil
}

// resolver resolves sources relative to baseDir first and falls back to
// URLs and paths relative to the working directory.
func resolver(baseDir string) resource.Resolver {
	if baseDir == "" {
		return resource.URL()
	}
	return resource.Chain(resource.Dir(baseDir), resource.URL())
}
