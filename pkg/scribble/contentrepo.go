package scribble

import (
	"scribble/pkg/contentrepo"
	"scribble/pkg/fixture"
	"scribble/pkg/resource"
	"scribble/pkg/tempfs"
)

type contentSource struct {
	resolver resource.Resolver
	path     string
}

// repositoryOptions holds the options shared by all repository builders.
type repositoryOptions struct {
	nodeTypes []contentSource
	content   []contentSource
}

type configurableRepository interface {
	SetNodeTypes(r resource.Resolver, p string) error
	SetInitialContent(r resource.Resolver, p string) error
}

func (o *repositoryOptions) apply(c configurableRepository) error {
	for _, s := range o.nodeTypes {
		if err := c.SetNodeTypes(s.resolver, s.path); err != nil {
			return err
		}
	}
	for _, s := range o.content {
		if err := c.SetInitialContent(s.resolver, s.path); err != nil {
			return err
		}
	}
	return nil
}

func aroundSession[T contentrepo.RepositoryFixture](b *fixture.Builder[T]) *SessionBuilder {
	repo, err := b.Build()
	return newSessionBuilder(repo, err)
}

// InMemoryContentRepositoryBuilder builds an InMemoryContentRepository.
type InMemoryContentRepositoryBuilder struct {
	fixture.Builder[*contentrepo.InMemoryContentRepository]
	opts repositoryOptions
}

func newInMemoryContentRepositoryBuilder(folder *tempfs.TemporaryFolder, outerErr error) *InMemoryContentRepositoryBuilder {
	b := &InMemoryContentRepositoryBuilder{}
	b.Builder = fixture.NewBuilder("InMemoryContentRepositoryBuilder", func() (*contentrepo.InMemoryContentRepository, error) {
		c := contentrepo.NewInMemoryContentRepository(folder)
		if err := b.opts.apply(c); err != nil {
			return nil, err
		}
		return c, nil
	})
	b.Fail(outerErr)
	return b
}

// WithNodeTypes registers the node types of the YAML file p on setup.
func (b *InMemoryContentRepositoryBuilder) WithNodeTypes(r resource.Resolver, p string) *InMemoryContentRepositoryBuilder {
	if b.Configure("nodeTypes") {
		b.opts.nodeTypes = append(b.opts.nodeTypes, contentSource{r, p})
	}
	return b
}

// WithInitialContent imports the YAML content file p on setup.
func (b *InMemoryContentRepositoryBuilder) WithInitialContent(r resource.Resolver, p string) *InMemoryContentRepositoryBuilder {
	if b.Configure("initialContent") {
		b.opts.content = append(b.opts.content, contentSource{r, p})
	}
	return b
}

// AroundSession builds the repository and returns a session builder.
func (b *InMemoryContentRepositoryBuilder) AroundSession() *SessionBuilder {
	return aroundSession(&b.Builder)
}

// StandaloneContentRepositoryBuilder builds a StandaloneContentRepository.
type StandaloneContentRepositoryBuilder struct {
	fixture.Builder[*contentrepo.StandaloneContentRepository]
	opts      repositoryOptions
	config    *contentSource
	configURL string
}

func newStandaloneContentRepositoryBuilder(folder *tempfs.TemporaryFolder, outerErr error) *StandaloneContentRepositoryBuilder {
	b := &StandaloneContentRepositoryBuilder{}
	b.Builder = fixture.NewBuilder("StandaloneContentRepositoryBuilder", func() (*contentrepo.StandaloneContentRepository, error) {
		c := contentrepo.NewStandaloneContentRepository(folder)
		switch {
		case b.config != nil:
			if err := c.SetConfig(b.config.resolver, b.config.path); err != nil {
				return nil, err
			}
		case b.configURL != "":
			if err := c.SetConfigURL(b.configURL); err != nil {
				return nil, err
			}
		}
		if err := b.opts.apply(c); err != nil {
			return nil, err
		}
		return c, nil
	})
	b.Fail(outerErr)
	return b
}

// WithConfig reads the repository configuration from p.
func (b *StandaloneContentRepositoryBuilder) WithConfig(r resource.Resolver, p string) *StandaloneContentRepositoryBuilder {
	if b.Configure("config") {
		b.config = &contentSource{r, p}
		b.configURL = ""
	}
	return b
}

// WithConfigURL reads the repository configuration from a URL.
func (b *StandaloneContentRepositoryBuilder) WithConfigURL(u string) *StandaloneContentRepositoryBuilder {
	if b.Configure("config") {
		b.configURL = u
		b.config = nil
	}
	return b
}

// WithNodeTypes registers the node types of the YAML file p on setup.
func (b *StandaloneContentRepositoryBuilder) WithNodeTypes(r resource.Resolver, p string) *StandaloneContentRepositoryBuilder {
	if b.Configure("nodeTypes") {
		b.opts.nodeTypes = append(b.opts.nodeTypes, contentSource{r, p})
	}
	return b
}

// WithInitialContent imports the YAML content file p on setup.
func (b *StandaloneContentRepositoryBuilder) WithInitialContent(r resource.Resolver, p string) *StandaloneContentRepositoryBuilder {
	if b.Configure("initialContent") {
		b.opts.content = append(b.opts.content, contentSource{r, p})
	}
	return b
}

// AroundSession builds the repository and returns a session builder.
func (b *StandaloneContentRepositoryBuilder) AroundSession() *SessionBuilder {
	return aroundSession(&b.Builder)
}

// MockContentRepositoryBuilder builds a MockContentRepository.
type MockContentRepositoryBuilder struct {
	fixture.Builder[*contentrepo.MockContentRepository]
	expectations []func(m *contentrepo.MockRepository)
}

func newMockContentRepositoryBuilder() *MockContentRepositoryBuilder {
	b := &MockContentRepositoryBuilder{}
	b.Builder = fixture.NewBuilder("MockContentRepositoryBuilder", func() (*contentrepo.MockContentRepository, error) {
		c := contentrepo.NewMockContentRepository()
		for _, expect := range b.expectations {
			expect(c.Mock())
		}
		return c, nil
	})
	return b
}

// Expect registers a function setting expectations on the mock at Build.
func (b *MockContentRepositoryBuilder) Expect(fn func(m *contentrepo.MockRepository)) *MockContentRepositoryBuilder {
	if b.Configure("expectations") {
		b.expectations = append(b.expectations, fn)
	}
	return b
}

// AroundSession builds the repository and returns a session builder.
func (b *MockContentRepositoryBuilder) AroundSession() *SessionBuilder {
	return aroundSession(&b.Builder)
}

// LookupContentRepositoryBuilder builds a LookupContentRepository.
type LookupContentRepositoryBuilder struct {
	fixture.Builder[*contentrepo.LookupContentRepository]
	opts       repositoryOptions
	registry   contentrepo.Registry
	lookupName string
}

func newLookupContentRepositoryBuilder() *LookupContentRepositoryBuilder {
	b := &LookupContentRepositoryBuilder{}
	b.Builder = fixture.NewBuilder("LookupContentRepositoryBuilder", func() (*contentrepo.LookupContentRepository, error) {
		c := contentrepo.NewLookupContentRepository()
		// Left unset, setup reports the missing registry.
		if b.registry != nil {
			if err := c.SetRegistry(b.registry); err != nil {
				return nil, err
			}
		}
		if b.lookupName != "" {
			if err := c.SetLookupName(b.lookupName); err != nil {
				return nil, err
			}
		}
		if err := b.opts.apply(c); err != nil {
			return nil, err
		}
		return c, nil
	})
	return b
}

// WithRegistry sets the registry the repository is looked up in.
func (b *LookupContentRepositoryBuilder) WithRegistry(r contentrepo.Registry) *LookupContentRepositoryBuilder {
	if b.Configure("registry") {
		b.registry = r
	}
	return b
}

// WithLookupName overrides the default lookup name.
func (b *LookupContentRepositoryBuilder) WithLookupName(name string) *LookupContentRepositoryBuilder {
	if b.Configure("lookupName") {
		b.lookupName = name
	}
	return b
}

// WithInitialContent imports the YAML content file p on setup.
func (b *LookupContentRepositoryBuilder) WithInitialContent(r resource.Resolver, p string) *LookupContentRepositoryBuilder {
	if b.Configure("initialContent") {
		b.opts.content = append(b.opts.content, contentSource{r, p})
	}
	return b
}

// AroundSession builds the repository and returns a session builder.
func (b *LookupContentRepositoryBuilder) AroundSession() *SessionBuilder {
	return aroundSession(&b.Builder)
}

// SessionBuilder builds an ActiveSession.
type SessionBuilder struct {
	fixture.Builder[*contentrepo.ActiveSession]
	creds *contentrepo.Credentials
}

func newSessionBuilder(repo contentrepo.RepositoryFixture, outerErr error) *SessionBuilder {
	b := &SessionBuilder{}
	b.Builder = fixture.NewBuilder("SessionBuilder", func() (*contentrepo.ActiveSession, error) {
		s := contentrepo.NewActiveSession(repo)
		if b.creds != nil {
			if err := s.SetCredentials(*b.creds); err != nil {
				return nil, err
			}
		}
		return s, nil
	})
	b.Fail(outerErr)
	return b
}

// WithCredentials logs in as creds instead of the admin user.
func (b *SessionBuilder) WithCredentials(creds contentrepo.Credentials) *SessionBuilder {
	if b.Configure("credentials") {
		b.creds = &creds
	}
	return b
}
