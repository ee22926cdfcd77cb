package contentrepo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"scribble/pkg/fixture"
	"scribble/pkg/logging"
	"scribble/pkg/resource"
	"scribble/pkg/tempfs"
)

// RepositoryFixture is implemented by every content repository fixture;
// ActiveSession accepts any of them as its outer resource.
type RepositoryFixture interface {
	fixture.Resource
	Repository() Repository
}

type source struct {
	resolver resource.Resolver
	path     string
}

// ContentRepository is embedded by the repository fixtures. It registers
// node types and imports initial content once the concrete fixture has
// created or found its repository.
type ContentRepository struct {
	fixture.Base

	repository Repository
	nodeTypes  []source
	content    []source
}

func (c *ContentRepository) initRepository(name string, outer fixture.Resource) {
	c.Init(name, outer)
	c.Declare("nodeTypes", fixture.Optional)
	c.Declare("initialContent", fixture.Optional)
}

// SetNodeTypes registers the node types defined in the YAML file p on
// setup. It may be called several times.
func (c *ContentRepository) SetNodeTypes(r resource.Resolver, p string) error {
	if err := c.Configure("nodeTypes"); err != nil {
		return err
	}
	c.nodeTypes = append(c.nodeTypes, source{resolver: r, path: p})
	return nil
}

// SetInitialContent imports the YAML content file p on setup, after the
// node types were registered.
func (c *ContentRepository) SetInitialContent(r resource.Resolver, p string) error {
	if err := c.Configure("initialContent"); err != nil {
		return err
	}
	c.content = append(c.content, source{resolver: r, path: p})
	return nil
}

// Repository returns the repository while the fixture is active.
func (c *ContentRepository) Repository() Repository {
	return c.repository
}

// Login opens a session with creds.
func (c *ContentRepository) Login(ctx context.Context, creds Credentials) (Session, error) {
	if err := c.RequireActive("Login"); err != nil {
		return nil, err
	}
	return c.repository.Login(ctx, creds)
}

// AdminLogin opens a session with AdminCredentials.
func (c *ContentRepository) AdminLogin(ctx context.Context) (Session, error) {
	return c.Login(ctx, AdminCredentials)
}

// start finishes the setup of repo. An owned repository is shut down on
// teardown.
func (c *ContentRepository) start(ctx context.Context, repo Repository, owned bool) error {
	c.repository = repo
	if owned {
		c.Defer("repository", func(ctx context.Context) error {
			return repo.Shutdown()
		})
	}

	for _, src := range c.nodeTypes {
		types, err := LoadNodeTypes(src.resolver, src.path)
		if err != nil {
			return err
		}
		if err := repo.RegisterNodeTypes(types...); err != nil {
			return fmt.Errorf("registering node types from %s: %w", src.path, err)
		}
	}

	for _, src := range c.content {
		nodes, err := LoadContent(src.resolver, src.path)
		if err != nil {
			return err
		}
		sess, err := repo.Login(ctx, AdminCredentials)
		if err != nil {
			return fmt.Errorf("importing %s: %w", src.path, err)
		}
		err = Import(ctx, sess, nodes)
		sess.Logout()
		if err != nil {
			return fmt.Errorf("importing %s: %w", src.path, err)
		}
		logging.Debug(c.Name(), "imported %d nodes from %s", len(nodes), src.path)
	}
	return nil
}

// InMemoryContentRepository runs a repository that keeps all content in
// memory. It lives inside a temporary folder like the standalone variant
// but never writes to it.
type InMemoryContentRepository struct {
	ContentRepository

	folder *tempfs.TemporaryFolder
}

// NewInMemoryContentRepository declares an in-memory repository inside
// folder.
func NewInMemoryContentRepository(folder *tempfs.TemporaryFolder) *InMemoryContentRepository {
	c := &InMemoryContentRepository{folder: folder}
	c.initRepository("InMemoryContentRepository", folder)
	return c
}

func (c *InMemoryContentRepository) Before(ctx context.Context) error {
	return c.start(ctx, newStore("inmemory", "memory", nil), true)
}

func (c *InMemoryContentRepository) After(ctx context.Context) error {
	return nil
}

func (c *InMemoryContentRepository) BeforeClass(ctx context.Context) error {
	return c.Before(ctx)
}

func (c *InMemoryContentRepository) AfterClass(ctx context.Context) error {
	return c.After(ctx)
}

// StandaloneConfig is the YAML configuration of a standalone repository.
type StandaloneConfig struct {
	Name            string            `yaml:"name"`
	Users           map[string]string `yaml:"users,omitempty"`
	PersistenceFile string            `yaml:"persistenceFile,omitempty"`
}

func defaultStandaloneConfig() StandaloneConfig {
	return StandaloneConfig{
		Name:            "standalone",
		Users:           map[string]string{AdminCredentials.UserID: AdminCredentials.Password},
		PersistenceFile: "repository.yaml",
	}
}

// StandaloneContentRepository runs a repository persisted to a working
// directory inside a temporary folder. Saved content is written through
// to disk and removed together with the folder.
type StandaloneContentRepository struct {
	ContentRepository

	folder    *tempfs.TemporaryFolder
	configSrc *source
	config    StandaloneConfig
	workdir   string
}

// NewStandaloneContentRepository declares a standalone repository inside
// folder.
func NewStandaloneContentRepository(folder *tempfs.TemporaryFolder) *StandaloneContentRepository {
	c := &StandaloneContentRepository{folder: folder, config: defaultStandaloneConfig()}
	c.initRepository("StandaloneContentRepository", folder)
	c.Declare("config", fixture.Optional)
	return c
}

// SetConfig loads the repository configuration from the YAML file p on
// setup.
func (c *StandaloneContentRepository) SetConfig(r resource.Resolver, p string) error {
	if err := c.Configure("config"); err != nil {
		return err
	}
	c.configSrc = &source{resolver: r, path: p}
	return nil
}

// SetConfigURL loads the repository configuration from a URL on setup.
func (c *StandaloneContentRepository) SetConfigURL(u string) error {
	return c.SetConfig(resource.URL(), u)
}

func (c *StandaloneContentRepository) Before(ctx context.Context) error {
	if c.folder == nil {
		return tempfs.ErrNoFolder
	}
	cfg := defaultStandaloneConfig()
	if c.configSrc != nil {
		data, err := resource.ReadAll(c.configSrc.resolver, c.configSrc.path)
		if err != nil {
			return err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parsing repository config %s: %w", c.configSrc.path, err)
		}
		if cfg.PersistenceFile == "" {
			cfg.PersistenceFile = "repository.yaml"
		}
	}
	c.config = cfg

	dir, err := c.folder.NewFolder("repository-" + uuid.NewString()[:8])
	if err != nil {
		return err
	}
	c.workdir = dir
	c.Defer("workdir "+dir, func(ctx context.Context) error {
		return os.RemoveAll(dir)
	})

	file := filepath.Join(dir, cfg.PersistenceFile)
	st := newStore(cfg.Name, "standalone", cfg.Users)
	st.persist = func(t tree) error {
		data, err := yaml.Marshal(t)
		if err != nil {
			return err
		}
		return os.WriteFile(file, data, 0644)
	}
	if err := st.persist(st.nodes); err != nil {
		return fmt.Errorf("initialising %s: %w", file, err)
	}
	logging.Info("StandaloneContentRepository", "repository %s persisted to %s", cfg.Name, file)
	return c.start(ctx, st, true)
}

func (c *StandaloneContentRepository) After(ctx context.Context) error {
	return nil
}

func (c *StandaloneContentRepository) BeforeClass(ctx context.Context) error {
	return c.Before(ctx)
}

func (c *StandaloneContentRepository) AfterClass(ctx context.Context) error {
	return c.After(ctx)
}

// Workdir returns the working directory of the repository.
func (c *StandaloneContentRepository) Workdir() string {
	return c.workdir
}

// PersistedPaths returns the node paths currently saved on disk.
func (c *StandaloneContentRepository) PersistedPaths() ([]string, error) {
	if err := c.RequireActive("PersistedPaths"); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(c.workdir, c.config.PersistenceFile))
	if err != nil {
		return nil, err
	}
	var t tree
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(t))
	for p := range t {
		paths = append(paths, p)
	}
	return paths, nil
}

// ActiveSession logs in to the repository of its outer fixture on setup
// and logs out on teardown.
type ActiveSession struct {
	fixture.Base

	repo    RepositoryFixture
	creds   Credentials
	session Session
}

// NewActiveSession declares a session on repo using AdminCredentials.
func NewActiveSession(repo RepositoryFixture) *ActiveSession {
	s := &ActiveSession{repo: repo, creds: AdminCredentials}
	s.Init("ActiveSession", repo)
	s.Declare("credentials", fixture.Optional)
	return s
}

// SetCredentials replaces the admin credentials.
func (s *ActiveSession) SetCredentials(creds Credentials) error {
	if err := s.Configure("credentials"); err != nil {
		return err
	}
	s.creds = creds
	return nil
}

func (s *ActiveSession) Before(ctx context.Context) error {
	sess, err := s.repo.Repository().Login(ctx, s.creds)
	if err != nil {
		return err
	}
	s.session = sess
	s.Defer("session", func(ctx context.Context) error {
		sess.Logout()
		return nil
	})
	return nil
}

func (s *ActiveSession) After(ctx context.Context) error {
	return nil
}

func (s *ActiveSession) BeforeClass(ctx context.Context) error {
	return s.Before(ctx)
}

func (s *ActiveSession) AfterClass(ctx context.Context) error {
	return s.After(ctx)
}

// Session returns the logged in session while active.
func (s *ActiveSession) Session() Session {
	return s.session
}
