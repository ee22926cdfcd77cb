package contentrepo

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"scribble/pkg/fixture"
)

// DefaultLookupName is used when no lookup name is configured.
const DefaultLookupName = "jcr/local"

// ErrNameNotBound is returned by a Registry for unknown names.
var ErrNameNotBound = errors.New("name not bound")

// Registry finds repositories by name.
type Registry interface {
	Lookup(name string) (Repository, error)
}

// MapRegistry is an in-process Registry.
type MapRegistry struct {
	mu      sync.RWMutex
	entries map[string]Repository
}

func NewRegistry() *MapRegistry {
	return &MapRegistry{entries: map[string]Repository{}}
}

// Bind registers repo under name, replacing any previous binding.
func (r *MapRegistry) Bind(name string, repo Repository) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = repo
}

// Unbind removes name.
func (r *MapRegistry) Unbind(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

func (r *MapRegistry) Lookup(name string) (Repository, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	repo, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNameNotBound, name)
	}
	return repo, nil
}

// LookupContentRepository resolves an existing repository from a Registry
// on setup. The repository is not owned by the fixture and stays running
// after teardown.
type LookupContentRepository struct {
	ContentRepository

	registry   Registry
	lookupName string
}

// NewLookupContentRepository declares a repository looked up by name. The
// registry is required.
func NewLookupContentRepository() *LookupContentRepository {
	c := &LookupContentRepository{lookupName: DefaultLookupName}
	c.initRepository("LookupContentRepository", nil)
	c.Declare("registry", fixture.Required)
	c.Declare("lookupName", fixture.Optional)
	return c
}

// SetRegistry sets the registry the repository is looked up in. A nil
// registry is rejected and leaves the property unset.
func (c *LookupContentRepository) SetRegistry(r Registry) error {
	if isNilRegistry(r) {
		return errors.New("registry must not be nil")
	}
	if err := c.Configure("registry"); err != nil {
		return err
	}
	c.registry = r
	return nil
}

func isNilRegistry(r Registry) bool {
	if r == nil {
		return true
	}
	v := reflect.ValueOf(r)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Func, reflect.Interface, reflect.Chan, reflect.Slice:
		return v.IsNil()
	}
	return false
}

// SetLookupName overrides DefaultLookupName.
func (c *LookupContentRepository) SetLookupName(name string) error {
	if err := c.Configure("lookupName"); err != nil {
		return err
	}
	c.lookupName = name
	return nil
}

// LookupName returns the configured lookup name.
func (c *LookupContentRepository) LookupName() string {
	return c.lookupName
}

func (c *LookupContentRepository) Before(ctx context.Context) error {
	repo, err := c.registry.Lookup(c.lookupName)
	if err != nil {
		return err
	}
	return c.start(ctx, repo, false)
}

func (c *LookupContentRepository) After(ctx context.Context) error {
	c.repository = nil
	return nil
}

func (c *LookupContentRepository) BeforeClass(ctx context.Context) error {
	return c.Before(ctx)
}

func (c *LookupContentRepository) AfterClass(ctx context.Context) error {
	return c.After(ctx)
}
