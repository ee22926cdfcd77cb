package fixture

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/multierr"

	"scribble/pkg/logging"
)

const subsystem = "Fixture"

// Lifecycle is implemented by every concrete fixture. The engine calls
// exactly one pair per invocation: Before/After for a single test and
// BeforeClass/AfterClass for a suite. After and AfterClass also run when
// the matching setup hook failed half way, so they must cope with
// partially acquired state. Fixtures never call their own hooks.
type Lifecycle interface {
	Before(ctx context.Context) error
	After(ctx context.Context) error
	BeforeClass(ctx context.Context) error
	AfterClass(ctx context.Context) error
}

// Resource is a lifecycle managed fixture. It is implemented by embedding
// Base in a struct that also implements Lifecycle.
type Resource interface {
	Lifecycle
	managed() *Base
}

type property struct {
	name  string
	level Requirement
	set   bool
}

type release struct {
	name string
	fn   func(ctx context.Context) error
}

// Base holds the state shared by all fixtures: the lifecycle state, the
// outer resource, declared configuration properties and the sub-resources
// acquired during setup. The zero value is usable; Init names the
// resource and links its outer.
type Base struct {
	name       string
	state      State
	outer      Resource
	properties []*property
	releases   []release
	started    bool
}

func (b *Base) managed() *Base { return b }

// Init names the resource and links it to its outer resource, which may be
// nil. The outer is never set up or torn down by the resource itself.
func (b *Base) Init(name string, outer Resource) {
	b.name = name
	if !isNil(outer) {
		b.outer = outer
	}
}

// Name returns the name given to Init.
func (b *Base) Name() string {
	if b.name == "" {
		return "resource"
	}
	return b.name
}

// State returns the current lifecycle state.
func (b *Base) State() State {
	if b.state == "" {
		return StateUninitialized
	}
	return b.state
}

// Outer returns the outer resource or nil.
func (b *Base) Outer() Resource {
	return b.outer
}

// IsActive reports whether the resource has been set up and not yet torn
// down.
func (b *Base) IsActive() bool {
	return b.State() == StateActive
}

// RequireActive returns an ErrIllegalLifecycleState error unless the
// resource is active. Accessors that only make sense while the fixture is
// set up call it first.
func (b *Base) RequireActive(op string) error {
	if state := b.State(); state != StateActive {
		return newError(ErrIllegalLifecycleState, b.Name(), "%s requires an active resource, state is %s", op, state)
	}
	return nil
}

// Declare registers a configuration property with its requirement level.
// Required properties are validated in declaration order on activation.
func (b *Base) Declare(name string, level Requirement) {
	for _, p := range b.properties {
		if p.name == name {
			p.level = level
			return
		}
	}
	b.properties = append(b.properties, &property{name: name, level: level})
}

// Configure must be called by every configuration setter before it
// changes anything. It fails with ErrIllegalLifecycleState once the
// resource has been activated. Undeclared properties are treated as
// optional.
func (b *Base) Configure(name string) error {
	state := b.State()
	if !state.CanConfigure() {
		return newError(ErrIllegalLifecycleState, b.Name(), "cannot set %q in state %s", name, state)
	}
	p := b.lookup(name)
	if p == nil {
		p = &property{name: name, level: Optional}
		b.properties = append(b.properties, p)
	}
	p.set = true
	if state == StateUninitialized {
		b.transition(StateConfiguring)
	}
	return nil
}

// IsSet reports whether the named property has been configured.
func (b *Base) IsSet(name string) bool {
	p := b.lookup(name)
	return p != nil && p.set
}

// Defer registers the release of a sub-resource acquired during setup.
// Releases run in reverse registration order on teardown, including after
// a failed setup.
func (b *Base) Defer(name string, fn func(ctx context.Context) error) {
	b.releases = append(b.releases, release{name: name, fn: fn})
}

func (b *Base) lookup(name string) *property {
	for _, p := range b.properties {
		if p.name == name {
			return p
		}
	}
	return nil
}

func (b *Base) validate() error {
	for _, p := range b.properties {
		if p.level == Required && !p.set {
			return newError(ErrMissingRequiredConfiguration, b.Name(), "property %q is not set", p.name)
		}
	}
	return nil
}

func (b *Base) transition(next State) {
	prev := b.State()
	if prev == next {
		return
	}
	if !prev.CanTransitionTo(next) {
		// Guarded by the callers; reaching this is a bug in the engine.
		panic(fmt.Sprintf("fixture: illegal transition %s -> %s for %s", prev, next, b.Name()))
	}
	b.state = next
	logging.Debug(subsystem, "%s: %s -> %s", b.Name(), prev, next)
}

// Setup activates r in the given scope. It is legal only while r is
// Uninitialized or Configuring and its outer resource, if any, is Active.
// A resource that was never configured passes through Configuring first.
// Required properties are validated before the setup hook runs. When the
// hook fails, everything acquired so far is released before Setup returns
// and r ends up Destroyed.
func Setup(ctx context.Context, r Resource, scope Scope) error {
	b := r.managed()
	state := b.State()
	if !state.CanConfigure() {
		return newError(ErrIllegalLifecycleState, b.Name(), "cannot set up in state %s", state)
	}
	if b.outer != nil {
		if outer := b.outer.managed(); !outer.IsActive() {
			return newError(ErrIllegalLifecycleState, b.Name(), "outer resource %s is %s", outer.Name(), outer.State())
		}
	}
	if state == StateUninitialized {
		b.transition(StateConfiguring)
	}
	if err := b.validate(); err != nil {
		return err
	}

	b.started = true
	start := time.Now()
	var hookErr error
	if scope == ScopeSuite {
		hookErr = r.BeforeClass(ctx)
	} else {
		hookErr = r.Before(ctx)
	}

	if hookErr != nil {
		err := error(&Error{Kind: ErrResourceAcquisition, Resource: b.Name(), Err: hookErr})
		logging.Error(subsystem, hookErr, "%s: setup failed, releasing acquired resources", b.Name())
		currentObserver().SetupCompleted(b.Name(), scope, time.Since(start), err)
		return WithSuppressed(err, Teardown(ctx, r, scope))
	}

	b.transition(StateActive)
	currentObserver().SetupCompleted(b.Name(), scope, time.Since(start), nil)
	return nil
}

// Teardown runs the after hook of the given scope and then releases every
// deferred sub-resource in reverse order. All of them run even when some
// fail; the failures are logged and returned together as a release error.
// Teardown of a resource that was never set up or is already destroyed is
// a no-op.
func Teardown(ctx context.Context, r Resource, scope Scope) error {
	b := r.managed()
	if !b.started || b.State() == StateDestroyed {
		return nil
	}

	var errs error
	var hookErr error
	if scope == ScopeSuite {
		hookErr = r.AfterClass(ctx)
	} else {
		hookErr = r.After(ctx)
	}
	if hookErr != nil {
		errs = multierr.Append(errs, hookErr)
	}

	for i := len(b.releases) - 1; i >= 0; i-- {
		rel := b.releases[i]
		if err := rel.fn(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("release %s: %w", rel.name, err))
		}
	}
	b.releases = nil
	b.transition(StateDestroyed)

	if errs != nil {
		logging.Error(subsystem, errs, "%s: teardown failed", b.Name())
		err := &Error{Kind: ErrResourceRelease, Resource: b.Name(), Err: errs}
		currentObserver().TeardownCompleted(b.Name(), scope, err)
		return err
	}
	currentObserver().TeardownCompleted(b.Name(), scope, nil)
	return nil
}

// IsActive reports whether r is currently active.
func IsActive(r Resource) bool {
	return r.managed().IsActive()
}

// StateOf returns the lifecycle state of r.
func StateOf(r Resource) State {
	return r.managed().State()
}

func isNil(r Resource) bool {
	if r == nil {
		return true
	}
	v := reflect.ValueOf(r)
	return v.Kind() == reflect.Ptr && v.IsNil()
}
