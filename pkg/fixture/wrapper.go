package fixture

import (
	"context"
)

// Description identifies what a statement is run for. Suite selects the
// class level hook pair.
type Description struct {
	Name  string
	Suite bool
}

// Scope returns the hook scope selected by d.
func (d Description) Scope() Scope {
	if d.Suite {
		return ScopeSuite
	}
	return ScopeInstance
}

// Statement is a unit of work run inside the fixtures wrapping it.
type Statement func(ctx context.Context) error

// Apply wraps base so that r is set up before and torn down after it, in
// the scope selected by desc. An outer resource that is not active yet is
// wrapped around the result, so outer setup happens strictly before and
// outer teardown strictly after r's. An outer that is already active was
// set up by an enclosing statement and is left alone.
//
// The first setup or body failure is returned; teardown failures that
// follow it are attached with WithSuppressed.
func Apply(r Resource, base Statement, desc Description) Statement {
	scope := desc.Scope()
	inner := func(ctx context.Context) (err error) {
		if err := Setup(ctx, r, scope); err != nil {
			return err
		}
		defer func() {
			err = WithSuppressed(err, Teardown(ctx, r, scope))
		}()
		return base(ctx)
	}

	return func(ctx context.Context) error {
		if outer := r.managed().outer; outer != nil && !IsActive(outer) {
			return Apply(outer, inner, desc)(ctx)
		}
		return inner(ctx)
	}
}

// Chained is a set of resources applied as a single statement.
type Chained struct {
	resources []Resource
}

// Chain composes resources, outermost first. Siblings sharing an outer
// resource must be run through one chain so the outer is set up once.
func Chain(resources ...Resource) *Chained {
	return &Chained{resources: resources}
}

// Apply wraps base in every resource of the chain.
func (c *Chained) Apply(base Statement, desc Description) Statement {
	stmt := base
	for i := len(c.resources) - 1; i >= 0; i-- {
		stmt = Apply(c.resources[i], stmt, desc)
	}
	return stmt
}

// Resources returns the chained resources, outermost first.
func (c *Chained) Resources() []Resource {
	return c.resources
}
