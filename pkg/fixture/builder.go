package fixture

import (
	"fmt"

	"scribble/pkg/logging"
)

// Builder carries the build-once logic shared by all fixture builders.
// Concrete builders embed it, guard every option with Configure and
// construct the resource in the function passed to NewBuilder.
type Builder[T Resource] struct {
	name      string
	construct func() (T, error)
	built     bool
	instance  T
	err       error
}

// NewBuilder returns a builder that calls construct on the first Build.
func NewBuilder[T Resource](name string, construct func() (T, error)) Builder[T] {
	return Builder[T]{name: name, construct: construct}
}

// Configure reports whether an option may still be applied. After Build it
// records an ErrIllegalLifecycleState usage error, logs it at warn level and
// returns false; the option has no effect on the built resource and the
// error surfaces on the next Build or Err.
func (b *Builder[T]) Configure(option string) bool {
	if b.built {
		err := newError(ErrIllegalLifecycleState, b.name, "option %q applied after Build", option)
		logging.Warn(subsystem, "%s: option %q ignored, the resource is already built", b.name, option)
		b.Fail(err)
		return false
	}
	return b.err == nil
}

// Fail records err; the first recorded error is returned by Build and Err.
func (b *Builder[T]) Fail(err error) {
	if err != nil && b.err == nil {
		b.err = err
	}
}

// Build constructs the resource on the first call and returns the same
// instance on every later call.
func (b *Builder[T]) Build() (T, error) {
	if b.built || b.err != nil {
		return b.instance, b.err
	}
	if b.construct == nil {
		var zero T
		return zero, fmt.Errorf("builder %s has no constructor", b.name)
	}
	instance, err := b.construct()
	if err != nil {
		b.Fail(err)
		return instance, b.err
	}
	b.instance = instance
	b.built = true
	return b.instance, nil
}

// MustBuild is like Build but panics on error.
func (b *Builder[T]) MustBuild() T {
	instance, err := b.Build()
	if err != nil {
		panic(err)
	}
	return instance
}

// Err returns the first error recorded by the builder.
func (b *Builder[T]) Err() error {
	return b.err
}

// Built reports whether Build has completed.
func (b *Builder[T]) Built() bool {
	return b.built
}
