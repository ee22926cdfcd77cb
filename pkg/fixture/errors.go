package fixture

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Use errors.Is to test which kind an error carries.
var (
	ErrIllegalLifecycleState        = errors.New("illegal lifecycle state")
	ErrMissingRequiredConfiguration = errors.New("missing required configuration")
	ErrResourceAcquisition          = errors.New("resource acquisition failed")
	ErrResourceRelease              = errors.New("resource release failed")
)

// Error is returned by every lifecycle operation of the fixture engine.
// Kind is one of the Err* sentinels above and Err the underlying cause.
type Error struct {
	Kind     error
	Resource string
	Err      error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.Error())
	if e.Resource != "" {
		sb.WriteString(" (")
		sb.WriteString(e.Resource)
		sb.WriteString(")")
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(kind error, resource string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Resource: resource, Err: fmt.Errorf(format, args...)}
}

// suppressedError carries a primary failure plus secondary failures that
// happened while cleaning up after it. Only the primary failure takes
// part in errors.Is and errors.As.
type suppressedError struct {
	primary    error
	suppressed []error
}

func (e *suppressedError) Error() string {
	msgs := make([]string, 0, len(e.suppressed))
	for _, s := range e.suppressed {
		msgs = append(msgs, s.Error())
	}
	return fmt.Sprintf("%s (suppressed: %s)", e.primary.Error(), strings.Join(msgs, "; "))
}

func (e *suppressedError) Unwrap() error {
	return e.primary
}

// WithSuppressed attaches secondary to primary. If primary is nil the
// secondary error is returned as is.
func WithSuppressed(primary, secondary error) error {
	if secondary == nil {
		return primary
	}
	if primary == nil {
		return secondary
	}
	if se, ok := primary.(*suppressedError); ok {
		se.suppressed = append(se.suppressed, secondary)
		return se
	}
	return &suppressedError{primary: primary, suppressed: []error{secondary}}
}

// Suppressed returns the errors attached to err with WithSuppressed,
// outermost first.
func Suppressed(err error) []error {
	var out []error
	for err != nil {
		if se, ok := err.(*suppressedError); ok {
			out = append(out, se.suppressed...)
		}
		switch u := err.(type) {
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				out = append(out, Suppressed(inner)...)
			}
			return out
		default:
			return out
		}
	}
	return out
}
