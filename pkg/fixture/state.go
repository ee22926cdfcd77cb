package fixture

// State represents the lifecycle state of a resource.
type State string

const (
	StateUninitialized State = "Uninitialized"
	StateConfiguring   State = "Configuring"
	StateActive        State = "Active"
	StateDestroyed     State = "Destroyed"
)

// order is used to keep transitions monotonic.
var order = map[State]int{
	StateUninitialized: 0,
	StateConfiguring:   1,
	StateActive:        2,
	StateDestroyed:     3,
}

// CanConfigure reports whether configuration setters are legal in s.
func (s State) CanConfigure() bool {
	return s == StateUninitialized || s == StateConfiguring
}

// CanTransitionTo reports whether moving from s to next is a legal
// transition. Transitions never go backwards and never skip a state, except
// that Destroyed is reachable from Configuring since teardown has to run
// after a partial setup.
func (s State) CanTransitionTo(next State) bool {
	from, ok := order[s]
	if !ok {
		return false
	}
	to, ok := order[next]
	if !ok || to <= from {
		return false
	}
	if next == StateDestroyed && s != StateUninitialized {
		return true
	}
	return to == from+1
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateDestroyed
}

// Scope selects which hook pair of a resource runs.
type Scope string

const (
	// ScopeInstance runs Before/After around a single test.
	ScopeInstance Scope = "instance"
	// ScopeSuite runs BeforeClass/AfterClass around a whole suite.
	ScopeSuite Scope = "suite"
)

// Requirement declares whether a configuration property must be set
// before a resource is activated.
type Requirement int

const (
	Optional Requirement = iota
	Required
)

func (r Requirement) String() string {
	if r == Required {
		return "required"
	}
	return "optional"
}
