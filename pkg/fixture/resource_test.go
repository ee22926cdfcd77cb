package fixture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribble/pkg/logging"
)

// recorder is a fixture that appends every hook call and release to a
// shared journal.
type recorder struct {
	Base
	journal *[]string

	acquire    int
	failAt     int
	failBefore error
	failAfter  error
	failClass  error
}

func newRecorder(name string, outer Resource, journal *[]string) *recorder {
	r := &recorder{journal: journal, failAt: -1}
	r.Init(name, outer)
	return r
}

func (r *recorder) record(event string) {
	*r.journal = append(*r.journal, event+":"+r.Name())
}

func (r *recorder) Before(ctx context.Context) error {
	r.record("before")
	for i := 0; i < r.acquire; i++ {
		if i == r.failAt {
			return r.failBefore
		}
		sub := fmt.Sprintf("%s/%d", r.Name(), i)
		r.Defer(sub, func(ctx context.Context) error {
			*r.journal = append(*r.journal, "release:"+sub)
			return nil
		})
	}
	if r.failAt < 0 {
		return r.failBefore
	}
	return nil
}

func (r *recorder) After(ctx context.Context) error {
	r.record("after")
	return r.failAfter
}

func (r *recorder) BeforeClass(ctx context.Context) error {
	r.record("beforeClass")
	return r.failClass
}

func (r *recorder) AfterClass(ctx context.Context) error {
	r.record("afterClass")
	return nil
}

func TestState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateUninitialized, StateConfiguring, true},
		{StateUninitialized, StateActive, false},
		{StateUninitialized, StateDestroyed, false},
		{StateConfiguring, StateActive, true},
		{StateActive, StateDestroyed, true},
		{StateConfiguring, StateConfiguring, false},
		{StateConfiguring, StateDestroyed, true},
		{StateActive, StateConfiguring, false},
		{StateDestroyed, StateActive, false},
		{StateDestroyed, StateUninitialized, false},
		{StateActive, StateActive, false},
		{State("Bogus"), StateActive, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
	assert.True(t, StateDestroyed.IsTerminal())
	assert.False(t, StateActive.CanConfigure())
}

func TestSetup_ActivatesWithoutConfiguration(t *testing.T) {
	var journal []string
	r := newRecorder("solo", nil, &journal)

	require.NoError(t, Setup(context.Background(), r, ScopeInstance))
	assert.Equal(t, StateActive, r.State())
	require.NoError(t, Teardown(context.Background(), r, ScopeInstance))
	assert.Equal(t, StateDestroyed, r.State())
	assert.Equal(t, []string{"before:solo", "after:solo"}, journal)
}

// stateWatcher remembers the state it observed during its setup hook.
type stateWatcher struct {
	Base
	seen []State
}

func (w *stateWatcher) Before(ctx context.Context) error {
	w.seen = append(w.seen, w.State())
	return nil
}
func (w *stateWatcher) After(ctx context.Context) error      { return nil }
func (w *stateWatcher) BeforeClass(ctx context.Context) error { return w.Before(ctx) }
func (w *stateWatcher) AfterClass(ctx context.Context) error  { return w.After(ctx) }

func TestSetup_UnconfiguredPassesThroughConfiguring(t *testing.T) {
	w := &stateWatcher{}
	w.Init("watcher", nil)
	ctx := context.Background()

	require.NoError(t, Setup(ctx, w, ScopeInstance))
	assert.Equal(t, []State{StateConfiguring}, w.seen)
	assert.Equal(t, StateActive, w.State())
	require.NoError(t, Teardown(ctx, w, ScopeInstance))
	assert.Equal(t, StateDestroyed, w.State())
}

func TestSetup_RequiresActiveOuter(t *testing.T) {
	var journal []string
	outer := newRecorder("outer", nil, &journal)
	inner := newRecorder("inner", outer, &journal)

	err := Setup(context.Background(), inner, ScopeInstance)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIllegalLifecycleState)
	assert.Empty(t, journal)
	assert.Equal(t, StateUninitialized, inner.State())
}

func TestSetup_DestroyedIsTerminal(t *testing.T) {
	var journal []string
	r := newRecorder("once", nil, &journal)
	ctx := context.Background()

	require.NoError(t, Setup(ctx, r, ScopeInstance))
	require.NoError(t, Teardown(ctx, r, ScopeInstance))

	err := Setup(ctx, r, ScopeInstance)
	assert.ErrorIs(t, err, ErrIllegalLifecycleState)
	// A second teardown is a no-op.
	assert.NoError(t, Teardown(ctx, r, ScopeInstance))
	assert.Equal(t, []string{"before:once", "after:once"}, journal)
}

func TestTeardown_NeverStartedIsNoop(t *testing.T) {
	var journal []string
	r := newRecorder("idle", nil, &journal)

	assert.NoError(t, Teardown(context.Background(), r, ScopeInstance))
	assert.Empty(t, journal)
	assert.Equal(t, StateUninitialized, r.State())
}

func TestConfigure_RequiredProperties(t *testing.T) {
	ctx := context.Background()

	t.Run("missing required property", func(t *testing.T) {
		var journal []string
		r := newRecorder("repo", nil, &journal)
		r.Declare("context", Required)
		r.Declare("lookupName", Optional)

		err := Setup(ctx, r, ScopeInstance)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingRequiredConfiguration)
		assert.Contains(t, err.Error(), `"context"`)
		assert.Empty(t, journal, "hooks must not run when validation fails")
	})

	t.Run("first missing property wins", func(t *testing.T) {
		var journal []string
		r := newRecorder("repo", nil, &journal)
		r.Declare("first", Required)
		r.Declare("second", Required)

		err := Setup(ctx, r, ScopeInstance)
		assert.Contains(t, err.Error(), `"first"`)
		assert.NotContains(t, err.Error(), `"second"`)
	})

	t.Run("set in any order", func(t *testing.T) {
		var journal []string
		r := newRecorder("repo", nil, &journal)
		r.Declare("a", Required)
		r.Declare("b", Required)

		require.NoError(t, r.Configure("b"))
		assert.Equal(t, StateConfiguring, r.State())
		require.NoError(t, r.Configure("a"))
		require.NoError(t, Setup(ctx, r, ScopeInstance))
		assert.True(t, r.IsSet("a"))
	})

	t.Run("set after activation", func(t *testing.T) {
		var journal []string
		r := newRecorder("repo", nil, &journal)
		r.Declare("a", Required)
		require.NoError(t, r.Configure("a"))
		require.NoError(t, Setup(ctx, r, ScopeInstance))

		err := r.Configure("a")
		assert.ErrorIs(t, err, ErrIllegalLifecycleState)
		var fe *Error
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "repo", fe.Resource)
	})
}

func TestSetup_PartialAcquisitionIsUnwound(t *testing.T) {
	var journal []string
	cause := errors.New("third socket refused")
	r := newRecorder("server", nil, &journal)
	r.acquire = 3
	r.failAt = 2
	r.failBefore = cause

	err := Setup(context.Background(), r, ScopeInstance)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResourceAcquisition)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, StateDestroyed, r.State())
	assert.Equal(t, []string{
		"before:server",
		"after:server",
		"release:server/1",
		"release:server/0",
	}, journal)
}

func TestTeardown_ContinuesAfterReleaseFailures(t *testing.T) {
	var journal []string
	r := newRecorder("folder", nil, &journal)
	ctx := context.Background()
	require.NoError(t, Setup(ctx, r, ScopeInstance))

	r.Defer("first", func(ctx context.Context) error {
		journal = append(journal, "release:first")
		return nil
	})
	r.Defer("second", func(ctx context.Context) error {
		journal = append(journal, "release:second")
		return errors.New("busy")
	})
	r.failAfter = errors.New("hook broke")

	err := Teardown(ctx, r, ScopeInstance)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResourceRelease)
	assert.Contains(t, err.Error(), "hook broke")
	assert.Contains(t, err.Error(), "release second: busy")
	assert.Equal(t, []string{"before:folder", "after:folder", "release:second", "release:first"}, journal)
	assert.Equal(t, StateDestroyed, r.State())
}

func TestTeardown_LogsReleaseFailure(t *testing.T) {
	defer logging.Reset()
	entries := logging.InitForCapture(logging.LevelError, 16)

	var journal []string
	r := newRecorder("leaky", nil, &journal)
	r.failAfter = errors.New("cannot delete")
	ctx := context.Background()
	require.NoError(t, Setup(ctx, r, ScopeInstance))
	require.Error(t, Teardown(ctx, r, ScopeInstance))

	select {
	case entry := <-entries:
		assert.Equal(t, "Fixture", entry.Subsystem)
		assert.Contains(t, entry.Message, "leaky")
		assert.ErrorContains(t, entry.Err, "cannot delete")
	default:
		t.Fatal("teardown failure was not logged")
	}
}

type countingObserver struct {
	mu        sync.Mutex
	setups    map[string]int
	teardowns map[string]int
	failures  int
}

func (o *countingObserver) SetupCompleted(resource string, scope Scope, d time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setups[resource]++
	if err != nil {
		o.failures++
	}
}

func (o *countingObserver) TeardownCompleted(resource string, scope Scope, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.teardowns[resource]++
	if err != nil {
		o.failures++
	}
}

func TestSetObserver(t *testing.T) {
	obs := &countingObserver{setups: map[string]int{}, teardowns: map[string]int{}}
	SetObserver(obs)
	defer SetObserver(nil)

	var journal []string
	ok := newRecorder("ok", nil, &journal)
	bad := newRecorder("bad", nil, &journal)
	bad.failBefore = errors.New("boom")
	ctx := context.Background()

	require.NoError(t, Setup(ctx, ok, ScopeInstance))
	require.NoError(t, Teardown(ctx, ok, ScopeInstance))
	require.Error(t, Setup(ctx, bad, ScopeInstance))

	assert.Equal(t, 1, obs.setups["ok"])
	assert.Equal(t, 1, obs.teardowns["ok"])
	assert.Equal(t, 1, obs.setups["bad"])
	assert.Equal(t, 1, obs.teardowns["bad"])
	assert.Equal(t, 1, obs.failures)
}
