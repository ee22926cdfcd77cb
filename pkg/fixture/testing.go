package fixture

import (
	"context"
	"fmt"
	"os"
	"testing"

	"scribble/pkg/logging"
)

// Run executes body inside r (and its inactive outers) in instance scope
// and fails t with the resulting error.
func Run(t testing.TB, r Resource, body func(ctx context.Context) error) {
	t.Helper()
	desc := Description{Name: t.Name()}
	if err := Apply(r, body, desc)(testContext(t)); err != nil {
		t.Fatal(err)
	}
}

// Run executes body inside every resource of the chain in instance scope.
func (c *Chained) Run(t testing.TB, body func(ctx context.Context) error) {
	t.Helper()
	desc := Description{Name: t.Name()}
	if err := c.Apply(body, desc)(testContext(t)); err != nil {
		t.Fatal(err)
	}
}

// Use sets up r and every inactive outer of it right away and registers
// their teardown with t.Cleanup, which runs innermost first. It returns r
// so it can be used inline.
func Use[T Resource](t testing.TB, r T) T {
	t.Helper()

	var pending []Resource
	for cur := Resource(r); cur != nil && !IsActive(cur); cur = cur.managed().outer {
		pending = append(pending, cur)
	}

	for i := len(pending) - 1; i >= 0; i-- {
		res := pending[i]
		if err := Setup(testContext(t), res, ScopeInstance); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() {
			if err := Teardown(context.Background(), res, ScopeInstance); err != nil {
				t.Error(err)
			}
		})
	}
	return r
}

// MainRunner runs a test binary's tests; *testing.M implements it.
type MainRunner interface {
	Run() int
}

// RunMain runs the tests of m inside the given resources in suite scope.
// It is meant to be called from TestMain:
//
//	func TestMain(m *testing.M) {
//		os.Exit(fixture.RunMain(m, folder))
//	}
func RunMain(m MainRunner, resources ...Resource) int {
	code := 0
	body := func(ctx context.Context) error {
		code = m.Run()
		return nil
	}
	desc := Description{Name: "TestMain", Suite: true}
	if err := Chain(resources...).Apply(body, desc)(context.Background()); err != nil {
		logging.Error(subsystem, err, "suite fixtures failed")
		fmt.Fprintf(os.Stderr, "fixture: %v\n", err)
		if code == 0 {
			code = 1
		}
	}
	return code
}

// testContext returns a context that stays valid while cleanup functions
// run; t.Context is cancelled before them.
func testContext(t testing.TB) context.Context {
	return context.WithoutCancel(t.Context())
}
