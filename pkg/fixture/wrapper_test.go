package fixture

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildChain(journal *[]string, names ...string) []*recorder {
	var chain []*recorder
	var outer Resource
	for _, name := range names {
		r := newRecorder(name, outer, journal)
		chain = append(chain, r)
		outer = r
	}
	return chain
}

func TestApply_NestsOuterResources(t *testing.T) {
	var journal []string
	chain := buildChain(&journal, "folder", "repo", "session")
	innermost := chain[len(chain)-1]

	stmt := Apply(innermost, func(ctx context.Context) error {
		journal = append(journal, "body")
		for _, r := range chain {
			assert.Equal(t, StateActive, r.State(), r.Name())
		}
		return nil
	}, Description{Name: "TestNested"})

	require.NoError(t, stmt(context.Background()))
	assert.Equal(t, []string{
		"before:folder", "before:repo", "before:session",
		"body",
		"after:session", "after:repo", "after:folder",
	}, journal)
	for _, r := range chain {
		assert.Equal(t, StateDestroyed, r.State(), r.Name())
	}
}

func TestApply_ReverseOrderWhereverFailureOccurs(t *testing.T) {
	names := []string{"a", "b", "c", "d"}

	for failing := range names {
		t.Run("setup fails at "+names[failing], func(t *testing.T) {
			var journal []string
			chain := buildChain(&journal, names...)
			cause := errors.New("setup failed")
			chain[failing].failBefore = cause

			bodyRan := false
			err := Apply(chain[len(chain)-1], func(ctx context.Context) error {
				bodyRan = true
				return nil
			}, Description{})(context.Background())

			require.ErrorIs(t, err, cause)
			assert.ErrorIs(t, err, ErrResourceAcquisition)
			assert.False(t, bodyRan)

			var want []string
			for i := 0; i <= failing; i++ {
				want = append(want, "before:"+names[i])
			}
			for i := failing; i >= 0; i-- {
				want = append(want, "after:"+names[i])
			}
			assert.Equal(t, want, journal)
			for i := failing + 1; i < len(chain); i++ {
				assert.Equal(t, StateUninitialized, chain[i].State())
			}
		})
	}
}

func TestApply_BodyFailureTearsDownEverything(t *testing.T) {
	var journal []string
	chain := buildChain(&journal, "folder", "repo", "session")
	bodyErr := errors.New("assertion failed in body")

	err := Apply(chain[2], func(ctx context.Context) error {
		return bodyErr
	}, Description{})(context.Background())

	assert.Equal(t, bodyErr, err)
	assert.Equal(t, []string{
		"before:folder", "before:repo", "before:session",
		"after:session", "after:repo", "after:folder",
	}, journal)
	assert.Equal(t, "after:folder", journal[len(journal)-1], "folder is torn down last")
}

func TestApply_InnerTeardownFailureDoesNotBlockOuter(t *testing.T) {
	var journal []string
	chain := buildChain(&journal, "outer", "inner")
	releaseErr := errors.New("file locked")
	chain[1].failAfter = releaseErr

	t.Run("without primary failure", func(t *testing.T) {
		err := Apply(chain[1], func(ctx context.Context) error { return nil }, Description{})(context.Background())

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrResourceRelease)
		assert.ErrorIs(t, err, releaseErr)
		assert.Contains(t, journal, "after:outer")
		assert.Equal(t, StateDestroyed, chain[0].State())
	})

	t.Run("suppressed by body failure", func(t *testing.T) {
		journal = nil
		chain := buildChain(&journal, "outer", "inner")
		chain[1].failAfter = releaseErr
		bodyErr := errors.New("body")

		err := Apply(chain[1], func(ctx context.Context) error { return bodyErr }, Description{})(context.Background())

		assert.ErrorIs(t, err, bodyErr)
		assert.NotErrorIs(t, err, releaseErr, "suppressed errors are not part of the chain")
		suppressed := Suppressed(err)
		require.Len(t, suppressed, 1)
		assert.ErrorIs(t, suppressed[0], releaseErr)
		assert.Equal(t, "after:outer", journal[len(journal)-1])
	})
}

func TestApply_ExactlyOneHookPairPerInvocation(t *testing.T) {
	tests := []struct {
		name string
		desc Description
		want []string
	}{
		{
			name: "instance",
			desc: Description{Name: "TestSomething"},
			want: []string{"before:outer", "before:inner", "body", "after:inner", "after:outer"},
		},
		{
			name: "suite",
			desc: Description{Name: "TestMain", Suite: true},
			want: []string{"beforeClass:outer", "beforeClass:inner", "body", "afterClass:inner", "afterClass:outer"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var journal []string
			chain := buildChain(&journal, "outer", "inner")
			err := Apply(chain[1], func(ctx context.Context) error {
				journal = append(journal, "body")
				return nil
			}, tt.desc)(context.Background())

			require.NoError(t, err)
			assert.Equal(t, tt.want, journal)
		})
	}
}

func TestApply_SuiteScopedOuterIsNotReactivated(t *testing.T) {
	var journal []string
	chain := buildChain(&journal, "folder", "file")
	folder, file := chain[0], chain[1]
	ctx := context.Background()

	var second error
	err := Apply(folder, func(ctx context.Context) error {
		if err := Apply(file, func(ctx context.Context) error { return nil }, Description{Name: "test"})(ctx); err != nil {
			return err
		}
		second = Apply(file, func(ctx context.Context) error { return nil }, Description{Name: "again"})(ctx)
		return nil
	}, Description{Name: "suite", Suite: true})(ctx)
	require.NoError(t, err)

	// A destroyed fixture cannot be activated again.
	assert.ErrorIs(t, second, ErrIllegalLifecycleState)
	assert.Equal(t, []string{
		"beforeClass:folder",
		"before:file", "after:file",
		"afterClass:folder",
	}, journal)
}

func TestChain_SiblingsShareOuter(t *testing.T) {
	var journal []string
	folder := newRecorder("folder", nil, &journal)
	first := newRecorder("first", folder, &journal)
	second := newRecorder("second", folder, &journal)

	chain := Chain(first, second)
	assert.Len(t, chain.Resources(), 2)

	err := chain.Apply(func(ctx context.Context) error {
		journal = append(journal, "body")
		return nil
	}, Description{})(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{
		"before:folder", "before:first", "before:second",
		"body",
		"after:second", "after:first", "after:folder",
	}, journal)
}

func TestRun_And_Use(t *testing.T) {
	var journal []string
	chain := buildChain(&journal, "outer", "inner")

	t.Run("run", func(t *testing.T) {
		Run(t, chain[1], func(ctx context.Context) error {
			journal = append(journal, "body")
			return nil
		})
	})
	assert.Equal(t, []string{"before:outer", "before:inner", "body", "after:inner", "after:outer"}, journal)

	journal = nil
	used := buildChain(&journal, "outer", "inner")
	t.Run("use", func(t *testing.T) {
		inner := Use(t, used[1])
		assert.Same(t, used[1], inner)
		assert.True(t, IsActive(used[0]))
		journal = append(journal, "body")
	})
	assert.Equal(t, []string{"before:outer", "before:inner", "body", "after:inner", "after:outer"}, journal)
	assert.Equal(t, StateDestroyed, StateOf(used[0]))
}

type fakeMain struct {
	journal *[]string
	code    int
}

func (m *fakeMain) Run() int {
	*m.journal = append(*m.journal, "tests")
	return m.code
}

func TestRunMain(t *testing.T) {
	t.Run("suite hooks around the tests", func(t *testing.T) {
		var journal []string
		chain := buildChain(&journal, "folder", "server")

		code := RunMain(&fakeMain{journal: &journal, code: 3}, chain[0], chain[1])
		assert.Equal(t, 3, code)
		assert.Equal(t, []string{
			"beforeClass:folder", "beforeClass:server",
			"tests",
			"afterClass:server", "afterClass:folder",
		}, journal)
		for _, r := range chain {
			assert.Equal(t, StateDestroyed, r.State(), r.Name())
		}
	})

	t.Run("setup failure skips the tests", func(t *testing.T) {
		var journal []string
		chain := buildChain(&journal, "folder", "server")
		chain[1].failClass = errors.New("no port")

		code := RunMain(&fakeMain{journal: &journal}, chain[0], chain[1])
		assert.Equal(t, 1, code)
		assert.NotContains(t, journal, "tests")
		assert.Equal(t, StateDestroyed, chain[0].State())
	})
}

func TestDescription_Scope(t *testing.T) {
	assert.Equal(t, ScopeInstance, Description{}.Scope())
	assert.Equal(t, ScopeSuite, Description{Suite: true}.Scope())
}
