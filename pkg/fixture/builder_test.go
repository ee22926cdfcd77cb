package fixture

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribble/pkg/logging"
)

type recorderBuilder struct {
	Builder[*recorder]
	journal *[]string
	label   string
	calls   int
}

func newRecorderBuilder(journal *[]string) *recorderBuilder {
	b := &recorderBuilder{journal: journal, label: "default"}
	b.Builder = NewBuilder("recorder", func() (*recorder, error) {
		b.calls++
		return newRecorder(b.label, nil, b.journal), nil
	})
	return b
}

func (b *recorderBuilder) WithLabel(label string) *recorderBuilder {
	if b.Configure("label") {
		b.label = label
	}
	return b
}

func TestBuilder_BuildIsIdempotent(t *testing.T) {
	var journal []string
	b := newRecorderBuilder(&journal).WithLabel("folder")

	first, err := b.Build()
	require.NoError(t, err)
	second, err := b.Build()
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, b.calls)
	assert.Equal(t, "folder", first.Name())
	assert.True(t, b.Built())
}

func TestBuilder_ConfigureAfterBuild(t *testing.T) {
	var journal []string
	b := newRecorderBuilder(&journal)
	built := b.MustBuild()

	b.WithLabel("late")

	again, err := b.Build()
	assert.ErrorIs(t, err, ErrIllegalLifecycleState)
	assert.ErrorIs(t, b.Err(), ErrIllegalLifecycleState)
	assert.Same(t, built, again)
	assert.Equal(t, "default", built.Name())
	assert.Panics(t, func() { b.MustBuild() })
}

func TestBuilder_ConfigureAfterBuildIsLogged(t *testing.T) {
	defer logging.Reset()
	entries := logging.InitForCapture(logging.LevelWarn, 16)

	var journal []string
	b := newRecorderBuilder(&journal)
	b.MustBuild()
	b.WithLabel("late")

	select {
	case entry := <-entries:
		assert.Equal(t, logging.LevelWarn, entry.Level)
		assert.Contains(t, entry.Message, "label")
		assert.Contains(t, entry.Message, "already built")
	default:
		t.Fatal("late option was not logged")
	}
}

func TestBuilder_ConstructError(t *testing.T) {
	cause := errors.New("no outer")
	b := NewBuilder("broken", func() (*recorder, error) {
		return nil, cause
	})

	_, err := b.Build()
	assert.ErrorIs(t, err, cause)
	assert.False(t, b.Built())
	assert.False(t, b.Configure("anything"))
}

func TestBuilder_FailKeepsFirstError(t *testing.T) {
	var journal []string
	b := newRecorderBuilder(&journal)
	first := errors.New("first")
	b.Fail(first)
	b.Fail(errors.New("second"))
	b.Fail(nil)

	_, err := b.Build()
	assert.Equal(t, first, err)
	assert.Equal(t, 0, b.calls)
}
