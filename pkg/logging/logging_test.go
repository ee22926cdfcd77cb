package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{" warn ", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelDebug.SlogLevel())
	assert.Equal(t, slog.LevelError, LevelError.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogLevel(42).SlogLevel())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestInitForCLI_WritesSubsystemAndError(t *testing.T) {
	defer Reset()

	var buf bytes.Buffer
	InitForCLI(LevelInfo, &buf)

	Debug("Fixture", "hidden %d", 1)
	Error("TemporaryFolder", errors.New("disk full"), "release of %s failed", "root")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "subsystem=TemporaryFolder")
	assert.Contains(t, out, "release of root failed")
	assert.Contains(t, out, "disk full")
}

func TestInitForCapture_DeliversEntries(t *testing.T) {
	defer Reset()

	ch := InitForCapture(LevelWarn, 4)
	require.NotNil(t, ch)

	Info("Fixture", "below threshold")
	Warn("Directory", "partition %s is empty", "example")

	select {
	case entry := <-ch:
		assert.Equal(t, LevelWarn, entry.Level)
		assert.Equal(t, "Directory", entry.Subsystem)
		assert.Equal(t, "partition example is empty", entry.Message)
	default:
		t.Fatal("expected a captured entry")
	}

	select {
	case entry := <-ch:
		t.Fatalf("unexpected entry %q", entry.Message)
	default:
	}
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv(EnvLogLevel, "debug")
	assert.Equal(t, LevelDebug, levelFromEnv())

	t.Setenv(EnvLogLevel, "nonsense")
	assert.Equal(t, LevelWarn, levelFromEnv())
}
