package logger

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("nonsense"))
}

func TestNewWithCore_With(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewWithCore(core).With(String("component", "test"))

	l.Warn("skipped line", Int("line", 3), Error(errors.New("bad json")))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "skipped line", entry.Message)
	ctx := entry.ContextMap()
	assert.Equal(t, "test", ctx["component"])
	assert.EqualValues(t, 3, ctx["line"])
	assert.Equal(t, "bad json", ctx["error"])
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	l, err := New(Config{Level: "debug", OutputPaths: []string{path}})
	require.NoError(t, err)
	l.Debug("hello")
	_ = l.Sync()
	assert.FileExists(t, path)
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.SetDefaults()
	assert.Equal(t, DefaultLevel, c.Level)
	assert.Equal(t, DefaultOutputPaths, c.OutputPaths)
}

func TestNop(t *testing.T) {
	l := NewNop()
	l.Info("ignored")
	assert.Same(t, l, l.With(String("a", "b")))
	assert.NoError(t, l.Sync())
}
