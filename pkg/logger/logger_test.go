package logger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		l, err := New("debug", format)
		require.NoError(t, err)
		assert.True(t, l.Core().Enabled(zap.DebugLevel))
	}

	l, err := New("not-a-level", "json")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.DebugLevel), "unknown level falls back to info")
}

func TestWithRequest(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := &Logger{zap.New(core)}

	id := uuid.New()
	l.WithRequest(id).Infof("approved by %s", "alice")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "approved by alice", entry.Message)
	assert.Equal(t, id.String(), entry.ContextMap()["request_id"])
}

func TestDefault(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	l := NewForTesting()
	SetDefault(l)
	assert.Same(t, l, Default())
}
