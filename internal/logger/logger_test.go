package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/iliyamo/dutch-auction/internal/config"
)

func TestNewFallsBackToInfo(t *testing.T) {
	l, err := New(config.LogConfig{Level: "loud", Encoding: "xml"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestNewDebugConsole(t *testing.T) {
	l, err := New(config.LogConfig{Level: "DEBUG", Encoding: "console"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}
