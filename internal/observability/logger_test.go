package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerUsesProductionConfigForProductionEnv(t *testing.T) {
	log, err := NewLogger("production", "info", "json")
	require.NoError(t, err)
	require.NotNil(t, log)
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNewLoggerUsesDevelopmentConfigOtherwise(t *testing.T) {
	log, err := NewLogger("development", "debug", "console")
	require.NoError(t, err)
	require.NotNil(t, log)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNewLoggerIgnoresUnparsableLevel(t *testing.T) {
	log, err := NewLogger("development", "not-a-level", "json")
	require.NoError(t, err)
	require.NotNil(t, log)
}

func TestNewNopLoggerDiscardsOutput(t *testing.T) {
	log := NewNopLogger()
	require.NotNil(t, log)
	assert.NotPanics(t, func() { log.Info("discarded") })
}
