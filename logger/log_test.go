package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestSetLevel(t *testing.T) {
	defer func() { _ = SetLevel("info") }()

	require.NoError(t, SetLevel("debug"))
	assert.True(t, Log.Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, SetLevel("error"))
	assert.False(t, Log.Core().Enabled(zapcore.WarnLevel))

	assert.Error(t, SetLevel("loud"))
}
