package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestBuild(t *testing.T) {
	l, err := Build("debug", "json")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, "debug", Level())
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	_, err = Build("loud", "console")
	assert.Error(t, err)
	_, err = Build("info", "xml")
	assert.Error(t, err)
}

func TestSetLevel(t *testing.T) {
	l, err := Build("info", "console")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, SetLevel("debug"))
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel), "级别调整对已构建的实例生效")

	require.NoError(t, SetLevel("error"))
	assert.False(t, l.Core().Enabled(zapcore.WarnLevel))
	assert.True(t, l.Core().Enabled(zapcore.ErrorLevel))

	assert.Error(t, SetLevel("nope"))
	assert.Equal(t, "error", Level())
}
