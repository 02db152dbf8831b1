package cmd

import (
	"log/slog"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLogLevel(t *testing.T) {
	for _, level := range []slog.Level{
		slog.LevelDebug,
		slog.LevelInfo,
		slog.LevelWarn,
		slog.LevelError,
	} {
		got, err := getLogLevel(level.String())
		require.NoError(t, err)
		assert.Equal(t, level, got)
	}

	_, err := getLogLevel("LOUD")
	assert.Error(t, err)
}

func TestLevelToStringHookFunc(t *testing.T) {
	hook := LevelToStringHookFunc()

	stringType := reflect.TypeOf("")
	levelVarType := reflect.TypeOf(&slog.LevelVar{})

	v, err := hook(stringType, levelVarType, "DEBUG")
	require.NoError(t, err)
	lvl, ok := v.(*slog.LevelVar)
	require.True(t, ok)
	assert.Equal(t, slog.LevelDebug, lvl.Level())

	// non-level strings pass through untouched
	v, err = hook(stringType, stringType, "DEBUG")
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", v)

	_, err = hook(stringType, levelVarType, "LOUD")
	assert.Error(t, err)
}

func TestLevelStringToLevelVar(t *testing.T) {
	lvl, err := levelStringToLevelVar("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl.Level())

	_, err = levelStringToLevelVar("LOUD")
	assert.Error(t, err)
}

func TestSubcommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["provision"])
	assert.True(t, names["version"])
}
