package huebot

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	assert.Equal(t, DefaultDatabaseType, config.DatabaseType)
	assert.Equal(t, DefaultDatabase, config.Database)
	assert.Equal(t, DefaultLogLevel, config.LogLevel.Level())
	assert.Equal(t, DefaultStartupTimeout, config.StartupTimeout)

	require.NotNil(t, config.Provision)
	assert.Equal(t, DefaultProvisionWorkers, config.Provision.Workers)
	assert.Equal(
		t,
		DefaultProvisionCreateInterval,
		config.Provision.CreateInterval,
	)
	assert.Equal(
		t,
		DefaultProvisionRetryInterval,
		config.Provision.RetryInterval,
	)
	assert.Equal(t, DefaultProvisionMaxAttempts, config.Provision.MaxAttempts)

	require.NotNil(t, config.Discord)
	assert.Equal(t, DefaultDiscordGatewayIntent, config.Discord.GatewayIntents)

	require.NotNil(t, config.API)
	assert.Equal(t, DefaultAPIListen, config.API.Listen)
	assert.NotEmpty(t, config.API.CORS.AllowMethods)
	assert.Contains(t, config.API.CORS.AllowHeaders, xRequestIDHeader)
}

func TestConfigValidation(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		config := DefaultConfig()
		config.Discord.Token = "token"
		config.Discord.ApplicationID = "app-id"
		return config
	}

	require.NoError(t, structValidator.Struct(valid()))

	missingToken := valid()
	missingToken.Discord.Token = ""
	assert.Error(t, structValidator.Struct(missingToken))

	badDBType := valid()
	badDBType.DatabaseType = "mongodb"
	assert.Error(t, structValidator.Struct(badDBType))

	badTimeout := valid()
	badTimeout.API.ReadTimeout = time.Millisecond
	assert.Error(t, structValidator.Struct(badTimeout))
}

func TestProvisionConfigValidation(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		config := DefaultConfig()
		config.Discord.Token = "token"
		config.Discord.ApplicationID = "app-id"
		return config
	}

	noWorkers := valid()
	noWorkers.Provision.Workers = 0
	assert.Error(t, structValidator.Struct(noWorkers))

	negativeInterval := valid()
	negativeInterval.Provision.CreateInterval = -time.Second
	assert.Error(t, structValidator.Struct(negativeInterval))

	noRetryInterval := valid()
	noRetryInterval.Provision.RetryInterval = 0
	assert.Error(t, structValidator.Struct(noRetryInterval))

	// 0 means unbounded retries, not invalid
	unboundedRetries := valid()
	unboundedRetries.Provision.MaxAttempts = 0
	assert.NoError(t, structValidator.Struct(unboundedRetries))
}

func TestConfigLogLevels(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	assert.Equal(t, DefaultDiscordLogLevel, config.Discord.LogLevel.Level())
	assert.Equal(
		t,
		DefaultDiscordgoLogLevel,
		config.Discord.DiscordGoLogLevel.Level(),
	)
	assert.Equal(t, DefaultDatabaseLogLevel, config.DatabaseLogLevel.Level())
	assert.Equal(t, DefaultAPILogLevel, config.API.LogLevel.Level())

	// levels are adjustable at runtime
	config.LogLevel.Set(slog.LevelDebug)
	assert.Equal(t, slog.LevelDebug, config.LogLevel.Level())
}
