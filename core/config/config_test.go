package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/searchpool/core/config"
)

type poolConfig struct {
	Endpoint       string        `env:"CONFIG_TEST_ENDPOINT" envDefault:"http://127.0.0.1:9200/"`
	MaxConnections int           `env:"CONFIG_TEST_MAX_CONNECTIONS" envDefault:"10"`
	RequestTimeout time.Duration `env:"CONFIG_TEST_REQUEST_TIMEOUT"`
}

type requiredConfig struct {
	Endpoint string `env:"CONFIG_TEST_REQUIRED_ENDPOINT,required"`
}

// Tests here mutate the process environment and the package cache, so they
// do not run in parallel.

func TestLoad_Defaults(t *testing.T) {
	config.ResetCache()

	var cfg poolConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, "http://127.0.0.1:9200/", cfg.Endpoint)
	assert.Equal(t, 10, cfg.MaxConnections)
	assert.Zero(t, cfg.RequestTimeout)
}

func TestLoad_FromEnvironment(t *testing.T) {
	config.ResetCache()
	t.Setenv("CONFIG_TEST_ENDPOINT", "http://search:9200")
	t.Setenv("CONFIG_TEST_MAX_CONNECTIONS", "4")
	t.Setenv("CONFIG_TEST_REQUEST_TIMEOUT", "750ms")

	var cfg poolConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, "http://search:9200", cfg.Endpoint)
	assert.Equal(t, 4, cfg.MaxConnections)
	assert.Equal(t, 750*time.Millisecond, cfg.RequestTimeout)
}

func TestLoad_Cached(t *testing.T) {
	config.ResetCache()
	t.Setenv("CONFIG_TEST_MAX_CONNECTIONS", "3")

	var first poolConfig
	require.NoError(t, config.Load(&first))

	t.Setenv("CONFIG_TEST_MAX_CONNECTIONS", "30")

	var second poolConfig
	require.NoError(t, config.Load(&second))
	assert.Equal(t, first, second)
	assert.Equal(t, 3, second.MaxConnections)
}

func TestLoad_InvalidValue(t *testing.T) {
	config.ResetCache()
	t.Setenv("CONFIG_TEST_MAX_CONNECTIONS", "many")

	var cfg poolConfig
	err := config.Load(&cfg)
	assert.ErrorIs(t, err, config.ErrParsingConfig)
}

func TestMustLoad_PanicsOnMissingRequired(t *testing.T) {
	config.ResetCache()

	var cfg requiredConfig
	assert.Panics(t, func() { config.MustLoad(&cfg) })
}
