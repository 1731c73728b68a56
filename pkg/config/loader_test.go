package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideaforge/billingcore/pkg/config"
)

type databaseConfig struct {
	Host string `env:"TEST_DB_HOST" envDefault:"localhost"`
	Port int    `env:"TEST_DB_PORT" envDefault:"5432"`
	URL  string `env:"TEST_DATABASE_URL,required"`
}

type nestedConfig struct {
	DB    databaseConfig
	Debug bool `env:"TEST_DEBUG" envDefault:"false"`
}

func TestLoad(t *testing.T) {
	t.Run("defaults and explicit values", func(t *testing.T) {
		t.Setenv("TEST_DATABASE_URL", "postgres://localhost/app")
		t.Setenv("TEST_DB_PORT", "6543")

		cfg, err := config.Load[databaseConfig]()
		require.NoError(t, err)
		assert.Equal(t, "localhost", cfg.Host)
		assert.Equal(t, 6543, cfg.Port)
		assert.Equal(t, "postgres://localhost/app", cfg.URL)
	})

	t.Run("missing required variable fails", func(t *testing.T) {
		t.Setenv("TEST_DATABASE_URL", "")

		_, err := config.Load[databaseConfig]()
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("nested structs are populated", func(t *testing.T) {
		t.Setenv("TEST_DATABASE_URL", "postgres://localhost/app")
		t.Setenv("TEST_DEBUG", "true")

		cfg, err := config.Load[nestedConfig]()
		require.NoError(t, err)
		assert.Equal(t, "postgres://localhost/app", cfg.DB.URL)
		assert.True(t, cfg.Debug)
	})

	t.Run("invalid value type fails", func(t *testing.T) {
		t.Setenv("TEST_DATABASE_URL", "postgres://localhost/app")
		t.Setenv("TEST_DB_PORT", "not-a-port")

		_, err := config.Load[databaseConfig]()
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})
}

func TestMustLoad(t *testing.T) {
	t.Run("returns the config on success", func(t *testing.T) {
		t.Setenv("TEST_DATABASE_URL", "postgres://localhost/app")

		cfg := config.MustLoad[databaseConfig]()
		assert.Equal(t, "postgres://localhost/app", cfg.URL)
	})

	t.Run("panics when parsing fails", func(t *testing.T) {
		t.Setenv("TEST_DATABASE_URL", "")

		require.Panics(t, func() {
			config.MustLoad[databaseConfig]()
		})
	})
}
