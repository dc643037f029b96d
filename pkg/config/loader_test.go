package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citaplan/citaplan/pkg/config"
)

type testConfig struct {
	Host    string   `env:"CFGTEST_HOST" envDefault:"localhost"`
	Port    int      `env:"CFGTEST_PORT" envDefault:"5432"`
	Tags    []string `env:"CFGTEST_TAGS" envSeparator:","`
	Secret  string   `env:"CFGTEST_SECRET"`
	Enabled bool     `env:"CFGTEST_ENABLED" envDefault:"true"`
}

type requiredConfig struct {
	Token string `env:"CFGTEST_REQUIRED_TOKEN,required"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg testConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.True(t, cfg.Enabled)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("CFGTEST_HOST", "db.internal")
	t.Setenv("CFGTEST_PORT", "6432")
	t.Setenv("CFGTEST_TAGS", "a,b,c")

	var cfg testConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 6432, cfg.Port)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Tags)
}

func TestLoad_RequiredMissing(t *testing.T) {
	var cfg requiredConfig
	err := config.Load(&cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrParsingConfig)
}

func TestLoad_NilPointer(t *testing.T) {
	var cfg *testConfig
	err := config.Load(cfg)
	assert.ErrorIs(t, err, config.ErrNilPointer)
}

func TestLoadEnv_MissingFile(t *testing.T) {
	err := config.LoadEnv("testdata/does-not-exist.env")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrLoadingEnvFile)
}

func TestLoadEnv_NoPaths(t *testing.T) {
	assert.NoError(t, config.LoadEnv())
}
