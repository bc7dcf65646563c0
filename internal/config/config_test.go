package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_WritesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plclog.yaml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	_, statErr := os.Stat(path)
	require.NoError(t, statErr, "default config should be written")

	assert.Equal(t, 8089, cfg.Server.Port)
	assert.Equal(t, "plc_debug", cfg.Parsing.DefaultDialect)
	assert.Equal(t, 4, cfg.Parsing.Workers)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.Storage.DataDirectory)
	assert.Equal(t, filepath.Join(dir, "data", "plclog.duckdb"), cfg.Storage.DuckDBPath)
}

func TestLoadConfig_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plclog.yaml")
	content := `
server:
  port: 9000
parsing:
  default_dialect: plc_tab
  workers: 8
logging:
  level: debug
  json: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "plc_tab", cfg.Parsing.DefaultDialect)
	assert.Equal(t, 8, cfg.Parsing.Workers)
	assert.Equal(t, 1024*1024, cfg.Parsing.MaxLineBytes, "unset keys keep defaults")
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)
	assert.Equal(t, "0.0.0.0:9000", cfg.GetServerAddr())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PLCLOG_SERVER_PORT", "7070")
	t.Setenv("PLCLOG_PARSING_WORKERS", "2")
	t.Setenv("PLCLOG_STORAGE_ENABLE_PERSISTENCE", "true")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Parsing.Workers)
	assert.True(t, cfg.Storage.EnablePersistence)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plclog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("parsing:\n  workers: 0\n"), 0644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing.workers")
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Server.Port = 70000
	cfg.Logging.Level = "loud"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "logging.level")
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Storage.DataDirectory = filepath.Join(dir, "data")
	cfg.Storage.DuckDBPath = filepath.Join(dir, "db", "plclog.duckdb")
	cfg.Storage.EnablePersistence = true

	require.NoError(t, cfg.EnsureDirectories())

	for _, d := range []string{cfg.Storage.DataDirectory, filepath.Join(dir, "db")} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
