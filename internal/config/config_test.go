package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "aptlens.db", cfg.Store.SQLitePath)
	assert.Equal(t, "https://dapi.kakao.com/v2/local/search/address.json", cfg.Kakao.BaseURL)
	assert.Equal(t, 100, cfg.Kakao.MinIntervalMS)
	assert.Equal(t, 10, cfg.Kakao.TimeoutSecs)
	assert.Equal(t, 32, cfg.Analyze.MaxUploadMB)
	assert.Equal(t, 15, cfg.Analyze.SkipRows)
	assert.Equal(t, 500, cfg.Analyze.BackfillSize)
	assert.Equal(t, 20, cfg.Search.PerPage)
	assert.InDelta(t, 2.0, cfg.Search.DefaultRadiusKm, 0.001)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/aptlens
kakao:
  min_interval_ms: 250
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/aptlens", cfg.Store.DatabaseURL)
	assert.Equal(t, 250, cfg.Kakao.MinIntervalMS)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, 20, cfg.Search.PerPage)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
kakao:
  key: from-file
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))
	t.Setenv("APTLENS_KAKAO_KEY", "from-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Kakao.Key)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.Error(t, InitLogger(LogConfig{Level: "not-a-level"}))
}
