package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/core"
)

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "researchmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider:
  name: openai
  model: gpt-4o
  api_key: test-key
search:
  searxng_url: http://searx.internal:8080
  timeout: 30s
defaults:
  max_agents: 5
  depth: deep
  max_iterations: 4
storage:
  sqlite_path: /tmp/research.db
`), 0o644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider.Name)
	assert.Equal(t, "gpt-4o", cfg.Provider.Model)
	assert.Equal(t, "test-key", cfg.Provider.APIKey)
	assert.Equal(t, "http://searx.internal:8080", cfg.Search.SearxNGURL)
	assert.Equal(t, 30*time.Second, cfg.Search.Timeout)
	assert.Equal(t, "/tmp/research.db", cfg.Storage.SQLitePath)

	// Unset keys keep their defaults.
	assert.Equal(t, 5, cfg.Defaults.MaxSearchesPerAgent)
	assert.Equal(t, 30, cfg.Defaults.MaxDurationMinutes)
	assert.Equal(t, "info", cfg.Log.Level)

	rc := cfg.ResearchConfig()
	assert.Equal(t, 5, rc.MaxAgents)
	assert.Equal(t, core.DepthDeep, rc.DepthLevel)

	ec := cfg.ExitCriteria()
	assert.Equal(t, 4, ec.MaxIterations)
	assert.Equal(t, 0.7, ec.MinConfidenceScore)
}

func TestLoadFromPathMissingFile(t *testing.T) {
	_, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFromPathExpandsAPIKey(t *testing.T) {
	t.Setenv("TEST_RESEARCHMESH_KEY", "secret")

	dir := t.TempDir()
	path := filepath.Join(dir, "researchmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider:
  api_key: ${TEST_RESEARCHMESH_KEY}
`), 0o644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Provider.APIKey)
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "anthropic", cfg.Provider.Name)
	assert.Equal(t, 3, cfg.Defaults.MaxAgents)
	assert.Equal(t, string(core.DepthMedium), cfg.Defaults.Depth)
	assert.Equal(t, 10, cfg.Defaults.MaxIterations)
	assert.Empty(t, cfg.Storage.SQLitePath)
}
