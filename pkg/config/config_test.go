package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/introspectai/learnloop/pkg/errors"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 3, cfg.Orchestrator.MaxToolRetries)
	assert.Equal(t, 4, cfg.Orchestrator.LoopWindow)
	assert.Equal(t, 50, cfg.Learning.Clustering.ConsolidateEvery)
	assert.Equal(t, 200, cfg.Learning.Clustering.StaleWindow)
	assert.Equal(t, 10, cfg.Learning.Strategy.MinSamples)
	assert.Equal(t, 3, cfg.Learning.Strategy.MaxHints)

	require.NoError(t, Validate(cfg))
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
llm:
  provider: anthropic
  model_id: claude-sonnet-4-5
  max_tokens: 2048
  temperature: 0.5
orchestrator:
  max_tool_retries: 5
  step_timeout: 30s
learning:
  clustering:
    epsilon: 0.25
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2048, cfg.LLM.MaxTokens)
	assert.Equal(t, 5, cfg.Orchestrator.MaxToolRetries)
	assert.Equal(t, 30*time.Second, cfg.Orchestrator.StepTimeout)
	assert.InDelta(t, 0.25, cfg.Learning.Clustering.Epsilon, 1e-9)

	// Untouched sections keep their defaults.
	assert.Equal(t, 4, cfg.Orchestrator.LoopWindow)
	assert.Equal(t, 10, cfg.Learning.Strategy.MinSamples)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, errors.ResourceNotFound, errors.Code(err))
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Orchestrator.LoopWindow = 1

	err := Validate(cfg)
	require.Error(t, err)
	assert.Equal(t, errors.ValidationFailed, errors.Code(err))
}

func TestEnvFallbacks(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("LEARNLOOP_DB", ":memory:")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, ":memory:", cfg.Storage.Path)
}
