package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearPipelineEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL", "LLM_MODEL", "LLM_TEMPERATURE",
		"LLM_MAX_TOKENS", "LLM_TIMEOUT", "OPENAI_API_KEY", "OPENAI_BASE_URL",
		"EMBEDDING_MODEL", "EMBEDDING_DIMENSIONS", "EMBEDDING_BATCH_SIZE",
		"EMBEDDING_TIMEOUT", "GRAPH_URI", "GRAPH_USER", "GRAPH_PASSWORD",
		"GRAPH_DSN", "ARCHIVE_PATH", "LOG_PATH", "LOG_LEVEL",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SERVICE_NAME", "OTEL_SERVICE_VERSION",
		"DEPLOY_ENVIRONMENT", "CONTEXT_MAX_MESSAGES", "SIMILARITY_THRESHOLD",
		"TOP_K_NEIGHBORS", "EXTRACTION_VERSION", "PIPELINE_WORKERS",
		"PIPELINE_QUEUE_SIZE", "PIPELINE_CONFIG_FILE",
	}
	for _, k := range keys {
		t.Setenv(k, "")
		// t.Setenv with "" still sets an empty value; envOr etc. treat blank
		// as unset via strings.TrimSpace, so this is equivalent to unset for
		// every helper in this package.
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearPipelineEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "claude-3-5-haiku-latest", cfg.Anthropic.Model)
	assert.InDelta(t, 0.3, cfg.Anthropic.Temperature, 1e-9)
	assert.Equal(t, 1500, cfg.Anthropic.MaxTokens)
	assert.Equal(t, 30*time.Second, cfg.Anthropic.Timeout)

	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.Equal(t, 16, cfg.Embedding.BatchSize)

	assert.Equal(t, "./archive.db", cfg.Archive.Path)

	assert.Equal(t, 2, cfg.Pipeline.ContextMaxMessages)
	assert.InDelta(t, 0.4, cfg.Pipeline.SimilarityThreshold, 1e-9)
	assert.Equal(t, 10, cfg.Pipeline.TopKNeighbors)
	assert.Equal(t, ExtractionV1, cfg.Pipeline.ExtractionVersion)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, 256, cfg.Pipeline.QueueSize)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	clearPipelineEnv(t)
	t.Setenv("EXTRACTION_VERSION", "v2")
	t.Setenv("TOP_K_NEIGHBORS", "5")
	t.Setenv("EMBEDDING_DIMENSIONS", "768")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ExtractionV2, cfg.Pipeline.ExtractionVersion)
	assert.Equal(t, 5, cfg.Pipeline.TopKNeighbors)
	assert.Equal(t, 768, cfg.Embedding.Dimensions)
}

func TestLoad_RejectsInvalidExtractionVersion(t *testing.T) {
	clearPipelineEnv(t)
	t.Setenv("EXTRACTION_VERSION", "v3")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RejectsNonPositiveDimensions(t *testing.T) {
	clearPipelineEnv(t)
	t.Setenv("EMBEDDING_DIMENSIONS", "0")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RejectsNonPositiveTopK(t *testing.T) {
	clearPipelineEnv(t)
	t.Setenv("TOP_K_NEIGHBORS", "-1")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_YAMLFileSuppliesDefaultsBelowEnv(t *testing.T) {
	clearPipelineEnv(t)
	path := filepath.Join(t.TempDir(), "defaults.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
top_k_neighbors: 7
pipeline_workers: 2
extraction_version: v2
`), 0o600))
	t.Setenv("PIPELINE_CONFIG_FILE", path)
	// Env still wins over the file when both are set.
	t.Setenv("PIPELINE_WORKERS", "9")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Pipeline.TopKNeighbors)
	assert.Equal(t, 9, cfg.Pipeline.Workers)
	assert.Equal(t, ExtractionV2, cfg.Pipeline.ExtractionVersion)
}

func TestLoad_MissingYAMLFileIsNotAnError(t *testing.T) {
	clearPipelineEnv(t)
	t.Setenv("PIPELINE_CONFIG_FILE", filepath.Join(t.TempDir(), "does-not-exist.yaml"))

	_, err := Load()
	require.NoError(t, err)
}

func TestLoad_UnparseableYAMLFileIsAnError(t *testing.T) {
	clearPipelineEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid: yaml"), 0o600))
	t.Setenv("PIPELINE_CONFIG_FILE", path)

	_, err := Load()
	require.Error(t, err)
}
