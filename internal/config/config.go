// Package config loads the pipeline's configuration surface from environment
// variables, following the same load-then-default pattern the rest of this
// codebase uses for its services.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ExtractionVersion selects which stage-1/stage-2 pair the pipeline runs for
// the assistant side of a turn.
type ExtractionVersion string

const (
	ExtractionV1 ExtractionVersion = "v1"
	ExtractionV2 ExtractionVersion = "v2"
)

// AnthropicConfig configures the chat completion client.
type AnthropicConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// EmbeddingConfig configures the embedding client.
type EmbeddingConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
}

// GraphConfig configures the Postgres-backed proposition graph/vector store.
type GraphConfig struct {
	URI      string
	User     string
	Password string
	DSN      string
}

// ArchiveConfig configures the relational archive.
type ArchiveConfig struct {
	Path string
}

// ObsConfig configures structured logging and optional OTLP export.
type ObsConfig struct {
	LogPath        string
	LogLevel       string
	OTLP           string
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// PipelineConfig configures the extraction/propositionalization/edge-building
// pipeline itself.
type PipelineConfig struct {
	ContextMaxMessages  int
	SimilarityThreshold float64
	TopKNeighbors       int
	ExtractionVersion   ExtractionVersion
	Workers             int
	QueueSize           int
}

// Config is the full, resolved configuration surface enumerated in the
// specification: LLM, context window, embeddings, graph store, similarity
// search, archive, extraction version.
type Config struct {
	Anthropic AnthropicConfig
	Embedding EmbeddingConfig
	Graph     GraphConfig
	Archive   ArchiveConfig
	Obs       ObsConfig
	Pipeline  PipelineConfig
}

// fileDefaults holds the subset of tunables an operator can override via a
// YAML defaults file, one rung above the hardcoded defaults and one rung
// below individual env vars: env var > YAML file > hardcoded default.
type fileDefaults struct {
	LLMModel            string  `yaml:"llm_model"`
	EmbeddingModel      string  `yaml:"embedding_model"`
	ContextMaxMessages  int     `yaml:"context_max_messages"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	TopKNeighbors       int     `yaml:"top_k_neighbors"`
	ExtractionVersion   string  `yaml:"extraction_version"`
	Workers             int     `yaml:"pipeline_workers"`
	QueueSize           int     `yaml:"pipeline_queue_size"`
}

// loadFileDefaults reads an optional YAML defaults file named by
// PIPELINE_CONFIG_FILE. A missing path (the common case) is not an error;
// an unparseable file is.
func loadFileDefaults() (fileDefaults, error) {
	path := strings.TrimSpace(os.Getenv("PIPELINE_CONFIG_FILE"))
	if path == "" {
		return fileDefaults{}, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fileDefaults{}, nil
	}
	if err != nil {
		return fileDefaults{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var fd fileDefaults
	if err := yaml.Unmarshal(raw, &fd); err != nil {
		return fileDefaults{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return fd, nil
}

// Load reads configuration from the process environment, falling back to an
// optional YAML defaults file and then to the hardcoded defaults named in
// the specification's configuration surface.
func Load() (Config, error) {
	// Best-effort: a .env file is a local development convenience, not a
	// requirement, so a missing file is not an error.
	_ = godotenv.Load()

	fd, err := loadFileDefaults()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Anthropic: AnthropicConfig{
			APIKey:      os.Getenv("ANTHROPIC_API_KEY"),
			BaseURL:     os.Getenv("ANTHROPIC_BASE_URL"),
			Model:       envOr("LLM_MODEL", strOr(fd.LLMModel, "claude-3-5-haiku-latest")),
			Temperature: envFloatOr("LLM_TEMPERATURE", 0.3),
			MaxTokens:   envIntOr("LLM_MAX_TOKENS", 1500),
			Timeout:     envDurationOr("LLM_TIMEOUT", 30*time.Second),
		},
		Embedding: EmbeddingConfig{
			APIKey:     os.Getenv("OPENAI_API_KEY"),
			BaseURL:    os.Getenv("OPENAI_BASE_URL"),
			Model:      envOr("EMBEDDING_MODEL", strOr(fd.EmbeddingModel, "text-embedding-3-small")),
			Dimensions: envIntOr("EMBEDDING_DIMENSIONS", 1536),
			BatchSize:  envIntOr("EMBEDDING_BATCH_SIZE", 16),
			Timeout:    envDurationOr("EMBEDDING_TIMEOUT", 30*time.Second),
		},
		Graph: GraphConfig{
			URI:      os.Getenv("GRAPH_URI"),
			User:     os.Getenv("GRAPH_USER"),
			Password: os.Getenv("GRAPH_PASSWORD"),
			DSN:      os.Getenv("GRAPH_DSN"),
		},
		Archive: ArchiveConfig{
			Path: envOr("ARCHIVE_PATH", "./archive.db"),
		},
		Obs: ObsConfig{
			LogPath:        os.Getenv("LOG_PATH"),
			LogLevel:       envOr("LOG_LEVEL", "info"),
			OTLP:           os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName:    envOr("OTEL_SERVICE_NAME", "resemantic-pipeline"),
			ServiceVersion: envOr("OTEL_SERVICE_VERSION", "dev"),
			Environment:    envOr("DEPLOY_ENVIRONMENT", "development"),
		},
		Pipeline: PipelineConfig{
			ContextMaxMessages:  envIntOr("CONTEXT_MAX_MESSAGES", intOr(fd.ContextMaxMessages, 2)),
			SimilarityThreshold: envFloatOr("SIMILARITY_THRESHOLD", floatOr(fd.SimilarityThreshold, 0.4)),
			TopKNeighbors:       envIntOr("TOP_K_NEIGHBORS", intOr(fd.TopKNeighbors, 10)),
			ExtractionVersion:   ExtractionVersion(envOr("EXTRACTION_VERSION", strOr(fd.ExtractionVersion, string(ExtractionV1)))),
			Workers:             envIntOr("PIPELINE_WORKERS", intOr(fd.Workers, 4)),
			QueueSize:           envIntOr("PIPELINE_QUEUE_SIZE", intOr(fd.QueueSize, 256)),
		},
	}

	if cfg.Pipeline.ExtractionVersion != ExtractionV1 && cfg.Pipeline.ExtractionVersion != ExtractionV2 {
		return Config{}, fmt.Errorf("config: EXTRACTION_VERSION must be %q or %q, got %q", ExtractionV1, ExtractionV2, cfg.Pipeline.ExtractionVersion)
	}
	if cfg.Embedding.Dimensions <= 0 {
		return Config{}, fmt.Errorf("config: EMBEDDING_DIMENSIONS must be positive")
	}
	if cfg.Pipeline.TopKNeighbors <= 0 {
		return Config{}, fmt.Errorf("config: TOP_K_NEIGHBORS must be positive")
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloatOr(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDurationOr(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func strOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intOr(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func floatOr(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
