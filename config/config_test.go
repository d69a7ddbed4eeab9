package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "retriever.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultCollection, cfg.Store.Collection)
	assert.True(t, cfg.Store.CreateIfMissing)
	assert.Equal(t, "http://localhost:11434/v1", cfg.Embedding.Host)
	assert.Equal(t, "all-minilm", cfg.Embedding.Model)
	assert.Equal(t, 5, cfg.Search.TopK)
	assert.Equal(t, 20, cfg.Search.CandidateDepth)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Metrics.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
store:
  path: /var/lib/retriever
  collection: manuals
embedding:
  host: http://embed:8080
  model: nomic-embed-text
search:
  topK: 8
  candidateDepth: 40
ingestion:
  batchSize: 16
  rateLimit: 2.5
  retryDelay: 250ms
logging:
  level: debug
  format: json
metrics:
  enabled: true
  addr: ":2112"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/retriever", cfg.Store.Path)
	assert.Equal(t, "manuals", cfg.Store.Collection)
	assert.True(t, cfg.Store.CreateIfMissing, "unset fields keep defaults")
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
	assert.Equal(t, 8, cfg.Search.TopK)
	assert.Equal(t, 40, cfg.Search.CandidateDepth)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, 16, cfg.Ingestion.BatchSize)
	assert.Equal(t, 2.5, cfg.Ingestion.RateLimit)
	assert.Equal(t, 250*time.Millisecond, cfg.Ingestion.RetryDelay)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":2112", cfg.Metrics.Addr)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "search: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "store:\n  collection: from_file\n")
	t.Setenv("RETRIEVER_COLLECTION", "from_env")
	t.Setenv("RETRIEVER_DB_PATH", "/tmp/env.db")
	t.Setenv("RETRIEVER_EMBEDDING_MODEL", "mxbai-embed-large")
	t.Setenv("RETRIEVER_TOP_K", "3")
	t.Setenv("RETRIEVER_IN_MEMORY", "true")
	t.Setenv("RETRIEVER_RATE_LIMIT", "10")
	t.Setenv("RETRIEVER_LOG_LEVEL", "warn")
	t.Setenv("RETRIEVER_METRICS_ENABLED", "1")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from_env", cfg.Store.Collection)
	assert.Equal(t, "/tmp/env.db", cfg.Store.Path)
	assert.Equal(t, "mxbai-embed-large", cfg.Embedding.Model)
	assert.Equal(t, 3, cfg.Search.TopK)
	assert.True(t, cfg.Store.InMemory)
	assert.Equal(t, 10.0, cfg.Ingestion.RateLimit)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_MalformedEnv(t *testing.T) {
	t.Setenv("RETRIEVER_TOP_K", "five")
	t.Setenv("RETRIEVER_IN_MEMORY", "maybe")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RETRIEVER_TOP_K")
	assert.Contains(t, err.Error(), "RETRIEVER_IN_MEMORY")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty collection", func(c *Config) { c.Store.Collection = "" }, "store.collection"},
		{"no path", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"zero top k", func(c *Config) { c.Search.TopK = 0 }, "search.topK"},
		{"zero depth", func(c *Config) { c.Search.CandidateDepth = 0 }, "search.candidateDepth"},
		{"negative rrf", func(c *Config) { c.Search.RRFConstant = -1 }, "search.rrfConstant"},
		{"zero batch", func(c *Config) { c.Ingestion.BatchSize = 0 }, "ingestion.batchSize"},
		{"zero retries", func(c *Config) { c.Ingestion.MaxRetries = 0 }, "ingestion.maxRetries"},
		{"negative rate", func(c *Config) { c.Ingestion.RateLimit = -1 }, "ingestion.rateLimit"},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "invalid log level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"metrics without addr", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Addr = "" }, "metrics.addr"},
		{"no model", func(c *Config) { c.Embedding.Model = "" }, "EmbeddingModel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_InMemoryNeedsNoPath(t *testing.T) {
	cfg := Default()
	cfg.Store.Path = ""
	cfg.Store.InMemory = true
	assert.NoError(t, cfg.Validate())
}

func TestAIConfig(t *testing.T) {
	cfg := Default()
	cfg.Embedding.Host = "http://embed:8080/"
	cfg.Embedding.Token = ""

	aiCfg := cfg.AIConfig()
	require.NoError(t, aiCfg.Validate())
	assert.Equal(t, "http://embed:8080/v1", aiCfg.EmbeddingHost)
	assert.Equal(t, "none", aiCfg.APIToken)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseLevel("trace")
	assert.Error(t, err)
}

func TestSetupLogging(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	var buf bytes.Buffer
	logger, err := SetupLogging(LoggingConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	slog.Warn("shown", "component", "test")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"component":"test"`)

	_, err = SetupLogging(LoggingConfig{Level: "info", Format: "xml"}, &buf)
	assert.Error(t, err)
}
