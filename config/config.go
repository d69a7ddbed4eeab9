// Package config loads application configuration from a YAML file with
// RETRIEVER_* environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/retriever/ai"
	"github.com/poiesic/retriever/fusion"
	"github.com/poiesic/retriever/ingestion"
	"github.com/poiesic/retriever/search"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RETRIEVER_"

// DefaultCollection is the collection searched when none is configured.
const DefaultCollection = "hvac_documents"

// Config is the top-level application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// StoreConfig locates the vector store.
type StoreConfig struct {
	Path            string `yaml:"path"`
	Collection      string `yaml:"collection"`
	InMemory        bool   `yaml:"inMemory"`
	CreateIfMissing bool   `yaml:"createIfMissing"`
}

// EmbeddingConfig points at an OpenAI-compatible embedding service.
type EmbeddingConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
	Token string `yaml:"token"`
}

// SearchConfig controls hybrid search defaults.
type SearchConfig struct {
	TopK           int `yaml:"topK"`
	CandidateDepth int `yaml:"candidateDepth"`
	RRFConstant    int `yaml:"rrfConstant"`
}

// IngestionConfig controls batch embedding during ingestion and re-embedding.
type IngestionConfig struct {
	BatchSize  int           `yaml:"batchSize"`
	PoolSize   int           `yaml:"poolSize"`
	RateLimit  float64       `yaml:"rateLimit"` // embedding calls per second, 0 = unlimited
	Burst      int           `yaml:"burst"`
	MaxRetries int           `yaml:"maxRetries"`
	RetryDelay time.Duration `yaml:"retryDelay"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. Missing values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		Store: StoreConfig{
			Path:            "./retriever.db",
			Collection:      DefaultCollection,
			CreateIfMissing: true,
		},
		Embedding: EmbeddingConfig{
			Host:  aiDefaults.EmbeddingHost,
			Model: aiDefaults.EmbeddingModel,
			Token: aiDefaults.APIToken,
		},
		Search: SearchConfig{
			TopK:           search.DefaultTopK,
			CandidateDepth: search.DefaultCandidateDepth,
			RRFConstant:    fusion.DefaultK,
		},
		Ingestion: IngestionConfig{
			BatchSize:  ingestion.DefaultBatchSize,
			Burst:      1,
			MaxRetries: ingestion.DefaultMaxRetries,
			RetryDelay: ingestion.DefaultRetryDelay,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if !c.Store.InMemory && c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required unless store.inMemory is set"))
	}
	if c.Store.Collection == "" {
		errs = append(errs, errors.New("store.collection is required"))
	}
	if c.Search.TopK <= 0 {
		errs = append(errs, fmt.Errorf("search.topK must be positive, got %d", c.Search.TopK))
	}
	if c.Search.CandidateDepth <= 0 {
		errs = append(errs, fmt.Errorf("search.candidateDepth must be positive, got %d", c.Search.CandidateDepth))
	}
	if c.Search.RRFConstant < 0 {
		errs = append(errs, fmt.Errorf("search.rrfConstant must not be negative, got %d", c.Search.RRFConstant))
	}
	if c.Ingestion.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("ingestion.batchSize must be positive, got %d", c.Ingestion.BatchSize))
	}
	if c.Ingestion.MaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("ingestion.maxRetries must be positive, got %d", c.Ingestion.MaxRetries))
	}
	if c.Ingestion.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("ingestion.rateLimit must not be negative, got %g", c.Ingestion.RateLimit))
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if f := strings.ToLower(c.Logging.Format); f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, errors.New("metrics.addr is required when metrics are enabled"))
	}
	if err := c.AIConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// AIConfig converts the embedding section into an ai.Config.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.Embedding.Host),
		ai.WithEmbeddingModel(c.Embedding.Model),
		ai.WithAPIToken(c.Embedding.Token),
	)
}

// applyEnvOverrides reads RETRIEVER_* environment variables and overrides the
// corresponding config fields. Malformed numbers are reported.
func applyEnvOverrides(cfg *Config) error {
	var errs []error

	str := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(name string, dst *bool) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("DB_PATH", &cfg.Store.Path)
	str("COLLECTION", &cfg.Store.Collection)
	boolean("IN_MEMORY", &cfg.Store.InMemory)
	boolean("CREATE_IF_MISSING", &cfg.Store.CreateIfMissing)

	str("EMBEDDING_HOST", &cfg.Embedding.Host)
	str("EMBEDDING_MODEL", &cfg.Embedding.Model)
	str("EMBEDDING_TOKEN", &cfg.Embedding.Token)

	integer("TOP_K", &cfg.Search.TopK)
	integer("CANDIDATE_DEPTH", &cfg.Search.CandidateDepth)
	integer("RRF_CONSTANT", &cfg.Search.RRFConstant)

	integer("BATCH_SIZE", &cfg.Ingestion.BatchSize)
	integer("POOL_SIZE", &cfg.Ingestion.PoolSize)
	if v := os.Getenv(EnvPrefix + "RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRATE_LIMIT: %w", EnvPrefix, err))
		} else {
			cfg.Ingestion.RateLimit = f
		}
	}

	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)

	boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)
	str("METRICS_ADDR", &cfg.Metrics.Addr)

	return errors.Join(errs...)
}
