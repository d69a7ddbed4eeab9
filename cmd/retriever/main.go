// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/poiesic/retriever"
	"github.com/poiesic/retriever/ai/openai"
	"github.com/poiesic/retriever/config"
	"github.com/poiesic/retriever/core"
	"github.com/poiesic/retriever/ingestion"
	"github.com/urfave/cli/v2"
)

// DefaultQuery is searched when no query is given.
const DefaultQuery = "How do I troubleshoot a refrigerant leak?"

const configKey = "config"

// newProvider builds the embedding provider. Tests replace it.
var newProvider = openai.NewProvider

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "retriever",
		Usage: "Hybrid lexical and semantic passage retrieval",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Set logging format (text, json)",
				Value: "text",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory",
			},
			&cli.StringFlag{
				Name:  "collection",
				Usage: "Collection to use",
			},
			&cli.StringFlag{
				Name:  "embedding-host",
				Usage: "Embedding service host URL",
			},
			&cli.StringFlag{
				Name:  "embedding-model",
				Usage: "Embedding model name",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:      "search",
				Usage:     "Run a hybrid search and print the top passages",
				ArgsUsage: "[query...]",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "brand",
						Aliases: []string{"b"},
						Usage:   "Only search documents whose filename contains this text",
					},
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Number of results to return (default from config)",
					},
				},
			},
			{
				Name:   "brands",
				Usage:  "List the brands present in the collection",
				Action: brandsCommand,
			},
			{
				Name:   "repl",
				Usage:  "Read queries from stdin, one per line",
				Action: replCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "brand",
						Aliases: []string{"b"},
						Usage:   "Only search documents whose filename contains this text",
					},
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "Serve Prometheus metrics on this address while running",
					},
				},
			},
			{
				Name:   "ingest",
				Usage:  "Embed and store passages from a JSON lines file",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "JSON lines file of passages (- for stdin)",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of passages per embedding call",
					},
					&cli.IntFlag{
						Name:  "pool-size",
						Usage: "Number of concurrent embedding calls",
					},
					&cli.Float64Flag{
						Name:  "rate-limit",
						Usage: "Maximum embedding calls per second (0 = unlimited)",
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Reembed all passages with the configured embedding model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of records to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N records",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
					&cli.BoolFlag{
						Name:  "missing-only",
						Usage: "Only embed passages that have no vector yet",
					},
				},
			},
		},
	}
}

// setup loads configuration, applies global flags and configures logging.
func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	if c.IsSet("log-level") || cfg.Logging.Level == "" {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("log-format") || cfg.Logging.Format == "" {
		cfg.Logging.Format = c.String("log-format")
	}
	if c.IsSet("db") {
		cfg.Store.Path = c.String("db")
	}
	if c.IsSet("collection") {
		cfg.Store.Collection = c.String("collection")
	}
	if c.IsSet("embedding-host") {
		cfg.Embedding.Host = c.String("embedding-host")
	}
	if c.IsSet("embedding-model") {
		cfg.Embedding.Model = c.String("embedding-model")
	}

	if _, err := config.SetupLogging(cfg.Logging, c.App.ErrWriter); err != nil {
		return err
	}

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func configFrom(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[configKey].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

func openDatabase(cfg *config.Config) (*retriever.Database, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	provider, err := newProvider(cfg.AIConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}
	db, err := retriever.NewDatabaseFromConfig(cfg, retriever.WithProvider(provider))
	if err != nil {
		provider.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func searchCommand(c *cli.Context) error {
	cfg := configFrom(c)
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	searcher, err := db.NewSearcherFromConfig(cfg.Search)
	if err != nil {
		return err
	}

	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		query = DefaultQuery
	}
	topK := cfg.Search.TopK
	if c.IsSet("top-k") {
		topK = c.Int("top-k")
	}
	filter := core.BrandFilter(c.String("brand"))

	results, err := searcher.HybridSearch(c.Context, query, topK, filter)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	printResults(c.App.Writer, query, filter, results)
	return nil
}

func brandsCommand(c *cli.Context) error {
	db, err := openDatabase(configFrom(c))
	if err != nil {
		return err
	}
	defer db.Close()

	searcher, err := db.NewSearcher()
	if err != nil {
		return err
	}
	brands, err := searcher.AvailableBrands(c.Context)
	if err != nil {
		return err
	}

	printBrands(c.App.Writer, brands)
	return nil
}

func replCommand(c *cli.Context) error {
	cfg := configFrom(c)
	if c.IsSet("metrics-addr") {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = c.String("metrics-addr")
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	searcher, err := db.NewSearcherFromConfig(cfg.Search)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		go func() {
			if err := db.Metrics().Serve(ctx, cfg.Metrics.Addr); err != nil {
				fmt.Fprintf(c.App.ErrWriter, "metrics server: %v\n", err)
			}
		}()
	}

	filter := core.BrandFilter(c.String("brand"))
	scanner := bufio.NewScanner(c.App.Reader)
	for {
		fmt.Fprint(c.App.Writer, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(c.App.Writer)
			return scanner.Err()
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		results, err := searcher.HybridSearch(ctx, query, cfg.Search.TopK, filter)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(c.App.ErrWriter, "search failed: %v\n", err)
			continue
		}
		printResults(c.App.Writer, query, filter, results)
	}
}

func ingestCommand(c *cli.Context) error {
	cfg := configFrom(c)
	if c.IsSet("batch-size") {
		cfg.Ingestion.BatchSize = c.Int("batch-size")
	}
	if c.IsSet("pool-size") {
		cfg.Ingestion.PoolSize = c.Int("pool-size")
	}
	if c.IsSet("rate-limit") {
		cfg.Ingestion.RateLimit = c.Float64("rate-limit")
	}

	passages, err := readPassageFile(c, c.String("file"))
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	pipeline, err := db.NewIngestionPipelineFromConfig(cfg.Ingestion)
	if err != nil {
		return err
	}
	defer pipeline.Release()

	result, err := pipeline.Ingest(c.Context, passages)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Stored %d passages (%d skipped) in collection %s\n",
		result.Stored, result.Skipped, cfg.Store.Collection)
	return nil
}

func readPassageFile(c *cli.Context, path string) ([]ingestion.Passage, error) {
	if path == "-" {
		return ingestion.ReadPassages(c.App.Reader)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open passages: %w", err)
	}
	defer f.Close()
	passages, err := ingestion.ReadPassages(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return passages, nil
}

func reembedCommand(c *cli.Context) error {
	cfg := configFrom(c)

	reembedConfig := &ingestion.ReembedConfig{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		MissingOnly:    c.Bool("missing-only"),
	}
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", cfg.Store.Path)
	fmt.Fprintf(c.App.ErrWriter, "Collection: %s\n", cfg.Store.Collection)
	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", cfg.Embedding.Host)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", cfg.Embedding.Model)
	fmt.Fprintln(c.App.ErrWriter)

	if _, err := db.Reembed(c.Context, reembedConfig, c.App.ErrWriter); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}
