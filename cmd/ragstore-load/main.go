// Command ragstore-load bulk-loads parquet or JSONL files into a collection.
// Batches go through Build, so an interrupted run resumes by running again:
// rows already stored are skipped.
//
// Usage:
//
//	ragstore-load -input ./corpus -collection docs -data-dir ./data -provider openai
//
// Every input row carries text, optionally key, metadata (a JSON object)
// and hash. A row without a key gets a name-based UUID of its text, so
// reloading the same file stays idempotent.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/ragstore"
)

func main() {
	cfg := parseFlags()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("load failed", "error", err)
		cancel()
		os.Exit(1)
	}
}

type loadConfig struct {
	input      string
	dataDir    string
	collection string
	provider   string
	model      string
	dimensions int
	batchSize  int
	maxRows    int
	overwrite  bool
}

func parseFlags() loadConfig {
	cfg := loadConfig{}
	flag.StringVar(&cfg.input, "input", ".", "directory of .parquet / .jsonl files")
	flag.StringVar(&cfg.dataDir, "data-dir", "data", "ragstore data directory")
	flag.StringVar(&cfg.collection, "collection", "", "target collection (required)")
	flag.StringVar(&cfg.provider, "provider", "", "embedding provider (openai, azure, ollama, hashing)")
	flag.StringVar(&cfg.model, "model", "", "embedding model")
	flag.IntVar(&cfg.dimensions, "dimensions", 0, "requested embedding dimensions")
	flag.IntVar(&cfg.batchSize, "batch-size", 500, "documents per build")
	flag.IntVar(&cfg.maxRows, "max-rows", 0, "max rows to load (0=unlimited)")
	flag.BoolVar(&cfg.overwrite, "overwrite", false, "re-embed the whole collection with the first batch")
	flag.Parse()
	return cfg
}

// loadStats sums the build results of a run.
type loadStats struct {
	Rows     int
	Inserted int
	Skipped  int
	Embedded int
	Tokens   int
}

func (s *loadStats) add(res ragstore.BuildResult) {
	s.Inserted += res.Inserted
	s.Skipped += res.Skipped
	s.Embedded += res.Embedded
	s.Tokens += res.Tokens
}

func run(ctx context.Context, cfg loadConfig, logger *slog.Logger) error {
	if cfg.collection == "" {
		return fmt.Errorf("-collection is required")
	}
	files, err := inputFiles(cfg.input)
	if err != nil {
		return err
	}

	opts := []ragstore.Option{ragstore.WithDataDir(cfg.dataDir), ragstore.WithLogger(logger)}
	if cfg.provider != "" {
		opts = append(opts, ragstore.WithProvider(cfg.provider, cfg.model))
	}
	if cfg.dimensions > 0 {
		opts = append(opts, ragstore.WithDimensions(cfg.dimensions))
	}
	client, err := ragstore.Open(opts...)
	if err != nil {
		return err
	}
	defer client.Close()

	stats, err := load(ctx, client, cfg, files, logger)
	if err != nil {
		return err
	}
	logger.Info("load complete",
		"collection", cfg.collection,
		"rows", stats.Rows,
		"inserted", stats.Inserted,
		"skipped", stats.Skipped,
		"embedded", stats.Embedded,
		"tokens", stats.Tokens,
	)
	return nil
}

// load streams every file into Build batches.
func load(
	ctx context.Context, client *ragstore.Client, cfg loadConfig, files []string, logger *slog.Logger,
) (loadStats, error) {
	var stats loadStats
	batchSize := cfg.batchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	overwrite := cfg.overwrite
	batch := make([]ragstore.Document, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		start := time.Now()
		var bopts []ragstore.BuildOption
		if cfg.model != "" {
			bopts = append(bopts, ragstore.WithModel(cfg.provider, cfg.model))
		}
		if overwrite {
			bopts = append(bopts, ragstore.Overwrite())
			overwrite = false
		}
		res, err := client.Build(ctx, cfg.collection, batch, bopts...)
		if err != nil {
			return err
		}
		stats.add(res)
		logger.Info("batch built",
			"docs", len(batch),
			"inserted", res.Inserted,
			"embedded", res.Embedded,
			"duration", time.Since(start),
		)
		batch = batch[:0]
		return nil
	}

	var loopErr error
	for _, path := range files {
		if cfg.maxRows > 0 && stats.Rows >= cfg.maxRows {
			break
		}
		_, err := readFile(path, func(doc ragstore.Document) bool {
			if ctx.Err() != nil {
				loopErr = ctx.Err()
				return false
			}
			if doc.Key == "" {
				doc.Key = derivedKey(doc.Text)
			}
			batch = append(batch, doc)
			stats.Rows++
			if len(batch) >= batchSize {
				if loopErr = flush(); loopErr != nil {
					return false
				}
			}
			return cfg.maxRows <= 0 || stats.Rows < cfg.maxRows
		})
		if err != nil {
			return stats, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if loopErr != nil {
			return stats, loopErr
		}
	}
	if err := flush(); err != nil {
		return stats, err
	}
	return stats, nil
}

// derivedKey is the UUIDv5 of text in the ragstore key namespace.
func derivedKey(text string) string {
	return uuid.NewSHA1(keyNamespace, []byte(text)).String()
}

var keyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/kailas-cloud/ragstore/keys"))
