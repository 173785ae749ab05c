/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/scanbook/internal/chunker"
	"github.com/valpere/scanbook/internal/corrector"
	"github.com/valpere/scanbook/internal/dispatcher"
	"github.com/valpere/scanbook/internal/logger"
	"github.com/valpere/scanbook/internal/metrics"
	"github.com/valpere/scanbook/internal/pipeline"
	"github.com/valpere/scanbook/internal/store"
)

// addCorrectionFlags registers the flags shared by commands that call the
// correction service. Values are read through the config package.
func addCorrectionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("provider", "anthropic", "Correction provider (anthropic, openai, openrouter, ollama)")
	f.StringP("model", "m", "claude-sonnet-4-20250514", "Model identifier")
	f.String("api-key", "", "API key (defaults to the provider's environment variable)")
	f.String("base-url", "", "Override the provider base URL")
	f.StringP("language", "l", "", "Expected language of the book (ISO 639-1 code or name)")
	f.Int("max-tokens", chunker.DefaultMaxTokens, "Maximum estimated tokens per chunk")
	f.String("estimator", "scaled", "Token estimator (words, scaled, chars)")
	f.Int("concurrency", 5, "Maximum concurrent service calls")
	f.Int("max-retries", 3, "Retries per chunk after the first attempt")
	f.Duration("attempt-timeout", dispatcher.DefaultConfig().AttemptTimeout, "Timeout of a single service call")
	f.Float64("requests-per-second", 0, "Rate limit for service calls (0 = unlimited)")
	f.Float64("max-cost", 10, "Abort when the estimated cost exceeds this amount (0 = no limit)")
	f.Bool("no-cache", false, "Disable the correction memory")
	f.Bool("language-check", true, "Warn when a correction changes the language of its chunk")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
}

func openStore() (*store.Store, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// buildCorrector constructs the configured backend with span protection,
// wrapped with the correction memory unless caching is disabled.
func buildCorrector(db *store.Store) (corrector.Corrector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	backend, err := corrector.New(cfg.Provider, cfg.Service())
	if err != nil {
		return nil, err
	}
	svc := corrector.NewProtector(backend)
	if cfg.NoCache {
		return svc, nil
	}
	var memory corrector.MemoryStore
	if db != nil {
		memory = db
	}
	return corrector.NewMemo(svc, memory, logger.Default()), nil
}

func pipelineOptions(inputFile, outputFile, resumeRunID string) (pipeline.Options, error) {
	est, err := chunker.NewEstimator(cfg.Estimator)
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{
		MaxTokensPerChunk: cfg.MaxTokensPerChunk,
		Estimator:         est,
		Rates:             cfg.Rates(),
		MaxCostLimit:      cfg.MaxCostLimit,
		Dispatch:          cfg.Dispatcher(),
		Provider:          cfg.Provider,
		InputFile:         inputFile,
		OutputFile:        outputFile,
		ResumeRunID:       resumeRunID,
		FrontMatterTitle:  frontMatter,
	}, nil
}

// newPipeline opens the database (unless caching is disabled and no run is
// being resumed) and builds a pipeline. The returned cleanup closes it.
func newPipeline(inputFile, outputFile, resumeRunID string) (*pipeline.Pipeline, func(), error) {
	opts, err := pipelineOptions(inputFile, outputFile, resumeRunID)
	if err != nil {
		return nil, nil, err
	}

	var db *store.Store
	cleanup := func() {}
	if !cfg.NoCache || resumeRunID != "" {
		db, err = openStore()
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() { db.Close() }
	}

	svc, err := buildCorrector(db)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	popts := []pipeline.Option{
		pipeline.WithLogger(logger.Default()),
		pipeline.WithProgress(printProgress),
	}
	if db != nil {
		popts = append(popts, pipeline.WithStore(db))
	}
	return pipeline.New(svc, opts, popts...), cleanup, nil
}

func printProgress(p dispatcher.Progress) {
	fmt.Fprintf(os.Stderr, "\rCorrected %d/%d chunks (%d failed), cost $%.4f, elapsed %s",
		p.Completed, p.Total, p.Failed, p.RunningCost, p.Elapsed.Round(time.Second))
	if eta := p.ETA(); eta > 0 {
		fmt.Fprintf(os.Stderr, ", ETA %s", eta.Round(time.Second))
	}
	if p.Completed == p.Total {
		fmt.Fprintln(os.Stderr)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM. It also starts the
// metrics endpoint when one is configured.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
				logger.Default().Error("metrics server failed", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
	}
	return ctx, stop
}

func readInput(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read input file: %w", err)
	}
	return string(data), nil
}

func writeOutput(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
