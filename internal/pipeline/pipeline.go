// Package pipeline runs a book through chunking, concurrent correction,
// reassembly and chapter structuring.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/valpere/scanbook/internal"
	"github.com/valpere/scanbook/internal/chunker"
	"github.com/valpere/scanbook/internal/corrector"
	"github.com/valpere/scanbook/internal/cost"
	"github.com/valpere/scanbook/internal/dispatcher"
	"github.com/valpere/scanbook/internal/document"
	"github.com/valpere/scanbook/internal/epub"
	"github.com/valpere/scanbook/internal/logger"
	"github.com/valpere/scanbook/internal/reassembler"
	"github.com/valpere/scanbook/internal/store"
	"github.com/valpere/scanbook/internal/structurer"
)

// ErrCostLimit is returned before any service call when the estimated cost
// of a run exceeds the configured limit.
var ErrCostLimit = errors.New("estimated cost exceeds limit")

type Options struct {
	MaxTokensPerChunk int
	Estimator         chunker.Estimator
	Rates             cost.RateTable
	// MaxCostLimit aborts a run whose estimated cost is higher. 0 disables it.
	MaxCostLimit float64
	Dispatch     dispatcher.Config

	// Provider, InputFile and OutputFile are recorded with the run.
	Provider   string
	InputFile  string
	OutputFile string

	// ResumeRunID continues a stored run instead of starting a new one.
	ResumeRunID string

	FrontMatterTitle string
}

type Pipeline struct {
	corrector corrector.Corrector
	opts      Options
	store     *store.Store
	logger    *slog.Logger
	progress  dispatcher.Sink
}

type Option func(*Pipeline)

// WithStore records runs and chunk checkpoints in db.
func WithStore(db *store.Store) Option {
	return func(p *Pipeline) { p.store = db }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func WithProgress(sink dispatcher.Sink) Option {
	return func(p *Pipeline) { p.progress = sink }
}

func New(c corrector.Corrector, opts Options, popts ...Option) *Pipeline {
	if opts.MaxTokensPerChunk <= 0 {
		opts.MaxTokensPerChunk = chunker.DefaultMaxTokens
	}
	if opts.Estimator == nil {
		opts.Estimator = chunker.ScaledWordEstimator{}
	}
	if opts.Rates == nil {
		opts.Rates = cost.DefaultRates()
	}
	p := &Pipeline{corrector: c, opts: opts}
	for _, o := range popts {
		o(p)
	}
	if p.logger == nil {
		p.logger = logger.Default()
	}
	return p
}

// Preflight describes a run before anything is sent to the service.
type Preflight struct {
	Model                string
	Paragraphs           int
	Chunks               int
	EstimatedInputTokens int
	EstimatedCost        float64
	Warnings             []chunker.Warning
}

// Estimate chunks text and prices the run. It performs no service calls.
func (p *Pipeline) Estimate(text string) (*Preflight, error) {
	pre, _, err := p.plan(text)
	return pre, err
}

func (p *Pipeline) plan(text string) (*Preflight, []chunker.Chunk, error) {
	model := p.opts.Dispatch.Model
	if _, err := p.opts.Rates.Lookup(model); err != nil {
		return nil, nil, err
	}

	doc := document.Parse(text)
	chunks, warnings := chunker.Split(doc, p.opts.MaxTokensPerChunk, p.opts.Estimator)

	pre := &Preflight{
		Model:      model,
		Paragraphs: doc.Len(),
		Chunks:     len(chunks),
		Warnings:   warnings,
	}
	for _, c := range chunks {
		pre.EstimatedInputTokens += c.EstimatedTokens
	}
	est, err := p.opts.Rates.Estimate(model, pre.EstimatedInputTokens)
	if err != nil {
		return nil, nil, err
	}
	pre.EstimatedCost = est
	return pre, chunks, nil
}

// Refine corrects text chunk by chunk and reassembles it. Chunks that could
// not be corrected keep their original text and are listed in the report.
// An unknown model or an exceeded cost limit aborts before dispatch.
func (p *Pipeline) Refine(ctx context.Context, text string) (*Report, error) {
	start := time.Now()

	pre, chunks, err := p.plan(text)
	if err != nil {
		return nil, fmt.Errorf("pre-flight failed: %w", err)
	}
	if p.opts.MaxCostLimit > 0 && pre.EstimatedCost > p.opts.MaxCostLimit {
		return nil, fmt.Errorf("%w: $%.4f > $%.4f", ErrCostLimit, pre.EstimatedCost, p.opts.MaxCostLimit)
	}
	for _, w := range pre.Warnings {
		p.logger.Warn("oversized unit split at token limit", "chunk", w.ChunkIndex, "paragraph", w.Paragraph, "tokens", w.Tokens, "limit", w.Limit)
	}

	ledger, err := cost.NewLedger(p.opts.Rates, pre.Model)
	if err != nil {
		return nil, err
	}

	runID, resume, err := p.startRun(ctx, chunks)
	if err != nil {
		return nil, err
	}
	ctx = logger.With(ctx, logger.RunIDKey, runID)
	log := logger.FromContext(ctx, p.logger)
	log.Info("refinement started", "chunks", len(chunks), "resumed", len(resume), "model", pre.Model, "estimated_cost", pre.EstimatedCost)

	opts := []dispatcher.Option{
		dispatcher.WithLogger(p.logger),
		dispatcher.WithProgress(p.progress),
		dispatcher.WithResume(resume),
	}
	if p.store != nil {
		opts = append(opts, dispatcher.WithCheckpoint(&storeCheckpoint{store: p.store, runID: runID}))
	}
	cfg := p.opts.Dispatch
	cfg.Model = pre.Model
	results := dispatcher.New(p.corrector, ledger, cfg, opts...).Run(ctx, chunks)

	out, err := reassembler.Reassemble(chunks, results)
	if err != nil {
		return nil, fmt.Errorf("reassembly failed: %w", err)
	}

	report := newReport(runID, results, out, ledger.Snapshot(), pre.Warnings, len(resume))
	report.Duration = time.Since(start)

	if p.store != nil {
		status := store.RunStatusCompleted
		switch {
		case ctx.Err() != nil:
			status = store.RunStatusCancelled
		case report.Failed > 0:
			status = store.RunStatusPartial
		}
		if err := p.store.FinishRun(context.WithoutCancel(ctx), runID, store.RunTotals{
			Status:       status,
			TotalChunks:  report.TotalChunks,
			Succeeded:    report.Succeeded,
			Failed:       report.Failed,
			InputTokens:  report.Cost.TotalInputTokens,
			OutputTokens: report.Cost.TotalOutputTokens,
			TotalCost:    report.Cost.TotalCost,
		}); err != nil {
			log.Warn("failed to record run", "error", err)
		}
	}

	log.Info("refinement finished",
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"cost", report.Cost.TotalCost,
		"duration", report.Duration,
	)
	return report, nil
}

// startRun creates a run record, or loads the checkpoints of the run being
// resumed. Checkpoints whose source text no longer matches are ignored.
func (p *Pipeline) startRun(ctx context.Context, chunks []chunker.Chunk) (string, map[int]dispatcher.Result, error) {
	if p.opts.ResumeRunID == "" {
		runID := uuid.New().String()
		if p.store != nil {
			err := p.store.CreateRun(ctx, internal.RunRequest{
				ID:                runID,
				InputFile:         p.opts.InputFile,
				OutputFile:        p.opts.OutputFile,
				Provider:          p.opts.Provider,
				Model:             p.opts.Dispatch.Model,
				MaxTokensPerChunk: p.opts.MaxTokensPerChunk,
				Timestamp:         time.Now(),
			})
			if err != nil {
				return "", nil, fmt.Errorf("failed to create run: %w", err)
			}
		}
		return runID, nil, nil
	}

	if p.store == nil {
		return "", nil, fmt.Errorf("resuming run %s requires a database", p.opts.ResumeRunID)
	}
	runID := p.opts.ResumeRunID
	run, err := p.store.GetRun(ctx, runID)
	if err != nil {
		return "", nil, err
	}
	if run.Model != p.opts.Dispatch.Model {
		p.logger.Warn("resuming run with a different model", "run_model", run.Model, "model", p.opts.Dispatch.Model)
	}

	records, err := p.store.GetChunkResults(ctx, runID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load checkpoints: %w", err)
	}
	resume := make(map[int]dispatcher.Result, len(records))
	for _, c := range chunks {
		rec, ok := records[c.Index]
		if !ok || rec.SourceDigest != store.Digest(c.Text) {
			continue
		}
		resume[c.Index] = dispatcher.Result{
			ChunkIndex:    c.Index,
			Status:        dispatcher.Success,
			CorrectedText: rec.CorrectedText,
			Attempts:      rec.Attempts,
		}
	}

	if err := p.store.MarkRunResumed(ctx, runID); err != nil {
		return "", nil, fmt.Errorf("failed to resume run: %w", err)
	}
	return runID, resume, nil
}

// storeCheckpoint persists successful chunk results of one run.
type storeCheckpoint struct {
	store *store.Store
	runID string
}

func (c *storeCheckpoint) SaveChunk(ctx context.Context, ch chunker.Chunk, res dispatcher.Result) error {
	return c.store.SaveChunkResult(ctx, c.runID, store.ChunkRecord{
		Index:         ch.Index,
		SourceDigest:  store.Digest(ch.Text),
		CorrectedText: res.CorrectedText,
		InputTokens:   res.InputTokens,
		OutputTokens:  res.OutputTokens,
		Attempts:      res.Attempts,
	})
}

// Structure splits text into chapters.
func (p *Pipeline) Structure(text, defaultTitle string) []structurer.Chapter {
	return structurer.New(structurer.Options{
		FrontMatterTitle: p.opts.FrontMatterTitle,
		Logger:           p.logger,
	}).Structure(text, defaultTitle)
}

// Convert refines text, structures it into chapters and writes an EPUB to
// path. The report is returned even when writing fails.
func (p *Pipeline) Convert(ctx context.Context, text, path string, meta epub.Metadata) (*Report, error) {
	report, err := p.Refine(ctx, text)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return report, ctx.Err()
	}

	chapters := p.Structure(report.Text, meta.Title)
	report.Chapters = len(chapters)
	if err := epub.Write(path, chapters, meta); err != nil {
		return report, err
	}
	return report, nil
}
