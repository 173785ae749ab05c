// Package dispatcher refines chunks concurrently through a correction
// service.
//
// A bounded worker pool is fed in chunk order, so pending chunks wait in a
// FIFO queue and never more than ConcurrencyLimit calls are in flight.
// Transient and rate-limit failures are retried with exponential backoff.
// Every attempt that reports token usage is charged to the shared cost
// ledger, and every chunk ends with exactly one Result.
package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/valpere/scanbook/internal/chunker"
	"github.com/valpere/scanbook/internal/corrector"
	"github.com/valpere/scanbook/internal/cost"
	"github.com/valpere/scanbook/internal/logger"
	"github.com/valpere/scanbook/internal/metrics"
	"github.com/valpere/scanbook/internal/validator"
)

// Status is the terminal state of a chunk.
type Status string

const (
	Success Status = "success"
	Failed  Status = "failed"
)

// Result is the outcome of one chunk.
type Result struct {
	ChunkIndex    int
	Status        Status
	CorrectedText string
	InputTokens   int
	OutputTokens  int
	Attempts      int
	Reason        corrector.FailureKind
	Err           error
	Warnings      []string
	Cached        bool
}

// Progress is emitted after every finalized chunk.
type Progress struct {
	Completed   int
	Total       int
	Failed      int
	// Resumed counts chunks taken from a checkpoint. They are included in
	// Completed but took no time.
	Resumed     int
	RunningCost float64
	Elapsed     time.Duration
}

// ETA extrapolates the remaining time from the average time per chunk
// processed so far. It is 0 until a chunk has been processed.
func (p Progress) ETA() time.Duration {
	processed := p.Completed - p.Resumed
	remaining := p.Total - p.Completed
	if processed <= 0 || remaining <= 0 {
		return 0
	}
	return p.Elapsed / time.Duration(processed) * time.Duration(remaining)
}

// Sink receives progress updates. Calls are serialized.
type Sink func(Progress)

// Checkpointer persists successful results so an interrupted run can resume.
type Checkpointer interface {
	SaveChunk(ctx context.Context, chunk chunker.Chunk, res Result) error
}

// Validator inspects a successful correction. A returned error rejects it.
type Validator interface {
	Check(source, corrected, language string) ([]string, error)
}

type Config struct {
	ConcurrencyLimit  int
	MaxRetries        int
	AttemptTimeout    time.Duration
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	RequestsPerSecond float64
	Model             string
	Language          string
	DivergenceRatio   float64
	// LanguageCheck warns when a correction changes the language of its
	// chunk, or is not in Language when that is set.
	LanguageCheck bool
	// ContextWords is the number of trailing words of the previous chunk
	// sent along as context. 0 disables it.
	ContextWords int
}

func DefaultConfig() Config {
	return Config{
		ConcurrencyLimit: 5,
		MaxRetries:       3,
		AttemptTimeout:   180 * time.Second,
		BaseDelay:        time.Second,
		MaxDelay:         30 * time.Second,
		DivergenceRatio:  validator.DefaultDivergenceRatio,
		ContextWords:     chunker.DefaultContextWords,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ConcurrencyLimit <= 0 {
		c.ConcurrencyLimit = d.ConcurrencyLimit
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = d.AttemptTimeout
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	return c
}

type Dispatcher struct {
	corrector  corrector.Corrector
	ledger     *cost.Ledger
	cfg        Config
	sink       Sink
	logger     *slog.Logger
	checkpoint Checkpointer
	validator  Validator
	resume     map[int]Result
	limiter    *rate.Limiter
	sleep      func(ctx context.Context, d time.Duration) error
}

type Option func(*Dispatcher)

func WithProgress(sink Sink) Option {
	return func(d *Dispatcher) { d.sink = sink }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

func WithCheckpoint(cp Checkpointer) Option {
	return func(d *Dispatcher) { d.checkpoint = cp }
}

func WithValidator(v Validator) Option {
	return func(d *Dispatcher) { d.validator = v }
}

// WithResume supplies results of a previous run keyed by chunk index. Those
// chunks are returned as they are without calling the service.
func WithResume(results map[int]Result) Option {
	return func(d *Dispatcher) { d.resume = results }
}

// WithSleep replaces the retry wait. It must return ctx.Err() when ctx is
// done before the delay elapses.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dispatcher) { d.sleep = sleep }
}

// New creates a Dispatcher. The ledger must price cfg.Model.
func New(c corrector.Corrector, ledger *cost.Ledger, cfg Config, opts ...Option) *Dispatcher {
	cfg = cfg.withDefaults()
	if cfg.Model == "" {
		cfg.Model = ledger.Model()
	}

	d := &Dispatcher{
		corrector: c,
		ledger:    ledger,
		cfg:       cfg,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logger.Default()
	}
	if d.validator == nil {
		var vopts []validator.Option
		if !cfg.LanguageCheck {
			vopts = append(vopts, validator.WithoutLanguageCheck())
		}
		d.validator = validator.New(cfg.DivergenceRatio, vopts...)
	}
	if cfg.RequestsPerSecond > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// tracker serializes progress accounting across workers.
type tracker struct {
	mu        sync.Mutex
	start     time.Time
	total     int
	completed int
	failed    int
	resumed   int
	ledger    *cost.Ledger
	sink      Sink
}

func (t *tracker) done(res Result, resumed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed++
	if res.Status == Failed {
		t.failed++
	}
	if resumed {
		t.resumed++
	}
	metrics.ChunksTotal.WithLabelValues(string(res.Status), string(res.Reason)).Inc()
	if t.sink != nil {
		t.sink(Progress{
			Completed:   t.completed,
			Total:       t.total,
			Failed:      t.failed,
			Resumed:     t.resumed,
			RunningCost: t.ledger.Snapshot().TotalCost,
			Elapsed:     time.Since(t.start),
		})
	}
}

// Run refines chunks and returns exactly one Result per chunk, in chunk
// order. It returns only after every in-flight call has finished. When ctx
// is cancelled no new attempts start, calls already running finish or time
// out, and chunks left unresolved fail with reason Cancelled.
func (d *Dispatcher) Run(ctx context.Context, chunks []chunker.Chunk) []Result {
	results := make([]Result, len(chunks))
	tr := &tracker{start: time.Now(), total: len(chunks), ledger: d.ledger, sink: d.sink}

	g := new(errgroup.Group)
	g.SetLimit(d.cfg.ConcurrencyLimit)

	for i, ch := range chunks {
		if prev, ok := d.resume[ch.Index]; ok && prev.Status == Success {
			prev.ChunkIndex = ch.Index
			results[i] = prev
			tr.done(prev, true)
			continue
		}

		var previous string
		if d.cfg.ContextWords > 0 && i > 0 {
			previous = chunker.ExtractContext(chunks[i-1].Text, d.cfg.ContextWords)
		}

		if ctx.Err() != nil {
			results[i] = cancelled(ch.Index, 0, ctx.Err())
			tr.done(results[i], false)
			continue
		}

		// Go blocks while ConcurrencyLimit workers are busy, so chunks start
		// strictly in index order.
		g.Go(func() error {
			res := d.process(ctx, ch, previous)
			results[i] = res
			tr.done(res, false)
			return nil
		})
	}
	g.Wait()

	return results
}

func cancelled(index, attempts int, err error) Result {
	if err == nil {
		err = context.Canceled
	}
	return Result{
		ChunkIndex: index,
		Status:     Failed,
		Attempts:   attempts,
		Reason:     corrector.Cancelled,
		Err:        err,
	}
}

func (d *Dispatcher) newBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     d.cfg.BaseDelay,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         d.cfg.MaxDelay,
	}
	b.Reset()
	return b
}

// process runs the attempt loop for one chunk.
func (d *Dispatcher) process(ctx context.Context, ch chunker.Chunk, previous string) Result {
	log := logger.FromContext(logger.With(ctx, logger.ChunkKey, ch.Index), d.logger)
	res := Result{ChunkIndex: ch.Index}
	bo := d.newBackOff()
	maxAttempts := d.cfg.MaxRetries + 1

	metrics.ChunksInFlight.Inc()
	defer metrics.ChunksInFlight.Dec()

	var lastErr error
	var lastKind corrector.FailureKind

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return d.withUsage(cancelled(ch.Index, res.Attempts, ctx.Err()), res)
		}
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return d.withUsage(cancelled(ch.Index, res.Attempts, err), res)
			}
		}

		res.Attempts = attempt
		resp, err := d.attempt(ctx, ch, previous, &res)

		if err == nil {
			warnings, verr := d.validator.Check(ch.Text, resp.Text, d.cfg.Language)
			if verr == nil {
				for _, w := range warnings {
					log.Warn("correction accepted with warning", "warning", w)
				}
				res.Status = Success
				res.CorrectedText = resp.Text
				res.Cached = resp.Cached
				res.Warnings = warnings
				d.save(ctx, ch, res, log)
				return res
			}
			err = &corrector.Error{Kind: corrector.Invalid, Err: verr}
		}

		kind := corrector.Classify(err)
		if corrector.IsRetryable(kind) && ctx.Err() != nil {
			kind = corrector.Cancelled
		}
		lastErr, lastKind = err, kind

		if !corrector.IsRetryable(kind) || attempt == maxAttempts {
			break
		}

		delay := bo.NextBackOff()
		metrics.LLMRetriesTotal.WithLabelValues(d.cfg.Model, string(kind)).Inc()
		log.Warn("correction attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"reason", kind,
			"delay", delay,
			"error", err,
		)
		if err := d.sleep(ctx, delay); err != nil {
			lastErr, lastKind = err, corrector.Cancelled
			break
		}
	}

	res.Status = Failed
	res.Reason = lastKind
	res.Err = lastErr
	if lastKind != corrector.Cancelled {
		log.Error("chunk failed, keeping original text",
			"attempts", res.Attempts,
			"reason", lastKind,
			"error", lastErr,
		)
	}
	return res
}

// attempt performs one bounded call and charges its usage to the ledger.
// The call is detached from ctx cancellation: once started it finishes or
// hits AttemptTimeout.
func (d *Dispatcher) attempt(ctx context.Context, ch chunker.Chunk, previous string, res *Result) (*corrector.Response, error) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.AttemptTimeout)
	defer cancel()

	start := time.Now()
	resp, err := d.corrector.Correct(actx, corrector.Request{
		Text:            ch.Text,
		Model:           d.cfg.Model,
		Language:        d.cfg.Language,
		PreviousContext: previous,
	})
	if err == nil && resp == nil {
		err = &corrector.Error{Kind: corrector.Invalid, Err: corrector.ErrEmptyResponse}
	}

	var in, out int
	if err == nil {
		in, out = resp.InputTokens, resp.OutputTokens
	} else {
		in, out = corrector.Usage(err)
		if errors.Is(err, context.DeadlineExceeded) {
			err = &corrector.Error{Kind: corrector.Transient, Err: err}
		}
	}

	var charged float64
	if in > 0 || out > 0 {
		if _, lerr := d.ledger.Record(in, out); lerr == nil {
			charged, _ = d.ledger.Table().Price(d.ledger.Model(), in, out)
		}
		res.InputTokens += in
		res.OutputTokens += out
	}

	status := "success"
	if err != nil {
		status = string(corrector.Classify(err))
	}
	metrics.RecordCall(d.corrector.Name(), d.cfg.Model, status, time.Since(start), in, out, charged)

	return resp, err
}

// withUsage carries the tokens already spent on a chunk into a terminal result.
func (d *Dispatcher) withUsage(r Result, spent Result) Result {
	r.InputTokens = spent.InputTokens
	r.OutputTokens = spent.OutputTokens
	return r
}

func (d *Dispatcher) save(ctx context.Context, ch chunker.Chunk, res Result, log *slog.Logger) {
	if d.checkpoint == nil {
		return
	}
	if err := d.checkpoint.SaveChunk(context.WithoutCancel(ctx), ch, res); err != nil {
		log.Warn("failed to checkpoint chunk", "error", err)
	}
}
