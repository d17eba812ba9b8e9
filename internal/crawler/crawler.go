package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"linkcrawler/internal/config"
	"linkcrawler/internal/extractor"
	"linkcrawler/internal/fetcher"
	"linkcrawler/internal/frontier"
	"linkcrawler/internal/logging"
	"linkcrawler/internal/urlutil"
	"linkcrawler/pkg/types"
)

// ErrEngineUsed is returned when Run is called more than once on an engine.
var ErrEngineUsed = errors.New("engine already ran")

// Crawl outcomes, also used as metric labels.
const (
	OutcomeComplete  = "complete"
	OutcomeTimeout   = "timeout"
	OutcomeCancelled = "cancelled"
)

// ProgressEvent is emitted after every finished task.
type ProgressEvent struct {
	SessionID      string `json:"session_id,omitempty"`
	URL            string `json:"url"`
	Domain         string `json:"domain"`
	VisitedPages   int64  `json:"visited_pages"`
	CollectedLinks int64  `json:"collected_links"`
	Outstanding    int64  `json:"outstanding"`
	FetchErrors    int64  `json:"fetch_errors"`
	Error          string `json:"error,omitempty"`
}

// ProgressSink receives progress events. Implementations must be safe for
// concurrent use; events arrive from every worker.
type ProgressSink interface {
	Report(evt ProgressEvent)
}

// Option customises an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	logger    *slog.Logger
	metrics   *Metrics
	progress  ProgressSink
	fetcher   fetcher.Fetcher
	client    *http.Client
	extractor extractor.Extractor
	sessionID string
}

// WithLogger sets the engine logger. By default one is built from cfg.Logging.
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) { o.logger = logger }
}

// WithMetrics records crawl metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(o *engineOptions) { o.metrics = m }
}

// WithProgressSink forwards progress events to sink.
func WithProgressSink(sink ProgressSink) Option {
	return func(o *engineOptions) { o.progress = sink }
}

// WithFetcher replaces the HTTP fetcher.
func WithFetcher(f fetcher.Fetcher) Option {
	return func(o *engineOptions) { o.fetcher = f }
}

// WithHTTPClient makes the default fetcher use client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *engineOptions) { o.client = client }
}

// WithExtractor replaces the extractor chosen by cfg.Crawl.Extractor.
func WithExtractor(ex extractor.Extractor) Option {
	return func(o *engineOptions) { o.extractor = ex }
}

// WithSessionID tags logs and progress events with id.
func WithSessionID(id string) Option {
	return func(o *engineOptions) { o.sessionID = id }
}

// Engine crawls every page reachable from a seed URL on the seed's host.
// An Engine runs once.
type Engine struct {
	cfg       config.Config
	seed      *url.URL
	seedKey   string
	domain    string
	sessionID string

	fetcher   fetcher.Fetcher
	extractor extractor.Extractor

	frontier    *frontier.Frontier
	links       *LinkSet
	termination *Termination
	pool        *WorkerPool

	logger   *slog.Logger
	metrics  *Metrics
	progress ProgressSink

	fetchErrors atomic.Int64
	started     atomic.Bool
}

// NewEngine validates cfg and the seed URL and wires the crawl components.
// Nothing is fetched until Run.
func NewEngine(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	seed, err := urlutil.NormalizeSeed(cfg.Crawl.Seed)
	if err != nil {
		return nil, err
	}

	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger, err = logging.New(cfg.Logging, nil)
		if err != nil {
			return nil, err
		}
	}
	domain := urlutil.Domain(seed)
	logger = logger.With("domain", domain)
	if o.sessionID != "" {
		logger = logger.With("session_id", o.sessionID)
	}

	fetch := o.fetcher
	if fetch == nil {
		httpFetcher, err := fetcher.NewHTTPFetcher(fetcher.Options{
			UserAgent:    cfg.Crawl.UserAgent,
			Headers:      cfg.Crawl.Headers,
			Timeout:      cfg.Crawl.RequestTimeout.Duration,
			MaxBodyBytes: cfg.Crawl.MaxBodyBytes,
			ProxyURL:     cfg.Crawl.ProxyURL,
			Client:       o.client,
		})
		if err != nil {
			return nil, fmt.Errorf("http fetcher: %w", err)
		}
		fetch = httpFetcher
	}

	ex := o.extractor
	if ex == nil {
		ex, err = extractor.New(cfg.Crawl.Extractor, extractor.NewScope(domain), logger)
		if err != nil {
			return nil, err
		}
	}

	return &Engine{
		cfg:         cfg,
		seed:        seed,
		seedKey:     urlutil.Canonical(seed),
		domain:      domain,
		sessionID:   o.sessionID,
		fetcher:     fetch,
		extractor:   ex,
		frontier:    frontier.New(256),
		links:       NewLinkSet(),
		termination: NewTermination(),
		logger:      logger,
		metrics:     o.metrics,
		progress:    o.progress,
	}, nil
}

// Domain is the host the crawl is restricted to.
func (e *Engine) Domain() string {
	return e.domain
}

// Seed is the normalised seed URL.
func (e *Engine) Seed() string {
	return e.seed.String()
}

// Run crawls until no work is outstanding, the configured wait timeout
// expires, or ctx is cancelled. The report is always returned; it is marked
// incomplete unless the crawl went quiet on its own. A cancelled ctx is
// reported as an error alongside the partial report.
func (e *Engine) Run(ctx context.Context) (*types.Report, error) {
	if !e.started.CompareAndSwap(false, true) {
		return nil, ErrEngineUsed
	}
	startedAt := time.Now()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	pool, err := NewWorkerPool(runCtx, e.cfg.Worker.Concurrency)
	if err != nil {
		return nil, err
	}
	e.pool = pool

	e.logger.Info("crawl started", "seed", e.seed.String(), "workers", e.cfg.Worker.Concurrency)

	e.frontier.TryClaim(e.seedKey)
	e.metrics.setOutstanding(e.domain, e.termination.Outstanding())
	if err := pool.Submit(e.task(e.seedKey)); err != nil {
		e.termination.Done()
		pool.Close()
		return nil, fmt.Errorf("submit seed: %w", err)
	}

	waitCtx, cancelWait := ctx, context.CancelFunc(func() {})
	if timeout := e.cfg.Termination.WaitTimeout.Duration; timeout > 0 {
		waitCtx, cancelWait = context.WithTimeout(ctx, timeout)
	}
	waitErr := e.termination.Await(waitCtx)
	cancelWait()

	outcome := OutcomeComplete
	if waitErr != nil {
		outcome = OutcomeTimeout
		if ctx.Err() != nil {
			outcome = OutcomeCancelled
		}
		e.logger.Warn("crawl stopped before going quiet",
			"outcome", outcome,
			"outstanding", e.termination.Outstanding(),
			"queued", pool.Pending(),
		)
		stop()
		if !e.drain(e.cfg.Termination.ShutdownGrace.Duration) {
			e.logger.Warn("abandoning in-flight tasks", "outstanding", e.termination.Outstanding())
		}
	}

	if e.termination.Finished() {
		pool.Close()
	} else {
		go pool.Close()
	}

	report := e.report(startedAt, waitErr == nil)
	e.metrics.setOutstanding(e.domain, e.termination.Outstanding())
	e.metrics.crawlFinished(e.domain, outcome)
	e.logger.Info("crawl finished",
		"outcome", outcome,
		"visited", report.VisitedCount(),
		"links", report.LinkCount(),
		"fetch_errors", report.FetchErrors,
		"elapsed", report.FinishedAt.Sub(startedAt).String(),
	)

	if waitErr != nil && ctx.Err() != nil {
		return report, ctx.Err()
	}
	return report, nil
}

func (e *Engine) drain(grace time.Duration) bool {
	if grace <= 0 {
		return e.termination.Finished()
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-e.termination.Wait():
		return true
	case <-timer.C:
		return false
	}
}

func (e *Engine) report(startedAt time.Time, complete bool) *types.Report {
	return &types.Report{
		Seed:        e.seed.String(),
		Domain:      e.domain,
		Visited:     e.frontier.Visited(),
		Links:       e.links.Sorted(),
		FetchErrors: e.fetchErrors.Load(),
		Complete:    complete,
		StartedAt:   startedAt,
		FinishedAt:  time.Now(),
	}
}

func (e *Engine) task(target string) job {
	return func(ctx context.Context) {
		e.process(ctx, target)
	}
}

// process handles one claimed URL. Whatever happens, the task is finished
// exactly once.
func (e *Engine) process(ctx context.Context, target string) {
	var taskErr error
	defer func() {
		if r := recover(); r != nil {
			taskErr = fmt.Errorf("panic: %v", r)
			e.logger.Error("task panicked", "url", target, "panic", r)
		}
		e.finish(target, taskErr)
	}()

	if ctx.Err() != nil {
		return
	}

	base, err := url.Parse(target)
	if err != nil {
		taskErr = err
		e.logger.Warn("skipping unparsable url", "url", target, "error", err)
		return
	}

	e.logger.Info("crawling", "url", target)
	start := time.Now()
	page, err := e.fetcher.Fetch(ctx, target)
	e.metrics.observeFetch(e.domain, time.Since(start), err)
	if err != nil {
		taskErr = err
		e.fetchErrors.Add(1)
		if ctx.Err() != nil {
			e.logger.Debug("fetch aborted", "url", target, "error", err)
		} else {
			e.logger.Warn("fetch failed", "url", target, "error", err)
		}
		return
	}

	e.logger.Debug("fetched",
		"url", target,
		"status", page.StatusCode,
		"content_type", page.ContentType,
		"bytes", len(page.Body),
		"latency", page.ResponseLatency.String(),
	)

	for link := range e.extractor.Extract(page.Body, base) {
		if e.links.Add(link) {
			e.metrics.linkCollected(e.domain)
		}
		if ctx.Err() != nil {
			continue
		}
		if !e.frontier.TryClaim(link.URL) {
			continue
		}
		e.termination.Add()
		if err := e.pool.Submit(e.task(link.URL)); err != nil {
			e.termination.Done()
			e.logger.Error("enqueue failed", "url", link.URL, "error", err)
		}
	}
}

func (e *Engine) finish(target string, taskErr error) {
	outstanding := e.termination.Release()
	e.metrics.setOutstanding(e.domain, outstanding)

	if e.progress != nil {
		evt := ProgressEvent{
			SessionID:      e.sessionID,
			URL:            target,
			Domain:         e.domain,
			VisitedPages:   int64(e.frontier.Len()),
			CollectedLinks: int64(e.links.Len()),
			Outstanding:    outstanding,
			FetchErrors:    e.fetchErrors.Load(),
		}
		if taskErr != nil {
			evt.Error = taskErr.Error()
		}
		e.progress.Report(evt)
	}
	if outstanding == 0 {
		e.logger.Debug("no outstanding work left", "url", target)
	}
}
