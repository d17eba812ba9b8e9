package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	kp "gopkg.in/alecthomas/kingpin.v2"

	"linkcrawler/internal/config"
	"linkcrawler/internal/crawler"
	"linkcrawler/internal/logging"
	"linkcrawler/internal/report"
)

type options struct {
	Seed        string
	ConfigPath  string
	Workers     int
	Timeout     time.Duration
	TimeoutSet  bool
	Request     time.Duration
	Extractor   string
	Format      string
	LogLevel    string
	MetricsAddr string
}

func newApp(o *options) *kp.Application {
	app := kp.New("linkcrawler", "Crawl every page of a single host and list the links found on it.")
	app.Arg("seed", "Seed URL; https is assumed when no scheme is given").Required().StringVar(&o.Seed)
	app.Flag("config", "Path to a YAML configuration file").Short('c').StringVar(&o.ConfigPath)
	app.Flag("workers", "Number of concurrent workers").Short('w').IntVar(&o.Workers)
	app.Flag("timeout", "Stop waiting for the crawl after this long (0 waits forever)").
		PlaceHolder("1m").
		Action(func(*kp.ParseContext) error {
			o.TimeoutSet = true
			return nil
		}).
		DurationVar(&o.Timeout)
	app.Flag("request-timeout", "Per request timeout").DurationVar(&o.Request)
	app.Flag("extractor", "Link extractor").EnumVar(&o.Extractor, config.ExtractorRegex, config.ExtractorHTML)
	app.Flag("format", "Report format").Default(report.FormatText).EnumVar(&o.Format, report.FormatText, report.FormatJSON)
	app.Flag("log-level", "Log level (debug, info, warn, error)").StringVar(&o.LogLevel)
	app.Flag("metrics-addr", "Serve Prometheus metrics on this address while crawling").StringVar(&o.MetricsAddr)
	return app
}

// loadConfig reads the config file and lets flags that were given override it.
func loadConfig(o options) (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Crawl.Seed = o.Seed
	if o.Workers != 0 {
		cfg.Worker.Concurrency = o.Workers
	}
	if o.TimeoutSet {
		cfg.Termination.WaitTimeout = config.DurationFrom(o.Timeout)
	}
	if o.Request > 0 {
		cfg.Crawl.RequestTimeout = config.DurationFrom(o.Request)
	}
	if o.Extractor != "" {
		cfg.Crawl.Extractor = o.Extractor
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if o.MetricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = o.MetricsAddr
	}
	if err := cfg.Normalise(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
}

func main() {
	var opts options
	kp.MustParse(newApp(&opts).Parse(os.Args[1:]))

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "linkcrawler: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "linkcrawler: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engineOpts := []crawler.Option{crawler.WithLogger(logger)}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		engineOpts = append(engineOpts, crawler.WithMetrics(crawler.NewMetrics(reg)))
		metricsCtx, cancelMetrics := context.WithCancel(context.Background())
		defer cancelMetrics()
		serveMetrics(metricsCtx, cfg.Metrics.Addr, reg, logger)
	}

	engine, err := crawler.NewEngine(*cfg, engineOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "linkcrawler: %v\n", err)
		os.Exit(1)
	}

	logger.Info("crawling", "seed", engine.Seed(), "domain", engine.Domain(), "workers", cfg.Worker.Concurrency)
	result, runErr := engine.Run(ctx)
	if result != nil {
		if err := report.Write(os.Stdout, result, opts.Format); err != nil {
			logger.Error("write report failed", "error", err)
			os.Exit(1)
		}
	}
	if runErr != nil {
		logger.Warn("crawl interrupted", "error", runErr)
		os.Exit(130)
	}
	if result != nil && !result.Complete {
		logger.Warn("crawl stopped at wait timeout; report is partial", "timeout", cfg.Termination.WaitTimeout.String())
	}
}
