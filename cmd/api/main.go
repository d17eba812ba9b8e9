package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	kp "gopkg.in/alecthomas/kingpin.v2"

	"linkcrawler/internal/api"
	"linkcrawler/internal/config"
	"linkcrawler/internal/crawler"
	"linkcrawler/internal/logging"
)

var app = kp.New("linkcrawler-api", "HTTP API for running same-host link crawls.")

var opts struct {
	ConfigPath     string
	Addr           string
	MaxConcurrency int
	StartRate      float64
	StartBurst     int
}

func main() {
	app.Flag("config", "Path to the base crawler configuration").Short('c').StringVar(&opts.ConfigPath)
	app.Flag("addr", "HTTP listen address").Default(":8080").StringVar(&opts.Addr)
	app.Flag("max-concurrency", "Maximum concurrent crawl sessions").IntVar(&opts.MaxConcurrency)
	app.Flag("start-rate", "Crawl starts allowed per second (0 disables the limit)").Default("0").Float64Var(&opts.StartRate)
	app.Flag("start-burst", "Burst size for --start-rate").Default("5").IntVar(&opts.StartBurst)
	kp.MustParse(app.Parse(os.Args[1:]))

	baseCfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		app.Fatalf("failed to load config: %v", err)
	}

	logCfg := baseCfg.Logging
	logCfg.Structured = true
	logger, err := logging.New(logCfg, os.Stdout)
	if err != nil {
		app.Fatalf("failed to initialise logger: %v", err)
	}

	maxConcurrency := resolveMaxConcurrency(opts.MaxConcurrency)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	manager, err := api.NewSessionManager(*baseCfg, maxConcurrency, ctx, logger, crawler.NewMetrics(reg))
	if err != nil {
		app.Fatalf("failed to initialise session manager: %v", err)
	}
	server := api.NewServer(manager, reg, logger, api.WithStartRate(opts.StartRate, opts.StartBurst))

	httpServer := &http.Server{
		Addr:              opts.Addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", "error", err)
		}
		manager.Shutdown()
	}()

	logger.Info("api server listening", "addr", opts.Addr, "max_concurrency", maxConcurrency)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.Fatalf("server error: %v", err)
	}
	logger.Info("api server stopped")
}

func resolveMaxConcurrency(flagValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	if raw := os.Getenv("CRAWLER_MAX_CONCURRENCY"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return 5
}
