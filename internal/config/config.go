package config

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Extractor names accepted by crawl.extractor.
const (
	ExtractorRegex = "regex"
	ExtractorHTML  = "html"
)

// Config captures the full configuration required to initialise the crawler engine.
type Config struct {
	Crawl       CrawlConfig       `yaml:"crawl" json:"crawl"`
	Worker      WorkerConfig      `yaml:"worker" json:"worker"`
	Termination TerminationConfig `yaml:"termination" json:"termination"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics" json:"metrics"`
}

// CrawlConfig describes the seed and how pages are fetched and parsed.
type CrawlConfig struct {
	Seed           string            `yaml:"seed" json:"seed"`
	UserAgent      string            `yaml:"user_agent" json:"user_agent"`
	Headers        map[string]string `yaml:"headers" json:"headers,omitempty"`
	ProxyURL       string            `yaml:"proxy_url" json:"proxy_url,omitempty"`
	RequestTimeout Duration          `yaml:"request_timeout" json:"request_timeout"`
	MaxBodyBytes   int64             `yaml:"max_body_bytes" json:"max_body_bytes"`
	Extractor      string            `yaml:"extractor" json:"extractor"`
}

// WorkerConfig controls the size of the worker pool.
type WorkerConfig struct {
	Concurrency int `yaml:"concurrency" json:"concurrency"`
}

// TerminationConfig bounds how long a caller waits for a crawl to go quiet.
// A zero WaitTimeout waits until the crawl finishes on its own.
type TerminationConfig struct {
	WaitTimeout   Duration `yaml:"wait_timeout" json:"wait_timeout"`
	ShutdownGrace Duration `yaml:"shutdown_grace" json:"shutdown_grace"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Structured bool   `yaml:"structured" json:"structured"`
}

// MetricsConfig controls the Prometheus endpoint of the CLI.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		Crawl: CrawlConfig{
			UserAgent:      "Mozilla/5.0",
			Headers:        map[string]string{},
			RequestTimeout: DurationFrom(30 * time.Second),
			MaxBodyBytes:   6 * 1024 * 1024,
			Extractor:      ExtractorRegex,
		},
		Worker: WorkerConfig{
			Concurrency: 10,
		},
		Termination: TerminationConfig{
			WaitTimeout:   DurationFrom(time.Minute),
			ShutdownGrace: DurationFrom(time.Minute),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Structured: false,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
	}
}

// Load reads, merges, and validates configuration from a YAML file. An empty
// path yields the defaults.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		cfg := Default()
		cfg.normalise()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return nil, err
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Validate enforces required invariants for the crawler configuration. The
// seed itself is checked by the engine so that API base configs may omit it.
func (c Config) Validate() error {
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0 (got %d)", c.Worker.Concurrency)
	}
	if c.Crawl.MaxBodyBytes <= 0 {
		return fmt.Errorf("crawl.max_body_bytes must be > 0 (got %d)", c.Crawl.MaxBodyBytes)
	}
	if c.Crawl.RequestTimeout.Duration < 0 {
		return fmt.Errorf("crawl.request_timeout must be >= 0 (got %s)", c.Crawl.RequestTimeout)
	}
	if strings.TrimSpace(c.Crawl.UserAgent) == "" {
		return fmt.Errorf("crawl.user_agent must be set")
	}
	switch c.Crawl.Extractor {
	case ExtractorRegex, ExtractorHTML:
	default:
		return fmt.Errorf("unsupported crawl.extractor %q", c.Crawl.Extractor)
	}
	if c.Termination.WaitTimeout.Duration < 0 {
		return fmt.Errorf("termination.wait_timeout must be >= 0 (got %s)", c.Termination.WaitTimeout)
	}
	if c.Termination.ShutdownGrace.Duration < 0 {
		return fmt.Errorf("termination.shutdown_grace must be >= 0 (got %s)", c.Termination.ShutdownGrace)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return fmt.Errorf("unsupported logging.level %q", c.Logging.Level)
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Addr) == "" {
		return fmt.Errorf("metrics.addr must be set when metrics.enabled is true")
	}
	return nil
}

func (c *Config) normalise() {
	c.Crawl.Seed = strings.TrimSpace(c.Crawl.Seed)
	c.Crawl.UserAgent = strings.TrimSpace(c.Crawl.UserAgent)
	c.Crawl.ProxyURL = strings.TrimSpace(c.Crawl.ProxyURL)
	c.Crawl.Extractor = strings.ToLower(strings.TrimSpace(c.Crawl.Extractor))
	if c.Crawl.Extractor == "" {
		c.Crawl.Extractor = ExtractorRegex
	}
	if c.Crawl.Extractor == "goquery" {
		c.Crawl.Extractor = ExtractorHTML
	}
	if c.Crawl.Headers == nil {
		c.Crawl.Headers = make(map[string]string)
	}
	cleaned := make(map[string]string, len(c.Crawl.Headers))
	for k, v := range c.Crawl.Headers {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		cleaned[http.CanonicalHeaderKey(k)] = strings.TrimSpace(v)
	}
	c.Crawl.Headers = cleaned
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Metrics.Addr = strings.TrimSpace(c.Metrics.Addr)
}

// Normalise re-applies the normalisation rules after callers override fields
// (for example from CLI flags) and validates the result.
func (c *Config) Normalise() error {
	c.normalise()
	return c.Validate()
}
