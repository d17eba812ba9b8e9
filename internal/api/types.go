package api

import (
	"time"

	"linkcrawler/internal/config"
	"linkcrawler/internal/crawler"
	"linkcrawler/pkg/types"
)

// CreateCrawlRequest captures the payload used to launch a crawl session.
type CreateCrawlRequest struct {
	SeedURL   string            `json:"seed_url"`
	Workers   *int              `json:"workers,omitempty"`
	Extractor string            `json:"extractor,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	// WaitTimeoutSeconds bounds how long the crawl may run before it is stopped.
	WaitTimeoutSeconds *int `json:"wait_timeout_seconds,omitempty"`
}

// SessionStatus captures the lifecycle stage of a session.
type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusStarting   SessionStatus = "starting"
	SessionStatusRunning    SessionStatus = "running"
	SessionStatusCancelling SessionStatus = "cancelling"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusTimedOut   SessionStatus = "timed_out"
	SessionStatusCancelled  SessionStatus = "cancelled"
	SessionStatusFailed     SessionStatus = "failed"
)

// SessionSummary surfaces the high-level state for a crawl session.
type SessionSummary struct {
	SessionID   string        `json:"session_id"`
	RunID       string        `json:"run_id"`
	SeedURL     string        `json:"seed_url"`
	Status      SessionStatus `json:"status"`
	Visited     int64         `json:"visited_pages"`
	Links       int64         `json:"collected_links"`
	Outstanding int64         `json:"outstanding_tasks"`
	FetchErrors int64         `json:"fetch_errors"`
	LastURL     string        `json:"last_url,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Message     string        `json:"message,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// SessionDetail extends the summary with the effective configuration and,
// once the run has ended, its report.
type SessionDetail struct {
	Session SessionSummary `json:"session"`
	Config  config.Config  `json:"config"`
	Report  *types.Report  `json:"report,omitempty"`
}

// SSEEvent envelopes session state for Server-Sent Event clients.
type SSEEvent struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Session   SessionSummary         `json:"session"`
	Progress  *crawler.ProgressEvent `json:"progress,omitempty"`
}
