package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tiendc/go-deepcopy"

	"linkcrawler/internal/config"
	"linkcrawler/internal/crawler"
	"linkcrawler/internal/logging"
	"linkcrawler/internal/urlutil"
	"linkcrawler/pkg/types"
)

var (
	// ErrSessionRunning is returned when attempting to start a session that is already running.
	ErrSessionRunning = errors.New("session already running")
	// ErrMaxConcurrency signals that the global concurrency limit has been reached.
	ErrMaxConcurrency = errors.New("maximum concurrent sessions reached")
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionNotRunning is returned when cancelling an idle session.
	ErrSessionNotRunning = errors.New("session not running")
)

// SessionManager coordinates crawl engine lifecycles keyed by domain.
type SessionManager struct {
	mu             sync.RWMutex
	sessions       map[string]*Session
	baseConfig     config.Config
	maxConcurrency int
	running        int
	rootCtx        context.Context
	logger         *slog.Logger
	metrics        *crawler.Metrics
	engineOpts     []crawler.Option
}

// NewSessionManager constructs a manager with the provided defaults. metrics
// may be nil.
func NewSessionManager(base config.Config, maxConcurrency int, rootCtx context.Context, logger *slog.Logger, metrics *crawler.Metrics, engineOpts ...crawler.Option) (*SessionManager, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	if rootCtx == nil {
		rootCtx = context.Background()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	baseCopy, err := copyConfig(base)
	if err != nil {
		return nil, err
	}
	return &SessionManager{
		sessions:       make(map[string]*Session),
		baseConfig:     baseCopy,
		maxConcurrency: maxConcurrency,
		rootCtx:        rootCtx,
		logger:         logger,
		metrics:        metrics,
		engineOpts:     engineOpts,
	}, nil
}

// StartSession validates the request, materialises a config, and launches a crawl.
func (m *SessionManager) StartSession(req CreateCrawlRequest) (*Session, error) {
	seed, err := urlutil.NormalizeSeed(req.SeedURL)
	if err != nil {
		return nil, err
	}
	sessionID := urlutil.Domain(seed)

	cfg, err := m.buildConfig(req, seed.String())
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	session, exists := m.sessions[sessionID]
	if !exists {
		session = newSession(sessionID, m)
		m.sessions[sessionID] = session
	}
	if m.running >= m.maxConcurrency && !session.isActive() {
		m.mu.Unlock()
		return nil, ErrMaxConcurrency
	}
	previous, ok := session.reserve()
	if !ok {
		m.mu.Unlock()
		return nil, ErrSessionRunning
	}
	m.running++
	m.mu.Unlock()

	if err := session.startRun(m.rootCtx, cfg, generateRunID()); err != nil {
		session.release(previous)
		m.notifyCompletion()
		return nil, err
	}
	return session, nil
}

// ListSessions captures current summaries for all sessions ordered by id.
func (m *SessionManager) ListSessions() []SessionSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	summaries := make([]SessionSummary, 0, len(m.sessions))
	for _, session := range m.sessions {
		summaries = append(summaries, session.Snapshot())
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].SessionID < summaries[j].SessionID })
	return summaries
}

// GetSession returns the backing session by id.
func (m *SessionManager) GetSession(id string) (*Session, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	return session, ok
}

// GetSessionDetail captures the latest summary, config and report for a session.
func (m *SessionManager) GetSessionDetail(id string) (SessionDetail, bool) {
	session, ok := m.GetSession(id)
	if !ok {
		return SessionDetail{}, false
	}
	return SessionDetail{
		Session: session.Snapshot(),
		Config:  session.ConfigSnapshot(),
		Report:  session.Result(),
	}, true
}

// CancelSession requests cancellation of the active crawl for the session.
func (m *SessionManager) CancelSession(id string) error {
	session, ok := m.GetSession(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	if !session.Cancel("cancel requested via API") {
		return fmt.Errorf("%w: %q", ErrSessionNotRunning, id)
	}
	return nil
}

// Shutdown stops all active sessions.
func (m *SessionManager) Shutdown() {
	m.mu.RLock()
	snapshot := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		snapshot = append(snapshot, s)
	}
	m.mu.RUnlock()

	for _, session := range snapshot {
		session.Cancel("manager shutdown")
	}
}

func (m *SessionManager) buildConfig(req CreateCrawlRequest, seedURL string) (config.Config, error) {
	cfg, err := copyConfig(m.baseConfig)
	if err != nil {
		return config.Config{}, err
	}

	cfg.Crawl.Seed = seedURL
	if req.Workers != nil {
		cfg.Worker.Concurrency = *req.Workers
	}
	if strings.TrimSpace(req.Extractor) != "" {
		cfg.Crawl.Extractor = req.Extractor
	}
	if strings.TrimSpace(req.UserAgent) != "" {
		cfg.Crawl.UserAgent = req.UserAgent
	}
	if cfg.Crawl.Headers == nil {
		cfg.Crawl.Headers = make(map[string]string)
	}
	for k, v := range req.Headers {
		cfg.Crawl.Headers[k] = v
	}
	if req.WaitTimeoutSeconds != nil {
		if *req.WaitTimeoutSeconds < 0 {
			return config.Config{}, fmt.Errorf("wait_timeout_seconds must be >= 0")
		}
		cfg.Termination.WaitTimeout = config.DurationFrom(time.Duration(*req.WaitTimeoutSeconds) * time.Second)
	}

	if err := cfg.Normalise(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (m *SessionManager) notifyCompletion() {
	m.mu.Lock()
	if m.running > 0 {
		m.running--
	}
	m.mu.Unlock()
}

// Session tracks the lifecycle and state of one domain's crawls.
type Session struct {
	id string

	mu          sync.Mutex
	seedURL     string
	status      SessionStatus
	runID       string
	createdAt   time.Time
	startedAt   *time.Time
	completedAt *time.Time
	visited     int64
	links       int64
	outstanding int64
	fetchErrors int64
	lastURL     string
	message     string
	lastError   string
	config      config.Config
	report      *types.Report

	cancel context.CancelFunc
	done   chan struct{}

	subscribers map[chan SSEEvent]struct{}
	subMu       sync.RWMutex

	manager *SessionManager
}

func newSession(id string, manager *SessionManager) *Session {
	return &Session{
		id:          id,
		status:      SessionStatusPending,
		createdAt:   time.Now(),
		subscribers: make(map[chan SSEEvent]struct{}),
		manager:     manager,
		config:      manager.baseConfig,
	}
}

func (s *Session) isActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isActiveLocked()
}

func (s *Session) isActiveLocked() bool {
	switch s.status {
	case SessionStatusStarting, SessionStatusRunning, SessionStatusCancelling:
		return true
	default:
		return false
	}
}

// reserve marks the session as starting and returns the status it replaced.
// It fails when a run is already starting or in progress.
func (s *Session) reserve() (SessionStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isActiveLocked() {
		return s.status, false
	}
	previous := s.status
	s.status = SessionStatusStarting
	return previous, true
}

// release undoes reserve after a run failed to start.
func (s *Session) release(previous SessionStatus) {
	s.mu.Lock()
	if s.status == SessionStatusStarting {
		s.status = previous
	}
	s.mu.Unlock()
}

func (s *Session) startRun(parentCtx context.Context, cfg config.Config, runID string) error {
	opts := []crawler.Option{
		crawler.WithSessionID(s.id),
		crawler.WithProgressSink(s),
		crawler.WithLogger(s.manager.logger.With("run_id", runID)),
		crawler.WithMetrics(s.manager.metrics),
	}
	engine, err := crawler.NewEngine(cfg, append(opts, s.manager.engineOpts...)...)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(parentCtx)
	started := time.Now()
	done := make(chan struct{})

	s.mu.Lock()
	s.seedURL = engine.Seed()
	s.runID = runID
	s.status = SessionStatusRunning
	s.startedAt = &started
	s.completedAt = nil
	s.visited = 0
	s.links = 0
	s.outstanding = 1
	s.fetchErrors = 0
	s.lastURL = ""
	s.message = "running"
	s.lastError = ""
	s.config = cfg
	s.report = nil
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	s.broadcast("session_started", nil)

	go func() {
		defer close(done)
		defer cancel()
		report, err := engine.Run(runCtx)
		s.handleCompletion(report, err)
	}()
	return nil
}

// Report satisfies crawler.ProgressSink.
func (s *Session) Report(evt crawler.ProgressEvent) {
	s.mu.Lock()
	if !s.isActiveLocked() {
		// Tasks abandoned after a timeout can still report once the run has ended.
		s.mu.Unlock()
		return
	}
	s.visited = evt.VisitedPages
	s.links = evt.CollectedLinks
	s.outstanding = evt.Outstanding
	s.fetchErrors = evt.FetchErrors
	if evt.URL != "" {
		s.lastURL = evt.URL
	}
	s.mu.Unlock()

	copyEvt := evt
	s.broadcast("progress", &copyEvt)
}

func (s *Session) handleCompletion(report *types.Report, err error) {
	now := time.Now()
	status := SessionStatusCompleted
	message := "completed"
	errorText := ""
	switch {
	case errors.Is(err, context.Canceled):
		status = SessionStatusCancelled
		message = "cancelled"
	case err != nil:
		status = SessionStatusFailed
		message = "failed"
		errorText = err.Error()
	case report != nil && !report.Complete:
		status = SessionStatusTimedOut
		message = "stopped after wait timeout"
	}

	s.mu.Lock()
	s.status = status
	s.completedAt = &now
	s.message = message
	s.lastError = errorText
	s.cancel = nil
	if report != nil {
		s.report = report
		s.visited = int64(report.VisitedCount())
		s.links = int64(report.LinkCount())
		s.fetchErrors = report.FetchErrors
		if report.Complete {
			s.outstanding = 0
		}
	}
	s.mu.Unlock()

	eventType := "session_completed"
	switch status {
	case SessionStatusCancelled:
		eventType = "session_cancelled"
	case SessionStatusFailed:
		eventType = "session_failed"
	case SessionStatusTimedOut:
		eventType = "session_timed_out"
	}
	s.broadcast(eventType, nil)
	s.manager.notifyCompletion()
}

// Cancel attempts to stop the running engine.
func (s *Session) Cancel(reason string) bool {
	s.mu.Lock()
	if s.status != SessionStatusRunning || s.cancel == nil {
		s.mu.Unlock()
		return false
	}
	s.status = SessionStatusCancelling
	s.message = reason
	cancel := s.cancel
	s.mu.Unlock()
	s.broadcast("session_cancelling", nil)
	cancel()
	return true
}

// Wait blocks until the current run ends or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a copy of the public session state.
func (s *Session) Snapshot() SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// ConfigSnapshot returns a deep copy of the session config.
func (s *Session) ConfigSnapshot() config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, err := copyConfig(s.config)
	if err != nil {
		s.manager.logger.Warn("config snapshot failed", "session_id", s.id, "error", err)
		return s.config
	}
	return cfg
}

// Result returns the report of the last finished run, or nil while a run is
// in progress.
func (s *Session) Result() *types.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

func (s *Session) snapshotLocked() SessionSummary {
	summary := SessionSummary{
		SessionID:   s.id,
		RunID:       s.runID,
		SeedURL:     s.seedURL,
		Status:      s.status,
		Visited:     s.visited,
		Links:       s.links,
		Outstanding: s.outstanding,
		FetchErrors: s.fetchErrors,
		LastURL:     s.lastURL,
		CreatedAt:   s.createdAt,
		Message:     s.message,
		Error:       s.lastError,
	}
	if s.startedAt != nil {
		started := *s.startedAt
		summary.StartedAt = &started
	}
	if s.completedAt != nil {
		completed := *s.completedAt
		summary.CompletedAt = &completed
	}
	return summary
}

// Subscribe registers an SSE subscriber for the session.
func (s *Session) Subscribe() (<-chan SSEEvent, func()) {
	ch := make(chan SSEEvent, 16)

	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()

	initial := SSEEvent{
		Type:      "snapshot",
		Timestamp: time.Now(),
		Session:   s.Snapshot(),
	}
	select {
	case ch <- initial:
	default:
	}

	cancel := func() {
		s.subMu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcast(eventType string, progress *crawler.ProgressEvent) {
	envelope := SSEEvent{
		Type:      eventType,
		Timestamp: time.Now(),
		Session:   s.Snapshot(),
		Progress:  progress,
	}

	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for ch := range s.subscribers {
		select {
		case ch <- envelope:
		default:
		}
	}
}

func copyConfig(src config.Config) (config.Config, error) {
	var dst config.Config
	if err := deepcopy.Copy(&dst, &src); err != nil {
		return config.Config{}, fmt.Errorf("copy config: %w", err)
	}
	return dst, nil
}

func generateRunID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
