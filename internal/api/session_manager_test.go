package api

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkcrawler/internal/config"
	"linkcrawler/internal/crawler"
	"linkcrawler/internal/fetcher"
	"linkcrawler/internal/logging"
	"linkcrawler/pkg/types"
)

// slowFetcher holds every request until its context ends.
type slowFetcher struct {
	calls atomic.Int32
}

func (f *slowFetcher) Fetch(ctx context.Context, rawURL string) (*types.Page, error) {
	f.calls.Add(1)
	<-ctx.Done()
	return nil, &fetcher.FetchError{URL: rawURL, Err: ctx.Err()}
}

func newTestManager(t *testing.T, maxConcurrency int, opts ...crawler.Option) *SessionManager {
	t.Helper()
	cfg := config.Default()
	cfg.Worker.Concurrency = 2
	cfg.Termination.ShutdownGrace = config.DurationFrom(time.Second)
	manager, err := NewSessionManager(cfg, maxConcurrency, context.Background(), logging.Discard(), nil, opts...)
	require.NoError(t, err)
	t.Cleanup(manager.Shutdown)
	return manager
}

func TestStartSessionAdmitsOneRunPerDomain(t *testing.T) {
	t.Parallel()

	for round := 0; round < 20; round++ {
		fetch := &slowFetcher{}
		manager := newTestManager(t, 10, crawler.WithFetcher(fetch))

		const callers = 8
		var (
			wg      sync.WaitGroup
			start   = make(chan struct{})
			started atomic.Int32
			busy    atomic.Int32
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := manager.StartSession(CreateCrawlRequest{SeedURL: "https://example.com"})
				switch {
				case err == nil:
					started.Add(1)
				case errors.Is(err, ErrSessionRunning):
					busy.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		close(start)
		wg.Wait()

		require.EqualValues(t, 1, started.Load(), "round %d", round)
		assert.EqualValues(t, callers-1, busy.Load(), "round %d", round)

		session, ok := manager.GetSession("example.com")
		require.True(t, ok)
		require.True(t, session.Cancel("test done"))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		require.NoError(t, session.Wait(ctx))
		cancel()
		assert.LessOrEqual(t, fetch.calls.Load(), int32(1), "round %d", round)
	}
}

func TestStartSessionReleasesReservationOnFailure(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Crawl.ProxyURL = "://not-a-proxy"
	manager, err := NewSessionManager(cfg, 1, context.Background(), logging.Discard(), nil)
	require.NoError(t, err)
	t.Cleanup(manager.Shutdown)

	for i := 0; i < 2; i++ {
		_, err = manager.StartSession(CreateCrawlRequest{SeedURL: "https://example.com"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrSessionRunning)
		assert.NotErrorIs(t, err, ErrMaxConcurrency)
	}

	session, ok := manager.GetSession("example.com")
	require.True(t, ok)
	assert.Equal(t, SessionStatusPending, session.Snapshot().Status)
}

func TestSessionIgnoresProgressAfterCompletion(t *testing.T) {
	t.Parallel()

	fetch := &slowFetcher{}
	manager := newTestManager(t, 1, crawler.WithFetcher(fetch))

	session, err := manager.StartSession(CreateCrawlRequest{SeedURL: "https://example.com"})
	require.NoError(t, err)
	require.True(t, session.Cancel("stop"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, session.Wait(ctx))

	before := session.Snapshot()
	require.Equal(t, SessionStatusCancelled, before.Status)

	events, unsubscribe := session.Subscribe()
	defer unsubscribe()
	<-events // initial snapshot

	session.Report(crawler.ProgressEvent{URL: "https://example.com/late", VisitedPages: 99})

	assert.Equal(t, before, session.Snapshot())
	select {
	case evt := <-events:
		t.Fatalf("unexpected %s event after completion", evt.Type)
	default:
	}
}
