package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchSendsHeadersAndReturnsBody(t *testing.T) {
	t.Parallel()

	var gotUA, gotExtra string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotExtra = r.Header.Get("X-Crawl")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<a href="/a">A</a>`))
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(Options{Headers: map[string]string{"X-Crawl": "1"}})
	require.NoError(t, err)

	page, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, DefaultUserAgent, gotUA)
	assert.Equal(t, "1", gotExtra)
	assert.Equal(t, `<a href="/a">A</a>`, page.Body)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, srv.URL, page.URL)
	assert.Equal(t, "text/html; charset=utf-8", page.ContentType)
}

func TestFetchNonSuccessStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(Options{})
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), srv.URL+"/missing")
	require.Error(t, err)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, srv.URL+"/missing", fetchErr.URL)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestFetchTransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	f, err := NewHTTPFetcher(Options{Timeout: time.Second})
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), addr)
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Zero(t, fetchErr.StatusCode)
	assert.Equal(t, addr, fetchErr.URL)
}

func TestFetchTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f, err := NewHTTPFetcher(Options{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	_, err = f.Fetch(context.Background(), srv.URL)
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFetchDecodesCompressedBodies(t *testing.T) {
	t.Parallel()

	const body = `<a href="/compressed">Compressed</a>`

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write([]byte(body))
	require.NoError(t, gw.Close())

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	_, _ = bw.Write([]byte(body))
	require.NoError(t, bw.Close())

	encoded := map[string][]byte{"gzip": gz.Bytes(), "br": br.Bytes()}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := strings.TrimPrefix(r.URL.Path, "/")
		w.Header().Set("Content-Encoding", enc)
		_, _ = w.Write(encoded[enc])
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(Options{})
	require.NoError(t, err)

	for enc := range encoded {
		page, err := f.Fetch(context.Background(), srv.URL+"/"+enc)
		require.NoError(t, err, enc)
		assert.Equal(t, body, page.Body, enc)
	}
}

func TestFetchBodyLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 128))
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(Options{MaxBodyBytes: 64})
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), srv.URL)
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Contains(t, err.Error(), "exceeds limit")
}

type recordingTransport struct {
	requests []*http.Request
}

func (r *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r.requests = append(r.requests, req)
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       http.NoBody,
		Request:    req,
	}, nil
}

func TestFetchUsesInjectedClient(t *testing.T) {
	t.Parallel()

	transport := &recordingTransport{}
	f, err := NewHTTPFetcher(Options{UserAgent: "linkcrawler-test", Client: &http.Client{Transport: transport}})
	require.NoError(t, err)

	page, err := f.Fetch(context.Background(), "https://example.com/page")
	require.NoError(t, err)
	assert.Empty(t, page.Body)

	require.Len(t, transport.requests, 1)
	assert.Equal(t, "linkcrawler-test", transport.requests[0].Header.Get("User-Agent"))
	assert.Equal(t, "https://example.com/page", transport.requests[0].URL.String())
}

func TestFetchInvalidURL(t *testing.T) {
	t.Parallel()

	f, err := NewHTTPFetcher(Options{})
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), "://bad")
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "://bad", fetchErr.URL)
}
