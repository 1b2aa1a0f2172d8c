package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/desertthunder/cadence/internal/metrics"
	"github.com/desertthunder/cadence/internal/shared"
	tu "github.com/desertthunder/cadence/internal/testing"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// hangingServer blocks every request until the client gives up, counting arrivals.
func hangingServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-r.Context().Done()
	}))
}

func newTestTransport(srv *httptest.Server, clock *tu.FakeClock, opts Options) *Transport {
	opts.BaseURL = srv.URL
	opts.HTTPClient = srv.Client()
	opts.Clock = clock
	if opts.Timeout == 0 {
		opts.Timeout = 20 * time.Millisecond
	}
	return New(opts)
}

func TestBackoff(t *testing.T) {
	step := time.Second
	prev := time.Duration(0)
	for attempt := 1; attempt < DefaultMaxAttempts; attempt++ {
		got := Backoff(attempt, step)
		assert.Equal(t, time.Duration(attempt)*time.Second, got)
		assert.Greater(t, got, prev, "backoff must strictly increase")
		prev = got
	}
}

func TestSend(t *testing.T) {
	t.Run("success returns response unchanged", func(t *testing.T) {
		defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
			_, _ = w.Write([]byte("short and stout"))
		}))
		defer srv.Close()

		clock := tu.NewFakeClock(epoch)
		tr := newTestTransport(srv, clock, Options{})

		resp, err := tr.Send(context.Background(), Request{Method: http.MethodGet, Path: "/me"})
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())

		assert.Equal(t, http.StatusTeapot, resp.StatusCode)
		assert.Equal(t, "short and stout", string(body))
		assert.Empty(t, clock.Sleeps())
	})

	t.Run("application errors are not retried", func(t *testing.T) {
		defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		tr := newTestTransport(srv, tu.NewFakeClock(epoch), Options{})
		resp, err := tr.Send(context.Background(), Request{Method: http.MethodGet, Path: "/me"})
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("timeouts retry maxAttempts-1 times with increasing backoff", func(t *testing.T) {
		defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

		var hits atomic.Int32
		srv := hangingServer(t, &hits)
		defer srv.Close()

		clock := tu.NewFakeClock(epoch)
		reg := prometheus.NewRegistry()
		m := metrics.New(reg)
		tr := newTestTransport(srv, clock, Options{Service: "music", Metrics: m})

		_, err := tr.Send(context.Background(), Request{Method: http.MethodGet, Path: "/me/player"})
		require.Error(t, err)

		var terr *TransportError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, KindTimeout, terr.Kind)
		assert.Equal(t, DefaultMaxAttempts, terr.Attempts)
		assert.ErrorIs(t, err, shared.ErrTimeout)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		assert.Equal(t, int32(DefaultMaxAttempts), hits.Load())
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Sleeps())
		expected := `
# HELP cadence_transport_retries_total Attempts retried after a per-attempt timeout
# TYPE cadence_transport_retries_total counter
cadence_transport_retries_total{service="music"} 2
`
		assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "cadence_transport_retries_total"))
	})

	t.Run("custom attempt budget is honored", func(t *testing.T) {
		defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

		var hits atomic.Int32
		srv := hangingServer(t, &hits)
		defer srv.Close()

		clock := tu.NewFakeClock(epoch)
		tr := newTestTransport(srv, clock, Options{MaxAttempts: 1})

		_, err := tr.Send(context.Background(), Request{Method: http.MethodGet, Path: "/"})
		assert.ErrorIs(t, err, shared.ErrTimeout)
		assert.Equal(t, int32(1), hits.Load())
		assert.Empty(t, clock.Sleeps())
	})

	t.Run("recovers when a later attempt succeeds", func(t *testing.T) {
		defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) == 1 {
				<-r.Context().Done()
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		clock := tu.NewFakeClock(epoch)
		tr := newTestTransport(srv, clock, Options{})

		resp, err := tr.Send(context.Background(), Request{Method: http.MethodPut, Path: "/me/player/pause"})
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, []time.Duration{time.Second}, clock.Sleeps())
	})

	t.Run("caller cancellation is aborted and not retried", func(t *testing.T) {
		defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

		ctx, cancel := context.WithCancel(context.Background())
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			cancel()
			<-r.Context().Done()
		}))
		defer srv.Close()

		clock := tu.NewFakeClock(epoch)
		tr := newTestTransport(srv, clock, Options{Timeout: time.Minute})

		_, err := tr.Send(ctx, Request{Method: http.MethodGet, Path: "/"})

		var terr *TransportError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, KindAborted, terr.Kind)
		assert.ErrorIs(t, err, shared.ErrAborted)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int32(1), hits.Load())
		assert.Empty(t, clock.Sleeps())
	})

	t.Run("cancellation during backoff is aborted", func(t *testing.T) {
		defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

		var hits atomic.Int32
		srv := hangingServer(t, &hits)
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		clock := tu.NewFakeClock(epoch)
		clock.OnSleep = func(time.Duration) { cancel() }
		tr := newTestTransport(srv, clock, Options{})

		_, err := tr.Send(ctx, Request{Method: http.MethodGet, Path: "/"})
		assert.ErrorIs(t, err, shared.ErrAborted)
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("network failures are not retried", func(t *testing.T) {
		calls := 0
		client := &http.Client{Transport: tu.RoundTripFunc(func(*http.Request) (*http.Response, error) {
			calls++
			return nil, errors.New("connection refused")
		})}

		clock := tu.NewFakeClock(epoch)
		tr := New(Options{BaseURL: "http://music.test", HTTPClient: client, Clock: clock})

		_, err := tr.Send(context.Background(), Request{Method: http.MethodGet, Path: "/me"})

		var terr *TransportError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, KindNetwork, terr.Kind)
		assert.ErrorIs(t, err, shared.ErrNetwork)
		assert.Equal(t, 1, calls)
		assert.Empty(t, clock.Sleeps())
	})

	t.Run("headers are re-applied on every attempt", func(t *testing.T) {
		defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

		var hits atomic.Int32
		seen := make(chan http.Header, DefaultMaxAttempts)
		bodies := make(chan string, DefaultMaxAttempts)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen <- r.Header.Clone()
			b, _ := io.ReadAll(r.Body)
			bodies <- string(b)
			if hits.Add(1) < DefaultMaxAttempts {
				<-r.Context().Done()
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		tr := newTestTransport(srv, tu.NewFakeClock(epoch), Options{ClientID: "client-1", APIKey: "anon"})
		resp, err := tr.Send(context.Background(), Request{
			Method: http.MethodPost,
			Path:   "/functions/v1/music-refresh",
			Body:   []byte(`{"refresh_token":"r"}`),
			Token:  "tok",
		})
		require.NoError(t, err)
		resp.Body.Close()
		close(seen)
		close(bodies)

		count := 0
		for h := range seen {
			count++
			assert.Equal(t, "application/json", h.Get("Content-Type"))
			assert.Equal(t, "application/json", h.Get("Accept"))
			assert.Equal(t, "client-1", h.Get("X-Client-Id"))
			assert.Equal(t, "anon", h.Get("apikey"))
			assert.Equal(t, "Bearer tok", h.Get("Authorization"))
		}
		for b := range bodies {
			assert.Equal(t, `{"refresh_token":"r"}`, b)
		}
		assert.Equal(t, DefaultMaxAttempts, count)
	})

	t.Run("query and absolute urls", func(t *testing.T) {
		var got string
		client := &http.Client{Transport: tu.RoundTripFunc(func(r *http.Request) (*http.Response, error) {
			got = r.URL.String()
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: r}, nil
		})}
		tr := New(Options{BaseURL: "https://api.test/v1/", HTTPClient: client})

		resp, err := tr.Send(context.Background(), Request{
			Method: http.MethodPut,
			Path:   "/me/player/seek",
			Query:  map[string][]string{"position_ms": {"0"}},
		})
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, "https://api.test/v1/me/player/seek?position_ms=0", got)

		resp, err = tr.Send(context.Background(), Request{Method: http.MethodGet, Path: "https://other.test/x"})
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, "https://other.test/x", got)
	})

	t.Run("relative path without base url", func(t *testing.T) {
		tr := New(Options{})
		_, err := tr.Send(context.Background(), Request{Method: http.MethodGet, Path: "/me"})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestTransportError(t *testing.T) {
	err := &TransportError{Kind: KindTimeout, Method: "GET", URL: "https://api.test", Attempts: 3, Err: context.DeadlineExceeded}
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.ErrorIs(t, err, shared.ErrTimeout)
	assert.NotErrorIs(t, err, shared.ErrNetwork)

	bare := &TransportError{Kind: KindNetwork}
	assert.ErrorIs(t, bare, shared.ErrNetwork)
}
