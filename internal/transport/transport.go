// Package transport implements the resilient HTTP layer shared by the backend and music clients.
//
// Each attempt runs under its own timeout. Only an attempt that times out is retried, after a linear
// backoff slept on an injected [shared.Clock]; HTTP responses of any status are returned as-is.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/cadence/internal/metrics"
	"github.com/desertthunder/cadence/internal/shared"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxAttempts = 3
	DefaultBackoffStep = time.Second
	defaultUserAgent   = "cadence/1.0"
)

// Options configures a [Transport]. Zero values take the defaults above.
type Options struct {
	Service     string // label used in logs and metrics, e.g. "music"
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	BackoffStep time.Duration
	ClientID    string // sent as X-Client-Id; generated when empty
	APIKey      string // sent as apikey when set
	UserAgent   string
	RateLimit   rate.Limit // requests per second; 0 disables limiting
	RateBurst   int
	HTTPClient  *http.Client
	Clock       shared.Clock
	Logger      *log.Logger
	Metrics     *metrics.Metrics
}

// Request describes one logical call. It is rebuilt into a fresh [http.Request] on every attempt.
type Request struct {
	Method      string
	Path        string // joined to the base URL unless absolute
	Query       url.Values
	Body        []byte
	ContentType string // defaults to application/json
	Token       string // bearer credential; omitted when empty
	Header      http.Header
}

// Transport sends requests with a per-attempt timeout and bounded retries.
type Transport struct {
	service     string
	baseURL     string
	timeout     time.Duration
	maxAttempts int
	backoffStep time.Duration
	clientID    string
	apiKey      string
	userAgent   string
	client      *http.Client
	limiter     *rate.Limiter
	clock       shared.Clock
	logger      *log.Logger
	metrics     *metrics.Metrics
}

// New creates a [Transport] from opts.
func New(opts Options) *Transport {
	opts = normalizeOptions(opts)

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(opts.RateLimit, opts.RateBurst)
	}

	return &Transport{
		service:     opts.Service,
		baseURL:     strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		timeout:     opts.Timeout,
		maxAttempts: opts.MaxAttempts,
		backoffStep: opts.BackoffStep,
		clientID:    opts.ClientID,
		apiKey:      opts.APIKey,
		userAgent:   opts.UserAgent,
		client:      opts.HTTPClient,
		limiter:     limiter,
		clock:       opts.Clock,
		logger:      shared.WithLogger(opts.Logger, "component", "transport", "service", opts.Service),
		metrics:     opts.Metrics,
	}
}

func normalizeOptions(opts Options) Options {
	if opts.Service == "" {
		opts.Service = "http"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BackoffStep < 0 {
		opts.BackoffStep = 0
	} else if opts.BackoffStep == 0 {
		opts.BackoffStep = DefaultBackoffStep
	}
	if opts.ClientID == "" {
		opts.ClientID = shared.GenerateID()
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.RateLimit > 0 && opts.RateBurst <= 0 {
		opts.RateBurst = 1
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Clock == nil {
		opts.Clock = shared.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewDiscardLogger()
	}
	return opts
}

// ClientID returns the identity sent with every attempt.
func (t *Transport) ClientID() string { return t.clientID }

// Backoff returns the wait before the attempt following attempt (1-based): attempt × step.
func Backoff(attempt int, step time.Duration) time.Duration {
	return time.Duration(attempt) * step
}

// Send performs req, retrying only attempts aborted by their own timeout.
//
// On success the caller owns the response body; closing it releases the attempt's context.
// Failures are returned as *[TransportError].
func (t *Transport) Send(ctx context.Context, req Request) (*http.Response, error) {
	target, err := t.resolve(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	for attempt := 1; ; attempt++ {
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return nil, t.fail(KindAborted, req.Method, target, attempt, err)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, t.timeout)
		httpReq, err := t.newRequest(attemptCtx, req, target)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to build request: %w", err)
		}

		t.logger.Debug("sending request", "attempt", attempt, "curl", shared.FormatCurl(httpReq))

		resp, err := t.client.Do(httpReq)
		if err == nil {
			t.metrics.RecordAttempt(t.service, "ok")
			resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
			return resp, nil
		}

		timedOut := ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancel()

		switch {
		case ctx.Err() != nil:
			t.metrics.RecordAttempt(t.service, string(KindAborted))
			return nil, t.fail(KindAborted, req.Method, target, attempt, err)
		case !timedOut:
			t.metrics.RecordAttempt(t.service, string(KindNetwork))
			return nil, t.fail(KindNetwork, req.Method, target, attempt, err)
		}

		t.metrics.RecordAttempt(t.service, string(KindTimeout))
		if attempt >= t.maxAttempts {
			return nil, t.fail(KindTimeout, req.Method, target, attempt, err)
		}

		wait := Backoff(attempt, t.backoffStep)
		t.logger.Warn("attempt timed out, retrying", "method", req.Method, "url", target, "attempt", attempt, "backoff", wait)
		t.metrics.RecordRetry(t.service)

		if err := t.clock.Sleep(ctx, wait); err != nil {
			return nil, t.fail(KindAborted, req.Method, target, attempt, err)
		}
	}
}

func (t *Transport) fail(kind Kind, method, target string, attempts int, err error) error {
	if kind != KindAborted {
		t.logger.Error("request failed", "method", method, "url", target, "kind", kind, "attempts", attempts, "err", err)
	}
	return &TransportError{Kind: kind, Method: method, URL: target, Attempts: attempts, Err: err}
}

func (t *Transport) resolve(req Request) (string, error) {
	raw := req.Path
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		if t.baseURL == "" {
			return "", fmt.Errorf("relative path %q without base url", raw)
		}
		raw = t.baseURL + "/" + strings.TrimLeft(raw, "/")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// newRequest builds a fresh request for one attempt and re-applies every required header.
func (t *Transport) newRequest(ctx context.Context, req Request, target string) (*http.Request, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, err
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	t.applyHeaders(httpReq, req)
	return httpReq, nil
}

func (t *Transport) applyHeaders(httpReq *http.Request, req Request) {
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", t.userAgent)
	httpReq.Header.Set("X-Client-Id", t.clientID)
	if t.apiKey != "" {
		httpReq.Header.Set("apikey", t.apiKey)
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}
}

// cancelBody releases the attempt context once the caller is done with the body.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
	once   sync.Once
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.cancel)
	return err
}
