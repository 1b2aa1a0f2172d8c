package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/cadence/internal/shared"
)

// Scopes needed to read and control playback.
var Scopes = []string{
	"user-read-playback-state",
	"user-modify-playback-state",
	"user-read-currently-playing",
}

// AuthConfig builds the public half of the OAuth client. It has no secret; it is only used to
// build the authorization URL.
func AuthConfig(cfg shared.MusicConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    cfg.ClientID,
		RedirectURL: cfg.RedirectURI,
		Scopes:      Scopes,
		Endpoint:    oauth2.Endpoint{AuthURL: cfg.AuthURL},
	}
}

// Exchanger trades an authorization code for a persisted session.
type Exchanger interface {
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// OAuthResult is the outcome of one authorization attempt.
type OAuthResult struct {
	Token *oauth2.Token
	Err   error
}

// OAuthHandler serves the authorization redirect.
type OAuthHandler struct {
	exchanger Exchanger
	state     string
	path      string
	results   chan OAuthResult
	once      sync.Once

	mu  sync.Mutex
	hit bool
}

// NewOAuthHandler creates a handler for the callback path. state must be unguessable; see
// [shared.GenerateState].
func NewOAuthHandler(exchanger Exchanger, state, path string) *OAuthHandler {
	if path == "" {
		path = "/callback"
	}
	return &OAuthHandler{
		exchanger: exchanger,
		state:     state,
		path:      path,
		results:   make(chan OAuthResult, 1),
	}
}

func (h *OAuthHandler) Routes() []string {
	return []string{"GET " + h.path}
}

func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.hit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.hit = true
	h.mu.Unlock()

	q := r.URL.Query()
	if q.Get("state") != h.state {
		h.send(OAuthResult{Err: fmt.Errorf("%w: state mismatch", shared.ErrAuthFailed)})
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code := q.Get("code")
	if code == "" {
		h.send(OAuthResult{Err: fmt.Errorf("%w: %s %s", shared.ErrAuthFailed, q.Get("error"), q.Get("error_description"))})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	token, err := h.exchanger.Exchange(r.Context(), code)
	if err != nil {
		h.send(OAuthResult{Err: err})
		http.Error(w, "Token exchange failed", http.StatusBadGateway)
		return
	}

	h.send(OAuthResult{Token: token})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, successPage)
}

func (h *OAuthHandler) send(result OAuthResult) {
	h.once.Do(func() {
		h.results <- result
		close(h.results)
	})
}

// Result receives exactly one value, then closes.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.results
}

// Await serves h on ln until the callback resolves, ctx ends or timeout elapses.
// The listener is always closed on return.
func Await(ctx context.Context, ln net.Listener, h *OAuthHandler, timeout time.Duration, logger *log.Logger) (*oauth2.Token, error) {
	router := NewBasicRouter()
	if logger != nil {
		router.Use(Logging(logger))
	}
	router.Handler(h)

	srv := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && logger != nil {
			logger.Warn("error shutting down callback server", "err", err)
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-h.Result():
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Token, nil
	case err := <-serveErr:
		return nil, fmt.Errorf("callback server failed: %w", err)
	case <-timer.C:
		return nil, fmt.Errorf("%w: no authorization after %s", shared.ErrTimeout, timeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", shared.ErrAborted, ctx.Err())
	}
}

const successPage = `<!DOCTYPE html>
<html>
<head>
    <title>Signed in</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #111; color: #eee; }
        h1 { color: #1DB954; }
    </style>
</head>
<body>
    <div>
        <h1>Signed in</h1>
        <p>You can close this window and return to cadence.</p>
    </div>
</body>
</html>
`
