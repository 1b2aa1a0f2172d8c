// Package auth implements the token lifecycle for the Music Service session.
//
// State is pull-based: every call re-reads the persisted record and evaluates it against the clock.
// Tokens inside [ExpiryMargin] of their expiry are refreshed through the backend; a failed refresh
// signs the session out.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/desertthunder/cadence/internal/backend"
	"github.com/desertthunder/cadence/internal/metrics"
	"github.com/desertthunder/cadence/internal/models"
	"github.com/desertthunder/cadence/internal/shared"
)

// ExpiryMargin is how long before expiry a token stops being handed out.
const ExpiryMargin = 5 * time.Minute

// State is the derived session state.
type State string

const (
	StateNoSession  State = "no_session"
	StateValid      State = "valid"
	StateNearExpiry State = "near_expiry" // inside the margin or past expiry
	StateInvalid    State = "invalid"     // persisted expiry could not be parsed
)

// Backend is the credential broker the manager talks to.
type Backend interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (*backend.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*backend.Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// Options configures a [Manager].
type Options struct {
	RedirectURI string
	Clock       shared.Clock
	Logger      *log.Logger
	Metrics     *metrics.Metrics
}

// Manager owns the persisted token record.
type Manager struct {
	backend     Backend
	store       models.Store
	redirectURI string
	clock       shared.Clock
	logger      *log.Logger
	metrics     *metrics.Metrics

	refreshes singleflight.Group

	mu        sync.Mutex
	listeners []func()
}

// NewManager creates a [Manager] over store.
func NewManager(b Backend, store models.Store, opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = shared.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewDiscardLogger()
	}
	return &Manager{
		backend:     b,
		store:       store,
		redirectURI: opts.RedirectURI,
		clock:       opts.Clock,
		logger:      shared.WithLogger(opts.Logger, "component", "auth"),
		metrics:     opts.Metrics,
	}
}

// OnSignOut registers fn to run after every sign-out, including those triggered by a failed refresh.
func (m *Manager) OnSignOut(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// State evaluates the persisted record against the clock without any network call.
func (m *Manager) State() State {
	_, state, _ := m.load()
	return state
}

// Record returns the persisted token record and its state.
func (m *Manager) Record() (models.TokenRecord, State) {
	rec, state, _ := m.load()
	return rec, state
}

// UserID returns the cached backend user id, if any.
func (m *Manager) UserID() string {
	id, _, err := m.store.Get(models.KeyUserID)
	if err != nil {
		return ""
	}
	return id
}

// GetValidToken returns a usable access token, refreshing first when the stored one is inside the
// expiry margin or its expiry is unreadable. A usable token is returned with no network call.
func (m *Manager) GetValidToken(ctx context.Context) (string, error) {
	rec, state, err := m.load()
	switch state {
	case StateNoSession:
		return "", &TokenError{Kind: KindNoSession, Err: err}
	case StateValid:
		return rec.AccessToken, nil
	default:
		m.logger.Debug("token needs refresh", "state", state)
		return m.Refresh(ctx)
	}
}

// Refresh renews the access token through the backend. Concurrent callers share a single backend call.
//
// Any failure signs the session out and returns a refreshFailed [TokenError].
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	v, err, joined := m.refreshes.Do("refresh", func() (any, error) {
		return m.refresh(ctx)
	})
	if joined {
		m.logger.Debug("joined in-flight refresh")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	refreshToken, ok, err := m.store.Get(models.KeyRefreshToken)
	switch {
	case err != nil:
		return "", m.failRefresh(ctx, fmt.Errorf("failed to read refresh token: %w", err))
	case !ok || refreshToken == "":
		return "", m.failRefresh(ctx, shared.ErrNoRefreshToken)
	}

	sess, err := m.backend.Refresh(ctx, refreshToken)
	if err != nil {
		return "", m.failRefresh(ctx, err)
	}

	if err := m.persist(sess); err != nil {
		return "", m.failRefresh(ctx, err)
	}

	m.metrics.RecordRefresh(true)
	m.logger.Info("access token refreshed", "expires_at", sess.Token.Expiry.Format(time.RFC3339))
	return sess.Token.AccessToken, nil
}

func (m *Manager) failRefresh(ctx context.Context, cause error) error {
	m.metrics.RecordRefresh(false)
	m.logger.Warn("refresh failed, signing out", "err", cause)
	m.SignOut(ctx)
	return &TokenError{Kind: KindRefreshFailed, Err: cause}
}

// Exchange creates the session from an authorization code and persists it.
func (m *Manager) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	sess, err := m.backend.ExchangeCode(ctx, code, m.redirectURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
	}

	if err := m.persist(sess); err != nil {
		_ = m.store.Delete(models.SessionKeys...)
		return nil, err
	}

	m.logger.Info("signed in", "user_id", sess.UserID)
	return sess.Token, nil
}

// SignOut revokes the session remotely (best effort), then clears every persisted key and notifies
// listeners. It reports whether the remote revoke succeeded and is safe to call repeatedly.
func (m *Manager) SignOut(ctx context.Context) bool {
	revoked := false
	if access, ok, _ := m.store.Get(models.KeyAccessToken); ok && access != "" {
		if err := m.backend.SignOut(ctx, access); err != nil {
			m.logger.Warn("remote sign-out failed", "err", err)
		} else {
			revoked = true
		}
	}

	if err := m.store.Delete(models.SessionKeys...); err != nil {
		m.logger.Error("failed to clear session", "err", err)
	}
	m.metrics.RecordSignOut(revoked)

	m.mu.Lock()
	listeners := append([]func(){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
	return revoked
}

// load reads the record and derives its state. The error, if any, explains a no-session state.
func (m *Manager) load() (models.TokenRecord, State, error) {
	var rec models.TokenRecord

	access, ok, err := m.store.Get(models.KeyAccessToken)
	if err != nil {
		return rec, StateNoSession, fmt.Errorf("failed to read access token: %w", err)
	}
	if !ok || access == "" {
		return rec, StateNoSession, nil
	}
	rec.AccessToken = access

	if refresh, ok, err := m.store.Get(models.KeyRefreshToken); err == nil && ok {
		rec.RefreshToken = refresh
	}

	raw, ok, err := m.store.Get(models.KeyTokenExpiry)
	if err != nil || !ok {
		return rec, StateInvalid, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		m.logger.Warn("unparseable token expiry", "value", raw)
		return rec, StateInvalid, nil
	}
	rec.ExpiresAt = time.UnixMilli(ms)

	if rec.UsableAt(m.clock.Now(), ExpiryMargin) {
		return rec, StateValid, nil
	}
	return rec, StateNearExpiry, nil
}

// persist writes the session keys. The refresh token and user id are only overwritten when present.
func (m *Manager) persist(sess *backend.Session) error {
	if sess == nil || sess.Token == nil {
		return errors.New("empty session")
	}

	writes := [][2]string{
		{models.KeyAccessToken, sess.Token.AccessToken},
		{models.KeyTokenExpiry, strconv.FormatInt(sess.Token.Expiry.UnixMilli(), 10)},
	}
	if sess.Token.RefreshToken != "" {
		writes = append(writes, [2]string{models.KeyRefreshToken, sess.Token.RefreshToken})
	}
	if sess.UserID != "" {
		writes = append(writes, [2]string{models.KeyUserID, sess.UserID})
	}

	for _, kv := range writes {
		if err := m.store.Set(kv[0], kv[1]); err != nil {
			return fmt.Errorf("failed to persist %s: %w", kv[0], err)
		}
	}
	return nil
}
