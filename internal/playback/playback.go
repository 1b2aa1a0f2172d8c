// Package playback reconciles the local playback session with the Music Service.
//
// The [Engine] owns a [models.Session] and exposes user intents. Controls are gated by a mode:
// intents are rejected locally in browse mode and only an explicit device check promotes the
// session to play mode. Premium-required responses and loss of authentication demote it again.
//
// The session lock is held only while reading or writing the model, never across network calls.
// Each flow re-checks the mode before its final write, so an intent that resolves after a
// sign-out or premium downgrade is discarded.
package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/cadence/internal/metrics"
	"github.com/desertthunder/cadence/internal/models"
	"github.com/desertthunder/cadence/internal/shared"
)

const (
	DefaultSettleDelay   = time.Second
	DefaultMaxSettleWait = 5 * time.Second
	// RestartThresholdMs is the progress past which Previous restarts the current track instead of skipping back.
	RestartThresholdMs = 3000
)

// TokenProvider hands out a valid access token or fails.
type TokenProvider interface {
	GetValidToken(ctx context.Context) (string, error)
}

// Service is the Music Service surface used by the engine. Implemented by *music.Client.
type Service interface {
	Devices(ctx context.Context, token string) ([]models.Device, error)
	Transfer(ctx context.Context, token, deviceID string, play bool) error
	Play(ctx context.Context, token, deviceID string, uris []string) error
	Resume(ctx context.Context, token, deviceID string) error
	Pause(ctx context.Context, token, deviceID string) error
	Next(ctx context.Context, token, deviceID string) error
	Previous(ctx context.Context, token, deviceID string) error
	Seek(ctx context.Context, token, deviceID string, positionMs int) error
	SetShuffle(ctx context.Context, token, deviceID string, state bool) error
	SetRepeat(ctx context.Context, token, deviceID string, mode models.RepeatMode) error
	SetVolume(ctx context.Context, token, deviceID string, percent int) error
	PlayerState(ctx context.Context, token string) (*models.PlayerState, error)
	CurrentlyPlaying(ctx context.Context, token string) (*models.PlayerState, error)
}

// Notifier receives user-facing guidance.
type Notifier interface {
	Notify(g models.Guidance)
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(models.Guidance)

func (f NotifierFunc) Notify(g models.Guidance) { f(g) }

// Options configures an [Engine].
type Options struct {
	// SettleDelay is waited after activating a device before it is used.
	SettleDelay time.Duration
	// ConfirmActivation polls the device list after the settle delay until the device reports active
	// or MaxSettleWait elapses.
	ConfirmActivation bool
	MaxSettleWait     time.Duration
	// StrictOrdering drops session writes from intents issued before the most recently applied one.
	// The default is last writer wins.
	StrictOrdering bool

	Notifier Notifier
	Clock    shared.Clock
	Logger   *log.Logger
	Metrics  *metrics.Metrics
}

// Engine is the playback reconciliation engine.
type Engine struct {
	music    Service
	tokens   TokenProvider
	notifier Notifier
	clock    shared.Clock
	logger   *log.Logger
	metrics  *metrics.Metrics

	settleDelay       time.Duration
	confirmActivation bool
	maxSettleWait     time.Duration
	strictOrdering    bool

	mu              sync.Mutex
	session         models.Session
	premiumNotified bool
	issued          uint64
	applied         uint64
	resets          uint64
}

// New creates an [Engine] in browse mode.
func New(music Service, tokens TokenProvider, opts Options) *Engine {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.MaxSettleWait <= 0 {
		opts.MaxSettleWait = DefaultMaxSettleWait
	}
	if opts.Notifier == nil {
		opts.Notifier = NotifierFunc(func(models.Guidance) {})
	}
	if opts.Clock == nil {
		opts.Clock = shared.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewDiscardLogger()
	}

	return &Engine{
		music:             music,
		tokens:            tokens,
		notifier:          opts.Notifier,
		clock:             opts.Clock,
		logger:            shared.WithLogger(opts.Logger, "component", "playback"),
		metrics:           opts.Metrics,
		settleDelay:       opts.SettleDelay,
		confirmActivation: opts.ConfirmActivation,
		maxSettleWait:     opts.MaxSettleWait,
		strictOrdering:    opts.StrictOrdering,
		session:           models.NewSession(),
	}
}

// Snapshot returns a deep copy of the session for rendering.
func (e *Engine) Snapshot() models.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone()
}

// Mode returns the current mode.
func (e *Engine) Mode() models.Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Mode
}

// Reset returns the session to its idle browse state. Registered as a sign-out listener.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.Mode == models.ModePlay {
		e.metrics.RecordModeTransition(string(models.ModeBrowse))
	}
	e.session = models.NewSession()
	e.premiumNotified = false
	e.resets++
	e.logger.Debug("session reset")
}

// peek returns a copy of the session for pre-flight checks.
func (e *Engine) peek() models.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone()
}

// begin gates a remote intent: browse mode is rejected before any token lookup, then a token is fetched.
// A token failure drops the session to browse without guidance.
func (e *Engine) begin(ctx context.Context, intent string) (string, uint64, error) {
	e.mu.Lock()
	mode := e.session.Mode
	e.issued++
	seq := e.issued
	e.mu.Unlock()

	if mode != models.ModePlay {
		return "", 0, newError(intent, KindBrowseMode, nil)
	}

	token, err := e.tokens.GetValidToken(ctx)
	if err != nil {
		e.logger.Debug("intent aborted without token", "intent", intent, "err", err)
		e.downgrade()
		return "", 0, err
	}
	return token, seq, nil
}

// commit applies fn as the terminal write of a flow. It re-checks the mode and, under strict
// ordering, drops writes from intents older than the last applied one.
func (e *Engine) commit(intent string, seq uint64, fn func(s *models.Session)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Mode != models.ModePlay {
		return newError(intent, KindBrowseMode, nil)
	}
	if e.strictOrdering {
		if seq < e.applied {
			e.logger.Debug("dropping stale write", "intent", intent, "seq", seq, "applied", e.applied)
			return nil
		}
		e.applied = seq
	}
	fn(&e.session)
	return nil
}

// downgrade moves the session to browse mode.
func (e *Engine) downgrade() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.Mode == models.ModeBrowse {
		return
	}
	e.session.Mode = models.ModeBrowse
	e.metrics.RecordModeTransition(string(models.ModeBrowse))
}

// fail maps a Music Service error onto a mode transition and guidance.
// A rejected token drops to browse without guidance, like a failed token lookup.
func (e *Engine) fail(intent string, err error) error {
	var perr *PlaybackError
	switch {
	case errors.As(err, &perr):
		return perr
	case errors.Is(err, shared.ErrTokenExpired):
		e.logger.Debug("token rejected, leaving play mode", "intent", intent)
		e.downgrade()
		return newError(intent, KindRequest, err)
	case errors.Is(err, shared.ErrPremiumRequired):
		e.mu.Lock()
		notify := !e.premiumNotified
		e.premiumNotified = true
		e.mu.Unlock()

		e.downgrade()
		if notify {
			e.notifier.Notify(models.Guidance{Kind: models.GuidancePremiumRequired, Message: msgPremiumRequired})
		}
		return newError(intent, KindPremiumRequired, err)
	case errors.Is(err, shared.ErrNoActiveDevice):
		e.notifier.Notify(models.Guidance{Kind: models.GuidanceNoActiveDevice, Message: msgNoActiveDevice})
		return newError(intent, KindNoActiveDevice, err)
	default:
		e.logger.Warn("intent failed", "intent", intent, "err", err)
		return newError(intent, KindRequest, err)
	}
}

// record counts the outcome of intent and passes err through.
func (e *Engine) record(intent string, err error) error {
	outcome := "ok"
	if err != nil {
		var perr *PlaybackError
		if errors.As(err, &perr) {
			outcome = string(perr.Kind)
		} else {
			outcome = "unauthenticated"
		}
	}
	e.metrics.RecordIntent(intent, outcome)
	return err
}

const (
	msgNoDevice         = "No playback device found. Open the Music Service app on a phone, computer or speaker, start playing anything, then try again."
	msgActivationFailed = "Couldn't activate your device. Open the Music Service app, start playback there, then try again."
	msgPremiumRequired  = "Playback control requires a Premium account. Browsing still works; run a device check after upgrading."
	msgNoActiveDevice   = "No active device. Start playback in the Music Service app, then try again."
)
