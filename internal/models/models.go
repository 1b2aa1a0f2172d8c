// package models defines the data model for the playback client
package models

import (
	"fmt"
	"slices"
	"time"
)

// Persisted key layout for [Store] implementations.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyTokenExpiry  = "token_expiry" // stringified epoch milliseconds
	KeyUserID       = "user_id"
)

// SessionKeys lists every key cleared on sign-out.
var SessionKeys = []string{KeyAccessToken, KeyRefreshToken, KeyTokenExpiry, KeyUserID}

// Store is an opaque string-keyed persistence layer.
//
// Implementations are dumb: no expiry, no namespacing, no validation.
type Store interface {
	Get(key string) (string, bool, error) // Get returns the value and whether the key was present
	Set(key, value string) error          // Set creates or overwrites key
	Delete(keys ...string) error          // Delete removes keys; missing keys are not an error
}

// TokenRecord is one authenticated Music Service session.
type TokenRecord struct {
	AccessToken  string
	RefreshToken string // optional; empty when the backend never issued one
	ExpiresAt    time.Time
}

// UsableAt reports whether the access token is still usable at now given a safety margin.
//
// Within the margin the token is treated as already expired.
func (r TokenRecord) UsableAt(now time.Time, margin time.Duration) bool {
	return r.AccessToken != "" && now.Add(margin).Before(r.ExpiresAt)
}

// Track represents a playable item from the Music Service catalog.
type Track struct {
	ID         string   `json:"id"`
	URI        string   `json:"uri"`
	Name       string   `json:"name"`
	Artists    []string `json:"artists"`
	Album      string   `json:"album"`
	DurationMs int      `json:"duration_ms"`
}

// Artist returns the primary credited artist, or an empty string.
func (t Track) Artist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// Validate checks that the track can be sent in a play request.
func (t Track) Validate() error {
	if t.URI == "" {
		return fmt.Errorf("track %q has no uri", t.Name)
	}
	return nil
}

// Device is a candidate playback endpoint. Never persisted; fetched fresh on each reconciliation.
type Device struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	IsActive      bool   `json:"is_active"`
	IsRestricted  bool   `json:"is_restricted"`
	VolumePercent int    `json:"volume_percent"`
}

// PlayerState is the remote playback state returned by the Music Service.
type PlayerState struct {
	Device       *Device
	IsPlaying    bool
	Track        *Track
	ProgressMs   int
	ShuffleState bool
	RepeatState  RepeatMode
}

// RepeatMode is the repeat setting of a [Session].
type RepeatMode string

const (
	RepeatOff     RepeatMode = "off"
	RepeatTrack   RepeatMode = "track"
	RepeatContext RepeatMode = "context"
)

// ParseRepeatMode validates s as a [RepeatMode].
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch m := RepeatMode(s); m {
	case RepeatOff, RepeatTrack, RepeatContext:
		return m, nil
	default:
		return "", fmt.Errorf("unknown repeat mode %q", s)
	}
}

// Next cycles off -> context -> track -> off.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatContext
	case RepeatContext:
		return RepeatTrack
	default:
		return RepeatOff
	}
}

// Mode gates whether playback-control intents are attempted.
type Mode string

const (
	ModeBrowse Mode = "browse"
	ModePlay   Mode = "play"
)

// Session is the local mirror of remote playback state.
//
// Mode is [ModePlay] only while a device check most recently confirmed a reachable output.
type Session struct {
	IsPlaying    bool
	CurrentTrack *Track
	Queue        []Track
	ProgressMs   int
	DurationMs   int
	Volume       float64 // [0,1]
	Shuffled     bool
	RepeatMode   RepeatMode
	DeviceID     string // empty when no device is known
	Mode         Mode
}

// NewSession returns an idle session in browse mode.
func NewSession() Session {
	return Session{RepeatMode: RepeatOff, Mode: ModeBrowse, Volume: 1}
}

// Clone returns a deep copy so readers never alias the owner's track or queue.
func (s Session) Clone() Session {
	c := s
	if s.CurrentTrack != nil {
		t := s.CurrentTrack.Clone()
		c.CurrentTrack = &t
	}
	if s.Queue != nil {
		c.Queue = make([]Track, len(s.Queue))
		for i, t := range s.Queue {
			c.Queue[i] = t.Clone()
		}
	}
	return c
}

// Clone returns a copy that shares no slices with t.
func (t Track) Clone() Track {
	t.Artists = slices.Clone(t.Artists)
	return t
}

// GuidanceKind identifies a user-facing recovery hint.
type GuidanceKind string

const (
	GuidanceNoDevice         GuidanceKind = "no_device"
	GuidanceActivationFailed GuidanceKind = "activation_failed"
	GuidancePremiumRequired  GuidanceKind = "premium_required"
	GuidanceNoActiveDevice   GuidanceKind = "no_active_device"
)

// Guidance is an actionable message surfaced to the UI when an intent cannot proceed.
type Guidance struct {
	Kind    GuidanceKind
	Message string
}
