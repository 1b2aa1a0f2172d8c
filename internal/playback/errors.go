package playback

import (
	"fmt"

	"github.com/desertthunder/cadence/internal/shared"
)

// ErrorKind classifies why an intent did not take effect.
type ErrorKind string

const (
	KindNoDevice               ErrorKind = "noDevice"
	KindDeviceActivationFailed ErrorKind = "deviceActivationFailed"
	KindPremiumRequired        ErrorKind = "premiumRequired"
	KindNotPlaying             ErrorKind = "notPlaying"
	KindNoActiveDevice         ErrorKind = "noActiveDevice"
	KindBrowseMode             ErrorKind = "browseMode"
	KindNothingToPlay          ErrorKind = "nothingToPlay"
	KindRequest                ErrorKind = "request"
)

var kindSentinels = map[ErrorKind]error{
	KindNoDevice:               shared.ErrNoDevice,
	KindDeviceActivationFailed: shared.ErrDeviceActivationFailed,
	KindPremiumRequired:        shared.ErrPremiumRequired,
	KindNotPlaying:             shared.ErrNotPlaying,
	KindNoActiveDevice:         shared.ErrNoActiveDevice,
	KindBrowseMode:             shared.ErrBrowseMode,
	KindNothingToPlay:          shared.ErrNothingToPlay,
	KindRequest:                shared.ErrAPIRequest,
}

// PlaybackError reports an intent that was rejected or failed. The session is never left half-written.
type PlaybackError struct {
	Kind   ErrorKind
	Intent string
	Err    error
}

func (e *PlaybackError) Error() string {
	msg := fmt.Sprintf("playback: %s: %s", e.Intent, e.Kind)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *PlaybackError) Unwrap() []error {
	sentinel := kindSentinels[e.Kind]
	if e.Err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Err}
}

func newError(intent string, kind ErrorKind, err error) *PlaybackError {
	return &PlaybackError{Kind: kind, Intent: intent, Err: err}
}
