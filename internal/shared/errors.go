package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	// Transport errors
	ErrTimeout = fmt.Errorf("operation timed out")
	ErrNetwork = fmt.Errorf("network failure")
	ErrAborted = fmt.Errorf("request aborted")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrNoSession        = fmt.Errorf("no session")
	ErrTokenExpired     = fmt.Errorf("access token expired")
	ErrRefreshFailed    = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken   = fmt.Errorf("no refresh token available")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrRateLimited        = fmt.Errorf("rate limited")
	ErrTrackNotFound      = fmt.Errorf("track not found")

	// Playback errors
	ErrNoDevice               = fmt.Errorf("no playback device available")
	ErrDeviceActivationFailed = fmt.Errorf("device activation failed")
	ErrNoActiveDevice         = fmt.Errorf("no active device")
	ErrPremiumRequired        = fmt.Errorf("premium account required")
	ErrNotPlaying             = fmt.Errorf("nothing is playing")
	ErrNothingToPlay          = fmt.Errorf("no track to play")
	ErrBrowseMode             = fmt.Errorf("playback controls disabled in browse mode")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
