package music

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/cadence/internal/shared"
)

// Error reasons reported in the body of player endpoint failures.
const (
	ReasonPremiumRequired = "PREMIUM_REQUIRED"
	ReasonNoActiveDevice  = "NO_ACTIVE_DEVICE"
)

// APIError is a non-2xx Music Service response.
//
// It unwraps to the mapped sentinel (premium required, no active device, expired token, rate limited)
// and always to [shared.ErrAPIRequest].
type APIError struct {
	Status     int
	Message    string
	Reason     string
	RetryAfter time.Duration // set on 429 when the server sent Retry-After
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("music: HTTP %d", e.Status)
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Reason != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Reason)
	}
	return msg
}

func (e *APIError) Unwrap() []error {
	if sentinel := e.Sentinel(); sentinel != shared.ErrAPIRequest {
		return []error{sentinel, shared.ErrAPIRequest}
	}
	return []error{shared.ErrAPIRequest}
}

// Sentinel maps the response onto the client's error taxonomy.
func (e *APIError) Sentinel() error {
	switch {
	case e.Reason == ReasonPremiumRequired,
		e.Status == http.StatusForbidden && strings.Contains(strings.ToLower(e.Message), "premium"):
		return shared.ErrPremiumRequired
	case e.Reason == ReasonNoActiveDevice, e.Status == http.StatusNotFound:
		return shared.ErrNoActiveDevice
	case e.Status == http.StatusUnauthorized:
		return shared.ErrTokenExpired
	case e.Status == http.StatusTooManyRequests:
		return shared.ErrRateLimited
	case e.Status == http.StatusBadGateway, e.Status == http.StatusServiceUnavailable:
		return shared.ErrServiceUnavailable
	default:
		return shared.ErrAPIRequest
	}
}

// newAPIError decodes {"error":{"status","message","reason"}} and falls back to the raw body.
func newAPIError(resp *http.Response) *APIError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := &APIError{Status: resp.StatusCode}

	var body struct {
		Error struct {
			Status  int    `json:"status"`
			Message string `json:"message"`
			Reason  string `json:"reason"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && (body.Error.Message != "" || body.Error.Reason != "") {
		apiErr.Message = body.Error.Message
		apiErr.Reason = body.Error.Reason
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return apiErr
}
