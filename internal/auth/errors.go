package auth

import (
	"fmt"

	"github.com/desertthunder/cadence/internal/shared"
)

// TokenErrorKind classifies why no valid token could be produced.
type TokenErrorKind string

const (
	KindNoSession     TokenErrorKind = "noSession"
	KindRefreshFailed TokenErrorKind = "refreshFailed"
)

// TokenError is returned by [Manager.GetValidToken] and [Manager.Refresh].
//
// A refreshFailed error means the session has already been signed out.
type TokenError struct {
	Kind TokenErrorKind
	Err  error
}

func (e *TokenError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("auth: %s", e.sentinel())
	}
	return fmt.Sprintf("auth: %s: %v", e.sentinel(), e.Err)
}

func (e *TokenError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.sentinel()}
	}
	return []error{e.sentinel(), e.Err}
}

func (e *TokenError) sentinel() error {
	if e.Kind == KindRefreshFailed {
		return shared.ErrRefreshFailed
	}
	return shared.ErrNoSession
}
