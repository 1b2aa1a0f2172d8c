// Package backend is the client for the auth/data backend that brokers Music Service credentials.
//
// The Music Service client secret lives server-side; the device only ever sends an authorization code
// or a refresh token to the backend's edge functions and receives short-lived access tokens back.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/cadence/internal/shared"
	"github.com/desertthunder/cadence/internal/transport"
)

const (
	exchangePath = "/functions/v1/music-token"
	refreshPath  = "/functions/v1/music-refresh"
	logoutPath   = "/auth/v1/logout"
)

// Sender is the subset of [transport.Transport] the client needs.
type Sender interface {
	Send(ctx context.Context, req transport.Request) (*http.Response, error)
}

// Session is the result of a code exchange or refresh.
type Session struct {
	Token  *oauth2.Token
	UserID string
}

// Client calls the backend over a resilient transport.
type Client struct {
	rt     Sender
	clock  shared.Clock
	logger *log.Logger
}

// New creates a backend [Client]. clock resolves relative expiries; logger may be nil.
func New(rt Sender, clock shared.Clock, logger *log.Logger) *Client {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = shared.NewDiscardLogger()
	}
	return &Client{rt: rt, clock: clock, logger: shared.WithLogger(logger, "component", "backend")}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	UserID       string `json:"user_id"`
}

// ExchangeCode trades an authorization code for a session.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*Session, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: authorization code", shared.ErrMissingArgument)
	}
	body := map[string]string{"code": code, "redirect_uri": redirectURI}
	return c.tokenRequest(ctx, exchangePath, body)
}

// Refresh trades a refresh token for a new access token. The returned token carries a rotated
// refresh token only when the backend issued one.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}
	return c.tokenRequest(ctx, refreshPath, map[string]string{"refresh_token": refreshToken})
}

// SignOut revokes the session on the backend.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	resp, err := c.rt.Send(ctx, transport.Request{Method: http.MethodPost, Path: logoutPath, Token: accessToken})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return newAPIError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) tokenRequest(ctx context.Context, path string, body map[string]string) (*Session, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := c.rt.Send(ctx, transport.Request{Method: http.MethodPost, Path: path, Body: payload})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := newAPIError(resp)
		c.logger.Warn("token request rejected", "path", path, "status", resp.StatusCode)
		return nil, apiErr
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("%w: failed to decode token response: %v", shared.ErrAuthFailed, err)
	}
	return c.session(tr)
}

func (c *Client) session(tr tokenResponse) (*Session, error) {
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: response has no access token", shared.ErrAuthFailed)
	}

	var expiry time.Time
	switch {
	case tr.ExpiresAt > 0:
		expiry = time.Unix(tr.ExpiresAt, 0)
	case tr.ExpiresIn > 0:
		expiry = c.clock.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	default:
		return nil, fmt.Errorf("%w: response has no expiry", shared.ErrAuthFailed)
	}

	tokenType := tr.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return &Session{
		Token: &oauth2.Token{
			AccessToken:  tr.AccessToken,
			RefreshToken: tr.RefreshToken,
			TokenType:    tokenType,
			Expiry:       expiry,
		},
		UserID: tr.UserID,
	}, nil
}

// APIError is a non-2xx backend response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: HTTP %d", e.Status)
	}
	return fmt.Sprintf("backend: HTTP %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() []error {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return []error{shared.ErrAPIRequest, shared.ErrInvalidCredentials}
	}
	return []error{shared.ErrAPIRequest}
}

func newAPIError(resp *http.Response) *APIError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Message          string `json:"message"`
		Msg              string `json:"msg"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &body) == nil {
		for _, candidate := range []string{body.ErrorDescription, body.Message, body.Msg, body.Error} {
			if candidate != "" {
				msg = candidate
				break
			}
		}
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
