package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/cadence/internal/server"
	"github.com/desertthunder/cadence/internal/shared"
)

const authTimeout = 2 * time.Minute

// AuthLogin runs the authorization code flow through a local callback server.
//
// The code is exchanged by the backend, which holds the client secret.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	if err := r.wire(ctx); err != nil {
		return err
	}

	state, err := shared.GenerateState()
	if err != nil {
		return fmt.Errorf("failed to generate state token: %w", err)
	}

	redirect, err := url.Parse(r.config.Music.RedirectURI)
	if err != nil {
		return fmt.Errorf("%w: music.redirect_uri: %v", shared.ErrInvalidConfig, err)
	}

	addr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	ln, err := r.listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}

	handler := server.NewOAuthHandler(r.auth, state, redirect.Path)
	authURL := server.AuthConfig(r.config.Music).AuthCodeURL(state)

	timeout := cmd.Duration("timeout")
	if timeout <= 0 {
		timeout = authTimeout
	}

	r.logger.Info("starting callback server", "addr", ln.Addr().String())
	r.writePlain("→ Opening browser to sign in...\n")
	if err := r.openBrowser(authURL); err != nil {
		r.logger.Warn("failed to open browser automatically", "err", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}
	r.writePlain("→ Waiting for authorization (%s timeout)...\n", timeout)

	token, err := server.Await(ctx, ln, handler, timeout, r.logger)
	if err != nil {
		return fmt.Errorf("sign in failed: %w", err)
	}

	r.writePlain("✓ Signed in\n")
	r.writePlain("Token expires %s\n", token.Expiry.Local().Format(time.RFC1123))
	return nil
}

type authStatus struct {
	State      string     `json:"state"`
	UserID     string     `json:"user_id,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CanRefresh bool       `json:"can_refresh"`
}

// AuthStatus reports the persisted session without touching the network.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.wire(ctx); err != nil {
		return err
	}

	rec, state := r.auth.Record()
	status := authStatus{State: string(state), UserID: r.auth.UserID(), CanRefresh: rec.RefreshToken != ""}
	if !rec.ExpiresAt.IsZero() {
		status.ExpiresAt = &rec.ExpiresAt
	}

	if cmd.Bool("json") {
		return r.writeJSON(status, true)
	}

	r.writePlain("Session: %s\n", status.State)
	if status.UserID != "" {
		r.writePlain("User: %s\n", status.UserID)
	}
	if status.ExpiresAt != nil {
		r.writePlain("Expires: %s (in %s)\n",
			status.ExpiresAt.Local().Format(time.RFC1123),
			status.ExpiresAt.Sub(r.clock.Now()).Round(time.Second),
		)
	}
	if !status.CanRefresh && status.State != "no_session" {
		r.writePlain("⚠ No refresh token; sign in again when the token expires\n")
	}
	return nil
}

// AuthRefresh forces a refresh. A failure signs the session out.
func (r *Runner) AuthRefresh(ctx context.Context, cmd *cli.Command) error {
	if err := r.wire(ctx); err != nil {
		return err
	}

	if _, err := r.auth.Refresh(ctx); err != nil {
		return err
	}

	rec, _ := r.auth.Record()
	return r.writePlain("✓ Token refreshed, expires %s\n", rec.ExpiresAt.Local().Format(time.RFC1123))
}

// AuthLogout signs out. Local tokens are always cleared; revocation is best effort.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	if err := r.wire(ctx); err != nil {
		return err
	}

	if r.auth.SignOut(ctx) {
		return r.writePlain("✓ Signed out\n")
	}
	return r.writePlain("✓ Signed out locally (session was not revoked on the server)\n")
}
