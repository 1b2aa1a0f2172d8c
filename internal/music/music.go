// Package music is a bearer-authenticated client for the Music Service player endpoints.
//
// Every call goes through the resilient transport so timeouts and retries are uniform across services.
// Failures come back as *[APIError] and map onto the sentinels in [shared].
package music

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/cadence/internal/models"
	"github.com/desertthunder/cadence/internal/shared"
	"github.com/desertthunder/cadence/internal/transport"
)

// Sender is the subset of [transport.Transport] the client needs.
type Sender interface {
	Send(ctx context.Context, req transport.Request) (*http.Response, error)
}

// Client implements the player endpoints.
type Client struct {
	rt     Sender
	logger *log.Logger
}

// New creates a Music Service [Client]. logger may be nil.
func New(rt Sender, logger *log.Logger) *Client {
	if logger == nil {
		logger = shared.NewDiscardLogger()
	}
	return &Client{rt: rt, logger: shared.WithLogger(logger, "component", "music")}
}

type apiArtist struct {
	Name string `json:"name"`
}

type apiTrack struct {
	ID         string      `json:"id"`
	URI        string      `json:"uri"`
	Name       string      `json:"name"`
	DurationMs int         `json:"duration_ms"`
	Artists    []apiArtist `json:"artists"`
	Album      struct {
		Name string `json:"name"`
	} `json:"album"`
}

func (t *apiTrack) toModel() *models.Track {
	if t == nil {
		return nil
	}
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}
	return &models.Track{
		ID:         t.ID,
		URI:        t.URI,
		Name:       t.Name,
		Artists:    artists,
		Album:      t.Album.Name,
		DurationMs: t.DurationMs,
	}
}

type apiPlayerState struct {
	Device       *models.Device `json:"device"`
	IsPlaying    bool           `json:"is_playing"`
	ProgressMs   int            `json:"progress_ms"`
	ShuffleState bool           `json:"shuffle_state"`
	RepeatState  string         `json:"repeat_state"`
	Item         *apiTrack      `json:"item"`
}

func (s apiPlayerState) toModel() *models.PlayerState {
	repeat, err := models.ParseRepeatMode(s.RepeatState)
	if err != nil {
		repeat = models.RepeatOff
	}
	return &models.PlayerState{
		Device:       s.Device,
		IsPlaying:    s.IsPlaying,
		Track:        s.Item.toModel(),
		ProgressMs:   s.ProgressMs,
		ShuffleState: s.ShuffleState,
		RepeatState:  repeat,
	}
}

// Devices lists the user's available output devices.
func (c *Client) Devices(ctx context.Context, token string) ([]models.Device, error) {
	var out struct {
		Devices []models.Device `json:"devices"`
	}
	if _, err := c.do(ctx, token, http.MethodGet, "/me/player/devices", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Devices, nil
}

// Transfer moves playback to deviceID, optionally starting playback there.
func (c *Client) Transfer(ctx context.Context, token, deviceID string, play bool) error {
	body := map[string]any{"device_ids": []string{deviceID}, "play": play}
	_, err := c.do(ctx, token, http.MethodPut, "/me/player", nil, body, nil)
	return err
}

// Play starts the given track URIs on deviceID.
func (c *Client) Play(ctx context.Context, token, deviceID string, uris []string) error {
	body := map[string]any{"uris": uris}
	_, err := c.do(ctx, token, http.MethodPut, "/me/player/play", deviceQuery(deviceID), body, nil)
	return err
}

// Resume continues the current context on deviceID.
func (c *Client) Resume(ctx context.Context, token, deviceID string) error {
	_, err := c.do(ctx, token, http.MethodPut, "/me/player/play", deviceQuery(deviceID), nil, nil)
	return err
}

func (c *Client) Pause(ctx context.Context, token, deviceID string) error {
	_, err := c.do(ctx, token, http.MethodPut, "/me/player/pause", deviceQuery(deviceID), nil, nil)
	return err
}

func (c *Client) Next(ctx context.Context, token, deviceID string) error {
	_, err := c.do(ctx, token, http.MethodPost, "/me/player/next", deviceQuery(deviceID), nil, nil)
	return err
}

func (c *Client) Previous(ctx context.Context, token, deviceID string) error {
	_, err := c.do(ctx, token, http.MethodPost, "/me/player/previous", deviceQuery(deviceID), nil, nil)
	return err
}

func (c *Client) Seek(ctx context.Context, token, deviceID string, positionMs int) error {
	q := deviceQuery(deviceID)
	q.Set("position_ms", strconv.Itoa(positionMs))
	_, err := c.do(ctx, token, http.MethodPut, "/me/player/seek", q, nil, nil)
	return err
}

func (c *Client) SetShuffle(ctx context.Context, token, deviceID string, state bool) error {
	q := deviceQuery(deviceID)
	q.Set("state", strconv.FormatBool(state))
	_, err := c.do(ctx, token, http.MethodPut, "/me/player/shuffle", q, nil, nil)
	return err
}

func (c *Client) SetRepeat(ctx context.Context, token, deviceID string, mode models.RepeatMode) error {
	q := deviceQuery(deviceID)
	q.Set("state", string(mode))
	_, err := c.do(ctx, token, http.MethodPut, "/me/player/repeat", q, nil, nil)
	return err
}

// SetVolume sets the device volume as an integer percentage in [0,100].
func (c *Client) SetVolume(ctx context.Context, token, deviceID string, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: volume %d out of range", shared.ErrInvalidArgument, percent)
	}
	q := deviceQuery(deviceID)
	q.Set("volume_percent", strconv.Itoa(percent))
	_, err := c.do(ctx, token, http.MethodPut, "/me/player/volume", q, nil, nil)
	return err
}

// PlayerState returns the full playback state, or nil when nothing is playing.
func (c *Client) PlayerState(ctx context.Context, token string) (*models.PlayerState, error) {
	return c.state(ctx, token, "/me/player")
}

// CurrentlyPlaying returns the current track and progress, or nil when nothing is playing.
func (c *Client) CurrentlyPlaying(ctx context.Context, token string) (*models.PlayerState, error) {
	return c.state(ctx, token, "/me/player/currently-playing")
}

func (c *Client) state(ctx context.Context, token, path string) (*models.PlayerState, error) {
	var out apiPlayerState
	status, err := c.do(ctx, token, http.MethodGet, path, nil, nil, &out)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	return out.toModel(), nil
}

// do sends one request and decodes a JSON response into out when out is non-nil and the body is non-empty.
func (c *Client) do(ctx context.Context, token, method, path string, query url.Values, body, out any) (int, error) {
	req := transport.Request{Method: method, Path: path, Query: query, Token: token}
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request: %w", err)
		}
		req.Body = payload
	}

	resp, err := c.rt.Send(ctx, req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := newAPIError(resp)
		c.logger.Debug("player request failed", "method", method, "path", path, "status", apiErr.Status, "reason", apiErr.Reason)
		return resp.StatusCode, apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) == 0 {
		return http.StatusNoContent, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: failed to decode response: %v", shared.ErrAPIRequest, err)
	}
	return resp.StatusCode, nil
}

func deviceQuery(deviceID string) url.Values {
	q := url.Values{}
	if deviceID != "" {
		q.Set("device_id", deviceID)
	}
	return q
}
