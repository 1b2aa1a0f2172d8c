package playback

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/desertthunder/cadence/internal/models"
)

// mockMusic records every call as "method:arg:arg" and returns per-method errors.
type mockMusic struct {
	mu      sync.Mutex
	calls   []string
	devices func() ([]models.Device, error)
	current *models.PlayerState
	state   *models.PlayerState
	errs    map[string]error
	hooks   map[string]func()
}

func newMockMusic(devices ...models.Device) *mockMusic {
	return &mockMusic{
		devices: func() ([]models.Device, error) { return devices, nil },
		errs:    map[string]error{},
		hooks:   map[string]func(){},
	}
}

func (m *mockMusic) record(method string, args ...any) error {
	parts := []string{method}
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}

	m.mu.Lock()
	m.calls = append(m.calls, strings.Join(parts, ":"))
	err := m.errs[method]
	hook := m.hooks[method]
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return err
}

func (m *mockMusic) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockMusic) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *mockMusic) SetErr(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[method] = err
}

func (m *mockMusic) Count(method string) int {
	n := 0
	for _, c := range m.Calls() {
		if c == method || strings.HasPrefix(c, method+":") {
			n++
		}
	}
	return n
}

func (m *mockMusic) Devices(ctx context.Context, token string) ([]models.Device, error) {
	if err := m.record("devices"); err != nil {
		return nil, err
	}
	return m.devices()
}

func (m *mockMusic) Transfer(ctx context.Context, token, deviceID string, play bool) error {
	return m.record("transfer", deviceID)
}

func (m *mockMusic) Play(ctx context.Context, token, deviceID string, uris []string) error {
	return m.record("play", deviceID, strings.Join(uris, ","))
}

func (m *mockMusic) Resume(ctx context.Context, token, deviceID string) error {
	return m.record("resume", deviceID)
}

func (m *mockMusic) Pause(ctx context.Context, token, deviceID string) error {
	return m.record("pause", deviceID)
}

func (m *mockMusic) Next(ctx context.Context, token, deviceID string) error {
	return m.record("next", deviceID)
}

func (m *mockMusic) Previous(ctx context.Context, token, deviceID string) error {
	return m.record("previous", deviceID)
}

func (m *mockMusic) Seek(ctx context.Context, token, deviceID string, positionMs int) error {
	return m.record("seek", deviceID, positionMs)
}

func (m *mockMusic) SetShuffle(ctx context.Context, token, deviceID string, state bool) error {
	return m.record("shuffle", deviceID, state)
}

func (m *mockMusic) SetRepeat(ctx context.Context, token, deviceID string, mode models.RepeatMode) error {
	return m.record("repeat", deviceID, mode)
}

func (m *mockMusic) SetVolume(ctx context.Context, token, deviceID string, percent int) error {
	return m.record("volume", deviceID, percent)
}

func (m *mockMusic) PlayerState(ctx context.Context, token string) (*models.PlayerState, error) {
	if err := m.record("state"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

func (m *mockMusic) CurrentlyPlaying(ctx context.Context, token string) (*models.PlayerState, error) {
	if err := m.record("current"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, nil
}

// mockTokens is a [TokenProvider] that counts lookups.
type mockTokens struct {
	err   error
	calls atomic.Int32
}

func (m *mockTokens) GetValidToken(context.Context) (string, error) {
	m.calls.Add(1)
	if m.err != nil {
		return "", m.err
	}
	return "token", nil
}
