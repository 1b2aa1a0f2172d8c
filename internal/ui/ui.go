package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/cadence/internal/formatter"
	"github.com/desertthunder/cadence/internal/models"
	"github.com/desertthunder/cadence/internal/shared"
)

const (
	seekStep     = 10_000
	volumeStep   = 0.1
	syncInterval = 5 * time.Second
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	NowPlayingView ViewState = iota
	DeviceListView
)

// Player is the intent surface the TUI drives. Implemented by *playback.Engine.
type Player interface {
	CheckDevice(ctx context.Context) (string, error)
	Devices(ctx context.Context) ([]models.Device, error)
	Play(ctx context.Context, track *models.Track, queue []models.Track) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Seek(ctx context.Context, positionMs int) error
	ToggleShuffle(ctx context.Context) error
	SetRepeatMode(ctx context.Context, mode models.RepeatMode) error
	SetVolume(ctx context.Context, v float64) error
	Sync(ctx context.Context) error
	Snapshot() models.Session
}

// Model represents the TUI application state.
type Model struct {
	ctx        context.Context
	view       ViewState
	player     Player
	guidance   GuidanceChannel
	session    models.Session
	deviceList list.Model
	notice     *models.Guidance
	status     string
	err        error
	width      int
	height     int
	help       help.Model
	keys       keyMap
}

// NewModel creates a new TUI model. guidance must be the notifier the engine was built with.
func NewModel(ctx context.Context, player Player, guidance GuidanceChannel) *Model {
	return &Model{
		ctx:      ctx,
		view:     NowPlayingView,
		player:   player,
		guidance: guidance,
		session:  player.Snapshot(),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init syncs with the remote player and starts listening for guidance.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.intent("sync", m.player.Sync), m.waitForGuidance(), m.tick())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		if m.view == DeviceListView {
			m.deviceList.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		if m.view == DeviceListView {
			return m.handleDeviceListKeys(msg)
		}
		return m.handleNowPlayingKeys(msg)

	case Msg:
		return m.handleMsg(msg)
	}

	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgIntentDone:
		res := msg.data.(intentResult)
		m.session = m.player.Snapshot()
		m.err = nil
		m.status = ""
		if res.err != nil {
			m.err = res.err
		} else if res.intent == "check_device" {
			m.notice = nil
			m.status = "Device ready"
		}
		return m, nil

	case MsgDevicesFetched:
		res := msg.data.(devicesResult)
		if res.err != nil {
			m.err = res.err
			m.view = NowPlayingView
			return m, nil
		}
		items := make([]list.Item, len(res.devices))
		for i, d := range res.devices {
			items[i] = deviceItem{device: d}
		}
		m.deviceList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.deviceList.Title = "Devices"
		m.deviceList.SetSize(m.width-4, m.height-8)
		m.view = DeviceListView
		return m, nil

	case MsgGuidance:
		g := msg.data.(models.Guidance)
		m.notice = &g
		return m, m.waitForGuidance()

	case MsgTick:
		return m, tea.Batch(m.intent("sync", m.player.Sync), m.tick())
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.view == DeviceListView {
		return fmt.Sprintf("%s\n\n%s", m.deviceList.View(), m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit}))
	}
	return m.renderNowPlaying()
}

func (m *Model) handleNowPlayingKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := m.session

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.toggle):
		if s.IsPlaying {
			return m, m.intent("pause", m.player.Pause)
		}
		if s.CurrentTrack == nil && len(s.Queue) > 0 {
			return m, m.intent("play", func(ctx context.Context) error { return m.player.Play(ctx, nil, nil) })
		}
		return m, m.intent("resume", m.player.Resume)
	case key.Matches(msg, m.keys.next):
		return m, m.intent("next", m.player.Next)
	case key.Matches(msg, m.keys.previous):
		return m, m.intent("previous", m.player.Previous)
	case key.Matches(msg, m.keys.forward):
		pos := s.ProgressMs + seekStep
		return m, m.intent("seek", func(ctx context.Context) error { return m.player.Seek(ctx, pos) })
	case key.Matches(msg, m.keys.rewind):
		pos := s.ProgressMs - seekStep
		return m, m.intent("seek", func(ctx context.Context) error { return m.player.Seek(ctx, pos) })
	case key.Matches(msg, m.keys.shuffle):
		return m, m.intent("shuffle", m.player.ToggleShuffle)
	case key.Matches(msg, m.keys.repeat):
		mode := s.RepeatMode.Next()
		return m, m.intent("repeat", func(ctx context.Context) error { return m.player.SetRepeatMode(ctx, mode) })
	case key.Matches(msg, m.keys.volumeUp):
		v := min(s.Volume+volumeStep, 1)
		return m, m.intent("volume", func(ctx context.Context) error { return m.player.SetVolume(ctx, v) })
	case key.Matches(msg, m.keys.volumeDown):
		v := max(s.Volume-volumeStep, 0)
		return m, m.intent("volume", func(ctx context.Context) error { return m.player.SetVolume(ctx, v) })
	case key.Matches(msg, m.keys.activate):
		m.status = "Checking device..."
		return m, m.intent("check_device", func(ctx context.Context) error {
			_, err := m.player.CheckDevice(ctx)
			return err
		})
	case key.Matches(msg, m.keys.devices):
		return m, m.fetchDevices()
	case key.Matches(msg, m.keys.sync):
		return m, m.intent("sync", m.player.Sync)
	}
	return m, nil
}

func (m *Model) handleDeviceListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit) && !m.deviceList.SettingFilter():
		return m, tea.Quit
	case key.Matches(msg, m.keys.back) && !m.deviceList.SettingFilter():
		m.view = NowPlayingView
		return m, nil
	}

	var cmd tea.Cmd
	m.deviceList, cmd = m.deviceList.Update(msg)
	return m, cmd
}

// intent runs fn off the render loop and reports back with [MsgIntentDone].
func (m *Model) intent(name string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return intentDoneMsg(name, fn(m.ctx))
	}
}

func (m *Model) fetchDevices() tea.Cmd {
	return func() tea.Msg {
		devices, err := m.player.Devices(m.ctx)
		return devicesFetchedMsg(devices, err)
	}
}

func (m *Model) waitForGuidance() tea.Cmd {
	if m.guidance == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case g := <-m.guidance:
			return guidanceMsg(g)
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(syncInterval, func(time.Time) tea.Msg { return tickMsg() })
}

func (m *Model) renderNowPlaying() string {
	s := m.session
	var b strings.Builder

	b.WriteString(styles.title.Render("cadence"))
	b.WriteString("\n")

	if s.Mode == models.ModeBrowse {
		b.WriteString(styles.warn.Render("Browse mode: press a to check for a device and enable controls"))
		b.WriteString("\n\n")
	}

	if s.CurrentTrack == nil {
		b.WriteString(styles.help.Render("Nothing playing"))
		b.WriteString("\n")
	} else {
		state := styles.paused.Render("❚❚")
		if s.IsPlaying {
			state = styles.playing.Render("▶")
		}
		fmt.Fprintf(&b, "%s %s\n", state, styles.track.Render(s.CurrentTrack.Name))
		if artists := strings.Join(s.CurrentTrack.Artists, ", "); artists != "" {
			fmt.Fprintf(&b, "  %s\n", artists)
		}
		fmt.Fprintf(&b, "  %s %s / %s\n",
			styles.bar.Render(progressBar(s.ProgressMs, s.DurationMs, 30)),
			formatter.FormatDuration(s.ProgressMs),
			formatter.FormatDuration(s.DurationMs),
		)
	}

	fmt.Fprintf(&b, "\nvolume %d%%  shuffle %s  repeat %s", int(s.Volume*100+0.5), onOff(s.Shuffled), s.RepeatMode)
	if s.DeviceID != "" {
		fmt.Fprintf(&b, "  device %s", s.DeviceID)
	}
	b.WriteString("\n")

	if len(s.Queue) > 0 {
		fmt.Fprintf(&b, "\nUp next (%d): %s\n", len(s.Queue), formatter.TrackLine(s.Queue[0]))
	}

	if m.notice != nil {
		b.WriteString("\n")
		b.WriteString(styles.warn.Render(m.notice.Message))
		b.WriteString("\n")
	}
	if m.err != nil && !quiet(m.err) {
		b.WriteString("\n")
		b.WriteString(styles.err.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(styles.ok.Render(m.status))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

// quiet reports errors already explained by guidance or the browse banner.
func quiet(err error) bool {
	for _, target := range []error{
		shared.ErrBrowseMode,
		shared.ErrNoDevice,
		shared.ErrDeviceActivationFailed,
		shared.ErrPremiumRequired,
		shared.ErrNoActiveDevice,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func progressBar(progress, duration, width int) string {
	filled := 0
	if duration > 0 {
		filled = max(min(width*progress/duration, width), 0)
	}
	return strings.Repeat("━", filled) + strings.Repeat("─", width-filled)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// deviceItem wraps [models.Device] to implement [list.Item].
type deviceItem struct {
	device models.Device
}

var _ list.Item = deviceItem{}

func (i deviceItem) FilterValue() string { return i.device.Name }
func (i deviceItem) Title() string {
	if i.device.IsActive {
		return "● " + i.device.Name
	}
	return i.device.Name
}
func (i deviceItem) Description() string {
	desc := fmt.Sprintf("%s • %d%%", i.device.Type, i.device.VolumePercent)
	if i.device.IsRestricted {
		desc += " • restricted"
	}
	return desc
}
