// package formatter renders devices and the playback session for the terminal (table, CSV, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/desertthunder/cadence/internal/models"
)

// FormatDuration renders milliseconds as m:ss. Negative values render as 0:00.
func FormatDuration(ms int) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// WriteDevicesTable renders devices as a rounded table, marking the active one.
func WriteDevicesTable(w io.Writer, devices []models.Device) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "Name", "Type", "Status", "Volume", "Device ID"})

	for i, d := range devices {
		status := "Inactive"
		if d.IsActive {
			status = color.GreenString("● Active")
		}
		if d.IsRestricted {
			status += color.YellowString(" (restricted)")
		}

		t.AppendRow(table.Row{
			i + 1,
			color.New(color.Bold).Sprint(d.Name),
			d.Type,
			status,
			fmt.Sprintf("%d%%", d.VolumePercent),
			color.HiBlackString(d.ID),
		})
	}

	t.AppendFooter(table.Row{"", "Total", len(devices)})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

// DevicesToCSV converts devices to CSV with columns: ID, Name, Type, Active, Restricted, Volume
func DevicesToCSV(devices []models.Device) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"ID", "Name", "Type", "Active", "Restricted", "Volume"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, d := range devices {
		record := []string{
			d.ID,
			d.Name,
			d.Type,
			strconv.FormatBool(d.IsActive),
			strconv.FormatBool(d.IsRestricted),
			strconv.Itoa(d.VolumePercent),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// TrackLine renders "Artist - Name", or just the name when there is no artist.
func TrackLine(t models.Track) string {
	if artist := t.Artist(); artist != "" {
		return fmt.Sprintf("%s - %s", strings.Join(t.Artists, ", "), t.Name)
	}
	return t.Name
}

// SessionText renders a plain text summary of the session.
func SessionText(s models.Session) string {
	var buf strings.Builder

	state := "Paused"
	if s.IsPlaying {
		state = "Playing"
	}
	if s.CurrentTrack == nil {
		state = "Stopped"
	}

	fmt.Fprintf(&buf, "Mode: %s\n", s.Mode)
	fmt.Fprintf(&buf, "State: %s\n", state)
	if s.CurrentTrack != nil {
		fmt.Fprintf(&buf, "Track: %s\n", TrackLine(*s.CurrentTrack))
		if s.CurrentTrack.Album != "" {
			fmt.Fprintf(&buf, "Album: %s\n", s.CurrentTrack.Album)
		}
		fmt.Fprintf(&buf, "Progress: %s / %s\n", FormatDuration(s.ProgressMs), FormatDuration(s.DurationMs))
	}
	if s.DeviceID != "" {
		fmt.Fprintf(&buf, "Device: %s\n", s.DeviceID)
	}
	fmt.Fprintf(&buf, "Volume: %d%%\n", int(s.Volume*100+0.5))
	fmt.Fprintf(&buf, "Shuffle: %s\n", onOff(s.Shuffled))
	fmt.Fprintf(&buf, "Repeat: %s\n", s.RepeatMode)

	if len(s.Queue) > 0 {
		fmt.Fprintf(&buf, "\nQueue (%d):\n", len(s.Queue))
		for i, t := range s.Queue {
			fmt.Fprintf(&buf, "%d. %s\n", i+1, TrackLine(t))
		}
	}

	return buf.String()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
