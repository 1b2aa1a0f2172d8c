package formatter

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/desertthunder/cadence/internal/models"
)

var devices = []models.Device{
	{ID: "dev-1", Name: "Kitchen", Type: "Speaker", IsActive: true, VolumePercent: 40},
	{ID: "dev-2", Name: "Phone, Work", Type: "Smartphone", IsRestricted: true, VolumePercent: 100},
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   int
		want string
	}{
		{0, "0:00"},
		{999, "0:00"},
		{61_000, "1:01"},
		{180_000, "3:00"},
		{3_725_000, "62:05"},
		{-5, "0:00"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.ms); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestDevices(t *testing.T) {
	color.NoColor = true

	t.Run("WriteDevicesTable", func(t *testing.T) {
		var buf bytes.Buffer
		WriteDevicesTable(&buf, devices)
		output := buf.String()

		for _, want := range []string{"Kitchen", "dev-1", "● Active", "Inactive (restricted)", "40%", "TOTAL"} {
			if !strings.Contains(output, want) {
				t.Errorf("table missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("DevicesToCSV", func(t *testing.T) {
		data, err := DevicesToCSV(devices)
		if err != nil {
			t.Fatalf("DevicesToCSV failed: %v", err)
		}

		records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
		if err != nil {
			t.Fatalf("output is not valid CSV: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("expected header + 2 rows, got %d", len(records))
		}
		if strings.Join(records[0], ",") != "ID,Name,Type,Active,Restricted,Volume" {
			t.Errorf("unexpected header: %v", records[0])
		}
		if records[2][1] != "Phone, Work" {
			t.Errorf("comma in name should round-trip, got %q", records[2][1])
		}
		if records[1][3] != "true" || records[2][4] != "true" {
			t.Errorf("unexpected flags: %v %v", records[1], records[2])
		}
	})

	t.Run("EmptyCSV", func(t *testing.T) {
		data, err := DevicesToCSV(nil)
		if err != nil {
			t.Fatalf("DevicesToCSV failed: %v", err)
		}
		if strings.Count(string(data), "\n") != 1 {
			t.Errorf("expected only the header, got %q", data)
		}
	})
}

func TestSessionText(t *testing.T) {
	t.Run("Stopped", func(t *testing.T) {
		output := SessionText(models.NewSession())

		for _, want := range []string{"Mode: browse", "State: Stopped", "Volume: 100%", "Shuffle: off", "Repeat: off"} {
			if !strings.Contains(output, want) {
				t.Errorf("missing %q, got:\n%s", want, output)
			}
		}
		if strings.Contains(output, "Track:") {
			t.Error("stopped session should not render a track")
		}
	})

	t.Run("Playing", func(t *testing.T) {
		s := models.NewSession()
		s.Mode = models.ModePlay
		s.IsPlaying = true
		s.CurrentTrack = &models.Track{Name: "Song One", Artists: []string{"A", "B"}, Album: "LP", DurationMs: 180_000}
		s.ProgressMs = 61_000
		s.DurationMs = 180_000
		s.DeviceID = "dev-1"
		s.Volume = 0.33
		s.Shuffled = true
		s.RepeatMode = models.RepeatContext
		s.Queue = []models.Track{{Name: "Next Up"}}

		output := SessionText(s)

		for _, want := range []string{
			"Mode: play",
			"State: Playing",
			"Track: A, B - Song One",
			"Album: LP",
			"Progress: 1:01 / 3:00",
			"Device: dev-1",
			"Volume: 33%",
			"Shuffle: on",
			"Repeat: context",
			"Queue (1):",
			"1. Next Up",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("missing %q, got:\n%s", want, output)
			}
		}
	})
}
