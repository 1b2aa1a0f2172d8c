package models

import (
	"testing"
	"time"
)

func TestTokenRecord(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	margin := 5 * time.Minute

	tc := []struct {
		name   string
		record TokenRecord
		want   bool
	}{
		{name: "well before margin", record: TokenRecord{AccessToken: "a", ExpiresAt: now.Add(time.Hour)}, want: true},
		{name: "inside margin", record: TokenRecord{AccessToken: "a", ExpiresAt: now.Add(4 * time.Minute)}, want: false},
		{name: "exactly at margin", record: TokenRecord{AccessToken: "a", ExpiresAt: now.Add(margin)}, want: false},
		{name: "expired", record: TokenRecord{AccessToken: "a", ExpiresAt: now.Add(-time.Minute)}, want: false},
		{name: "empty token", record: TokenRecord{ExpiresAt: now.Add(time.Hour)}, want: false},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.record.UsableAt(now, margin); got != tt.want {
				t.Errorf("UsableAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRepeatMode(t *testing.T) {
	t.Run("Parse", func(t *testing.T) {
		for _, s := range []string{"off", "track", "context"} {
			if _, err := ParseRepeatMode(s); err != nil {
				t.Errorf("ParseRepeatMode(%q) unexpected error: %v", s, err)
			}
		}
		if _, err := ParseRepeatMode("all"); err == nil {
			t.Error("expected error for unknown mode")
		}
	})

	t.Run("Next cycles", func(t *testing.T) {
		m := RepeatOff
		seen := []RepeatMode{m}
		for range 3 {
			m = m.Next()
			seen = append(seen, m)
		}
		want := []RepeatMode{RepeatOff, RepeatContext, RepeatTrack, RepeatOff}
		for i := range want {
			if seen[i] != want[i] {
				t.Fatalf("cycle = %v, want %v", seen, want)
			}
		}
	})
}

func TestSession(t *testing.T) {
	t.Run("NewSession starts in browse", func(t *testing.T) {
		s := NewSession()
		if s.Mode != ModeBrowse {
			t.Errorf("expected browse mode, got %s", s.Mode)
		}
		if s.IsPlaying || s.CurrentTrack != nil || s.DeviceID != "" {
			t.Error("expected idle session")
		}
	})

	t.Run("Clone is deep", func(t *testing.T) {
		track := Track{ID: "1", URI: "spotify:track:1", Artists: []string{"A"}}
		s := NewSession()
		s.CurrentTrack = &track
		s.Queue = []Track{{ID: "2", Artists: []string{"B"}}}

		c := s.Clone()
		c.CurrentTrack.Name = "changed"
		c.CurrentTrack.Artists[0] = "Z"
		c.Queue[0].Artists[0] = "Y"
		c.Queue = append(c.Queue, Track{ID: "3"})

		if s.CurrentTrack.Name != "" || s.CurrentTrack.Artists[0] != "A" {
			t.Error("clone aliased current track")
		}
		if s.Queue[0].Artists[0] != "B" || len(s.Queue) != 1 {
			t.Error("clone aliased queue")
		}
	})
}

func TestTrack(t *testing.T) {
	if err := (Track{Name: "x"}).Validate(); err == nil {
		t.Error("expected error for track without uri")
	}
	if got := (Track{Artists: []string{"A", "B"}}).Artist(); got != "A" {
		t.Errorf("Artist() = %q, want A", got)
	}
	if got := (Track{}).Artist(); got != "" {
		t.Errorf("Artist() = %q, want empty", got)
	}
}
