package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/cadence/internal/formatter"
	"github.com/desertthunder/cadence/internal/models"
	"github.com/desertthunder/cadence/internal/shared"
)

// prepare brings a fresh process into play mode and mirrors the remote state, so that
// toggles and relative seeks start from what the device is actually doing.
func (r *Runner) prepare(ctx context.Context) error {
	if err := r.wire(ctx); err != nil {
		return err
	}
	if _, err := r.engine.CheckDevice(ctx); err != nil {
		r.flushGuidance()
		return err
	}
	if err := r.engine.Sync(ctx); err != nil {
		r.logger.Warn("failed to sync playback state", "err", err)
	}
	return nil
}

// runIntent prepares the session, runs fn and prints the outcome.
func (r *Runner) runIntent(ctx context.Context, done string, fn func(context.Context) error) error {
	if err := r.prepare(ctx); err != nil {
		return err
	}
	err := fn(ctx)
	r.flushGuidance()
	if err != nil {
		return err
	}
	return r.writePlain("✓ %s\n", done)
}

// Devices lists available output devices.
func (r *Runner) Devices(ctx context.Context, cmd *cli.Command) error {
	if err := r.wire(ctx); err != nil {
		return err
	}

	devices, err := r.engine.Devices(ctx)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	switch {
	case cmd.Bool("json"):
		return r.writeJSON(devices, true)
	case cmd.Bool("csv"):
		data, err := formatter.DevicesToCSV(devices)
		if err != nil {
			return err
		}
		_, err = r.output.Write(data)
		return err
	}

	if len(devices) == 0 {
		return r.writePlain("No devices found. Open the Music Service app on a phone, computer or speaker.\n")
	}
	formatter.WriteDevicesTable(r.output, devices)
	return nil
}

// PlayerActivate runs the explicit device check.
func (r *Runner) PlayerActivate(ctx context.Context, cmd *cli.Command) error {
	if err := r.wire(ctx); err != nil {
		return err
	}

	deviceID, err := r.engine.CheckDevice(ctx)
	r.flushGuidance()
	if err != nil {
		return err
	}
	return r.writePlain("✓ Device ready (%s)\n", deviceID)
}

// PlayerPlay starts the given URIs as a new queue, or the current track when none are given.
func (r *Runner) PlayerPlay(ctx context.Context, cmd *cli.Command) error {
	uris := cmd.Args().Slice()

	var queue []models.Track
	for _, uri := range uris {
		if !strings.Contains(uri, ":") {
			return fmt.Errorf("%w: %q is not a track uri", shared.ErrInvalidArgument, uri)
		}
		queue = append(queue, models.Track{URI: uri})
	}

	var track *models.Track
	return r.runIntent(ctx, "Playing", func(ctx context.Context) error {
		if queue == nil {
			current := r.engine.Snapshot().CurrentTrack
			if current == nil {
				return fmt.Errorf("%w: pass a track uri", shared.ErrMissingArgument)
			}
			track = current
		}
		return r.engine.Play(ctx, track, queue)
	})
}

func (r *Runner) PlayerPause(ctx context.Context, cmd *cli.Command) error {
	return r.runIntent(ctx, "Paused", func(ctx context.Context) error { return r.engine.Pause(ctx) })
}

func (r *Runner) PlayerResume(ctx context.Context, cmd *cli.Command) error {
	return r.runIntent(ctx, "Resumed", func(ctx context.Context) error { return r.engine.Resume(ctx) })
}

func (r *Runner) PlayerNext(ctx context.Context, cmd *cli.Command) error {
	return r.runIntent(ctx, "Skipped", func(ctx context.Context) error { return r.engine.Next(ctx) })
}

func (r *Runner) PlayerPrevious(ctx context.Context, cmd *cli.Command) error {
	return r.runIntent(ctx, "Went back", func(ctx context.Context) error { return r.engine.Previous(ctx) })
}

// PlayerSeek seeks to an absolute position given as seconds or m:ss.
func (r *Runner) PlayerSeek(ctx context.Context, cmd *cli.Command) error {
	ms, err := parsePosition(cmd.StringArg("position"))
	if err != nil {
		return err
	}
	return r.runIntent(ctx, "Seeked to "+formatter.FormatDuration(ms), func(ctx context.Context) error {
		return r.engine.Seek(ctx, ms)
	})
}

func (r *Runner) PlayerShuffle(ctx context.Context, cmd *cli.Command) error {
	return r.runIntent(ctx, "Shuffle toggled", func(ctx context.Context) error {
		return r.engine.ToggleShuffle(ctx)
	})
}

func (r *Runner) PlayerRepeat(ctx context.Context, cmd *cli.Command) error {
	arg := cmd.StringArg("mode")
	if arg == "" {
		return fmt.Errorf("%w: repeat mode (off, track or context)", shared.ErrMissingArgument)
	}
	mode, err := models.ParseRepeatMode(arg)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	return r.runIntent(ctx, "Repeat "+string(mode), func(ctx context.Context) error {
		return r.engine.SetRepeatMode(ctx, mode)
	})
}

// PlayerVolume sets the volume from a 0-100 percentage.
func (r *Runner) PlayerVolume(ctx context.Context, cmd *cli.Command) error {
	arg := cmd.StringArg("percent")
	if arg == "" {
		return fmt.Errorf("%w: volume percent", shared.ErrMissingArgument)
	}
	pct, err := strconv.Atoi(strings.TrimSuffix(arg, "%"))
	if err != nil || pct < 0 || pct > 100 {
		return fmt.Errorf("%w: volume must be between 0 and 100, got %q", shared.ErrInvalidArgument, arg)
	}
	return r.runIntent(ctx, fmt.Sprintf("Volume %d%%", pct), func(ctx context.Context) error {
		return r.engine.SetVolume(ctx, float64(pct)/100)
	})
}

// PlayerStatus prints the mirrored playback state.
func (r *Runner) PlayerStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.wire(ctx); err != nil {
		return err
	}
	if err := r.engine.Sync(ctx); err != nil {
		return fmt.Errorf("failed to read playback state: %w", err)
	}

	session := r.engine.Snapshot()
	if cmd.Bool("json") {
		return r.writeJSON(session, true)
	}
	return r.writePlain("%s", formatter.SessionText(session))
}

// parsePosition accepts "90" or "1:30".
func parsePosition(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: seek position", shared.ErrMissingArgument)
	}

	invalid := fmt.Errorf("%w: position must be seconds or m:ss, got %q", shared.ErrInvalidArgument, s)
	minutes, seconds := "0", s
	if m, sec, ok := strings.Cut(s, ":"); ok {
		minutes, seconds = m, sec
		if len(sec) != 2 {
			return 0, invalid
		}
	}

	m, err := strconv.Atoi(minutes)
	if err != nil || m < 0 {
		return 0, invalid
	}
	sec, err := strconv.Atoi(seconds)
	if err != nil || sec < 0 {
		return 0, invalid
	}
	return (m*60 + sec) * 1000, nil
}
