package playback

import (
	"context"
	"fmt"
	"math"

	"github.com/desertthunder/cadence/internal/models"
	"github.com/desertthunder/cadence/internal/shared"
)

// Play starts a track on the active device, activating one first if needed.
//
// The track is the explicit argument, else the head of queue, else the head of the session queue.
// The session queue is consulted only when queue is nil, and replaced only when queue is non-nil.
func (e *Engine) Play(ctx context.Context, track *models.Track, queue []models.Track) error {
	const intent = "play"

	token, seq, err := e.begin(ctx, intent)
	if err != nil {
		return e.record(intent, err)
	}

	target, ok := e.resolveTrack(track, queue)
	if !ok {
		return e.record(intent, newError(intent, KindNothingToPlay, nil))
	}
	if err := target.Validate(); err != nil {
		return e.record(intent, newError(intent, KindNothingToPlay, err))
	}

	deviceID, err := e.ensureActiveDevice(ctx, intent, token)
	if err != nil {
		return e.record(intent, err)
	}

	if err := e.music.Play(ctx, token, deviceID, []string{target.URI}); err != nil {
		return e.record(intent, e.fail(intent, err))
	}

	var replacement []models.Track
	if queue != nil {
		replacement = make([]models.Track, len(queue))
		for i, t := range queue {
			replacement[i] = t.Clone()
		}
	}

	err = e.commit(intent, seq, func(s *models.Session) {
		s.CurrentTrack = &target
		s.IsPlaying = true
		s.DeviceID = deviceID
		s.ProgressMs = 0
		s.DurationMs = target.DurationMs
		if queue != nil {
			s.Queue = replacement
		}
	})
	return e.record(intent, err)
}

func (e *Engine) resolveTrack(track *models.Track, queue []models.Track) (models.Track, bool) {
	switch {
	case track != nil:
		return track.Clone(), true
	case len(queue) > 0:
		return queue[0].Clone(), true
	case queue != nil:
		return models.Track{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.session.Queue) > 0 {
		return e.session.Queue[0].Clone(), true
	}
	return models.Track{}, false
}

// Pause pauses playback. It is a no-op when already paused.
func (e *Engine) Pause(ctx context.Context) error {
	const intent = "pause"

	snap := e.peek()
	if snap.Mode != models.ModePlay {
		return e.record(intent, newError(intent, KindBrowseMode, nil))
	}
	if !snap.IsPlaying {
		return e.record(intent, nil)
	}

	token, seq, err := e.begin(ctx, intent)
	if err != nil {
		return e.record(intent, err)
	}
	if err := e.music.Pause(ctx, token, snap.DeviceID); err != nil {
		return e.record(intent, e.fail(intent, err))
	}
	return e.record(intent, e.commit(intent, seq, func(s *models.Session) { s.IsPlaying = false }))
}

// Resume continues playback on an active device. It is a no-op when already playing.
func (e *Engine) Resume(ctx context.Context) error {
	const intent = "resume"

	snap := e.peek()
	if snap.Mode != models.ModePlay {
		return e.record(intent, newError(intent, KindBrowseMode, nil))
	}
	if snap.IsPlaying {
		return e.record(intent, nil)
	}

	token, seq, err := e.begin(ctx, intent)
	if err != nil {
		return e.record(intent, err)
	}
	deviceID, err := e.ensureActiveDevice(ctx, intent, token)
	if err != nil {
		return e.record(intent, err)
	}
	if err := e.music.Resume(ctx, token, deviceID); err != nil {
		return e.record(intent, e.fail(intent, err))
	}
	return e.record(intent, e.commit(intent, seq, func(s *models.Session) {
		s.IsPlaying = true
		s.DeviceID = deviceID
	}))
}

// Next skips forward, then reconciles from the currently playing item.
func (e *Engine) Next(ctx context.Context) error {
	const intent = "next"

	token, seq, err := e.begin(ctx, intent)
	if err != nil {
		return e.record(intent, err)
	}
	if err := e.music.Next(ctx, token, e.peek().DeviceID); err != nil {
		return e.record(intent, e.fail(intent, err))
	}
	return e.record(intent, e.reconcile(ctx, intent, token, seq))
}

// Previous restarts the current track when its progress is past [RestartThresholdMs], otherwise skips
// back and reconciles.
func (e *Engine) Previous(ctx context.Context) error {
	const intent = "previous"

	token, seq, err := e.begin(ctx, intent)
	if err != nil {
		return e.record(intent, err)
	}

	snap := e.peek()
	if snap.ProgressMs > RestartThresholdMs {
		if err := e.music.Seek(ctx, token, snap.DeviceID, 0); err != nil {
			return e.record(intent, e.fail(intent, err))
		}
		return e.record(intent, e.commit(intent, seq, func(s *models.Session) { s.ProgressMs = 0 }))
	}

	if err := e.music.Previous(ctx, token, snap.DeviceID); err != nil {
		return e.record(intent, e.fail(intent, err))
	}
	return e.record(intent, e.reconcile(ctx, intent, token, seq))
}

// reconcile overwrites the track and progress from the currently playing item. A failed read keeps
// the previous state since the skip itself succeeded.
func (e *Engine) reconcile(ctx context.Context, intent, token string, seq uint64) error {
	state, err := e.music.CurrentlyPlaying(ctx, token)
	if err != nil {
		e.logger.Warn("reconcile failed", "intent", intent, "err", err)
		return nil
	}

	return e.commit(intent, seq, func(s *models.Session) {
		if state == nil {
			s.IsPlaying = false
			s.CurrentTrack = nil
			s.ProgressMs = 0
			s.DurationMs = 0
			return
		}
		s.IsPlaying = state.IsPlaying
		s.CurrentTrack = state.Track
		s.ProgressMs = state.ProgressMs
		s.DurationMs = 0
		if state.Track != nil {
			s.DurationMs = state.Track.DurationMs
		}
	})
}

// Seek moves playback to positionMs, clamped to the track. Requires a current track.
func (e *Engine) Seek(ctx context.Context, positionMs int) error {
	const intent = "seek"

	snap := e.peek()
	if snap.Mode != models.ModePlay {
		return e.record(intent, newError(intent, KindBrowseMode, nil))
	}
	if snap.CurrentTrack == nil {
		return e.record(intent, newError(intent, KindNotPlaying, nil))
	}

	positionMs = max(positionMs, 0)
	if snap.DurationMs > 0 {
		positionMs = min(positionMs, snap.DurationMs)
	}

	token, seq, err := e.begin(ctx, intent)
	if err != nil {
		return e.record(intent, err)
	}
	if err := e.music.Seek(ctx, token, snap.DeviceID, positionMs); err != nil {
		return e.record(intent, e.fail(intent, err))
	}
	return e.record(intent, e.commit(intent, seq, func(s *models.Session) { s.ProgressMs = positionMs }))
}

// ToggleShuffle flips shuffle and sets the field optimistically.
func (e *Engine) ToggleShuffle(ctx context.Context) error {
	const intent = "shuffle"

	token, seq, err := e.begin(ctx, intent)
	if err != nil {
		return e.record(intent, err)
	}

	snap := e.peek()
	target := !snap.Shuffled
	if err := e.music.SetShuffle(ctx, token, snap.DeviceID, target); err != nil {
		return e.record(intent, e.fail(intent, err))
	}
	return e.record(intent, e.commit(intent, seq, func(s *models.Session) { s.Shuffled = target }))
}

// SetRepeatMode sets the repeat mode optimistically.
func (e *Engine) SetRepeatMode(ctx context.Context, mode models.RepeatMode) error {
	const intent = "repeat"

	if _, err := models.ParseRepeatMode(string(mode)); err != nil {
		return e.record(intent, newError(intent, KindRequest, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)))
	}

	token, seq, err := e.begin(ctx, intent)
	if err != nil {
		return e.record(intent, err)
	}
	if err := e.music.SetRepeat(ctx, token, e.peek().DeviceID, mode); err != nil {
		return e.record(intent, e.fail(intent, err))
	}
	return e.record(intent, e.commit(intent, seq, func(s *models.Session) { s.RepeatMode = mode }))
}

// SetVolume sets the volume from v in [0,1]; the Music Service receives round(v×100).
func (e *Engine) SetVolume(ctx context.Context, v float64) error {
	const intent = "volume"

	if math.IsNaN(v) || v < 0 || v > 1 {
		return e.record(intent, newError(intent, KindRequest, fmt.Errorf("%w: volume %v outside [0,1]", shared.ErrInvalidArgument, v)))
	}

	token, seq, err := e.begin(ctx, intent)
	if err != nil {
		return e.record(intent, err)
	}
	if err := e.music.SetVolume(ctx, token, e.peek().DeviceID, int(math.Round(v*100))); err != nil {
		return e.record(intent, e.fail(intent, err))
	}
	return e.record(intent, e.commit(intent, seq, func(s *models.Session) { s.Volume = v }))
}

// AddToQueue appends track to the local queue.
func (e *Engine) AddToQueue(track models.Track) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Queue = append(e.session.Queue, track.Clone())
}

// ClearQueue empties the local queue.
func (e *Engine) ClearQueue() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Queue = nil
}

// Sync overwrites the session from the remote playback state, keeping the local queue and mode.
// It does not require play mode.
func (e *Engine) Sync(ctx context.Context) error {
	const intent = "sync"

	e.mu.Lock()
	resets := e.resets
	e.mu.Unlock()

	token, err := e.tokens.GetValidToken(ctx)
	if err != nil {
		e.downgrade()
		return e.record(intent, err)
	}

	state, err := e.music.PlayerState(ctx, token)
	if err != nil {
		return e.record(intent, e.fail(intent, err))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.resets != resets {
		return e.record(intent, nil)
	}

	s := &e.session
	if state == nil {
		s.IsPlaying = false
		s.CurrentTrack = nil
		s.ProgressMs = 0
		s.DurationMs = 0
		return e.record(intent, nil)
	}

	s.IsPlaying = state.IsPlaying
	s.CurrentTrack = state.Track
	s.ProgressMs = state.ProgressMs
	s.DurationMs = 0
	if state.Track != nil {
		s.DurationMs = state.Track.DurationMs
	}
	s.Shuffled = state.ShuffleState
	s.RepeatMode = state.RepeatState
	if state.Device != nil {
		s.DeviceID = state.Device.ID
		s.Volume = float64(state.Device.VolumePercent) / 100
	}
	return e.record(intent, nil)
}
