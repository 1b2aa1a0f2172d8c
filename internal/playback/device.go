package playback

import (
	"context"
	"errors"

	"github.com/desertthunder/cadence/internal/models"
	"github.com/desertthunder/cadence/internal/shared"
)

// CheckDevice is the explicit device check. It resolves an output device, activating one if needed,
// and on success promotes the session to play mode and re-arms the one-time premium message.
// A failed check leaves the session in browse mode. A check overtaken by [Engine.Reset] is discarded.
func (e *Engine) CheckDevice(ctx context.Context) (string, error) {
	const intent = "check_device"

	e.mu.Lock()
	resets := e.resets
	e.mu.Unlock()

	token, err := e.tokens.GetValidToken(ctx)
	if err != nil {
		e.downgrade()
		return "", e.record(intent, err)
	}

	deviceID, err := e.ensureActiveDevice(ctx, intent, token)
	if err != nil {
		e.mu.Lock()
		if e.resets == resets {
			e.session.DeviceID = ""
		}
		e.mu.Unlock()
		e.downgrade()
		return "", e.record(intent, err)
	}

	e.mu.Lock()
	if e.resets != resets {
		e.mu.Unlock()
		e.logger.Debug("discarding device check after reset", "device_id", deviceID)
		return "", e.record(intent, newError(intent, KindBrowseMode, shared.ErrNoSession))
	}
	if e.session.Mode != models.ModePlay {
		e.metrics.RecordModeTransition(string(models.ModePlay))
	}
	e.session.Mode = models.ModePlay
	e.session.DeviceID = deviceID
	e.premiumNotified = false
	e.mu.Unlock()

	e.logger.Info("device ready", "device_id", deviceID)
	return deviceID, e.record(intent, nil)
}

// Devices lists output devices for display. It does not change the session.
func (e *Engine) Devices(ctx context.Context) ([]models.Device, error) {
	token, err := e.tokens.GetValidToken(ctx)
	if err != nil {
		e.downgrade()
		return nil, err
	}
	devices, err := e.music.Devices(ctx, token)
	if err != nil {
		return nil, e.fail("devices", err)
	}
	return devices, nil
}

// ensureActiveDevice returns the id of an active device. With none active, the first listed device
// is activated and given time to settle. An empty list or a failed activation surfaces guidance.
func (e *Engine) ensureActiveDevice(ctx context.Context, intent, token string) (string, error) {
	devices, err := e.music.Devices(ctx, token)
	if err != nil {
		return "", e.fail(intent, err)
	}

	if len(devices) == 0 {
		e.notifier.Notify(models.Guidance{Kind: models.GuidanceNoDevice, Message: msgNoDevice})
		return "", newError(intent, KindNoDevice, nil)
	}

	for _, d := range devices {
		if d.IsActive {
			return d.ID, nil
		}
	}

	target := devices[0]
	e.logger.Info("activating device", "device_id", target.ID, "name", target.Name)
	if err := e.music.Transfer(ctx, token, target.ID, false); err != nil {
		if errors.Is(err, shared.ErrPremiumRequired) {
			return "", e.fail(intent, err)
		}
		e.notifier.Notify(models.Guidance{Kind: models.GuidanceActivationFailed, Message: msgActivationFailed})
		return "", newError(intent, KindDeviceActivationFailed, err)
	}

	if err := e.settle(ctx, token, target.ID); err != nil {
		return "", newError(intent, KindDeviceActivationFailed, err)
	}
	return target.ID, nil
}

// settle waits the fixed settle delay and, when confirmation is enabled, polls until deviceID reports
// active or the maximum wait elapses. An unconfirmed device is still returned to the caller.
func (e *Engine) settle(ctx context.Context, token, deviceID string) error {
	if err := e.clock.Sleep(ctx, e.settleDelay); err != nil {
		return err
	}
	if !e.confirmActivation {
		return nil
	}

	deadline := e.clock.Now().Add(e.maxSettleWait)
	for {
		devices, err := e.music.Devices(ctx, token)
		if err == nil && isActive(devices, deviceID) {
			return nil
		}
		if !e.clock.Now().Before(deadline) {
			e.logger.Warn("device not confirmed active", "device_id", deviceID, "waited", e.maxSettleWait)
			return nil
		}
		if err := e.clock.Sleep(ctx, e.settleDelay); err != nil {
			return err
		}
	}
}

func isActive(devices []models.Device, id string) bool {
	for _, d := range devices {
		if d.ID == id && d.IsActive {
			return true
		}
	}
	return false
}
