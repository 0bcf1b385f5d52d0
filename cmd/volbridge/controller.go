package main

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// AudioResult is the observable device state after a command was applied.
type AudioResult struct {
	Percent VolumePercent `json:"percent"`
	Decibel float64       `json:"decibel"`
	Muted   bool          `json:"muted"`
}

// AudioController applies AudioCommands to an AudioDevice.
//
// Rules:
//   - Apply calls are serialized; a ToggleMute read-modify-write never
//     interleaves with another command.
//   - Mute state is never cached; every mute decision re-reads the device.
//   - OSD feedback fires for SetVolume only and its failures are swallowed.
type AudioController struct {
	mu sync.Mutex

	dev    AudioDevice
	keys   KeySimulator // optional
	osdGap time.Duration
	rng    VolumeRange
	logger *slog.Logger
}

// NewAudioController queries the device range once and returns a controller
// bound to dev. keys may be nil.
func NewAudioController(dev AudioDevice, keys KeySimulator, osdGap time.Duration, logger *slog.Logger) (*AudioController, error) {
	if dev == nil {
		return nil, &AudioError{Kind: DeviceUnavailable, Op: "open device", Err: errNoDevice{}}
	}
	if logger == nil {
		logger = slog.Default()
	}
	rng, err := dev.GetVolumeRange()
	if err != nil {
		return nil, newAudioError("get volume range", err)
	}
	return &AudioController{
		dev:    dev,
		keys:   keys,
		osdGap: osdGap,
		rng:    rng,
		logger: logger,
	}, nil
}

// Range returns the session's volume range.
func (c *AudioController) Range() VolumeRange { return c.rng }

// Tolerance is the read-back tolerance in percent points for this device.
func (c *AudioController) Tolerance() int { return c.rng.TolerancePercent() }

// Apply executes cmd against the device and reports the resulting state.
// Device failures are returned as *AudioError.
func (c *AudioController) Apply(cmd AudioCommand) (AudioResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch cmd := cmd.(type) {
	case SetVolume:
		target := ClampPercent(int(cmd.Percent)).Scalar()
		if err := c.dev.SetVolumeScalar(target); err != nil {
			return AudioResult{}, newAudioError("set volume", err)
		}
		c.nudgeOSD(target)

	case Mute:
		if err := c.dev.SetMute(true); err != nil {
			return AudioResult{}, newAudioError("set mute", err)
		}

	case Unmute:
		if err := c.dev.SetMute(false); err != nil {
			return AudioResult{}, newAudioError("set mute", err)
		}

	case ToggleMute:
		current, err := c.dev.GetMute()
		if err != nil {
			return AudioResult{}, newAudioError("get mute", err)
		}
		if err := c.dev.SetMute(!current); err != nil {
			return AudioResult{}, newAudioError("set mute", err)
		}

	default:
		return AudioResult{}, errUnknownCommand{cmd: cmd}
	}

	return c.readState()
}

// State reads the current device state without changing it.
func (c *AudioController) State() (AudioResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readState()
}

// readState must be called with c.mu held.
func (c *AudioController) readState() (AudioResult, error) {
	scalar, err := c.dev.GetVolumeScalar()
	if err != nil {
		return AudioResult{}, newAudioError("get volume", err)
	}
	db, err := c.dev.GetVolumeDecibel()
	if err != nil {
		return AudioResult{}, newAudioError("get volume decibel", err)
	}
	muted, err := c.dev.GetMute()
	if err != nil {
		return AudioResult{}, newAudioError("get mute", err)
	}
	return AudioResult{Percent: scalar.Percent(), Decibel: db, Muted: muted}, nil
}

// nudgeOSD fires two offsetting volume key events so the host shows its
// volume indicator. Net audio effect is zero: if the pair is cut short after
// a press went through, target is written again. Failures are logged only.
// Must be called with c.mu held.
func (c *AudioController) nudgeOSD(target VolumeScalar) {
	if c.keys == nil {
		return
	}
	current, err := c.dev.GetVolumeScalar()
	if err != nil {
		c.logger.Debug("osd skipped: volume read failed", "error", err)
		return
	}
	for i, dir := range osdSequence(current) {
		if i > 0 && c.osdGap > 0 {
			time.Sleep(c.osdGap)
		}
		if err := c.keys.PressKey(dir); err != nil {
			c.logger.Debug("osd key press failed", "key", dir.String(), "error", err)
			if i > 0 {
				if err := c.dev.SetVolumeScalar(target); err != nil {
					c.logger.Warn("osd restore failed", "error", err)
				}
			}
			return
		}
	}
	// Key events are handled asynchronously by the desktop; let the second
	// one land before the read-back.
	if c.osdGap > 0 {
		time.Sleep(c.osdGap)
	}
}

// osdSequence picks the nudge order so some transition is always visible:
// down-then-up above the midpoint, up-then-down at or below it.
func osdSequence(current VolumeScalar) [2]KeyDirection {
	if current > osdMidpoint {
		return [2]KeyDirection{KeyVolumeDown, KeyVolumeUp}
	}
	return [2]KeyDirection{KeyVolumeUp, KeyVolumeDown}
}

// errNoDevice indicates a controller was requested without a device.
type errNoDevice struct{}

func (errNoDevice) Error() string { return "no audio device" }

// String renders a result the way the log lines show it.
func (r AudioResult) String() string {
	return fmt.Sprintf("%d%% / %.2f dB muted=%v", r.Percent, r.Decibel, r.Muted)
}
