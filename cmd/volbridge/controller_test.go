package main

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T, dev AudioDevice, keys KeySimulator) *AudioController {
	t.Helper()
	ctrl, err := NewAudioController(dev, keys, 0, testLogger())
	require.NoError(t, err)
	return ctrl
}

func TestAudioController_SetVolume_ReadsBack(t *testing.T) {
	dev := newFakeDevice(0.3)
	ctrl := newTestController(t, dev, nil)

	res, err := ctrl.Apply(SetVolume{Percent: 42})
	require.NoError(t, err)
	assert.Equal(t, VolumePercent(42), res.Percent)
	assert.False(t, res.Muted)
	assert.InDelta(t, dev.rng.scalarToDB(0.42), res.Decibel, 0.05)
}

func TestAudioController_SetVolume_Idempotent(t *testing.T) {
	ctrl := newTestController(t, newFakeDevice(0.1), nil)

	first, err := ctrl.Apply(SetVolume{Percent: 50})
	require.NoError(t, err)
	second, err := ctrl.Apply(SetVolume{Percent: 50})
	require.NoError(t, err)

	assert.InDelta(t, int(first.Percent), int(second.Percent), float64(ctrl.Tolerance()))
	assert.Equal(t, first.Muted, second.Muted)
}

func TestAudioController_MuteUnmute(t *testing.T) {
	dev := newFakeDevice(0.5)
	ctrl := newTestController(t, dev, nil)

	res, err := ctrl.Apply(Mute{})
	require.NoError(t, err)
	assert.True(t, res.Muted)

	// Mute is literal, not a toggle.
	res, err = ctrl.Apply(Mute{})
	require.NoError(t, err)
	assert.True(t, res.Muted)

	res, err = ctrl.Apply(Unmute{})
	require.NoError(t, err)
	assert.False(t, res.Muted)
	assert.Equal(t, VolumePercent(50), res.Percent, "mute must not change the volume")
}

func TestAudioController_ToggleTwiceRestores(t *testing.T) {
	for _, initial := range []bool{false, true} {
		t.Run(fmt.Sprintf("initial=%v", initial), func(t *testing.T) {
			dev := newFakeDevice(0.5)
			require.NoError(t, dev.memoryDevice.SetMute(initial))
			ctrl := newTestController(t, dev, nil)

			res, err := ctrl.Apply(ToggleMute{})
			require.NoError(t, err)
			assert.Equal(t, !initial, res.Muted)

			res, err = ctrl.Apply(ToggleMute{})
			require.NoError(t, err)
			assert.Equal(t, initial, res.Muted)
		})
	}
}

func TestAudioController_ToggleReadsFreshState(t *testing.T) {
	dev := newFakeDevice(0.5)
	ctrl := newTestController(t, dev, nil)

	// Someone else mutes the device behind the controller's back.
	require.NoError(t, dev.memoryDevice.SetMute(true))

	res, err := ctrl.Apply(ToggleMute{})
	require.NoError(t, err)
	assert.False(t, res.Muted)
}

func TestAudioController_ConcurrentTogglesSerialize(t *testing.T) {
	dev := newFakeDevice(0.5)
	ctrl := newTestController(t, dev, nil)

	const n = 50 // even
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ctrl.Apply(ToggleMute{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	muted, err := dev.GetMute()
	require.NoError(t, err)
	assert.False(t, muted, "an even number of serialized toggles must restore the state")
}

func TestAudioController_OSD_OnlyForSetVolume(t *testing.T) {
	keys := &recordingKeys{}
	ctrl := newTestController(t, newFakeDevice(0.2), keys)

	for _, cmd := range []AudioCommand{Mute{}, Unmute{}, ToggleMute{}, ToggleMute{}} {
		_, err := ctrl.Apply(cmd)
		require.NoError(t, err)
	}
	assert.Empty(t, keys.pressed())

	_, err := ctrl.Apply(SetVolume{Percent: 30})
	require.NoError(t, err)
	assert.Len(t, keys.pressed(), 2)

	_, err = ctrl.Apply(SetVolume{Percent: 30})
	require.NoError(t, err)
	assert.Len(t, keys.pressed(), 4, "OSD fires on every SetVolume")
}

func TestAudioController_OSD_Direction(t *testing.T) {
	keys := &recordingKeys{}
	ctrl := newTestController(t, newFakeDevice(0.2), keys)

	_, err := ctrl.Apply(SetVolume{Percent: 80})
	require.NoError(t, err)
	_, err = ctrl.Apply(SetVolume{Percent: 20})
	require.NoError(t, err)
	_, err = ctrl.Apply(SetVolume{Percent: 50})
	require.NoError(t, err)

	assert.Equal(t, []KeyDirection{
		KeyVolumeDown, KeyVolumeUp, // above midpoint
		KeyVolumeUp, KeyVolumeDown, // below
		KeyVolumeUp, KeyVolumeDown, // exactly at midpoint
	}, keys.pressed())
}

func TestAudioController_OSD_FailureIsSwallowed(t *testing.T) {
	keys := &recordingKeys{err: errBoom}
	ctrl := newTestController(t, newFakeDevice(0.2), keys)

	res, err := ctrl.Apply(SetVolume{Percent: 65})
	require.NoError(t, err)
	assert.Equal(t, VolumePercent(65), res.Percent)
}

func TestAudioController_OSD_VolumeReadFailureIsSwallowed(t *testing.T) {
	keys := &recordingKeys{}
	dev := newFakeDevice(0.2)
	ctrl := newTestController(t, dev, keys)

	// The first read inside Apply is the OSD probe; the read-back after it fails too.
	dev.failOn("GetVolumeScalar", errBoom)
	_, err := ctrl.Apply(SetVolume{Percent: 65})
	require.Error(t, err, "read-back failure is still reported")
	assert.Empty(t, keys.pressed())

	dev.failOn("GetVolumeScalar", nil)
	s, err := dev.GetVolumeScalar()
	require.NoError(t, err)
	assert.Equal(t, VolumePercent(65), s.Percent(), "the write itself went through")
}

func TestAudioController_AudioErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		op   string
		err  error
		cmd  AudioCommand
		want AudioErrorKind
	}{
		{"write fails", "SetVolumeScalar", errBoom, SetVolume{Percent: 10}, PlatformCallFailed},
		{"device gone", "SetMute", fmt.Errorf("dial: %w", ErrDeviceUnavailable), Mute{}, DeviceUnavailable},
		{"toggle read fails", "GetMute", errBoom, ToggleMute{}, PlatformCallFailed},
		{"read-back fails", "GetVolumeDecibel", errBoom, Unmute{}, PlatformCallFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice(0.5)
			ctrl := newTestController(t, dev, nil)
			dev.failOn(tt.op, tt.err)

			_, err := ctrl.Apply(tt.cmd)
			require.Error(t, err)

			var aerr *AudioError
			require.ErrorAs(t, err, &aerr)
			assert.Equal(t, tt.want, aerr.Kind)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestAudioController_ToggleReadFailureDoesNotWrite(t *testing.T) {
	dev := newFakeDevice(0.5)
	ctrl := newTestController(t, dev, nil)
	dev.failOn("GetMute", errBoom)

	_, err := ctrl.Apply(ToggleMute{})
	require.Error(t, err)
	assert.Zero(t, dev.count("SetMute"))
}

func TestAudioController_RangeQueriedOnce(t *testing.T) {
	dev := newFakeDevice(0.5)
	ctrl := newTestController(t, dev, nil)

	for i := 0; i < 3; i++ {
		_, err := ctrl.Apply(SetVolume{Percent: VolumePercent(10 * i)})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, dev.count("GetVolumeRange"))
	assert.Equal(t, dev.rng, ctrl.Range())
}

func TestNewAudioController_Errors(t *testing.T) {
	_, err := NewAudioController(nil, nil, 0, testLogger())
	var aerr *AudioError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, DeviceUnavailable, aerr.Kind)

	dev := newFakeDevice(0.5)
	dev.failOn("GetVolumeRange", fmt.Errorf("connect: %w", ErrDeviceUnavailable))
	_, err = NewAudioController(dev, nil, 0, testLogger())
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, DeviceUnavailable, aerr.Kind)
}

func TestAudioController_UnknownCommand(t *testing.T) {
	ctrl := newTestController(t, newFakeDevice(0.5), nil)
	_, err := ctrl.Apply(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

// steppingKeys behaves like a desktop: each key press moves the device
// volume by one step. Presses past failAfter fail without effect. With
// delay set, the volume change lands asynchronously.
type steppingKeys struct {
	dev       *fakeDevice
	step      VolumeScalar
	failAfter int
	delay     time.Duration

	mu      sync.Mutex
	presses int
}

func (k *steppingKeys) PressKey(dir KeyDirection) error {
	k.mu.Lock()
	k.presses++
	n := k.presses
	k.mu.Unlock()
	if k.failAfter > 0 && n > k.failAfter {
		return errBoom
	}
	delta := k.step
	if dir == KeyVolumeDown {
		delta = -delta
	}
	apply := func() {
		s, _ := k.dev.memoryDevice.GetVolumeScalar()
		_ = k.dev.memoryDevice.SetVolumeScalar(s + delta)
	}
	if k.delay > 0 {
		go func() {
			time.Sleep(k.delay)
			apply()
		}()
		return nil
	}
	apply()
	return nil
}

func TestAudioController_OSD_PartialPairRestoresTarget(t *testing.T) {
	dev := newFakeDevice(0.8)
	keys := &steppingKeys{dev: dev, step: 0.05, failAfter: 1}
	ctrl := newTestController(t, dev, keys)

	res, err := ctrl.Apply(SetVolume{Percent: 30})
	require.NoError(t, err)
	assert.Equal(t, VolumePercent(30), res.Percent, "a cut-short nudge must not leave the volume shifted")
	assert.Equal(t, 2, dev.count("SetVolumeScalar"))
}

func TestAudioController_OSD_FirstPressFailureDoesNotRewrite(t *testing.T) {
	dev := newFakeDevice(0.8)
	keys := &recordingKeys{err: errBoom}
	ctrl := newTestController(t, dev, keys)

	_, err := ctrl.Apply(SetVolume{Percent: 30})
	require.NoError(t, err)
	assert.Equal(t, 1, dev.count("SetVolumeScalar"))
}

func TestAudioController_OSD_ReadBackWaitsForLastKey(t *testing.T) {
	dev := newFakeDevice(0.8)
	keys := &steppingKeys{dev: dev, step: 0.05, delay: 5 * time.Millisecond}
	ctrl, err := NewAudioController(dev, keys, 100*time.Millisecond, testLogger())
	require.NoError(t, err)

	res, err := ctrl.Apply(SetVolume{Percent: 30})
	require.NoError(t, err)
	assert.Equal(t, VolumePercent(30), res.Percent)
}
