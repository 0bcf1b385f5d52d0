package main

import (
	"fmt"
	"math"
	"sync"
)

// AudioDevice is the platform capability the controller drives: the master
// volume and mute flag of the single default output.
//
// Implementations wrap ErrDeviceUnavailable when the device or its server
// cannot be reached so the controller can classify the failure.
type AudioDevice interface {
	GetVolumeScalar() (VolumeScalar, error)
	SetVolumeScalar(s VolumeScalar) error

	GetVolumeDecibel() (float64, error)
	GetVolumeRange() (VolumeRange, error)

	GetMute() (bool, error)
	SetMute(mute bool) error

	Close() error
}

// KeyDirection is the direction of a simulated volume key.
type KeyDirection int

const (
	KeyVolumeDown KeyDirection = -1
	KeyVolumeUp   KeyDirection = 1
)

func (d KeyDirection) String() string {
	if d == KeyVolumeDown {
		return "volume_down"
	}
	return "volume_up"
}

// KeySimulator presses and releases a platform volume key. It is optional;
// a nil KeySimulator means no OSD feedback.
type KeySimulator interface {
	PressKey(dir KeyDirection) error
}

// memoryDevice is an in-process AudioDevice with step quantization. It backs
// the "memory" audio backend used for dry runs on hosts without a sound server.
type memoryDevice struct {
	mu     sync.Mutex
	scalar VolumeScalar
	muted  bool
	rng    VolumeRange
}

func newMemoryDevice(initial VolumeScalar, rng VolumeRange) *memoryDevice {
	d := &memoryDevice{rng: rng}
	d.scalar = d.quantize(initial)
	return d
}

// quantize snaps s onto the dB step grid of the device.
func (d *memoryDevice) quantize(s VolumeScalar) VolumeScalar {
	s = s.Clamp()
	if d.rng.StepDB <= 0 {
		return s
	}
	db := d.rng.scalarToDB(s)
	steps := math.Round((db - d.rng.MinDB) / d.rng.StepDB)
	return d.rng.dbToScalar(d.rng.MinDB + steps*d.rng.StepDB)
}

func (d *memoryDevice) GetVolumeScalar() (VolumeScalar, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scalar, nil
}

func (d *memoryDevice) SetVolumeScalar(s VolumeScalar) error {
	if math.IsNaN(float64(s)) {
		return fmt.Errorf("set volume scalar: NaN")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scalar = d.quantize(s)
	return nil
}

func (d *memoryDevice) GetVolumeDecibel() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.scalarToDB(d.scalar), nil
}

func (d *memoryDevice) GetVolumeRange() (VolumeRange, error) {
	return d.rng, nil
}

func (d *memoryDevice) GetMute() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.muted, nil
}

func (d *memoryDevice) SetMute(mute bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.muted = mute
	return nil
}

func (d *memoryDevice) Close() error { return nil }
