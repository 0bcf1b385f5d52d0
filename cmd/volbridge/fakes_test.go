package main

import (
	"errors"
	"io"
	"log/slog"
	"sync"
)

// fakeDevice is a test double for AudioDevice. It wraps memoryDevice for the
// actual state and records calls. Failures can be injected per operation.
type fakeDevice struct {
	*memoryDevice

	mu    sync.Mutex
	calls []string
	fail  map[string]error // op name -> error returned instead of acting

	block chan struct{} // if non-nil, SetVolumeScalar waits on it
}

func newFakeDevice(initial VolumeScalar) *fakeDevice {
	rng := VolumeRange{MinDB: defaultMemoryMinDB, MaxDB: defaultMemoryMaxDB, StepDB: defaultMemoryStepDB}
	return &fakeDevice{
		memoryDevice: newMemoryDevice(initial, rng),
		fail:         map[string]error{},
	}
}

func (f *fakeDevice) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	return f.fail[op]
}

func (f *fakeDevice) failOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

func (f *fakeDevice) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeDevice) count(op string) int {
	n := 0
	for _, c := range f.callLog() {
		if c == op {
			n++
		}
	}
	return n
}

func (f *fakeDevice) GetVolumeScalar() (VolumeScalar, error) {
	if err := f.record("GetVolumeScalar"); err != nil {
		return 0, err
	}
	return f.memoryDevice.GetVolumeScalar()
}

func (f *fakeDevice) SetVolumeScalar(s VolumeScalar) error {
	if err := f.record("SetVolumeScalar"); err != nil {
		return err
	}
	if f.block != nil {
		<-f.block
	}
	return f.memoryDevice.SetVolumeScalar(s)
}

func (f *fakeDevice) GetVolumeDecibel() (float64, error) {
	if err := f.record("GetVolumeDecibel"); err != nil {
		return 0, err
	}
	return f.memoryDevice.GetVolumeDecibel()
}

func (f *fakeDevice) GetVolumeRange() (VolumeRange, error) {
	if err := f.record("GetVolumeRange"); err != nil {
		return VolumeRange{}, err
	}
	return f.memoryDevice.GetVolumeRange()
}

func (f *fakeDevice) GetMute() (bool, error) {
	if err := f.record("GetMute"); err != nil {
		return false, err
	}
	return f.memoryDevice.GetMute()
}

func (f *fakeDevice) SetMute(mute bool) error {
	if err := f.record("SetMute"); err != nil {
		return err
	}
	return f.memoryDevice.SetMute(mute)
}

// recordingKeys is a KeySimulator that records presses.
type recordingKeys struct {
	mu      sync.Mutex
	presses []KeyDirection
	err     error
}

func (k *recordingKeys) PressKey(dir KeyDirection) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.err != nil {
		return k.err
	}
	k.presses = append(k.presses, dir)
	return nil
}

func (k *recordingKeys) pressed() []KeyDirection {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]KeyDirection(nil), k.presses...)
}

// recordingPublisher collects published states.
type recordingPublisher struct {
	mu     sync.Mutex
	states []AudioResult
	err    error
}

func (p *recordingPublisher) PublishState(res AudioResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, res)
	return p.err
}

func (p *recordingPublisher) published() []AudioResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]AudioResult(nil), p.states...)
}

var errBoom = errors.New("boom")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
