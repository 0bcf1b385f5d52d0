package main

import "fmt"

// ==============================
// Audio commands
// ==============================

// AudioCommand is a validated request to change the audio device state.
// Commands are created per inbound message, applied once and discarded.
type AudioCommand interface {
	commandMarker()
	String() string
}

// SetVolume sets the master volume to an absolute percent.
type SetVolume struct {
	Percent VolumePercent
}

func (SetVolume) commandMarker() {}
func (c SetVolume) String() string {
	return fmt.Sprintf("SetVolume(percent=%d)", c.Percent)
}

// Mute mutes the output.
type Mute struct{}

func (Mute) commandMarker() {}
func (Mute) String() string { return "Mute()" }

// Unmute unmutes the output.
type Unmute struct{}

func (Unmute) commandMarker() {}
func (Unmute) String() string { return "Unmute()" }

// ToggleMute flips the mute flag relative to a fresh read.
type ToggleMute struct{}

func (ToggleMute) commandMarker() {}
func (ToggleMute) String() string { return "ToggleMute()" }
