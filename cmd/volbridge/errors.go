package main

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidVolumeValue matches a ParseError for a non-numeric volume payload.
	ErrInvalidVolumeValue = errors.New("invalid volume value")
	// ErrInvalidMuteCommand matches a ParseError for an unknown mute payload.
	ErrInvalidMuteCommand = errors.New("invalid mute command")
	// ErrUnknownTopic is returned for topics the bridge does not route.
	ErrUnknownTopic = errors.New("unknown topic")

	// ErrDeviceUnavailable is wrapped by backends when the device (or the
	// server in front of it) cannot be reached at all.
	ErrDeviceUnavailable = errors.New("audio device unavailable")
)

// ParseErrorKind classifies a rejected payload.
type ParseErrorKind int

const (
	InvalidVolumeValue ParseErrorKind = iota + 1
	InvalidMuteCommand
)

func (k ParseErrorKind) String() string {
	switch k {
	case InvalidVolumeValue:
		return "InvalidVolumeValue"
	case InvalidMuteCommand:
		return "InvalidMuteCommand"
	default:
		return fmt.Sprintf("ParseErrorKind(%d)", int(k))
	}
}

// ParseError reports a payload that could not be turned into an AudioCommand.
// Raw is the payload exactly as received.
type ParseError struct {
	Kind ParseErrorKind
	Raw  string
	Err  error // underlying cause, if any (e.g. strconv error)
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case InvalidVolumeValue:
		return fmt.Sprintf("invalid volume value %q (expected integer 0-100)", e.Raw)
	case InvalidMuteCommand:
		return fmt.Sprintf("invalid mute command %q (expected 'mute', 'unmute', or 'toggle')", e.Raw)
	default:
		return fmt.Sprintf("parse error %q", e.Raw)
	}
}

// Is lets errors.Is match the kind sentinels.
func (e *ParseError) Is(target error) bool {
	switch target {
	case ErrInvalidVolumeValue:
		return e.Kind == InvalidVolumeValue
	case ErrInvalidMuteCommand:
		return e.Kind == InvalidMuteCommand
	}
	return false
}

func (e *ParseError) Unwrap() error { return e.Err }

// AudioErrorKind classifies a failed device call.
type AudioErrorKind int

const (
	DeviceUnavailable AudioErrorKind = iota + 1
	PlatformCallFailed
)

func (k AudioErrorKind) String() string {
	switch k {
	case DeviceUnavailable:
		return "DeviceUnavailable"
	case PlatformCallFailed:
		return "PlatformCallFailed"
	default:
		return fmt.Sprintf("AudioErrorKind(%d)", int(k))
	}
}

// AudioError is returned by AudioController.Apply when the device could not be
// read or written.
type AudioError struct {
	Kind AudioErrorKind
	Op   string
	Err  error
}

func (e *AudioError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *AudioError) Unwrap() error { return e.Err }

// newAudioError classifies err from a device call.
func newAudioError(op string, err error) *AudioError {
	kind := PlatformCallFailed
	if errors.Is(err, ErrDeviceUnavailable) {
		kind = DeviceUnavailable
	}
	return &AudioError{Kind: kind, Op: op, Err: err}
}

// errUnknownCommand is returned when Apply receives a command it cannot execute.
type errUnknownCommand struct {
	cmd AudioCommand
}

func (e errUnknownCommand) Error() string {
	if e.cmd == nil {
		return "unknown command: <nil>"
	}
	return "unknown command: " + e.cmd.String()
}
