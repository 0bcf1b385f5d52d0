package main

import (
	"errors"
	"strconv"
	"strings"
)

// Topic is one of the fixed channels the bridge listens on.
type Topic string

const (
	TopicVolume Topic = topicSuffixVolume
	TopicMute   Topic = topicSuffixMute
)

// TopicFor maps a full transport topic ("esp32/volume") to a Topic.
// ok is false for anything outside prefix or not routed to the core.
func TopicFor(full, prefix string) (Topic, bool) {
	name := full
	if prefix != "" {
		p := strings.TrimSuffix(prefix, "/") + "/"
		if !strings.HasPrefix(full, p) {
			return "", false
		}
		name = strings.TrimPrefix(full, p)
	}
	switch Topic(name) {
	case TopicVolume, TopicMute:
		return Topic(name), true
	default:
		return "", false
	}
}

// FullTopic joins a prefix and a topic the way the firmware publishes them.
func FullTopic(prefix string, t Topic) string {
	if prefix == "" {
		return string(t)
	}
	return strings.TrimSuffix(prefix, "/") + "/" + string(t)
}

// Interpret turns a (topic, payload) pair into an AudioCommand.
//
// It performs no I/O. Volume payloads outside [0,100] are clamped rather than
// rejected; anything that is not a base-10 integer is an InvalidVolumeValue.
// Mute payloads are trimmed and lower-cased before matching.
func Interpret(topic Topic, payload string) (AudioCommand, error) {
	switch topic {
	case TopicVolume:
		s := strings.TrimSpace(payload)
		v, err := strconv.Atoi(s)
		if err != nil {
			if !errors.Is(err, strconv.ErrRange) {
				return nil, &ParseError{Kind: InvalidVolumeValue, Raw: payload, Err: err}
			}
			// Still an integer, just beyond int: clamp like any other.
			if strings.HasPrefix(s, "-") {
				return SetVolume{Percent: 0}, nil
			}
			return SetVolume{Percent: 100}, nil
		}
		return SetVolume{Percent: ClampPercent(v)}, nil

	case TopicMute:
		switch strings.ToLower(strings.TrimSpace(payload)) {
		case mutePayloadMute:
			return Mute{}, nil
		case mutePayloadUnmute:
			return Unmute{}, nil
		case mutePayloadToggle:
			return ToggleMute{}, nil
		default:
			return nil, &ParseError{Kind: InvalidMuteCommand, Raw: payload}
		}

	default:
		return nil, ErrUnknownTopic
	}
}
