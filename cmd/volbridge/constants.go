package main

// Topic suffixes understood by the bridge. The full topic is "<prefix>/<suffix>".
const (
	topicSuffixVolume = "volume"
	topicSuffixMute   = "mute"
)

// Mute payloads (after trimming and lower-casing)
const (
	mutePayloadMute   = "mute"
	mutePayloadUnmute = "unmute"
	mutePayloadToggle = "toggle"
)

// Linux input key codes (from <linux/input-event-codes.h>), used for OSD nudges
const (
	KEY_VOLUMEDOWN = 114
	KEY_VOLUMEUP   = 115
)

// MQTT defaults
const (
	defaultBrokerURL          = "tcp://localhost:5020"
	defaultClientID           = "volbridge"
	defaultTopicPrefix        = "esp32"
	defaultStateTopic         = "pc/sound"
	defaultConnectTimeoutMS   = 5000 // Per-attempt connect timeout (ms)
	defaultMaxReconnectMS     = 30000
	defaultDisconnectQuiesce  = 250 // ms given to in-flight work on disconnect
	defaultSubscribeTimeoutMS = 5000
)

// Audio defaults
const (
	defaultPulseSink      = "@DEFAULT_SINK@"
	defaultCamillaWsURL   = "ws://127.0.0.1:1234"
	defaultReadTimeoutMS  = 500 // Timeout for reading websocket responses (ms)
	defaultCamillaMinDB   = -65.0
	defaultCamillaMaxDB   = 0.0
	defaultCamillaStepDB  = 0.5
	defaultMemoryMinDB    = -65.25
	defaultMemoryMaxDB    = 0.0
	defaultMemoryStepDB   = 0.03125
	defaultMemoryInitial  = 0.3 // Initial scalar of the in-memory device
	pulseMinDB            = -120.0
	uinputSettleMS        = 2000 // ms uinput needs before the first synthetic key is seen
)

// OSD and dispatch defaults
const (
	osdMidpoint           = 0.5 // Scalar above which the nudge goes down-then-up
	defaultOSDGapMS       = 10  // Gap between the two offsetting key events (ms)
	defaultQueueSize      = 64
	defaultApplyTimeoutMS = 0 // 0 disables the hung-call watchdog
	defaultIPCSocket      = "/tmp/volbridge.sock"
)
