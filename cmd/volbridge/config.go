package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the volbridge daemon.
//
// Keep defaults and validation centralized so the rest of the code can assume
// a well-formed config. The file is the primary surface; flags override it.
type Config struct {
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Audio    AudioConfig    `yaml:"audio"`
	OSD      OSDConfig      `yaml:"osd"`
	IPC      IPCConfig      `yaml:"ipc"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type MQTTConfig struct {
	BrokerURL    string `yaml:"broker_url"`
	ClientID     string `yaml:"client_id"`
	Username     string `yaml:"username,omitempty"`
	PasswordFile string `yaml:"password_file,omitempty"` // read at startup; keeps secrets out of the config

	TopicPrefix  string `yaml:"topic_prefix"`
	StateTopic   string `yaml:"state_topic"`
	PublishState bool   `yaml:"publish_state"`
	QoS          int    `yaml:"qos"`

	ConnectTimeoutMS       int `yaml:"connect_timeout_ms"`
	MaxReconnectIntervalMS int `yaml:"max_reconnect_interval_ms"`
}

// AudioBackend selects the AudioDevice implementation.
type AudioBackend string

const (
	BackendPulse      AudioBackend = "pulse"
	BackendCamillaDSP AudioBackend = "camilladsp"
	BackendMemory     AudioBackend = "memory"
)

type AudioConfig struct {
	Backend    AudioBackend     `yaml:"backend"`
	PulseSink  string           `yaml:"pulse_sink"`
	CamillaDSP CamillaDSPConfig `yaml:"camilladsp"`
}

type CamillaDSPConfig struct {
	WsURL     string  `yaml:"ws_url"`
	TimeoutMS int     `yaml:"timeout_ms"`
	MinDB     float64 `yaml:"min_db"`
	MaxDB     float64 `yaml:"max_db"`
	StepDB    float64 `yaml:"step_db"`
}

type OSDConfig struct {
	Enabled bool `yaml:"enabled"`
	GapMS   int  `yaml:"gap_ms"`
}

type IPCConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SocketPath string `yaml:"socket_path"`
}

type DispatchConfig struct {
	QueueSize      int `yaml:"queue_size"`
	ApplyTimeoutMS int `yaml:"apply_timeout_ms"` // 0 disables the watchdog
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		MQTT: MQTTConfig{
			BrokerURL:              defaultBrokerURL,
			ClientID:               defaultClientID,
			TopicPrefix:            defaultTopicPrefix,
			StateTopic:             defaultStateTopic,
			PublishState:           true,
			QoS:                    0,
			ConnectTimeoutMS:       defaultConnectTimeoutMS,
			MaxReconnectIntervalMS: defaultMaxReconnectMS,
		},
		Audio: AudioConfig{
			Backend:   BackendPulse,
			PulseSink: defaultPulseSink,
			CamillaDSP: CamillaDSPConfig{
				WsURL:     defaultCamillaWsURL,
				TimeoutMS: defaultReadTimeoutMS,
				MinDB:     defaultCamillaMinDB,
				MaxDB:     defaultCamillaMaxDB,
				StepDB:    defaultCamillaStepDB,
			},
		},
		OSD: OSDConfig{
			Enabled: true,
			GapMS:   defaultOSDGapMS,
		},
		IPC: IPCConfig{
			Enabled:    true,
			SocketPath: defaultIPCSocket,
		},
		Dispatch: DispatchConfig{
			QueueSize:      defaultQueueSize,
			ApplyTimeoutMS: defaultApplyTimeoutMS,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
//
// Notes:
//   - Unknown fields are rejected (helps catch typos) via KnownFields(true).
//   - Only one YAML document is allowed.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides carries flag values that were explicitly set on the command
// line. A nil pointer means "not set"; a non-nil pointer is applied even if it
// holds the zero value.
type FlagOverrides struct {
	BrokerURL    *string
	ClientID     *string
	Username     *string
	PasswordFile *string
	TopicPrefix  *string
	StateTopic   *string
	PublishState *bool

	Backend        *string
	PulseSink      *string
	CamillaWsURL   *string
	CamillaMinDB   *float64
	CamillaMaxDB   *float64
	CamillaTimeout *int

	OSDEnabled *bool
	OSDGapMS   *int

	IPCEnabled    *bool
	IPCSocketPath *string

	ApplyTimeoutMS *int

	LogLevel *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.BrokerURL != nil {
		cfg.MQTT.BrokerURL = *o.BrokerURL
	}
	if o.ClientID != nil {
		cfg.MQTT.ClientID = *o.ClientID
	}
	if o.Username != nil {
		cfg.MQTT.Username = *o.Username
	}
	if o.PasswordFile != nil {
		cfg.MQTT.PasswordFile = *o.PasswordFile
	}
	if o.TopicPrefix != nil {
		cfg.MQTT.TopicPrefix = *o.TopicPrefix
	}
	if o.StateTopic != nil {
		cfg.MQTT.StateTopic = *o.StateTopic
	}
	if o.PublishState != nil {
		cfg.MQTT.PublishState = *o.PublishState
	}

	if o.Backend != nil {
		cfg.Audio.Backend = AudioBackend(*o.Backend)
	}
	if o.PulseSink != nil {
		cfg.Audio.PulseSink = *o.PulseSink
	}
	if o.CamillaWsURL != nil {
		cfg.Audio.CamillaDSP.WsURL = *o.CamillaWsURL
	}
	if o.CamillaMinDB != nil {
		cfg.Audio.CamillaDSP.MinDB = *o.CamillaMinDB
	}
	if o.CamillaMaxDB != nil {
		cfg.Audio.CamillaDSP.MaxDB = *o.CamillaMaxDB
	}
	if o.CamillaTimeout != nil {
		cfg.Audio.CamillaDSP.TimeoutMS = *o.CamillaTimeout
	}

	if o.OSDEnabled != nil {
		cfg.OSD.Enabled = *o.OSDEnabled
	}
	if o.OSDGapMS != nil {
		cfg.OSD.GapMS = *o.OSDGapMS
	}

	if o.IPCEnabled != nil {
		cfg.IPC.Enabled = *o.IPCEnabled
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}

	if o.ApplyTimeoutMS != nil {
		cfg.Dispatch.ApplyTimeoutMS = *o.ApplyTimeoutMS
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// MQTT
	if c.MQTT.BrokerURL == "" {
		return errors.New("mqtt.broker_url must not be empty")
	}
	if !strings.Contains(c.MQTT.BrokerURL, "://") {
		return fmt.Errorf("mqtt.broker_url %q must include a scheme (tcp://, ssl://, ws://)", c.MQTT.BrokerURL)
	}
	if c.MQTT.ClientID == "" {
		return errors.New("mqtt.client_id must not be empty")
	}
	if strings.ContainsAny(c.MQTT.TopicPrefix, "+#") {
		return errors.New("mqtt.topic_prefix must not contain wildcards")
	}
	if c.MQTT.PublishState && c.MQTT.StateTopic == "" {
		return errors.New("mqtt.publish_state is true but mqtt.state_topic is empty")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return errors.New("mqtt.qos must be 0, 1 or 2")
	}
	if c.MQTT.ConnectTimeoutMS <= 0 {
		return errors.New("mqtt.connect_timeout_ms must be > 0")
	}
	if c.MQTT.MaxReconnectIntervalMS <= 0 {
		return errors.New("mqtt.max_reconnect_interval_ms must be > 0")
	}

	// Audio
	switch c.Audio.Backend {
	case BackendPulse:
		if c.Audio.PulseSink == "" {
			return errors.New("audio.pulse_sink must not be empty")
		}
	case BackendCamillaDSP:
		d := c.Audio.CamillaDSP
		if d.WsURL == "" {
			return errors.New("audio.camilladsp.ws_url must not be empty")
		}
		if d.TimeoutMS <= 0 {
			return errors.New("audio.camilladsp.timeout_ms must be > 0")
		}
		if d.MinDB >= d.MaxDB {
			return errors.New("audio.camilladsp.min_db must be < audio.camilladsp.max_db")
		}
		if d.StepDB < 0 {
			return errors.New("audio.camilladsp.step_db must be >= 0")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("audio.backend must be %q, %q or %q", BackendPulse, BackendCamillaDSP, BackendMemory)
	}

	// OSD
	if c.OSD.GapMS < 0 {
		return errors.New("osd.gap_ms must be >= 0")
	}

	// IPC
	if c.IPC.Enabled && c.IPC.SocketPath == "" {
		return errors.New("ipc.enabled is true but ipc.socket_path is empty")
	}

	// Dispatch
	if c.Dispatch.QueueSize <= 0 {
		return errors.New("dispatch.queue_size must be > 0")
	}
	if c.Dispatch.ApplyTimeoutMS < 0 {
		return errors.New("dispatch.apply_timeout_ms must be >= 0")
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// CamillaRange is the fader range used by the camilladsp backend.
func (c *Config) CamillaRange() VolumeRange {
	d := c.Audio.CamillaDSP
	return VolumeRange{MinDB: d.MinDB, MaxDB: d.MaxDB, StepDB: d.StepDB}
}

// OSDGap is the pause between the two offsetting key events.
func (c *Config) OSDGap() time.Duration {
	return time.Duration(c.OSD.GapMS) * time.Millisecond
}

// ApplyTimeout is the watchdog bound for one Apply call.
func (c *Config) ApplyTimeout() time.Duration {
	return time.Duration(c.Dispatch.ApplyTimeoutMS) * time.Millisecond
}

// ReadPassword loads the MQTT password from PasswordFile, if configured.
// Surrounding whitespace (the trailing newline of most editors) is dropped.
func (c *Config) ReadPassword() (string, error) {
	if c.MQTT.PasswordFile == "" {
		return "", nil
	}
	b, err := os.ReadFile(ExpandPath(c.MQTT.PasswordFile))
	if err != nil {
		return "", fmt.Errorf("read mqtt password file: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
