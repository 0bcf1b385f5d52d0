package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("volbridge v%s\n", version)
	fmt.Println("MQTT remote control bridge for the system volume")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  volbridge [OPTIONS]")
	fmt.Println("  volbridge status [OPTIONS] [-json]")
	fmt.Println("  volbridge sweep [OPTIONS] [-levels 0,25,50,75,100] [-sleep-ms N] [-dry-run]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Subscribes to <prefix>/volume and <prefix>/mute on an MQTT broker and")
	fmt.Println("  applies each message to the default audio output, in arrival order.")
	fmt.Println("  Volume payloads are integers 0-100 (clamped); mute payloads are")
	fmt.Println("  mute, unmute or toggle.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        YAML config file (flags below override it)")
	fmt.Println()
	fmt.Println("  -mqtt-broker string")
	fmt.Printf("        Broker URL (default %q)\n", defaultBrokerURL)
	fmt.Println()
	fmt.Println("  -mqtt-client-id string")
	fmt.Printf("        MQTT client id (default %q)\n", defaultClientID)
	fmt.Println()
	fmt.Println("  -mqtt-username string / -mqtt-password-file string")
	fmt.Println("        Broker credentials (password read from file)")
	fmt.Println()
	fmt.Println("  -topic-prefix string")
	fmt.Printf("        Topic prefix (default %q)\n", defaultTopicPrefix)
	fmt.Println()
	fmt.Println("  -state-topic string / -publish-state bool")
	fmt.Printf("        Where the state JSON is published after each command (default %q)\n", defaultStateTopic)
	fmt.Println()
	fmt.Println("  -audio-backend string")
	fmt.Println("        pulse|camilladsp|memory (default \"pulse\")")
	fmt.Println()
	fmt.Println("  -pulse-sink string")
	fmt.Printf("        PulseAudio/PipeWire sink (default %q)\n", defaultPulseSink)
	fmt.Println()
	fmt.Println("  -camilladsp-ws-url string")
	fmt.Printf("        CamillaDSP websocket URL (default %q)\n", defaultCamillaWsURL)
	fmt.Println()
	fmt.Println("  -camilladsp-min-db float / -camilladsp-max-db float")
	fmt.Printf("        Fader range mapped onto 0-100%% (default %.1f / %.1f)\n", defaultCamillaMinDB, defaultCamillaMaxDB)
	fmt.Println()
	fmt.Println("  -osd bool")
	fmt.Println("        Nudge the volume keys after each volume change so the OSD appears (default true)")
	fmt.Println()
	fmt.Println("  -ipc bool / -ipc-socket string")
	fmt.Printf("        Local unix socket accepting {\"topic\",\"payload\"} lines (default %q)\n", defaultIPCSocket)
	fmt.Println()
	fmt.Println("  -apply-timeout-ms int")
	fmt.Println("        Exit if one audio call takes longer than this (0 disables, default 0)")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start the bridge against a local broker")
	fmt.Println("  volbridge -mqtt-broker tcp://localhost:5020")
	fmt.Println()
	fmt.Println("  # Drive CamillaDSP instead of the desktop mixer")
	fmt.Println("  volbridge -audio-backend camilladsp -camilladsp-ws-url ws://127.0.0.1:1234")
	fmt.Println()
	fmt.Println("  # Check the device, then exercise it end to end without a broker")
	fmt.Println("  volbridge status")
	fmt.Println("  volbridge sweep")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - OSD feedback needs write access to /dev/uinput (linux only)")
	fmt.Println("  - The process exits only on SIGINT/SIGTERM; broker outages are retried")
	fmt.Println()
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "status":
			os.Exit(runStatusSubcommand(os.Args[2:]))
		case "sweep":
			os.Exit(runSweepSubcommand(os.Args[2:]))
		}
	}

	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	fs := flag.NewFlagSet("volbridge", flag.ExitOnError)
	fs.Usage = printUsage
	cf := registerConfigFlags(fs)
	fs.Bool("version", false, "Print version and exit")
	fs.Bool("help", false, "Print help message")
	fs.Parse(os.Args[1:])

	cfg, err := cf.load(fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, _ := parseLogLevel(cfg.Logging.Level) // validated above
	logger := setupLogger(logLevel, os.Stdout)

	if err := runDaemon(cfg, logger); err != nil {
		logger.Error("volbridge stopped", "error", err)
		os.Exit(1)
	}
}

// runDaemon wires device, controller, dispatcher and transports and blocks
// until SIGINT/SIGTERM.
func runDaemon(cfg Config, logger *slog.Logger) error {
	password, err := cfg.ReadPassword()
	if err != nil {
		return err
	}

	dev, err := openDevice(cfg, logger)
	if err != nil {
		return fmt.Errorf("open audio device: %w", err)
	}
	defer dev.Close()

	ctrl, err := NewAudioController(dev, openKeySimulator(cfg, logger), cfg.OSDGap(), logger)
	if err != nil {
		return err
	}

	logStartup(cfg, ctrl, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inbox := make(chan Message, cfg.Dispatch.QueueSize)

	transport := newMQTTTransport(cfg.MQTT, password, inbox, logger)
	var publisher StatePublisher
	if cfg.MQTT.PublishState {
		publisher = transport
	}

	disp := NewDispatcher(ctrl, publisher, DispatcherConfig{
		TopicPrefix:  cfg.MQTT.TopicPrefix,
		ApplyTimeout: cfg.ApplyTimeout(),
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return disp.Run(gctx, inbox) })
	g.Go(func() error { return transport.Run(gctx) })
	if cfg.IPC.Enabled {
		g.Go(func() error {
			return runIPCServer(gctx, cfg.IPC.SocketPath, cfg.MQTT.TopicPrefix, inbox, logger)
		})
	}

	err = g.Wait()
	logger.Info("shutting down")
	return err
}

// openDevice creates the AudioDevice selected by audio.backend.
func openDevice(cfg Config, logger *slog.Logger) (AudioDevice, error) {
	switch cfg.Audio.Backend {
	case BackendPulse:
		dev, err := newPulseDevice(cfg.Audio.PulseSink, logger)
		if err != nil {
			return nil, err
		}
		return dev, nil
	case BackendCamillaDSP:
		c := cfg.Audio.CamillaDSP
		client, err := NewCamillaDSPClient(c.WsURL, logger, c.TimeoutMS)
		if err != nil {
			return nil, err
		}
		return newCamillaDevice(client, cfg.CamillaRange()), nil
	case BackendMemory:
		rng := VolumeRange{MinDB: defaultMemoryMinDB, MaxDB: defaultMemoryMaxDB, StepDB: defaultMemoryStepDB}
		return newMemoryDevice(defaultMemoryInitial, rng), nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", cfg.Audio.Backend)
	}
}

// openKeySimulator returns nil when OSD is disabled or unavailable; volume
// control works without it.
func openKeySimulator(cfg Config, logger *slog.Logger) KeySimulator {
	if !cfg.OSD.Enabled {
		return nil
	}
	keys, err := newKeySimulator()
	if err != nil {
		logger.Warn("OSD feedback disabled", "error", err)
		return nil
	}
	return keys
}

func logStartup(cfg Config, ctrl *AudioController, logger *slog.Logger) {
	logger.Debug("starting volbridge", "version", version)
	logger.Debug("configuration",
		"mqtt_broker", cfg.MQTT.BrokerURL,
		"mqtt_client_id", cfg.MQTT.ClientID,
		"topic_prefix", cfg.MQTT.TopicPrefix,
		"state_topic", cfg.MQTT.StateTopic,
		"publish_state", cfg.MQTT.PublishState,
		"audio_backend", cfg.Audio.Backend,
		"osd_enabled", cfg.OSD.Enabled,
		"osd_gap_ms", cfg.OSD.GapMS,
		"ipc_enabled", cfg.IPC.Enabled,
		"ipc_socket", cfg.IPC.SocketPath,
		"queue_size", cfg.Dispatch.QueueSize,
		"apply_timeout_ms", cfg.Dispatch.ApplyTimeoutMS)

	rng := ctrl.Range()
	info := []any{
		"backend", cfg.Audio.Backend,
		"range", rng.String(),
		"tolerance_pct", ctrl.Tolerance(),
		"topics", []string{
			FullTopic(cfg.MQTT.TopicPrefix, TopicVolume),
			FullTopic(cfg.MQTT.TopicPrefix, TopicMute),
		},
	}
	if st, err := ctrl.State(); err == nil {
		info = append(info, "percent", int(st.Percent), "decibel", st.Decibel, "muted", st.Muted)
	} else {
		logger.Warn("could not read initial state", "error", err)
	}
	logger.Info("audio device ready", info...)
}

// ============================================================================
// Shared flags
// ============================================================================
// Daemon and subcommands accept the same config flags. Only flags that were
// actually set override the config file.

type configFlags struct {
	configPath *string

	brokerURL    *string
	clientID     *string
	username     *string
	passwordFile *string
	topicPrefix  *string
	stateTopic   *string
	publishState *bool

	backend        *string
	pulseSink      *string
	camillaWsURL   *string
	camillaMinDB   *float64
	camillaMaxDB   *float64
	camillaTimeout *int

	osd      *bool
	osdGapMS *int

	ipc       *bool
	ipcSocket *string

	applyTimeoutMS *int

	logLevel *string
}

func registerConfigFlags(fs *flag.FlagSet) *configFlags {
	d := DefaultConfig()
	return &configFlags{
		configPath: fs.String("config", "", "YAML config file"),

		brokerURL:    fs.String("mqtt-broker", d.MQTT.BrokerURL, "MQTT broker URL"),
		clientID:     fs.String("mqtt-client-id", d.MQTT.ClientID, "MQTT client id"),
		username:     fs.String("mqtt-username", "", "MQTT username"),
		passwordFile: fs.String("mqtt-password-file", "", "File containing the MQTT password"),
		topicPrefix:  fs.String("topic-prefix", d.MQTT.TopicPrefix, "Topic prefix for volume/mute"),
		stateTopic:   fs.String("state-topic", d.MQTT.StateTopic, "Topic for published state"),
		publishState: fs.Bool("publish-state", d.MQTT.PublishState, "Publish state after each command"),

		backend:        fs.String("audio-backend", string(d.Audio.Backend), "Audio backend: pulse|camilladsp|memory"),
		pulseSink:      fs.String("pulse-sink", d.Audio.PulseSink, "PulseAudio/PipeWire sink name"),
		camillaWsURL:   fs.String("camilladsp-ws-url", d.Audio.CamillaDSP.WsURL, "CamillaDSP websocket URL"),
		camillaMinDB:   fs.Float64("camilladsp-min-db", d.Audio.CamillaDSP.MinDB, "CamillaDSP fader dB at 0%"),
		camillaMaxDB:   fs.Float64("camilladsp-max-db", d.Audio.CamillaDSP.MaxDB, "CamillaDSP fader dB at 100%"),
		camillaTimeout: fs.Int("camilladsp-ws-timeout-ms", d.Audio.CamillaDSP.TimeoutMS, "CamillaDSP response timeout in ms"),

		osd:      fs.Bool("osd", d.OSD.Enabled, "Simulate volume keys so the desktop shows its OSD"),
		osdGapMS: fs.Int("osd-gap-ms", d.OSD.GapMS, "Gap between the two OSD key events in ms"),

		ipc:       fs.Bool("ipc", d.IPC.Enabled, "Enable the IPC unix socket"),
		ipcSocket: fs.String("ipc-socket", d.IPC.SocketPath, "Unix domain socket path for IPC"),

		applyTimeoutMS: fs.Int("apply-timeout-ms", d.Dispatch.ApplyTimeoutMS, "Exit if one audio call exceeds this (0 disables)"),

		logLevel: fs.String("log-level", d.Logging.Level, "Log level: error, warn, info, debug"),
	}
}

// overrides collects the flags that were explicitly set on fs.
func (f *configFlags) overrides(fs *flag.FlagSet) FlagOverrides {
	var o FlagOverrides
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "mqtt-broker":
			o.BrokerURL = f.brokerURL
		case "mqtt-client-id":
			o.ClientID = f.clientID
		case "mqtt-username":
			o.Username = f.username
		case "mqtt-password-file":
			o.PasswordFile = f.passwordFile
		case "topic-prefix":
			o.TopicPrefix = f.topicPrefix
		case "state-topic":
			o.StateTopic = f.stateTopic
		case "publish-state":
			o.PublishState = f.publishState
		case "audio-backend":
			o.Backend = f.backend
		case "pulse-sink":
			o.PulseSink = f.pulseSink
		case "camilladsp-ws-url":
			o.CamillaWsURL = f.camillaWsURL
		case "camilladsp-min-db":
			o.CamillaMinDB = f.camillaMinDB
		case "camilladsp-max-db":
			o.CamillaMaxDB = f.camillaMaxDB
		case "camilladsp-ws-timeout-ms":
			o.CamillaTimeout = f.camillaTimeout
		case "osd":
			o.OSDEnabled = f.osd
		case "osd-gap-ms":
			o.OSDGapMS = f.osdGapMS
		case "ipc":
			o.IPCEnabled = f.ipc
		case "ipc-socket":
			o.IPCSocketPath = f.ipcSocket
		case "apply-timeout-ms":
			o.ApplyTimeoutMS = f.applyTimeoutMS
		case "log-level":
			o.LogLevel = f.logLevel
		}
	})
	return o
}

// load builds the effective config: defaults, then file, then set flags.
func (f *configFlags) load(fs *flag.FlagSet) (Config, error) {
	cfg := DefaultConfig()
	if *f.configPath != "" {
		var err error
		cfg, err = LoadConfigFile(*f.configPath)
		if err != nil {
			return Config{}, err
		}
	}
	f.overrides(fs).Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// subcommandLogger logs to stderr so subcommand output on stdout stays parseable.
func subcommandLogger(cfg Config) *slog.Logger {
	level, _ := parseLogLevel(cfg.Logging.Level)
	return setupLogger(level, os.Stderr)
}
