package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ============================================================================
// volbridge-ctl - Command-line publisher
// ============================================================================
// Sends the same messages the remote-control firmware sends, either to the
// MQTT broker (default) or straight into the daemon's IPC socket.
//
// Usage:
//   volbridge-ctl volume 40
//   volbridge-ctl mute | unmute | toggle
//   volbridge-ctl ramp
//
// Options:
//   -broker URL     MQTT broker (default: tcp://localhost:5020)
//   -prefix NAME    Topic prefix (default: esp32)
//   -socket PATH    Use the IPC socket instead of MQTT
// ============================================================================

// Wire constants (duplicated from the daemon for a standalone binary)
const (
	defaultBroker   = "tcp://localhost:5020"
	defaultPrefix   = "esp32"
	topicVolume     = "volume"
	topicMute       = "mute"
	publishTimeout  = 5 * time.Second
	disconnectGrace = 250 // ms
)

// IPCRequest is one line sent to the daemon's socket
type IPCRequest struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// publisher delivers one (topic, payload) message.
type publisher interface {
	Publish(topic, payload string) error
	Close()
}

func main() {
	fs := flag.NewFlagSet("volbridge-ctl", flag.ExitOnError)
	broker := fs.String("broker", defaultBroker, "MQTT broker URL")
	prefix := fs.String("prefix", defaultPrefix, "Topic prefix")
	clientID := fs.String("client-id", "", "MQTT client id (default: volbridge-ctl-<pid>)")
	socketPath := fs.String("socket", "", "Send via this IPC socket instead of MQTT")
	fs.Usage = printUsage
	fs.Parse(os.Args[1:])

	args := fs.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	msgs, interval, err := buildMessages(args, *prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		printUsage()
		os.Exit(1)
	}
	if msgs == nil {
		printUsage()
		os.Exit(0)
	}

	var pub publisher
	if *socketPath != "" {
		pub = ipcPublisher{socketPath: *socketPath}
	} else {
		id := *clientID
		if id == "" {
			id = fmt.Sprintf("volbridge-ctl-%d", os.Getpid())
		}
		pub, err = newMQTTPublisher(*broker, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			fmt.Fprintf(os.Stderr, "make sure the MQTT broker is running on %s\n", *broker)
			os.Exit(1)
		}
	}
	defer pub.Close()

	for i, m := range msgs {
		if i > 0 && interval > 0 {
			time.Sleep(interval)
		}
		fmt.Printf("publishing %s = %s\n", m.Topic, m.Payload)
		if err := pub.Publish(m.Topic, m.Payload); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("ok")
}

// buildMessages turns the command line into the messages to send. A nil
// slice with nil error means "help".
func buildMessages(args []string, prefix string) ([]IPCRequest, time.Duration, error) {
	full := func(t string) string {
		if prefix == "" {
			return t
		}
		return strings.TrimSuffix(prefix, "/") + "/" + t
	}

	switch args[0] {
	case "volume", "set":
		if len(args) < 2 {
			return nil, 0, fmt.Errorf("%s requires a percent value", args[0])
		}
		// Sent as typed; the daemon clamps and validates.
		return []IPCRequest{{Topic: full(topicVolume), Payload: args[1]}}, 0, nil

	case "mute", "unmute", "toggle":
		return []IPCRequest{{Topic: full(topicMute), Payload: args[0]}}, 0, nil

	case "ramp":
		rs := flag.NewFlagSet("ramp", flag.ContinueOnError)
		from := rs.Int("from", 10, "First level")
		to := rs.Int("to", 100, "Last level")
		step := rs.Int("step", 10, "Increment")
		intervalMS := rs.Int("interval-ms", 1000, "Pause between levels in ms")
		if err := rs.Parse(args[1:]); err != nil {
			return nil, 0, err
		}
		if *step <= 0 {
			return nil, 0, fmt.Errorf("ramp -step must be > 0")
		}
		var msgs []IPCRequest
		for v := *from; v <= *to; v += *step {
			msgs = append(msgs, IPCRequest{Topic: full(topicVolume), Payload: strconv.Itoa(v)})
		}
		if len(msgs) == 0 {
			return nil, 0, fmt.Errorf("ramp: empty range %d..%d", *from, *to)
		}
		return msgs, time.Duration(*intervalMS) * time.Millisecond, nil

	case "help", "-h", "--help":
		return nil, 0, nil

	default:
		return nil, 0, fmt.Errorf("unknown command: %s", args[0])
	}
}

// ============================================================================
// MQTT publisher
// ============================================================================

type mqttPublisher struct {
	client mqtt.Client
}

func newMQTTPublisher(broker, clientID string) (*mqttPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetCleanSession(true).
		SetConnectTimeout(publishTimeout)

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(publishTimeout) {
		return nil, fmt.Errorf("connect to %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", broker, err)
	}
	return &mqttPublisher{client: c}, nil
}

func (p *mqttPublisher) Publish(topic, payload string) error {
	token := p.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (p *mqttPublisher) Close() {
	p.client.Disconnect(disconnectGrace)
}

// ============================================================================
// IPC publisher
// ============================================================================

type ipcPublisher struct {
	socketPath string
}

func (p ipcPublisher) Publish(topic, payload string) error {
	conn, err := net.Dial("unix", p.socketPath)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", p.socketPath, err)
	}
	defer conn.Close()

	data, err := json.Marshal(IPCRequest{Topic: topic, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	// Line-delimited JSON
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	var response IPCResponse
	if err := json.NewDecoder(conn).Decode(&response); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if response.Status == "error" {
		return fmt.Errorf("daemon error: %s", response.Error)
	}
	return nil
}

func (ipcPublisher) Close() {}

func printUsage() {
	fmt.Fprintf(os.Stderr, `volbridge-ctl - Send volume/mute commands to volbridge

Usage:
  volbridge-ctl [options] <command> [args]

Options:
  -broker URL      MQTT broker URL (default: %s)
  -prefix NAME     Topic prefix (default: %s)
  -client-id ID    MQTT client id
  -socket PATH     Send via the daemon's IPC socket instead of MQTT

Commands:
  volume, set <0-100>     Set the volume in percent
  mute | unmute | toggle  Change the mute state
  ramp [-from N] [-to N] [-step N] [-interval-ms N]
                          Publish a volume ramp (default 10..100 step 10, 1s apart)
  help, -h, --help        Show this help message

Examples:
  volbridge-ctl volume 40
  volbridge-ctl toggle
  volbridge-ctl -socket /tmp/volbridge.sock mute
  volbridge-ctl ramp -interval-ms 500
`, defaultBroker, defaultPrefix)
}
