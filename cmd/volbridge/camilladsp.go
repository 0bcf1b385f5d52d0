package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// CamillaDSPClientInterface is the subset of the CamillaDSP websocket API the
// camilladsp backend needs. It allows for mocking in tests.
type CamillaDSPClientInterface interface {
	SetVolume(targetDB float64) error
	GetVolume() (float64, error)

	// Mute control (default fader "Main")
	GetMute() (bool, error)
	SetMute(mute bool) error

	GetState() (string, error)

	Close() error
}

// CamillaDSPClient manages WebSocket communication with CamillaDSP
type CamillaDSPClient struct {
	mu          sync.Mutex
	conn        *websocket.Conn
	url         string
	logger      *slog.Logger
	readTimeout time.Duration
	attempts    int
	retryDelay  time.Duration
}

// NewCamillaDSPClient creates a new CamillaDSP client and establishes initial connection
func NewCamillaDSPClient(wsURL string, logger *slog.Logger, readTimeout int) (*CamillaDSPClient, error) {
	if _, err := url.Parse(wsURL); err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}

	client := &CamillaDSPClient{
		url:         wsURL,
		logger:      logger,
		readTimeout: time.Duration(readTimeout) * time.Millisecond,
		attempts:    10,
		retryDelay:  500 * time.Millisecond,
	}

	if err := client.connectWithRetry(); err != nil {
		return nil, err
	}

	return client, nil
}

// connect establishes a WebSocket connection to CamillaDSP
func (c *CamillaDSPClient) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	d := websocket.Dialer{
		HandshakeTimeout: 2 * time.Second,
	}

	conn, _, err := d.Dial(c.url, nil)
	if err != nil {
		return err
	}

	c.conn = conn
	return nil
}

// connectWithRetry attempts to connect a fixed number of times
func (c *CamillaDSPClient) connectWithRetry() error {
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		err := c.connect()
		if err == nil {
			c.logger.Info("connected to CamillaDSP", "url", c.url)
			return nil
		}
		lastErr = err
		c.logger.Warn("connection failed; retrying...", "error", err, "attempt", attempt+1)
		time.Sleep(c.retryDelay)
	}
	return fmt.Errorf("connect to CamillaDSP after %d attempts: %w: %w", c.attempts, ErrDeviceUnavailable, lastErr)
}

// ensureConnected checks connection and reconnects if necessary
func (c *CamillaDSPClient) ensureConnected() error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.logger.Warn("connection lost; reconnecting...")
	return c.connectWithRetry()
}

// sendAndRead sends a message and waits for a response
func (c *CamillaDSPClient) sendAndRead(v any, timeout time.Duration) ([]byte, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("no websocket connection: %w", ErrDeviceUnavailable)
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.conn = nil // Mark connection as broken
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	c.conn.SetReadDeadline(time.Now().Add(timeout))
	defer func() {
		if c.conn != nil {
			c.conn.SetReadDeadline(time.Time{})
		}
	}()

	_, message, err := c.conn.ReadMessage()
	if err != nil {
		c.conn = nil // Mark connection as broken
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	return message, nil
}

// camillaReply is the envelope CamillaDSP wraps every answer in:
// {"<Command>": {"result": "Ok", "value": ...}}
type camillaReply struct {
	Result string          `json:"result"`
	Value  json.RawMessage `json:"value,omitempty"`
}

// errCamillaResult is returned when CamillaDSP answers with a non-Ok result.
type errCamillaResult struct {
	command string
	result  string
}

func (e errCamillaResult) Error() string {
	return fmt.Sprintf("%s: CamillaDSP returned %q", e.command, e.result)
}

// call sends one command and decodes the value (if out is non-nil).
// Commands without an argument are sent as a bare JSON string.
func (c *CamillaDSPClient) call(command string, arg any, out any) error {
	var req any = command
	if arg != nil {
		req = map[string]any{command: arg}
	}

	response, err := c.sendAndRead(req, c.readTimeout)
	if err != nil {
		return err
	}

	var env map[string]camillaReply
	if err := json.Unmarshal(response, &env); err != nil {
		return fmt.Errorf("parse %s response: %w", command, err)
	}
	reply, ok := env[command]
	if !ok {
		return fmt.Errorf("parse %s response: missing %q key", command, command)
	}
	if reply.Result != "Ok" {
		return errCamillaResult{command: command, result: reply.Result}
	}
	if out == nil {
		return nil
	}
	if len(reply.Value) == 0 {
		return fmt.Errorf("parse %s response: missing value", command)
	}
	if err := json.Unmarshal(reply.Value, out); err != nil {
		return fmt.Errorf("parse %s value: %w", command, err)
	}
	return nil
}

// Close closes the WebSocket connection
func (c *CamillaDSPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return nil
}

// SetVolume sets the main fader volume in dB
func (c *CamillaDSPClient) SetVolume(targetDB float64) error {
	if err := c.call("SetVolume", targetDB, nil); err != nil {
		return fmt.Errorf("set volume: %w", err)
	}
	c.logger.Debug("SetVolume", "target_db", targetDB)
	return nil
}

// GetVolume queries CamillaDSP for the current volume
func (c *CamillaDSPClient) GetVolume() (float64, error) {
	var v float64
	if err := c.call("GetVolume", nil, &v); err != nil {
		return 0, fmt.Errorf("get volume: %w", err)
	}
	c.logger.Debug("GetVolume", "volume_db", v)
	return v, nil
}

// GetMute queries CamillaDSP for the current mute state.
func (c *CamillaDSPClient) GetMute() (bool, error) {
	var m bool
	if err := c.call("GetMute", nil, &m); err != nil {
		return false, fmt.Errorf("get mute: %w", err)
	}
	c.logger.Debug("GetMute", "mute", m)
	return m, nil
}

// SetMute sets the mute state in CamillaDSP.
func (c *CamillaDSPClient) SetMute(mute bool) error {
	if err := c.call("SetMute", mute, nil); err != nil {
		return fmt.Errorf("set mute: %w", err)
	}
	c.logger.Debug("SetMute", "mute", mute)
	return nil
}

// GetState queries CamillaDSP for the current processing state ("Running", "Paused", etc.).
func (c *CamillaDSPClient) GetState() (string, error) {
	var s string
	if err := c.call("GetState", nil, &s); err != nil {
		return "", fmt.Errorf("get state: %w", err)
	}
	return s, nil
}

// ============================================================================
// camillaDevice - AudioDevice on top of the CamillaDSP main fader
// ============================================================================

// camillaDevice maps the [0,1] slider linearly onto [MinDB, MaxDB] of the
// configured fader range.
type camillaDevice struct {
	client CamillaDSPClientInterface
	rng    VolumeRange
}

func newCamillaDevice(client CamillaDSPClientInterface, rng VolumeRange) *camillaDevice {
	return &camillaDevice{client: client, rng: rng}
}

func (d *camillaDevice) GetVolumeScalar() (VolumeScalar, error) {
	db, err := d.client.GetVolume()
	if err != nil {
		return 0, err
	}
	return d.rng.dbToScalar(db), nil
}

func (d *camillaDevice) SetVolumeScalar(s VolumeScalar) error {
	if math.IsNaN(float64(s)) {
		return errors.New("set volume scalar: NaN")
	}
	return d.client.SetVolume(d.rng.scalarToDB(s.Clamp()))
}

func (d *camillaDevice) GetVolumeDecibel() (float64, error) {
	return d.client.GetVolume()
}

func (d *camillaDevice) GetVolumeRange() (VolumeRange, error) {
	return d.rng, nil
}

func (d *camillaDevice) GetMute() (bool, error) { return d.client.GetMute() }

func (d *camillaDevice) SetMute(mute bool) error { return d.client.SetMute(mute) }

func (d *camillaDevice) Close() error { return d.client.Close() }

// ProcessingState reports whether CamillaDSP is running, for the status command.
func (d *camillaDevice) ProcessingState() (string, error) { return d.client.GetState() }
