package main

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessages_Volume(t *testing.T) {
	msgs, interval, err := buildMessages([]string{"volume", "40"}, "esp32")
	require.NoError(t, err)
	assert.Zero(t, interval)
	assert.Equal(t, []IPCRequest{{Topic: "esp32/volume", Payload: "40"}}, msgs)

	msgs, _, err = buildMessages([]string{"set", "abc"}, "esp32/")
	require.NoError(t, err, "payload validation is left to the daemon")
	assert.Equal(t, "esp32/volume", msgs[0].Topic)

	_, _, err = buildMessages([]string{"volume"}, "esp32")
	assert.Error(t, err)
}

func TestBuildMessages_Mute(t *testing.T) {
	for _, cmd := range []string{"mute", "unmute", "toggle"} {
		msgs, _, err := buildMessages([]string{cmd}, "esp32")
		require.NoError(t, err)
		assert.Equal(t, []IPCRequest{{Topic: "esp32/mute", Payload: cmd}}, msgs)
	}

	msgs, _, err := buildMessages([]string{"mute"}, "")
	require.NoError(t, err)
	assert.Equal(t, "mute", msgs[0].Topic)
}

func TestBuildMessages_Ramp(t *testing.T) {
	msgs, interval, err := buildMessages([]string{"ramp"}, "esp32")
	require.NoError(t, err)
	assert.Equal(t, time.Second, interval)
	require.Len(t, msgs, 10)
	assert.Equal(t, "10", msgs[0].Payload)
	assert.Equal(t, "100", msgs[9].Payload)

	msgs, interval, err = buildMessages([]string{"ramp", "-from", "0", "-to", "50", "-step", "25", "-interval-ms", "200"}, "esp32")
	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, interval)
	var payloads []string
	for _, m := range msgs {
		payloads = append(payloads, m.Payload)
	}
	assert.Equal(t, []string{"0", "25", "50"}, payloads)

	_, _, err = buildMessages([]string{"ramp", "-step", "0"}, "esp32")
	assert.Error(t, err)
	_, _, err = buildMessages([]string{"ramp", "-from", "50", "-to", "10"}, "esp32")
	assert.Error(t, err)
}

func TestBuildMessages_HelpAndUnknown(t *testing.T) {
	msgs, _, err := buildMessages([]string{"help"}, "esp32")
	require.NoError(t, err)
	assert.Nil(t, msgs)

	_, _, err = buildMessages([]string{"louder"}, "esp32")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

// serveOnce answers a single IPC request with resp and returns what it got.
func serveOnce(t *testing.T, resp IPCResponse) (string, <-chan IPCRequest) {
	t.Helper()
	dir, err := os.MkdirTemp("", "vbctl")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	socketPath := filepath.Join(dir, "s.sock")

	l, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	got := make(chan IPCRequest, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, err := bufio.NewReader(conn).ReadBytes('\n')
		if err != nil {
			return
		}
		var req IPCRequest
		_ = json.Unmarshal(line, &req)
		got <- req
		_ = json.NewEncoder(conn).Encode(resp)
	}()
	return socketPath, got
}

func TestIPCPublisher(t *testing.T) {
	socketPath, got := serveOnce(t, IPCResponse{Status: "ok"})
	require.NoError(t, ipcPublisher{socketPath: socketPath}.Publish("esp32/volume", "33"))
	assert.Equal(t, IPCRequest{Topic: "esp32/volume", Payload: "33"}, <-got)

	socketPath, _ = serveOnce(t, IPCResponse{Status: "error", Error: "unknown topic"})
	err := ipcPublisher{socketPath: socketPath}.Publish("esp32/x", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown topic")
}
