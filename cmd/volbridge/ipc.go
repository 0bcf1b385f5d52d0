package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// A local side door into the same dispatch queue the MQTT transport feeds.
// Handy for scripting and for driving the bridge while the broker is down.
//
// Protocol: Line-delimited JSON
//   - Client sends: {"topic": "esp32/volume", "payload": "40"}
//   - Server responds: {"status": "ok"} or {"status": "error", "error": "msg"}
//
// "ok" means the message was queued, not that the device accepted it.
// ============================================================================

// IPCRequest is one line sent by an IPC client.
type IPCRequest struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
}

// IPCResponse represents the response sent back to IPC clients
type IPCResponse struct {
	Status string `json:"status"`          // "ok" or "error"
	Error  string `json:"error,omitempty"` // error message if status == "error"
}

// runIPCServer starts the Unix domain socket server.
// It runs until ctx is canceled, at which point it closes the listener and exits.
func runIPCServer(ctx context.Context, socketPath, prefix string, inbox chan<- Message, logger *slog.Logger) error {
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.Chmod(socketPath, 0660); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Close the listener on shutdown. This unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("IPC listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				logger.Debug("IPC listener closed")
				return nil
			}

			logger.Error("IPC accept error", "error", err)
			continue
		}

		go handleIPCConnection(ctx, conn, prefix, inbox, logger)
	}
}

// handleIPCConnection handles a single IPC connection
func handleIPCConnection(ctx context.Context, conn net.Conn, prefix string, inbox chan<- Message, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	reply := func(resp IPCResponse) {
		if err := encoder.Encode(resp); err != nil {
			logger.Error("IPC failed to send response", "error", err)
		}
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		logger.Debug("IPC received", "line", line)

		var req IPCRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			reply(IPCResponse{Status: "error", Error: fmt.Sprintf("parse request: %v", err)})
			continue
		}
		if _, ok := TopicFor(req.Topic, prefix); !ok {
			reply(IPCResponse{Status: "error", Error: fmt.Sprintf("%v: %q", ErrUnknownTopic, req.Topic)})
			continue
		}

		msg := Message{Topic: req.Topic, Payload: req.Payload, Source: "ipc", ReceivedAt: time.Now()}
		select {
		case inbox <- msg:
			reply(IPCResponse{Status: "ok"})
		case <-ctx.Done():
			reply(IPCResponse{Status: "error", Error: "shutting down"})
			return
		}
	}

	logger.Debug("IPC connection closed")
}

// sendIPCMessage sends one message to the daemon via IPC and checks the response.
func sendIPCMessage(socketPath string, req IPCRequest) error {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.Status != "ok" {
		return fmt.Errorf("ipc error: %s", resp.Error)
	}

	return nil
}
