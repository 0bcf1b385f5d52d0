package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"
)

// ============================================================================
// Dispatcher - single owner of the AudioController
// ============================================================================
//
// Every transport (MQTT, IPC) pushes Messages into one inbox channel and this
// loop applies them strictly in arrival order. No message is applied until
// the previous one has returned.
//
// A bad message never stops the loop:
//   - unrouted topics are ignored
//   - parse errors are logged with the raw payload and dropped
//   - audio errors are logged and the next message is processed
// ============================================================================

// Message is one inbound (topic, payload) pair from a transport.
type Message struct {
	Topic      string
	Payload    string
	Source     string // "mqtt", "ipc", ...
	ReceivedAt time.Time
}

// StatePublisher receives the observable state after each applied command.
type StatePublisher interface {
	PublishState(AudioResult) error
}

// DispatcherConfig holds the knobs of the dispatch loop.
type DispatcherConfig struct {
	TopicPrefix  string
	ApplyTimeout time.Duration // 0 disables the hung-call watchdog

	// OnHung is invoked when Apply exceeds ApplyTimeout. Defaults to exiting
	// the process so a service manager can restart it.
	OnHung func()
}

// Dispatcher interprets messages and applies them to the controller.
type Dispatcher struct {
	ctrl      *AudioController
	publisher StatePublisher // optional
	cfg       DispatcherConfig
	logger    *slog.Logger
}

func NewDispatcher(ctrl *AudioController, publisher StatePublisher, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.OnHung == nil {
		cfg.OnHung = func() { os.Exit(1) }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{ctrl: ctrl, publisher: publisher, cfg: cfg, logger: logger}
}

// Run consumes inbox until ctx is canceled or inbox is closed.
func (d *Dispatcher) Run(ctx context.Context, inbox <-chan Message) error {
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping (context canceled)")
			return nil

		case msg, ok := <-inbox:
			if !ok {
				d.logger.Info("dispatcher stopping (inbox closed)")
				return nil
			}
			_, _ = d.Handle(msg)
		}
	}
}

// Handle processes a single message synchronously. Errors are logged here;
// they are also returned for callers that want them (tests, sweep).
func (d *Dispatcher) Handle(msg Message) (AudioResult, error) {
	topic, ok := TopicFor(msg.Topic, d.cfg.TopicPrefix)
	if !ok {
		d.logger.Debug("ignoring unrouted topic", "topic", msg.Topic, "source", msg.Source)
		return AudioResult{}, ErrUnknownTopic
	}

	cmd, err := Interpret(topic, msg.Payload)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			d.logger.Warn("rejected payload",
				"topic", msg.Topic,
				"payload", perr.Raw,
				"kind", perr.Kind.String(),
				"source", msg.Source)
		} else {
			d.logger.Warn("rejected message", "topic", msg.Topic, "error", err)
		}
		return AudioResult{}, err
	}

	res, err := d.apply(cmd)
	if err != nil {
		var aerr *AudioError
		if errors.As(err, &aerr) {
			d.logger.Error("audio command failed",
				"command", cmd.String(),
				"kind", aerr.Kind.String(),
				"op", aerr.Op,
				"error", aerr.Err)
		} else {
			d.logger.Error("audio command failed", "command", cmd.String(), "error", err)
		}
		return AudioResult{}, err
	}

	d.logger.Info("applied",
		"command", cmd.String(),
		"source", msg.Source,
		"percent", int(res.Percent),
		"decibel", res.Decibel,
		"muted", res.Muted,
		"latency", msg.Latency(time.Now()))

	if d.publisher != nil {
		if err := d.publisher.PublishState(res); err != nil {
			d.logger.Warn("state publish failed", "error", err)
		}
	}
	return res, nil
}

// Latency is the time from receipt to now, or zero if the receipt time is unknown.
func (m Message) Latency(now time.Time) time.Duration {
	if m.ReceivedAt.IsZero() {
		return 0
	}
	return now.Sub(m.ReceivedAt)
}

// apply runs Apply under the optional watchdog. A hung call triggers OnHung
// but is still waited for, so commands never overlap.
func (d *Dispatcher) apply(cmd AudioCommand) (AudioResult, error) {
	if d.cfg.ApplyTimeout <= 0 {
		return d.ctrl.Apply(cmd)
	}

	type outcome struct {
		res AudioResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := d.ctrl.Apply(cmd)
		done <- outcome{res: res, err: err}
	}()

	timer := time.NewTimer(d.cfg.ApplyTimeout)
	defer timer.Stop()

	select {
	case o := <-done:
		return o.res, o.err
	case <-timer.C:
		d.logger.Error("audio call did not return in time",
			"command", cmd.String(),
			"timeout", d.cfg.ApplyTimeout)
		d.cfg.OnHung()
	}

	o := <-done
	return o.res, o.err
}
