package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// mqttTransport subscribes to the volume and mute topics and feeds every
// message into the dispatcher inbox. It also publishes the state topic.
//
// Subscriptions are (re)made in the OnConnect handler so they survive broker
// restarts. Handlers run in receive order (SetOrderMatters) and block on a
// full inbox instead of dropping.
type mqttTransport struct {
	cfg    MQTTConfig
	client mqtt.Client
	inbox  chan<- Message
	logger *slog.Logger

	ctx context.Context // set by Run; bounds blocking enqueues
}

func newMQTTTransport(cfg MQTTConfig, password string, inbox chan<- Message, logger *slog.Logger) *mqttTransport {
	t := &mqttTransport{cfg: cfg, inbox: inbox, logger: logger, ctx: context.Background()}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Second).
		SetConnectTimeout(time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond).
		SetMaxReconnectInterval(time.Duration(cfg.MaxReconnectIntervalMS) * time.Millisecond).
		SetKeepAlive(30 * time.Second).
		SetOnConnectHandler(t.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("MQTT connection lost", "error", err)
		}).
		SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
			logger.Info("MQTT reconnecting", "broker", cfg.BrokerURL)
		}).
		SetConnectionAttemptHandler(func(broker *url.URL, tlsCfg *tls.Config) *tls.Config {
			logger.Debug("MQTT connecting", "broker", broker.String())
			return tlsCfg
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(password)
	}

	t.client = mqtt.NewClient(opts)
	return t
}

// topics returns the subscription filter for the routed topics.
func (t *mqttTransport) topics() map[string]byte {
	qos := byte(t.cfg.QoS)
	return map[string]byte{
		FullTopic(t.cfg.TopicPrefix, TopicVolume): qos,
		FullTopic(t.cfg.TopicPrefix, TopicMute):   qos,
	}
}

func (t *mqttTransport) onConnect(c mqtt.Client) {
	filters := t.topics()
	token := c.SubscribeMultiple(filters, t.onMessage)
	if !token.WaitTimeout(defaultSubscribeTimeoutMS * time.Millisecond) {
		t.logger.Error("MQTT subscribe timed out")
		return
	}
	if err := token.Error(); err != nil {
		t.logger.Error("MQTT subscribe failed", "error", err)
		return
	}
	names := make([]string, 0, len(filters))
	for f := range filters {
		names = append(names, f)
	}
	t.logger.Info("MQTT connected", "broker", t.cfg.BrokerURL, "topics", names)
}

func (t *mqttTransport) onMessage(_ mqtt.Client, m mqtt.Message) {
	msg := Message{
		Topic:      m.Topic(),
		Payload:    string(m.Payload()),
		Source:     "mqtt",
		ReceivedAt: time.Now(),
	}
	t.logger.Debug("MQTT received", "topic", msg.Topic, "payload", msg.Payload)

	select {
	case t.inbox <- msg:
	case <-t.ctx.Done():
	}
}

// Run connects (retrying until ctx is canceled) and blocks until shutdown.
func (t *mqttTransport) Run(ctx context.Context) error {
	t.ctx = ctx

	token := t.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect %s: %w", t.cfg.BrokerURL, err)
		}
	case <-ctx.Done():
		t.client.Disconnect(defaultDisconnectQuiesce)
		return nil
	}

	<-ctx.Done()
	t.logger.Info("MQTT disconnecting")
	t.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}

// PublishState publishes res (retained) on the state topic.
func (t *mqttTransport) PublishState(res AudioResult) error {
	if !t.client.IsConnectionOpen() {
		return errNotConnected{}
	}
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	token := t.client.Publish(t.cfg.StateTopic, byte(t.cfg.QoS), true, b)
	if !token.WaitTimeout(time.Duration(t.cfg.ConnectTimeoutMS) * time.Millisecond) {
		return fmt.Errorf("publish %s: timed out", t.cfg.StateTopic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", t.cfg.StateTopic, err)
	}
	return nil
}

// errNotConnected is returned when publishing while the broker is away.
type errNotConnected struct{}

func (errNotConnected) Error() string { return "mqtt not connected" }
