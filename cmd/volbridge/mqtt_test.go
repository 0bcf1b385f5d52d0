package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMQTTMessage implements mqtt.Message.
type fakeMQTTMessage struct {
	topic   string
	payload string
}

func (m fakeMQTTMessage) Duplicate() bool   { return false }
func (m fakeMQTTMessage) Qos() byte         { return 0 }
func (m fakeMQTTMessage) Retained() bool    { return false }
func (m fakeMQTTMessage) Topic() string     { return m.topic }
func (m fakeMQTTMessage) MessageID() uint16 { return 0 }
func (m fakeMQTTMessage) Payload() []byte   { return []byte(m.payload) }
func (m fakeMQTTMessage) Ack()              {}

func newTestTransport(inbox chan Message) *mqttTransport {
	return newMQTTTransport(DefaultConfig().MQTT, "", inbox, testLogger())
}

func TestMQTTTransport_Topics(t *testing.T) {
	tr := newTestTransport(make(chan Message, 1))
	assert.Equal(t, map[string]byte{"esp32/volume": 0, "esp32/mute": 0}, tr.topics())
}

func TestMQTTTransport_OnMessageQueuesInOrder(t *testing.T) {
	inbox := make(chan Message, 3)
	tr := newTestTransport(inbox)

	tr.onMessage(nil, fakeMQTTMessage{topic: "esp32/volume", payload: "10"})
	tr.onMessage(nil, fakeMQTTMessage{topic: "esp32/mute", payload: "toggle"})
	tr.onMessage(nil, fakeMQTTMessage{topic: "esp32/volume", payload: " 90 "})

	var got []string
	for i := 0; i < 3; i++ {
		m := <-inbox
		assert.Equal(t, "mqtt", m.Source)
		got = append(got, m.Payload)
	}
	assert.Equal(t, []string{"10", "toggle", " 90 "}, got)
}

func TestMQTTTransport_OnMessageUnblocksOnShutdown(t *testing.T) {
	inbox := make(chan Message) // nobody reads
	tr := newTestTransport(inbox)
	ctx, cancel := context.WithCancel(context.Background())
	tr.ctx = ctx

	done := make(chan struct{})
	go func() {
		tr.onMessage(nil, fakeMQTTMessage{topic: "esp32/volume", payload: "1"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("onMessage must block while the inbox is full")
	case <-time.After(50 * time.Millisecond):
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("onMessage did not return after shutdown")
	}
}

func TestMQTTTransport_PublishStateWhileDisconnected(t *testing.T) {
	tr := newTestTransport(make(chan Message, 1))
	err := tr.PublishState(AudioResult{Percent: 40})
	require.Error(t, err)
	assert.ErrorIs(t, err, errNotConnected{})
}
