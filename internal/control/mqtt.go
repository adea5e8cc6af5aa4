package control

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	mqttQueue       = 16
	mqttWaitTimeout = 2 * time.Second
)

// MQTTTransport receives commands published on a topic. The client is
// owned by the caller; Close only drops the subscription.
type MQTTTransport struct {
	client mqtt.Client
	topic  string

	msgs      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// SubscribeMQTT subscribes to topic on an already connected client.
func SubscribeMQTT(client mqtt.Client, topic string) (*MQTTTransport, error) {
	t := newMQTTTransport(client, topic)
	token := client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		t.deliver(msg.Payload())
	})
	if !token.WaitTimeout(mqttWaitTimeout) {
		return nil, fmt.Errorf("subscribe %q: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("subscribe %q: %w", topic, err)
	}
	return t, nil
}

func newMQTTTransport(client mqtt.Client, topic string) *MQTTTransport {
	return &MQTTTransport{
		client: client,
		topic:  topic,
		msgs:   make(chan []byte, mqttQueue),
		closed: make(chan struct{}),
	}
}

// deliver runs on the paho callback goroutine and must not block it.
func (t *MQTTTransport) deliver(payload []byte) {
	p := make([]byte, len(payload))
	copy(p, payload)
	select {
	case t.msgs <- p:
	default:
		// queue full; commands are idempotent so dropping is harmless
	}
}

func (t *MQTTTransport) String() string { return "mqtt://" + t.topic }

func (t *MQTTTransport) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case p := <-t.msgs:
		return p, nil
	case <-t.closed:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrTimeout
	}
}

func (t *MQTTTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		if t.client == nil || !t.client.IsConnectionOpen() {
			return
		}
		token := t.client.Unsubscribe(t.topic)
		token.WaitTimeout(mqttWaitTimeout)
		err = token.Error()
	})
	return err
}

// PublishMQTT sends one command to topic.
func PublishMQTT(client mqtt.Client, topic string, cmd Command) error {
	token := client.Publish(topic, 1, false, Encode(cmd))
	if !token.WaitTimeout(mqttWaitTimeout) {
		return fmt.Errorf("publish %q: timeout", topic)
	}
	return token.Error()
}
