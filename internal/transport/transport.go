// Package transport opens the broker connections shared by sources, sinks
// and the control plane.
package transport

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-redis/redis/v8"
	"github.com/nats-io/nats.go"
)

const (
	natsTimeout       = 3 * time.Second
	natsReconnectWait = 500 * time.Millisecond
	mqttConnectWait   = 5 * time.Second
)

// ConnectNATS dials a NATS server, reconnecting forever once established.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(natsTimeout),
		nats.ReconnectWait(natsReconnectWait),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return nc, nil
}

// ConnectMQTT connects a paho client to broker.
func ConnectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectWait)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectWait) {
		return nil, fmt.Errorf("mqtt connect %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	return client, nil
}

// NewRedis builds a client for addr. go-redis connects lazily; callers
// that need an early failure should Ping.
func NewRedis(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}
