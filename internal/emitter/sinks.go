package emitter

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-redis/redis/v8"
	"github.com/nats-io/nats.go"
)

const (
	publishTimeout = 2 * time.Second
	// StreamMaxLen caps the Redis stream; trimming is approximate.
	StreamMaxLen = 10000
)

// UDPSink sends each message as one datagram.
type UDPSink struct {
	addr string
	conn net.Conn
}

// DialUDP prepares a datagram sink for addr, e.g. "127.0.0.1:7788".
func DialUDP(addr string) (*UDPSink, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial metric addr %q: %w", addr, err)
	}
	return &UDPSink{addr: addr, conn: conn}, nil
}

func (s *UDPSink) Write(_ context.Context, _ string, payload []byte) error {
	_, err := s.conn.Write(payload)
	return err
}

func (s *UDPSink) Close() error   { return s.conn.Close() }
func (s *UDPSink) String() string { return "udp://" + s.addr }

// MQTTSink publishes every message on one topic. The client belongs to the
// caller.
type MQTTSink struct {
	client mqtt.Client
	topic  string
}

func NewMQTTSink(client mqtt.Client, topic string) *MQTTSink {
	return &MQTTSink{client: client, topic: topic}
}

func (s *MQTTSink) Write(_ context.Context, _ string, payload []byte) error {
	token := s.client.Publish(s.topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %q: timeout", s.topic)
	}
	return token.Error()
}

func (s *MQTTSink) Close() error   { return nil }
func (s *MQTTSink) String() string { return "mqtt://" + s.topic }

// NATSSink publishes on a subject.
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

func NewNATSSink(conn *nats.Conn, subject string) *NATSSink {
	return &NATSSink{conn: conn, subject: subject}
}

func (s *NATSSink) Write(_ context.Context, _ string, payload []byte) error {
	return s.conn.Publish(s.subject, payload)
}

// Close flushes pending publishes; the connection stays open.
func (s *NATSSink) Close() error   { return s.conn.FlushTimeout(publishTimeout) }
func (s *NATSSink) String() string { return "nats://" + s.subject }

// RedisSink appends messages to a stream with XADD, one entry per message
// holding "type" and the JSON "data".
type RedisSink struct {
	client *redis.Client
	stream string
}

func NewRedisSink(client *redis.Client, stream string) *RedisSink {
	return &RedisSink{client: client, stream: stream}
}

func (s *RedisSink) Write(ctx context.Context, kind string, payload []byte) error {
	// the final messages of a run are written after cancellation
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: StreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type": kind,
			"data": string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

func (s *RedisSink) Close() error   { return s.client.Close() }
func (s *RedisSink) String() string { return "redis://" + s.stream }

// WriterSink writes one JSON line per message, e.g. to stdout.
type WriterSink struct {
	mu   sync.Mutex
	w    io.Writer
	name string
}

func NewWriterSink(w io.Writer, name string) *WriterSink {
	return &WriterSink{w: w, name: name}
}

func (s *WriterSink) Write(_ context.Context, _ string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(payload); err != nil {
		return err
	}
	_, err := io.WriteString(s.w, "\n")
	return err
}

func (s *WriterSink) Close() error   { return nil }
func (s *WriterSink) String() string { return s.name }
