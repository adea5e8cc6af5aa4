package source

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/relabs-tech/focus_streamer/internal/eeg"
	"github.com/relabs-tech/focus_streamer/internal/transport"
)

// ErrFrameSize is returned when a payload is not a whole number of
// channel-interleaved float32 samples.
var ErrFrameSize = errors.New("payload is not a whole number of samples")

// MarkerSuffix is appended to the frame subject for marker publishes.
const MarkerSuffix = ".markers"

// maxPendingSeconds bounds the samples buffered between reads.
const maxPendingSeconds = 30

// EncodeFrame packs a frame as little-endian float32 samples interleaved
// by channel: s0c0 s0c1 ... s1c0 s1c1 ...
func EncodeFrame(frame eeg.Frame) []byte {
	channels, cols := len(frame), frame.Columns()
	out := make([]byte, 4*channels*cols)
	for i := 0; i < cols; i++ {
		for ch := 0; ch < channels; ch++ {
			off := 4 * (i*channels + ch)
			binary.LittleEndian.PutUint32(out[off:], math.Float32bits(float32(frame[ch][i])))
		}
	}
	return out
}

// DecodeFrame is the inverse of EncodeFrame.
func DecodeFrame(payload []byte, channels int) (eeg.Frame, error) {
	stride := 4 * channels
	if channels <= 0 || len(payload)%stride != 0 {
		return nil, fmt.Errorf("%w: %d bytes for %d channels", ErrFrameSize, len(payload), channels)
	}
	cols := len(payload) / stride
	frame := make(eeg.Frame, channels)
	for ch := range frame {
		frame[ch] = make([]float64, cols)
	}
	for i := 0; i < cols; i++ {
		for ch := 0; ch < channels; ch++ {
			off := 4 * (i*channels + ch)
			frame[ch][i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(payload[off:])))
		}
	}
	return frame, nil
}

// NATS receives sample blocks published on a subject.
type NATS struct {
	url        string
	subject    string
	sampleRate int
	channels   int
	logger     *zap.Logger

	conn *nats.Conn
	sub  *nats.Subscription

	mu        sync.Mutex
	pending   eeg.Frame
	malformed int64
}

// NewNATS creates a NATS source. Nothing is dialled until Connect.
func NewNATS(url, subject string, sampleRate, channels int, logger *zap.Logger) *NATS {
	return &NATS{
		url:        url,
		subject:    subject,
		sampleRate: sampleRate,
		channels:   channels,
		logger:     logger,
		pending:    make(eeg.Frame, channels),
	}
}

func (n *NATS) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := transport.ConnectNATS(n.url, "focus-streamer-source")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}
	sub, err := conn.Subscribe(n.subject, func(msg *nats.Msg) {
		n.ingest(msg.Data)
	})
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: subscribe %s: %v", ErrConnect, n.subject, err)
	}
	n.conn, n.sub = conn, sub
	n.logger.Info("nats source subscribed", zap.String("url", n.url), zap.String("subject", n.subject))
	return nil
}

// ingest runs on the NATS delivery goroutine.
func (n *NATS) ingest(payload []byte) {
	frame, err := DecodeFrame(payload, n.channels)
	if err != nil {
		n.mu.Lock()
		n.malformed++
		count := n.malformed
		n.mu.Unlock()
		n.logger.Debug("dropping nats payload", zap.Int64("malformed", count), zap.Error(err))
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range frame {
		n.pending[ch] = append(n.pending[ch], frame[ch]...)
	}
	if limit := maxPendingSeconds * n.sampleRate; n.pending.Columns() > limit {
		drop := n.pending.Columns() - limit
		for ch := range n.pending {
			n.pending[ch] = n.pending[ch][drop:]
		}
	}
}

func (n *NATS) Read(ctx context.Context) (eeg.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n.conn == nil {
		return nil, ErrNotConnected
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pending.Columns() == 0 {
		return nil, nil
	}
	out := n.pending
	n.pending = make(eeg.Frame, n.channels)
	return out, nil
}

// Tag publishes the marker value as text on the marker subject.
func (n *NATS) Tag(value float64) error {
	if n.conn == nil {
		return ErrNotConnected
	}
	return n.conn.Publish(n.subject+MarkerSuffix, []byte(strconv.FormatFloat(value, 'f', -1, 64)))
}

// Malformed is the number of payloads dropped for a bad size.
func (n *NATS) Malformed() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.malformed
}

func (n *NATS) SampleRate() int { return n.sampleRate }
func (n *NATS) Channels() int   { return n.channels }

func (n *NATS) Close() error {
	if n.conn == nil {
		return nil
	}
	if n.sub != nil {
		_ = n.sub.Unsubscribe()
	}
	n.conn.Close()
	n.conn = nil
	return nil
}
