package control

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
)

// ReadTimeout bounds each blocking receive so the listener notices a stop
// promptly.
const ReadTimeout = 500 * time.Millisecond

// ErrTimeout is returned by a Transport when no payload arrived within the
// receive timeout.
var ErrTimeout = errors.New("control receive timeout")

// Transport delivers raw command payloads.
type Transport interface {
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
	Close() error
	String() string
}

// Listener reads commands from one transport and trips the shared signal on
// shutdown. It never reports errors to the processing loop.
type Listener struct {
	transport Transport
	signal    *Signal
	logger    *zap.Logger
	timeout   time.Duration
}

// NewListener binds a transport to the signal.
func NewListener(transport Transport, signal *Signal, logger *zap.Logger) *Listener {
	return &Listener{
		transport: transport,
		signal:    signal,
		logger:    logger.With(zap.String("transport", transport.String())),
		timeout:   ReadTimeout,
	}
}

// Run loops until ctx is cancelled or the transport is closed, then closes
// the transport. A shutdown command does not stop the loop.
func (l *Listener) Run(ctx context.Context) {
	defer func() {
		if err := l.transport.Close(); err != nil {
			l.logger.Debug("control transport close", zap.Error(err))
		}
	}()

	l.logger.Info("control listener started")
	for {
		if ctx.Err() != nil {
			l.logger.Info("control listener stopped")
			return
		}

		payload, err := l.transport.Receive(ctx, l.timeout)
		switch {
		case err == nil:
			l.handle(payload)
		case errors.Is(err, ErrTimeout):
		case errors.Is(err, net.ErrClosed), errors.Is(err, context.Canceled):
			l.logger.Info("control listener stopped")
			return
		default:
			l.logger.Warn("control receive error", zap.Error(err))
			if !sleepCtx(ctx, l.timeout) {
				return
			}
		}
	}
}

func (l *Listener) handle(payload []byte) {
	cmd, err := Decode(payload)
	if err != nil {
		l.logger.Warn("ignoring malformed control message",
			zap.ByteString("payload", truncate(payload, 128)), zap.Error(err))
		return
	}
	if !cmd.IsShutdown() {
		l.logger.Debug("ignoring control command", zap.String("cmd", cmd.Cmd))
		return
	}
	if l.signal.Requested() {
		l.logger.Debug("shutdown already requested")
		return
	}
	l.logger.Info("shutdown command received")
	l.signal.Request("shutdown command via " + l.transport.String())
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
