package control

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSignalRequestIsIdempotent(t *testing.T) {
	s := NewSignal(context.Background())
	assert.False(t, s.Requested())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Request("first")
		}()
	}
	wg.Wait()
	s.Request("second")

	assert.True(t, s.Requested())
	assert.Equal(t, "first", s.Reason())
	select {
	case <-s.Done():
	default:
		t.Fatal("signal context not cancelled")
	}
}

func TestSignalFollowsParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	s := NewSignal(parent)
	cancel()
	<-s.Done()
	assert.True(t, s.Requested())
	assert.Equal(t, "context cancelled", s.Reason())
}

func TestDecode(t *testing.T) {
	cmd, err := Decode([]byte(`{"cmd":"shutdown"}`))
	require.NoError(t, err)
	assert.True(t, cmd.IsShutdown())

	cmd, err = Decode([]byte(`{"cmd":"pause"}`))
	require.NoError(t, err)
	assert.False(t, cmd.IsShutdown())

	_, err = Decode([]byte(`shutdown`))
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = Decode([]byte(`["shutdown"]`))
	assert.ErrorIs(t, err, ErrMalformed)
}

// fakeTransport replays a script of receive results, then times out.
type fakeTransport struct {
	mu     sync.Mutex
	script []result
	closed bool
}

type result struct {
	payload []byte
	err     error
}

func (f *fakeTransport) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	f.mu.Lock()
	if len(f.script) > 0 {
		r := f.script[0]
		f.script = f.script[1:]
		f.mu.Unlock()
		return r.payload, r.err
	}
	f.mu.Unlock()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Millisecond):
		return nil, ErrTimeout
	}
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) String() string { return "fake" }

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestListenerIgnoresNoiseAndKeepsListening(t *testing.T) {
	tr := &fakeTransport{script: []result{
		{payload: []byte("garbage")},
		{err: errors.New("connection refused")},
		{payload: []byte(`{"cmd":"status"}`)},
		{err: ErrTimeout},
		{payload: []byte(`{"cmd":"shutdown"}`)},
		{payload: []byte(`{"cmd":"shutdown"}`)},
	}}
	sig := NewSignal(context.Background())
	l := NewListener(tr, sig, zap.NewNop())
	l.timeout = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	select {
	case <-sig.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown not observed")
	}
	assert.Equal(t, "shutdown command via fake", sig.Reason())

	// still running until stopped explicitly
	select {
	case <-done:
		t.Fatal("listener exited on shutdown command")
	case <-time.After(20 * time.Millisecond):
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
	assert.True(t, tr.isClosed())
}

func TestListenerStopsWhenTransportClosed(t *testing.T) {
	tr := &fakeTransport{script: []result{{err: net.ErrClosed}}}
	l := NewListener(tr, NewSignal(context.Background()), zap.NewNop())

	done := make(chan struct{})
	go func() {
		l.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not exit on closed transport")
	}
}

func TestUDPShutdownRoundTrip(t *testing.T) {
	tr, err := ListenUDP("127.0.0.1:0")
	require.NoError(t, err)

	sig := NewSignal(context.Background())
	l := NewListener(tr, sig, zap.NewNop())
	l.timeout = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	addr := tr.Addr().String()
	require.NoError(t, SendUDP(addr, Command{Cmd: "noop"}))
	require.NoError(t, SendUDP(addr, Command{Cmd: CmdShutdown}))

	select {
	case <-sig.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown not received over UDP")
	}
}

func TestUDPReceiveTimesOut(t *testing.T) {
	tr, err := ListenUDP("127.0.0.1:0")
	require.NoError(t, err)
	defer tr.Close()

	_, err = tr.Receive(context.Background(), 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestMQTTTransportQueue(t *testing.T) {
	tr := newMQTTTransport(nil, "focus/control")
	tr.deliver([]byte(`{"cmd":"shutdown"}`))

	p, err := tr.Receive(context.Background(), time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"cmd":"shutdown"}`, string(p))

	_, err = tr.Receive(context.Background(), time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	// full queue drops instead of blocking the paho callback
	for i := 0; i < mqttQueue+4; i++ {
		tr.deliver([]byte("x"))
	}
	assert.Len(t, tr.msgs, mqttQueue)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	for len(tr.msgs) > 0 {
		<-tr.msgs
	}
	_, err = tr.Receive(context.Background(), time.Second)
	assert.ErrorIs(t, err, net.ErrClosed)
}
