package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relabs-tech/focus_streamer/internal/baseline"
	"github.com/relabs-tech/focus_streamer/internal/eeg"
	"github.com/relabs-tech/focus_streamer/internal/score"
)

type record struct {
	kind    string
	payload []byte
}

type fakeSink struct {
	name    string
	fail    error
	written []record
	closed  bool
}

func (f *fakeSink) Write(_ context.Context, kind string, payload []byte) error {
	if f.fail != nil {
		return f.fail
	}
	f.written = append(f.written, record{kind, payload})
	return nil
}

func (f *fakeSink) Close() error   { f.closed = true; return f.fail }
func (f *fakeSink) String() string { return f.name }

func fixedClock() time.Time { return time.Unix(1700000000, 500000000) }

func decode(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestMessageSchemas(t *testing.T) {
	sink := &fakeSink{name: "fake"}
	e := New(zap.NewNop(), sink).WithClock(fixedClock)
	ctx := context.Background()

	e.BaselineProgress(ctx, 1500*time.Millisecond, 2, 6)
	e.BaselineReady(ctx, baseline.Stats{MuRaw: 1, SigmaRaw: 0.5, MuGamma: 2, SigmaGamma: 0.1, MuTotal: 10, SigmaTotal: 1})
	e.Veto(ctx, 4.2, 0)
	e.Concentration(ctx, score.Result{
		Score: 77, Z: 1, Raw: 1.5,
		Bands: eeg.Bands{Delta: 9, Theta: 1, Alpha: 2, Beta: 3, Gamma: 0.5},
		Label: score.LabelHigh,
	})
	require.Len(t, sink.written, 4)

	progress := decode(t, sink.written[0].payload)
	assert.ElementsMatch(t, []string{"type", "t", "elapsed", "count", "target"}, keys(progress))
	assert.Equal(t, TypeBaselineProgress, progress["type"])
	assert.InDelta(t, 1700000000.5, progress["t"], 1e-3)
	assert.Equal(t, 1.5, progress["elapsed"])
	assert.Equal(t, float64(2), progress["count"])
	assert.Equal(t, float64(6), progress["target"])

	ready := decode(t, sink.written[1].payload)
	assert.ElementsMatch(t, []string{"type", "t", "mu_raw", "sigma_raw", "mu_gamma", "sigma_gamma", "mu_total", "sigma_total"}, keys(ready))
	assert.Equal(t, 0.5, ready["sigma_raw"])

	veto := decode(t, sink.written[2].payload)
	assert.ElementsMatch(t, []string{"type", "t", "z_gamma", "z_total"}, keys(veto))
	assert.Equal(t, 4.2, veto["z_gamma"])
	assert.Equal(t, TypeVeto, sink.written[2].kind)

	conc := decode(t, sink.written[3].payload)
	assert.ElementsMatch(t, []string{"type", "t", "score", "z", "raw", "alpha", "beta", "theta", "gamma", "label"}, keys(conc))
	assert.Equal(t, float64(77), conc["score"])
	assert.Equal(t, "High focus", conc["label"])
	assert.Equal(t, 2.0, conc["alpha"])
	assert.Equal(t, 0.5, conc["gamma"])
}

func TestFailingSinkDoesNotStopOthers(t *testing.T) {
	bad := &fakeSink{name: "bad", fail: errors.New("broker gone")}
	good := &fakeSink{name: "good"}
	e := New(zap.NewNop(), bad, good)

	e.Veto(context.Background(), 1, 2)
	e.Veto(context.Background(), 3, 4)
	assert.Len(t, good.written, 2)

	assert.Error(t, e.Close())
	assert.True(t, bad.closed)
	assert.True(t, good.closed)
}

func TestUnencodableMessageIsDropped(t *testing.T) {
	sink := &fakeSink{name: "fake"}
	e := New(zap.NewNop(), sink)
	e.Veto(context.Background(), 1, 0)
	e.Concentration(context.Background(), score.Result{Z: nanValue()})
	assert.Len(t, sink.written, 1)
}

func nanValue() float64 {
	var zero float64
	return zero / zero
}

func TestUDPSinkDeliversDatagram(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()

	sink, err := DialUDP(conn.LocalAddr().String())
	require.NoError(t, err)
	defer sink.Close()

	New(zap.NewNop(), sink).Veto(context.Background(), 4.2, 0.1)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1024)
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	msg := decode(t, buf[:n])
	assert.Equal(t, "veto", msg["type"])
	assert.Equal(t, 0.1, msg["z_total"])
}

func TestRedisSinkAppendsToStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sink := NewRedisSink(client, "focus:metrics")
	defer sink.Close()

	e := New(zap.NewNop(), sink)
	e.BaselineProgress(context.Background(), time.Second, 1, 6)

	// cancelled contexts still deliver
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.Veto(ctx, 5, 5)

	entries, err := client.XRange(context.Background(), "focus:metrics", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, TypeBaselineProgress, entries[0].Values["type"])
	assert.Equal(t, TypeVeto, entries[1].Values["type"])

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(entries[1].Values["data"].(string)), &env))
	assert.Equal(t, TypeVeto, env.Type)
}

func TestWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	e := New(zap.NewNop(), NewWriterSink(&buf, "stdout"))
	e.Veto(context.Background(), 1, 2)
	e.Veto(context.Background(), 3, 4)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, 3.0, decode(t, []byte(lines[1]))["z_gamma"])
}
