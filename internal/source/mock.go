package source

import (
	"context"
	"sync"
	"time"

	"github.com/relabs-tech/focus_streamer/internal/eeg"
)

// maxCatchUp bounds how much synthetic data a single Read produces after
// a long pause.
const maxCatchUp = 10 * time.Second

// Mock is a synthetic source paced by the wall clock: each Read returns the
// samples that would have arrived since the previous one.
type Mock struct {
	sampleRate int
	channels   int
	synth      *Synth
	now        func() time.Time

	mu        sync.Mutex
	connected bool
	start     time.Time
	markers   []float64
}

// NewMock creates a mock source.
func NewMock(sampleRate, channels int, seed uint64) *Mock {
	return &Mock{
		sampleRate: sampleRate,
		channels:   channels,
		synth:      NewSynth(sampleRate, channels, seed),
		now:        time.Now,
	}
}

// WithClock replaces the wall clock.
func (m *Mock) WithClock(now func() time.Time) *Mock {
	m.now = now
	return m
}

func (m *Mock) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	m.start = m.now()
	return nil
}

func (m *Mock) Read(ctx context.Context) (eeg.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, ErrNotConnected
	}

	elapsed := m.now().Sub(m.start)
	due := int64(elapsed.Seconds() * float64(m.sampleRate))
	n := int(due - m.synth.Emitted())
	if limit := int(maxCatchUp.Seconds()) * m.sampleRate; n > limit {
		// skip ahead instead of generating a backlog
		m.synth.Skip(int64(n - limit))
		n = limit
	}
	if n <= 0 {
		return nil, nil
	}
	return RowsToFrame(m.synth.Rows(n), m.channels), nil
}

// Tag records the marker locally.
func (m *Mock) Tag(value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.markers = append(m.markers, value)
	return nil
}

// Markers returns the tags recorded so far.
func (m *Mock) Markers() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.markers...)
}

func (m *Mock) SampleRate() int { return m.sampleRate }
func (m *Mock) Channels() int   { return m.channels }

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}
