package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	serial "github.com/jacobsa/go-serial/serial"
	"go.uber.org/zap"

	"github.com/relabs-tech/focus_streamer/internal/eeg"
)

// closeWait bounds how long Close waits for the reader goroutine.
const closeWait = time.Second

// ErrLineFormat is returned for sample lines that do not hold one number
// per channel.
var ErrLineFormat = errors.New("bad sample line")

// ParseLine parses a comma separated sample line with one value per
// channel.
func ParseLine(line string, channels int) ([]float64, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != channels {
		return nil, fmt.Errorf("%w: %d fields, want %d", ErrLineFormat, len(fields), channels)
	}
	row := make([]float64, channels)
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLineFormat, err)
		}
		row[i] = v
	}
	return row, nil
}

// Serial reads comma separated sample lines from a serial port, e.g. a
// microcontroller streaming one line per sample.
type Serial struct {
	options    serial.OpenOptions
	sampleRate int
	channels   int
	logger     *zap.Logger
	open       func(serial.OpenOptions) (io.ReadWriteCloser, error)

	port io.ReadWriteCloser
	done chan struct{}

	mu      sync.Mutex
	rows    [][]float64
	bad     int64
	readErr error
}

// NewSerial creates a serial source for portName at baudRate.
func NewSerial(portName string, baudRate uint, sampleRate, channels int, logger *zap.Logger) *Serial {
	return &Serial{
		options: serial.OpenOptions{
			PortName:              portName,
			BaudRate:              baudRate,
			DataBits:              8,
			StopBits:              1,
			MinimumReadSize:       1,
			ParityMode:            serial.PARITY_NONE,
			InterCharacterTimeout: 0,
		},
		sampleRate: sampleRate,
		channels:   channels,
		logger:     logger,
		open:       serial.Open,
	}
}

func (s *Serial) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	port, err := s.open(s.options)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrConnect, s.options.PortName, err)
	}
	s.port = port
	s.done = make(chan struct{})
	s.logger.Info("serial source opened",
		zap.String("port", s.options.PortName), zap.Uint("baud", s.options.BaudRate))
	go s.readLoop()
	return nil
}

func (s *Serial) readLoop() {
	defer close(s.done)
	reader := bufio.NewReader(s.port)
	limit := maxPendingSeconds * s.sampleRate
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			return
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		row, err := ParseLine(line, s.channels)
		if err != nil {
			// partial lines are common right after the port opens
			s.mu.Lock()
			s.bad++
			s.mu.Unlock()
			continue
		}
		s.mu.Lock()
		s.rows = append(s.rows, row)
		if len(s.rows) > limit {
			s.rows = s.rows[len(s.rows)-limit:]
		}
		s.mu.Unlock()
	}
}

// Read drains buffered rows. Once the port fails the error is returned on
// every call.
func (s *Serial) Read(ctx context.Context) (eeg.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.port == nil {
		return nil, ErrNotConnected
	}
	s.mu.Lock()
	rows := s.rows
	s.rows = nil
	readErr := s.readErr
	s.mu.Unlock()

	if len(rows) == 0 && readErr != nil {
		return nil, fmt.Errorf("serial read %s: %w", s.options.PortName, readErr)
	}
	return RowsToFrame(rows, s.channels), nil
}

// Tag writes a marker line back to the device.
func (s *Serial) Tag(value float64) error {
	if s.port == nil {
		return ErrNotConnected
	}
	_, err := fmt.Fprintf(s.port, "M,%s\n", strconv.FormatFloat(value, 'f', -1, 64))
	return err
}

// BadLines is the number of lines dropped by the parser.
func (s *Serial) BadLines() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bad
}

func (s *Serial) SampleRate() int { return s.sampleRate }
func (s *Serial) Channels() int   { return s.channels }

func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	select {
	case <-s.done:
	case <-time.After(closeWait):
		s.logger.Warn("serial reader still blocked after close", zap.String("port", s.options.PortName))
	}
	s.port = nil
	return err
}
