// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/relabs-tech/focus_streamer/internal/config"
	"github.com/relabs-tech/focus_streamer/internal/control"
	"github.com/relabs-tech/focus_streamer/internal/dsp"
	"github.com/relabs-tech/focus_streamer/internal/emitter"
	"github.com/relabs-tech/focus_streamer/internal/pipeline"
	"github.com/relabs-tech/focus_streamer/internal/source"
	"github.com/relabs-tech/focus_streamer/internal/transport"
)

// mockSeed keeps the synthetic source reproducible between runs.
const mockSeed = 42

// RunStreamer runs the focus streamer until a shutdown command, SIGINT or
// SIGTERM arrives. It returns an error only for fatal conditions: the
// source could not be connected or the baseline could not be built.
func RunStreamer(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runStreamer(ctx, cfg, logger, os.Stdout)
}

// conns holds the broker connections shared by sinks and the control
// plane, so each broker is dialled at most once.
type conns struct {
	mqtt mqtt.Client
	nats *nats.Conn
}

func (c *conns) close() {
	if c.mqtt != nil {
		c.mqtt.Disconnect(250)
	}
	if c.nats != nil {
		_ = c.nats.Drain()
	}
}

func runStreamer(ctx context.Context, cfg *config.Config, logger *zap.Logger, stdout io.Writer) error {
	logger = logger.With(zap.String("run_id", uuid.NewString()))
	logger.Info("starting focus streamer",
		zap.String("source", cfg.SourceKind),
		zap.Int("sample_rate", cfg.SampleRate),
		zap.Int("window_length", cfg.WindowLength()),
		zap.Int("capacity", cfg.Capacity()),
		zap.Int("baseline_target", cfg.BaselineTarget()),
		zap.Int("attempt_budget", cfg.AttemptBudget()),
		zap.Strings("sinks", cfg.Sinks))

	sig := control.NewSignal(ctx)

	c := &conns{}
	defer c.close()
	if err := c.dial(cfg, logger); err != nil {
		return err
	}

	sinks, err := buildSinks(cfg, c, stdout)
	if err != nil {
		return err
	}
	em := emitter.New(logger, sinks...)
	defer em.Close()

	// listeners outlive the shutdown request and stop when the run ends
	listenCtx, stopListeners := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	defer func() {
		stopListeners()
		wg.Wait()
	}()
	transports, err := buildControl(cfg, c)
	if err != nil {
		return err
	}
	for _, t := range transports {
		l := control.NewListener(t, sig, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Run(listenCtx)
		}()
	}

	src, err := buildSource(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Warn("source close failed", zap.Error(err))
		}
	}()

	proc := pipeline.New(src, dsp.Detrender{}, dsp.NewPeriodogram(!cfg.UseClean), em,
		pipeline.OptionsFromConfig(cfg), logger)
	if err := proc.Run(sig.Context()); err != nil {
		return err
	}
	if sig.Requested() {
		logger.Info("stop requested", zap.String("reason", sig.Reason()))
	}
	return nil
}

func (c *conns) dial(cfg *config.Config, logger *zap.Logger) error {
	if cfg.HasSink(config.SinkMQTT) || cfg.ControlTopic != "" {
		client, err := transport.ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			return err
		}
		c.mqtt = client
		logger.Info("connected to MQTT broker", zap.String("broker", cfg.MQTTBroker))
	}
	if cfg.HasSink(config.SinkNATS) {
		nc, err := transport.ConnectNATS(cfg.NATSURL, cfg.MQTTClientID+"-metrics")
		if err != nil {
			return err
		}
		c.nats = nc
		logger.Info("connected to NATS", zap.String("url", cfg.NATSURL))
	}
	return nil
}

func buildSinks(cfg *config.Config, c *conns, stdout io.Writer) ([]emitter.Sink, error) {
	var sinks []emitter.Sink
	for _, name := range cfg.Sinks {
		switch name {
		case config.SinkUDP:
			s, err := emitter.DialUDP(cfg.MetricAddr)
			if err != nil {
				closeSinks(sinks)
				return nil, err
			}
			sinks = append(sinks, s)
		case config.SinkMQTT:
			sinks = append(sinks, emitter.NewMQTTSink(c.mqtt, cfg.TopicMetrics))
		case config.SinkNATS:
			sinks = append(sinks, emitter.NewNATSSink(c.nats, cfg.NATSSubjectMetrics))
		case config.SinkRedis:
			sinks = append(sinks, emitter.NewRedisSink(transport.NewRedis(cfg.RedisAddr), cfg.RedisStream))
		case config.SinkConsole:
			sinks = append(sinks, emitter.NewWriterSink(stdout, "stdout"))
		default:
			closeSinks(sinks)
			return nil, fmt.Errorf("unknown sink %q", name)
		}
	}
	return sinks, nil
}

func closeSinks(sinks []emitter.Sink) {
	for _, s := range sinks {
		_ = s.Close()
	}
}

func buildControl(cfg *config.Config, c *conns) ([]control.Transport, error) {
	var out []control.Transport
	if cfg.ControlAddr != "" {
		t, err := control.ListenUDP(cfg.ControlAddr)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if cfg.ControlTopic != "" {
		t, err := control.SubscribeMQTT(c.mqtt, cfg.ControlTopic)
		if err != nil {
			for _, o := range out {
				_ = o.Close()
			}
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func buildSource(cfg *config.Config, logger *zap.Logger) (source.Source, error) {
	switch cfg.SourceKind {
	case config.SourceMock:
		return source.NewMock(cfg.SampleRate, cfg.Channels, mockSeed), nil
	case config.SourceNATS:
		return source.NewNATS(cfg.NATSURL, cfg.NATSSubjectFrames, cfg.SampleRate, cfg.Channels, logger), nil
	case config.SourceSerial:
		return source.NewSerial(cfg.SerialPort, uint(cfg.SerialBaudRate), cfg.SampleRate, cfg.Channels, logger), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.SourceKind)
	}
}
