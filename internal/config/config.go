// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/focus_streamer/internal/baseline"
	"github.com/relabs-tech/focus_streamer/internal/veto"
	"github.com/relabs-tech/focus_streamer/internal/window"
)

// Source kinds.
const (
	SourceMock   = "mock"
	SourceNATS   = "nats"
	SourceSerial = "serial"
)

// Sink names accepted in SINKS.
const (
	SinkUDP   = "udp"
	SinkMQTT  = "mqtt"
	SinkNATS  = "nats"
	SinkRedis = "redis"
	// SinkConsole prints one JSON line per message on stdout.
	SinkConsole = "console"
)

// Config holds all application configuration values. It is built once at
// startup and passed by value or pointer to constructors; nothing mutates
// it afterwards.
type Config struct {
	// Acquisition
	SourceKind string `yaml:"source_kind"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`

	// Analysis
	WindowSeconds   int  `yaml:"window_seconds"`
	BaselineSeconds int  `yaml:"baseline_seconds"`
	UseClean        bool `yaml:"use_clean"`

	// Artefact veto
	VetoMode      veto.Mode `yaml:"veto_mode"`
	VetoZ         float64   `yaml:"veto_z"`
	MaxConsecVeto int       `yaml:"max_consec_veto"`

	// Timing (milliseconds)
	ConnectRetries int `yaml:"connect_retries"`
	ConnectPauseMS int `yaml:"connect_pause_ms"`
	BaselinePollMS int `yaml:"baseline_poll_ms"`
	ScorePollMS    int `yaml:"score_poll_ms"`

	// Outputs
	Sinks      []string `yaml:"sinks"`
	MetricAddr string   `yaml:"metric_addr"` // UDP host:port for JSON metrics

	// Control plane; an empty value disables that transport
	ControlAddr  string `yaml:"control_addr"`  // UDP host:port
	ControlTopic string `yaml:"control_topic"` // MQTT topic

	// MQTT
	MQTTBroker   string `yaml:"mqtt_broker"`
	MQTTClientID string `yaml:"mqtt_client_id"`
	TopicMetrics string `yaml:"topic_metrics"`

	// NATS
	NATSURL            string `yaml:"nats_url"`
	NATSSubjectFrames  string `yaml:"nats_subject_frames"`
	NATSSubjectMetrics string `yaml:"nats_subject_metrics"`

	// Redis
	RedisAddr   string `yaml:"redis_addr"`
	RedisStream string `yaml:"redis_stream"`

	// Serial
	SerialPort     string `yaml:"serial_port"`
	SerialBaudRate int    `yaml:"serial_baud_rate"`

	// Web monitor
	WebServerPort int `yaml:"web_server_port"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the configuration used when no file overrides a value.
func Default() Config {
	return Config{
		SourceKind: SourceMock,
		SampleRate: 250,
		Channels:   4,

		WindowSeconds:   5,
		BaselineSeconds: 30,
		UseClean:        true,

		VetoMode:      veto.ModeLenient,
		VetoZ:         veto.DefaultThreshold,
		MaxConsecVeto: veto.DefaultMaxConsecutive,

		ConnectRetries: 3,
		ConnectPauseMS: 3000,
		BaselinePollMS: 200,
		ScorePollMS:    50,

		Sinks:      []string{SinkUDP},
		MetricAddr: "127.0.0.1:7788",

		ControlAddr: "127.0.0.1:7790",

		MQTTBroker:   "tcp://localhost:1883",
		MQTTClientID: "focus-streamer",
		TopicMetrics: "focus/metrics",

		NATSURL:            "nats://127.0.0.1:4222",
		NATSSubjectFrames:  "eeg.frames",
		NATSSubjectMetrics: "focus.metrics",

		RedisAddr:   "localhost:6379",
		RedisStream: "focus:metrics",

		SerialBaudRate: 115200,

		WebServerPort: 8080,

		LogLevel:  "info",
		LogFormat: "json",
	}
}

// WindowLength is the number of samples per analysis window.
func (c *Config) WindowLength() int { return c.SampleRate * c.WindowSeconds }

// Capacity is the accumulator bound in columns.
func (c *Config) Capacity() int { return window.CapacityWindows * c.WindowLength() }

// BaselineTarget is the number of clean windows calibration aims for.
func (c *Config) BaselineTarget() int {
	return baseline.TargetWindows(c.BaselineSeconds, c.WindowSeconds)
}

// AttemptBudget caps the windows calibration may consume.
func (c *Config) AttemptBudget() int { return c.BaselineTarget() * baseline.AttemptFactor }

// WindowDuration is the wall-clock span of one window.
func (c *Config) WindowDuration() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

func (c *Config) ConnectPause() time.Duration { return ms(c.ConnectPauseMS) }
func (c *Config) BaselinePoll() time.Duration { return ms(c.BaselinePollMS) }
func (c *Config) ScorePoll() time.Duration    { return ms(c.ScorePollMS) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// HasSink reports whether the named sink is enabled.
func (c *Config) HasSink(name string) bool {
	for _, s := range c.Sinks {
		if s == name {
			return true
		}
	}
	return false
}

// Load reads the configuration file and returns a Config. Files ending in
// .yaml or .yml are decoded as YAML; anything else uses KEY=VALUE lines.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		if err := cfg.loadYAML(configPath); err != nil {
			return nil, err
		}
	default:
		if err := cfg.loadKeyValue(configPath); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadYAML(configPath string) error {
	file, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(c); err != nil {
		return fmt.Errorf("failed to decode YAML config: %w", err)
	}
	return nil
}

func (c *Config) loadKeyValue(configPath string) error {
	file, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := c.setValue(key, value); err != nil {
			return fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Acquisition
	case "SOURCE_KIND":
		c.SourceKind = value
	case "SAMPLE_RATE":
		c.SampleRate, err = intInRange(key, value, 1, 100000)
	case "CHANNELS":
		c.Channels, err = intInRange(key, value, 1, 256)

	// Analysis
	case "WINDOW_SECONDS":
		c.WindowSeconds, err = intInRange(key, value, 1, 600)
	case "BASELINE_SECONDS":
		c.BaselineSeconds, err = intInRange(key, value, 1, 3600)
	case "USE_CLEAN":
		c.UseClean, err = strconv.ParseBool(value)
		if err != nil {
			err = fmt.Errorf("invalid %s %q: %w", key, value, err)
		}

	// Veto
	case "VETO_MODE":
		c.VetoMode, err = veto.ParseMode(value)
	case "VETO_Z":
		c.VetoZ, err = strconv.ParseFloat(value, 64)
		if err != nil {
			err = fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
	case "MAX_CONSEC_VETO":
		c.MaxConsecVeto, err = intInRange(key, value, 0, 1000)

	// Timing
	case "CONNECT_RETRIES":
		c.ConnectRetries, err = intInRange(key, value, 1, 100)
	case "CONNECT_PAUSE_MS":
		c.ConnectPauseMS, err = intInRange(key, value, 0, 600000)
	case "BASELINE_POLL_MS":
		c.BaselinePollMS, err = intInRange(key, value, 1, 1000)
	case "SCORE_POLL_MS":
		c.ScorePollMS, err = intInRange(key, value, 1, 1000)

	// Outputs
	case "SINKS":
		c.Sinks = splitList(value)
	case "METRIC_ADDR":
		c.MetricAddr = value

	// Control
	case "CONTROL_ADDR":
		c.ControlAddr = value
	case "CONTROL_TOPIC":
		c.ControlTopic = value

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "TOPIC_METRICS":
		c.TopicMetrics = value

	// NATS
	case "NATS_URL":
		c.NATSURL = value
	case "NATS_SUBJECT_FRAMES":
		c.NATSSubjectFrames = value
	case "NATS_SUBJECT_METRICS":
		c.NATSSubjectMetrics = value

	// Redis
	case "REDIS_ADDR":
		c.RedisAddr = value
	case "REDIS_STREAM":
		c.RedisStream = value

	// Serial
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		c.SerialBaudRate, err = intInRange(key, value, 1, 4000000)

	// Web
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = intInRange(key, value, 1, 65535)

	// Logging
	case "LOG_LEVEL":
		c.LogLevel = value
	case "LOG_FORMAT":
		c.LogFormat = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}
	return err
}

func intInRange(key, value string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, lo, hi, v)
	}
	return v, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that the configuration is usable and normalizes the veto
// mode and sink names. It is called by Load and again after command-line
// overrides.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("SAMPLE_RATE must be positive")
	}
	if c.Channels <= 0 {
		return fmt.Errorf("CHANNELS must be positive")
	}
	if c.WindowSeconds <= 0 {
		return fmt.Errorf("WINDOW_SECONDS must be positive")
	}
	if c.BaselineSeconds <= 0 {
		return fmt.Errorf("BASELINE_SECONDS must be positive")
	}
	mode, err := veto.ParseMode(string(c.VetoMode))
	if err != nil {
		return err
	}
	c.VetoMode = mode
	if c.ConnectRetries <= 0 {
		return fmt.Errorf("CONNECT_RETRIES must be positive")
	}
	if c.BaselinePollMS <= 0 || c.ScorePollMS <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}

	switch c.SourceKind {
	case SourceMock:
	case SourceNATS:
		if c.NATSURL == "" || c.NATSSubjectFrames == "" {
			return fmt.Errorf("NATS_URL and NATS_SUBJECT_FRAMES are required for the nats source")
		}
	case SourceSerial:
		if c.SerialPort == "" {
			return fmt.Errorf("SERIAL_PORT is required for the serial source")
		}
	default:
		return fmt.Errorf("unknown SOURCE_KIND %q", c.SourceKind)
	}

	c.Sinks = splitList(strings.Join(c.Sinks, ","))
	if len(c.Sinks) == 0 {
		return fmt.Errorf("SINKS must name at least one sink")
	}
	for _, s := range c.Sinks {
		switch s {
		case SinkUDP:
			if c.MetricAddr == "" {
				return fmt.Errorf("METRIC_ADDR is required for the udp sink")
			}
		case SinkMQTT:
			if c.MQTTBroker == "" || c.TopicMetrics == "" {
				return fmt.Errorf("MQTT_BROKER and TOPIC_METRICS are required for the mqtt sink")
			}
		case SinkNATS:
			if c.NATSURL == "" || c.NATSSubjectMetrics == "" {
				return fmt.Errorf("NATS_URL and NATS_SUBJECT_METRICS are required for the nats sink")
			}
		case SinkRedis:
			if c.RedisAddr == "" || c.RedisStream == "" {
				return fmt.Errorf("REDIS_ADDR and REDIS_STREAM are required for the redis sink")
			}
		case SinkConsole:
		default:
			return fmt.Errorf("unknown sink %q", s)
		}
	}

	if c.ControlTopic != "" && c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required when CONTROL_TOPIC is set")
	}
	return nil
}
