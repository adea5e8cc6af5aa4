package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/focus_streamer/internal/veto"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1250, cfg.WindowLength())
	assert.Equal(t, 5000, cfg.Capacity())
	assert.Equal(t, 6, cfg.BaselineTarget())
	assert.Equal(t, 48, cfg.AttemptBudget())
	assert.Equal(t, 5*time.Second, cfg.WindowDuration())
	assert.Equal(t, 200*time.Millisecond, cfg.BaselinePoll())
	assert.Equal(t, 50*time.Millisecond, cfg.ScorePoll())
	assert.Equal(t, 3*time.Second, cfg.ConnectPause())
	assert.True(t, cfg.HasSink(SinkUDP))
	assert.False(t, cfg.HasSink(SinkRedis))
}

func TestLoadKeyValue(t *testing.T) {
	path := writeFile(t, "focus_config.txt", `
# acquisition
SOURCE_KIND=nats
SAMPLE_RATE=4
WINDOW_SECONDS=5
USE_CLEAN=false

VETO_MODE=Strict
VETO_Z=2.5
MAX_CONSEC_VETO=4
SINKS=udp, MQTT ,redis
LOG_LEVEL=debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, SourceNATS, cfg.SourceKind)
	assert.Equal(t, 20, cfg.WindowLength())
	assert.False(t, cfg.UseClean)
	assert.Equal(t, veto.ModeStrict, cfg.VetoMode)
	assert.Equal(t, 2.5, cfg.VetoZ)
	assert.Equal(t, 4, cfg.MaxConsecVeto)
	assert.Equal(t, []string{"udp", "mqtt", "redis"}, cfg.Sinks)
	assert.Equal(t, "debug", cfg.LogLevel)
	// untouched keys keep their defaults
	assert.Equal(t, 30, cfg.BaselineSeconds)
	assert.Equal(t, "127.0.0.1:7790", cfg.ControlAddr)
}

func TestLoadKeyValueErrors(t *testing.T) {
	cases := map[string]string{
		"unknown key":   "NOPE=1\n",
		"missing equal": "SAMPLE_RATE\n",
		"bad int":       "SAMPLE_RATE=fast\n",
		"out of range":  "CHANNELS=0\n",
		"bad mode":      "VETO_MODE=paranoid\n",
		"bad bool":      "USE_CLEAN=maybe\n",
		"bad source":    "SOURCE_KIND=bluetooth\n",
		"bad sink":      "SINKS=kafka\n",
		"serial port":   "SOURCE_KIND=serial\n",
	}
	for name, content := range cases {
		_, err := Load(writeFile(t, "cfg.txt", content))
		assert.Error(t, err, name)
	}
}

func TestLoadReportsLineNumber(t *testing.T) {
	_, err := Load(writeFile(t, "cfg.txt", "# header\n\nSAMPLE_RATE=x\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config line 3")
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "focus.yaml", `
source_kind: serial
serial_port: /dev/ttyUSB0
sample_rate: 128
veto_mode: "OFF"
sinks: [udp, nats]
control_topic: focus/control
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, SourceSerial, cfg.SourceKind)
	assert.Equal(t, "/dev/ttyUSB0", cfg.SerialPort)
	assert.Equal(t, 128, cfg.SampleRate)
	assert.Equal(t, veto.ModeOff, cfg.VetoMode)
	assert.Equal(t, []string{"udp", "nats"}, cfg.Sinks)
	assert.Equal(t, "focus/control", cfg.ControlTopic)
	assert.Equal(t, 4, cfg.Channels)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.txt"))
	assert.Error(t, err)
}
