package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/relabs-tech/focus_streamer/internal/config"
	"github.com/relabs-tech/focus_streamer/internal/emitter"
	"github.com/relabs-tech/focus_streamer/internal/transport"
)

// RunConsoleMQTT prints every message published on the metrics topic
// until interrupted.
func RunConsoleMQTT(cfg *config.Config, logger *zap.Logger) error {
	client, err := transport.ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientID+"-console")
	if err != nil {
		return err
	}
	logger.Info("console: connected to MQTT broker", zap.String("broker", cfg.MQTTBroker))

	token := client.Subscribe(cfg.TopicMetrics, 0, func(_ mqtt.Client, msg mqtt.Message) {
		if err := printMetric(os.Stdout, msg.Payload()); err != nil {
			logger.Warn("console: unreadable metrics payload", zap.Error(err))
		}
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	logger.Info("console: subscribed", zap.String("topic", cfg.TopicMetrics))

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("console: shutting down")
	client.Disconnect(250)
	return nil
}

// printMetric writes one human readable line for a metrics payload.
func printMetric(w io.Writer, payload []byte) error {
	var env emitter.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return err
	}

	switch env.Type {
	case emitter.TypeBaselineProgress:
		var m emitter.BaselineProgress
		if err := json.Unmarshal(payload, &m); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "[BASE] %d/%d windows  elapsed=%.1fs\n", m.Count, m.Target, m.Elapsed)
		return err

	case emitter.TypeBaselineReady:
		var m emitter.BaselineReady
		if err := json.Unmarshal(payload, &m); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w,
			"[BASE] ready  mu_raw=%.4f sigma_raw=%.4f  mu_gamma=%.4g sigma_gamma=%.4g  mu_total=%.4g sigma_total=%.4g\n",
			m.MuRaw, m.SigmaRaw, m.MuGamma, m.SigmaGamma, m.MuTotal, m.SigmaTotal)
		return err

	case emitter.TypeVeto:
		var m emitter.Veto
		if err := json.Unmarshal(payload, &m); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "[VETO] z_gamma=%6.2f  z_total=%6.2f\n", m.ZGamma, m.ZTotal)
		return err

	case emitter.TypeConcentration:
		var m emitter.Concentration
		if err := json.Unmarshal(payload, &m); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "[FOCUS] score=%3d  z=%+6.2f  raw=%.4f  %s\n", m.Score, m.Z, m.Raw, m.Label)
		return err

	default:
		return fmt.Errorf("unknown message type %q", env.Type)
	}
}
