package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/relabs-tech/focus_streamer/internal/config"
	"github.com/relabs-tech/focus_streamer/internal/control"
	"github.com/relabs-tech/focus_streamer/internal/transport"
)

// Ways of delivering the shutdown command.
const (
	ViaUDP  = "udp"
	ViaMQTT = "mqtt"
)

// SendShutdown asks a running streamer to stop.
func SendShutdown(cfg *config.Config, via string, logger *zap.Logger) error {
	cmd := control.Command{Cmd: control.CmdShutdown}
	switch via {
	case ViaUDP:
		if cfg.ControlAddr == "" {
			return fmt.Errorf("CONTROL_ADDR is not set")
		}
		if err := control.SendUDP(cfg.ControlAddr, cmd); err != nil {
			return err
		}
		logger.Info("shutdown sent", zap.String("addr", cfg.ControlAddr))
	case ViaMQTT:
		if cfg.ControlTopic == "" {
			return fmt.Errorf("CONTROL_TOPIC is not set")
		}
		client, err := transport.ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientID+"-shutdown")
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		if err := control.PublishMQTT(client, cfg.ControlTopic, cmd); err != nil {
			return err
		}
		logger.Info("shutdown sent", zap.String("topic", cfg.ControlTopic))
	default:
		return fmt.Errorf("unknown transport %q (want udp or mqtt)", via)
	}
	return nil
}
