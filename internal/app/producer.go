package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/focus_streamer/internal/config"
	"github.com/relabs-tech/focus_streamer/internal/source"
	"github.com/relabs-tech/focus_streamer/internal/transport"
)

// RunProducer publishes synthetic sample blocks of batch samples on the
// NATS frame subject, paced at the configured sample rate.
func RunProducer(cfg *config.Config, logger *zap.Logger, batch int) error {
	if batch < 1 {
		return fmt.Errorf("batch must be positive, got %d", batch)
	}
	nc, err := transport.ConnectNATS(cfg.NATSURL, cfg.MQTTClientID+"-producer")
	if err != nil {
		return err
	}
	defer nc.Drain()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	synth := source.NewSynth(cfg.SampleRate, cfg.Channels, uint64(time.Now().UnixNano()))
	period := time.Duration(batch) * time.Second / time.Duration(cfg.SampleRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	logger.Info("producer: publishing",
		zap.String("subject", cfg.NATSSubjectFrames),
		zap.Int("sample_rate", cfg.SampleRate),
		zap.Int("channels", cfg.Channels),
		zap.Int("batch", batch))

	var published int64
	for {
		select {
		case <-ctx.Done():
			logger.Info("producer: stopping", zap.Int64("messages", published))
			return nil
		case <-ticker.C:
			frame := source.RowsToFrame(synth.Rows(batch), cfg.Channels)
			if err := nc.Publish(cfg.NATSSubjectFrames, source.EncodeFrame(frame)); err != nil {
				logger.Warn("producer: publish failed", zap.Error(err))
				continue
			}
			published++
		}
	}
}
