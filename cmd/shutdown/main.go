package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/relabs-tech/focus_streamer/internal/app"
	"github.com/relabs-tech/focus_streamer/internal/config"
	"github.com/relabs-tech/focus_streamer/internal/logger"
)

func main() {
	configPath := flag.String("config", "./focus_config.txt", "path to configuration file")
	via := flag.String("via", app.ViaUDP, "transport for the command: udp or mqtt")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "focus-shutdown")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := app.SendShutdown(cfg, *via, log); err != nil {
		log.Fatal("fatal", zap.Error(err))
	}
}
