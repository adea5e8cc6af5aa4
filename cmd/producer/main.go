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
	batch := flag.Int("batch", 25, "samples per published block")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "focus-producer")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := app.RunProducer(cfg, log, *batch); err != nil {
		log.Fatal("fatal", zap.Error(err))
	}
}
