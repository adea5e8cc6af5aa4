// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/relabs-tech/focus_streamer/internal/app"
	"github.com/relabs-tech/focus_streamer/internal/baseline"
	"github.com/relabs-tech/focus_streamer/internal/config"
	"github.com/relabs-tech/focus_streamer/internal/logger"
	"github.com/relabs-tech/focus_streamer/internal/pipeline"
	"github.com/relabs-tech/focus_streamer/internal/veto"
)

func main() {
	configPath := flag.String("config", "./focus_config.txt", "path to configuration file")
	sourceKind := flag.String("source", "", "override SOURCE_KIND (mock, nats, serial)")
	vetoMode := flag.String("veto-mode", "", "override VETO_MODE (off, lenient, strict)")
	vetoZ := flag.Float64("veto-z", veto.DefaultThreshold, "override VETO_Z")
	maxConsec := flag.Int("max-consec-veto", veto.DefaultMaxConsecutive, "override MAX_CONSEC_VETO")
	noClean := flag.Bool("no-clean", false, "skip the cleaning step before band decomposition")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// only flags given on the command line override the file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "source":
			cfg.SourceKind = *sourceKind
		case "veto-mode":
			cfg.VetoMode = veto.Mode(*vetoMode)
		case "veto-z":
			cfg.VetoZ = *vetoZ
		case "max-consec-veto":
			cfg.MaxConsecVeto = max(0, *maxConsec)
		case "no-clean":
			cfg.UseClean = !*noClean
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "focus-streamer")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := app.RunStreamer(cfg, log); err != nil {
		var acqErr *pipeline.AcquisitionError
		switch {
		case errors.As(err, &acqErr):
			log.Error("could not connect to the sample source", zap.Int("attempts", acqErr.Attempts), zap.Error(err))
		case errors.Is(err, baseline.ErrCalibrationInsufficient):
			log.Error("baseline calibration failed", zap.Error(err))
		default:
			log.Error("fatal", zap.Error(err))
		}
		log.Sync()
		os.Exit(1)
	}
}
