// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"go.uber.org/zap"

	"github.com/relabs-tech/focus_streamer/internal/config"
)

// RunMockConsole runs the streamer on the synthetic source and prints the
// outcomes on stdout. No broker is needed; the UDP control plane stays on
// when CONTROL_ADDR is set.
func RunMockConsole(cfg *config.Config, logger *zap.Logger) error {
	local := *cfg
	local.SourceKind = config.SourceMock
	local.Sinks = []string{config.SinkConsole}
	local.ControlTopic = ""
	if err := local.Validate(); err != nil {
		return err
	}
	return RunStreamer(&local, logger)
}
