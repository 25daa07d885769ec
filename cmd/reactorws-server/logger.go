// SPDX-License-Identifier: Apache-2.0

package main

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/xmidt-org/sallust"
)

type LoggerIn struct {
	fx.In
	CLI *CLI
	Cfg sallust.Config
}

// LoggerOut hands back both the logger and the zap.AtomicLevel backing it,
// so a LogLevelService can be provided from the same underlying level.
type LoggerOut struct {
	fx.Out
	Logger *zap.Logger
	Level  *zap.AtomicLevel
}

// Create the logger and configure it based on if the program is in
// debug mode or normal mode.
func provideLogger(in LoggerIn) (LoggerOut, error) {
	if in.CLI.Dev {
		in.Cfg.EncoderConfig.EncodeLevel = "capitalColor"
		in.Cfg.EncoderConfig.EncodeTime = "RFC3339"
		in.Cfg.Level = "DEBUG"
		in.Cfg.Development = true
		in.Cfg.Encoding = "console"
		in.Cfg.OutputPaths = append(in.Cfg.OutputPaths, "stderr")
		in.Cfg.ErrorOutputPaths = append(in.Cfg.ErrorOutputPaths, "stderr")
	}

	zcfg, err := in.Cfg.NewZapConfig()
	if err != nil {
		return LoggerOut{}, err
	}

	logger, err := zcfg.Build()
	if err != nil {
		return LoggerOut{}, err
	}

	level := zcfg.Level
	return LoggerOut{Logger: logger, Level: &level}, nil
}
