// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logWriter *lumberjack.Logger

// newLogger builds the CLI logger: human readable on out, JSON in the
// rotated log file when one is given.
func newLogger(level, file string, out io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q", level)
	}

	var w io.Writer = zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "15:04:05.000",
	}
	if file != "" {
		closeLogFile()
		logWriter = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    5,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
		w = io.MultiWriter(w, logWriter)
	}

	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Str("app", "sdlink").
		Logger(), nil
}

func closeLogFile() {
	if logWriter != nil {
		logWriter.Close()
		logWriter = nil
	}
}
