// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// sdlink - Serial Data Link Protocol Tool
//
// A CLI tool for talking to, emulating and monitoring devices that use the
// AA BB framed serial data link protocol.

package main

import (
	"os"

	"github.com/Thermoquad/sdlink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
