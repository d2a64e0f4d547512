// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// mdplink - M01/P905 ESB link controller
//
// A CLI tool that drives an Enhanced ShockBurst bridge dongle to run the
// M01 side of the P905 link, or to capture raw link traffic.

package main

import (
	"os"

	"github.com/Thermoquad/mdplink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
