// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Logging flags
	verbose   bool
	logFormat string

	// Indicator flags
	ledPins []string
)

var rootCmd = &cobra.Command{
	Use:   "mdplink",
	Short: "M01/P905 ESB link controller",
	Long: `mdplink - Drive the M01 <-> P905 Enhanced ShockBurst link from a host.

The radio is an ESB bridge dongle attached over serial, or reached through a
WebSocket bridge. mdplink configures it, runs the pairing and data-request
exchange with the P905, or captures raw link traffic for inspection.

Connection modes:
  Serial:    --port /dev/ttyACM0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the MDPLINK_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Logging flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")

	// Indicator flags
	rootCmd.PersistentFlags().StringSliceVar(&ledPins, "led-pins", nil, "GPIO pins for the heartbeat, error and activity LEDs (e.g. GPIO17,GPIO27,GPIO22)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
