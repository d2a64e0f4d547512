// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// setupLogging configures the standard logrus logger from the root flags.
func setupLogging(cmd *cobra.Command, args []string) error {
	log.SetOutput(os.Stderr)

	switch logFormat {
	case "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp: verbose,
		})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q (use text or json)", logFormat)
	}

	if verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
	return nil
}

// logEntry returns the command logger.
func logEntry() *log.Entry {
	return log.NewEntry(log.StandardLogger())
}

// silenceLogging routes log output away from the terminal while a TUI owns
// the screen. The returned function restores it.
func silenceLogging() func() {
	log.SetOutput(io.Discard)
	return func() { log.SetOutput(os.Stderr) }
}
