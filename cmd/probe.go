// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/mdplink/pkg/link"
	"github.com/spf13/cobra"
)

var (
	probeTimeout   time.Duration
	probeCount     int
	probeConfigure bool
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check that the bridge dongle answers",
	Long: `Send PING messages to the bridge dongle and wait for PONG.

With --configure the radio profile is also sent once, and the bridge must
accept it.

Exit codes:
  0 - All pings answered
  1 - One or more pings failed or timed out
  2 - Connection error`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 2*time.Second, "Time to wait for each pong")
	probeCmd.Flags().IntVar(&probeCount, "count", 3, "Number of pings to send")
	probeCmd.Flags().BoolVar(&probeConfigure, "configure", false, "Also check that the bridge accepts the radio profile")
}

func runProbe(cmd *cobra.Command, args []string) error {
	profile, err := radioProfile()
	if err != nil {
		return err
	}

	// Cancelling ctx makes the driver close the transport.
	ctx, stop := signalContext()
	defer stop()

	ep, err := endpointFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	conn, err := ep.dial(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	logger := logEntry()
	events := link.NewEvents(logger)
	driver := link.NewBridgeDriver(conn, events,
		link.WithLogger(logger),
		link.WithRadioConfig(profile),
		link.WithAckTimeout(probeTimeout),
	)
	driver.Start(ctx)

	fmt.Printf("mdplink - Bridge Probe\n")
	fmt.Printf("Connection: %s\n", ep)
	fmt.Printf("Timeout: %v per ping\n", probeTimeout)
	fmt.Printf("Count: %d pings\n\n", probeCount)

	sent := 0
	successCount := 0
	failCount := 0

	for i := 1; i <= probeCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, probeCount)

		sent++
		pingCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		startTime := time.Now()
		uptime, err := driver.Ping(pingCtx)
		cancel()

		switch {
		case err == nil:
			rtt := time.Since(startTime)
			fmt.Printf("PONG, uptime=%s, rtt=%v\n", formatUptime(uptime), rtt.Round(time.Millisecond))
			successCount++
		case err == context.DeadlineExceeded:
			fmt.Printf("TIMEOUT (no response in %v)\n", probeTimeout)
			failCount++
		default:
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		}

		if ctx.Err() != nil || driver.Err() != nil {
			break
		}

		// Small delay between pings
		if i < probeCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	if probeConfigure && driver.Err() == nil {
		fmt.Printf("Configure (channel %d): ", profile.Channel)
		if err := driver.Reinit(link.ModeReceive); err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		} else {
			fmt.Printf("OK\n")
			_ = driver.Disable()
		}
	}

	crcErrors, decodeErrors := driver.DecodeErrors()

	// Summary
	fmt.Printf("\n--- Probe statistics ---\n")
	fmt.Printf("%d pings sent, %d pongs received\n", sent, successCount)
	if crcErrors > 0 || decodeErrors > 0 {
		fmt.Printf("%d CRC errors, %d decode errors\n", crcErrors, decodeErrors)
	}

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
