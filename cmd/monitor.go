// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/Thermoquad/mdplink/pkg/bridge"
	"github.com/Thermoquad/mdplink/pkg/esb"
	"github.com/Thermoquad/mdplink/pkg/link"
	"github.com/spf13/cobra"
)

var (
	monitorListen bool
	monitorFrames bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display bridge messages in human-readable format",
	Long: `Continuously decode and display bridge messages as they arrive.

With --listen (the default) the radio is first configured to receive, so
RX_RECEIVED messages start flowing. With --frames every received ESB frame is
also dumped in full.

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorListen, "listen", true, "Configure the radio to receive before monitoring")
	monitorCmd.Flags().BoolVar(&monitorFrames, "frames", false, "Dump received ESB frames")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	profile, err := radioProfile()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	ep, err := endpointFromFlags()
	if err != nil {
		return err
	}
	conn, err := ep.dial(ctx)
	if err != nil {
		return err
	}

	logger := logEntry()

	fmt.Printf("mdplink - Bridge Monitor\n")
	fmt.Printf("Connection: %s\n", ep)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	var count uint64
	driver := link.NewBridgeDriver(conn, link.NewEvents(logger),
		link.WithLogger(logger),
		link.WithRadioConfig(profile),
		link.WithAckTimeout(bridgeAckTimeout),
		link.WithMonitor(func(msg *bridge.Message) {
			fmt.Print(bridge.FormatMessage(msg))
			if monitorFrames && msg.Type() == bridge.MsgRxReceived {
				if f, err := msg.Frame(); err == nil {
					fmt.Print(esb.FormatFrame(count, f))
					count++
				}
			}
		}),
	)
	driver.Start(ctx)

	if monitorListen {
		if err := driver.Reinit(link.ModeReceive); err != nil {
			driver.Close()
			return fmt.Errorf("failed to configure radio: %w", err)
		}
	}

	<-driver.Done()
	if crc, other := driver.DecodeErrors(); crc > 0 || other > 0 {
		fmt.Printf("%d CRC errors, %d decode errors\n", crc, other)
	}

	switch err := driver.Err(); {
	case errors.Is(err, context.Canceled):
		return nil
	case errors.Is(err, link.ErrClosed):
		logger.Info("Connection closed")
		return nil
	default:
		return err
	}
}
