// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/mdplink/pkg/capture"
	"github.com/Thermoquad/mdplink/pkg/esb"
	"github.com/Thermoquad/mdplink/pkg/session"
	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	captureCapacity int
	captureSkip     []string
	captureProgress bool
	captureBatches  int
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture raw link traffic in batches",
	Long: `Listen on the link and dump received frames.

Frames are collected into a buffer. When it fills, the radio is disabled, the
whole batch is dumped, and listening resumes. Frames whose response code is
in the skip list are dropped. The code is bytes 0-1 read little-endian, so
wire bytes 07 06 match --skip 0x0607.

Examples:
  mdplink capture -p /dev/ttyACM0
  mdplink capture -p /dev/ttyACM0 --skip 0x0607 --skip 0x1B07 --capacity 16`,
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)
	captureCmd.Flags().IntVar(&captureCapacity, "capacity", capture.DefaultCapacity, "Frames per batch")
	captureCmd.Flags().StringArrayVar(&captureSkip, "skip", nil, "Response code to drop, in hex (repeatable)")
	captureCmd.Flags().BoolVar(&captureProgress, "progress", false, "Show batch fill progress")
	captureCmd.Flags().IntVar(&captureBatches, "batches", 0, "Stop after this many batches (0 runs until interrupted)")
}

// parseSkipCodes parses 16-bit response codes given in hex, with or
// without a 0x prefix.
func parseSkipCodes(values []string) ([]uint16, error) {
	codes := make([]uint16, 0, len(values))
	for _, v := range values {
		clean := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(v), "0x"), "0X")
		code, err := strconv.ParseUint(clean, 16, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid skip code %q: %w", v, err)
		}
		codes = append(codes, uint16(code))
	}
	return codes, nil
}

func runCapture(cmd *cobra.Command, args []string) error {
	if captureCapacity <= 0 {
		return fmt.Errorf("--capacity must be positive")
	}
	skip, err := parseSkipCodes(captureSkip)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	logger := logEntry()
	rl, err := openRadioLink(ctx, logger)
	if err != nil {
		return err
	}
	defer rl.Close()

	var bar *progressbar.ProgressBar
	if captureProgress {
		bar = progressbar.NewOptions(captureCapacity,
			progressbar.OptionSetDescription("Capturing"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	sniffer := &capture.Sniffer{
		Buffer:    capture.NewBuffer(captureCapacity, skip),
		Driver:    rl.driver,
		Events:    rl.events,
		Sink:      esb.NewFrameLog(logger),
		Indicator: rl.ind,
		Log:       logger.WithField("component", "capture"),
		OnOffer: func(stored bool, b *capture.Buffer) {
			if bar == nil || !stored {
				return
			}
			if b.Len() == 1 {
				bar.Reset()
			}
			bar.Set(b.Len())
			if b.Full() {
				bar.Finish()
			}
		},
	}

	runner := &session.Runner{
		Mode:    session.ModeCapture,
		Sniffer: sniffer,
		Events:  rl.events,
		AfterStep: func() {
			if _, _, batches := sniffer.Stats(); captureBatches > 0 && batches >= uint64(captureBatches) {
				stop()
			}
		},
	}

	logger.WithFields(log.Fields{
		"connection": rl.connInfo,
		"capacity":   captureCapacity,
		"skip":       captureSkip,
	}).Info("Capture started")

	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx) }()

	select {
	case err = <-errCh:
	case <-rl.driver.Done():
		if ctx.Err() == nil {
			stop()
			<-errCh
			return fmt.Errorf("bridge connection lost: %w", rl.driver.Err())
		}
		err = <-errCh
	}

	offered, skipped, batches := sniffer.Stats()
	logger.WithFields(log.Fields{
		"offered": offered,
		"skipped": skipped,
		"batches": batches,
		"lost":    rl.events.Lost(),
	}).Info("Capture stopped")
	return err
}
