// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/mdplink/pkg/esb"
	"github.com/Thermoquad/mdplink/pkg/link"
	"github.com/Thermoquad/mdplink/pkg/session"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	sessionSerial        string
	sessionTimeout       time.Duration
	sessionHeartbeat     int
	sessionTUI           bool
	sessionHTTP          string
	sessionStatsInterval time.Duration
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Run the pairing and data-request exchange with a P905",
	Long: `Act as the M01 side of the link.

The session sends a pairing request, waits for the pairing ack, then polls the
P905 with data requests for as long as it keeps answering. A missing answer
resets the radio and starts over with pairing.

The serial number is the 4-byte device serial carried in every request, given
as 8 hex digits.

Lights:
  heartbeat - toggles every --heartbeat requests while no ack arrives
  error     - on after a timeout or a failed transmission
  activity  - toggles on every received frame`,
	RunE: runSession,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.Flags().StringVar(&sessionSerial, "serial", "00000000", "Device serial number (8 hex digits)")
	sessionCmd.Flags().DurationVar(&sessionTimeout, "timeout", session.DefaultTimeout, "Time to wait for an ack")
	sessionCmd.Flags().IntVar(&sessionHeartbeat, "heartbeat", session.DefaultHeartbeatPeriod, "Requests between heartbeat toggles")
	sessionCmd.Flags().BoolVar(&sessionTUI, "tui", false, "Use terminal UI")
	sessionCmd.Flags().StringVar(&sessionHTTP, "http", "", "Serve session status over HTTP on this address (e.g. :8080)")
	sessionCmd.Flags().DurationVar(&sessionStatsInterval, "stats-interval", 10*time.Second, "Statistics log interval in text mode (0 to disable)")
}

func runSession(cmd *cobra.Command, args []string) error {
	serial, err := esb.ParseSerial(sessionSerial)
	if err != nil {
		return fmt.Errorf("invalid --serial: %w", err)
	}
	if sessionTimeout <= 0 {
		return fmt.Errorf("--timeout must be positive")
	}
	if sessionHeartbeat <= 0 {
		return fmt.Errorf("--heartbeat must be positive")
	}

	ctx, stop := signalContext()
	defer stop()

	logger := logEntry()
	if sessionTUI {
		restore := silenceLogging()
		defer restore()
	}

	rl, err := openRadioLink(ctx, logger)
	if err != nil {
		return err
	}
	defer rl.Close()

	opts := []session.Option{
		session.WithIndicator(rl.ind),
		session.WithLogger(logger),
	}

	ctrl := session.NewController(session.Config{
		Serial:          serial,
		Timeout:         sessionTimeout,
		HeartbeatPeriod: sessionHeartbeat,
	}, rl.driver, rl.events, link.NewTimer(rl.events), opts...)

	runner := &session.Runner{
		Mode:       session.ModeProtocol,
		Controller: ctrl,
		Events:     rl.events,
	}

	if sessionHTTP != "" {
		srv := startStatusServer(sessionHTTP, &statusSource{
			connInfo:   rl.connInfo,
			controller: ctrl,
			lights:     rl.lights,
			driver:     rl.driver,
			events:     rl.events,
		}, logger)
		defer srv.Close()
	}

	if sessionTUI {
		return runSessionTUI(ctx, stop, runner, ctrl, rl)
	}
	return runSessionText(ctx, runner, ctrl, rl, logger)
}

func runSessionText(ctx context.Context, runner *session.Runner, ctrl *session.Controller, rl *radioLink, logger *log.Entry) error {
	logger.WithFields(log.Fields{
		"connection": rl.connInfo,
		"serial":     sessionSerial,
		"timeout":    sessionTimeout,
	}).Info("Session started")

	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx) }()

	var tick <-chan time.Time
	if sessionStatsInterval > 0 {
		ticker := time.NewTicker(sessionStatsInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	done := rl.driver.Done()
	for {
		select {
		case err := <-errCh:
			snap := ctrl.Snapshot()
			fmt.Printf("\n=== Final Statistics ===\n%s\n", snap.Statistics.String())
			return err
		case <-done:
			if ctx.Err() != nil {
				done = nil
				continue
			}
			return fmt.Errorf("bridge connection lost: %w", rl.driver.Err())
		case <-tick:
			snap := ctrl.Snapshot()
			logger.WithFields(log.Fields{
				"state":    snap.StateName,
				"requests": snap.Statistics.Requests(),
				"acks":     snap.Statistics.Acks(),
				"timeouts": snap.Statistics.Timeouts,
				"lights":   formatLights(rl.lights),
			}).Info("Session status")
		}
	}
}
