// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Thermoquad/mdplink/pkg/bridge"
	"github.com/Thermoquad/mdplink/pkg/indicator"
	"github.com/Thermoquad/mdplink/pkg/link"
	log "github.com/sirupsen/logrus"
)

var (
	// Radio flags
	radioChannel     int
	bridgeAckTimeout time.Duration
)

func init() {
	rootCmd.PersistentFlags().IntVar(&radioChannel, "channel", 78, "RF channel (0-100)")
	rootCmd.PersistentFlags().DurationVar(&bridgeAckTimeout, "ack-timeout", link.DefaultAckTimeout, "Time to wait for the bridge to acknowledge a command")
}

// radioLink is a configured driver on top of an open bridge transport.
// The driver owns the transport.
type radioLink struct {
	connInfo string
	events   *link.Events
	driver   *link.BridgeDriver
	lights   *indicator.Log
	ind      indicator.Indicator
}

// radioProfile returns the bridge profile selected by the root flags.
func radioProfile() (bridge.RadioConfig, error) {
	cfg := bridge.DefaultRadioConfig()
	if radioChannel < 0 || radioChannel > 255 {
		return cfg, fmt.Errorf("channel %d out of range", radioChannel)
	}
	cfg.Channel = uint8(radioChannel)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// buildIndicator returns the log-backed indicator and, when --led-pins is
// set, a fan-out that also drives the GPIO LEDs.
func buildIndicator(logger *log.Entry) (*indicator.Log, indicator.Indicator, error) {
	lights := indicator.NewLog(logger)
	if len(ledPins) == 0 {
		return lights, lights, nil
	}
	leds, err := indicator.NewGPIO(ledPins, logger)
	if err != nil {
		return nil, nil, err
	}
	return lights, indicator.Multi{lights, leds}, nil
}

// openRadioLink connects to the bridge, starts the driver and puts the
// radio into receive mode.
func openRadioLink(ctx context.Context, logger *log.Entry) (*radioLink, error) {
	profile, err := radioProfile()
	if err != nil {
		return nil, err
	}

	lights, ind, err := buildIndicator(logger)
	if err != nil {
		return nil, err
	}

	ep, err := endpointFromFlags()
	if err != nil {
		return nil, err
	}
	conn, err := ep.dial(ctx)
	if err != nil {
		return nil, err
	}

	opts := []link.Option{
		link.WithIndicator(ind),
		link.WithLogger(logger),
		link.WithRadioConfig(profile),
		link.WithAckTimeout(bridgeAckTimeout),
	}
	if verbose {
		bridgeLog := logger.WithField("component", "bridge")
		opts = append(opts, link.WithMonitor(func(m *bridge.Message) {
			bridgeLog.Debug(strings.TrimRight(bridge.FormatMessage(m), "\n"))
		}))
	}

	events := link.NewEvents(logger)
	driver := link.NewBridgeDriver(conn, events, opts...)
	driver.Start(ctx)

	logger.WithFields(log.Fields{
		"connection": ep.String(),
		"channel":    profile.Channel,
	}).Info("Configuring radio")

	if err := driver.Reinit(link.ModeReceive); err != nil {
		driver.Close()
		return nil, fmt.Errorf("failed to configure radio: %w", err)
	}

	return &radioLink{
		connInfo: ep.String(),
		events:   events,
		driver:   driver,
		lights:   lights,
		ind:      ind,
	}, nil
}

// Close disables the radio and closes the transport.
func (l *radioLink) Close() error {
	return l.driver.Close()
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
