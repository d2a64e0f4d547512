// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/mdplink/pkg/esb"
	"github.com/Thermoquad/mdplink/pkg/indicator"
	"github.com/Thermoquad/mdplink/pkg/link"
)

// DefaultTimeout is the response window for every request.
const DefaultTimeout = 1000 * time.Millisecond

// ErrReinitFailed means the radio could not be returned to receive mode
// after a timeout. The session cannot continue.
var ErrReinitFailed = errors.New("radio reinitialization failed")

// Timeout is the one-shot response timer. Expiry is reported through the
// link.Events mailbox.
type Timeout interface {
	Start(d time.Duration)
	Cancel()
}

// FrameSink receives every frame the controller sends or accepts.
type FrameSink interface {
	Emit(f esb.Frame)
}

// Config holds the session parameters.
type Config struct {
	Serial          esb.Serial
	Timeout         time.Duration
	HeartbeatPeriod int
}

// Snapshot is a consistent copy of the controller's observable state.
type Snapshot struct {
	State      State      `json:"-"`
	StateName  string     `json:"state"`
	Since      time.Time  `json:"since"`
	Serial     string     `json:"serial"`
	LastCode   uint16     `json:"last_code"`
	Heartbeat  int        `json:"heartbeat_remaining"`
	Statistics Statistics `json:"statistics"`
}

// Controller is the session state machine. Tick must be called from a
// single goroutine; Snapshot may be called from any goroutine.
type Controller struct {
	cfg       Config
	driver    link.Driver
	events    *link.Events
	timer     Timeout
	ind       indicator.Indicator
	frames    FrameSink
	log       *logrus.Entry
	heartbeat *Heartbeat

	mu       sync.Mutex
	state    State
	since    time.Time
	lastCode uint16
	stats    *Statistics
}

// Option configures a Controller.
type Option func(*Controller)

// WithIndicator sets the status light output.
func WithIndicator(ind indicator.Indicator) Option {
	return func(c *Controller) { c.ind = ind }
}

// WithFrameSink sets where sent and received frames are dumped.
func WithFrameSink(sink FrameSink) Option {
	return func(c *Controller) { c.frames = sink }
}

// WithLogger sets the log entry used for state and protocol messages.
func WithLogger(log *logrus.Entry) Option {
	return func(c *Controller) { c.log = log }
}

// NewController creates a controller in SendPairing.
func NewController(cfg Config, driver link.Driver, events *link.Events, timer Timeout, opts ...Option) *Controller {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Controller{
		cfg:    cfg,
		driver: driver,
		events: events,
		timer:  timer,
		ind:    indicator.Nop{},
		state:  SendPairing,
		since:  time.Now(),
		stats:  NewStatistics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logrus.NewEntry(logrus.StandardLogger())
	}
	c.log = c.log.WithField("component", "session")
	if c.frames == nil {
		c.frames = esb.NewFrameLog(c.log)
	}
	c.heartbeat = NewHeartbeat(cfg.HeartbeatPeriod, c.ind)
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a copy of the current state and statistics.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := *c.stats
	stats.LostFrames = c.events.Lost()
	stats.CalculateRates()
	return Snapshot{
		State:      c.state,
		StateName:  c.state.String(),
		Since:      c.since,
		Serial:     c.cfg.Serial.String(),
		LastCode:   c.lastCode,
		Heartbeat:  c.heartbeat.Remaining(),
		Statistics: stats,
	}
}

// ResetStatistics clears all counters.
func (c *Controller) ResetStatistics() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Reset()
}

// Tick runs one step of the state machine, consuming at most one event.
// A received frame takes priority over a timeout. The returned error is
// fatal to the session.
func (c *Controller) Tick(ctx context.Context) error {
	switch c.State() {
	case SendPairing:
		return c.sendRequest(ctx, esb.EncodePairingRequest(c.cfg.Serial), "Sending pairing request ...", AwaitPairingAck)
	case AwaitPairingAck:
		return c.await(esb.CodePairingAck, "Response to pairing:", "Unknown answer to pairing", SendDataRequest, SendPairing)
	case SendDataRequest:
		return c.sendRequest(ctx, esb.EncodeDataRequest(c.cfg.Serial), "Sending data request ...", AwaitDataAck)
	case AwaitDataAck:
		return c.await(esb.CodeDataAck, "Response to data:", "Unknown answer to data", SendDataRequest, SendDataRequest)
	default:
		return fmt.Errorf("invalid session state %d", c.State())
	}
}

func (c *Controller) sendRequest(ctx context.Context, f esb.Frame, msg string, next State) error {
	c.log.Info(msg)
	c.mu.Lock()
	c.heartbeat.Tick()
	c.mu.Unlock()

	c.frames.Emit(f)
	if err := c.driver.Send(ctx, f); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	c.timer.Start(c.cfg.Timeout)

	c.mu.Lock()
	if next == AwaitPairingAck {
		c.stats.PairingRequests++
	} else {
		c.stats.DataRequests++
	}
	c.stats.touch()
	c.mu.Unlock()

	c.transition(next)
	return nil
}

func (c *Controller) await(want uint16, ackMsg, unexpectedMsg string, onAck, onOther State) error {
	if f, ok := c.events.TakeFrame(); ok {
		c.timer.Cancel()

		code, err := esb.DecodeResponseCode(f)
		c.mu.Lock()
		c.lastCode = code
		if err == nil && code == want {
			if want == esb.CodePairingAck {
				c.stats.PairingAcks++
			} else {
				c.stats.DataAcks++
			}
		} else {
			c.stats.Unexpected++
		}
		c.stats.touch()
		c.mu.Unlock()

		next := onOther
		if err == nil && code == want {
			c.log.Info(ackMsg)
			c.ind.Off(indicator.Heartbeat)
			c.ind.Off(indicator.Error)
			next = onAck
		} else {
			entry := c.log.WithField("code", fmt.Sprintf("0x%04X", code))
			if err != nil {
				entry = entry.WithError(err)
			}
			entry.Warn(unexpectedMsg)
		}
		c.frames.Emit(f)
		c.transition(next)
		return nil
	}

	if c.events.TakeTimeout() {
		c.log.Info("Timeout")
		c.ind.On(indicator.Error)

		c.mu.Lock()
		c.stats.Timeouts++
		c.stats.Reinits++
		c.stats.touch()
		c.mu.Unlock()

		if err := c.driver.Reinit(link.ModeReceive); err != nil {
			c.log.WithError(err).Error("Failed to reinitialize radio")
			return fmt.Errorf("%w: %w", ErrReinitFailed, err)
		}
		c.transition(SendPairing)
	}
	return nil
}

func (c *Controller) transition(next State) {
	c.mu.Lock()
	prev := c.state
	if prev == next {
		c.mu.Unlock()
		return
	}
	c.state = next
	c.since = time.Now()
	c.stats.Transitions++
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"from": prev.String(), "to": next.String()}).Infof("%s -> %s", prev, next)
}
