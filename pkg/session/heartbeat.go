// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import "github.com/Thermoquad/mdplink/pkg/indicator"

// DefaultHeartbeatPeriod is the number of protocol cycles per heartbeat
// toggle.
const DefaultHeartbeatPeriod = 7000

// Heartbeat toggles the heartbeat light once every period protocol cycles
// so a stalled session is visible.
type Heartbeat struct {
	period  int
	counter int
	ind     indicator.Indicator
}

// NewHeartbeat creates a stall counter. A period below 1 uses
// DefaultHeartbeatPeriod.
func NewHeartbeat(period int, ind indicator.Indicator) *Heartbeat {
	if period < 1 {
		period = DefaultHeartbeatPeriod
	}
	if ind == nil {
		ind = indicator.Nop{}
	}
	return &Heartbeat{period: period, counter: period, ind: ind}
}

// Tick counts one protocol cycle and reports whether the light toggled.
func (h *Heartbeat) Tick() bool {
	h.counter--
	if h.counter > 0 {
		return false
	}
	h.counter = h.period
	h.ind.Toggle(indicator.Heartbeat)
	return true
}

// Remaining returns the cycles left until the next toggle.
func (h *Heartbeat) Remaining() int {
	return h.counter
}

// Reset restarts the count from the full period.
func (h *Heartbeat) Reset() {
	h.counter = h.period
}
