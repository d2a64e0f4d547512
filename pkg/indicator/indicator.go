// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package indicator drives the three status lights of a link session.
package indicator

import "fmt"

// Light identifies one status light.
type Light int

const (
	// Heartbeat toggles while the protocol cycles and is cleared on every ack.
	Heartbeat Light = iota
	// Error is raised on timeouts and failed transmissions.
	Error
	// Activity toggles on every received frame.
	Activity

	numLights
)

// Lights lists every light in index order.
var Lights = []Light{Heartbeat, Error, Activity}

func (l Light) String() string {
	switch l {
	case Heartbeat:
		return "heartbeat"
	case Error:
		return "error"
	case Activity:
		return "activity"
	default:
		return fmt.Sprintf("light(%d)", int(l))
	}
}

// Indicator switches status lights. Implementations must be safe for use
// from the radio event handler and the main loop at the same time.
type Indicator interface {
	On(l Light)
	Off(l Light)
	Toggle(l Light)
}

// Reader is an Indicator that can report its current light states.
type Reader interface {
	Indicator
	State(l Light) bool
}

// Multi fans every call out to several indicators.
type Multi []Indicator

func (m Multi) On(l Light) {
	for _, ind := range m {
		ind.On(l)
	}
}

func (m Multi) Off(l Light) {
	for _, ind := range m {
		ind.Off(l)
	}
}

func (m Multi) Toggle(l Light) {
	for _, ind := range m {
		ind.Toggle(l)
	}
}

// Nop discards all light changes.
type Nop struct{}

func (Nop) On(Light)     {}
func (Nop) Off(Light)    {}
func (Nop) Toggle(Light) {}
