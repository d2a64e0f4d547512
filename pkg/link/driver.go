// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link connects the session logic to an ESB radio.
//
// The radio raises its events asynchronously. They are handed to the main
// loop through Events, which holds at most one undelivered frame, a timeout
// flag and the transmit-in-flight flag.
package link

import (
	"context"
	"errors"

	"github.com/Thermoquad/mdplink/pkg/esb"
)

// Link errors
var (
	ErrBusy              = errors.New("transmission in flight")
	ErrNotConfigured     = errors.New("radio not configured")
	ErrConfigureRejected = errors.New("radio configuration rejected")
	ErrAckTimeout        = errors.New("bridge did not answer in time")
	ErrClosed            = errors.New("link closed")
)

// Mode is the radio role.
type Mode int

const (
	// ModeReceive listens for frames (PRX).
	ModeReceive Mode = iota
	// ModeTransmit sends frames (PTX).
	ModeTransmit
)

func (m Mode) String() string {
	switch m {
	case ModeReceive:
		return "receive"
	case ModeTransmit:
		return "transmit"
	default:
		return "unknown"
	}
}

// Driver is the radio as seen by the session controller and the sniffer.
type Driver interface {
	// Send transmits a frame, first waiting while a previous transmission
	// is still in flight.
	Send(ctx context.Context, f esb.Frame) error
	// TrySend transmits a frame or fails with ErrBusy.
	TrySend(f esb.Frame) error
	// Reinit reconfigures the radio for the given role.
	Reinit(mode Mode) error
	// Disable stops all radio activity.
	Disable() error
}
