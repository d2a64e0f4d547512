// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package session runs the pairing and data-request exchange with a P905
// peripheral, or the capture loop that replaces it.
package session

import "fmt"

// State is the position of the link session in the request/response cycle.
type State int

const (
	SendPairing State = iota
	AwaitPairingAck
	SendDataRequest
	AwaitDataAck
)

func (s State) String() string {
	switch s {
	case SendPairing:
		return "send_pairing"
	case AwaitPairingAck:
		return "await_pairing_ack"
	case SendDataRequest:
		return "send_data_request"
	case AwaitDataAck:
		return "await_data_ack"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Awaiting reports whether the state waits on a response.
func (s State) Awaiting() bool {
	return s == AwaitPairingAck || s == AwaitDataAck
}

// Paired reports whether the peripheral has accepted the pairing request.
func (s State) Paired() bool {
	return s == SendDataRequest || s == AwaitDataAck
}
