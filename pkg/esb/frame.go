// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package esb

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Frame is a single radio payload together with its link metadata.
// Frames are values: copying one hands the copy to the new owner.
type Frame struct {
	Data   [MaxPayloadSize]byte
	Length uint8
	Pipe   uint8
	NoAck  bool
	PID    uint8
}

// NewFrame builds a frame from raw bytes. Payloads longer than
// MaxPayloadSize are truncated.
func NewFrame(payload []byte, pipe uint8, noAck bool, pid uint8) Frame {
	f := Frame{Pipe: pipe, NoAck: noAck, PID: pid}
	n := copy(f.Data[:], payload)
	f.Length = uint8(n)
	return f
}

// Payload returns the valid part of the frame data.
func (f Frame) Payload() []byte {
	n := int(f.Length)
	if n > MaxPayloadSize {
		n = MaxPayloadSize
	}
	return f.Data[:n]
}

// Serial is the 4-byte device serial identifier in wire order.
type Serial [SerialSize]byte

// String returns the serial as upper-case hex.
func (s Serial) String() string {
	return strings.ToUpper(hex.EncodeToString(s[:]))
}

// ParseSerial accepts "AABBCCDD", "aa:bb:cc:dd" or "0xAABBCCDD".
func ParseSerial(s string) (Serial, error) {
	var serial Serial

	clean := strings.TrimSpace(s)
	clean = strings.TrimPrefix(strings.TrimPrefix(clean, "0x"), "0X")
	clean = strings.ReplaceAll(clean, ":", "")
	clean = strings.ReplaceAll(clean, "-", "")

	b, err := hex.DecodeString(clean)
	if err != nil {
		return serial, fmt.Errorf("invalid serial %q: %w", s, err)
	}
	if len(b) != SerialSize {
		return serial, fmt.Errorf("invalid serial %q: expected %d bytes, got %d", s, SerialSize, len(b))
	}

	copy(serial[:], b)
	return serial, nil
}
