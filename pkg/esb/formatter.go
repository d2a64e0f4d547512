// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package esb

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// FormatFrame renders a frame as a counter/metadata line followed by the
// 32 data bytes as eight big-endian words, two rows of four.
func FormatFrame(count uint64, f Frame) string {
	var s strings.Builder

	noAck := 0
	if f.NoAck {
		noAck = 1
	}
	fmt.Fprintf(&s, "C: %d L: %d P: %d N: %d I: %d\n", count, f.Length, f.Pipe, noAck, f.PID)

	for row := 0; row < 2; row++ {
		offset := row * 16
		fmt.Fprintf(&s, "%02d:", offset)
		for w := 0; w < 4; w++ {
			start := offset + w*4
			fmt.Fprintf(&s, " %08x", binary.BigEndian.Uint32(f.Data[start:start+4]))
		}
		s.WriteString("\n")
	}

	return s.String()
}

// FormatSummary returns a one-line description of a frame.
func FormatSummary(f Frame) string {
	code, err := DecodeResponseCode(f)
	if err != nil {
		return fmt.Sprintf("SHORT len=%d pipe=%d", f.Length, f.Pipe)
	}
	return fmt.Sprintf("%s (0x%04X) len=%d pipe=%d pid=%d", CodeName(code), code, f.Length, f.Pipe, f.PID)
}
