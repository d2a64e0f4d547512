// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records received radio frames in batches for offline
// inspection instead of running the link protocol.
package capture

import "github.com/Thermoquad/mdplink/pkg/esb"

// DefaultCapacity is the number of frames collected per batch.
const DefaultCapacity = 64

// Buffer is a fixed-capacity frame recorder. It never holds more than its
// capacity and only Drain removes entries.
type Buffer struct {
	entries []esb.Frame
	skip    map[uint16]struct{}
}

// NewBuffer creates an empty buffer. Frames whose response code is listed
// in skip are discarded by Offer. A capacity below 1 uses DefaultCapacity.
func NewBuffer(capacity int, skip []uint16) *Buffer {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	b := &Buffer{
		entries: make([]esb.Frame, 0, capacity),
		skip:    make(map[uint16]struct{}, len(skip)),
	}
	for _, code := range skip {
		b.skip[code] = struct{}{}
	}
	return b
}

// Skips reports whether f would be discarded by the skip list. Frames too
// short to carry a code are never skipped.
func (b *Buffer) Skips(f esb.Frame) bool {
	code, err := esb.DecodeResponseCode(f)
	if err != nil {
		return false
	}
	_, ok := b.skip[code]
	return ok
}

// Offer stores a copy of f. It returns false if f was skipped or the buffer
// is already full.
func (b *Buffer) Offer(f esb.Frame) bool {
	if b.Skips(f) || b.Full() {
		return false
	}
	b.entries = append(b.entries, f)
	return true
}

// Len returns the number of stored frames.
func (b *Buffer) Len() int { return len(b.entries) }

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int { return cap(b.entries) }

// Full reports whether the buffer holds exactly its capacity.
func (b *Buffer) Full() bool { return len(b.entries) == cap(b.entries) }

// Drain returns every stored frame, oldest first, and empties the buffer.
func (b *Buffer) Drain() []esb.Frame {
	out := make([]esb.Frame, len(b.entries))
	copy(out, b.entries)
	b.entries = b.entries[:0]
	return out
}
