// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"errors"
	"fmt"
	"time"
)

// Decoder errors
var (
	ErrCRCMismatch   = errors.New("CRC mismatch")
	ErrInvalidLength = errors.New("invalid length")
	ErrOverflow      = errors.New("buffer overflow")
	ErrUnexpectedEnd = errors.New("unexpected END byte")
)

// Decoder implements the bridge message decoder state machine
type Decoder struct {
	state       int
	buffer      []byte
	bufferIndex int
	escapeNext  bool
	message     *Message
}

// NewDecoder creates a new protocol decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:  stateIdle,
		buffer: make([]byte, MaxPacketSize),
	}
}

// Reset resets the decoder state to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.bufferIndex = 0
	d.escapeNext = false
	d.message = nil
}

// DecodeByte processes a single byte through the decoder state machine.
// It returns a completed message, or nil if the message is incomplete.
func (d *Decoder) DecodeByte(b byte) (*Message, error) {
	if b == EscByte && !d.escapeNext {
		d.escapeNext = true
		return nil, nil
	}

	escaped := d.escapeNext
	if escaped {
		b ^= EscXor
		d.escapeNext = false
	}

	if !escaped && b == StartByte {
		d.Reset()
		d.state = stateLength
		return nil, nil
	}

	if !escaped && b == EndByte {
		if d.state == stateEnd {
			msg := d.message
			calculated := CalculateCRC(d.buffer[:d.bufferIndex])
			d.Reset()

			if msg.crc != calculated {
				return nil, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRCMismatch, calculated, msg.crc)
			}

			msg.timestamp = time.Now()
			return msg, nil
		}
		state := d.state
		d.Reset()
		return nil, fmt.Errorf("%w in state %d", ErrUnexpectedEnd, state)
	}

	switch d.state {
	case stateIdle:
		// Waiting for START byte
		return nil, nil

	case stateLength:
		if b == 0 || b > MaxPayloadSize {
			d.Reset()
			return nil, fmt.Errorf("%w: %d (max %d)", ErrInvalidLength, b, MaxPayloadSize)
		}
		d.message = &Message{length: b, body: make([]byte, 0, b)}
		d.buffer[d.bufferIndex] = b
		d.bufferIndex++
		d.state = statePayload
		return nil, nil

	case statePayload:
		if d.bufferIndex >= MaxPacketSize {
			d.Reset()
			return nil, fmt.Errorf("%w: message exceeds max size", ErrOverflow)
		}
		d.message.body = append(d.message.body, b)
		d.buffer[d.bufferIndex] = b
		d.bufferIndex++
		if len(d.message.body) >= int(d.message.length) {
			d.state = stateCRC1
		}
		return nil, nil

	case stateCRC1:
		d.message.crc = uint16(b) << 8
		d.state = stateCRC2
		return nil, nil

	case stateCRC2:
		d.message.crc |= uint16(b)
		d.state = stateEnd
		return nil, nil

	case stateEnd:
		d.Reset()
		return nil, fmt.Errorf("%w: missing END after CRC", ErrOverflow)

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", d.state)
	}
}
