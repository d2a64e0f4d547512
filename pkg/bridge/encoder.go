// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"fmt"
)

// Encode creates a complete wire-formatted bridge message, including framing
// and byte stuffing.
func Encode(msgType uint8, payloadMap map[int]interface{}) ([]byte, error) {
	body, err := encodeCBORBody(msgType, payloadMap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode CBOR body: %w", err)
	}

	if len(body) > MaxPayloadSize {
		return nil, fmt.Errorf("CBOR body too large: %d bytes (max %d)", len(body), MaxPayloadSize)
	}

	// length + body is what gets CRC'd and byte-stuffed
	data := make([]byte, 0, 1+len(body)+2)
	data = append(data, uint8(len(body)))
	data = append(data, body...)

	crc := CalculateCRC(data)
	data = append(data, byte(crc>>8), byte(crc&0xFF))

	stuffed := stuffBytes(data)

	packet := make([]byte, 0, len(stuffed)+2)
	packet = append(packet, StartByte)
	packet = append(packet, stuffed...)
	packet = append(packet, EndByte)

	return packet, nil
}

// EncodeMessage encodes an existing Message to wire format.
func EncodeMessage(m *Message) ([]byte, error) {
	if err := m.ParseError(); err != nil {
		return nil, err
	}
	return Encode(m.Type(), m.PayloadMap())
}

// MustEncodeMessage encodes a Message and panics on error.
// Only use it with messages built by the constructors in this package.
func MustEncodeMessage(m *Message) []byte {
	data, err := EncodeMessage(m)
	if err != nil {
		panic(fmt.Sprintf("bridge: encode error: %v", err))
	}
	return data
}

// stuffBytes replaces START, END and ESC with ESC + (byte XOR EscXor).
func stuffBytes(data []byte) []byte {
	result := make([]byte, 0, len(data)*2)

	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			result = append(result, EscByte, b^EscXor)
		} else {
			result = append(result, b)
		}
	}

	return result
}

// UnstuffBytes removes byte stuffing from escaped data.
func UnstuffBytes(data []byte) ([]byte, error) {
	result := make([]byte, 0, len(data))
	escapeNext := false

	for _, b := range data {
		if escapeNext {
			result = append(result, b^EscXor)
			escapeNext = false
		} else if b == EscByte {
			escapeNext = true
		} else {
			result = append(result, b)
		}
	}

	if escapeNext {
		return nil, fmt.Errorf("incomplete escape sequence at end of data")
	}

	return result, nil
}
