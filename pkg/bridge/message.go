// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import "time"

// Message represents a decoded bridge protocol message
type Message struct {
	length    uint8
	body      []byte // Raw CBOR bytes: [msg_type, payload_map]
	crc       uint16
	timestamp time.Time

	// Cached parsed values (lazy parsing)
	msgType    uint8
	payloadMap map[int]interface{}
	parsed     bool
	parseErr   error
}

// NewMessage creates a message from its type and payload map.
// The CBOR body and CRC are computed when the message is encoded.
func NewMessage(msgType uint8, payload map[int]interface{}) *Message {
	return &Message{
		msgType:    msgType,
		payloadMap: payload,
		parsed:     true,
		timestamp:  time.Now(),
	}
}

func (m *Message) ensureParsed() {
	if m.parsed {
		return
	}
	m.parsed = true
	m.msgType, m.payloadMap, m.parseErr = ParseCBORMessage(m.body)
}

// Type returns the message type (parsed from CBOR)
func (m *Message) Type() uint8 {
	m.ensureParsed()
	return m.msgType
}

// PayloadMap returns the decoded CBOR payload map (nil for empty payloads)
func (m *Message) PayloadMap() map[int]interface{} {
	m.ensureParsed()
	return m.payloadMap
}

// ParseError returns any error from parsing the CBOR body
func (m *Message) ParseError() error {
	m.ensureParsed()
	return m.parseErr
}

// Body returns the raw CBOR body bytes
func (m *Message) Body() []byte {
	return m.body
}

// Length returns the CBOR body length as sent on the wire
func (m *Message) Length() uint8 {
	return m.length
}

// CRC returns the message's CRC value
func (m *Message) CRC() uint16 {
	return m.crc
}

// Timestamp returns the message's decode timestamp
func (m *Message) Timestamp() time.Time {
	return m.timestamp
}
