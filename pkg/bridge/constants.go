// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge implements the serial protocol spoken between mdplink and
// an Enhanced ShockBurst bridge dongle.
//
// Every message is framed as START | stuffed(length | body | crc) | END.
// The body is a CBOR array [msg_type, payload_map] and the CRC is
// CRC-16-CCITT over length and body, sent big-endian.
package bridge

// Protocol framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Message size limits
const (
	MaxPayloadSize = 200
	MaxPacketSize  = 1 + MaxPayloadSize + 2 // length + body + crc
)

// Message types - Host → Bridge 0x10-0x1F
const (
	MsgConfigure = 0x10
	MsgTransmit  = 0x11
	MsgDisable   = 0x12
	MsgPing      = 0x1F
)

// Message types - Bridge → Host 0x20-0x2F
const (
	MsgConfigureAck = 0x20
	MsgTxResult     = 0x21
	MsgRxReceived   = 0x22
	MsgPong         = 0x2F
)

// Message types - Errors 0xE0-0xEF
const (
	MsgError = 0xE0
)

// Payload keys for TRANSMIT and RX_RECEIVED
const (
	KeyFrameData  = 0
	KeyFramePipe  = 1
	KeyFrameNoAck = 2
	KeyFramePID   = 3

	// KeyTransmitSeq tags a TRANSMIT. The bridge echoes it in TX_RESULT.
	KeyTransmitSeq = 4
)

// Payload keys for TX_RESULT
const (
	KeyTxSuccess = 0
	KeyTxSeq     = 1
)

// Payload keys for CONFIGURE
const (
	KeyConfigMode             = 0
	KeyConfigChannel          = 1
	KeyConfigBitrate          = 2
	KeyConfigCRC              = 3
	KeyConfigBase0            = 4
	KeyConfigBase1            = 5
	KeyConfigPrefixes         = 6
	KeyConfigAddressLength    = 7
	KeyConfigProtocol         = 8
	KeyConfigSelectiveAutoAck = 9
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateLength
	statePayload
	stateCRC1
	stateCRC2
	stateEnd
)

// RadioMode selects receiver or transmitter operation on the bridge.
type RadioMode int

const (
	RadioModePRX RadioMode = 0x00
	RadioModePTX RadioMode = 0x01
)

// RadioProtocol selects fixed or dynamic payload length ESB.
type RadioProtocol int

const (
	ProtocolESB    RadioProtocol = 0x00
	ProtocolESBDPL RadioProtocol = 0x01
)

// Bitrate values
type Bitrate int

const (
	Bitrate1Mbps   Bitrate = 0x00
	Bitrate2Mbps   Bitrate = 0x01
	Bitrate250Kbps Bitrate = 0x02
)

// CRCMode values
type CRCMode int

const (
	CRCOff   CRCMode = 0x00
	CRC8Bit  CRCMode = 0x01
	CRC16Bit CRCMode = 0x02
)

// Bridge error codes carried in ERROR and CONFIGURE_ACK
const (
	ErrCodeNone         = 0x00
	ErrCodeInvalidParam = 0x01
	ErrCodeRadioBusy    = 0x02
	ErrCodeTxFifoFull   = 0x03
	ErrCodeDecode       = 0x04
)
