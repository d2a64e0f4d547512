// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package esb holds the radio frame type used on the M01 <-> P905 link and
// the codec for the two request frames the controller sends.
//
// Frames are fixed 32-byte Enhanced ShockBurst payloads. Byte 0 is the
// primary tag, byte 1 the secondary tag, bytes 2-5 the device serial and
// the rest carries handshake constants or zero padding.
package esb

// Frame sizing
const (
	MaxPayloadSize = 32
	SerialSize     = 4
	serialOffset   = 2
)

// Request tags (offsets 0 and 1)
const (
	TagPairingRequest    = 0x09
	SubTagPairingRequest = 0x08
	TagDataRequest       = 0x07
	SubTagDataRequest    = 0x06
)

// Codes as read little-endian from payload bytes 0..1. The request codes
// show up when sniffing the controller's own traffic.
const (
	CodePairingAck     = 0x0D09
	CodeDataAck        = 0x1B07
	CodePairingRequest = SubTagPairingRequest<<8 | TagPairingRequest
	CodeDataRequest    = SubTagDataRequest<<8 | TagDataRequest
)

// pairingTrailer and dataTrailer follow the serial in the request frames.
var (
	pairingTrailer = []byte{0x00, 0x01, 0x5A, 0x73, 0x09}
	dataTrailer    = []byte{0x00, 0x01, 0x20}
)
