// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package esb

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortFrame is returned when a frame is too short to carry a response code.
var ErrShortFrame = errors.New("frame too short for response code")

// EncodePairingRequest builds the pairing request for the given serial.
func EncodePairingRequest(serial Serial) Frame {
	return encodeRequest(TagPairingRequest, SubTagPairingRequest, serial, pairingTrailer)
}

// EncodeDataRequest builds the data request for the given serial.
func EncodeDataRequest(serial Serial) Frame {
	return encodeRequest(TagDataRequest, SubTagDataRequest, serial, dataTrailer)
}

func encodeRequest(tag, subTag byte, serial Serial, trailer []byte) Frame {
	f := Frame{
		Length: MaxPayloadSize,
		Pipe:   0,
		NoAck:  true,
		PID:    0,
	}
	f.Data[0] = tag
	f.Data[1] = subTag
	copy(f.Data[serialOffset:], serial[:])
	copy(f.Data[serialOffset+SerialSize:], trailer)
	return f
}

// DecodeResponseCode reads the 16-bit response code from the first two
// payload bytes (little-endian, tag in the low byte).
func DecodeResponseCode(f Frame) (uint16, error) {
	if f.Length < 2 {
		return 0, fmt.Errorf("%w: length %d", ErrShortFrame, f.Length)
	}
	return binary.LittleEndian.Uint16(f.Data[0:2]), nil
}

// CodeName returns a human-readable name for a response code.
func CodeName(code uint16) string {
	switch code {
	case CodePairingAck:
		return "PAIRING_ACK"
	case CodeDataAck:
		return "DATA_ACK"
	case CodePairingRequest:
		return "PAIRING_REQUEST"
	case CodeDataRequest:
		return "DATA_REQUEST"
	default:
		return "UNKNOWN"
	}
}
