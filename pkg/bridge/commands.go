// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"fmt"

	"github.com/Thermoquad/mdplink/pkg/esb"
)

// Message builder functions create Message structs ready for encoding.

// RadioConfig is the ESB radio profile pushed to the bridge by CONFIGURE.
type RadioConfig struct {
	Mode             RadioMode
	Protocol         RadioProtocol
	Channel          uint8
	Bitrate          Bitrate
	CRC              CRCMode
	AddressLength    uint8
	Base0            [4]byte
	Base1            [4]byte
	Prefixes         [8]byte
	SelectiveAutoAck bool
}

// DefaultRadioConfig returns the link profile of the P905: channel 78,
// 2 Mbps, 16-bit CRC, 5-byte addresses with base D3C2B1A0 and prefixes
// E0..E7, fixed-length ESB in receive mode.
func DefaultRadioConfig() RadioConfig {
	return RadioConfig{
		Mode:             RadioModePRX,
		Protocol:         ProtocolESB,
		Channel:          78,
		Bitrate:          Bitrate2Mbps,
		CRC:              CRC16Bit,
		AddressLength:    5,
		Base0:            [4]byte{0xD3, 0xC2, 0xB1, 0xA0},
		Base1:            [4]byte{0xD3, 0xC2, 0xB1, 0xA0},
		Prefixes:         [8]byte{0xE0, 0xE1, 0xE2, 0xE3, 0xE4, 0xE5, 0xE6, 0xE7},
		SelectiveAutoAck: true,
	}
}

// WithMode returns a copy of the profile switched to PRX or PTX. Transmit
// mode uses dynamic payload length, receive mode fixed length.
func (c RadioConfig) WithMode(mode RadioMode) RadioConfig {
	c.Mode = mode
	if mode == RadioModePTX {
		c.Protocol = ProtocolESBDPL
	} else {
		c.Protocol = ProtocolESB
	}
	return c
}

// Validate checks the profile against the ranges the bridge accepts.
func (c RadioConfig) Validate() error {
	if c.Channel > 100 {
		return fmt.Errorf("invalid RF channel %d (max 100)", c.Channel)
	}
	if c.AddressLength < 3 || c.AddressLength > 5 {
		return fmt.Errorf("invalid address length %d (3-5)", c.AddressLength)
	}
	return nil
}

// NewConfigure creates a CONFIGURE message (0x10).
func NewConfigure(cfg RadioConfig) *Message {
	payload := map[int]interface{}{
		KeyConfigMode:             uint64(cfg.Mode),
		KeyConfigChannel:          uint64(cfg.Channel),
		KeyConfigBitrate:          uint64(cfg.Bitrate),
		KeyConfigCRC:              uint64(cfg.CRC),
		KeyConfigBase0:            cfg.Base0[:],
		KeyConfigBase1:            cfg.Base1[:],
		KeyConfigPrefixes:         cfg.Prefixes[:],
		KeyConfigAddressLength:    uint64(cfg.AddressLength),
		KeyConfigProtocol:         uint64(cfg.Protocol),
		KeyConfigSelectiveAutoAck: cfg.SelectiveAutoAck,
	}
	return NewMessage(MsgConfigure, payload)
}

// NewTransmit creates a TRANSMIT message (0x11) carrying a radio frame,
// tagged with seq.
func NewTransmit(f esb.Frame, seq uint16) *Message {
	p := framePayload(f)
	p[KeyTransmitSeq] = uint64(seq)
	return NewMessage(MsgTransmit, p)
}

// NewDisable creates a DISABLE message (0x12). The bridge stops all radio
// activity until the next CONFIGURE.
func NewDisable() *Message {
	return NewMessage(MsgDisable, nil)
}

// NewPing creates a PING message (0x1F).
func NewPing() *Message {
	return NewMessage(MsgPing, nil)
}

// NewConfigureAck creates a CONFIGURE_ACK message (0x20).
func NewConfigureAck(ok bool, code uint8) *Message {
	return NewMessage(MsgConfigureAck, map[int]interface{}{
		0: ok,
		1: uint64(code),
	})
}

// NewTxResult creates a TX_RESULT message (0x21) answering the TRANSMIT
// tagged seq.
func NewTxResult(seq uint16, success bool) *Message {
	return NewMessage(MsgTxResult, map[int]interface{}{
		KeyTxSuccess: success,
		KeyTxSeq:     uint64(seq),
	})
}

// NewRxReceived creates an RX_RECEIVED message (0x22).
func NewRxReceived(f esb.Frame) *Message {
	return NewMessage(MsgRxReceived, framePayload(f))
}

// NewPong creates a PONG message (0x2F).
func NewPong(uptimeMs uint64) *Message {
	return NewMessage(MsgPong, map[int]interface{}{0: uptimeMs})
}

// NewError creates an ERROR message (0xE0).
func NewError(code uint8, text string) *Message {
	return NewMessage(MsgError, map[int]interface{}{
		0: uint64(code),
		1: text,
	})
}

func framePayload(f esb.Frame) map[int]interface{} {
	data := make([]byte, len(f.Payload()))
	copy(data, f.Payload())
	return map[int]interface{}{
		KeyFrameData:  data,
		KeyFramePipe:  uint64(f.Pipe),
		KeyFrameNoAck: f.NoAck,
		KeyFramePID:   uint64(f.PID),
	}
}

// Frame extracts the radio frame from a TRANSMIT or RX_RECEIVED message.
func (m *Message) Frame() (esb.Frame, error) {
	if err := m.ParseError(); err != nil {
		return esb.Frame{}, err
	}
	if m.Type() != MsgTransmit && m.Type() != MsgRxReceived {
		return esb.Frame{}, fmt.Errorf("%s carries no frame", FormatMessageType(m.Type()))
	}

	p := m.PayloadMap()
	data, ok := GetMapBytes(p, KeyFrameData)
	if !ok {
		return esb.Frame{}, fmt.Errorf("frame data missing")
	}
	if len(data) > esb.MaxPayloadSize {
		return esb.Frame{}, fmt.Errorf("frame data too long: %d bytes (max %d)", len(data), esb.MaxPayloadSize)
	}
	pipe, _ := GetMapUint(p, KeyFramePipe)
	noAck, _ := GetMapBool(p, KeyFrameNoAck)
	pid, _ := GetMapUint(p, KeyFramePID)

	return esb.NewFrame(data, uint8(pipe), noAck, uint8(pid)), nil
}

// TxSuccess extracts the outcome from a TX_RESULT message.
func (m *Message) TxSuccess() (bool, error) {
	if m.Type() != MsgTxResult {
		return false, fmt.Errorf("%s is not TX_RESULT", FormatMessageType(m.Type()))
	}
	ok, found := GetMapBool(m.PayloadMap(), KeyTxSuccess)
	if !found {
		return false, fmt.Errorf("TX_RESULT without outcome")
	}
	return ok, nil
}

// TxSeq returns the sequence tag of a TRANSMIT or TX_RESULT message.
func (m *Message) TxSeq() (uint16, bool) {
	var key int
	switch m.Type() {
	case MsgTransmit:
		key = KeyTransmitSeq
	case MsgTxResult:
		key = KeyTxSeq
	default:
		return 0, false
	}
	seq, ok := GetMapUint(m.PayloadMap(), key)
	if !ok || seq > 0xFFFF {
		return 0, false
	}
	return uint16(seq), true
}

// ConfigureResult extracts acceptance and error code from a CONFIGURE_ACK.
func (m *Message) ConfigureResult() (bool, uint8, error) {
	if m.Type() != MsgConfigureAck {
		return false, 0, fmt.Errorf("%s is not CONFIGURE_ACK", FormatMessageType(m.Type()))
	}
	ok, found := GetMapBool(m.PayloadMap(), 0)
	if !found {
		return false, 0, fmt.Errorf("CONFIGURE_ACK without result")
	}
	code, _ := GetMapUint(m.PayloadMap(), 1)
	return ok, uint8(code), nil
}

// RadioConfig extracts the profile from a CONFIGURE message.
func (m *Message) RadioConfig() (RadioConfig, error) {
	var cfg RadioConfig
	if m.Type() != MsgConfigure {
		return cfg, fmt.Errorf("%s is not CONFIGURE", FormatMessageType(m.Type()))
	}
	p := m.PayloadMap()

	mode, _ := GetMapUint(p, KeyConfigMode)
	channel, _ := GetMapUint(p, KeyConfigChannel)
	bitrate, _ := GetMapUint(p, KeyConfigBitrate)
	crc, _ := GetMapUint(p, KeyConfigCRC)
	addrLen, _ := GetMapUint(p, KeyConfigAddressLength)
	protocol, _ := GetMapUint(p, KeyConfigProtocol)
	autoAck, _ := GetMapBool(p, KeyConfigSelectiveAutoAck)

	cfg.Mode = RadioMode(mode)
	cfg.Channel = uint8(channel)
	cfg.Bitrate = Bitrate(bitrate)
	cfg.CRC = CRCMode(crc)
	cfg.AddressLength = uint8(addrLen)
	cfg.Protocol = RadioProtocol(protocol)
	cfg.SelectiveAutoAck = autoAck

	if b, ok := GetMapBytes(p, KeyConfigBase0); ok {
		copy(cfg.Base0[:], b)
	}
	if b, ok := GetMapBytes(p, KeyConfigBase1); ok {
		copy(cfg.Base1[:], b)
	}
	if b, ok := GetMapBytes(p, KeyConfigPrefixes); ok {
		copy(cfg.Prefixes[:], b)
	}

	return cfg, cfg.Validate()
}
