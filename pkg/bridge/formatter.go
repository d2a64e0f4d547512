// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/mdplink/pkg/esb"
)

// FormatMessage formats a message into a human-readable string
func FormatMessage(m *Message) string {
	timestamp := m.timestamp.Format("15:04:05.000")
	if err := m.ParseError(); err != nil {
		return fmt.Sprintf("[%s] MALFORMED len=%d: %v\n", timestamp, m.length, err)
	}

	result := fmt.Sprintf("[%s] %s (0x%02X) len=%d\n", timestamp, FormatMessageType(m.Type()), m.Type(), m.length)
	result += FormatPayloadMap(m.Type(), m.PayloadMap())
	return result
}

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(msgType uint8) string {
	switch msgType {
	case MsgConfigure:
		return "CONFIGURE"
	case MsgTransmit:
		return "TRANSMIT"
	case MsgDisable:
		return "DISABLE"
	case MsgPing:
		return "PING"
	case MsgConfigureAck:
		return "CONFIGURE_ACK"
	case MsgTxResult:
		return "TX_RESULT"
	case MsgRxReceived:
		return "RX_RECEIVED"
	case MsgPong:
		return "PONG"
	case MsgError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FormatPayloadMap formats the CBOR payload map based on message type
func FormatPayloadMap(msgType uint8, m map[int]interface{}) string {
	switch msgType {
	case MsgDisable, MsgPing:
		return "  (no payload)\n"

	case MsgConfigure:
		msg := NewMessage(msgType, m)
		cfg, err := msg.RadioConfig()
		if err != nil {
			return fmt.Sprintf("  Invalid config: %v\n", err)
		}
		return fmt.Sprintf("  Mode: %s, Protocol: %s, Channel: %d, Bitrate: %s, CRC: %s, Addr: %d bytes\n",
			formatRadioMode(cfg.Mode), formatProtocol(cfg.Protocol), cfg.Channel,
			formatBitrate(cfg.Bitrate), formatCRCMode(cfg.CRC), cfg.AddressLength)

	case MsgTransmit, MsgRxReceived:
		f, err := NewMessage(msgType, m).Frame()
		if err != nil {
			return fmt.Sprintf("  Invalid frame: %v\n", err)
		}
		return "  " + esb.FormatSummary(f) + "\n"

	case MsgConfigureAck:
		ok, _ := GetMapBool(m, 0)
		code, _ := GetMapUint(m, 1)
		return fmt.Sprintf("  Accepted: %s, Code: %s\n", yesNo(ok), formatErrorCode(uint8(code)))

	case MsgTxResult:
		ok, _ := GetMapBool(m, KeyTxSuccess)
		seq, _ := GetMapUint(m, KeyTxSeq)
		return fmt.Sprintf("  Success: %s, Seq: %d\n", yesNo(ok), seq)

	case MsgPong:
		uptime, _ := GetMapUint(m, 0)
		return fmt.Sprintf("  Uptime: %d ms\n", uptime)

	case MsgError:
		code, _ := GetMapUint(m, 0)
		text, _ := GetMapString(m, 1)
		if text != "" {
			return fmt.Sprintf("  Code: %s, Message: %s\n", formatErrorCode(uint8(code)), text)
		}
		return fmt.Sprintf("  Code: %s\n", formatErrorCode(uint8(code)))
	}

	if len(m) == 0 {
		return ""
	}
	var sb strings.Builder
	for k, v := range m {
		fmt.Fprintf(&sb, "  %d: %v\n", k, v)
	}
	return sb.String()
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func formatRadioMode(mode RadioMode) string {
	switch mode {
	case RadioModePRX:
		return "PRX"
	case RadioModePTX:
		return "PTX"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", mode)
	}
}

func formatProtocol(p RadioProtocol) string {
	switch p {
	case ProtocolESB:
		return "ESB"
	case ProtocolESBDPL:
		return "ESB_DPL"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", p)
	}
}

func formatBitrate(b Bitrate) string {
	switch b {
	case Bitrate1Mbps:
		return "1Mbps"
	case Bitrate2Mbps:
		return "2Mbps"
	case Bitrate250Kbps:
		return "250Kbps"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", b)
	}
}

func formatCRCMode(c CRCMode) string {
	switch c {
	case CRCOff:
		return "OFF"
	case CRC8Bit:
		return "8-bit"
	case CRC16Bit:
		return "16-bit"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", c)
	}
}

func formatErrorCode(code uint8) string {
	switch code {
	case ErrCodeNone:
		return "NONE"
	case ErrCodeInvalidParam:
		return "INVALID_PARAM"
	case ErrCodeRadioBusy:
		return "RADIO_BUSY"
	case ErrCodeTxFifoFull:
		return "TX_FIFO_FULL"
	case ErrCodeDecode:
		return "DECODE"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", code)
	}
}
