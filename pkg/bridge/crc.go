// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import "github.com/sigurn/crc16"

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// CalculateCRC computes the CRC-16-CCITT (poly 0x1021, init 0xFFFF) checksum
func CalculateCRC(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}
