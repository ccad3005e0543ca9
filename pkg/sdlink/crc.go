// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdlink

var crcTable = makeCRCTable()

func makeCRCTable() [256]uint16 {
	var table [256]uint16
	for dividend := 0; dividend < 256; dividend++ {
		remainder := uint16(dividend) << 8
		for bit := 0; bit < 8; bit++ {
			if remainder&0x8000 != 0 {
				remainder = (remainder << 1) ^ crcPolynomial
			} else {
				remainder <<= 1
			}
		}
		table[dividend] = remainder
	}
	return table
}

// CalculateCRC computes the CRC-16-CCITT checksum for the given data
func CalculateCRC(data []byte) uint16 {
	crc := uint16(crcInitial)
	for _, b := range data {
		crc = crcTable[b^byte(crc>>8)] ^ (crc << 8)
	}
	return crc
}

// CalculateCRCRange computes the checksum over data[start:end].
// Out of range bounds are clamped to the slice.
func CalculateCRCRange(data []byte, start, end int) uint16 {
	if start < 0 {
		start = 0
	}
	if end > len(data) {
		end = len(data)
	}
	if start >= end {
		return crcInitial
	}
	return CalculateCRC(data[start:end])
}
