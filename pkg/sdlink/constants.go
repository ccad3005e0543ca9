// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sdlink provides a Go implementation of the Serial Device Link protocol.
//
// Serial Device Link is a point-to-point binary protocol for exchanging
// key-addressed, typed records between a host and an embedded device over a
// byte-oriented link such as a UART. This package provides the record store
// and its payload codec, CRC validation, frame encoding/decoding and the
// polling protocol engine that dispatches commands.
package sdlink

import "time"

// Protocol framing bytes
const (
	HeaderByte     = 0xAA
	PacketIDByte   = 0xBB
	TerminatorByte = 0xDD
)

// Frame layout
const (
	FrameHeaderSize = 5 // header + packet id + length(2) + command
	FrameTrailSize  = 3 // crc(2) + terminator
	FrameOverhead   = FrameHeaderSize + FrameTrailSize

	// The declared length covers command + payload + crc + terminator
	MinDeclaredLength = 4
	MaxDeclaredLength = 0xFFFF
	MaxPayloadSize    = MaxDeclaredLength - MinDeclaredLength
)

// Record limits
const (
	MaxKeyLength    = 255
	MaxStringLength = 255
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0x0000
)

// DefaultSuppressWindow is how long outgoing SEND_DATA frames are dropped
// after the peer issues STOP_DATA.
const DefaultSuppressWindow = 4000 * time.Millisecond

// Command identifies the purpose of a frame.
type Command uint8

// Commands
const (
	CmdGetInfo  Command = 0x50 // request device descriptor
	CmdSendData Command = 0x64 // deliver record payload
	CmdSendInfo Command = 0x69 // descriptor response
	CmdStopData Command = 0x72 // throttle request
)

// String returns the wire name of the command
func (c Command) String() string {
	switch c {
	case CmdGetInfo:
		return "GET_INFO"
	case CmdSendData:
		return "SEND_DATA"
	case CmdSendInfo:
		return "SEND_INFO"
	case CmdStopData:
		return "STOP_DATA"
	default:
		return "UNKNOWN"
	}
}

// Known reports whether c is one of the protocol commands
func (c Command) Known() bool {
	return c.String() != "UNKNOWN"
}

// Decoder states (internal)
const (
	stateIdle = iota
	stateHeader
	statePacketID
	stateLength2
	stateCommand
	statePayload
	stateCRC1
	stateCRC2
	stateTerminator
)

// Descriptor record keys carried by SEND_INFO
const (
	InfoKeyClass    = "class"
	InfoKeyType     = "type"
	InfoKeySerial   = "serial"
	InfoKeyVersion1 = "v1"
	InfoKeyVersion2 = "v2"
	InfoKeyVersion3 = "v3"
	InfoKeyName     = "name"
	InfoKeyInfo     = "info"
)
