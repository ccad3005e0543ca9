// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdlink

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Frame represents one decoded protocol frame
type Frame struct {
	command   Command
	length    uint16
	payload   []byte
	crc       uint16
	timestamp time.Time

	// Cached decoded payload (lazy)
	store    *Store
	parsed   bool
	parseErr error
}

// NewFrame creates a frame for the given command and raw payload.
// The declared length and CRC are computed from the payload.
func NewFrame(cmd Command, payload []byte) *Frame {
	return &Frame{
		command:   cmd,
		length:    uint16(MinDeclaredLength + len(payload)),
		payload:   payload,
		crc:       CalculateCRC(payload),
		timestamp: time.Now(),
	}
}

// NewFrameWithStore creates a frame carrying an encoded record store
func NewFrameWithStore(cmd Command, s *Store) *Frame {
	f := NewFrame(cmd, s.Encode())
	f.store = s
	f.parsed = true
	return f
}

// Command returns the frame's command byte
func (f *Frame) Command() Command {
	return f.command
}

// Length returns the declared length field
func (f *Frame) Length() uint16 {
	return f.length
}

// Payload returns the raw encoded payload bytes
func (f *Frame) Payload() []byte {
	return f.payload
}

// CRC returns the frame's checksum
func (f *Frame) CRC() uint16 {
	return f.crc
}

// Timestamp returns the frame's decode timestamp
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// Store returns the decoded payload, parsing it on first use
func (f *Frame) Store() (*Store, error) {
	if !f.parsed {
		f.parsed = true
		f.store, f.parseErr = DecodeStore(f.payload)
	}
	return f.store, f.parseErr
}

// Encode returns the wire bytes for the frame
func (f *Frame) Encode() ([]byte, error) {
	return EncodeFrame(f.command, f.payload)
}

// EncodeFrame builds a complete wire frame around payload.
// Layout: AA BB len(2) cmd payload crc(2) DD, big-endian, with the CRC
// computed over the payload only.
func EncodeFrame(cmd Command, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	buf := make([]byte, 0, FrameOverhead+len(payload))
	buf = append(buf, HeaderByte, PacketIDByte, 0, 0, byte(cmd))
	buf = append(buf, payload...)
	buf = append(buf, 0, 0, TerminatorByte)
	return sealFrame(buf), nil
}

// EncodeStoreFrame encodes s straight into a frame buffer
func EncodeStoreFrame(cmd Command, s *Store) ([]byte, error) {
	size := s.EncodedLen()
	if size > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, size, MaxPayloadSize)
	}

	buf := make([]byte, 0, FrameOverhead+size)
	buf = append(buf, HeaderByte, PacketIDByte, 0, 0, byte(cmd))
	buf = s.AppendEncode(buf)
	buf = append(buf, 0, 0, TerminatorByte)
	return sealFrame(buf), nil
}

// MustEncodeFrame is like EncodeFrame but panics on error
func MustEncodeFrame(cmd Command, payload []byte) []byte {
	data, err := EncodeFrame(cmd, payload)
	if err != nil {
		panic(fmt.Sprintf("sdlink: encode error: %v", err))
	}
	return data
}

// sealFrame backfills the length and checksum placeholders
func sealFrame(buf []byte) []byte {
	declared := len(buf) - 4
	binary.BigEndian.PutUint16(buf[2:4], uint16(declared))

	crcAt := len(buf) - FrameTrailSize
	crc := CalculateCRCRange(buf, FrameHeaderSize, crcAt)
	binary.BigEndian.PutUint16(buf[crcAt:crcAt+2], crc)
	return buf
}

// DecodeFrame decodes a complete wire frame.
// Returns an error if data does not hold exactly one valid frame.
func DecodeFrame(data []byte) (*Frame, error) {
	d := NewDecoder()
	for i, b := range data {
		f, err := d.DecodeByte(b)
		if err != nil {
			return nil, err
		}
		if f != nil {
			if i != len(data)-1 {
				return nil, fmt.Errorf("%d trailing bytes after frame", len(data)-1-i)
			}
			return f, nil
		}
	}
	return nil, fmt.Errorf("incomplete frame: %d bytes", len(data))
}
