// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdlink

import (
	"fmt"
	"time"
)

// Decoder implements the receive state machine.
// Partial frames are kept across calls, so feeding bytes never blocks.
type Decoder struct {
	state     int
	declared  uint16
	command   Command
	payload   []byte
	remaining int
	crc       uint16
	rawBuffer []byte // bytes of the frame in progress, including framing
	dropped   uint64
}

// NewDecoder creates a new protocol decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:     stateIdle,
		rawBuffer: make([]byte, 0, 64),
	}
}

// Reset returns the decoder to idle, discarding any partial frame
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.declared = 0
	d.command = 0
	d.payload = nil
	d.remaining = 0
	d.crc = 0
	d.rawBuffer = d.rawBuffer[:0]
}

// RawBytes returns the bytes accumulated for the frame in progress
func (d *Decoder) RawBytes() []byte {
	return d.rawBuffer
}

// DroppedBytes returns how many bytes were discarded while hunting for a header
func (d *Decoder) DroppedBytes() uint64 {
	return d.dropped
}

// InFrame reports whether a frame is partially received
func (d *Decoder) InFrame() bool {
	return d.state != stateIdle
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed frame, or nil if the frame is incomplete.
// Returns an error if the frame failed validation; the decoder is then idle.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	if d.state != stateIdle {
		d.rawBuffer = append(d.rawBuffer, b)
	}

	switch d.state {
	case stateIdle:
		if b != HeaderByte {
			d.dropped++
			return nil, nil
		}
		d.rawBuffer = append(d.rawBuffer[:0], b)
		d.state = stateHeader
		return nil, nil

	case stateHeader:
		if b != PacketIDByte {
			// Not a frame; both bytes are discarded
			d.dropped += 2
			d.Reset()
			return nil, nil
		}
		d.state = statePacketID
		return nil, nil

	case statePacketID:
		d.declared = uint16(b) << 8
		d.state = stateLength2
		return nil, nil

	case stateLength2:
		d.declared |= uint16(b)
		if d.declared < MinDeclaredLength {
			declared := d.declared
			d.Reset()
			return nil, fmt.Errorf("%w: %d (min %d)", ErrInvalidLength, declared, MinDeclaredLength)
		}
		d.remaining = int(d.declared) - MinDeclaredLength
		d.payload = make([]byte, 0, d.remaining)
		d.state = stateCommand
		return nil, nil

	case stateCommand:
		d.command = Command(b)
		if d.remaining == 0 {
			d.state = stateCRC1
		} else {
			d.state = statePayload
		}
		return nil, nil

	case statePayload:
		d.payload = append(d.payload, b)
		d.remaining--
		if d.remaining == 0 {
			d.state = stateCRC1
		}
		return nil, nil

	case stateCRC1:
		d.crc = uint16(b) << 8
		d.state = stateCRC2
		return nil, nil

	case stateCRC2:
		d.crc |= uint16(b)
		d.state = stateTerminator
		return nil, nil

	case stateTerminator:
		return d.finish(b)

	default:
		state := d.state
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", state)
	}
}

// finish validates the completed frame. The checksum is checked before
// the terminator.
func (d *Decoder) finish(terminator byte) (*Frame, error) {
	defer d.Reset()

	calculated := CalculateCRC(d.payload)
	if calculated != d.crc {
		return nil, &FrameError{
			Err:      ErrChecksumMismatch,
			Command:  d.command,
			Expected: calculated,
			Received: d.crc,
		}
	}
	if terminator != TerminatorByte {
		return nil, &FrameError{
			Err:      ErrTerminatorMismatch,
			Command:  d.command,
			Expected: TerminatorByte,
			Received: uint16(terminator),
		}
	}

	return &Frame{
		command:   d.command,
		length:    d.declared,
		payload:   d.payload,
		crc:       d.crc,
		timestamp: time.Now(),
	}, nil
}

// FrameError describes a frame rejected after it was fully received
type FrameError struct {
	Err      error
	Command  Command
	Expected uint16
	Received uint16
}

// Error implements the error interface
func (e *FrameError) Error() string {
	return fmt.Sprintf("%v in %s frame: expected 0x%04X, got 0x%04X", e.Err, e.Command, e.Expected, e.Received)
}

// Unwrap returns the sentinel error
func (e *FrameError) Unwrap() error {
	return e.Err
}
