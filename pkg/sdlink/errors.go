// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdlink

import "errors"

// Frame errors
var (
	ErrChecksumMismatch   = errors.New("sdlink: checksum mismatch")
	ErrTerminatorMismatch = errors.New("sdlink: terminator mismatch")
	ErrInvalidLength      = errors.New("sdlink: invalid declared length")
	ErrPayloadTooLarge    = errors.New("sdlink: payload too large")
)

// Record store errors
var (
	ErrDecodeOutOfRange = errors.New("sdlink: decode out of range")
	ErrUnknownType      = errors.New("sdlink: unknown type tag")
	ErrKeyNotFound      = errors.New("sdlink: key not found")
	ErrTypeMismatch     = errors.New("sdlink: type mismatch")
	ErrKeyTooLong       = errors.New("sdlink: key too long")
	ErrValueTooLong     = errors.New("sdlink: string value too long")
)

// Engine errors
var (
	ErrSuppressed = errors.New("sdlink: transmit suppressed by STOP_DATA")
)
