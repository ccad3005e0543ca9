// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdlink

import "fmt"

// AnomalyType represents different types of frame anomalies
type AnomalyType int

const (
	AnomalyUnknownCommand AnomalyType = iota
	AnomalyEmptyPayload
	AnomalyUnexpectedPayload
	AnomalyUndecodablePayload
	AnomalyInvalidInfo
)

// String returns the anomaly name
func (a AnomalyType) String() string {
	switch a {
	case AnomalyUnknownCommand:
		return "unknown_command"
	case AnomalyEmptyPayload:
		return "empty_payload"
	case AnomalyUnexpectedPayload:
		return "unexpected_payload"
	case AnomalyUndecodablePayload:
		return "undecodable_payload"
	case AnomalyInvalidInfo:
		return "invalid_info"
	}
	return fmt.Sprintf("anomaly(%d)", int(a))
}

// ValidationError represents a frame that decoded but looks wrong
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]any
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateFrame checks a well-formed frame for protocol anomalies.
// Returns an empty slice if the frame is valid.
func ValidateFrame(f *Frame) []ValidationError {
	errs := []ValidationError{}

	switch f.Command() {
	case CmdGetInfo, CmdStopData:
		if len(f.Payload()) > 0 {
			errs = append(errs, ValidationError{
				Type:    AnomalyUnexpectedPayload,
				Message: fmt.Sprintf("%s carries %d payload bytes", f.Command(), len(f.Payload())),
				Details: map[string]any{"command": f.Command().String(), "length": len(f.Payload())},
			})
		}

	case CmdSendData:
		if len(f.Payload()) == 0 {
			return append(errs, ValidationError{
				Type:    AnomalyEmptyPayload,
				Message: "SEND_DATA with empty payload",
				Details: map[string]any{"command": f.Command().String()},
			})
		}
		if _, err := f.Store(); err != nil {
			errs = append(errs, undecodable(f, err))
		}

	case CmdSendInfo:
		s, err := f.Store()
		if err != nil {
			return append(errs, undecodable(f, err))
		}
		if _, err := DescriptorFromStore(s); err != nil {
			errs = append(errs, ValidationError{
				Type:    AnomalyInvalidInfo,
				Message: err.Error(),
				Details: map[string]any{"keys": s.Keys()},
			})
		}

	default:
		errs = append(errs, ValidationError{
			Type:    AnomalyUnknownCommand,
			Message: fmt.Sprintf("unknown command 0x%02X", uint8(f.Command())),
			Details: map[string]any{"command": uint8(f.Command())},
		})
	}

	return errs
}

func undecodable(f *Frame, err error) ValidationError {
	return ValidationError{
		Type:    AnomalyUndecodablePayload,
		Message: fmt.Sprintf("%s payload: %v", f.Command(), err),
		Details: map[string]any{"command": f.Command().String(), "length": len(f.Payload())},
	}
}
