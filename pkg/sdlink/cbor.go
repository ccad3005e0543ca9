// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdlink

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborRecord is one record as a CBOR array: [key, type, value]
type cborRecord struct {
	_     struct{} `cbor:",toarray"`
	Key   string
	Type  Type
	Value cbor.RawMessage
}

// MarshalCBOR encodes the store as an array of [key, type, value]
// triples. The type tag is kept so widths survive the round trip.
func (s *Store) MarshalCBOR() ([]byte, error) {
	out := make([]cborRecord, 0, len(s.records))
	for _, r := range s.records {
		raw, err := cbor.Marshal(r.Value.Interface())
		if err != nil {
			return nil, fmt.Errorf("failed to encode %q: %w", r.Key, err)
		}
		out = append(out, cborRecord{Key: r.Key, Type: r.Value.Type(), Value: raw})
	}
	return cbor.Marshal(out)
}

// UnmarshalCBOR replaces the store contents with the decoded records
func (s *Store) UnmarshalCBOR(data []byte) error {
	var in []cborRecord
	if err := cbor.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("failed to decode CBOR: %w", err)
	}

	s.Clear()
	for _, r := range in {
		v, err := valueFromCBOR(r.Type, r.Value)
		if err != nil {
			s.Clear()
			return fmt.Errorf("record %q: %w", r.Key, err)
		}
		if err := s.Put(r.Key, v); err != nil {
			s.Clear()
			return err
		}
	}
	return nil
}

func valueFromCBOR(t Type, raw cbor.RawMessage) (Value, error) {
	switch t {
	case TypeInt8:
		return cborValue[int8](raw)
	case TypeUint8:
		return cborValue[uint8](raw)
	case TypeInt16:
		return cborValue[int16](raw)
	case TypeUint16:
		return cborValue[uint16](raw)
	case TypeInt32:
		return cborValue[int32](raw)
	case TypeUint32:
		return cborValue[uint32](raw)
	case TypeFloat32:
		return cborValue[float32](raw)
	case TypeFloat64:
		return cborValue[float64](raw)
	case TypeString:
		return cborValue[string](raw)
	}
	return Value{}, fmt.Errorf("%w: %d", ErrUnknownType, uint8(t))
}

func cborValue[T Scalar](raw cbor.RawMessage) (Value, error) {
	var v T
	if err := cbor.Unmarshal(raw, &v); err != nil {
		return Value{}, err
	}
	return ValueOf(v), nil
}
