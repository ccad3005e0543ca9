// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdlink

import "fmt"

// EncodedLen returns the number of bytes Encode will produce
func (s *Store) EncodedLen() int {
	n := 0
	for _, r := range s.records {
		n += 2 + len(r.Key) + r.Value.Len()
		if r.Value.typ == TypeString {
			n++
		}
	}
	return n
}

// Encode serializes the store in store order.
// Each record is: type(1) key_len(1) key [value_len(1) for strings] value.
// Numeric values are big-endian.
func (s *Store) Encode() []byte {
	return s.AppendEncode(make([]byte, 0, s.EncodedLen()))
}

// AppendEncode appends the encoded store to buf
func (s *Store) AppendEncode(buf []byte) []byte {
	for _, r := range s.records {
		buf = append(buf, byte(r.Value.typ), byte(len(r.Key)))
		buf = append(buf, r.Key...)
		if r.Value.typ == TypeString {
			buf = append(buf, byte(len(r.Value.str)))
		}
		buf = r.Value.appendWire(buf)
	}
	return buf
}

// Decode clears the store and repopulates it from an encoded payload.
// On error the store is left empty.
func (s *Store) Decode(data []byte) error {
	s.Clear()
	if err := s.decode(data); err != nil {
		s.Clear()
		return err
	}
	return nil
}

func (s *Store) decode(data []byte) error {
	i := 0
	for i < len(data) {
		start := i
		t := Type(data[i])
		i++
		if !t.Valid() {
			return fmt.Errorf("%w: %d at offset %d", ErrUnknownType, uint8(t), start)
		}

		if i >= len(data) {
			return fmt.Errorf("%w: missing key length at offset %d", ErrDecodeOutOfRange, i)
		}
		keyLen := int(data[i])
		i++
		if i+keyLen > len(data) {
			return fmt.Errorf("%w: key of %d bytes at offset %d exceeds payload (%d bytes)",
				ErrDecodeOutOfRange, keyLen, i, len(data))
		}
		key := string(data[i : i+keyLen])
		i += keyLen

		var v Value
		if t == TypeString {
			if i >= len(data) {
				return fmt.Errorf("%w: missing value length for %q at offset %d", ErrDecodeOutOfRange, key, i)
			}
			valueLen := int(data[i])
			i++
			if i+valueLen > len(data) {
				return fmt.Errorf("%w: value of %d bytes for %q at offset %d exceeds payload (%d bytes)",
					ErrDecodeOutOfRange, valueLen, key, i, len(data))
			}
			v = StringValue(string(data[i : i+valueLen]))
			i += valueLen
		} else {
			size := t.Size()
			if i+size > len(data) {
				return fmt.Errorf("%w: %s value for %q at offset %d exceeds payload (%d bytes)",
					ErrDecodeOutOfRange, t, key, i, len(data))
			}
			v = valueFromWire(t, data[i:i+size])
			i += size
		}

		if err := s.Put(key, v); err != nil {
			return err
		}
	}
	return nil
}

// DecodeStore decodes a payload into a new store
func DecodeStore(data []byte) (*Store, error) {
	s := NewStore()
	if err := s.Decode(data); err != nil {
		return nil, err
	}
	return s, nil
}
