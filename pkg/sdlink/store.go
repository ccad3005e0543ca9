// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdlink

import "fmt"

// Record is one key/type/value triple
type Record struct {
	Key   string
	Value Value
}

// String formats the record as key=type:value
func (r Record) String() string {
	return fmt.Sprintf("%s=%s:%s", r.Key, r.Value.Type(), r.Value)
}

// Store is an ordered collection of records with unique keys.
// Insertion order is preserved and determines the encoded byte order.
// A Store is not safe for concurrent use.
type Store struct {
	records []Record
	read    bool
}

// NewStore creates an empty record store
func NewStore() *Store {
	return &Store{}
}

// Find returns the index of key, or -1 if absent
func (s *Store) Find(key string) int {
	for i, r := range s.records {
		if r.Key == key {
			return i
		}
	}
	return -1
}

// Put inserts or updates a record.
// An existing key with the same type is overwritten in place; with a
// different type the old record is removed and the new one appended.
func (s *Store) Put(key string, v Value) error {
	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrKeyTooLong, len(key), MaxKeyLength)
	}
	if !v.typ.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownType, uint8(v.typ))
	}
	if v.typ == TypeString && len(v.str) > MaxStringLength {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrValueTooLong, len(v.str), MaxStringLength)
	}

	if i := s.Find(key); i != -1 {
		if s.records[i].Value.typ == v.typ {
			s.records[i].Value = v
			return nil
		}
		s.records = append(s.records[:i], s.records[i+1:]...)
	}
	s.records = append(s.records, Record{Key: key, Value: v})
	return nil
}

// Set stores v under key with the type tag of T
func Set[T Scalar](s *Store, key string, v T) error {
	return s.Put(key, ValueOf(v))
}

// Get returns the value stored under key as T.
// It returns the zero value with ErrKeyNotFound when the key is absent and
// with ErrTypeMismatch when the stored record holds a different type.
func Get[T Scalar](s *Store, key string) (T, error) {
	var zero T
	v, ok := s.Lookup(key)
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	if want := TypeOf[T](); v.typ != want {
		return zero, fmt.Errorf("%w: %q holds %s, requested %s", ErrTypeMismatch, key, v.typ, want)
	}
	return valueAs[T](v), nil
}

// GetOr returns the value under key, or def on any lookup failure
func GetOr[T Scalar](s *Store, key string, def T) T {
	v, err := Get[T](s, key)
	if err != nil {
		return def
	}
	return v
}

// Lookup returns the untyped value stored under key.
// A successful lookup marks the store as read.
func (s *Store) Lookup(key string) (Value, bool) {
	i := s.Find(key)
	if i == -1 {
		return Value{}, false
	}
	s.read = true
	return s.records[i].Value, true
}

// Delete removes key, reporting whether it was present
func (s *Store) Delete(key string) bool {
	i := s.Find(key)
	if i == -1 {
		return false
	}
	s.records = append(s.records[:i], s.records[i+1:]...)
	return true
}

// Len returns the number of records
func (s *Store) Len() int {
	return len(s.records)
}

// Records returns a copy of the records in store order. Like Lookup it
// counts as reading the store.
func (s *Store) Records() []Record {
	s.read = true
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Keys returns the keys in store order
func (s *Store) Keys() []string {
	keys := make([]string, len(s.records))
	for i, r := range s.records {
		keys[i] = r.Key
	}
	return keys
}

// Clear removes all records
func (s *Store) Clear() {
	s.records = s.records[:0]
}

// WasRead reports whether a field has been looked up since the last
// MarkUnread
func (s *Store) WasRead() bool {
	return s.read
}

// MarkUnread resets the read flag
func (s *Store) MarkUnread() {
	s.read = false
}

// Equal reports whether both stores hold the same records in the same order
func (s *Store) Equal(o *Store) bool {
	if len(s.records) != len(o.records) {
		return false
	}
	for i := range s.records {
		if s.records[i].Key != o.records[i].Key || !s.records[i].Value.Equal(o.records[i].Value) {
			return false
		}
	}
	return true
}
