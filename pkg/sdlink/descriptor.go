// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdlink

import (
	"errors"
	"fmt"
)

// Descriptor identifies a device. It is sent in response to GET_INFO.
type Descriptor struct {
	ClassID         uint16
	TypeID          uint16
	Serial          uint32
	VersionMajor    uint8
	VersionMinor    uint8
	VersionRevision uint8
	Name            string
	Info            string
}

// DefaultDescriptor returns the descriptor of a generic device
func DefaultDescriptor() Descriptor {
	return Descriptor{
		ClassID:         1,
		TypeID:          1,
		Serial:          1,
		VersionMajor:    1,
		VersionMinor:    0,
		VersionRevision: 0,
		Name:            "Generic Device",
		Info:            "Basic device for sending data",
	}
}

// SetVersion sets all three version components
func (d *Descriptor) SetVersion(major, minor, revision uint8) {
	d.VersionMajor = major
	d.VersionMinor = minor
	d.VersionRevision = revision
}

// Version formats the version as major.minor.revision
func (d Descriptor) Version() string {
	return fmt.Sprintf("%d.%d.%d", d.VersionMajor, d.VersionMinor, d.VersionRevision)
}

// ToStore builds the SEND_INFO record set
func (d Descriptor) ToStore() (*Store, error) {
	s := NewStore()
	err := errors.Join(
		Set(s, InfoKeyClass, d.ClassID),
		Set(s, InfoKeyType, d.TypeID),
		Set(s, InfoKeySerial, d.Serial),
		Set(s, InfoKeyVersion1, d.VersionMajor),
		Set(s, InfoKeyVersion2, d.VersionMinor),
		Set(s, InfoKeyVersion3, d.VersionRevision),
		Set(s, InfoKeyName, d.Name),
		Set(s, InfoKeyInfo, d.Info),
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// DescriptorFromStore parses the records of a SEND_INFO frame
func DescriptorFromStore(s *Store) (Descriptor, error) {
	var d Descriptor
	var errs []error
	get16 := func(key string) uint16 {
		v, err := Get[uint16](s, key)
		errs = append(errs, err)
		return v
	}
	get8 := func(key string) uint8 {
		v, err := Get[uint8](s, key)
		errs = append(errs, err)
		return v
	}
	getStr := func(key string) string {
		v, err := Get[string](s, key)
		errs = append(errs, err)
		return v
	}

	d.ClassID = get16(InfoKeyClass)
	d.TypeID = get16(InfoKeyType)
	serial, err := Get[uint32](s, InfoKeySerial)
	errs = append(errs, err)
	d.Serial = serial
	d.VersionMajor = get8(InfoKeyVersion1)
	d.VersionMinor = get8(InfoKeyVersion2)
	d.VersionRevision = get8(InfoKeyVersion3)
	d.Name = getStr(InfoKeyName)
	d.Info = getStr(InfoKeyInfo)

	if err := errors.Join(errs...); err != nil {
		return d, fmt.Errorf("invalid descriptor: %w", err)
	}
	return d, nil
}
