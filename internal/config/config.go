// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads device profiles for the peripheral emulator.
//
// Example profile:
//
//	[device]
//	class = 3
//	type = 2
//	serial = 1042
//	version = "1.4.0"
//	name = "Pump Controller"
//	info = "Dosing pump, two channels"
//
//	[peripheral]
//	interval = "1s"
//	suppress_window = "4s"
//	metrics_addr = ":9464"
//	fields = ["mode=str:auto", "channels=u8:2"]
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Thermoquad/sdlink/pkg/sdlink"
)

// Profile is a loaded device profile
type Profile struct {
	Descriptor     sdlink.Descriptor
	Interval       time.Duration
	SuppressWindow time.Duration
	MetricsAddr    string
	Fields         []sdlink.Record
}

type fileConfig struct {
	Device     deviceSection     `toml:"device"`
	Peripheral peripheralSection `toml:"peripheral"`
}

type deviceSection struct {
	Class   uint16 `toml:"class"`
	Type    uint16 `toml:"type"`
	Serial  uint32 `toml:"serial"`
	Version string `toml:"version"`
	Name    string `toml:"name"`
	Info    string `toml:"info"`
}

type peripheralSection struct {
	Interval       string   `toml:"interval"`
	SuppressWindow string   `toml:"suppress_window"`
	MetricsAddr    string   `toml:"metrics_addr"`
	Fields         []string `toml:"fields"`
}

// Default returns the profile of a generic device
func Default() Profile {
	return Profile{
		Descriptor:     sdlink.DefaultDescriptor(),
		Interval:       time.Second,
		SuppressWindow: sdlink.DefaultSuppressWindow,
	}
}

// Load reads a TOML profile. Keys not present in the file keep their
// Default values.
func Load(path string) (Profile, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Profile{}, fmt.Errorf("load profile: %w", err)
	}
	return fromFile(raw, meta)
}

// Parse reads a TOML profile from a string
func Parse(data string) (Profile, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Profile{}, fmt.Errorf("parse profile: %w", err)
	}
	return fromFile(raw, meta)
}

func fromFile(raw fileConfig, meta toml.MetaData) (Profile, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Profile{}, fmt.Errorf("unknown key %q", undecoded[0].String())
	}

	p := Default()
	d := &p.Descriptor

	if meta.IsDefined("device", "class") {
		d.ClassID = raw.Device.Class
	}
	if meta.IsDefined("device", "type") {
		d.TypeID = raw.Device.Type
	}
	if meta.IsDefined("device", "serial") {
		d.Serial = raw.Device.Serial
	}
	if meta.IsDefined("device", "version") {
		major, minor, rev, err := ParseVersion(raw.Device.Version)
		if err != nil {
			return Profile{}, err
		}
		d.SetVersion(major, minor, rev)
	}
	if meta.IsDefined("device", "name") {
		d.Name = strings.TrimSpace(raw.Device.Name)
	}
	if meta.IsDefined("device", "info") {
		d.Info = strings.TrimSpace(raw.Device.Info)
	}

	if meta.IsDefined("peripheral", "interval") {
		v, err := time.ParseDuration(strings.TrimSpace(raw.Peripheral.Interval))
		if err != nil {
			return Profile{}, fmt.Errorf("parse interval: %w", err)
		}
		p.Interval = v
	}
	if meta.IsDefined("peripheral", "suppress_window") {
		v, err := time.ParseDuration(strings.TrimSpace(raw.Peripheral.SuppressWindow))
		if err != nil {
			return Profile{}, fmt.Errorf("parse suppress_window: %w", err)
		}
		p.SuppressWindow = v
	}
	if meta.IsDefined("peripheral", "metrics_addr") {
		p.MetricsAddr = strings.TrimSpace(raw.Peripheral.MetricsAddr)
	}
	for i, field := range raw.Peripheral.Fields {
		r, err := sdlink.ParseField(strings.TrimSpace(field))
		if err != nil {
			return Profile{}, fmt.Errorf("fields[%d]: %w", i, err)
		}
		p.Fields = append(p.Fields, r)
	}

	if err := Validate(p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate checks a profile for values the engine cannot use
func Validate(p Profile) error {
	if p.Descriptor.Name == "" {
		return fmt.Errorf("device name is required")
	}
	if len(p.Descriptor.Name) > sdlink.MaxStringLength {
		return fmt.Errorf("device name: %w", sdlink.ErrValueTooLong)
	}
	if len(p.Descriptor.Info) > sdlink.MaxStringLength {
		return fmt.Errorf("device info: %w", sdlink.ErrValueTooLong)
	}
	if p.Interval < 0 {
		return fmt.Errorf("interval must not be negative")
	}
	if p.SuppressWindow < 0 {
		return fmt.Errorf("suppress_window must not be negative")
	}

	seen := make(map[string]bool, len(p.Fields))
	for _, r := range p.Fields {
		if seen[r.Key] {
			return fmt.Errorf("duplicate field %q", r.Key)
		}
		seen[r.Key] = true
	}
	return nil
}

// ParseVersion parses "major.minor.revision"; missing parts are zero
func ParseVersion(s string) (uint8, uint8, uint8, error) {
	parts := strings.Split(strings.TrimPrefix(strings.TrimSpace(s), "v"), ".")
	if len(parts) > 3 || parts[0] == "" {
		return 0, 0, 0, fmt.Errorf("invalid version %q", s)
	}

	var out [3]uint8
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 8)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid version %q: %w", s, err)
		}
		out[i] = uint8(n)
	}
	return out[0], out[1], out[2], nil
}
