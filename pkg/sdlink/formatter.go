// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdlink

import (
	"fmt"
	"strings"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	timestamp := f.Timestamp().Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s (0x%02X) len=%d crc=0x%04X\n",
		timestamp, f.Command(), uint8(f.Command()), f.Length(), f.CRC())

	switch f.Command() {
	case CmdGetInfo, CmdStopData:
		if len(f.Payload()) == 0 {
			return result + "  (no payload)\n"
		}
	}

	s, err := f.Store()
	if err != nil {
		return result + fmt.Sprintf("  (undecodable: %v)\n  %s\n", err, FormatHex(f.Payload()))
	}
	if f.Command() == CmdSendInfo {
		if d, err := DescriptorFromStore(s); err == nil {
			return result + FormatDescriptor(d)
		}
	}
	return result + FormatRecords(s)
}

// FormatRecords lists the records of a store one per line
func FormatRecords(s *Store) string {
	if s.Len() == 0 {
		return "  (no records)\n"
	}
	var b strings.Builder
	for _, r := range s.Records() {
		fmt.Fprintf(&b, "  %-16s %-4s %s\n", r.Key, r.Value.Type(), r.Value)
	}
	return b.String()
}

// FormatDescriptor formats a device descriptor
func FormatDescriptor(d Descriptor) string {
	return fmt.Sprintf("  Device: %s (v%s)\n  Class: %d, Type: %d, Serial: %d\n  Info: %s\n",
		d.Name, d.Version(), d.ClassID, d.TypeID, d.Serial, d.Info)
}

// FormatHex renders bytes as space separated hex
func FormatHex(data []byte) string {
	var b strings.Builder
	for i, v := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}
