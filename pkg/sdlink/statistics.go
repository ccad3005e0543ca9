// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdlink

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Statistics tracks frame statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames      uint64
	ValidFrames      uint64
	ChecksumErrors   uint64
	TerminatorErrors uint64
	LengthErrors     uint64
	DecodeErrors     uint64
	Anomalies        uint64
	DroppedBytes     uint64
	CommandCounts    map[Command]uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
		CommandCounts:  make(map[Command]uint64),
	}
}

// Update records one frame attempt. f may be nil when the frame was
// rejected before completion.
func (s *Statistics) Update(f *Frame, err error, validationErrors []ValidationError) {
	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	if f != nil {
		s.CommandCounts[f.Command()]++
	}

	if err != nil {
		switch {
		case errors.Is(err, ErrChecksumMismatch):
			s.ChecksumErrors++
		case errors.Is(err, ErrTerminatorMismatch):
			s.TerminatorErrors++
		case errors.Is(err, ErrInvalidLength):
			s.LengthErrors++
		default:
			s.DecodeErrors++
		}
		return
	}

	if len(validationErrors) > 0 {
		s.Anomalies += uint64(len(validationErrors))
		return
	}
	s.ValidFrames++
}

// RecordDropped counts bytes discarded outside any frame
func (s *Statistics) RecordDropped(n uint64) {
	s.DroppedBytes += n
}

// Errors returns the total number of rejected or undecodable frames
func (s *Statistics) Errors() uint64 {
	return s.ChecksumErrors + s.TerminatorErrors + s.LengthErrors + s.DecodeErrors
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.Errors()+s.Anomalies) / elapsed
	}
}

func percent(n, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100.0 / float64(total)
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()
	elapsed := time.Since(s.StartTime)

	var b strings.Builder
	fmt.Fprintf(&b, "=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	fmt.Fprintf(&b, "Total Frames:    %8d\n", s.TotalFrames)
	fmt.Fprintf(&b, "Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, percent(s.ValidFrames, s.TotalFrames))

	if s.ChecksumErrors > 0 {
		fmt.Fprintf(&b, "CRC Errors:      %8d (%.1f%%)\n", s.ChecksumErrors, percent(s.ChecksumErrors, s.TotalFrames))
	}
	if s.TerminatorErrors > 0 {
		fmt.Fprintf(&b, "Bad Terminator:  %8d (%.1f%%)\n", s.TerminatorErrors, percent(s.TerminatorErrors, s.TotalFrames))
	}
	if s.LengthErrors > 0 {
		fmt.Fprintf(&b, "Bad Length:      %8d (%.1f%%)\n", s.LengthErrors, percent(s.LengthErrors, s.TotalFrames))
	}
	if s.DecodeErrors > 0 {
		fmt.Fprintf(&b, "Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, percent(s.DecodeErrors, s.TotalFrames))
	}
	if s.Anomalies > 0 {
		fmt.Fprintf(&b, "Anomalies:       %8d\n", s.Anomalies)
	}
	if s.DroppedBytes > 0 {
		fmt.Fprintf(&b, "Dropped Bytes:   %8d\n", s.DroppedBytes)
	}

	if len(s.CommandCounts) > 0 {
		cmds := make([]Command, 0, len(s.CommandCounts))
		for c := range s.CommandCounts {
			cmds = append(cmds, c)
		}
		sort.Slice(cmds, func(i, j int) bool { return cmds[i] < cmds[j] })
		for _, c := range cmds {
			fmt.Fprintf(&b, "  %-12s   %8d\n", c.String()+":", s.CommandCounts[c])
		}
	}

	fmt.Fprintf(&b, "Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	fmt.Fprintf(&b, "Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	b.WriteString("================================\n")
	return b.String()
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
