// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/sdlink/internal/config"
	"github.com/Thermoquad/sdlink/pkg/sdlink"
)

var (
	periphInterval       time.Duration
	periphSuppressWindow time.Duration
	periphMetricsAddr    string
	periphFields         []string
	periphName           string
	periphSerial         uint32
	periphDuration       time.Duration
)

var peripheralCmd = &cobra.Command{
	Use:   "peripheral",
	Short: "Emulate a device on the link",
	Long: `Act as a device: answer GET_INFO with the configured descriptor, publish
a SEND_DATA heartbeat every --interval, honor STOP_DATA and print records
received from the host.

The heartbeat carries the profile fields plus:
  seq        u32  heartbeat counter
  uptime_ms  u32  milliseconds since start

Profile values come from --config and are overridden by flags.`,
	RunE: runPeripheral,
}

func init() {
	rootCmd.AddCommand(peripheralCmd)
	peripheralCmd.Flags().DurationVar(&periphInterval, "interval", time.Second, "Heartbeat interval (0 disables)")
	peripheralCmd.Flags().DurationVar(&periphSuppressWindow, "suppress-window", sdlink.DefaultSuppressWindow, "How long STOP_DATA suppresses heartbeats")
	peripheralCmd.Flags().StringVar(&periphMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	peripheralCmd.Flags().StringArrayVarP(&periphFields, "field", "f", nil, "Extra heartbeat field key=type:value (repeatable)")
	peripheralCmd.Flags().StringVar(&periphName, "name", "", "Device name")
	peripheralCmd.Flags().Uint32Var(&periphSerial, "serial", 0, "Device serial number")
	peripheralCmd.Flags().DurationVar(&periphDuration, "duration", 0, "Stop after this long (0 runs until interrupted)")
}

// peripheralProfile merges the config file with flags that were set
func peripheralProfile(cmd *cobra.Command) (config.Profile, error) {
	profile := config.Default()
	if configPath != "" {
		p, err := config.Load(configPath)
		if err != nil {
			return config.Profile{}, err
		}
		profile = p
	}

	flags := cmd.Flags()
	if flags.Changed("interval") {
		profile.Interval = periphInterval
	}
	if flags.Changed("suppress-window") {
		profile.SuppressWindow = periphSuppressWindow
	}
	if flags.Changed("metrics-addr") {
		profile.MetricsAddr = periphMetricsAddr
	}
	if flags.Changed("name") {
		profile.Descriptor.Name = periphName
	}
	if flags.Changed("serial") {
		profile.Descriptor.Serial = periphSerial
	}

	extra, err := parseFields(periphFields)
	if err != nil {
		return config.Profile{}, err
	}
	profile.Fields = append(profile.Fields, extra...)

	if err := config.Validate(profile); err != nil {
		return config.Profile{}, err
	}
	return profile, nil
}

// heartbeat fills the outgoing store for one SEND_DATA frame
type heartbeat struct {
	fields  []sdlink.Record
	started time.Time
	seq     uint32
}

// fill writes the next heartbeat into s. The sequence number advances
// only when sent is called.
func (h *heartbeat) fill(s *sdlink.Store, now time.Time) error {
	s.Clear()
	for _, r := range h.fields {
		if err := s.Put(r.Key, r.Value); err != nil {
			return err
		}
	}
	if err := sdlink.Set(s, "seq", h.seq+1); err != nil {
		return err
	}
	return sdlink.Set(s, "uptime_ms", uint32(now.Sub(h.started).Milliseconds()))
}

func (h *heartbeat) sent() {
	h.seq++
}

// checksumWatch counts checksum failures not yet reported
type checksumWatch struct {
	seen uint64
}

func (w *checksumWatch) fresh(stats *sdlink.Statistics) uint64 {
	n := stats.ChecksumErrors
	if n < w.seen {
		// Statistics were reset
		w.seen = 0
	}
	fresh := n - w.seen
	w.seen = n
	return fresh
}

func runPeripheral(cmd *cobra.Command, args []string) error {
	profile, err := peripheralProfile(cmd)
	if err != nil {
		return err
	}
	if profile.MetricsAddr != "" {
		serveMetrics(profile.MetricsAddr)
	}

	s, err := openSession(
		sdlink.WithDescriptor(profile.Descriptor),
		sdlink.WithSuppressWindow(profile.SuppressWindow),
	)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Printf("Emulating %q (serial %d, v%s) on %s\n",
		profile.Descriptor.Name, profile.Descriptor.Serial, profile.Descriptor.Version(), s.info)
	fmt.Println("Press Ctrl+C to exit")
	fmt.Println()

	hb := &heartbeat{fields: profile.Fields, started: time.Now()}
	var nextBeat time.Time
	wasSuppressed := false
	var crcWatch checksumWatch

	return s.run(periphDuration, func() error {
		e := s.engine

		if e.Available() {
			fmt.Printf("[%s] Received from host:\n", time.Now().Format("15:04:05.000"))
			fmt.Print(sdlink.FormatRecords(e.Store()))
		}
		if n := crcWatch.fresh(e.Statistics()); n > 0 {
			logger.Warn().Err(e.LastError()).Uint64("frames", n).Msg("frame failed its checksum")
		}

		if profile.Interval <= 0 || time.Now().Before(nextBeat) {
			return nil
		}
		nextBeat = time.Now().Add(profile.Interval)

		if err := hb.fill(e.Store(), time.Now()); err != nil {
			return err
		}

		err := e.Send(sdlink.CmdSendData)
		switch {
		case errors.Is(err, sdlink.ErrSuppressed):
			if !wasSuppressed {
				fmt.Printf("[%s] Host sent STOP_DATA, heartbeat paused\n", time.Now().Format("15:04:05.000"))
			}
			wasSuppressed = true
		case err != nil:
			return exitWith(exitConnection, err)
		default:
			if wasSuppressed {
				fmt.Printf("[%s] Heartbeat resumed\n", time.Now().Format("15:04:05.000"))
			}
			wasSuppressed = false
			hb.sent()
			logger.Debug().Uint32("seq", hb.seq).Msg("heartbeat sent")
		}
		return nil
	})
}
