// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/sdlink/pkg/sdlink"
)

var (
	sendRepeat   int
	sendInterval time.Duration
	sendDryRun   bool
)

var sendCmd = &cobra.Command{
	Use:   "send key=type:value...",
	Short: "Send records in a SEND_DATA frame",
	Long: `Encode the given fields into a record payload and send it as SEND_DATA.

Field syntax is key=type:value, with type one of
  i8 u8 i16 u16 i32 u32 f32 f64 str
A missing type means str, e.g. mode=auto.

With --repeat the frame is resent every --interval. A STOP_DATA from the
device pauses sending for its suppression window; suppressed sends are
reported and skipped.`,
	Example: `  sdlink -p /dev/ttyUSB0 send temp=i16:-40 volts=f32:3.3 mode=auto
  sdlink -p /dev/ttyUSB0 send --dry-run level=u8:7`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().IntVar(&sendRepeat, "repeat", 1, "Number of frames to send")
	sendCmd.Flags().DurationVar(&sendInterval, "interval", time.Second, "Delay between repeated frames")
	sendCmd.Flags().BoolVar(&sendDryRun, "dry-run", false, "Print the encoded frame without sending")
}

func runSend(cmd *cobra.Command, args []string) error {
	records, err := parseFields(args)
	if err != nil {
		return err
	}

	if sendDryRun {
		s, err := storeOf(records)
		if err != nil {
			return err
		}
		data, err := sdlink.EncodeStoreFrame(sdlink.CmdSendData, s)
		if err != nil {
			return err
		}
		f, err := sdlink.DecodeFrame(data)
		if err != nil {
			return err
		}
		fmt.Print(sdlink.FormatFrame(f))
		fmt.Println(sdlink.FormatHex(data))
		return nil
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	sent := 0
	for i := 1; i <= sendRepeat; i++ {
		// Pick up any STOP_DATA before sending
		if err := s.poll(); err != nil {
			return err
		}

		// Received SEND_DATA lands in the same store
		store := s.engine.Store()
		store.Clear()
		for _, r := range records {
			if err := store.Put(r.Key, r.Value); err != nil {
				return err
			}
		}

		err := s.engine.Send(sdlink.CmdSendData)
		switch {
		case errors.Is(err, sdlink.ErrSuppressed):
			fmt.Printf("Frame %d/%d: suppressed by STOP_DATA\n", i, sendRepeat)
		case err != nil:
			return exitWith(exitConnection, err)
		default:
			sent++
			fmt.Printf("Frame %d/%d: sent %d records\n", i, sendRepeat, len(records))
		}

		if i < sendRepeat {
			if err := s.run(sendInterval, nil); err != nil {
				return err
			}
		}
	}

	if sent == 0 {
		return fmt.Errorf("no frames sent")
	}
	return nil
}
