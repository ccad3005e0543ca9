// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/sdlink/pkg/sdlink"
)

var (
	packetTestTimeout int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid frame",
	Long: `Wait for a valid frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any
complete frame that passes its CRC and terminator checks. Invalid bytes
before the first frame are skipped and counted.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for testing cabling, baud rate and WebSocket bridges.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

// firstFrame feeds chunks to a decoder until a frame completes. It
// returns the frame and how many bytes were skipped before it.
func firstFrame(chunks <-chan []byte, errc <-chan error, timeout <-chan time.Time) (*sdlink.Frame, int, error) {
	decoder := sdlink.NewDecoder()
	consumed := 0
	for {
		select {
		case data := <-chunks:
			for _, b := range data {
				consumed++
				f, err := decoder.DecodeByte(b)
				if err == nil && f != nil {
					return f, consumed - int(f.Length()) - 4, nil
				}
			}
		case err := <-errc:
			return nil, 0, exitWith(exitConnection, fmt.Errorf("read error: %w", err))
		case <-timeout:
			return nil, 0, exitWith(exitTimeout, fmt.Errorf("%w: no valid frame received within %d seconds", errTimeout, packetTestTimeout))
		}
	}
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return exitWith(exitConnection, err)
	}
	defer conn.Close()

	fmt.Printf("sdlink - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid frame...\n\n")

	chunks, errc := readChunks(conn)
	f, skipped, err := firstFrame(chunks, errc, time.After(time.Duration(packetTestTimeout)*time.Second))
	if err != nil {
		return err
	}

	if skipped > 0 {
		fmt.Printf("(skipped %d invalid bytes before sync)\n", skipped)
	}
	fmt.Printf("SUCCESS: Received valid frame\n")
	fmt.Printf("  Command: %s (0x%02X)\n", f.Command(), uint8(f.Command()))
	fmt.Printf("  Length: %d bytes\n", f.Length())
	fmt.Printf("  CRC: 0x%04X\n", f.CRC())
	return nil
}
