// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var wsTestCmd = &cobra.Command{
	Use:   "ws_test",
	Short: "Test raw connection stability",
	Long: `Hold a connection open without sending anything, logging the data that
arrives and any errors. Received bytes are also run through the frame
decoder so the summary shows whether the stream carries valid frames.

Works over WebSocket bridges and serial ports alike; useful for debugging
connection stability issues.

Exit codes:
  0 - Test completed normally
  2 - Connection error`,
	RunE: runWsTest,
}

var wsTestDuration int

func init() {
	rootCmd.AddCommand(wsTestCmd)
	wsTestCmd.Flags().IntVar(&wsTestDuration, "duration", 30, "Test duration in seconds")
}

// linkTally summarizes a stability test
type linkTally struct {
	chunks  int
	bytes   int
	frames  int
	errors  int
	dropped uint64
}

func (t *linkTally) add(data []byte, mon *frameMonitor) {
	t.chunks++
	t.bytes += len(data)
	for _, ev := range mon.feed(data) {
		switch {
		case ev.frame != nil:
			t.frames++
		case ev.err != nil:
			t.errors++
		}
		t.dropped += ev.dropped
	}
}

func (t *linkTally) print(elapsed time.Duration, result string) {
	fmt.Printf("\n--- Test Results ---\n")
	fmt.Printf("Duration: %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Chunks received: %d\n", t.chunks)
	fmt.Printf("Bytes received: %d\n", t.bytes)
	fmt.Printf("Frames decoded: %d (%d rejected, %d bytes dropped)\n", t.frames, t.errors, t.dropped)
	fmt.Printf("Result: %s\n", result)
}

func runWsTest(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return exitWith(exitConnection, err)
	}
	defer conn.Close()

	fmt.Printf("Connection Stability Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %d seconds\n\n", wsTestDuration)

	chunks, errc := readChunks(conn)
	mon := newFrameMonitor()
	var tally linkTally

	start := time.Now()
	endTime := start.Add(time.Duration(wsTestDuration) * time.Second)
	heartbeat := time.NewTicker(time.Second)
	defer heartbeat.Stop()

	fmt.Printf("Listening for data...\n\n")

	for time.Now().Before(endTime) {
		select {
		case data := <-chunks:
			tally.add(data, mon)
			fmt.Printf("[%s] Received %d bytes: %x\n",
				time.Now().Format("15:04:05.000"), len(data), data)

		case err := <-errc:
			fmt.Printf("\n[%s] Connection error: %v\n",
				time.Now().Format("15:04:05.000"), err)
			tally.print(time.Since(start), "FAILED (connection error)")
			return exitWith(exitConnection, err)

		case <-heartbeat.C:
			// Show the test is still running
			remaining := time.Until(endTime).Seconds()
			fmt.Printf("[%s] Still connected... (%.0fs remaining)\n",
				time.Now().Format("15:04:05.000"), remaining)
		}
	}

	tally.print(time.Since(start), "PASSED (connection stable)")
	return nil
}
