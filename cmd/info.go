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
	infoTimeout int
	infoCount   int
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Request the device descriptor with GET_INFO",
	Long: `Send GET_INFO and wait for the SEND_INFO reply carrying the device
descriptor (class, type, serial, version, name, info).

With --count greater than one the request is repeated and round trip
times are summarized, which is useful to check a bridge or cable.

Exit codes:
  0 - All requests answered
  1 - One or more requests timed out
  2 - Connection error`,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().IntVar(&infoTimeout, "timeout", 5, "Timeout in seconds for each request")
	infoCmd.Flags().IntVar(&infoCount, "count", 1, "Number of requests to send")
}

// requestInfo sends GET_INFO and decodes the reply
func requestInfo(s *session, timeout time.Duration) (sdlink.Descriptor, time.Duration, error) {
	start := time.Now()
	if err := s.engine.SendControl(sdlink.CmdGetInfo); err != nil {
		return sdlink.Descriptor{}, 0, exitWith(exitConnection, err)
	}
	f, err := s.await(sdlink.CmdSendInfo, timeout)
	if err != nil {
		return sdlink.Descriptor{}, 0, err
	}
	rtt := time.Since(start)

	info, err := f.Store()
	if err != nil {
		return sdlink.Descriptor{}, rtt, err
	}
	d, err := sdlink.DescriptorFromStore(info)
	return d, rtt, err
}

func runInfo(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Printf("sdlink - Device Info\n")
	fmt.Printf("Connection: %s\n\n", s.info)

	timeout := time.Duration(infoTimeout) * time.Second
	successCount := 0
	failCount := 0
	var total time.Duration

	for i := 1; i <= infoCount; i++ {
		d, rtt, err := requestInfo(s, timeout)
		switch {
		case errors.Is(err, errTimeout):
			fmt.Printf("Request %d/%d: TIMEOUT (no response in %ds)\n", i, infoCount, infoTimeout)
			failCount++
		case err != nil && ExitCode(err) == exitConnection:
			return err
		case err != nil:
			fmt.Printf("Request %d/%d: INVALID (%v)\n", i, infoCount, err)
			failCount++
		default:
			successCount++
			total += rtt
			if successCount == 1 {
				fmt.Print(sdlink.FormatDescriptor(d))
				fmt.Println()
			}
			fmt.Printf("Request %d/%d: %s, rtt=%v\n", i, infoCount, d.Name, rtt.Round(time.Millisecond))
		}

		if i < infoCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	if infoCount > 1 {
		fmt.Printf("\n--- Info statistics ---\n")
		fmt.Printf("%d requests sent, %d responses received, %.0f%% loss\n",
			infoCount, successCount, float64(failCount)/float64(infoCount)*100)
		if successCount > 0 {
			fmt.Printf("average rtt=%v\n", (total / time.Duration(successCount)).Round(time.Millisecond))
		}
	}

	if failCount > 0 {
		return exitWith(exitTimeout, fmt.Errorf("%d of %d requests failed", failCount, infoCount))
	}
	return nil
}
