// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/sdlink/pkg/sdlink"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask the device to pause SEND_DATA",
	Long: `Send STOP_DATA. The device drops its outgoing SEND_DATA frames for its
suppression window (4 seconds by default) and then resumes on its own.
GET_INFO is still answered while suppressed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.engine.SendControl(sdlink.CmdStopData); err != nil {
			return exitWith(exitConnection, err)
		}
		fmt.Printf("STOP_DATA sent to %s\n", s.info)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
