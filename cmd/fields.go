// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/sdlink/pkg/sdlink"
)

// parseFields parses key=type:value arguments, rejecting duplicate keys
func parseFields(args []string) ([]sdlink.Record, error) {
	records := make([]sdlink.Record, 0, len(args))
	seen := make(map[string]bool, len(args))
	for _, arg := range args {
		r, err := sdlink.ParseField(arg)
		if err != nil {
			return nil, err
		}
		if seen[r.Key] {
			return nil, fmt.Errorf("duplicate field %q", r.Key)
		}
		seen[r.Key] = true
		records = append(records, r)
	}
	return records, nil
}

// storeOf builds a store from records
func storeOf(records []sdlink.Record) (*sdlink.Store, error) {
	s := sdlink.NewStore()
	for _, r := range records {
		if err := s.Put(r.Key, r.Value); err != nil {
			return nil, err
		}
	}
	return s, nil
}
