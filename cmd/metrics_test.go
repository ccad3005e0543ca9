// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/Thermoquad/sdlink/pkg/sdlink"
)

func TestRejectReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&sdlink.FrameError{Err: sdlink.ErrChecksumMismatch}, "checksum"},
		{&sdlink.FrameError{Err: sdlink.ErrTerminatorMismatch}, "terminator"},
		{fmt.Errorf("%w: 2", sdlink.ErrInvalidLength), "length"},
		{errors.New("mystery"), "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, rejectReason(tt.err), tt.err.Error())
	}
}

func TestFrameMetrics(t *testing.T) {
	var m frameMetrics
	name := sdlink.CmdSendData.String()

	received := testutil.ToFloat64(framesReceived.WithLabelValues(name))
	rejected := testutil.ToFloat64(framesRejected.WithLabelValues("checksum"))
	sent := testutil.ToFloat64(framesSent.WithLabelValues(name))
	sentBytes := testutil.ToFloat64(bytesSent)
	suppressed := testutil.ToFloat64(sendsSuppressed.WithLabelValues(name))

	m.FrameReceived(sdlink.NewFrame(sdlink.CmdSendData, nil))
	m.FrameRejected(&sdlink.FrameError{Err: sdlink.ErrChecksumMismatch})
	m.FrameSent(sdlink.CmdSendData, 12)
	m.SendSuppressed(sdlink.CmdSendData)

	assert.Equal(t, received+1, testutil.ToFloat64(framesReceived.WithLabelValues(name)))
	assert.Equal(t, rejected+1, testutil.ToFloat64(framesRejected.WithLabelValues("checksum")))
	assert.Equal(t, sent+1, testutil.ToFloat64(framesSent.WithLabelValues(name)))
	assert.Equal(t, sentBytes+12, testutil.ToFloat64(bytesSent))
	assert.Equal(t, suppressed+1, testutil.ToFloat64(sendsSuppressed.WithLabelValues(name)))
}
