// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/sdlink/pkg/sdlink"
)

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func sampleStore(t *testing.T) *sdlink.Store {
	t.Helper()
	records, err := parseFields([]string{"temp=i16:-12", "mode=str:auto", "flow=f32:1.25"})
	require.NoError(t, err)
	s, err := storeOf(records)
	require.NoError(t, err)
	return s
}

func TestCapture_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := newCaptureWriter(nopWriteCloser{&buf}, "Serial: /dev/ttyUSB0 @ 115200 baud")
	require.NoError(t, err)

	data := sdlink.NewFrameWithStore(sdlink.CmdSendData, sampleStore(t))
	require.NoError(t, w.WriteFrame(data))
	require.NoError(t, w.WriteFrame(sdlink.NewFrame(sdlink.CmdStopData, nil)))
	require.NoError(t, w.WriteError(&sdlink.FrameError{Err: sdlink.ErrChecksumMismatch, Command: sdlink.CmdSendData}))
	require.NoError(t, w.Close())

	var records []captureRecord
	hdr, err := readCapture(&buf, func(rec captureRecord) error {
		records = append(records, rec)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, w.Session(), hdr.Session)
	assert.Equal(t, "Serial: /dev/ttyUSB0 @ 115200 baud", hdr.Source)
	require.Len(t, records, 3)

	for i, rec := range records {
		assert.Equal(t, uint64(i+1), rec.Seq)
	}

	// SEND_DATA keeps the decoded records
	require.NotNil(t, records[0].Records)
	assert.True(t, sampleStore(t).Equal(records[0].Records))
	f, err := sdlink.DecodeFrame(records[0].Frame)
	require.NoError(t, err)
	assert.Equal(t, sdlink.CmdSendData, f.Command())

	assert.Nil(t, records[1].Records)

	assert.Equal(t, "checksum", records[2].Reason)
	assert.ErrorIs(t, captureError(records[2]), sdlink.ErrChecksumMismatch)
}

func TestCaptureError_Reasons(t *testing.T) {
	assert.ErrorIs(t, captureError(captureRecord{Reason: "terminator", Error: "x"}), sdlink.ErrTerminatorMismatch)
	assert.ErrorIs(t, captureError(captureRecord{Reason: "length", Error: "x"}), sdlink.ErrInvalidLength)

	err := captureError(captureRecord{Reason: "other", Error: "invalid state: 9"})
	assert.EqualError(t, err, "invalid state: 9")
}

func TestReadCapture_Errors(t *testing.T) {
	_, err := readCapture(bytes.NewReader(nil), func(captureRecord) error { return nil })
	assert.ErrorContains(t, err, "header")

	var buf bytes.Buffer
	w, err := newCaptureWriter(nopWriteCloser{&buf}, "test")
	require.NoError(t, err)
	require.NoError(t, w.WriteFrame(sdlink.NewFrame(sdlink.CmdGetInfo, nil)))

	stop := errors.New("stop")
	_, err = readCapture(&buf, func(captureRecord) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "link.cbor")
	w, err := createCapture(path, "WebSocket: ws://bridge.local/link")
	require.NoError(t, err)
	require.NoError(t, w.WriteFrame(sdlink.NewFrameWithStore(sdlink.CmdSendData, sampleStore(t))))
	require.NoError(t, w.WriteError(fmt.Errorf("%w: 2 (min 4)", sdlink.ErrInvalidLength)))
	require.NoError(t, w.Close())

	var out bytes.Buffer
	replayCmd.SetOut(&out)
	t.Cleanup(func() { replayCmd.SetOut(nil) })

	require.NoError(t, runReplay(replayCmd, []string{path}))
	assert.Contains(t, out.String(), "#1 captured")
	assert.Contains(t, out.String(), "#2")
	assert.Contains(t, out.String(), "ERROR")
	assert.Contains(t, out.String(), w.Session())
	assert.Contains(t, out.String(), "ws://bridge.local/link")
}
