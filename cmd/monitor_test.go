// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/sdlink/pkg/sdlink"
)

func sendDataFrame(t *testing.T) []byte {
	t.Helper()
	s := sdlink.NewStore()
	require.NoError(t, sdlink.Set(s, "uptime_ms", uint32(61000)))
	require.NoError(t, sdlink.Set(s, "level", uint8(7)))
	data, err := sdlink.EncodeStoreFrame(sdlink.CmdSendData, s)
	require.NoError(t, err)
	return data
}

func corrupt(frame []byte) []byte {
	bad := append([]byte(nil), frame...)
	bad[len(bad)-2] ^= 0xFF // CRC low byte
	return bad
}

func TestFrameMonitor_SyncAfterNoise(t *testing.T) {
	mon := newFrameMonitor()

	// A broken frame before sync is not reported
	stream := append([]byte{0x01, 0x02, 0x03}, corrupt(sendDataFrame(t))...)
	stream = append(stream, sendDataFrame(t)...)
	events := mon.feed(stream)

	require.Len(t, events, 2)
	assert.True(t, events[0].synced)
	assert.Equal(t, uint64(3+len(sendDataFrame(t))), events[0].skipped)
	require.NotNil(t, events[1].frame)
	assert.Equal(t, sdlink.CmdSendData, events[1].frame.Command())
	assert.Empty(t, events[1].validation)
}

func TestFrameMonitor_AfterSync(t *testing.T) {
	mon := newFrameMonitor()
	require.Len(t, mon.feed(sendDataFrame(t)), 2)

	events := mon.feed(corrupt(sendDataFrame(t)))
	require.Len(t, events, 1)
	assert.ErrorIs(t, events[0].err, sdlink.ErrChecksumMismatch)

	events = mon.feed(append([]byte{0x11, 0x22}, sendDataFrame(t)...))
	require.Len(t, events, 2)
	assert.NotNil(t, events[0].frame)
	assert.Equal(t, uint64(2), events[1].dropped)
}

func TestMonitorEvent_Record(t *testing.T) {
	stats := sdlink.NewStatistics()
	mon := newFrameMonitor()

	stream := append(sendDataFrame(t), corrupt(sendDataFrame(t))...)
	stream = append(stream, 0x42)
	for _, ev := range mon.feed(stream) {
		ev.record(stats)
	}

	assert.Equal(t, uint64(2), stats.TotalFrames)
	assert.Equal(t, uint64(1), stats.ValidFrames)
	assert.Equal(t, uint64(1), stats.ChecksumErrors)
	assert.Equal(t, uint64(1), stats.DroppedBytes)
	assert.Equal(t, uint64(1), stats.CommandCounts[sdlink.CmdSendData])
}

func TestFirstFrame(t *testing.T) {
	frame := sendDataFrame(t)
	chunks := make(chan []byte, 3)
	chunks <- []byte{0x00, 0x13}
	chunks <- frame[:5]
	chunks <- frame[5:]

	f, skipped, err := firstFrame(chunks, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, sdlink.CmdSendData, f.Command())
	assert.Equal(t, 2, skipped)
}

func TestFirstFrame_Timeout(t *testing.T) {
	chunks := make(chan []byte, 1)
	chunks <- []byte{0x01, 0x02}

	_, _, err := firstFrame(chunks, nil, time.After(20*time.Millisecond))
	assert.ErrorIs(t, err, errTimeout)
	assert.Equal(t, exitTimeout, ExitCode(err))
}

func TestFirstFrame_ReadError(t *testing.T) {
	errc := make(chan error, 1)
	errc <- errors.New("port unplugged")

	_, _, err := firstFrame(nil, errc, nil)
	assert.Equal(t, exitConnection, ExitCode(err))
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		ms   uint64
		want string
	}{
		{0, "0 seconds"},
		{999, "0 seconds"},
		{1000, "1 second"},
		{61000, "1 minute and 1 second"},
		{3600000, "1 hour"},
		{90061000, "1 day, 1 hour, 1 minute, and 1 second"},
		{2 * 86400000, "2 days"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatUptime(tt.ms), "ms=%d", tt.ms)
	}
}

func TestMonitorModel_Update(t *testing.T) {
	var m tea.Model = initialModel("test", 10, true)
	mon := newFrameMonitor()
	for _, ev := range mon.feed(append([]byte{0x09}, sendDataFrame(t)...)) {
		m, _ = m.Update(linkEventMsg(ev))
	}

	mm := m.(model)
	assert.True(t, mm.synchronized)
	assert.Equal(t, uint64(1), mm.skippedBytes)
	assert.True(t, mm.latest.hasUptime)
	assert.Equal(t, uint32(61000), mm.latest.uptime)
	assert.Len(t, mm.latest.records, 2)
	assert.Equal(t, uint64(1), mm.stats.ValidFrames)

	m, _ = m.Update(connectionLostMsg{err: errors.New("EOF")})
	mm = m.(model)
	assert.Error(t, mm.disconnected)
	assert.True(t, mm.eventLog[len(mm.eventLog)-1].isError)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	assert.Equal(t, uint64(0), m.(model).stats.TotalFrames)
}

func TestPumpEvents_StopsBeforeCaptureClose(t *testing.T) {
	host, device := net.Pipe()
	defer host.Close()
	defer device.Close()

	var buf bytes.Buffer
	capture, err := newCaptureWriter(nopWriteCloser{&buf}, "pipe")
	require.NoError(t, err)

	msgs := make(chan tea.Msg, 16)
	done := make(chan struct{})
	stopped := pumpEvents(host, capture, func(msg tea.Msg) { msgs <- msg }, done)

	_, err = device.Write(sendDataFrame(t))
	require.NoError(t, err)

	// synced, then the frame
	for i := 0; i < 2; i++ {
		select {
		case msg := <-msgs:
			assert.IsType(t, linkEventMsg{}, msg)
		case <-time.After(2 * time.Second):
			t.Fatal("no event from the pump")
		}
	}

	close(done)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not stop")
	}

	written := buf.Len()
	_, err = device.Write(sendDataFrame(t))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, written, buf.Len(), "nothing captured after stop")
	require.NoError(t, capture.Close())

	var frames int
	_, err = readCapture(&buf, func(rec captureRecord) error {
		frames++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, frames)
}

func TestPumpEvents_ConnectionLost(t *testing.T) {
	host, device := net.Pipe()
	defer host.Close()

	msgs := make(chan tea.Msg, 4)
	stopped := pumpEvents(host, nil, func(msg tea.Msg) { msgs <- msg }, make(chan struct{}))
	device.Close()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not stop")
	}
	assert.IsType(t, connectionLostMsg{}, <-msgs)
}
