// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/sdlink/pkg/sdlink"
)

// runDevice answers the host from the far end of a pipe until the test ends
func runDevice(t *testing.T, conn net.Conn, d sdlink.Descriptor) {
	t.Helper()
	engine := sdlink.NewEngine(sdlink.NewStreamTransport(conn), sdlink.WithDescriptor(d))

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			_ = engine.Poll()
			time.Sleep(time.Millisecond)
		}
	}()

	t.Cleanup(func() {
		close(done)
		wg.Wait()
		conn.Close()
	})
}

func TestSession_RequestInfo(t *testing.T) {
	host, device := net.Pipe()
	want := sdlink.DefaultDescriptor()
	want.Name = "Pump Controller"
	want.Serial = 1042
	want.SetVersion(1, 4, 7)
	runDevice(t, device, want)

	s := newSession(host, "pipe")
	defer s.Close()

	got, rtt, err := requestInfo(s, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Greater(t, rtt, time.Duration(0))
}

func TestSession_AwaitTimeout(t *testing.T) {
	host, device := net.Pipe()
	// Drain the host's writes without ever answering
	sdlink.NewStreamTransport(device)
	t.Cleanup(func() { device.Close() })

	s := newSession(host, "pipe")
	defer s.Close()

	require.NoError(t, s.engine.SendControl(sdlink.CmdGetInfo))
	_, err := s.await(sdlink.CmdSendInfo, 30*time.Millisecond)
	assert.ErrorIs(t, err, errTimeout)
	assert.Equal(t, exitTimeout, ExitCode(err))
}

func TestSession_ConnectionLost(t *testing.T) {
	host, device := net.Pipe()
	s := newSession(host, "pipe")
	defer s.Close()

	require.NoError(t, device.Close())
	_, err := s.await(sdlink.CmdSendInfo, 2*time.Second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, errTimeout)
	assert.Equal(t, exitConnection, ExitCode(err))
}

func TestSession_TakeSkipsOtherCommands(t *testing.T) {
	s := &session{frames: make(chan *sdlink.Frame, 4)}

	s.FrameReceived(sdlink.NewFrame(sdlink.CmdStopData, nil))
	s.FrameReceived(sdlink.NewFrame(sdlink.CmdSendInfo, nil))
	s.FrameReceived(sdlink.NewFrame(sdlink.CmdGetInfo, nil))

	f := s.take(sdlink.CmdSendInfo)
	require.NotNil(t, f)
	assert.Equal(t, sdlink.CmdSendInfo, f.Command())
	assert.Len(t, s.frames, 1)
	assert.Nil(t, s.take(sdlink.CmdSendInfo))
}

func TestSession_DropsOldestWhenFull(t *testing.T) {
	s := &session{frames: make(chan *sdlink.Frame, 2)}

	s.FrameReceived(sdlink.NewFrame(sdlink.CmdStopData, nil))
	s.FrameReceived(sdlink.NewFrame(sdlink.CmdGetInfo, nil))
	s.FrameReceived(sdlink.NewFrame(sdlink.CmdSendInfo, nil))

	assert.Equal(t, sdlink.CmdGetInfo, (<-s.frames).Command())
	assert.Equal(t, sdlink.CmdSendInfo, (<-s.frames).Command())
}

func TestSession_Run(t *testing.T) {
	host, device := net.Pipe()
	sdlink.NewStreamTransport(device)
	t.Cleanup(func() { device.Close() })

	s := newSession(host, "pipe")
	defer s.Close()

	calls := 0
	require.NoError(t, s.run(20*time.Millisecond, func() error {
		calls++
		return nil
	}))
	assert.Positive(t, calls)
}
