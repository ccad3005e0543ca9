// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/sdlink/pkg/sdlink"
)

func drainEvents(events consoleObserver) []consoleEvent {
	var out []consoleEvent
	for {
		select {
		case ev := <-events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func kinds(events []consoleEvent) []consoleEventKind {
	out := make([]consoleEventKind, len(events))
	for i, ev := range events {
		out[i] = ev.kind
	}
	return out
}

func TestHandleConsoleRequest_SendData(t *testing.T) {
	mem := sdlink.NewMemoryTransport()
	events := make(consoleObserver, 16)
	engine := sdlink.NewEngine(mem, sdlink.WithObserver(events))

	// Stale records from an earlier frame are not resent
	require.NoError(t, sdlink.Set(engine.Store(), "old", uint8(1)))

	records, err := parseFields([]string{"temp=i16:21"})
	require.NoError(t, err)
	handleConsoleRequest(engine, consoleRequest{cmd: sdlink.CmdSendData, records: records}, events)

	written := mem.Written()
	require.Len(t, written, 1)
	f, err := sdlink.DecodeFrame(written[0])
	require.NoError(t, err)
	s, err := f.Store()
	require.NoError(t, err)
	assert.Equal(t, []string{"temp"}, s.Keys())

	got := drainEvents(events)
	require.Len(t, got, 1)
	assert.Equal(t, eventSent, got[0].kind)
	assert.Equal(t, sdlink.CmdSendData, got[0].cmd)
	assert.Equal(t, len(written[0]), got[0].size)
}

func TestHandleConsoleRequest_Suppressed(t *testing.T) {
	mem := sdlink.NewMemoryTransport()
	events := make(consoleObserver, 16)
	engine := sdlink.NewEngine(mem, sdlink.WithObserver(events))

	mem.Feed(sdlink.MustEncodeFrame(sdlink.CmdStopData, nil))
	require.NoError(t, engine.Poll())

	records, err := parseFields([]string{"temp=i16:21"})
	require.NoError(t, err)
	handleConsoleRequest(engine, consoleRequest{cmd: sdlink.CmdSendData, records: records}, events)
	handleConsoleRequest(engine, consoleRequest{cmd: sdlink.CmdGetInfo}, events)

	assert.Equal(t,
		[]consoleEventKind{eventFrame, eventSuppressed, eventSent},
		kinds(drainEvents(events)))
}

func TestConsoleObserver_NeverBlocks(t *testing.T) {
	events := make(consoleObserver, 1)
	events.FrameRejected(errors.New("first"))
	events.FrameRejected(errors.New("second"))

	got := drainEvents(events)
	require.Len(t, got, 1)
	assert.EqualError(t, got[0].err, "first")
}

func newTestConsole(queue int) consoleModel {
	cm := &connectionManager{outbox: make(chan consoleRequest, queue)}
	return initialConsoleModel(cm, "test")
}

func TestConsoleModel_Batch(t *testing.T) {
	d := sdlink.DefaultDescriptor()
	d.Name = "Heater"
	info, err := d.ToStore()
	require.NoError(t, err)

	records, err := parseFields([]string{"a=u8:1", "b=str:two"})
	require.NoError(t, err)

	var m tea.Model = newTestConsole(4)
	m, _ = m.Update(consoleBatchMsg{events: []consoleEvent{
		{kind: eventFrame, frame: sdlink.NewFrameWithStore(sdlink.CmdSendInfo, info)},
		{kind: eventRecords, records: records},
		{kind: eventSent, cmd: sdlink.CmdGetInfo, size: 8},
		{kind: eventSuppressed, cmd: sdlink.CmdSendData},
		{kind: eventRejected, err: &sdlink.FrameError{Err: sdlink.ErrChecksumMismatch}},
	}})

	cm := m.(consoleModel)
	require.NotNil(t, cm.device)
	assert.Equal(t, "Heater", cm.device.Name)
	assert.Len(t, cm.records, 2)
	assert.Len(t, cm.recordList.Items(), 2)
	assert.Equal(t, 1, cm.sentFrames)
	assert.Equal(t, 1, cm.suppressed)
	assert.Equal(t, uint64(1), cm.stats.ChecksumErrors)
}

func TestConsoleModel_Keys(t *testing.T) {
	m := newTestConsole(1)
	key := func(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

	next, _ := m.Update(key("i"))
	req := <-next.(consoleModel).connMgr.outbox
	assert.Equal(t, sdlink.CmdGetInfo, req.cmd)

	// Second request overflows the queue
	next, _ = next.Update(key("s"))
	next, _ = next.Update(key("s"))
	cm := next.(consoleModel)
	assert.Contains(t, cm.eventLog[len(cm.eventLog)-1].message, "queue full")

	next, _ = next.Update(connectionLostMsg{err: errors.New("EOF")})
	<-next.(consoleModel).connMgr.outbox
	next, _ = next.Update(key("i"))
	cm = next.(consoleModel)
	assert.Contains(t, cm.eventLog[len(cm.eventLog)-1].message, "connection lost")
	assert.Empty(t, cm.connMgr.outbox)

	next, _ = next.Update(reconnectedMsg{connInfo: "Serial: /dev/ttyACM0 @ 115200 baud"})
	assert.False(t, next.(consoleModel).connectionLost)
}

func TestConsoleModel_Composer(t *testing.T) {
	m := newTestConsole(1)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	cm := next.(consoleModel)
	assert.Equal(t, focusComposer, cm.focusedField)

	cm.fieldInput.SetValue("temp=i16:21 mode=str:eco")
	next, _ = cm.Update(tea.KeyMsg{Type: tea.KeyEnter})

	req := <-next.(consoleModel).connMgr.outbox
	assert.Equal(t, sdlink.CmdSendData, req.cmd)
	assert.Len(t, req.records, 2)
	assert.Empty(t, next.(consoleModel).fieldInput.Value())

	// Invalid text stays in the composer
	cm = next.(consoleModel)
	cm.fieldInput.SetValue("temp=u8:-1")
	next, _ = cm.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, "temp=u8:-1", next.(consoleModel).fieldInput.Value())
	assert.Empty(t, next.(consoleModel).connMgr.outbox)
}
