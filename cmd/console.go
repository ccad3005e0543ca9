// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/sdlink/pkg/sdlink"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive TUI for talking to a device",
	Long: `Talk to a device through an interactive terminal UI.

Features:
  - Device descriptor (requested with GET_INFO on connect)
  - Latest records received in SEND_DATA frames
  - Composer for sending SEND_DATA (key=type:value fields)
  - STOP_DATA and GET_INFO on a key press
  - Statistics tracking and event logging
  - Automatic reconnection on connection loss

Keys: Tab switches between the record list and the composer, Enter in the
composer sends the fields, 'i' requests info, 's' sends STOP_DATA.

Supports both serial and WebSocket connections.`,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

// consoleRequest is an outgoing frame queued by the TUI
type consoleRequest struct {
	cmd     sdlink.Command
	records []sdlink.Record
}

type consoleEventKind int

const (
	eventFrame consoleEventKind = iota
	eventRejected
	eventSent
	eventSuppressed
	eventRecords
	eventSendFailed
)

// consoleEvent is something the link goroutine reports to the TUI
type consoleEvent struct {
	kind       consoleEventKind
	frame      *sdlink.Frame
	validation []sdlink.ValidationError
	cmd        sdlink.Command
	size       int
	records    []sdlink.Record
	err        error
}

// consoleObserver forwards engine events without blocking the engine
type consoleObserver chan consoleEvent

func (o consoleObserver) emit(ev consoleEvent) {
	select {
	case o <- ev:
	default:
	}
}

func (o consoleObserver) FrameReceived(f *sdlink.Frame) {
	o.emit(consoleEvent{kind: eventFrame, frame: f, validation: sdlink.ValidateFrame(f)})
}

func (o consoleObserver) FrameRejected(err error) {
	o.emit(consoleEvent{kind: eventRejected, err: err})
}

func (o consoleObserver) FrameSent(cmd sdlink.Command, size int) {
	o.emit(consoleEvent{kind: eventSent, cmd: cmd, size: size})
}

func (o consoleObserver) SendSuppressed(cmd sdlink.Command) {
	o.emit(consoleEvent{kind: eventSuppressed, cmd: cmd})
}

// connectionManager handles connection lifecycle and reconnection
type connectionManager struct {
	conn     Connection
	connInfo string
	mu       sync.RWMutex
	p        *tea.Program
	done     chan struct{}
	outbox   chan consoleRequest
}

func (cm *connectionManager) getConn() Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.conn
}

func (cm *connectionManager) setConn(conn Connection, connInfo string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.conn = conn
	cm.connInfo = connInfo
}

// request queues an outgoing frame; false when the queue is full
func (cm *connectionManager) request(req consoleRequest) bool {
	select {
	case cm.outbox <- req:
		return true
	default:
		return false
	}
}

func runConsole(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return exitWith(exitConnection, err)
	}

	cm := &connectionManager{
		conn:     conn,
		connInfo: connInfo,
		done:     make(chan struct{}),
		outbox:   make(chan consoleRequest, 16),
	}

	m := initialConsoleModel(cm, connInfo)
	p := tea.NewProgram(m, tea.WithAltScreen())
	cm.p = p

	go cm.linkLoop()

	_, err = p.Run()
	close(cm.done)
	cm.getConn().Close()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// linkLoop serves the connection and reconnects when it is lost
func (cm *connectionManager) linkLoop() {
	for {
		err := cm.serve()
		if err == nil {
			return // Shutdown requested
		}

		cm.p.Send(connectionLostMsg{err: err})
		if !cm.reconnect() {
			return
		}
	}
}

// serve runs an engine on the current connection until it fails. It
// returns nil when shutdown was requested.
func (cm *connectionManager) serve() error {
	events := make(consoleObserver, 100)
	stream := sdlink.NewStreamTransport(cm.getConn())
	engine := sdlink.NewEngine(stream,
		sdlink.WithLogger(logger),
		sdlink.WithObserver(events),
	)

	serveDone := make(chan struct{})
	defer close(serveDone)
	go cm.batchEvents(events, serveDone)

	// Ask for the descriptor right away
	handleConsoleRequest(engine, consoleRequest{cmd: sdlink.CmdGetInfo}, events)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cm.done:
			return nil

		case req := <-cm.outbox:
			handleConsoleRequest(engine, req, events)

		case <-ticker.C:
			if err := engine.Poll(); err != nil {
				logger.Debug().Err(err).Msg("poll")
			}
			if engine.Available() && !engine.Store().WasRead() {
				events.emit(consoleEvent{kind: eventRecords, records: engine.Store().Records()})
			}
			if !stream.ByteAvailable() {
				if err := stream.Err(); err != nil {
					return err
				}
			}
		}
	}
}

// handleConsoleRequest sends one queued frame through the engine
func handleConsoleRequest(engine *sdlink.Engine, req consoleRequest, events consoleObserver) {
	var err error
	switch req.cmd {
	case sdlink.CmdSendData:
		store := engine.Store()
		store.Clear()
		for _, r := range req.records {
			if err = store.Put(r.Key, r.Value); err != nil {
				break
			}
		}
		if err == nil {
			err = engine.Send(sdlink.CmdSendData)
		}
	default:
		err = engine.SendControl(req.cmd)
	}

	// Suppression is reported by the observer
	if err != nil && !errors.Is(err, sdlink.ErrSuppressed) {
		events.emit(consoleEvent{kind: eventSendFailed, cmd: req.cmd, err: err})
	}
}

// batchEvents sends events to the TUI at a fixed rate
func (cm *connectionManager) batchEvents(events consoleObserver, serveDone <-chan struct{}) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-cm.done:
			return
		case <-serveDone:
			return
		case <-ticker.C:
			var batch consoleBatchMsg

		drainLoop:
			for {
				select {
				case ev := <-events:
					batch.events = append(batch.events, ev)
				default:
					break drainLoop
				}
			}

			if len(batch.events) > 0 {
				cm.p.Send(batch)
			}
		}
	}
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (cm *connectionManager) reconnect() bool {
	if conn := cm.getConn(); conn != nil {
		conn.Close()
	}

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-cm.done:
			return false
		case <-time.After(backoff):
		}

		conn, connInfo, err := OpenConnection()
		if err == nil {
			cm.setConn(conn, connInfo)
			cm.p.Send(reconnectedMsg{connInfo: connInfo})
			return true
		}
		logger.Debug().Err(err).Dur("backoff", backoff).Msg("reconnect failed")

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
