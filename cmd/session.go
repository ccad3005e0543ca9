// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/sdlink/pkg/sdlink"
)

const pollInterval = 5 * time.Millisecond

var errTimeout = errors.New("timeout")

// session drives an engine over an open connection. It observes the
// engine so commands can wait for a reply frame.
type session struct {
	conn   Connection
	info   string
	stream *sdlink.StreamTransport
	engine *sdlink.Engine
	next   sdlink.Observer
	frames chan *sdlink.Frame
}

// openSession opens the connection selected by the global flags
func openSession(opts ...sdlink.Option) (*session, error) {
	conn, info, err := OpenConnection()
	if err != nil {
		return nil, exitWith(exitConnection, err)
	}
	return newSession(conn, info, opts...), nil
}

func newSession(conn Connection, info string, opts ...sdlink.Option) *session {
	s := &session{
		conn:   conn,
		info:   info,
		stream: sdlink.NewStreamTransport(conn),
		frames: make(chan *sdlink.Frame, 16),
	}
	if metricsEnabled {
		s.next = frameMetrics{}
	}
	opts = append([]sdlink.Option{sdlink.WithLogger(logger)}, opts...)
	opts = append(opts, sdlink.WithObserver(s))
	s.engine = sdlink.NewEngine(s.stream, opts...)
	return s
}

func (s *session) Close() error {
	return s.conn.Close()
}

// FrameReceived implements sdlink.Observer
func (s *session) FrameReceived(f *sdlink.Frame) {
	select {
	case s.frames <- f:
	default:
		// Nobody is waiting; drop the oldest
		select {
		case <-s.frames:
		default:
		}
		s.frames <- f
	}
	if s.next != nil {
		s.next.FrameReceived(f)
	}
}

// FrameRejected implements sdlink.Observer
func (s *session) FrameRejected(err error) {
	if s.next != nil {
		s.next.FrameRejected(err)
	}
}

// FrameSent implements sdlink.Observer
func (s *session) FrameSent(cmd sdlink.Command, size int) {
	if s.next != nil {
		s.next.FrameSent(cmd, size)
	}
}

// SendSuppressed implements sdlink.Observer
func (s *session) SendSuppressed(cmd sdlink.Command) {
	if s.next != nil {
		s.next.SendSuppressed(cmd)
	}
}

// poll runs one engine poll and reports a lost connection
func (s *session) poll() error {
	err := s.engine.Poll()
	if err != nil {
		logger.Debug().Err(err).Msg("poll")
	}
	if !s.stream.ByteAvailable() {
		if cerr := s.stream.Err(); cerr != nil {
			return exitWith(exitConnection, fmt.Errorf("connection lost: %w", cerr))
		}
	}
	return nil
}

// await polls until a frame with the given command arrives
func (s *session) await(cmd sdlink.Command, timeout time.Duration) (*sdlink.Frame, error) {
	deadline := time.Now().Add(timeout)
	for {
		if err := s.poll(); err != nil {
			return nil, err
		}
		if f := s.take(cmd); f != nil {
			return f, nil
		}
		if time.Now().After(deadline) {
			return nil, exitWith(exitTimeout, fmt.Errorf("%w waiting for %s after %v", errTimeout, cmd, timeout))
		}
		time.Sleep(pollInterval)
	}
}

// take discards queued frames until one with the given command is found
func (s *session) take(cmd sdlink.Command) *sdlink.Frame {
	for {
		select {
		case f := <-s.frames:
			if f.Command() == cmd {
				return f
			}
		default:
			return nil
		}
	}
}

// run polls for the given duration, or forever when d is zero
func (s *session) run(d time.Duration, each func() error) error {
	var deadline time.Time
	if d > 0 {
		deadline = time.Now().Add(d)
	}
	for deadline.IsZero() || time.Now().Before(deadline) {
		if err := s.poll(); err != nil {
			return err
		}
		if each != nil {
			if err := each(); err != nil {
				return err
			}
		}
		time.Sleep(pollInterval)
	}
	return nil
}
