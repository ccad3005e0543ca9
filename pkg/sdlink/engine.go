// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdlink

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Observer receives engine events, e.g. for metrics
type Observer interface {
	FrameReceived(f *Frame)
	FrameRejected(err error)
	FrameSent(cmd Command, size int)
	SendSuppressed(cmd Command)
}

// Option configures an Engine
type Option func(*Engine)

// WithDescriptor sets the descriptor answered to GET_INFO
func WithDescriptor(d Descriptor) Option {
	return func(e *Engine) { e.descriptor = d }
}

// WithClock replaces time.Now, for the suppression window
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine logger
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithSuppressWindow overrides DefaultSuppressWindow
func WithSuppressWindow(d time.Duration) Option {
	return func(e *Engine) { e.suppressWindow = d }
}

// WithObserver registers an event observer
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// Engine is the packet protocol engine. It owns a record store used both
// as the outbound payload and as the destination of received SEND_DATA
// frames. All work happens synchronously inside Poll and Send; an Engine
// must be driven from a single goroutine.
type Engine struct {
	transport      Transport
	decoder        *Decoder
	store          *Store
	descriptor     Descriptor
	stats          *Statistics
	log            zerolog.Logger
	now            func() time.Time
	observer       Observer
	suppressWindow time.Duration

	dataAvailable bool
	dataError     bool
	lastErr       error
	suppressed    bool
	suppressedAt  time.Time
	dropped       uint64
}

// NewEngine creates an engine on top of t
func NewEngine(t Transport, opts ...Option) *Engine {
	e := &Engine{
		transport:      t,
		decoder:        NewDecoder(),
		store:          NewStore(),
		descriptor:     DefaultDescriptor(),
		stats:          NewStatistics(),
		log:            zerolog.Nop(),
		now:            time.Now,
		suppressWindow: DefaultSuppressWindow,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the engine's record store
func (e *Engine) Store() *Store {
	return e.store
}

// Descriptor returns the device descriptor for modification
func (e *Engine) Descriptor() *Descriptor {
	return &e.descriptor
}

// Statistics returns the receive statistics
func (e *Engine) Statistics() *Statistics {
	return e.stats
}

// Available reports whether a freshly decoded SEND_DATA payload is waiting.
// The latch clears on the first Poll that finds the transport idle after a
// field has been read from the store.
func (e *Engine) Available() bool {
	return e.dataAvailable
}

// DataError reports whether the last completed frame failed its checksum
func (e *Engine) DataError() bool {
	return e.dataError
}

// LastError returns the most recent protocol error
func (e *Engine) LastError() error {
	return e.lastErr
}

// Suppressed reports whether the STOP_DATA window is still open
func (e *Engine) Suppressed() bool {
	return e.suppressed && e.now().Sub(e.suppressedAt) < e.suppressWindow
}

// Poll drains the bytes currently available on the transport and handles
// every frame they complete. It never waits for bytes: a partial frame is
// kept until a later call. Protocol errors are returned joined; the engine
// keeps accepting frames regardless.
func (e *Engine) Poll() error {
	if !e.transport.ByteAvailable() {
		if e.store.WasRead() {
			e.dataAvailable = false
		}
		return nil
	}

	var errs []error
	for e.transport.ByteAvailable() {
		b, err := e.transport.ReadByte()
		if err != nil {
			errs = append(errs, fmt.Errorf("transport read: %w", err))
			break
		}

		f, err := e.decoder.DecodeByte(b)
		if err != nil {
			e.reject(err)
			errs = append(errs, err)
			continue
		}
		if f != nil {
			err := e.dispatch(f)
			e.stats.Update(f, err, nil)
			if err != nil {
				e.lastErr = err
				errs = append(errs, err)
			}
		}
	}

	if dropped := e.decoder.DroppedBytes(); dropped > e.dropped {
		e.stats.RecordDropped(dropped - e.dropped)
		e.dropped = dropped
	}
	return errors.Join(errs...)
}

func (e *Engine) reject(err error) {
	e.lastErr = err
	e.stats.Update(nil, err, nil)
	switch {
	case errors.Is(err, ErrChecksumMismatch):
		e.dataError = true
		e.dataAvailable = false
	case errors.Is(err, ErrTerminatorMismatch):
		// The checksum was checked first and matched
		e.dataError = false
	}
	if e.observer != nil {
		e.observer.FrameRejected(err)
	}
	e.log.Warn().Err(err).Msg("frame rejected")
}

func (e *Engine) dispatch(f *Frame) error {
	e.dataError = false
	if e.observer != nil {
		e.observer.FrameReceived(f)
	}
	e.log.Debug().
		Str("command", f.Command().String()).
		Int("payload", len(f.Payload())).
		Msg("frame received")

	switch f.Command() {
	case CmdGetInfo:
		e.dataAvailable = false
		return e.SendInfo()

	case CmdStopData:
		e.suppressed = true
		e.suppressedAt = e.now()
		e.log.Info().Dur("window", e.suppressWindow).Msg("transmit suppressed by peer")

	case CmdSendData:
		if len(f.Payload()) == 0 {
			return nil
		}
		if err := e.store.Decode(f.Payload()); err != nil {
			e.dataAvailable = false
			e.log.Warn().Err(err).Msg("payload decode failed")
			return err
		}
		e.dataAvailable = true
		e.store.MarkUnread()

	default:
		e.log.Debug().Uint8("command", uint8(f.Command())).Msg("frame ignored")
	}
	return nil
}

// Send encodes the store into a frame with the given command and writes
// it. While the STOP_DATA window is open nothing is written and
// ErrSuppressed is returned; the first call after the window closes lifts
// the suppression.
func (e *Engine) Send(cmd Command) error {
	if e.suppressed {
		if e.now().Sub(e.suppressedAt) < e.suppressWindow {
			if e.observer != nil {
				e.observer.SendSuppressed(cmd)
			}
			return ErrSuppressed
		}
		e.suppressed = false
	}
	return e.transmit(cmd, e.store)
}

// SendInfo transmits the descriptor as a SEND_INFO frame. The data store
// is not touched and suppression does not apply.
func (e *Engine) SendInfo() error {
	info, err := e.descriptor.ToStore()
	if err != nil {
		return err
	}
	return e.transmit(CmdSendInfo, info)
}

// SendControl transmits a frame with an empty payload, e.g. GET_INFO or
// STOP_DATA from the host side. Suppression does not apply.
func (e *Engine) SendControl(cmd Command) error {
	return e.transmit(cmd, NewStore())
}

func (e *Engine) transmit(cmd Command, s *Store) error {
	data, err := EncodeStoreFrame(cmd, s)
	if err != nil {
		return err
	}
	if _, err := e.transport.Write(data); err != nil {
		return fmt.Errorf("transport write: %w", err)
	}
	if e.observer != nil {
		e.observer.FrameSent(cmd, len(data))
	}
	e.log.Debug().Str("command", cmd.String()).Int("bytes", len(data)).Msg("frame sent")
	return nil
}
