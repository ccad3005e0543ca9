// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdlink

import (
	"io"
	"sync"
)

// Transport is the byte stream endpoint the engine polls
type Transport interface {
	// ByteAvailable reports whether ReadByte can return without waiting
	ByteAvailable() bool
	// ReadByte returns the next byte, waiting if none is buffered
	ReadByte() (byte, error)
	// Write transmits p as one burst
	Write(p []byte) (int, error)
}

// StreamTransport adapts a blocking io.ReadWriter (serial port, websocket,
// pipe) to the polling Transport interface. A background goroutine pumps
// reads into an internal buffer.
type StreamTransport struct {
	rw   io.ReadWriter
	mu   sync.Mutex
	cond *sync.Cond
	buf  []byte
	err  error
}

// NewStreamTransport starts pumping reads from rw
func NewStreamTransport(rw io.ReadWriter) *StreamTransport {
	t := &StreamTransport{rw: rw}
	t.cond = sync.NewCond(&t.mu)
	go t.pump()
	return t
}

func (t *StreamTransport) pump() {
	chunk := make([]byte, 256)
	for {
		n, err := t.rw.Read(chunk)
		t.mu.Lock()
		t.buf = append(t.buf, chunk[:n]...)
		if err != nil {
			t.err = err
		}
		t.cond.Broadcast()
		t.mu.Unlock()
		if err != nil {
			return
		}
	}
}

// ByteAvailable implements Transport
func (t *StreamTransport) ByteAvailable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buf) > 0
}

// ReadByte implements Transport and io.ByteReader
func (t *StreamTransport) ReadByte() (byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for len(t.buf) == 0 && t.err == nil {
		t.cond.Wait()
	}
	if len(t.buf) == 0 {
		return 0, t.err
	}
	b := t.buf[0]
	t.buf = t.buf[1:]
	return b, nil
}

// Write implements Transport
func (t *StreamTransport) Write(p []byte) (int, error) {
	return t.rw.Write(p)
}

// Err returns the error that stopped the read pump, if any
func (t *StreamTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// MemoryTransport is an in-memory transport. Bytes written to it are
// recorded and, when connected to a peer, delivered to the peer's input.
type MemoryTransport struct {
	mu      sync.Mutex
	rx      []byte
	written [][]byte
	peer    *MemoryTransport
}

// NewMemoryTransport creates an unconnected in-memory transport
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{}
}

// NewMemoryPipe creates two transports wired back to back
func NewMemoryPipe() (*MemoryTransport, *MemoryTransport) {
	a, b := NewMemoryTransport(), NewMemoryTransport()
	a.peer, b.peer = b, a
	return a, b
}

// Feed queues bytes for reading
func (m *MemoryTransport) Feed(p []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rx = append(m.rx, p...)
}

// ByteAvailable implements Transport
func (m *MemoryTransport) ByteAvailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rx) > 0
}

// ReadByte implements Transport. It returns io.EOF when nothing is queued.
func (m *MemoryTransport) ReadByte() (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rx) == 0 {
		return 0, io.EOF
	}
	b := m.rx[0]
	m.rx = m.rx[1:]
	return b, nil
}

// Write implements Transport
func (m *MemoryTransport) Write(p []byte) (int, error) {
	data := append([]byte(nil), p...)
	m.mu.Lock()
	m.written = append(m.written, data)
	peer := m.peer
	m.mu.Unlock()

	if peer != nil {
		peer.Feed(data)
	}
	return len(p), nil
}

// Written returns every burst passed to Write, in order
func (m *MemoryTransport) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.written))
	copy(out, m.written)
	return out
}

// ResetWritten forgets recorded writes
func (m *MemoryTransport) ResetWritten() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = nil
}
