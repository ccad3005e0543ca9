// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"sort"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/sdlink/pkg/sdlink"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
	capturePath   string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Decode, validate and count frames on the link",
	Long: `Passively decode every frame on the link and track errors with statistics.

Each frame is validated and these are detected:
  - CRC, terminator and length errors
  - SEND_DATA payloads that do not decode as records
  - SEND_INFO payloads missing descriptor fields
  - Control frames carrying a payload, unknown commands
  - Bytes dropped outside any frame

Use --show-all=false to display errors only. Decode errors are ignored
until the first valid frame, since monitoring usually starts mid-stream.

With --capture every frame and error is also written to a CBOR capture
file that the replay command can read back.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", true, "Show all frames (not just errors)")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval in seconds (0 disables)")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", false, "Use terminal UI")
	monitorCmd.Flags().StringVar(&capturePath, "capture", "", "Write frames to a CBOR capture file")
}

// monitorEvent is one observation of the frame monitor
type monitorEvent struct {
	frame      *sdlink.Frame
	err        error
	validation []sdlink.ValidationError
	synced     bool
	skipped    uint64
	dropped    uint64
}

// frameMonitor decodes a byte stream into monitor events. Errors before
// the first complete frame are folded into the skipped count.
type frameMonitor struct {
	decoder      *sdlink.Decoder
	synchronized bool
	consumed     uint64
	dropped      uint64
}

func newFrameMonitor() *frameMonitor {
	return &frameMonitor{decoder: sdlink.NewDecoder()}
}

func (m *frameMonitor) feed(data []byte) []monitorEvent {
	var events []monitorEvent
	for _, b := range data {
		if !m.synchronized {
			m.consumed++
		}

		f, err := m.decoder.DecodeByte(b)
		switch {
		case err != nil:
			if m.synchronized {
				events = append(events, monitorEvent{err: err})
			}
		case f != nil:
			if !m.synchronized {
				m.synchronized = true
				m.dropped = m.decoder.DroppedBytes()
				events = append(events, monitorEvent{
					synced:  true,
					skipped: m.consumed - (uint64(f.Length()) + 4),
				})
			}
			events = append(events, monitorEvent{frame: f, validation: sdlink.ValidateFrame(f)})
		}
	}

	if m.synchronized {
		if d := m.decoder.DroppedBytes(); d > m.dropped {
			events = append(events, monitorEvent{dropped: d - m.dropped})
			m.dropped = d
		}
	}
	return events
}

// record applies an event to the statistics
func (ev monitorEvent) record(stats *sdlink.Statistics) {
	switch {
	case ev.err != nil:
		stats.Update(nil, ev.err, nil)
	case ev.frame != nil:
		stats.Update(ev.frame, nil, ev.validation)
	case ev.dropped > 0:
		stats.RecordDropped(ev.dropped)
	}
}

// capture writes frames and errors to the capture file, if any
func (ev monitorEvent) capture(w *captureWriter) {
	if w == nil {
		return
	}
	var err error
	switch {
	case ev.err != nil:
		err = w.WriteError(ev.err)
	case ev.frame != nil:
		err = w.WriteFrame(ev.frame)
	}
	if err != nil {
		logger.Error().Err(err).Msg("capture write failed")
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return exitWith(exitConnection, err)
	}
	defer conn.Close()

	var capture *captureWriter
	if capturePath != "" {
		capture, err = createCapture(capturePath, connInfo)
		if err != nil {
			return err
		}
		defer capture.Close()
		logger.Info().Str("file", capturePath).Str("session", capture.Session()).Msg("capturing")
	}

	if useTUI {
		return runTUIMode(conn, connInfo, capture)
	}
	return runTextMode(conn, connInfo, capture)
}

// readChunks copies reads into a channel until the connection fails
func readChunks(conn Connection) (<-chan []byte, <-chan error) {
	chunks := make(chan []byte, 10)
	errc := make(chan error, 1)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				chunks <- data
			}
			if err != nil {
				errc <- err
				return
			}
		}
	}()
	return chunks, errc
}

// runTUIMode runs the monitor in TUI mode. The reader goroutine has
// stopped by the time it returns, so the capture can be closed.
func runTUIMode(conn Connection, connInfo string, capture *captureWriter) error {
	m := initialModel(connInfo, statsInterval, showAll)
	p := tea.NewProgram(m)

	done := make(chan struct{})
	stopped := pumpEvents(conn, capture, p.Send, done)

	_, err := p.Run()
	close(done)
	<-stopped
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// pumpEvents decodes the connection into monitor events until done is
// closed or the connection fails. The returned channel closes when it exits.
func pumpEvents(conn Connection, capture *captureWriter, send func(tea.Msg), done <-chan struct{}) <-chan struct{} {
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		mon := newFrameMonitor()
		chunks, errc := readChunks(conn)
		for {
			select {
			case <-done:
				return
			case data := <-chunks:
				for _, ev := range mon.feed(data) {
					select {
					case <-done:
						return
					default:
					}
					ev.capture(capture)
					send(linkEventMsg(ev))
				}
			case err := <-errc:
				send(connectionLostMsg{err: err})
				return
			}
		}
	}()
	return stopped
}

// runTextMode runs the monitor in text mode
func runTextMode(conn Connection, connInfo string, capture *captureWriter) error {
	fmt.Printf("sdlink - Frame Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	if statsInterval > 0 {
		fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	}
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	mon := newFrameMonitor()
	stats := sdlink.NewStatistics()
	chunks, errc := readChunks(conn)

	var statsTick <-chan time.Time
	if statsInterval > 0 {
		ticker := time.NewTicker(time.Duration(statsInterval) * time.Second)
		defer ticker.Stop()
		statsTick = ticker.C
	}

	for {
		select {
		case data := <-chunks:
			for _, ev := range mon.feed(data) {
				ev.record(stats)
				ev.capture(capture)
				printEvent(ev, showAll)
			}

		case err := <-errc:
			fmt.Println()
			fmt.Print(stats.String())
			if errors.Is(err, ErrConnectionClosed) {
				fmt.Println("Connection closed")
				return nil
			}
			return exitWith(exitConnection, fmt.Errorf("read error: %w", err))

		case <-statsTick:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}

func printEvent(ev monitorEvent, all bool) {
	switch {
	case ev.synced:
		if ev.skipped > 0 {
			fmt.Printf("[SYNC] Synchronized after skipping %d bytes\n\n", ev.skipped)
		} else {
			fmt.Printf("[SYNC] Synchronized\n\n")
		}
	case ev.err != nil:
		printDecodeError(ev.err)
	case ev.frame != nil && len(ev.validation) > 0:
		printValidationErrors(ev.frame, ev.validation)
	case ev.frame != nil && (all || ev.frame.Command() == sdlink.CmdSendInfo):
		fmt.Print(sdlink.FormatFrame(ev.frame))
		fmt.Println()
	case ev.dropped > 0 && all:
		fmt.Printf("[%s] dropped %d bytes outside a frame\n\n", time.Now().Format("15:04:05.000"), ev.dropped)
	}
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, err)

	var fe *sdlink.FrameError
	if errors.As(err, &fe) {
		fmt.Printf("  Command: %s (0x%02X)\n", fe.Command, uint8(fe.Command))
		if errors.Is(err, sdlink.ErrChecksumMismatch) {
			fmt.Printf("  CRC: expected=0x%04X, received=0x%04X\n", fe.Expected, fe.Received)
		}
	}
	fmt.Printf("  >>> FRAME REJECTED <<<\n\n")
}

// printValidationErrors prints validation errors for a frame
func printValidationErrors(f *sdlink.Frame, errs []sdlink.ValidationError) {
	timestamp := f.Timestamp().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (0x%02X)\n", timestamp, f.Command(), uint8(f.Command()))
	fmt.Printf("  CRC: \033[1;32mOK\033[0m\n")

	for i, err := range errs {
		fmt.Printf("  Issue %d: \033[1;33m%s\033[0m (%s)\n", i+1, err.Message, err.Type)

		keys := make([]string, 0, len(err.Details))
		for k := range err.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("    %s=%v\n", k, err.Details[k])
		}
	}

	if len(f.Payload()) > 0 {
		fmt.Printf("  Payload: %s\n", sdlink.FormatHex(f.Payload()))
	}
	fmt.Printf("  >>> FRAME FLAGGED <<<\n\n")
}
