// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/sdlink/pkg/sdlink"
)

// A capture file is a CBOR sequence: one captureHeader followed by
// captureRecords until EOF.

type captureHeader struct {
	Session string    `cbor:"1,keyasint"`
	Started time.Time `cbor:"2,keyasint"`
	Source  string    `cbor:"3,keyasint"`
}

type captureRecord struct {
	Seq       uint64        `cbor:"1,keyasint"`
	Timestamp time.Time     `cbor:"2,keyasint"`
	Frame     []byte        `cbor:"3,keyasint,omitempty"`
	Records   *sdlink.Store `cbor:"4,keyasint,omitempty"`
	Error     string        `cbor:"5,keyasint,omitempty"`
	Reason    string        `cbor:"6,keyasint,omitempty"`
}

var captureEncMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

type captureWriter struct {
	w       io.WriteCloser
	enc     *cbor.Encoder
	session uuid.UUID
	seq     uint64
}

// createCapture creates path and writes the capture header
func createCapture(path, source string) (*captureWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture: %w", err)
	}
	w, err := newCaptureWriter(f, source)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func newCaptureWriter(w io.WriteCloser, source string) (*captureWriter, error) {
	cw := &captureWriter{
		w:       w,
		enc:     captureEncMode.NewEncoder(w),
		session: uuid.New(),
	}
	hdr := captureHeader{
		Session: cw.session.String(),
		Started: time.Now(),
		Source:  source,
	}
	if err := cw.enc.Encode(hdr); err != nil {
		return nil, fmt.Errorf("write capture header: %w", err)
	}
	return cw, nil
}

// Session returns the capture session id
func (w *captureWriter) Session() string {
	return w.session.String()
}

// WriteFrame appends a frame; SEND_DATA records are stored decoded too
func (w *captureWriter) WriteFrame(f *sdlink.Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}
	rec := captureRecord{Timestamp: f.Timestamp(), Frame: data}
	if f.Command() == sdlink.CmdSendData {
		if s, err := f.Store(); err == nil {
			rec.Records = s
		}
	}
	return w.write(rec)
}

// WriteError appends a rejected frame
func (w *captureWriter) WriteError(err error) error {
	return w.write(captureRecord{
		Timestamp: time.Now(),
		Error:     err.Error(),
		Reason:    rejectReason(err),
	})
}

// captureError rebuilds a recorded rejection so statistics classify it
func captureError(rec captureRecord) error {
	var sentinel error
	switch rec.Reason {
	case "checksum":
		sentinel = sdlink.ErrChecksumMismatch
	case "terminator":
		sentinel = sdlink.ErrTerminatorMismatch
	case "length":
		sentinel = sdlink.ErrInvalidLength
	default:
		return errors.New(rec.Error)
	}
	return fmt.Errorf("%w (%s)", sentinel, rec.Error)
}

func (w *captureWriter) write(rec captureRecord) error {
	w.seq++
	rec.Seq = w.seq
	return w.enc.Encode(rec)
}

func (w *captureWriter) Close() error {
	return w.w.Close()
}

// readCapture reads the header and calls fn for each record
func readCapture(r io.Reader, fn func(captureRecord) error) (captureHeader, error) {
	dec := cbor.NewDecoder(r)

	var hdr captureHeader
	if err := dec.Decode(&hdr); err != nil {
		return hdr, fmt.Errorf("read capture header: %w", err)
	}
	if _, err := uuid.Parse(hdr.Session); err != nil {
		return hdr, fmt.Errorf("invalid capture session: %w", err)
	}

	for {
		var rec captureRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return hdr, nil
		}
		if err != nil {
			return hdr, fmt.Errorf("read capture record: %w", err)
		}
		if err := fn(rec); err != nil {
			return hdr, err
		}
	}
}

var replayErrorsOnly bool

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Print the frames of a capture file",
	Long: `Read a capture written by 'monitor --capture' and print each frame the
way monitor does, followed by statistics for the capture.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayErrorsOnly, "errors-only", false, "Show only errors and flagged frames")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	stats := sdlink.NewStatistics()
	out := cmd.OutOrStdout()

	hdr, err := readCapture(f, func(rec captureRecord) error {
		if rec.Error != "" {
			stats.Update(nil, captureError(rec), nil)
			fmt.Fprintf(out, "#%d [%s] ERROR: %s\n\n", rec.Seq, rec.Timestamp.Format("15:04:05.000"), rec.Error)
			return nil
		}

		frame, err := sdlink.DecodeFrame(rec.Frame)
		if err != nil {
			stats.Update(nil, err, nil)
			fmt.Fprintf(out, "#%d corrupt capture record: %v\n\n", rec.Seq, err)
			return nil
		}

		validation := sdlink.ValidateFrame(frame)
		stats.Update(frame, nil, validation)
		if replayErrorsOnly && len(validation) == 0 {
			return nil
		}

		fmt.Fprintf(out, "#%d captured %s\n%s", rec.Seq, rec.Timestamp.Format("15:04:05.000"), sdlink.FormatFrame(frame))
		for _, v := range validation {
			fmt.Fprintf(out, "  ! %s (%s)\n", v.Message, v.Type)
		}
		fmt.Fprintln(out)
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Session %s from %s, started %s\n",
		hdr.Session, hdr.Source, hdr.Started.Format(time.RFC3339))
	fmt.Fprint(out, stats.String())
	return nil
}
