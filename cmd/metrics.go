// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/sdlink/pkg/sdlink"
)

var (
	registerOnce   sync.Once
	metricsEnabled bool

	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sdlink",
			Subsystem: "frames",
			Name:      "received_total",
			Help:      "Frames received, by command.",
		},
		[]string{"command"},
	)

	framesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sdlink",
			Subsystem: "frames",
			Name:      "rejected_total",
			Help:      "Frames rejected by the decoder, by reason.",
		},
		[]string{"reason"},
	)

	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sdlink",
			Subsystem: "frames",
			Name:      "sent_total",
			Help:      "Frames written to the link, by command.",
		},
		[]string{"command"},
	)

	bytesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sdlink",
			Subsystem: "link",
			Name:      "sent_bytes_total",
			Help:      "Bytes written to the link.",
		},
	)

	sendsSuppressed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sdlink",
			Subsystem: "frames",
			Name:      "suppressed_total",
			Help:      "Sends refused while a STOP_DATA window was open.",
		},
		[]string{"command"},
	)
)

// registerMetrics registers the collectors once
func registerMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			framesReceived,
			framesRejected,
			framesSent,
			bytesSent,
			sendsSuppressed,
		)
	})
}

// frameMetrics records engine events as Prometheus counters
type frameMetrics struct{}

func (frameMetrics) FrameReceived(f *sdlink.Frame) {
	registerMetrics()
	framesReceived.WithLabelValues(f.Command().String()).Inc()
}

func (frameMetrics) FrameRejected(err error) {
	registerMetrics()
	framesRejected.WithLabelValues(rejectReason(err)).Inc()
}

func (frameMetrics) FrameSent(cmd sdlink.Command, size int) {
	registerMetrics()
	framesSent.WithLabelValues(cmd.String()).Inc()
	bytesSent.Add(float64(size))
}

func (frameMetrics) SendSuppressed(cmd sdlink.Command) {
	registerMetrics()
	sendsSuppressed.WithLabelValues(cmd.String()).Inc()
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, sdlink.ErrChecksumMismatch):
		return "checksum"
	case errors.Is(err, sdlink.ErrTerminatorMismatch):
		return "terminator"
	case errors.Is(err, sdlink.ErrInvalidLength):
		return "length"
	default:
		return "other"
	}
}

// serveMetrics exposes /metrics on addr until the process exits
func serveMetrics(addr string) {
	registerMetrics()
	metricsEnabled = true

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server")
		}
	}()
}
