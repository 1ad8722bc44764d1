// Package metrics holds the Prometheus collectors for blobget sessions and
// the reference blob server.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "blobget"

var (
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of download sessions currently registered.",
		},
	)
	sessionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Count of download sessions opened.",
		},
	)
	chunksReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_received_total",
			Help:      "Count of chunks forwarded from the blob service into session queues.",
		},
	)
	bytesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Bytes forwarded from the blob service into session queues.",
		},
	)
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Count of failures observed by the bridge, by kind.",
		},
		[]string{"kind"},
	)
	serverChunksSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "chunks_sent_total",
			Help:      "Count of chunks streamed by the blob server.",
		},
	)
	serverBytesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "bytes_sent_total",
			Help:      "Bytes streamed by the blob server.",
		},
	)
)

var registerMetrics sync.Once

// Register registers all collectors with reg. Only the first call has any
// effect.
func Register(reg prometheus.Registerer) {
	registerMetrics.Do(func() {
		reg.MustRegister(
			sessionsActive,
			sessionsTotal,
			chunksReceived,
			bytesReceived,
			errorsTotal,
			serverChunksSent,
			serverBytesSent,
		)
	})
}

// RecordSessionOpened records a session entering the registry.
func RecordSessionOpened() {
	sessionsTotal.Inc()
	sessionsActive.Inc()
}

// RecordSessionClosed records a session leaving the registry.
func RecordSessionClosed() {
	sessionsActive.Dec()
}

// RecordChunkReceived records one chunk of size n forwarded to a queue.
func RecordChunkReceived(n int) {
	chunksReceived.Inc()
	bytesReceived.Add(float64(n))
}

// RecordError records a failure of the given kind.
func RecordError(kind string) {
	errorsTotal.WithLabelValues(kind).Inc()
}

// RecordChunkSent records one chunk of size n streamed by the server.
func RecordChunkSent(n int) {
	serverChunksSent.Inc()
	serverBytesSent.Add(float64(n))
}
