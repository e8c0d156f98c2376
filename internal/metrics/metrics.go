// Package metrics provides Prometheus instrumentation for the meeting
// orchestration layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the meeting service.
type Metrics struct {
	ActiveRooms     prometheus.Gauge
	ActiveSessions  prometheus.Gauge
	ActiveProducers prometheus.Gauge
	ActiveConsumers prometheus.Gauge

	RoomsCreated  prometheus.Counter
	RoomsReleased prometheus.Counter
	Joins         prometheus.Counter
	Leaves        prometheus.Counter

	HandshakeErrors *prometheus.CounterVec
}

// New creates and registers all metrics on the given registerer.
func New(r prometheus.Registerer) *Metrics {
	f := promauto.With(r)
	return &Metrics{
		ActiveRooms: f.NewGauge(prometheus.GaugeOpts{
			Name: "meeting_active_rooms",
			Help: "Current number of live rooms",
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "meeting_active_sessions",
			Help: "Current number of joined participant sessions",
		}),
		ActiveProducers: f.NewGauge(prometheus.GaugeOpts{
			Name: "meeting_active_producers",
			Help: "Current number of published media streams",
		}),
		ActiveConsumers: f.NewGauge(prometheus.GaugeOpts{
			Name: "meeting_active_consumers",
			Help: "Current number of receive-side stream bindings",
		}),
		RoomsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "meeting_rooms_created_total",
			Help: "Total number of rooms created",
		}),
		RoomsReleased: f.NewCounter(prometheus.CounterOpts{
			Name: "meeting_rooms_released_total",
			Help: "Total number of empty rooms garbage-collected",
		}),
		Joins: f.NewCounter(prometheus.CounterOpts{
			Name: "meeting_joins_total",
			Help: "Total number of room joins",
		}),
		Leaves: f.NewCounter(prometheus.CounterOpts{
			Name: "meeting_leaves_total",
			Help: "Total number of room leaves and disconnects",
		}),
		HandshakeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "meeting_handshake_errors_total",
			Help: "Total number of failed signaling requests by error code",
		}, []string{"code"}),
	}
}
