package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lfbot"

// Metrics holds the ribbon client's Prometheus collectors. It implements
// ribbon.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	framesReceived *prometheus.CounterVec
	framesSent     *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	decodeErrors   prometheus.Counter
	reconnects     *prometheus.CounterVec
	heartbeats     prometheus.Counter
	connected      prometheus.Gauge
}

// NewMetrics registers the collectors on a fresh registry, together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ribbon",
			Name:      "frames_received_total",
			Help:      "Decoded inbound frames by command.",
		}, []string{"command"}),

		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ribbon",
			Name:      "frames_sent_total",
			Help:      "Outbound frames by command.",
		}, []string{"command"}),

		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ribbon",
			Name:      "messages_dropped_total",
			Help:      "Inbound messages discarded before processing, by reason.",
		}, []string{"reason"}),

		decodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ribbon",
			Name:      "decode_errors_total",
			Help:      "Inbound frames that could not be decoded.",
		}),

		reconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ribbon",
			Name:      "reconnects_total",
			Help:      "Re-dials by reason (migrate, requested, failure).",
		}, []string{"reason"}),

		heartbeats: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ribbon",
			Name:      "heartbeats_total",
			Help:      "Pings sent by the heartbeat.",
		}),

		connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ribbon",
			Name:      "connected",
			Help:      "1 while a socket is open.",
		}),
	}
}

func (m *Metrics) FrameReceived(command string) { m.framesReceived.WithLabelValues(command).Inc() }
func (m *Metrics) FrameSent(command string)     { m.framesSent.WithLabelValues(command).Inc() }
func (m *Metrics) MessageDropped(reason string) { m.dropped.WithLabelValues(reason).Inc() }
func (m *Metrics) DecodeFailed()                { m.decodeErrors.Inc() }
func (m *Metrics) Reconnecting(reason string)   { m.reconnects.WithLabelValues(reason).Inc() }
func (m *Metrics) HeartbeatSent()               { m.heartbeats.Inc() }

func (m *Metrics) SetConnected(connected bool) {
	if connected {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
