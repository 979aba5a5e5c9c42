// Package metrics exposes pipeline health as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"obd-go-gateway/internal/telemetry"
)

// Metrics holds the pipeline instrumentation.
type Metrics struct {
	FramesTotal     *prometheus.CounterVec
	ConnectionState prometheus.Gauge
	Reconnects      prometheus.Counter
	Subscribers     prometheus.Gauge
	DroppedFrames   prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		FramesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "obd",
			Subsystem: "frames",
			Name:      "produced_total",
			Help:      "Telemetry frames produced, by status",
		}, []string{"status"}),
		ConnectionState: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "obd",
			Subsystem: "adapter",
			Name:      "connection_state",
			Help:      "Adapter connection state (0=disconnected, 1=connecting, 2=negotiating, 3=ready, 4=degraded, 5=failed)",
		}),
		Reconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "obd",
			Subsystem: "adapter",
			Name:      "reconnect_attempts_total",
			Help:      "Adapter connection attempts",
		}),
		Subscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "obd",
			Subsystem: "broadcast",
			Name:      "subscribers",
			Help:      "Currently connected subscribers",
		}),
		DroppedFrames: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "obd",
			Subsystem: "broadcast",
			Name:      "dropped_frames_total",
			Help:      "Frames dropped from full subscriber queues",
		}),
	}
}

// Publish implements the poller sink, counting frames by status.
func (m *Metrics) Publish(frame telemetry.Frame) {
	m.FramesTotal.WithLabelValues(frame.Status()).Inc()
}

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
