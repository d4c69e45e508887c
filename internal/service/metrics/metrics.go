/*
Package metrics exposes bridge internals as prometheus metrics. The
collectors live on a private registry so tests and multiple app
instances never collide on registration.
*/
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jgivc/fetchbridge/internal/entity"
	"github.com/jgivc/fetchbridge/internal/service/classify"
)

type Metrics struct {
	reg *prometheus.Registry

	connectionState prometheus.Gauge
	reconnectsTotal prometheus.Counter
	queueDownloads  *prometheus.GaugeVec
	interceptsTotal *prometheus.CounterVec
	streamsTotal    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fetchbridge_connection_state",
			Help: "Connection to the download manager, 1 when established",
		}),
		reconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fetchbridge_reconnects_total",
			Help: "Connection losses observed",
		}),
		queueDownloads: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fetchbridge_queue_downloads",
			Help: "Downloads in the queue projection by state",
		}, []string{"state"}),
		interceptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fetchbridge_intercepts_total",
			Help: "Intercepted downloads by classification reason",
		}, []string{"reason"}),
		streamsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fetchbridge_streams_total",
			Help: "Media streams discovered by type",
		}, []string{"type"}),
	}

	m.reg.MustRegister(
		m.connectionState,
		m.reconnectsTotal,
		m.queueDownloads,
		m.interceptsTotal,
		m.streamsTotal,
	)

	return m
}

// Connected and Disconnected make Metrics a connection presenter.
func (m *Metrics) Connected() {
	m.connectionState.Set(1)
}

func (m *Metrics) Disconnected() {
	m.connectionState.Set(0)
	m.reconnectsTotal.Inc()
}

// QueueStats mirrors the synchronizer's stats into gauges.
func (m *Metrics) QueueStats(st entity.QueueStats) {
	m.queueDownloads.WithLabelValues("active").Set(float64(st.Active))
	m.queueDownloads.WithLabelValues("waiting").Set(float64(st.Waiting))
	m.queueDownloads.WithLabelValues("completed").Set(float64(st.Completed))
}

func (m *Metrics) Intercepted(reason classify.Reason) {
	m.interceptsTotal.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) StreamDetected(rec entity.StreamRecord) {
	m.streamsTotal.WithLabelValues(string(rec.Kind)).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
