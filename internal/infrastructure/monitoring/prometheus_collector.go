package monitoring

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/core/domain"
)

// PrometheusCollector exposes coordinator metrics. It implements the
// room-event sink and the connection and relay metric hooks. Collectors
// register in the default registry, so construct it once per process.
type PrometheusCollector struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	streamsActive     prometheus.Gauge
	streamViewers     *prometheus.GaugeVec

	relayForwarded *prometheus.CounterVec
	relayDropped   *prometheus.CounterVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		connectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cvlive_connections_active",
			Help: "Number of live signaling connections",
		}),

		connectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cvlive_connections_total",
			Help: "Total signaling connections accepted",
		}),

		streamsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cvlive_streams_active",
			Help: "Number of rooms with a live broadcaster",
		}),

		streamViewers: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cvlive_stream_viewers",
			Help: "Current viewer count per stream",
		}, []string{"stream_id"}),

		relayForwarded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cvlive_relay_forwarded_total",
			Help: "Handshake messages forwarded, by kind",
		}, []string{"kind"}),

		relayDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cvlive_relay_dropped_total",
			Help: "Handshake messages dropped because the target was gone, by kind",
		}, []string{"kind"}),
	}
}

func streamLabel(id domain.StreamID) string {
	return strconv.FormatInt(int64(id), 10)
}

// Publish implements the room-event sink; it runs inside the per-stream
// critical section and only touches in-process gauges.
func (p *PrometheusCollector) Publish(ev domain.RoomEvent) {
	switch ev.Type {
	case domain.RoomEventStreamStarted:
		p.streamsActive.Inc()
		p.streamViewers.WithLabelValues(streamLabel(ev.StreamID)).Set(0)

	case domain.RoomEventStreamEnded:
		p.streamsActive.Dec()
		p.streamViewers.DeleteLabelValues(streamLabel(ev.StreamID))

	case domain.RoomEventViewerJoined, domain.RoomEventViewerLeft:
		p.streamViewers.WithLabelValues(streamLabel(ev.StreamID)).Set(float64(ev.ViewerCount))
	}
}

func (p *PrometheusCollector) ConnectionOpened() {
	p.connectionsActive.Inc()
	p.connectionsTotal.Inc()
}

func (p *PrometheusCollector) ConnectionClosed() {
	p.connectionsActive.Dec()
}

func (p *PrometheusCollector) RelayForwarded(kind string) {
	p.relayForwarded.WithLabelValues(kind).Inc()
}

func (p *PrometheusCollector) RelayDropped(kind string) {
	p.relayDropped.WithLabelValues(kind).Inc()
}
