package monitoring

import (
	"time"

	"rillnet/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exposes forward-engine occupancy and connection
// metrics for scraping, fed by the MetricsService EventSink. The
// RecordDataTransferred/RecordWebRTCConnection/RecordNetworkLatency
// counters have no callers in this module.
type PrometheusCollector struct {
	peersConnectedTotal prometheus.Gauge
	streamsActiveTotal  prometheus.Gauge
	dataExchangedBytes  prometheus.Counter
	connectionsTotal    prometheus.Counter

	webrtcConnectionDuration prometheus.Histogram
	networkLatency           prometheus.Histogram

	streamPeerCount   *prometheus.GaugeVec
	streamViewerCount *prometheus.GaugeVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		peersConnectedTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rillnet_peers_connected_total",
			Help: "Total number of connected peers",
		}),

		streamsActiveTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rillnet_streams_active_total",
			Help: "Total number of active streams",
		}),

		dataExchangedBytes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rillnet_data_exchanged_bytes_total",
			Help: "Total amount of data exchanged in bytes",
		}),

		connectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rillnet_connections_total",
			Help: "Total number of WebRTC connections established",
		}),

		webrtcConnectionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rillnet_webrtc_connection_duration_seconds",
			Help:    "Duration of WebRTC connections",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),

		networkLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rillnet_network_latency_seconds",
			Help:    "RTCP round-trip estimate between forwarder and peer",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),

		streamPeerCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rillnet_stream_peer_count",
			Help: "Number of peers in each stream",
		}, []string{"stream_id", "peer_type"}),

		streamViewerCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rillnet_stream_viewer_count",
			Help: "Number of subscribers per stream",
		}, []string{"stream_id"}),
	}
}

func (p *PrometheusCollector) RecordPeerConnected(streamID domain.StreamID, isPublisher bool) {
	p.peersConnectedTotal.Inc()
	p.streamPeerCount.WithLabelValues(string(streamID), peerTypeLabel(isPublisher)).Inc()
}

func (p *PrometheusCollector) RecordPeerDisconnected(streamID domain.StreamID, isPublisher bool) {
	p.peersConnectedTotal.Dec()
	p.streamPeerCount.WithLabelValues(string(streamID), peerTypeLabel(isPublisher)).Dec()
}

func peerTypeLabel(isPublisher bool) string {
	if isPublisher {
		return "publisher"
	}
	return "subscriber"
}

func (p *PrometheusCollector) RecordStreamCreated(streamID domain.StreamID) {
	p.streamsActiveTotal.Inc()
}

func (p *PrometheusCollector) RecordStreamEnded(streamID domain.StreamID) {
	p.streamsActiveTotal.Dec()
	p.streamPeerCount.DeleteLabelValues(string(streamID), "publisher")
	p.streamPeerCount.DeleteLabelValues(string(streamID), "subscriber")
	p.streamViewerCount.DeleteLabelValues(string(streamID))
}

func (p *PrometheusCollector) RecordDataTransferred(bytes int64) {
	p.dataExchangedBytes.Add(float64(bytes))
}

func (p *PrometheusCollector) RecordWebRTCConnection(duration time.Duration) {
	p.webrtcConnectionDuration.Observe(duration.Seconds())
	p.connectionsTotal.Inc()
}

func (p *PrometheusCollector) RecordNetworkLatency(latency time.Duration) {
	p.networkLatency.Observe(latency.Seconds())
}

// UpdateStreamMetrics refreshes the gauges derived from a
// MetricsService snapshot, typically called on a periodic scrape tick.
func (p *PrometheusCollector) UpdateStreamMetrics(metrics *domain.StreamMetrics) {
	p.streamViewerCount.WithLabelValues(string(metrics.StreamID)).Set(float64(metrics.ActiveSubscribers))
}
