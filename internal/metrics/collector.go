// Package metrics exposes the SFU's Prometheus gauges and counters: room
// and publisher/consumer population, and forwarded-packet/error counts.
package metrics

import (
	"voxhub/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector owns the process-wide Prometheus registrations for the SFU
// core. Construct exactly one per process.
type Collector struct {
	roomsActive       prometheus.Gauge
	publishersActive  *prometheus.GaugeVec
	consumersActive   *prometheus.GaugeVec
	connectionsTotal  prometheus.Counter
	packetsForwarded  *prometheus.CounterVec
	forwardingErrors  *prometheus.CounterVec
	connectionFailed  prometheus.Counter
}

// NewCollector registers the SFU's metrics with the default Prometheus
// registry and returns a handle for recording them.
func NewCollector() *Collector {
	return &Collector{
		roomsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voxhub_rooms_active",
			Help: "Number of rooms currently registered (created and not yet emptied by a departure)",
		}),
		publishersActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voxhub_publishers_active",
			Help: "Number of publishers currently registered, by room",
		}, []string{"room_id"}),
		consumersActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voxhub_consumers_active",
			Help: "Number of consumers currently registered, by room",
		}, []string{"room_id"}),
		connectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voxhub_peer_connections_total",
			Help: "Total number of WebRTC peer connections created (publisher + consumer)",
		}),
		packetsForwarded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voxhub_rtp_packets_forwarded_total",
			Help: "Total number of RTP packets forwarded from a publisher to a consumer",
		}, []string{"room_id"}),
		forwardingErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voxhub_rtp_forwarding_errors_total",
			Help: "Total number of RTP forwarding write failures",
		}, []string{"room_id"}),
		connectionFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voxhub_peer_connections_failed_total",
			Help: "Total number of peer connections that transitioned to failed or closed",
		}),
	}
}

func (c *Collector) RoomCreated()  { c.roomsActive.Inc() }
func (c *Collector) RoomDestroyed() { c.roomsActive.Dec() }

func (c *Collector) PublisherCreated(room domain.RoomID) {
	c.connectionsTotal.Inc()
	c.publishersActive.WithLabelValues(string(room)).Inc()
}

func (c *Collector) PublisherRemoved(room domain.RoomID) {
	c.publishersActive.WithLabelValues(string(room)).Dec()
}

func (c *Collector) ConsumerCreated(room domain.RoomID) {
	c.connectionsTotal.Inc()
	c.consumersActive.WithLabelValues(string(room)).Inc()
}

func (c *Collector) ConsumerRemoved(room domain.RoomID) {
	c.consumersActive.WithLabelValues(string(room)).Dec()
}

func (c *Collector) PacketForwarded(room domain.RoomID) {
	c.packetsForwarded.WithLabelValues(string(room)).Inc()
}

func (c *Collector) ForwardingError(room domain.RoomID) {
	c.forwardingErrors.WithLabelValues(string(room)).Inc()
}

func (c *Collector) ConnectionFailed() {
	c.connectionFailed.Inc()
}
