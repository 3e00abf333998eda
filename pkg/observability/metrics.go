package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	localSlabs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "unbase",
			Subsystem: "network",
			Name:      "local_slabs",
			Help:      "Slabs currently registered with the network.",
		},
		[]string{"node"},
	)
	contexts = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "unbase",
			Subsystem: "slab",
			Name:      "contexts",
			Help:      "Open contexts across all local slabs.",
		},
		[]string{"node"},
	)
	packetsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "unbase",
			Subsystem: "network",
			Name:      "packets_sent_total",
			Help:      "Packets handed to a route, by route kind and result.",
		},
		[]string{"node", "kind", "result"},
	)
	packetsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "unbase",
			Subsystem: "network",
			Name:      "packets_delivered_total",
			Help:      "Inbound packets accepted by the network, by packet type.",
		},
		[]string{"node", "type"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(localSlabs, contexts, packetsSent, packetsDelivered)
	})
}

func SetLocalSlabs(node string, n int) {
	RegisterMetrics()
	localSlabs.WithLabelValues(node).Set(float64(n))
}

func AddContexts(node string, delta int) {
	RegisterMetrics()
	contexts.WithLabelValues(node).Add(float64(delta))
}

func RecordSend(node, kind string, err error) {
	RegisterMetrics()
	result := "ok"
	if err != nil {
		result = "error"
	}
	packetsSent.WithLabelValues(node, kind, result).Inc()
}

func RecordDeliver(node, packetType string) {
	RegisterMetrics()
	packetsDelivered.WithLabelValues(node, packetType).Inc()
}
