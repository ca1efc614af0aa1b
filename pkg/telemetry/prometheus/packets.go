package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
)

var (
	bytesIn    atomic.Uint64
	bytesOut   atomic.Uint64
	packetsIn  atomic.Uint64
	packetsOut atomic.Uint64
	framesIn   atomic.Uint64

	promPacketLabels = []string{"direction"}

	promPacketTotal *prometheus.CounterVec
	promPacketBytes *prometheus.CounterVec
	promFrameTotal  *prometheus.CounterVec
	promPliTotal    *prometheus.CounterVec
)

func initPacketStats(nodeID string) {
	promPacketTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "packet",
		Name:        "total",
		ConstLabels: prometheus.Labels{"node_id": nodeID},
	}, promPacketLabels)
	promPacketBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "packet",
		Name:        "bytes",
		ConstLabels: prometheus.Labels{"node_id": nodeID},
	}, promPacketLabels)
	promFrameTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "frame",
		Name:        "total",
		ConstLabels: prometheus.Labels{"node_id": nodeID},
	}, []string{"kind"})
	promPliTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "pli",
		Name:        "total",
		ConstLabels: prometheus.Labels{"node_id": nodeID},
	}, promPacketLabels)

	prometheus.MustRegister(promPacketTotal)
	prometheus.MustRegister(promPacketBytes)
	prometheus.MustRegister(promFrameTotal)
	prometheus.MustRegister(promPliTotal)
}

func IncrementPackets(direction Direction, count uint64, bytes uint64) {
	if direction == Incoming {
		packetsIn.Add(count)
		bytesIn.Add(bytes)
	} else {
		packetsOut.Add(count)
		bytesOut.Add(bytes)
	}
	if !initialized.Load() {
		return
	}
	promPacketTotal.WithLabelValues(string(direction)).Add(float64(count))
	promPacketBytes.WithLabelValues(string(direction)).Add(float64(bytes))
}

func IncrementFrames(kind string) {
	framesIn.Inc()
	if !initialized.Load() {
		return
	}
	promFrameTotal.WithLabelValues(kind).Inc()
}

func IncrementPLI(direction Direction) {
	if !initialized.Load() {
		return
	}
	promPliTotal.WithLabelValues(string(direction)).Inc()
}

type PacketStats struct {
	PacketsIn  uint64
	PacketsOut uint64
	BytesIn    uint64
	BytesOut   uint64
	Frames     uint64
}

// GetPacketStats returns the process-wide counters since start.
func GetPacketStats() PacketStats {
	return PacketStats{
		PacketsIn:  packetsIn.Load(),
		PacketsOut: packetsOut.Load(),
		BytesIn:    bytesIn.Load(),
		BytesOut:   bytesOut.Load(),
		Frames:     framesIn.Load(),
	}
}
