// Copyright 2023 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

const (
	KindPublish   = "publish"
	KindSubscribe = "subscribe"
)

var (
	connectionCurrent atomic.Int32

	promConnectionCurrent  *prometheus.GaugeVec
	promOfferCounter       *prometheus.CounterVec
	promTransportEvents    *prometheus.CounterVec
	promNegotiationLatency *prometheus.HistogramVec
)

func initConnectionStats(nodeID string) {
	promConnectionCurrent = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "connection",
		Name:        "total",
		ConstLabels: prometheus.Labels{"node_id": nodeID},
	}, []string{"kind"})
	promOfferCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "negotiation",
		Name:        "offers",
		ConstLabels: prometheus.Labels{"node_id": nodeID},
	}, []string{"kind", "status"})
	promTransportEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "transport",
		Name:        "events",
		ConstLabels: prometheus.Labels{"node_id": nodeID},
	}, []string{"event"})
	promNegotiationLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Subsystem:   "negotiation",
		Name:        "answer_ms",
		ConstLabels: prometheus.Labels{"node_id": nodeID},
		Buckets:     []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	}, []string{"kind"})

	prometheus.MustRegister(promConnectionCurrent)
	prometheus.MustRegister(promOfferCounter)
	prometheus.MustRegister(promTransportEvents)
	prometheus.MustRegister(promNegotiationLatency)
}

func AddConnection(kind string) {
	connectionCurrent.Inc()
	if initialized.Load() {
		promConnectionCurrent.WithLabelValues(kind).Add(1)
	}
}

func SubConnection(kind string) {
	connectionCurrent.Dec()
	if initialized.Load() {
		promConnectionCurrent.WithLabelValues(kind).Sub(1)
	}
}

func ConnectionCount() int32 {
	return connectionCurrent.Load()
}

func RecordOffer(kind, status string) {
	if initialized.Load() {
		promOfferCounter.WithLabelValues(kind, status).Inc()
	}
}

func RecordTransportEvent(event string) {
	if initialized.Load() {
		promTransportEvents.WithLabelValues(event).Inc()
	}
}

func RecordAnswerLatency(kind string, d time.Duration) {
	if initialized.Load() {
		promNegotiationLatency.WithLabelValues(kind).Observe(float64(d.Milliseconds()))
	}
}
