// Package metrics holds the service's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_sent_total",
		Help: "Messages accepted by the write path",
	})
	RoomsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_rooms_created_total",
		Help: "Rooms created",
	})
	WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_active_connections",
		Help: "Active websocket connections",
	})
	ActiveSubscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "query_active_subscriptions",
		Help: "Open query-layer subscriptions",
	})
)

var registerOnce sync.Once

// Init registers the collectors with the default registry. Safe to call
// more than once; the counters work unregistered, they just aren't scraped.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(MessagesSent, RoomsCreated, WSConnections, ActiveSubscriptions)
	})
}

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
