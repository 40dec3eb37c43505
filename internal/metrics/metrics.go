package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the relay's Prometheus collectors.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	ActiveRooms       prometheus.Gauge
	EventsTotal       *prometheus.CounterVec
	ChatMessagesTotal prometheus.Counter
	SignalsRelayed    prometheus.Counter
	SignalsDropped    prometheus.Counter
}

// New registers all collectors with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "signaling_active_connections",
			Help: "Number of live websocket connections.",
		}),
		ActiveRooms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "signaling_active_rooms",
			Help: "Number of rooms currently held in memory.",
		}),
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signaling_events_total",
			Help: "Inbound events processed, by event type.",
		}, []string{"type"}),
		ChatMessagesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "signaling_chat_messages_total",
			Help: "Chat messages appended to room logs.",
		}),
		SignalsRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "signaling_signals_relayed_total",
			Help: "Signal and ICE payloads forwarded to a live target.",
		}),
		SignalsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "signaling_signals_dropped_total",
			Help: "Signal and ICE payloads dropped because the target was gone.",
		}),
	}
}
