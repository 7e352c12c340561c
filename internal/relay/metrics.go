package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/omochice/relaychat/pkg/protocol"
)

type metrics struct {
	clients      prometheus.Gauge
	received     *prometheus.CounterVec
	relayed      prometheus.Counter
	dropped      prometheus.Counter
	authFailures prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		clients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "relaychat",
			Subsystem: "relay",
			Name:      "clients",
			Help:      "Currently connected clients.",
		}),
		received: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relaychat",
			Subsystem: "relay",
			Name:      "envelopes_received_total",
			Help:      "Envelopes received from clients, by type.",
		}, []string{"type"}),
		relayed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "relaychat",
			Subsystem: "relay",
			Name:      "messages_relayed_total",
			Help:      "Chat messages delivered to other clients.",
		}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "relaychat",
			Subsystem: "relay",
			Name:      "envelopes_dropped_total",
			Help:      "Outbound envelopes dropped because a client queue was full.",
		}),
		authFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "relaychat",
			Subsystem: "relay",
			Name:      "auth_failures_total",
			Help:      "Rejected auth attempts.",
		}),
	}
}

func typeLabel(t protocol.MessageType) string {
	switch t {
	case protocol.TypeAuth, protocol.TypeHeartbeat, protocol.TypeMessage:
		return string(t)
	default:
		return "other"
	}
}
