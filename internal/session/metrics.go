package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/omochice/relaychat/pkg/protocol"
)

type metrics struct {
	sent         *prometheus.CounterVec
	received     *prometheus.CounterVec
	decodeErrors prometheus.Counter
	transitions  *prometheus.CounterVec
	heartbeats   prometheus.Counter
}

// newMetrics registers the session collectors with reg. A nil reg leaves
// them unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		sent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relaychat",
			Subsystem: "session",
			Name:      "envelopes_sent_total",
			Help:      "Envelopes written to the transport, by type.",
		}, []string{"type"}),
		received: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relaychat",
			Subsystem: "session",
			Name:      "envelopes_received_total",
			Help:      "Envelopes decoded from the transport, by type.",
		}, []string{"type"}),
		decodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "relaychat",
			Subsystem: "session",
			Name:      "decode_errors_total",
			Help:      "Inbound messages that were not valid envelopes.",
		}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relaychat",
			Subsystem: "session",
			Name:      "state_transitions_total",
			Help:      "State transitions, by target state.",
		}, []string{"state"}),
		heartbeats: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "relaychat",
			Subsystem: "session",
			Name:      "heartbeats_total",
			Help:      "Heartbeat ticks that produced an envelope.",
		}),
	}
}

// typeLabel bounds the label set to the known protocol types.
func typeLabel(t protocol.MessageType) string {
	switch t {
	case protocol.TypeAuth, protocol.TypeHeartbeat, protocol.TypeMessage,
		protocol.TypeConnected, protocol.TypeAuthResponse, protocol.TypeMessageReceipt,
		protocol.TypeAPIResponse, protocol.TypeHeartbeatResponse, protocol.TypeError,
		protocol.TypeNotice:
		return string(t)
	default:
		return "other"
	}
}
