package presence

import (
	"encoding/json"

	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/protocol"
)

// Router forwards signaling payloads to a single peer within a room.
// Delivery is best-effort: there is no ack, retry or buffering.
type Router struct {
	reg     *Registry
	metrics *metrics.Metrics
}

func NewRouter(reg *Registry, m *metrics.Metrics) *Router {
	if m == nil {
		m = metrics.New()
	}
	return &Router{reg: reg, metrics: m}
}

// Signal delivers payload, tagged with senderPeerID, to targetPeerID if it is
// present in roomID and its connection is open. The result is never reported
// back to the sender.
func (r *Router) Signal(roomID, senderPeerID, targetPeerID string, payload json.RawMessage) bool {
	r.reg.mu.RLock()
	defer r.reg.mu.RUnlock()
	return r.signalLocked(roomID, senderPeerID, targetPeerID, payload)
}

func (r *Router) signalLocked(roomID, senderPeerID, targetPeerID string, payload json.RawMessage) bool {
	if targetPeerID == "" {
		r.metrics.Inc(metrics.SignalDropped)
		return false
	}
	room, ok := r.reg.get(roomID)
	if !ok {
		r.metrics.Inc(metrics.SignalDropped)
		return false
	}
	target, ok := room.peers[targetPeerID]
	if !ok || !target.Conn.Open() {
		r.metrics.Inc(metrics.SignalDropped)
		return false
	}
	if !target.Conn.Send(protocol.Signal(senderPeerID, payload)) {
		r.metrics.Inc(metrics.SignalDropped)
		return false
	}
	r.metrics.Inc(metrics.SignalRelayed)
	return true
}
