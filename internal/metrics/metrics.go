package metrics

import "sync"

// Event names counted by the relay.
const (
	WSConnectionOpened = "ws_connection_opened"
	WSConnectionClosed = "ws_connection_closed"

	PeerJoined     = "peer_joined"
	PeerLeft       = "peer_left"
	PeerSuperseded = "peer_superseded"

	SignalRelayed = "signal_relayed"
	SignalDropped = "signal_dropped"

	MessageMalformed = "message_malformed"
	MessageIgnored   = "message_ignored"

	SendQueueDropped = "send_queue_dropped"
)

// Metrics is a minimal, concurrency-safe counter registry.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	m.mu.Lock()
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of every counter.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
