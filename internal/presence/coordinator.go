package presence

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/protocol"
)

var ErrInvalidJoin = errors.New("presence: join requires a room and peer id")

type association struct {
	roomID string
	peerID string
}

// Departure describes a processed leave.
type Departure struct {
	RoomID string
	PeerID string
	// Remaining is the number of registry entries left in the room.
	Remaining int
}

// Coordinator implements join and leave semantics and owns the association
// between connections and (room, peer) pairs.
//
// A connection holds at most one association. Joining a different (room, peer)
// on the same connection leaves the previous one first. When another
// connection takes over a peer id, the previous owner loses its association
// and its later close does not evict the new owner.
type Coordinator struct {
	reg     *Registry
	router  *Router
	logger  *slog.Logger
	metrics *metrics.Metrics

	// assoc is guarded by reg.mu.
	assoc map[string]association
}

func NewCoordinator(reg *Registry, logger *slog.Logger, m *metrics.Metrics) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Coordinator{
		reg:     reg,
		router:  NewRouter(reg, m),
		logger:  logger,
		metrics: m,
		assoc:   make(map[string]association),
	}
}

// Router returns the router sharing this coordinator's registry.
func (c *Coordinator) Router() *Router { return c.router }

// Join registers peerID in roomID for conn. The joining connection receives the
// ids of the other open peers; every other open peer in the room receives a
// peer-joined notice. The returned slice is sorted.
func (c *Coordinator) Join(roomID, peerID string, conn Conn) ([]string, error) {
	if roomID == "" || peerID == "" {
		return nil, fmt.Errorf("%w: room=%q peer=%q", ErrInvalidJoin, roomID, peerID)
	}

	c.reg.mu.Lock()
	defer c.reg.mu.Unlock()

	connID := conn.ID()
	if prev, ok := c.assoc[connID]; ok && prev != (association{roomID, peerID}) {
		c.leaveLocked(conn, prev)
	}

	room := c.reg.ensure(roomID)
	if existing, ok := room.peers[peerID]; ok && existing.Conn.ID() != connID {
		delete(c.assoc, existing.Conn.ID())
		c.metrics.Inc(metrics.PeerSuperseded)
		c.logger.Info("peer id taken over by another connection",
			"room", roomID,
			"peer_id", peerID,
			"conn_id", connID,
			"previous_conn_id", existing.Conn.ID(),
		)
	}

	room.peers[peerID] = &Peer{ID: peerID, RoomID: roomID, Conn: conn}
	c.assoc[connID] = association{roomID: roomID, peerID: peerID}

	others := make([]string, 0, len(room.peers)-1)
	for id, p := range room.peers {
		if id == peerID || !p.Conn.Open() {
			continue
		}
		others = append(others, id)
	}
	sort.Strings(others)

	conn.Send(protocol.Peers(others))
	joined := protocol.PeerJoined(peerID)
	for id, p := range room.peers {
		if id == peerID || !p.Conn.Open() {
			continue
		}
		p.Conn.Send(joined)
	}

	c.metrics.Inc(metrics.PeerJoined)
	c.logger.Info("peer joined", "room", roomID, "peer_id", peerID, "conn_id", connID)
	return others, nil
}

// Leave removes conn's association, if any. It is safe to call more than once
// and for connections that never joined.
func (c *Coordinator) Leave(conn Conn) (Departure, bool) {
	c.reg.mu.Lock()
	defer c.reg.mu.Unlock()

	a, ok := c.assoc[conn.ID()]
	if !ok {
		return Departure{}, false
	}
	return c.leaveLocked(conn, a), true
}

func (c *Coordinator) leaveLocked(conn Conn, a association) Departure {
	delete(c.assoc, conn.ID())

	dep := Departure{RoomID: a.roomID, PeerID: a.peerID}
	room, ok := c.reg.get(a.roomID)
	if !ok {
		return dep
	}
	p, ok := room.peers[a.peerID]
	if !ok || p.Conn.ID() != conn.ID() {
		dep.Remaining = len(room.peers)
		return dep
	}

	delete(room.peers, a.peerID)
	dep.Remaining = len(room.peers)

	left := protocol.PeerLeft(a.peerID)
	for _, other := range room.peers {
		if other.Conn.Open() {
			other.Conn.Send(left)
		}
	}
	c.reg.removeIfEmpty(a.roomID)

	c.metrics.Inc(metrics.PeerLeft)
	c.logger.Info("peer left",
		"room", a.roomID,
		"peer_id", a.peerID,
		"conn_id", conn.ID(),
		"remaining", dep.Remaining,
	)
	return dep
}

// Relay forwards payload from conn's current peer to targetPeerID in the same
// room. Unassociated connections are ignored.
func (c *Coordinator) Relay(conn Conn, targetPeerID string, payload json.RawMessage) bool {
	c.reg.mu.RLock()
	defer c.reg.mu.RUnlock()

	a, ok := c.assoc[conn.ID()]
	if !ok {
		c.metrics.Inc(metrics.SignalDropped)
		return false
	}
	return c.router.signalLocked(a.roomID, a.peerID, targetPeerID, payload)
}

// Association reports the (room, peer) pair conn is currently joined as.
func (c *Coordinator) Association(conn Conn) (roomID, peerID string, ok bool) {
	c.reg.mu.RLock()
	defer c.reg.mu.RUnlock()

	a, ok := c.assoc[conn.ID()]
	return a.roomID, a.peerID, ok
}
