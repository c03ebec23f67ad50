package presence

import "sort"

type RoomStats struct {
	Count int      `json:"count"`
	Peers []string `json:"peers"`
}

// Stats is the /stats document.
type Stats struct {
	Rooms       int                  `json:"rooms"`
	RoomDetails map[string]RoomStats `json:"roomDetails"`
	TotalPeers  int                  `json:"totalPeers"`
}

// Census reads the registry without mutating it. Counts include entries whose
// connection has already closed but not yet left.
type Census struct {
	reg *Registry
}

func NewCensus(reg *Registry) *Census {
	return &Census{reg: reg}
}

func (c *Census) Snapshot() Stats {
	c.reg.mu.RLock()
	defer c.reg.mu.RUnlock()

	stats := Stats{
		Rooms:       len(c.reg.rooms),
		RoomDetails: make(map[string]RoomStats, len(c.reg.rooms)),
	}
	for id, room := range c.reg.rooms {
		peers := make([]string, 0, len(room.peers))
		for peerID := range room.peers {
			peers = append(peers, peerID)
		}
		sort.Strings(peers)
		stats.RoomDetails[id] = RoomStats{Count: len(peers), Peers: peers}
		stats.TotalPeers += len(peers)
	}
	return stats
}

func (c *Census) Totals() (rooms, peers int) {
	c.reg.mu.RLock()
	defer c.reg.mu.RUnlock()

	for _, room := range c.reg.rooms {
		peers += len(room.peers)
	}
	return len(c.reg.rooms), peers
}
