package presence

import "sync"

type Peer struct {
	ID     string
	RoomID string
	Conn   Conn
}

type Room struct {
	ID    string
	peers map[string]*Peer
}

// Registry maps room ids to the peers present in them. A room exists only
// while it has at least one peer.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// ensure returns the room, creating it if needed. Caller holds mu for writing.
func (r *Registry) ensure(roomID string) *Room {
	room, ok := r.rooms[roomID]
	if !ok {
		room = &Room{ID: roomID, peers: make(map[string]*Peer)}
		r.rooms[roomID] = room
	}
	return room
}

// get looks up a room. Caller holds mu.
func (r *Registry) get(roomID string) (*Room, bool) {
	room, ok := r.rooms[roomID]
	return room, ok
}

// removeIfEmpty drops the room once its last peer is gone. Caller holds mu
// for writing.
func (r *Registry) removeIfEmpty(roomID string) {
	if room, ok := r.rooms[roomID]; ok && len(room.peers) == 0 {
		delete(r.rooms, roomID)
	}
}
