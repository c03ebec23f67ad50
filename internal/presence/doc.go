// Package presence tracks which peers are present in which rooms and relays
// signaling payloads between them.
//
// A single Registry is shared by a Coordinator (join/leave), a Router
// (targeted forwarding) and a Census (read-only snapshots). All three take the
// registry's lock; callers never do.
package presence
