// Package signaling is the WebSocket transport for room presence and
// signaling.
//
// Endpoints:
//   - GET /      : WebSocket (same as /ws)
//   - GET /ws    : WebSocket carrying join, signal and leave frames
//   - GET /stats : JSON census of rooms and peers
//
// Each upgraded connection is a presence.Conn. Outbound frames go through a
// byte-bounded queue drained by a writer goroutine, so broadcasting under the
// registry lock never blocks on a slow peer.
package signaling
