// Package protocol defines the JSON frames exchanged between peers and the
// room signaling relay.
//
// Inbound frames decode into a closed set of variants (join, signal, leave)
// plus an ignorable variant for anything the relay does not act on. Signal
// payloads are carried as raw JSON and never interpreted.
package protocol
