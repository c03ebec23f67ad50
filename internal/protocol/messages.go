package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

type MessageType string

const (
	// Client -> server.
	TypeJoin   MessageType = "join"
	TypeSignal MessageType = "signal"
	TypeLeave  MessageType = "leave"

	// Server -> client. TypeSignal is shared by both directions.
	TypePeers      MessageType = "peers"
	TypePeerJoined MessageType = "peer-joined"
	TypePeerLeft   MessageType = "peer-left"
)

// ErrMalformed is returned by the decoders when a frame is not a JSON object
// or a known field has the wrong JSON type.
var ErrMalformed = errors.New("protocol: malformed message")

// Kind is the closed set of inbound message variants.
type Kind int

const (
	// KindIgnored covers unknown types and known types missing required
	// fields. Callers drop these without replying.
	KindIgnored Kind = iota
	KindJoin
	KindSignal
	KindLeave
)

func (k Kind) String() string {
	switch k {
	case KindJoin:
		return "join"
	case KindSignal:
		return "signal"
	case KindLeave:
		return "leave"
	default:
		return "ignored"
	}
}

// ClientMessage is a decoded client frame. Only the fields relevant to Kind
// are set.
type ClientMessage struct {
	Kind Kind

	// KindJoin.
	Room   string
	PeerID string

	// KindSignal. Signal is forwarded verbatim and may be empty when the
	// client omitted it.
	TargetPeerID string
	Signal       json.RawMessage

	// IgnoreReason is set for KindIgnored.
	IgnoreReason string
}

type envelope struct {
	Type string `json:"type"`
}

type joinBody struct {
	Room   string `json:"room"`
	PeerID string `json:"peerId"`
}

type signalBody struct {
	TargetPeerID string          `json:"targetPeerId"`
	Signal       json.RawMessage `json:"signal"`
}

// DecodeClient parses one inbound frame.
//
// Unknown fields are tolerated. An error is returned only for frames that
// cannot be interpreted at all; everything else maps to a ClientMessage,
// possibly KindIgnored.
func DecodeClient(data []byte) (ClientMessage, error) {
	if !isObject(data) {
		return ClientMessage{}, fmt.Errorf("%w: expected a JSON object", ErrMalformed)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch MessageType(env.Type) {
	case TypeJoin:
		var body joinBody
		if err := json.Unmarshal(data, &body); err != nil {
			return ClientMessage{}, fmt.Errorf("%w: join: %v", ErrMalformed, err)
		}
		if body.Room == "" || body.PeerID == "" {
			return ClientMessage{Kind: KindIgnored, IgnoreReason: "join missing room or peerId"}, nil
		}
		return ClientMessage{Kind: KindJoin, Room: body.Room, PeerID: body.PeerID}, nil
	case TypeSignal:
		var body signalBody
		if err := json.Unmarshal(data, &body); err != nil {
			return ClientMessage{}, fmt.Errorf("%w: signal: %v", ErrMalformed, err)
		}
		if body.TargetPeerID == "" {
			return ClientMessage{Kind: KindIgnored, IgnoreReason: "signal missing targetPeerId"}, nil
		}
		return ClientMessage{Kind: KindSignal, TargetPeerID: body.TargetPeerID, Signal: body.Signal}, nil
	case TypeLeave:
		return ClientMessage{Kind: KindLeave}, nil
	case "":
		return ClientMessage{Kind: KindIgnored, IgnoreReason: "missing type"}, nil
	default:
		return ClientMessage{Kind: KindIgnored, IgnoreReason: fmt.Sprintf("unknown type %q", env.Type)}, nil
	}
}

// MarshalJSON encodes the client-side wire form. It is used by the Go
// client; the server never sends ClientMessages.
func (m ClientMessage) MarshalJSON() ([]byte, error) {
	switch m.Kind {
	case KindJoin:
		return marshalVerbatim(struct {
			Type   MessageType `json:"type"`
			Room   string      `json:"room"`
			PeerID string      `json:"peerId"`
		}{TypeJoin, m.Room, m.PeerID})
	case KindSignal:
		return marshalVerbatim(struct {
			Type         MessageType     `json:"type"`
			TargetPeerID string          `json:"targetPeerId"`
			Signal       json.RawMessage `json:"signal,omitempty"`
		}{TypeSignal, m.TargetPeerID, m.Signal})
	case KindLeave:
		return marshalVerbatim(envelope{Type: string(TypeLeave)})
	default:
		return nil, fmt.Errorf("protocol: cannot encode %s message", m.Kind)
	}
}

// ServerMessage is an outbound frame.
type ServerMessage struct {
	Type   MessageType
	PeerID string
	Peers  []string
	Signal json.RawMessage
}

func Peers(ids []string) ServerMessage {
	return ServerMessage{Type: TypePeers, Peers: ids}
}

func PeerJoined(peerID string) ServerMessage {
	return ServerMessage{Type: TypePeerJoined, PeerID: peerID}
}

func PeerLeft(peerID string) ServerMessage {
	return ServerMessage{Type: TypePeerLeft, PeerID: peerID}
}

// Signal tags payload with the sender's peer id.
func Signal(fromPeerID string, payload json.RawMessage) ServerMessage {
	return ServerMessage{Type: TypeSignal, PeerID: fromPeerID, Signal: payload}
}

// Encode returns the wire form of m. Signal payloads are emitted without HTML
// escaping so they reach the target byte for byte.
func Encode(m ServerMessage) ([]byte, error) {
	return m.MarshalJSON()
}

func (m ServerMessage) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case TypePeers:
		peers := m.Peers
		if peers == nil {
			peers = []string{}
		}
		return marshalVerbatim(struct {
			Type  MessageType `json:"type"`
			Peers []string    `json:"peers"`
		}{m.Type, peers})
	case TypePeerJoined, TypePeerLeft:
		return marshalVerbatim(struct {
			Type   MessageType `json:"type"`
			PeerID string      `json:"peerId"`
		}{m.Type, m.PeerID})
	case TypeSignal:
		return marshalVerbatim(struct {
			Type   MessageType     `json:"type"`
			PeerID string          `json:"peerId"`
			Signal json.RawMessage `json:"signal,omitempty"`
		}{m.Type, m.PeerID, m.Signal})
	default:
		return nil, fmt.Errorf("protocol: cannot encode message type %q", m.Type)
	}
}

// DecodeServer parses a frame sent by the relay.
func DecodeServer(data []byte) (ServerMessage, error) {
	if !isObject(data) {
		return ServerMessage{}, fmt.Errorf("%w: expected a JSON object", ErrMalformed)
	}
	var wire struct {
		Type   MessageType     `json:"type"`
		PeerID string          `json:"peerId"`
		Peers  []string        `json:"peers"`
		Signal json.RawMessage `json:"signal"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return ServerMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch wire.Type {
	case TypePeers, TypePeerJoined, TypePeerLeft, TypeSignal:
	default:
		return ServerMessage{}, fmt.Errorf("%w: unexpected type %q", ErrMalformed, wire.Type)
	}
	return ServerMessage{
		Type:   wire.Type,
		PeerID: wire.PeerID,
		Peers:  wire.Peers,
		Signal: wire.Signal,
	}, nil
}

// marshalVerbatim is json.Marshal without HTML escaping.
func marshalVerbatim(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func isObject(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
