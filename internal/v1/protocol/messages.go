// Package protocol defines the JSON wire contract between clients and the
// signaling server. Messages are newline-free JSON objects discriminated by a
// string `type` field. Signaling payload bodies are opaque to the server and
// are forwarded verbatim as json.RawMessage.
package protocol

import "encoding/json"

// Client → server message types.
const (
	TypeHeartbeatPing    = "heartbeat.ping"
	TypeDiscoveryClaim   = "discovery.claim"
	TypeDiscoveryResolve = "discovery.resolve"
	TypeSignalSend       = "signal.send"
	TypeSignalAck        = "signal.ack"
)

// Server → client message types.
const (
	TypeSessionWelcome    = "session.welcome"
	TypePresenceJoined    = "presence.joined"
	TypePresenceLeft      = "presence.left"
	TypeDiscoveryClaimed  = "discovery.claimed"
	TypeDiscoveryResolved = "discovery.resolved"
	TypeSignalMessage     = "signal.message"
	TypeSignalAcked       = "signal.acked"
	TypeHeartbeatPong     = "heartbeat.pong"
	TypeError             = "error"
)

// In-band error codes.
const (
	CodeBadMessage      = "BAD_MESSAGE"
	CodeUnsupported     = "UNSUPPORTED"
	CodeAliasInvalid    = "ALIAS_INVALID"
	CodeAliasTaken      = "ALIAS_TAKEN"
	CodeTargetNotFound  = "TARGET_NOT_FOUND"
	CodeSessionNotFound = "SESSION_NOT_FOUND"
	// CodeUnboundSocket is reserved for clients of transports that read
	// before binding a session; this server binds before its read loop starts.
	CodeUnboundSocket = "UNBOUND_SOCKET"
	CodeStorage       = "STORAGE"
)

// PeerSummary describes one peer to other clients. Name is null until the
// peer claims an alias.
type PeerSummary struct {
	PeerID string  `json:"peerId"`
	UserID string  `json:"userId"`
	RoomID string  `json:"roomId"`
	Name   *string `json:"name"`
}

// ClientMessage is the decoded envelope of one client frame. Fields are
// populated per message type; Decode validates the required ones.
type ClientMessage struct {
	Type       string          `json:"type"`
	Ts         json.Number     `json:"ts,omitempty"`
	Name       string          `json:"name,omitempty"`
	RequestID  string          `json:"requestId,omitempty"`
	ToPeerID   string          `json:"toPeerId,omitempty"`
	DeliveryID string          `json:"deliveryId,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Welcome is sent to a socket once its attachment is complete.
type Welcome struct {
	Type            string        `json:"type"`
	PeerID          string        `json:"peerId"`
	UserID          string        `json:"userId"`
	RoomID          string        `json:"roomId"`
	ResumeToken     string        `json:"resumeToken"`
	ResumeExpiresAt int64         `json:"resumeExpiresAt"`
	Peers           []PeerSummary `json:"peers"`
}

// PresenceJoined announces a new or resumed peer to the rest of the room.
type PresenceJoined struct {
	Type string      `json:"type"`
	Peer PeerSummary `json:"peer"`
}

// PresenceLeft announces a departed peer to the rest of the room.
type PresenceLeft struct {
	Type   string `json:"type"`
	PeerID string `json:"peerId"`
	UserID string `json:"userId"`
}

// Claimed confirms a successful alias claim.
type Claimed struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	UserID    string `json:"userId"`
	RequestID string `json:"requestId,omitempty"`
}

// Resolved answers a discovery.resolve request. Peers holds at most one
// summary: the connected holder of the alias, if any.
type Resolved struct {
	Type      string        `json:"type"`
	Name      string        `json:"name"`
	UserID    string        `json:"userId,omitempty"`
	Peers     []PeerSummary `json:"peers"`
	RequestID string        `json:"requestId,omitempty"`
}

// SignalMessage carries an opaque payload from one peer to another.
type SignalMessage struct {
	Type       string          `json:"type"`
	DeliveryID string          `json:"deliveryId"`
	FromPeerID string          `json:"fromPeerId"`
	FromUserID string          `json:"fromUserId"`
	ToPeerID   string          `json:"toPeerId"`
	Payload    json.RawMessage `json:"payload"`
	SentAt     int64           `json:"sentAt"`
}

// SignalAcked confirms a delivery. ByPeerID is the sender itself on server
// admission and the recipient on end-to-end confirmation.
type SignalAcked struct {
	Type       string `json:"type"`
	DeliveryID string `json:"deliveryId"`
	ByPeerID   string `json:"byPeerId"`
	At         int64  `json:"at"`
}

// Pong answers a heartbeat.ping, echoing the client timestamp.
type Pong struct {
	Type string      `json:"type"`
	Ts   json.Number `json:"ts"`
}

// ErrorFrame is an in-band error. RequestID correlates it with the client
// request that caused it, when there is one.
type ErrorFrame struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// --- Constructors (set the discriminant so callers cannot forget it) ---

func NewWelcome(peerID, userID, roomID, resumeToken string, resumeExpiresAt int64, peers []PeerSummary) Welcome {
	if peers == nil {
		peers = []PeerSummary{}
	}
	return Welcome{
		Type:            TypeSessionWelcome,
		PeerID:          peerID,
		UserID:          userID,
		RoomID:          roomID,
		ResumeToken:     resumeToken,
		ResumeExpiresAt: resumeExpiresAt,
		Peers:           peers,
	}
}

func NewPresenceJoined(peer PeerSummary) PresenceJoined {
	return PresenceJoined{Type: TypePresenceJoined, Peer: peer}
}

func NewPresenceLeft(peerID, userID string) PresenceLeft {
	return PresenceLeft{Type: TypePresenceLeft, PeerID: peerID, UserID: userID}
}

func NewClaimed(name, userID, requestID string) Claimed {
	return Claimed{Type: TypeDiscoveryClaimed, Name: name, UserID: userID, RequestID: requestID}
}

func NewResolved(name, userID, requestID string, peers []PeerSummary) Resolved {
	if peers == nil {
		peers = []PeerSummary{}
	}
	return Resolved{Type: TypeDiscoveryResolved, Name: name, UserID: userID, Peers: peers, RequestID: requestID}
}

func NewSignalMessage(deliveryID, fromPeerID, fromUserID, toPeerID string, payload json.RawMessage, sentAt int64) SignalMessage {
	return SignalMessage{
		Type:       TypeSignalMessage,
		DeliveryID: deliveryID,
		FromPeerID: fromPeerID,
		FromUserID: fromUserID,
		ToPeerID:   toPeerID,
		Payload:    payload,
		SentAt:     sentAt,
	}
}

func NewSignalAcked(deliveryID, byPeerID string, at int64) SignalAcked {
	return SignalAcked{Type: TypeSignalAcked, DeliveryID: deliveryID, ByPeerID: byPeerID, At: at}
}

func NewPong(ts json.Number) Pong {
	if ts == "" {
		ts = "0"
	}
	return Pong{Type: TypeHeartbeatPong, Ts: ts}
}

func NewError(code, message, requestID string) ErrorFrame {
	return ErrorFrame{Type: TypeError, Code: code, Message: message, RequestID: requestID}
}
