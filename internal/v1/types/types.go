package types

// --- Core Domain Types ---

// RoomIDType represents a unique identifier for a signaling room.
type RoomIDType string

// PeerIDType represents the server-assigned identifier for a peer session.
// It is stable across a resume within the resume TTL.
type PeerIDType string

// UserIDType represents the authenticated user identity (the token `sub`).
type UserIDType string

// AliasType represents a normalized, room-unique human-chosen name.
type AliasType string

// --- WebSocket close codes used by the server ---

const (
	// CloseNormal is sent when the server shuts a session down cleanly.
	CloseNormal = 1000
	// CloseInternal is sent when an attachment turns out to be stale or invalid.
	CloseInternal = 1011
	// CloseSuperseded is sent on the previous socket when a new socket
	// attaches for the same peer.
	CloseSuperseded = 1012
)

// Identity carries the trusted claims the front door hands to a room
// after verifying the join token.
type Identity struct {
	UserID UserIDType
	RoomID RoomIDType
	Name   string // optional requested alias from the token `name` claim
}
