// Package store persists the two per-room ledgers the room actor needs to
// survive a cold start: pending signaling deliveries awaiting recipient
// confirmation, and resume records for detached peers. Keys follow the
// layout `room:{roomId}:pending:{toPeerId}:{deliveryId}` and
// `room:{roomId}:resume:{token}`.
package store

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrUnavailable wraps backend failures, including an open circuit breaker.
// The room surfaces it as a STORAGE error to the requesting client.
var ErrUnavailable = errors.New("store unavailable")

// PendingDelivery is one signaling message awaiting recipient confirmation.
type PendingDelivery struct {
	DeliveryID  string          `json:"deliveryId"`
	FromPeerID  string          `json:"fromPeerId"`
	FromUserID  string          `json:"fromUserId"`
	ToPeerID    string          `json:"toPeerId"`
	Payload     json.RawMessage `json:"payload"`
	SentAt      int64           `json:"sentAt"`
	Attempts    int             `json:"attempts"`
	NextRetryAt int64           `json:"nextRetryAt"`
	ExpiresAt   int64           `json:"expiresAt"`
}

// ResumeRecord makes a detached peer resumable until ExpiresAt.
type ResumeRecord struct {
	Token     string `json:"token"`
	PeerID    string `json:"peerId"`
	UserID    string `json:"userId"`
	RoomID    string `json:"roomId"`
	Alias     string `json:"alias,omitempty"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Store is the durable backend for one or more rooms. Implementations must
// be safe for concurrent use; each room serializes its own calls.
type Store interface {
	PutDelivery(ctx context.Context, roomID string, d *PendingDelivery) error
	DeleteDelivery(ctx context.Context, roomID, toPeerID, deliveryID string) error
	ListDeliveries(ctx context.Context, roomID string) ([]*PendingDelivery, error)

	PutResume(ctx context.Context, roomID string, rec *ResumeRecord) error
	DeleteResume(ctx context.Context, roomID, token string) error
	ListResumes(ctx context.Context, roomID string) ([]*ResumeRecord, error)
}
