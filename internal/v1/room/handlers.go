package room

import (
	"go.uber.org/zap"

	"github.com/google/uuid"

	"github.com/peergrid/signaling/internal/v1/logging"
	"github.com/peergrid/signaling/internal/v1/metrics"
	"github.com/peergrid/signaling/internal/v1/protocol"
	"github.com/peergrid/signaling/internal/v1/store"
)

// dispatch routes one decoded client message. Runs in actor context.
func (r *Room) dispatch(peerID string, msg *protocol.ClientMessage) {
	p := r.peers[peerID]
	if p == nil {
		r.sendFrame(peerID, protocol.NewError(protocol.CodeSessionNotFound, "no session for this socket", msg.RequestID))
		metrics.WebsocketEvents.WithLabelValues(msg.Type, "session_not_found").Inc()
		return
	}
	p.LastSeenAt = r.nowMS()

	switch msg.Type {
	case protocol.TypeHeartbeatPing:
		r.sendFrame(peerID, protocol.NewPong(msg.Ts))
	case protocol.TypeDiscoveryClaim:
		r.handleClaim(p, msg)
	case protocol.TypeDiscoveryResolve:
		r.handleResolve(p, msg)
	case protocol.TypeSignalSend:
		r.handleSend(p, msg)
	case protocol.TypeSignalAck:
		r.handleAck(p, msg)
	default:
		r.sendFrame(peerID, protocol.NewError(protocol.CodeUnsupported, "unsupported message type: "+msg.Type, msg.RequestID))
		metrics.WebsocketEvents.WithLabelValues(msg.Type, "unsupported").Inc()
		return
	}
	metrics.WebsocketEvents.WithLabelValues(msg.Type, "processed").Inc()
}

func (r *Room) handleClaim(p *Peer, msg *protocol.ClientMessage) {
	if frame := r.claimAlias(p, msg.Name, msg.RequestID); frame != nil {
		r.sendFrame(p.PeerID, *frame)
		return
	}
	if !r.sendFrame(p.PeerID, protocol.NewClaimed(p.Alias, p.UserID, msg.RequestID)) {
		return
	}
	// Others see the alias via an updated presence announcement.
	r.broadcast(protocol.NewPresenceJoined(r.summary(p)), p.PeerID)
}

func (r *Room) handleResolve(p *Peer, msg *protocol.ClientMessage) {
	name := msg.Name
	peers := []protocol.PeerSummary{}
	userID := ""

	if alias, ok := NormalizeAlias(msg.Name); ok {
		name = alias
		if holderID, claimed := r.aliases[alias]; claimed {
			if holder := r.peers[holderID]; holder != nil && holder.Connected {
				peers = append(peers, r.summary(holder))
				userID = holder.UserID
			}
		}
	}

	r.sendFrame(p.PeerID, protocol.NewResolved(name, userID, msg.RequestID, peers))
}

// handleSend admits one signaling message for at-least-once relay. Admission
// is durable first: a store failure aborts with a STORAGE error and no ack.
func (r *Room) handleSend(p *Peer, msg *protocol.ClientMessage) {
	now := r.nowMS()

	target := r.peers[msg.ToPeerID]
	if target == nil {
		r.sendFrame(p.PeerID, protocol.NewError(protocol.CodeTargetNotFound, "no such peer: "+msg.ToPeerID, msg.RequestID))
		return
	}

	deliveryID := msg.DeliveryID
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}

	d := &store.PendingDelivery{
		DeliveryID:  deliveryID,
		FromPeerID:  p.PeerID,
		FromUserID:  p.UserID,
		ToPeerID:    target.PeerID,
		Payload:     msg.Payload,
		SentAt:      now,
		Attempts:    0,
		NextRetryAt: now + r.opts.RetryInterval.Milliseconds(),
		ExpiresAt:   now + r.opts.MaxDeliveryAge.Milliseconds(),
	}
	if err := r.store.PutDelivery(r.ctx, string(r.ID), d); err != nil {
		logging.Error(r.ctx, "Failed to persist delivery", zap.String("deliveryId", deliveryID), zap.Error(err))
		r.sendFrame(p.PeerID, protocol.NewError(protocol.CodeStorage, "storage unavailable, retry later", msg.RequestID))
		return
	}
	r.mirrorDelivery(d)

	if target.Connected {
		if r.sendFrame(target.PeerID, protocol.NewSignalMessage(d.DeliveryID, d.FromPeerID, d.FromUserID, d.ToPeerID, d.Payload, d.SentAt)) {
			d.Attempts = 1
		}
	}

	r.sendFrame(p.PeerID, protocol.NewSignalAcked(d.DeliveryID, p.PeerID, now))
	r.rearm(min64(d.NextRetryAt, d.ExpiresAt))
}

// handleAck is the recipient confirming a delivery it received. Duplicate or
// unknown acks are discarded silently.
func (r *Room) handleAck(p *Peer, msg *protocol.ClientMessage) {
	d, ok := r.pending[p.PeerID][msg.DeliveryID]
	if !ok {
		return
	}
	r.dropDelivery(d)

	if sender := r.peers[d.FromPeerID]; sender != nil && sender.Connected {
		r.sendFrame(sender.PeerID, protocol.NewSignalAcked(d.DeliveryID, p.PeerID, r.nowMS()))
	}
}

// replayPending re-sends every unexpired delivery addressed to a freshly
// attached peer, in storage-iteration order. Runs right after the welcome.
func (r *Room) replayPending(p *Peer, now int64) {
	var wake int64
	for _, d := range r.pending[p.PeerID] {
		if d.ExpiresAt <= now {
			continue // swept by the next tick
		}
		if !r.sendFrame(p.PeerID, protocol.NewSignalMessage(d.DeliveryID, d.FromPeerID, d.FromUserID, d.ToPeerID, d.Payload, d.SentAt)) {
			return
		}
		d.Attempts++
		d.NextRetryAt = now + r.opts.RetryInterval.Milliseconds()
		wake = earliest(wake, min64(d.NextRetryAt, d.ExpiresAt))
	}
	r.rearm(wake)
}
