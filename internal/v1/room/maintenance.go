package room

import (
	"go.uber.org/zap"

	"github.com/peergrid/signaling/internal/v1/logging"
	"github.com/peergrid/signaling/internal/v1/metrics"
	"github.com/peergrid/signaling/internal/v1/protocol"
)

// tick is the coalesced maintenance pass: sweep expired deliveries, retry
// live ones, garbage-collect lapsed resume records, then re-arm the timer at
// the earliest surviving deadline. Runs in actor context. Ticks are
// idempotent; a spurious wake finds nothing due and only re-arms.
func (r *Room) tick(now int64) {
	var wake int64

	for toPeerID, byDelivery := range r.pending {
		for _, d := range byDelivery {
			if d.ExpiresAt <= now {
				r.dropDelivery(d)
				metrics.DeliveriesExpired.Inc()
				continue
			}
			if d.NextRetryAt <= now {
				target := r.peers[toPeerID]
				if target == nil || !target.Connected {
					// No-op while the recipient is away; only the hard
					// expiry matters for the next wake.
					wake = earliest(wake, d.ExpiresAt)
					continue
				}
				if d.Attempts >= r.opts.MaxAttempts {
					r.dropDelivery(d)
					metrics.DeliveriesExpired.Inc()
					logging.Warn(r.ctx, "Delivery abandoned after max attempts",
						zap.String("roomId", string(r.ID)),
						zap.String("deliveryId", d.DeliveryID),
						zap.Int("attempts", d.Attempts))
					continue
				}
				d.Attempts++
				d.NextRetryAt = now + r.opts.RetryInterval.Milliseconds()
				metrics.DeliveryRetries.Inc()
				r.sendFrame(toPeerID, protocol.NewSignalMessage(d.DeliveryID, d.FromPeerID, d.FromUserID, d.ToPeerID, d.Payload, d.SentAt))
				if err := r.store.PutDelivery(r.ctx, string(r.ID), d); err != nil {
					logging.Warn(r.ctx, "Failed to persist retry state", zap.String("deliveryId", d.DeliveryID), zap.Error(err))
				}
			}
			wake = earliest(wake, min64(d.NextRetryAt, d.ExpiresAt))
		}
	}

	for token, peerID := range r.tokens {
		p := r.peers[peerID]
		if p == nil {
			delete(r.tokens, token)
			continue
		}
		if p.Connected {
			continue
		}
		if p.ResumeExpiresAt <= now {
			delete(r.tokens, token)
			r.releaseAlias(p)
			delete(r.peers, peerID)
			if err := r.store.DeleteResume(r.ctx, string(r.ID), token); err != nil {
				logging.Warn(r.ctx, "Failed to delete resume record", zap.Error(err))
			}
			logging.Info(r.ctx, "Detached peer garbage-collected",
				zap.String("roomId", string(r.ID)),
				zap.String("peerId", peerID))
		} else {
			wake = earliest(wake, p.ResumeExpiresAt)
		}
	}

	r.rearm(wake)
	r.maybeEmpty()
}
