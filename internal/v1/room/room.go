// Package room implements the per-room authority of the signaling service:
// peer sessions, the alias registry, pending deliveries with retry, resume
// records, and timer-driven maintenance.
//
// Concurrency Design:
// Each Room is a single-writer actor. All state lives behind one goroutine
// (the run loop) that consumes a bounded command channel and the coalesced
// maintenance timer. Handlers never wait on other commands of the same room,
// so they are non-reentrant by construction. Multiple rooms run in parallel;
// nothing outside the actor touches its tables.
//
// Durability:
// Pending deliveries and resume records are mirrored to a store so a room
// cold-start can rebuild its tables. Sessions themselves are last-writer-wins
// per socket and do not survive a full restart.
package room

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peergrid/signaling/internal/v1/logging"
	"github.com/peergrid/signaling/internal/v1/metrics"
	"github.com/peergrid/signaling/internal/v1/protocol"
	"github.com/peergrid/signaling/internal/v1/store"
	"github.com/peergrid/signaling/internal/v1/types"
)

// Defaults for the room's timing policy.
const (
	DefaultResumeTTL      = 30 * time.Second
	DefaultRetryInterval  = 1500 * time.Millisecond
	DefaultMaxAttempts    = 12
	DefaultMaxDeliveryAge = 90 * time.Second

	defaultCommandBuffer = 256
)

// ErrRoomClosed is returned for operations on a shut-down room.
var ErrRoomClosed = errors.New("room closed")

// Socket is the transport-side handle the room drives. Send must not block
// indefinitely; an error means the socket is unusable and the room treats it
// as a departure. Close delivers a close frame with the given code.
type Socket interface {
	Send(data []byte) error
	Close(code int, reason string)
}

// Peer is one participant presence. All fields are owned by the room actor.
type Peer struct {
	PeerID          string
	UserID          string
	RoomID          string
	Alias           string
	ResumeToken     string
	ResumeExpiresAt int64
	Connected       bool
	Announced       bool // presence.joined has been broadcast and not yet retracted
	LastSeenAt      int64
}

// Options tune the room's timing policy, primarily for tests.
type Options struct {
	ResumeTTL      time.Duration
	RetryInterval  time.Duration
	MaxAttempts    int
	MaxDeliveryAge time.Duration
	Now            func() time.Time
}

func (o *Options) fillDefaults() {
	if o.ResumeTTL <= 0 {
		o.ResumeTTL = DefaultResumeTTL
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.MaxDeliveryAge <= 0 {
		o.MaxDeliveryAge = DefaultMaxDeliveryAge
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Room owns all state for one broadcast domain.
type Room struct {
	ID types.RoomIDType

	opts    Options
	store   store.Store
	onEmpty func(types.RoomIDType)

	ctx    context.Context
	cancel context.CancelFunc
	cmds   chan func()
	wg     sync.WaitGroup

	// next wake; one coalesced timer per room
	timer *time.Timer
	wake  int64 // epoch ms, 0 when unarmed

	// actor-owned tables
	peers   map[string]*Peer                             // peerId -> peer
	aliases map[string]string                            // alias -> peerId
	tokens  map[string]string                            // resumeToken -> peerId
	sockets map[string]Socket                            // peerId -> bound socket
	pending map[string]map[string]*store.PendingDelivery // toPeerId -> deliveryId -> record
}

// New creates a room and rebuilds its in-memory tables from the store:
// unexpired resume records become detached peers (with their alias bindings),
// pending deliveries are mirrored, and the timer is armed at the earliest
// deadline. The actor goroutine is running when New returns.
func New(ctx context.Context, id types.RoomIDType, st store.Store, onEmpty func(types.RoomIDType), opts Options) *Room {
	opts.fillDefaults()

	rctx, cancel := context.WithCancel(ctx)
	r := &Room{
		ID:      id,
		opts:    opts,
		store:   st,
		onEmpty: onEmpty,
		ctx:     rctx,
		cancel:  cancel,
		cmds:    make(chan func(), defaultCommandBuffer),
		peers:   make(map[string]*Peer),
		aliases: make(map[string]string),
		tokens:  make(map[string]string),
		sockets: make(map[string]Socket),
		pending: make(map[string]map[string]*store.PendingDelivery),
	}

	r.restore()

	r.wg.Add(1)
	go r.run()
	return r
}

// restore walks the store and rebuilds the actor tables. Failures leave the
// room functional but empty; expired rows are cleaned by the first tick.
func (r *Room) restore() {
	now := r.nowMS()
	var wake int64

	records, err := r.store.ListResumes(r.ctx, string(r.ID))
	if err != nil {
		logging.Warn(r.ctx, "Failed to restore resume records", zap.String("roomId", string(r.ID)), zap.Error(err))
	}
	for _, rec := range records {
		if rec.ExpiresAt <= now {
			continue // first tick deletes the stale row
		}
		p := &Peer{
			PeerID:          rec.PeerID,
			UserID:          rec.UserID,
			RoomID:          rec.RoomID,
			Alias:           rec.Alias,
			ResumeToken:     rec.Token,
			ResumeExpiresAt: rec.ExpiresAt,
			Connected:       false,
			LastSeenAt:      now,
		}
		r.peers[p.PeerID] = p
		r.tokens[p.ResumeToken] = p.PeerID
		if p.Alias != "" {
			r.aliases[p.Alias] = p.PeerID
		}
		wake = earliest(wake, rec.ExpiresAt)
	}

	deliveries, err := r.store.ListDeliveries(r.ctx, string(r.ID))
	if err != nil {
		logging.Warn(r.ctx, "Failed to restore pending deliveries", zap.String("roomId", string(r.ID)), zap.Error(err))
	}
	for _, d := range deliveries {
		r.mirrorDelivery(d)
		wake = earliest(wake, min64(d.NextRetryAt, d.ExpiresAt))
	}

	r.rearm(wake)
}

func (r *Room) run() {
	defer r.wg.Done()
	for {
		var timerC <-chan time.Time
		if r.timer != nil {
			timerC = r.timer.C
		}
		select {
		case <-r.ctx.Done():
			return
		case cmd := <-r.cmds:
			cmd()
		case <-timerC:
			r.timer = nil
			r.wake = 0
			r.tick(r.nowMS())
		}
	}
}

// do posts a command to the actor.
func (r *Room) do(fn func()) error {
	select {
	case r.cmds <- fn:
		return nil
	case <-r.ctx.Done():
		return ErrRoomClosed
	}
}

// call posts a command and waits for it to run.
func (r *Room) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := r.do(func() {
		fn()
		close(done)
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return ErrRoomClosed
	}
}

// --- Public contract, invoked by the front door and the socket pumps ---

// Attach binds an authenticated socket to a peer session: a resume-token
// match re-adopts the detached (or half-closed) peer, anything else creates
// a fresh one. The previous socket of a re-adopted peer is closed with 1012.
func (r *Room) Attach(ctx context.Context, sock Socket, id types.Identity, resumeToken string) (string, error) {
	var peerID string
	err := r.call(ctx, func() {
		peerID = r.attach(sock, id, resumeToken)
	})
	return peerID, err
}

// HandleMessage dispatches one decoded client message for the given peer.
func (r *Room) HandleMessage(peerID string, msg *protocol.ClientMessage) {
	_ = r.do(func() {
		start := time.Now()
		r.dispatch(peerID, msg)
		metrics.MessageProcessingDuration.WithLabelValues(msg.Type).Observe(time.Since(start).Seconds())
	})
}

// Depart is called by the transport when a socket closes or errors. The sock
// argument guards against a stale departure racing a supersession: only the
// currently bound socket can detach the peer.
func (r *Room) Depart(peerID string, sock Socket, cause string) {
	_ = r.do(func() {
		if r.sockets[peerID] != sock {
			return
		}
		r.detach(peerID, cause)
	})
}

// Idle reports whether the room holds no state worth keeping alive. The hub
// uses it to double-check before deleting a room after the grace period.
func (r *Room) Idle(ctx context.Context) bool {
	idle := false
	err := r.call(ctx, func() {
		idle = len(r.peers) == 0 && len(r.sockets) == 0 && r.pendingCount() == 0
	})
	if err != nil {
		return errors.Is(err, ErrRoomClosed)
	}
	return idle
}

// Shutdown closes every socket with a normal close code and stops the actor.
func (r *Room) Shutdown(ctx context.Context) error {
	err := r.call(ctx, func() {
		for id, sock := range r.sockets {
			sock.Close(types.CloseNormal, "server shutting down")
			delete(r.sockets, id)
		}
		if r.timer != nil {
			r.timer.Stop()
			r.timer = nil
		}
	})
	if err != nil && !errors.Is(err, ErrRoomClosed) {
		logging.Warn(ctx, "Room shutdown command not delivered", zap.String("roomId", string(r.ID)), zap.Error(err))
	}

	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --- attach / detach (actor context) ---

func (r *Room) attach(sock Socket, id types.Identity, resumeToken string) string {
	now := r.nowMS()

	var p *Peer
	if resumeToken != "" {
		if pid, ok := r.tokens[resumeToken]; ok {
			if cand := r.peers[pid]; cand != nil && cand.UserID == string(id.UserID) {
				p = cand
			}
		}
	}

	resumed := p != nil
	wasConnected := false
	if resumed {
		wasConnected = p.Connected
		// consume the ledger row; the token rotates below
		if !p.Connected {
			if err := r.store.DeleteResume(r.ctx, string(r.ID), p.ResumeToken); err != nil {
				logging.Warn(r.ctx, "Failed to consume resume record", zap.Error(err))
			}
		}
		delete(r.tokens, p.ResumeToken)
		if old, ok := r.sockets[p.PeerID]; ok {
			old.Close(types.CloseSuperseded, "superseded")
			delete(r.sockets, p.PeerID)
		}
	} else {
		p = &Peer{
			PeerID: uuid.NewString(),
			UserID: string(id.UserID),
			RoomID: string(r.ID),
		}
		r.peers[p.PeerID] = p
	}

	p.ResumeToken = newResumeToken()
	p.ResumeExpiresAt = now + r.opts.ResumeTTL.Milliseconds()
	p.Connected = true
	p.LastSeenAt = now
	r.tokens[p.ResumeToken] = p.PeerID
	r.sockets[p.PeerID] = sock
	metrics.RoomPeers.WithLabelValues(string(r.ID)).Set(float64(len(r.sockets)))

	// The token's name claim is advisory: a conflict keeps the session and
	// surfaces as an inline error after the welcome.
	var aliasErr *protocol.ErrorFrame
	if id.Name != "" && p.Alias == "" {
		if frame := r.claimAlias(p, id.Name, ""); frame != nil {
			aliasErr = frame
		}
	}

	welcome := protocol.NewWelcome(p.PeerID, p.UserID, p.RoomID, p.ResumeToken, p.ResumeExpiresAt, r.connectedSummaries(p.PeerID))
	if !r.sendFrame(p.PeerID, welcome) {
		// the socket died under us; detach already ran
		return p.PeerID
	}
	if aliasErr != nil {
		r.sendFrame(p.PeerID, *aliasErr)
	}

	if !wasConnected {
		r.broadcast(protocol.NewPresenceJoined(r.summary(p)), p.PeerID)
		p.Announced = true
	}

	r.replayPending(p, now)

	logging.Info(r.ctx, "Peer attached",
		zap.String("roomId", string(r.ID)),
		zap.String("peerId", p.PeerID),
		zap.String("userId", p.UserID),
		zap.Bool("resumed", resumed))
	return p.PeerID
}

func (r *Room) detach(peerID, cause string) {
	p := r.peers[peerID]
	delete(r.sockets, peerID)
	metrics.RoomPeers.WithLabelValues(string(r.ID)).Set(float64(len(r.sockets)))
	if p == nil || !p.Connected {
		return
	}

	now := r.nowMS()
	p.Connected = false
	p.LastSeenAt = now
	p.ResumeExpiresAt = now + r.opts.ResumeTTL.Milliseconds()

	rec := &store.ResumeRecord{
		Token:     p.ResumeToken,
		PeerID:    p.PeerID,
		UserID:    p.UserID,
		RoomID:    p.RoomID,
		Alias:     p.Alias,
		ExpiresAt: p.ResumeExpiresAt,
	}
	if err := r.store.PutResume(r.ctx, string(r.ID), rec); err != nil {
		// The in-memory ledger still allows a resume while this actor lives.
		logging.Warn(r.ctx, "Failed to persist resume record", zap.String("peerId", p.PeerID), zap.Error(err))
	}

	r.rearm(p.ResumeExpiresAt)

	// The alias stays reserved until the resume window lapses. A peer whose
	// join was never announced (its welcome send failed) departs silently.
	if p.Announced {
		p.Announced = false
		r.broadcast(protocol.NewPresenceLeft(p.PeerID, p.UserID), p.PeerID)
	}

	logging.Info(r.ctx, "Peer detached",
		zap.String("roomId", string(r.ID)),
		zap.String("peerId", p.PeerID),
		zap.String("cause", cause))
}

// --- send helpers (actor context) ---

// sendFrame marshals and sends one frame to a peer's socket. A send error is
// a transport-level departure for that socket only.
func (r *Room) sendFrame(peerID string, frame any) bool {
	sock, ok := r.sockets[peerID]
	if !ok {
		return false
	}
	data, err := protocol.Encode(frame)
	if err != nil {
		logging.Error(r.ctx, "Failed to encode server frame", zap.Error(err))
		return false
	}
	if err := sock.Send(data); err != nil {
		sock.Close(types.CloseInternal, "send failed")
		r.detach(peerID, "send-error")
		return false
	}
	return true
}

// broadcast sends a frame to every connected peer except the excluded one.
func (r *Room) broadcast(frame any, excludePeerID string) {
	data, err := protocol.Encode(frame)
	if err != nil {
		logging.Error(r.ctx, "Failed to encode broadcast frame", zap.Error(err))
		return
	}
	var failed []string
	for peerID, sock := range r.sockets {
		if peerID == excludePeerID {
			continue
		}
		if err := sock.Send(data); err != nil {
			failed = append(failed, peerID)
		}
	}
	for _, peerID := range failed {
		if sock, ok := r.sockets[peerID]; ok {
			sock.Close(types.CloseInternal, "send failed")
		}
		r.detach(peerID, "send-error")
	}
}

func (r *Room) summary(p *Peer) protocol.PeerSummary {
	s := protocol.PeerSummary{PeerID: p.PeerID, UserID: p.UserID, RoomID: p.RoomID}
	if p.Alias != "" {
		alias := p.Alias
		s.Name = &alias
	}
	return s
}

func (r *Room) connectedSummaries(excludePeerID string) []protocol.PeerSummary {
	summaries := []protocol.PeerSummary{}
	for peerID := range r.sockets {
		if peerID == excludePeerID {
			continue
		}
		if p := r.peers[peerID]; p != nil && p.Connected {
			summaries = append(summaries, r.summary(p))
		}
	}
	return summaries
}

// --- misc helpers ---

func (r *Room) nowMS() int64 {
	return r.opts.Now().UnixMilli()
}

func (r *Room) pendingCount() int {
	n := 0
	for _, m := range r.pending {
		n += len(m)
	}
	return n
}

func (r *Room) mirrorDelivery(d *store.PendingDelivery) {
	m, ok := r.pending[d.ToPeerID]
	if !ok {
		m = make(map[string]*store.PendingDelivery)
		r.pending[d.ToPeerID] = m
	}
	m[d.DeliveryID] = d
	metrics.PendingDeliveries.WithLabelValues(string(r.ID)).Set(float64(r.pendingCount()))
}

func (r *Room) dropDelivery(d *store.PendingDelivery) {
	if m, ok := r.pending[d.ToPeerID]; ok {
		delete(m, d.DeliveryID)
		if len(m) == 0 {
			delete(r.pending, d.ToPeerID)
		}
	}
	metrics.PendingDeliveries.WithLabelValues(string(r.ID)).Set(float64(r.pendingCount()))
	if err := r.store.DeleteDelivery(r.ctx, string(r.ID), d.ToPeerID, d.DeliveryID); err != nil {
		logging.Warn(r.ctx, "Failed to delete pending delivery", zap.String("deliveryId", d.DeliveryID), zap.Error(err))
	}
}

// rearm moves the coalesced wake to at (epoch ms) when that is sooner than
// the current one. at == 0 is ignored.
func (r *Room) rearm(at int64) {
	if at == 0 {
		return
	}
	if r.wake != 0 && r.wake <= at {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.wake = at
	d := time.Duration(at-r.nowMS()) * time.Millisecond
	if d < 0 {
		d = 0
	}
	r.timer = time.NewTimer(d)
}

// maybeEmpty fires the hub's cleanup callback once nothing is left.
func (r *Room) maybeEmpty() {
	if r.onEmpty == nil {
		return
	}
	if len(r.peers) == 0 && len(r.sockets) == 0 && r.pendingCount() == 0 {
		id := r.ID
		cb := r.onEmpty
		go cb(id)
	}
}

func newResumeToken() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; uuid keeps the
		// token unique if it somehow does.
		return uuid.NewString()
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

func earliest(current, candidate int64) int64 {
	if candidate == 0 {
		return current
	}
	if current == 0 || candidate < current {
		return candidate
	}
	return current
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
