package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/peergrid/signaling/internal/v1/auth"
	"github.com/peergrid/signaling/internal/v1/logging"
	"github.com/peergrid/signaling/internal/v1/metrics"
	"github.com/peergrid/signaling/internal/v1/room"
	"github.com/peergrid/signaling/internal/v1/store"
	"github.com/peergrid/signaling/internal/v1/types"
)

const (
	defaultCleanupGracePeriod = 5 * time.Second
	attachTimeout             = 5 * time.Second
)

// Hub is the registry of live rooms. It authenticates upgrade requests,
// creates rooms on first use, and tears idle rooms down after a grace
// period so a quick reconnect does not thrash room actors.
type Hub struct {
	codec *auth.Codec
	store store.Store

	mu                  sync.Mutex
	rooms               map[types.RoomIDType]*room.Room
	pendingRoomCleanups map[types.RoomIDType]*time.Timer

	cleanupGracePeriod time.Duration
	roomOpts           room.Options
	baseCtx            context.Context
}

// NewHub wires the WebSocket front door. roomOpts is zero for production
// defaults; tests shrink the timing policy through it.
func NewHub(codec *auth.Codec, st store.Store, roomOpts room.Options) *Hub {
	return &Hub{
		codec:               codec,
		store:               st,
		rooms:               make(map[types.RoomIDType]*room.Room),
		pendingRoomCleanups: make(map[types.RoomIDType]*time.Timer),
		cleanupGracePeriod:  defaultCleanupGracePeriod,
		roomOpts:            roomOpts,
		baseCtx:             context.Background(),
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser-origin enforcement is out of scope; tokens gate access.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWs implements GET /ws/:roomId. The token must verify against the
// path's room id; the upgrade response is returned untouched.
func (h *Hub) ServeWs(c *gin.Context) {
	roomID := c.Param("roomId")
	if roomID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{
			"code":    "NOT_FOUND",
			"message": "room id required",
		}})
		return
	}

	token := auth.ExtractToken(c.Request)
	claims, err := h.codec.Verify(token, roomID, time.Now())
	if err != nil {
		logging.Warn(c.Request.Context(), "Rejected websocket auth",
			zap.String("roomId", roomID), zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{
			"code":    "UNAUTHORIZED",
			"message": "invalid or missing join token",
		}})
		return
	}

	if !websocket.IsWebSocketUpgrade(c.Request) {
		c.Header("Upgrade", "websocket")
		c.JSON(http.StatusUpgradeRequired, gin.H{"error": gin.H{
			"code":    "EXPECTED_WEBSOCKET",
			"message": "this endpoint speaks WebSocket",
		}})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the handshake error response.
		logging.Warn(c.Request.Context(), "Websocket upgrade failed", zap.Error(err))
		return
	}

	h.handleConnection(conn, claims, types.RoomIDType(roomID), c.Query("resumeToken"))
}

// handleConnection binds an upgraded socket to its room and starts the pumps.
func (h *Hub) handleConnection(conn wsConnection, claims *auth.Claims, roomID types.RoomIDType, resumeToken string) {
	r := h.getOrCreateRoom(roomID)
	client := newClient(conn)
	client.room = r

	metrics.IncConnection()
	go client.writePump()

	identity := types.Identity{
		UserID: types.UserIDType(claims.Subject),
		RoomID: roomID,
		Name:   claims.Name,
	}

	ctx, cancel := context.WithTimeout(h.baseCtx, attachTimeout)
	defer cancel()
	peerID, err := r.Attach(ctx, client, identity, resumeToken)
	if err != nil {
		logging.Error(ctx, "Failed to attach socket to room",
			zap.String("roomId", string(roomID)), zap.Error(err))
		client.Close(types.CloseInternal, "attach failed")
		metrics.DecConnection()
		return
	}

	client.peerID = peerID
	go client.readPump()
}

// getOrCreateRoom returns the live room, cancelling any pending cleanup, or
// creates one with the hub's store and timing policy.
func (h *Hub) getOrCreateRoom(roomID types.RoomIDType) *room.Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[roomID]; ok {
		if timer, pending := h.pendingRoomCleanups[roomID]; pending {
			timer.Stop()
			delete(h.pendingRoomCleanups, roomID)
		}
		return r
	}

	logging.Info(h.baseCtx, "Creating room", zap.String("roomId", string(roomID)))
	r := room.New(h.baseCtx, roomID, h.store, h.scheduleRoomCleanup, h.roomOpts)
	h.rooms[roomID] = r
	metrics.ActiveRooms.Inc()
	return r
}

// scheduleRoomCleanup is the room's onEmpty callback. The room is deleted
// only if it is still idle once the grace period elapses.
func (h *Hub) scheduleRoomCleanup(roomID types.RoomIDType) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.pendingRoomCleanups[roomID]; ok {
		existing.Stop()
	}
	h.pendingRoomCleanups[roomID] = time.AfterFunc(h.cleanupGracePeriod, func() {
		h.cleanupRoom(roomID)
	})
}

func (h *Hub) cleanupRoom(roomID types.RoomIDType) {
	h.mu.Lock()
	delete(h.pendingRoomCleanups, roomID)
	r, ok := h.rooms[roomID]
	h.mu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(h.baseCtx, attachTimeout)
	defer cancel()
	if !r.Idle(ctx) {
		return
	}

	h.mu.Lock()
	delete(h.rooms, roomID)
	h.mu.Unlock()

	if err := r.Shutdown(ctx); err != nil {
		logging.Warn(ctx, "Room shutdown timed out", zap.String("roomId", string(roomID)), zap.Error(err))
	}
	metrics.ActiveRooms.Dec()
	metrics.RoomPeers.DeleteLabelValues(string(roomID))
	logging.Info(ctx, "Removed idle room", zap.String("roomId", string(roomID)))
}

// Shutdown closes every room, sending normal close frames to all sockets.
func (h *Hub) Shutdown(ctx context.Context) error {
	logging.Info(ctx, "Shutting down hub")

	h.mu.Lock()
	for roomID, timer := range h.pendingRoomCleanups {
		timer.Stop()
		delete(h.pendingRoomCleanups, roomID)
	}
	rooms := make([]*room.Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.rooms = make(map[types.RoomIDType]*room.Room)
	h.mu.Unlock()

	for _, r := range rooms {
		if err := r.Shutdown(ctx); err != nil {
			logging.Warn(ctx, "Room shutdown incomplete", zap.String("roomId", string(r.ID)), zap.Error(err))
		}
	}

	logging.Info(ctx, "All rooms closed", zap.Int("count", len(rooms)))
	return nil
}
