// Package transport owns the WebSocket edge: upgrading authenticated
// requests, pumping frames between sockets and room actors, and the hub that
// maps room ids to live rooms.
package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/peergrid/signaling/internal/v1/logging"
	"github.com/peergrid/signaling/internal/v1/metrics"
	"github.com/peergrid/signaling/internal/v1/protocol"
	"github.com/peergrid/signaling/internal/v1/room"
	"github.com/peergrid/signaling/internal/v1/types"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
	sendBufferSize = 64
)

var errSocketClosed = errors.New("socket closed")

// wsConnection is the slice of *websocket.Conn the client needs; tests swap
// in a mock.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	Close() error
}

// Client is one WebSocket connection bound to a peer session. It implements
// room.Socket; the room actor calls Send and Close, the pumps own the
// underlying connection.
type Client struct {
	conn   wsConnection
	room   *room.Room
	peerID string

	mu        sync.Mutex
	closed    bool
	closeData []byte
	closeOnce sync.Once

	send chan []byte
}

func newClient(conn wsConnection) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// Send enqueues one text frame for the write pump. A full buffer means the
// client cannot keep up; the room treats the returned error as a departure.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errSocketClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errors.New("send buffer full")
	}
}

// Close stops the write pump after it drains, delivering a close frame with
// the given code. Safe to call more than once.
func (c *Client) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.closeData = websocket.FormatCloseMessage(code, reason)
		c.mu.Unlock()
		close(c.send)
	})
}

// sendError pushes an in-band error frame, bypassing the room actor.
func (c *Client) sendError(code, message, requestID string) {
	data, err := protocol.Encode(protocol.NewError(code, message, requestID))
	if err != nil {
		return
	}
	_ = c.Send(data)
}

// readPump consumes client frames until the connection dies, then reports
// the departure to the room. The hub starts it only after the socket is
// bound to a peer session, so every frame read here has a session behind it.
func (c *Client) readPump() {
	defer func() {
		if c.room != nil {
			c.room.Depart(c.peerID, c, "socket-closed")
		}
		c.Close(types.CloseNormal, "")
		_ = c.conn.Close()
		metrics.DecConnection()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			c.sendError(protocol.CodeBadMessage, "binary frames are not supported", "")
			continue
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			requestID := ""
			if msg != nil {
				requestID = msg.RequestID
			}
			code := protocol.CodeBadMessage
			if errors.Is(err, protocol.ErrUnsupported) {
				code = protocol.CodeUnsupported
			}
			c.sendError(code, err.Error(), requestID)
			continue
		}

		c.room.HandleMessage(c.peerID, msg)
	}
}

// writePump serializes all writes to the connection. It exits when the send
// channel closes (delivering the close frame recorded by Close) or when a
// write fails.
func (c *Client) writePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logging.Warn(context.Background(), "Error writing websocket frame", zap.Error(err))
			return
		}
	}

	c.mu.Lock()
	closeData := c.closeData
	c.mu.Unlock()
	if closeData == nil {
		closeData = websocket.FormatCloseMessage(types.CloseNormal, "")
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, closeData)
}
