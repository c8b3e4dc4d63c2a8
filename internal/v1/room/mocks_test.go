package room

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/peergrid/signaling/internal/v1/protocol"
	"github.com/peergrid/signaling/internal/v1/store"
	"github.com/peergrid/signaling/internal/v1/types"
)

// fakeClock drives the room's timing policy deterministically.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// mockSocket records every frame the room sends to it.
type mockSocket struct {
	mu          sync.Mutex
	frames      []map[string]any
	sendErr     error
	closed      bool
	closeCode   int
	closeReason string
}

func (s *mockSocket) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *mockSocket) Close(code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closeCode = code
	s.closeReason = reason
}

func (s *mockSocket) setSendErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendErr = err
}

func (s *mockSocket) isClosed() (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.closeCode
}

func (s *mockSocket) frameTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.frames))
	for _, f := range s.frames {
		if t, ok := f["type"].(string); ok {
			out = append(out, t)
		}
	}
	return out
}

func (s *mockSocket) framesOfType(frameType string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]any
	for _, f := range s.frames {
		if f["type"] == frameType {
			out = append(out, f)
		}
	}
	return out
}

func (s *mockSocket) lastOfType(t *testing.T, frameType string) map[string]any {
	t.Helper()
	matches := s.framesOfType(frameType)
	require.NotEmpty(t, matches, "no %q frame recorded", frameType)
	return matches[len(matches)-1]
}

// failingStore wraps the memory store with switchable write failures.
type failingStore struct {
	*store.MemoryStore
	mu             sync.Mutex
	putDeliveryErr error
}

func newFailingStore() *failingStore {
	return &failingStore{MemoryStore: store.NewMemoryStore()}
}

func (s *failingStore) failPutDelivery(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putDeliveryErr = err
}

func (s *failingStore) PutDelivery(ctx context.Context, roomID string, d *store.PendingDelivery) error {
	s.mu.Lock()
	err := s.putDeliveryErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.MemoryStore.PutDelivery(ctx, roomID, d)
}

// --- room test harness ---

func newTestRoom(t *testing.T, st store.Store, clk *fakeClock, opts Options) *Room {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore()
	}
	if clk != nil {
		opts.Now = clk.Now
	}
	r := New(context.Background(), "room-1", st, nil, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})
	return r
}

// flush waits until every previously posted command has run.
func flush(t *testing.T, r *Room) {
	t.Helper()
	require.NoError(t, r.call(context.Background(), func() {}))
}

// runTick invokes the maintenance pass at the clock's current time.
func runTick(t *testing.T, r *Room, clk *fakeClock) {
	t.Helper()
	require.NoError(t, r.call(context.Background(), func() {
		r.tick(clk.Now().UnixMilli())
	}))
}

func attachPeer(t *testing.T, r *Room, sock *mockSocket, userID, name, resumeToken string) string {
	t.Helper()
	peerID, err := r.Attach(context.Background(), sock, types.Identity{
		UserID: types.UserIDType(userID),
		RoomID: r.ID,
		Name:   name,
	}, resumeToken)
	require.NoError(t, err)
	require.NotEmpty(t, peerID)
	return peerID
}

func welcomeOf(t *testing.T, sock *mockSocket) map[string]any {
	t.Helper()
	return sock.lastOfType(t, "session.welcome")
}

func resumeTokenOf(t *testing.T, sock *mockSocket) string {
	t.Helper()
	token, ok := welcomeOf(t, sock)["resumeToken"].(string)
	require.True(t, ok)
	require.NotEmpty(t, token)
	return token
}

func clientMsg(t *testing.T, raw string) *protocol.ClientMessage {
	t.Helper()
	msg, err := protocol.Decode([]byte(raw))
	require.NoError(t, err)
	return msg
}
