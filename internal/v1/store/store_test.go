package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDelivery(deliveryID, toPeerID string) *PendingDelivery {
	now := time.Now().UnixMilli()
	return &PendingDelivery{
		DeliveryID:  deliveryID,
		FromPeerID:  "peer-from",
		FromUserID:  "alice",
		ToPeerID:    toPeerID,
		Payload:     json.RawMessage(`{"kind":"offer"}`),
		SentAt:      now,
		NextRetryAt: now + 1500,
		ExpiresAt:   now + 90_000,
	}
}

func testResume(token, peerID string) *ResumeRecord {
	return &ResumeRecord{
		Token:     token,
		PeerID:    peerID,
		UserID:    "alice",
		RoomID:    "room-1",
		Alias:     "alice",
		ExpiresAt: time.Now().UnixMilli() + 30_000,
	}
}

// storeUnderTest runs the same contract assertions against both backends.
func runStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("deliveries", func(t *testing.T) {
		require.NoError(t, s.PutDelivery(ctx, "room-1", testDelivery("d1", "peer-a")))
		require.NoError(t, s.PutDelivery(ctx, "room-1", testDelivery("d2", "peer-a")))
		require.NoError(t, s.PutDelivery(ctx, "room-2", testDelivery("d1", "peer-b")))

		got, err := s.ListDeliveries(ctx, "room-1")
		require.NoError(t, err)
		assert.Len(t, got, 2)
		for _, d := range got {
			assert.Equal(t, "peer-a", d.ToPeerID)
			assert.JSONEq(t, `{"kind":"offer"}`, string(d.Payload))
		}

		// Same (toPeerId, deliveryId) key overwrites.
		dup := testDelivery("d1", "peer-a")
		dup.Attempts = 3
		require.NoError(t, s.PutDelivery(ctx, "room-1", dup))
		got, err = s.ListDeliveries(ctx, "room-1")
		require.NoError(t, err)
		assert.Len(t, got, 2)

		require.NoError(t, s.DeleteDelivery(ctx, "room-1", "peer-a", "d1"))
		got, err = s.ListDeliveries(ctx, "room-1")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "d2", got[0].DeliveryID)

		// Deleting a missing record is not an error.
		assert.NoError(t, s.DeleteDelivery(ctx, "room-1", "peer-a", "never-existed"))

		// Rooms are isolated.
		other, err := s.ListDeliveries(ctx, "room-2")
		require.NoError(t, err)
		assert.Len(t, other, 1)
	})

	t.Run("resume records", func(t *testing.T) {
		require.NoError(t, s.PutResume(ctx, "room-1", testResume("tok-1", "peer-a")))
		require.NoError(t, s.PutResume(ctx, "room-1", testResume("tok-2", "peer-b")))

		got, err := s.ListResumes(ctx, "room-1")
		require.NoError(t, err)
		assert.Len(t, got, 2)

		require.NoError(t, s.DeleteResume(ctx, "room-1", "tok-1"))
		got, err = s.ListResumes(ctx, "room-1")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "tok-2", got[0].Token)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreFromClient(client)
	defer s.Close()

	runStoreContract(t, s)
}

func TestMemoryStore_ListReturnsClones(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.PutDelivery(ctx, "room-1", testDelivery("d1", "peer-a")))
	got, err := s.ListDeliveries(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, got, 1)

	got[0].Attempts = 99
	again, err := s.ListDeliveries(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, 0, again[0].Attempts)
}

func TestRedisStore_ExpiryHonored(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreFromClient(client)
	defer s.Close()
	ctx := context.Background()

	d := testDelivery("d1", "peer-a")
	d.ExpiresAt = time.Now().UnixMilli() + 2_000
	require.NoError(t, s.PutDelivery(ctx, "room-1", d))

	// Redis TTLs age out abandoned records without any actor involvement.
	mr.FastForward(5 * time.Second)
	got, err := s.ListDeliveries(ctx, "room-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisStore_UnavailableWrapsError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreFromClient(client)

	mr.Close()

	err := s.PutDelivery(context.Background(), "room-1", testDelivery("d1", "peer-a"))
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = s.ListDeliveries(context.Background(), "room-1")
	assert.ErrorIs(t, err, ErrUnavailable)

	assert.ErrorIs(t, s.Ping(context.Background()), ErrUnavailable)
}

func TestRedisStore_Ping(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreFromClient(client)
	defer s.Close()

	assert.NoError(t, s.Ping(context.Background()))
}
