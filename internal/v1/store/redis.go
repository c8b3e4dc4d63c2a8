package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/peergrid/signaling/internal/v1/logging"
)

// RedisStore persists deliveries and resume records in Redis. Every call
// goes through a circuit breaker so a sick Redis degrades to fast STORAGE
// errors instead of piling up blocked room actors.
type RedisStore struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

// NewRedisStore connects and verifies the connection with a short ping.
func NewRedisStore(addr, password string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreFromClient(client), nil
}

// NewRedisStoreFromClient wraps an existing client (used by tests with
// miniredis).
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	st := gobreaker.Settings{
		Name:        "signaling-store",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
	}
	return &RedisStore{
		client: client,
		cb:     gobreaker.NewCircuitBreaker(st),
	}
}

// Client returns the underlying Redis client, shared with the limiter store
// and the readiness probe.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Ping checks connectivity; used by the readiness probe.
func (s *RedisStore) Ping(ctx context.Context) error {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, s.client.Ping(ctx).Err()
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func deliveryKey(roomID, toPeerID, deliveryID string) string {
	return fmt.Sprintf("room:%s:pending:%s:%s", roomID, toPeerID, deliveryID)
}

func deliveryPrefix(roomID string) string {
	return fmt.Sprintf("room:%s:pending:", roomID)
}

func resumeKey(roomID, token string) string {
	return fmt.Sprintf("room:%s:resume:%s", roomID, token)
}

func resumePrefix(roomID string) string {
	return fmt.Sprintf("room:%s:resume:", roomID)
}

// PutDelivery stores the record with a Redis TTL matching its expiry, so
// abandoned records age out even if no actor ever garbage-collects them.
func (s *RedisStore) PutDelivery(ctx context.Context, roomID string, d *PendingDelivery) error {
	return s.put(ctx, deliveryKey(roomID, d.ToPeerID, d.DeliveryID), d, d.ExpiresAt)
}

func (s *RedisStore) DeleteDelivery(ctx context.Context, roomID, toPeerID, deliveryID string) error {
	return s.delete(ctx, deliveryKey(roomID, toPeerID, deliveryID))
}

func (s *RedisStore) ListDeliveries(ctx context.Context, roomID string) ([]*PendingDelivery, error) {
	values, err := s.scanValues(ctx, deliveryPrefix(roomID))
	if err != nil {
		return nil, err
	}

	deliveries := make([]*PendingDelivery, 0, len(values))
	for _, raw := range values {
		var d PendingDelivery
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			logging.Warn(ctx, "Skipping undecodable pending delivery", zap.Error(err))
			continue
		}
		deliveries = append(deliveries, &d)
	}
	return deliveries, nil
}

func (s *RedisStore) PutResume(ctx context.Context, roomID string, rec *ResumeRecord) error {
	return s.put(ctx, resumeKey(roomID, rec.Token), rec, rec.ExpiresAt)
}

func (s *RedisStore) DeleteResume(ctx context.Context, roomID, token string) error {
	return s.delete(ctx, resumeKey(roomID, token))
}

func (s *RedisStore) ListResumes(ctx context.Context, roomID string) ([]*ResumeRecord, error) {
	values, err := s.scanValues(ctx, resumePrefix(roomID))
	if err != nil {
		return nil, err
	}

	records := make([]*ResumeRecord, 0, len(values))
	for _, raw := range values {
		var rec ResumeRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			logging.Warn(ctx, "Skipping undecodable resume record", zap.Error(err))
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}

func (s *RedisStore) put(ctx context.Context, key string, value any, expiresAtMs int64) error {
	_, err := s.cb.Execute(func() (any, error) {
		data, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		ttl := time.Until(time.UnixMilli(expiresAtMs))
		if ttl <= 0 {
			ttl = time.Second
		}
		return nil, s.client.Set(ctx, key, data, ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) delete(ctx context.Context, key string) error {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, s.client.Del(ctx, key).Err()
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// scanValues walks keys under prefix with SCAN and fetches their values.
// Keys may vanish between scan and fetch; those are skipped.
func (s *RedisStore) scanValues(ctx context.Context, prefix string) ([]string, error) {
	result, err := s.cb.Execute(func() (any, error) {
		var values []string
		iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			raw, err := s.client.Get(ctx, iter.Val()).Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return nil, err
			}
			values = append(values, raw)
		}
		if err := iter.Err(); err != nil {
			return nil, err
		}
		return values, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return result.([]string), nil
}
