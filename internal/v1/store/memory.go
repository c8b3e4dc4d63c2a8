package store

import (
	"context"
	"sync"
)

// MemoryStore is the single-instance fallback used when Redis is disabled,
// and the default backend in tests. State does not survive a process restart.
type MemoryStore struct {
	mu         sync.RWMutex
	deliveries map[string]map[string]*PendingDelivery // roomID -> (toPeerID:deliveryID) -> record
	resumes    map[string]map[string]*ResumeRecord    // roomID -> token -> record
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		deliveries: make(map[string]map[string]*PendingDelivery),
		resumes:    make(map[string]map[string]*ResumeRecord),
	}
}

func memDeliveryKey(toPeerID, deliveryID string) string {
	return toPeerID + ":" + deliveryID
}

func (s *MemoryStore) PutDelivery(_ context.Context, roomID string, d *PendingDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.deliveries[roomID]
	if !ok {
		room = make(map[string]*PendingDelivery)
		s.deliveries[roomID] = room
	}
	clone := *d
	room[memDeliveryKey(d.ToPeerID, d.DeliveryID)] = &clone
	return nil
}

func (s *MemoryStore) DeleteDelivery(_ context.Context, roomID, toPeerID, deliveryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room, ok := s.deliveries[roomID]; ok {
		delete(room, memDeliveryKey(toPeerID, deliveryID))
	}
	return nil
}

func (s *MemoryStore) ListDeliveries(_ context.Context, roomID string) ([]*PendingDelivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room := s.deliveries[roomID]
	out := make([]*PendingDelivery, 0, len(room))
	for _, d := range room {
		clone := *d
		out = append(out, &clone)
	}
	return out, nil
}

func (s *MemoryStore) PutResume(_ context.Context, roomID string, rec *ResumeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.resumes[roomID]
	if !ok {
		room = make(map[string]*ResumeRecord)
		s.resumes[roomID] = room
	}
	clone := *rec
	room[rec.Token] = &clone
	return nil
}

func (s *MemoryStore) DeleteResume(_ context.Context, roomID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room, ok := s.resumes[roomID]; ok {
		delete(room, token)
	}
	return nil
}

func (s *MemoryStore) ListResumes(_ context.Context, roomID string) ([]*ResumeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room := s.resumes[roomID]
	out := make([]*ResumeRecord, 0, len(room))
	for _, rec := range room {
		clone := *rec
		out = append(out, &clone)
	}
	return out, nil
}
