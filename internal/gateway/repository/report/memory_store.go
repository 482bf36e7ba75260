package report

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore keeps the most recent reports in process memory. Entries expire
// after ttl and the oldest are evicted beyond size.
type MemoryStore struct {
	cache *expirable.LRU[string, Report]
}

func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = 1024
	}
	return &MemoryStore{cache: expirable.NewLRU[string, Report](size, nil, ttl)}
}

func (s *MemoryStore) Put(_ context.Context, r Report) error {
	id, err := normalizeID(r.ID)
	if err != nil {
		return err
	}
	r.ID = id
	s.cache.Add(id, r)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Report, error) {
	id, err := normalizeID(id)
	if err != nil {
		return Report{}, err
	}
	r, ok := s.cache.Get(id)
	if !ok {
		return Report{}, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) Len() int { return s.cache.Len() }

func (s *MemoryStore) Close() error {
	s.cache.Purge()
	return nil
}
