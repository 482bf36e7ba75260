package report

import (
	"context"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2"
)

type MetricsSnapshot struct {
	Hits           uint64
	Misses         uint64
	OriginWrites   uint64
	OriginWriteErr uint64
}

// CachedStore keeps recently written or read reports in front of a slower
// origin store. Reports are immutable once archived, so entries never go stale.
type CachedStore struct {
	origin Store
	cache  *lru.Cache[string, Report]

	hits, misses, writes, writeErrs atomic.Uint64
}

func NewCachedStore(origin Store, size int) (*CachedStore, error) {
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[string, Report](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{origin: origin, cache: cache}, nil
}

func (s *CachedStore) Put(ctx context.Context, r Report) error {
	s.writes.Add(1)
	if err := s.origin.Put(ctx, r); err != nil {
		s.writeErrs.Add(1)
		return err
	}
	if id, err := normalizeID(r.ID); err == nil {
		r.ID = id
		s.cache.Add(id, r)
	}
	return nil
}

func (s *CachedStore) Get(ctx context.Context, id string) (Report, error) {
	key, err := normalizeID(id)
	if err != nil {
		return Report{}, err
	}
	if r, ok := s.cache.Get(key); ok {
		s.hits.Add(1)
		return r, nil
	}
	s.misses.Add(1)
	r, err := s.origin.Get(ctx, key)
	if err != nil {
		return Report{}, err
	}
	s.cache.Add(key, r)
	return r, nil
}

func (s *CachedStore) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		Hits:           s.hits.Load(),
		Misses:         s.misses.Load(),
		OriginWrites:   s.writes.Load(),
		OriginWriteErr: s.writeErrs.Load(),
	}
}

func (s *CachedStore) Close() error {
	s.cache.Purge()
	return s.origin.Close()
}
