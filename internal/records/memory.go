package records

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/dmitrijs2005/audiodesc/internal/cryptox"
)

// MemoryRepository keeps records in process memory. Intended for tests and
// ephemeral runs; nothing survives a restart.
type MemoryRepository struct {
	mu   sync.RWMutex
	data map[string]*cryptox.Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{data: make(map[string]*cryptox.Record)}
}

func (r *MemoryRepository) Save(_ context.Context, key string, rec *cryptox.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = cloneRecord(rec)
	return nil
}

func (r *MemoryRepository) Load(_ context.Context, key string) (*cryptox.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.data[key]
	if !ok {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

func (r *MemoryRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, key)
	return nil
}

func (r *MemoryRepository) SaveBatch(_ context.Context, recs map[string]*cryptox.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, rec := range recs {
		r.data[k] = cloneRecord(rec)
	}
	return nil
}

func (r *MemoryRepository) Keys(_ context.Context, prefix string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := []string{}
	for k := range r.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *MemoryRepository) DeleteOwner(_ context.Context, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, rec := range r.data {
		if rec.Owner == owner {
			delete(r.data, k)
		}
	}
	return nil
}
