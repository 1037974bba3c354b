package artifacts

import (
	"context"
	"encoding/base64"
	"sync"
	"time"
)

type memoryObject struct {
	data    []byte
	mime    string
	expires time.Time
}

// MemoryStore keeps objects in process memory for a fixed TTL. URLs are
// data: URLs, so nothing has to be reachable from outside the process.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]memoryObject
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates a store whose objects expire ttl after Put.
// A ttl of zero keeps objects until deleted.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memoryObject),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryStore) Put(_ context.Context, data []byte, mime string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepLocked()

	key := NewKey()
	obj := memoryObject{data: append([]byte(nil), data...), mime: mime}
	if m.ttl > 0 {
		obj.expires = m.now().Add(m.ttl)
	}
	m.objects[key] = obj
	return key, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.liveLocked(key)
	if !ok {
		return nil, "", ErrNotFound
	}
	return append([]byte(nil), obj.data...), obj.mime, nil
}

func (m *MemoryStore) URL(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.liveLocked(key)
	if !ok {
		return "", ErrNotFound
	}
	return "data:" + obj.mime + ";base64," + base64.StdEncoding.EncodeToString(obj.data), nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Len reports the number of live objects.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	return len(m.objects)
}

func (m *MemoryStore) liveLocked(key string) (memoryObject, bool) {
	obj, ok := m.objects[key]
	if !ok {
		return memoryObject{}, false
	}
	if !obj.expires.IsZero() && !m.now().Before(obj.expires) {
		delete(m.objects, key)
		return memoryObject{}, false
	}
	return obj, true
}

func (m *MemoryStore) sweepLocked() {
	now := m.now()
	for k, obj := range m.objects {
		if !obj.expires.IsZero() && !now.Before(obj.expires) {
			delete(m.objects, k)
		}
	}
}
