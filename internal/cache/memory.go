package cache

import (
	"strings"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is a process-local Backend. It is used when persistence is
// disabled and in tests.
type MemoryStore struct {
	c *gocache.Cache
}

// NewMemoryStore creates an empty in-memory store whose entries never expire.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{c: gocache.New(gocache.NoExpiration, 0)}
}

func memKey(namespace, key string) string { return namespace + "/" + key }

// Get implements Backend.
func (m *MemoryStore) Get(namespace, key string) (Entry, bool, error) {
	v, ok := m.c.Get(memKey(namespace, key))
	if !ok {
		return Entry{}, false, nil
	}
	return v.(Entry), true, nil
}

// Put implements Backend.
func (m *MemoryStore) Put(e Entry) error {
	m.c.Set(memKey(e.Namespace, e.Key), e, gocache.NoExpiration)
	return nil
}

// Delete implements Backend.
func (m *MemoryStore) Delete(namespace, key string) error {
	m.c.Delete(memKey(namespace, key))
	return nil
}

// Clear implements Backend.
func (m *MemoryStore) Clear(namespace string) error {
	prefix := namespace + "/"
	for k := range m.c.Items() {
		if strings.HasPrefix(k, prefix) {
			m.c.Delete(k)
		}
	}
	return nil
}

// Close implements Backend.
func (m *MemoryStore) Close() error {
	m.c.Flush()
	return nil
}
