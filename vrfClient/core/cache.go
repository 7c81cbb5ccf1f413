package core

import "sync"

// SignatureCache is a bounded insertion-ordered set of transaction
// signatures. When full, the oldest inserted entries are evicted first.
type SignatureCache struct {
	mu       sync.RWMutex
	capacity int
	order    []string
	index    map[string]struct{}
}

// NewSignatureCache creates a cache holding at most capacity signatures.
func NewSignatureCache(capacity int) *SignatureCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &SignatureCache{
		capacity: capacity,
		order:    make([]string, 0, capacity),
		index:    make(map[string]struct{}, capacity),
	}
}

// Extend evicts enough of the oldest entries to make room for sigs, then
// appends the ones not already present, keeping their order. Entries already
// present keep their position.
func (c *SignatureCache) Extend(sigs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if excess := len(c.order) + len(sigs) - c.capacity; excess > 0 {
		c.evict(excess)
	}
	for _, sig := range sigs {
		c.add(sig)
	}
	if excess := len(c.order) - c.capacity; excess > 0 {
		c.evict(excess)
	}
}

func (c *SignatureCache) add(sig string) {
	if _, ok := c.index[sig]; ok {
		return
	}
	c.index[sig] = struct{}{}
	c.order = append(c.order, sig)
}

func (c *SignatureCache) evict(n int) {
	if n > len(c.order) {
		n = len(c.order)
	}
	for _, sig := range c.order[:n] {
		delete(c.index, sig)
	}
	c.order = append(c.order[:0], c.order[n:]...)
}

// Contains reports whether sig is cached.
func (c *SignatureCache) Contains(sig string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.index[sig]
	return ok
}

// Last returns the most recently inserted signature.
func (c *SignatureCache) Last() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.order) == 0 {
		return "", false
	}
	return c.order[len(c.order)-1], true
}

// Len returns the number of cached signatures.
func (c *SignatureCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}
