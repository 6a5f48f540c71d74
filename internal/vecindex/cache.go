package vecindex

import (
	"container/list"
	"sync"
)

// EvictionPolicy decides which resident indexes to drop.
type EvictionPolicy interface {
	// Touch records an access or an insert and returns names to evict.
	Touch(name string) []string
	// Forget removes name from the policy's bookkeeping.
	Forget(name string)
}

type neverEvict struct{}

// NeverEvict keeps every loaded index resident for the process lifetime.
func NeverEvict() EvictionPolicy { return neverEvict{} }

func (neverEvict) Touch(string) []string { return nil }
func (neverEvict) Forget(string)         {}

type lru struct {
	size  int
	order *list.List
	elems map[string]*list.Element
}

// LRU keeps at most size indexes resident, evicting the least recently used.
// size <= 0 behaves like NeverEvict.
func LRU(size int) EvictionPolicy {
	if size <= 0 {
		return NeverEvict()
	}
	return &lru{size: size, order: list.New(), elems: make(map[string]*list.Element)}
}

func (l *lru) Touch(name string) []string {
	if e, ok := l.elems[name]; ok {
		l.order.MoveToFront(e)
		return nil
	}
	l.elems[name] = l.order.PushFront(name)
	var evicted []string
	for l.order.Len() > l.size {
		back := l.order.Back()
		victim := back.Value.(string)
		l.order.Remove(back)
		delete(l.elems, victim)
		evicted = append(evicted, victim)
	}
	return evicted
}

func (l *lru) Forget(name string) {
	if e, ok := l.elems[name]; ok {
		l.order.Remove(e)
		delete(l.elems, name)
	}
}

// Cache holds resident indexes by collection name.
type Cache struct {
	mu      sync.Mutex
	policy  EvictionPolicy
	entries map[string]*Flat
}

// NewCache creates a cache. A nil policy means NeverEvict.
func NewCache(policy EvictionPolicy) *Cache {
	if policy == nil {
		policy = NeverEvict()
	}
	return &Cache{policy: policy, entries: make(map[string]*Flat)}
}

// Get returns the resident index for name.
func (c *Cache) Get(name string) (*Flat, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.entries[name]
	if ok {
		c.evict(c.policy.Touch(name))
	}
	return f, ok
}

// Put stores f as the resident index for name.
func (c *Cache) Put(name string, f *Flat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = f
	c.evict(c.policy.Touch(name))
}

// Evict drops the resident index for name.
func (c *Cache) Evict(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, name)
	c.policy.Forget(name)
}

// Len returns the number of resident indexes.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) evict(names []string) {
	for _, n := range names {
		delete(c.entries, n)
	}
}
