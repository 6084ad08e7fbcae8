package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryCache is an in-process Cache for tests and single-node
// deployments. Expired string entries are dropped lazily on read and
// by a background sweep.
type MemoryCache struct {
	mu      sync.RWMutex
	strings map[string]memoryEntry
	sets    map[string]map[string]struct{}
	lists   map[string][]string

	cancel context.CancelFunc
}

// NewMemoryCache creates an empty in-memory cache and starts its
// expiration sweep.
func NewMemoryCache() *MemoryCache {
	c := &MemoryCache{
		strings: make(map[string]memoryEntry),
		sets:    make(map[string]map[string]struct{}),
		lists:   make(map[string][]string),
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.sweepLoop(ctx)
	return c
}

// Close stops the background sweep.
func (c *MemoryCache) Close() {
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *MemoryCache) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(time.Now())
		}
	}
}

func (c *MemoryCache) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.strings {
		if entry.expired(now) {
			delete(c.strings, key)
		}
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	entry, ok := c.strings[key]
	c.mu.RUnlock()

	if !ok {
		return "", false, nil
	}
	if entry.expired(time.Now()) {
		c.mu.Lock()
		// A concurrent Set may have refreshed the key between the
		// locks; only drop it if it is still expired.
		if current, ok := c.strings[key]; ok && current.expired(time.Now()) {
			delete(c.strings, key)
		}
		c.mu.Unlock()
		return "", false, nil
	}
	return entry.value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	c.strings[key] = entry
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.strings, key)
	delete(c.sets, key)
	delete(c.lists, key)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) SAdd(_ context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.sets[key]
	if !ok {
		set = make(map[string]struct{}, len(members))
		c.sets[key] = set
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
	return nil
}

func (c *MemoryCache) SRem(_ context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.sets[key]
	if !ok {
		return nil
	}
	for _, m := range members {
		delete(set, m)
	}
	if len(set) == 0 {
		delete(c.sets, key)
	}
	return nil
}

func (c *MemoryCache) SMembers(_ context.Context, key string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	set := c.sets[key]
	members := make([]string, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	return members, nil
}

func (c *MemoryCache) RPush(_ context.Context, key, value string) error {
	c.mu.Lock()
	c.lists[key] = append(c.lists[key], value)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) LPop(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.lists[key]
	if len(list) == 0 {
		return "", false, nil
	}
	head := list[0]
	if len(list) == 1 {
		delete(c.lists, key)
	} else {
		c.lists[key] = list[1:]
	}
	return head, true, nil
}

func (c *MemoryCache) LLen(_ context.Context, key string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int64(len(c.lists[key])), nil
}
