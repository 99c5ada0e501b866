package data

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"battery-ecm/internal/ecm"
)

// CachedModel is a built model held by the server between requests.
type CachedModel struct {
	ID        string
	Key       string
	Name      string
	Model     *ecm.Model
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ModelCache keeps fitted models in memory for a fixed TTL. Fits are slow,
// so repeated builds of the same dataset and options reuse the cached model
// through its key. A nil *ModelCache is valid and caches nothing.
type ModelCache struct {
	mu    sync.RWMutex
	store map[string]*CachedModel
	byKey map[string]string
	ttl   time.Duration
	now   func() time.Time
	done  chan struct{}
	once  sync.Once
}

var globalCache *ModelCache
var cacheOnce sync.Once

// GetCache returns the process-wide cache. MODEL_CACHE_TTL overrides the
// one hour default; MODEL_CACHE=off disables caching and returns nil.
func GetCache() *ModelCache {
	if strings.EqualFold(os.Getenv("MODEL_CACHE"), "off") {
		return nil
	}
	cacheOnce.Do(func() {
		ttl := 1 * time.Hour
		if s := os.Getenv("MODEL_CACHE_TTL"); s != "" {
			if parsed, err := time.ParseDuration(s); err == nil {
				ttl = parsed
			}
		}
		globalCache = NewModelCache(ttl, 5*time.Minute)
	})
	return globalCache
}

// NewModelCache starts a cache whose expired entries are swept every
// interval until Close.
func NewModelCache(ttl, interval time.Duration) *ModelCache {
	c := &ModelCache{
		store: make(map[string]*CachedModel),
		byKey: make(map[string]string),
		ttl:   ttl,
		now:   time.Now,
		done:  make(chan struct{}),
	}
	if interval > 0 {
		go c.cleanup(interval)
	}
	return c
}

// Put stores m under a fresh ID. A non-empty key replaces any earlier model
// stored with the same key.
func (c *ModelCache) Put(key, name string, m *ecm.Model) *CachedModel {
	if c == nil {
		return &CachedModel{ID: uuid.NewString(), Key: key, Name: name, Model: m}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry := &CachedModel{
		ID:        uuid.NewString(),
		Key:       key,
		Name:      name,
		Model:     m,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}
	if key != "" {
		if old, ok := c.byKey[key]; ok {
			delete(c.store, old)
		}
		c.byKey[key] = entry.ID
	}
	c.store[entry.ID] = entry
	return entry
}

// Get returns an unexpired model by ID.
func (c *ModelCache) Get(id string) (*CachedModel, bool) {
	if c == nil {
		return nil, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.store[id]
	if !ok || c.now().After(entry.ExpiresAt) {
		return nil, false
	}
	return entry, true
}

// Lookup returns an unexpired model by build key.
func (c *ModelCache) Lookup(key string) (*CachedModel, bool) {
	if c == nil || key == "" {
		return nil, false
	}
	c.mu.RLock()
	id, ok := c.byKey[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return c.Get(id)
}

// List returns unexpired entries, oldest first.
func (c *ModelCache) List() []*CachedModel {
	if c == nil {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	out := make([]*CachedModel, 0, len(c.store))
	for _, e := range c.store {
		if !now.After(e.ExpiresAt) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Delete removes a model and reports whether it was present.
func (c *ModelCache) Delete(id string) bool {
	if c == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.store[id]
	if !ok {
		return false
	}
	c.remove(entry)
	return true
}

// Clear removes all entries from the cache
func (c *ModelCache) Clear() {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.store = make(map[string]*CachedModel)
	c.byKey = make(map[string]string)
}

// Close stops the sweeper.
func (c *ModelCache) Close() {
	if c == nil {
		return
	}
	c.once.Do(func() { close(c.done) })
}

func (c *ModelCache) remove(e *CachedModel) {
	delete(c.store, e.ID)
	if e.Key != "" && c.byKey[e.Key] == e.ID {
		delete(c.byKey, e.Key)
	}
}

// sweep drops expired entries.
func (c *ModelCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, e := range c.store {
		if now.After(e.ExpiresAt) {
			c.remove(e)
		}
	}
}

// cleanup periodically removes expired entries
func (c *ModelCache) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// BuildKey creates a cache key from the inputs of a model build.
func BuildKey(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(hash[:])
}
