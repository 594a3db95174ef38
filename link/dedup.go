package link

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// FloodFilter remembers recently seen floods for ttl
type FloodFilter struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[FloodKey, struct{}]
}

func NewFloodFilter(ttl time.Duration) *FloodFilter {
	return &FloodFilter{
		cache: ttlcache.New[FloodKey, struct{}](
			ttlcache.WithTTL[FloodKey, struct{}](ttl),
			ttlcache.WithDisableTouchOnHit[FloodKey, struct{}](),
		),
	}
}

// Seen reports whether key was already seen, and remembers it otherwise
func (f *FloodFilter) Seen(key FloodKey) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache.DeleteExpired()
	if f.cache.Has(key) {
		return true
	}
	f.cache.Set(key, struct{}{}, ttlcache.DefaultTTL)
	return false
}

// Mark remembers key without checking it
func (f *FloodFilter) Mark(key FloodKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache.Set(key, struct{}{}, ttlcache.DefaultTTL)
}

func (f *FloodFilter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache.DeleteExpired()
	return f.cache.Len()
}
