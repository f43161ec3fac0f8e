package device

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// Repository knows how to obtain a loaded device by part name.
type Repository interface {
	Get(name string) (*Device, error)
}

// Loader produces a device for a part name, e.g. by reading a device
// database from disk.
type Loader func(name string) (*Device, error)

// MemoryRepository keeps up to Capacity loaded devices and evicts the least
// recently used one when a new device is loaded. Devices added with Pin are
// never evicted.
type MemoryRepository struct {
	loader Loader
	cache  *lru.Cache[string, *Device]
	loads  singleflight.Group

	mu     sync.RWMutex
	pinned map[string]*Device
}

// NewMemoryRepository creates a repository backed by loader. A capacity below
// one is treated as one.
func NewMemoryRepository(loader Loader, capacity int) *MemoryRepository {
	if capacity < 1 {
		capacity = 1
	}
	// lru.New only fails for a non-positive size.
	cache, _ := lru.New[string, *Device](capacity)
	return &MemoryRepository{
		loader: loader,
		cache:  cache,
		pinned: make(map[string]*Device),
	}
}

// Pin registers a preloaded device that is exempt from eviction.
func (r *MemoryRepository) Pin(d *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pinned[d.Name] = d
}

// Get implements the Repository interface. Concurrent requests for the same
// part share one load.
func (r *MemoryRepository) Get(name string) (*Device, error) {
	r.mu.RLock()
	d, ok := r.pinned[name]
	r.mu.RUnlock()
	if ok {
		return d, nil
	}
	if d, ok := r.cache.Get(name); ok {
		return d, nil
	}
	if r.loader == nil {
		return nil, errors.Errorf("device: no device %q and no loader configured", name)
	}

	v, err, _ := r.loads.Do(name, func() (interface{}, error) {
		if d, ok := r.cache.Get(name); ok {
			return d, nil
		}
		d, err := r.loader(name)
		if err != nil {
			return nil, err
		}
		r.cache.Add(name, d)
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Device), nil
}

// Contains reports whether name is currently held without loading it.
func (r *MemoryRepository) Contains(name string) bool {
	r.mu.RLock()
	_, ok := r.pinned[name]
	r.mu.RUnlock()
	return ok || r.cache.Contains(name)
}

// Len returns the number of cached, unpinned devices.
func (r *MemoryRepository) Len() int {
	return r.cache.Len()
}

// Evict drops name from the cache.
func (r *MemoryRepository) Evict(name string) {
	r.mu.Lock()
	delete(r.pinned, name)
	r.mu.Unlock()
	r.cache.Remove(name)
}
