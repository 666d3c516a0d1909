package core

import (
	"sync"

	"github.com/signalsfoundry/impact-simulator/model"
)

const defaultImpactCacheSize = 256

type impactKey struct {
	diameter, velocity, density float64
}

// ImpactCache memoizes ComputeImpactProfile results. The calculator is pure,
// so entries never go stale; the cache only bounds its size. A nil cache is
// valid and computes every time.
type ImpactCache struct {
	mu      sync.RWMutex
	results map[impactKey]model.ImpactResult
	max     int
	hits    int64
	misses  int64
	evicts  int64
}

// NewImpactCache creates a cache holding at most max entries; zero uses a
// default.
func NewImpactCache(max int) *ImpactCache {
	if max <= 0 {
		max = defaultImpactCacheSize
	}
	return &ImpactCache{
		results: make(map[impactKey]model.ImpactResult),
		max:     max,
	}
}

func keyFor(p model.ImpactorProfile) impactKey {
	density := p.DensityKgPerM3
	if density == 0 {
		density = DefaultDensityKgPerM3
	}
	return impactKey{diameter: p.DiameterMeters, velocity: p.VelocityKmPerSec, density: density}
}

// Compute returns the cached result for p, computing and storing it on a
// miss. Invalid profiles are never cached. The boolean reports a hit.
func (c *ImpactCache) Compute(p model.ImpactorProfile) (model.ImpactResult, bool, error) {
	if c == nil {
		res, err := ComputeImpactProfile(p)
		return res, false, err
	}
	if err := ValidateImpactor(p); err != nil {
		return model.ImpactResult{}, false, err
	}

	key := keyFor(p)
	c.mu.RLock()
	res, ok := c.results[key]
	c.mu.RUnlock()
	if ok {
		c.recordHit()
		return res, true, nil
	}

	c.recordMiss()
	res, err := ComputeImpactProfile(p)
	if err != nil {
		return model.ImpactResult{}, false, err
	}

	c.mu.Lock()
	if len(c.results) >= c.max {
		// Full: drop an arbitrary entry.
		for k := range c.results {
			delete(c.results, k)
			c.evicts++
			break
		}
	}
	c.results[key] = res
	c.mu.Unlock()
	return res, false, nil
}

// Len returns the number of cached results.
func (c *ImpactCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.results)
}

func (c *ImpactCache) Stats() (hits, misses, evictions int64) {
	if c == nil {
		return 0, 0, 0
	}
	c.mu.RLock()
	hits, misses, evictions = c.hits, c.misses, c.evicts
	c.mu.RUnlock()
	return
}

func (c *ImpactCache) recordHit() {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}

func (c *ImpactCache) recordMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}
