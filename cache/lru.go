package cache

import (
	lru "github.com/hashicorp/golang-lru"
)

// LRU is an in-process ARC cache. The default when no redis is
// configured.
type LRU struct {
	lru *lru.ARCCache
}

// NewLRU creates an ARC cache holding up to size vectors.
func NewLRU(size int) (*LRU, error) {
	arc, err := lru.NewARC(size)
	if err != nil {
		return nil, err
	}
	return &LRU{lru: arc}, nil
}

// Get looks up a key's vector from the cache.
func (c *LRU) Get(key string) ([]float64, bool) {
	value, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	vector, ok := value.([]float64)
	return vector, ok
}

// Set adds a vector to the cache.
func (c *LRU) Set(key string, vector []float64) error {
	c.lru.Add(key, vector)
	return nil
}

// Del purges a key from the cache.
func (c *LRU) Del(key string) error {
	c.lru.Remove(key)
	return nil
}

// Has checks for a key without updating recency or frequency.
func (c *LRU) Has(key string) bool {
	_, has := c.lru.Peek(key)
	return has
}

// Len returns the number of cached vectors.
func (c *LRU) Len() int {
	return c.lru.Len()
}

// Clear drops every entry.
func (c *LRU) Clear() {
	c.lru.Purge()
}
