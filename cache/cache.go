// Package cache holds embedding vectors keyed by provider, model and
// content hash so repeated texts skip the embedder.
package cache

import (
	"crypto/sha256"
	"fmt"
)

// Cache is a vector cache. Lookups are content-addressed, so entries
// never go stale and carry no TTL.
type Cache interface {
	Get(key string) ([]float64, bool)
	Set(key string, vector []float64) error
	Del(key string) error
	Has(key string) bool
	Len() int
	Clear()
}

// Key builds the cache key for a text embedded with the given provider
// and model.
func Key(provider string, model string, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("emb:%s:%s:%x", provider, model, sum)
}
