package cache

import (
	"context"

	"github.com/go-redis/redis/v8"
	jsoniter "github.com/json-iterator/go"
	"github.com/yaoapp/kun/log"

	"github.com/yaoapp/duan/errs"
)

// Redis caches vectors in a redis server, shared between instances.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

// NewRedis connects to the redis server at url and pings it.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	log.Info("Connecting to redis at %s", url)

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errs.Wrap(errs.Validation, err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errs.Wrap(errs.Http, err)
	}
	return &Redis{rdb: rdb, prefix: "duan:"}, nil
}

// Get looks up a key's vector from the cache.
func (c *Redis) Get(key string) ([]float64, bool) {
	val, err := c.rdb.Get(context.Background(), c.prefix+key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Error("Cache redis Get %s: %s", key, err.Error())
		}
		return nil, false
	}

	var vector []float64
	if err := jsoniter.Unmarshal([]byte(val), &vector); err != nil {
		log.Error("Cache redis Get %s: %s val: %s", key, err.Error(), val)
		return nil, false
	}
	return vector, true
}

// Set adds a vector to the cache. Keys are content hashes, so entries
// do not expire.
func (c *Redis) Set(key string, vector []float64) error {
	bytes, err := jsoniter.Marshal(vector)
	if err != nil {
		log.Error("Cache redis Set %s: %s", key, err.Error())
		return errs.Wrap(errs.Json, err)
	}

	if err := c.rdb.Set(context.Background(), c.prefix+key, bytes, 0).Err(); err != nil {
		log.Error("Cache redis Set %s: %s", key, err.Error())
		return errs.Wrap(errs.Http, err)
	}
	return nil
}

// Del purges a key from the cache.
func (c *Redis) Del(key string) error {
	if err := c.rdb.Del(context.Background(), c.prefix+key).Err(); err != nil {
		return errs.Wrap(errs.Http, err)
	}
	return nil
}

// Has checks for a key.
func (c *Redis) Has(key string) bool {
	n, _ := c.rdb.Exists(context.Background(), c.prefix+key).Result()
	return n == 1
}

// Len returns the number of cached vectors. Scans the keyspace, not
// O(1).
func (c *Redis) Len() int {
	keys, err := c.rdb.Keys(context.Background(), c.prefix+"*").Result()
	if err != nil {
		log.Error("Cache redis Len: %s", err.Error())
		return 0
	}
	return len(keys)
}

// Clear drops every entry under the cache prefix.
func (c *Redis) Clear() {
	keys, err := c.rdb.Keys(context.Background(), c.prefix+"*").Result()
	if err != nil {
		log.Error("Cache redis Clear: %s", err.Error())
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(context.Background(), keys...).Err(); err != nil {
		log.Error("Cache redis Clear: %s", err.Error())
	}
}
