package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	key := Key("fembed", "Xenova/bge-base-en-v1.5", "Hello world.")
	assert.Contains(t, key, "emb:fembed:Xenova/bge-base-en-v1.5:")

	// Same text, same key; different text, different key.
	assert.Equal(t, key, Key("fembed", "Xenova/bge-base-en-v1.5", "Hello world."))
	assert.NotEqual(t, key, Key("fembed", "Xenova/bge-base-en-v1.5", "Goodbye world."))
	assert.NotEqual(t, key, Key("openai", "Xenova/bge-base-en-v1.5", "Hello world."))
}

func TestLRU(t *testing.T) {
	c, err := NewLRU(16)
	require.NoError(t, err)

	key := Key("fembed", "test-model", "some text")
	_, ok := c.Get(key)
	assert.False(t, ok)
	assert.False(t, c.Has(key))

	require.NoError(t, c.Set(key, []float64{0.1, 0.2, 0.3}))
	assert.True(t, c.Has(key))
	assert.Equal(t, 1, c.Len())

	vector, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vector)

	require.NoError(t, c.Del(key))
	assert.False(t, c.Has(key))

	require.NoError(t, c.Set(key, []float64{1}))
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestLRUEvicts(t *testing.T) {
	c, err := NewLRU(2)
	require.NoError(t, err)

	require.NoError(t, c.Set("a", []float64{1}))
	require.NoError(t, c.Set("b", []float64{2}))
	require.NoError(t, c.Set("c", []float64{3}))

	assert.Equal(t, 2, c.Len())
}
