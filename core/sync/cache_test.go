package sync

import (
	"fmt"
	stdsync "sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup_StoreAndResolve(t *testing.T) {
	cache := NewLookup()

	_, ok := cache.Resolve("campaign|title", "Spring")
	assert.False(t, ok)

	cache.Store("campaign|title", "Spring", 7)
	id, ok := cache.Resolve("campaign|title", "Spring")
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)

	// Overwrite
	cache.Store("campaign|title", "Spring", 8)
	id, _ = cache.Resolve("campaign|title", "Spring")
	assert.Equal(t, int64(8), id)
}

func TestLookup_NotFoundIsCached(t *testing.T) {
	cache := NewLookup()

	cache.Store("option_group", "missing", 0)
	id, ok := cache.Resolve("option_group", "missing")
	assert.True(t, ok)
	assert.Zero(t, id)
}

func TestLookup_ConcurrentAccess(t *testing.T) {
	cache := NewLookup()

	var wg stdsync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			cache.Store(fmt.Sprintf("category-%d", n%5), fmt.Sprintf("key-%d", n), int64(n))
		}(i)
		go func(n int) {
			defer wg.Done()
			cache.Resolve(fmt.Sprintf("category-%d", n%5), fmt.Sprintf("key-%d", n))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 50; i++ {
		id, ok := cache.Resolve(fmt.Sprintf("category-%d", i%5), fmt.Sprintf("key-%d", i))
		assert.True(t, ok)
		assert.Equal(t, int64(i), id)
	}
}
