package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate_UniqueUnderConcurrency(t *testing.T) {
	gen := &Snowflake{workerID: 1}

	const goroutines = 8
	const perGoroutine = 1000

	var mu sync.Mutex
	seen := make(map[int64]bool, goroutines*perGoroutine)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := make([]int64, 0, perGoroutine)
			for i := 0; i < perGoroutine; i++ {
				ids = append(ids, gen.Generate())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range ids {
				assert.False(t, seen[id], "duplicate id %d", id)
				seen[id] = true
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perGoroutine)
}

func TestGenerate_MonotonicWithinWorker(t *testing.T) {
	gen := &Snowflake{workerID: 1}

	prev := gen.Generate()
	for i := 0; i < 1000; i++ {
		next := gen.Generate()
		assert.Greater(t, next, prev)
		prev = next
	}
}

func TestBusinessNumberPrefixes(t *testing.T) {
	assert.True(t, strings.HasPrefix(GenerateCouponNo(), "CPN"))
	assert.True(t, strings.HasPrefix(GenerateRedemptionNo(), "RDM"))
	assert.True(t, strings.HasPrefix(GenerateLogNo(), "LOG"))
	assert.True(t, strings.HasPrefix(GenerateRequestNo(), "REQ"))

	// prefix + 14-digit timestamp + 8-digit suffix
	assert.Len(t, GenerateCouponNo(), 3+14+8)
}
