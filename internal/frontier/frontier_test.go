package frontier

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryClaimOnce(t *testing.T) {
	t.Parallel()

	f := New(0)
	assert.True(t, f.TryClaim("https://example.com"))
	assert.False(t, f.TryClaim("https://example.com"))
	assert.True(t, f.TryClaim("https://example.com/a"))
	assert.False(t, f.TryClaim(""))

	assert.Equal(t, 2, f.Len())
	assert.Equal(t, []string{"https://example.com", "https://example.com/a"}, f.Visited())
}

func TestTryClaimConcurrentSingleWinner(t *testing.T) {
	t.Parallel()

	const (
		goroutines = 64
		urls       = 200
	)
	f := New(urls)
	wins := make([]atomic.Int32, urls)

	var start sync.WaitGroup
	start.Add(1)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start.Wait()
			for i := 0; i < urls; i++ {
				if f.TryClaim(fmt.Sprintf("https://example.com/%d", i)) {
					wins[i].Add(1)
				}
			}
		}()
	}
	start.Done()
	wg.Wait()

	require.Equal(t, urls, f.Len())
	for i := range wins {
		assert.EqualValues(t, 1, wins[i].Load(), "url %d claimed %d times", i, wins[i].Load())
	}
}
