package facespace

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreSwap(t *testing.T) {
	var s Store
	assert.Nil(t, s.Load())

	first := &Model{Samples: 1}
	assert.Nil(t, s.Swap(first))
	assert.Same(t, first, s.Load())

	second := &Model{Samples: 2}
	assert.Same(t, first, s.Swap(second))
	assert.Same(t, second, s.Load())
}

func TestStoreConcurrentReaders(t *testing.T) {
	var s Store
	s.Swap(&Model{Samples: 0})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.NotNil(t, s.Load())
			}
		}()
	}
	for i := 1; i <= 50; i++ {
		s.Swap(&Model{Samples: i})
	}
	wg.Wait()
	assert.Equal(t, 50, s.Load().Samples)
}
