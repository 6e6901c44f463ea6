package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolGetPut(t *testing.T) {
	p := New(func() *[]byte {
		b := make([]byte, 0, 64)
		return &b
	}, func(b *[]byte) {
		*b = (*b)[:0]
	})

	b := p.Get()
	*b = append(*b, 1, 2, 3)
	p.Put(b)

	// Reset ran on the way back in.
	b2 := p.Get()
	assert.Empty(t, *b2)
	p.Put(b2)
}

func TestPoolStats(t *testing.T) {
	p := New(func() *int { return new(int) }, nil)
	a := p.Get()
	b := p.Get()
	allocated, inUse := p.Stats()
	assert.GreaterOrEqual(t, allocated, int64(2))
	assert.Equal(t, int64(2), inUse)
	p.Put(a)
	p.Put(b)
	_, inUse = p.Stats()
	assert.Equal(t, int64(0), inUse)
}

func TestPoolConcurrent(t *testing.T) {
	p := New(func() *int { return new(int) }, func(v *int) { *v = 0 })
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				v := p.Get()
				*v = j
				p.Put(v)
			}
		}()
	}
	wg.Wait()
}

func TestObjectPoolClearRunsCleanupsInReverse(t *testing.T) {
	p := NewObjectPool()
	var order []int
	p.AddCleanup(func() { order = append(order, 1) })
	p.AddCleanup(func() { order = append(order, 2) })

	obj := p.Add("shared schema")
	require.Equal(t, "shared schema", obj)

	p.Clear()
	assert.Equal(t, []int{2, 1}, order)

	// Clear is once-only.
	p.Clear()
	assert.Equal(t, []int{2, 1}, order)
}
