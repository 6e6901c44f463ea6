// Package pool provides object pooling for the scan layer.
//
// Pool is a typed wrapper over sync.Pool used for chunk reuse on hot read
// loops. ObjectPool is a query-fragment-lifetime arena: objects and cleanup
// hooks registered during provider Init are released together when the
// fragment finishes.
package pool

import (
	"sync"
	"sync/atomic"
)

// Pool represents a generic object pool with type safety.
// It wraps sync.Pool with statistics tracking and automatic reset.
// The pool is safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	new   func() T
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
	}
}

// New creates a new typed pool with custom allocation and reset functions.
// The reset function, when non-nil, is called before returning an object to
// the pool.
func New[T any](new func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{
		new:   new,
		reset: reset,
	}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		return new()
	}
	return p
}

// Get retrieves an object from the pool, creating one when the pool is empty.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.inUse, 1)
	return p.pool.Get().(T)
}

// Put returns an object to the pool for reuse.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Stats returns the total objects allocated and the number currently in use.
func (p *Pool[T]) Stats() (allocated, inUse int64) {
	return atomic.LoadInt64(&p.stats.allocated), atomic.LoadInt64(&p.stats.inUse)
}

// ObjectPool holds objects whose lifetime is bound to one query fragment.
// Providers register shared state (read schemas, pruned partition lists) and
// cleanup hooks during Init; the fragment clears the pool exactly once after
// all drivers finish.
type ObjectPool struct {
	mu       sync.Mutex
	objects  []interface{}
	cleanups []func()
	cleared  bool
}

// NewObjectPool creates an empty fragment-lifetime pool.
func NewObjectPool() *ObjectPool {
	return &ObjectPool{}
}

// Add registers an object to keep alive until Clear and returns it.
func (p *ObjectPool) Add(obj interface{}) interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.objects = append(p.objects, obj)
	return obj
}

// AddCleanup registers a hook invoked by Clear, in reverse registration order.
func (p *ObjectPool) AddCleanup(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleanups = append(p.cleanups, fn)
}

// Clear runs cleanup hooks and drops held objects. Safe to call repeatedly;
// only the first call has any effect.
func (p *ObjectPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cleared {
		return
	}
	p.cleared = true
	for i := len(p.cleanups) - 1; i >= 0; i-- {
		p.cleanups[i]()
	}
	p.cleanups = nil
	p.objects = nil
}
