// Package memo keeps a bounded set of computed results keyed by text.
package memo

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// Default memo configuration.
const defaultMaxSize = 1024

// Key hashes a namespace (e.g. a model name) and a text into a memo key.
func Key(namespace, text string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(namespace)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(text)
	return d.Sum64()
}

// Memo stores results of a deterministic computation.
type Memo[V any] interface {
	// Get returns the value stored under key, if any.
	Get(ctx context.Context, key uint64) (V, bool)
	// Put stores v under key, evicting the oldest entry when full.
	Put(ctx context.Context, key uint64, v V)
	// Size returns the current number of entries.
	Size() int64
}

// node is an entry of the insertion-ordered list.
type node[V any] struct {
	key        uint64
	val        V
	prev, next *node[V]
}

// reset clears the node state for reuse
func (n *node[V]) reset() {
	var zero V
	n.key = 0
	n.val = zero
	n.prev, n.next = nil, nil
}

// inMemory implements Memo with a map plus a doubly linked list in
// insertion order. The head is the newest entry, the tail the oldest.
// For maxSize <= 0 the memo is disabled: Put is a no-op and Get misses.
type inMemory[V any] struct {
	mu       sync.Mutex
	entries  map[uint64]*node[V]
	head     *node[V]
	tail     *node[V]
	maxSize  int
	size     atomic.Int64
	nodePool sync.Pool
}

// Option applies a configuration option to the in-memory memo.
type Option func(*options)

type options struct {
	maxSize int
}

// WithMaxSize sets the maximum number of entries. Zero or less disables the memo.
func WithMaxSize(maxSize int) Option {
	return func(o *options) {
		o.maxSize = maxSize
	}
}

// NewInMemory creates a bounded in-memory memo.
func NewInMemory[V any](opts ...Option) Memo[V] {
	o := options{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(&o)
	}
	m := &inMemory[V]{
		entries: make(map[uint64]*node[V]),
		maxSize: o.maxSize,
	}
	m.nodePool.New = func() interface{} { return &node[V]{} }
	return m
}

func (m *inMemory[V]) Get(_ context.Context, key uint64) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n, ok := m.entries[key]; ok {
		return n.val, true
	}
	var zero V
	return zero, false
}

func (m *inMemory[V]) Put(_ context.Context, key uint64, v V) {
	if m.maxSize <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if n, ok := m.entries[key]; ok {
		n.val = v
		return
	}
	if len(m.entries) >= m.maxSize {
		m.evictOldest()
	}

	n := m.nodePool.Get().(*node[V])
	n.key = key
	n.val = v
	n.next = m.head
	if m.head != nil {
		m.head.prev = n
	}
	m.head = n
	if m.tail == nil {
		m.tail = n
	}
	m.entries[key] = n
	m.size.Add(1)
}

// evictOldest drops the tail. Must be called with m.mu held.
func (m *inMemory[V]) evictOldest() {
	n := m.tail
	if n == nil {
		return
	}
	m.tail = n.prev
	if m.tail != nil {
		m.tail.next = nil
	} else {
		m.head = nil
	}
	delete(m.entries, n.key)
	n.reset()
	m.nodePool.Put(n)
	m.size.Add(-1)
}

func (m *inMemory[V]) Size() int64 {
	return m.size.Load()
}
