package store

import (
	"container/list"
	"context"
	"sync"
)

type memoryEntry struct {
	rkey       string
	insertedAt int64
	value      Value
}

// Memory is an in-memory PostStore backed by an insertion-ordered list and an
// rkey index. It satisfies the same operation contract as the SQL-backed
// store and is the backend of choice when no database path is configured.
type Memory struct {
	mu       sync.Mutex
	maxItems int
	maxAge   int64 // milliseconds
	order    *list.List
	index    map[string]*list.Element
}

var _ PostStore = (*Memory)(nil)

// NewMemory creates an in-memory store bounded by maxItems entries and
// maxAge milliseconds of logical time.
func NewMemory(maxItems int, maxAge int64) *Memory {
	return &Memory{
		maxItems: maxItems,
		maxAge:   maxAge,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

func (m *Memory) Put(_ context.Context, t int64, rkey string, v Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.index[rkey]; !ok {
		langsCopy := append([]string(nil), v.Langs...)
		v.Langs = langsCopy
		m.index[rkey] = m.order.PushBack(&memoryEntry{rkey: rkey, insertedAt: t, value: v})
	}
	m.trim(t)
	return nil
}

func (m *Memory) Update(_ context.Context, t int64, rkey string, v Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.index[rkey]; ok {
		entry := el.Value.(*memoryEntry)
		v.Langs = append([]string(nil), v.Langs...)
		entry.value = v // insertion time stays
	}
	m.trim(t)
	return nil
}

func (m *Memory) Take(_ context.Context, now int64, rkey string) (*TakenPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var taken *TakenPost
	if el, ok := m.index[rkey]; ok {
		entry := el.Value.(*memoryEntry)
		m.order.Remove(el)
		delete(m.index, rkey)
		if entry.insertedAt >= now-m.maxAge {
			v := entry.value
			v.Langs = append([]string(nil), v.Langs...)
			taken = &TakenPost{Value: v, Age: now - entry.insertedAt}
		}
	}
	m.trim(now)
	return taken, nil
}

func (m *Memory) Size(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(m.order.Len()), nil
}

func (m *Memory) Oldest(_ context.Context) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	front := m.order.Front()
	if front == nil {
		return 0, false, nil
	}
	return front.Value.(*memoryEntry).insertedAt, true, nil
}

func (m *Memory) Newest(_ context.Context) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	back := m.order.Back()
	if back == nil {
		return 0, false, nil
	}
	return back.Value.(*memoryEntry).insertedAt, true, nil
}

func (m *Memory) Trim(_ context.Context, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trim(now)
	return nil
}

func (m *Memory) Close() error { return nil }

// trim walks from the oldest insertion until the entry count is within
// bounds and the next entry is young enough. Callers hold the lock.
func (m *Memory) trim(now int64) {
	sizeOver := m.order.Len() - m.maxItems
	minTime := now - m.maxAge

	for el := m.order.Front(); el != nil; {
		entry := el.Value.(*memoryEntry)
		if sizeOver <= 0 && entry.insertedAt >= minTime {
			break
		}
		next := el.Next()
		m.order.Remove(el)
		delete(m.index, entry.rkey)
		sizeOver--
		el = next
	}
}
