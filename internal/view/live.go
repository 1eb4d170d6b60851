package view

import "sync"

// Source is a versioned list. Version must change whenever the list does.
type Source[T any] interface {
	List() []T
	Version() uint64
}

const maxCachedCriteria = 32

// Live memoises derived rows per criteria. Cached rows are dropped as soon
// as the source version moves.
type Live[T any] struct {
	src    Source[T]
	schema Schema[T]

	mu         sync.Mutex
	version    uint64
	cache      map[string][]T
	recomputes int
}

func NewLive[T any](src Source[T], schema Schema[T]) *Live[T] {
	return &Live[T]{src: src, schema: schema, cache: make(map[string][]T)}
}

// Rows returns the derived rows for c. The returned slice is shared with
// the cache and must not be modified.
func (l *Live[T]) Rows(c Criteria) []T {
	l.mu.Lock()
	defer l.mu.Unlock()

	version := l.src.Version()
	if version != l.version || len(l.cache) >= maxCachedCriteria {
		clear(l.cache)
		l.version = version
	}

	key := c.Key()
	if rows, ok := l.cache[key]; ok {
		return rows
	}
	rows := Apply(l.src.List(), l.schema, c)
	l.cache[key] = rows
	l.recomputes++
	return rows
}

// Schema returns the schema rows are derived with.
func (l *Live[T]) Schema() Schema[T] { return l.schema }
