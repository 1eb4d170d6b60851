package entity

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Patch is a partial entity keyed by JSON field name.
type Patch map[string]any

// RecordStore persists one JSON array per collection key.
type RecordStore interface {
	Load(key string) (json.RawMessage, bool)
	Save(key string, items any) error
}

// Options configures a Repository.
type Options[T any] struct {
	// Key is the durable storage key, e.g. "taskboard_tasks".
	Key   string
	Store RecordStore
	// Seed returns the items written on first use when nothing is stored.
	Seed func() []T
	// Defaults returns the zero-state entity that Create overlays the partial on.
	Defaults func() T
	ID       func(T) string
	SetID    func(*T, string)
	// NewID overrides identifier generation. Defaults to UUIDv7.
	NewID  func() string
	Logger *slog.Logger
}

// Repository is the authoritative in-memory list for one collection. Every
// successful mutation writes the whole list through to the store. Store
// failures are logged and never abort the in-memory change.
type Repository[T any] struct {
	opts   Options[T]
	logger *slog.Logger

	mu      sync.RWMutex
	items   []T
	ready   bool
	version uint64
}

func New[T any](opts Options[T]) *Repository[T] {
	if opts.Seed == nil {
		opts.Seed = func() []T { return nil }
	}
	if opts.Defaults == nil {
		opts.Defaults = func() T {
			var zero T
			return zero
		}
	}
	if opts.NewID == nil {
		opts.NewID = newID
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository[T]{opts: opts, logger: logger.With("collection", opts.Key)}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Key returns the durable storage key.
func (r *Repository[T]) Key() string { return r.opts.Key }

// Initialize loads the stored list, or writes the seed when nothing usable is
// stored. Calling it again is a no-op.
func (r *Repository[T]) Initialize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLocked()
}

func (r *Repository[T]) ensureLocked() {
	if r.ready {
		return
	}
	r.ready = true
	r.version++

	if raw, ok := r.opts.Store.Load(r.opts.Key); ok {
		var items []T
		err := json.Unmarshal(raw, &items)
		if err == nil {
			r.items = items
			r.logger.Debug("collection loaded", "count", len(items))
			return
		}
		r.logger.Warn("stored items do not decode, reseeding", "error", err)
	}

	r.items = r.opts.Seed()
	if r.items == nil {
		r.items = []T{}
	}
	r.persistLocked()
	r.logger.Debug("collection seeded", "count", len(r.items))
}

// List returns a copy of the current items in order.
func (r *Repository[T]) List() []T {
	r.mu.Lock()
	r.ensureLocked()
	out := slices.Clone(r.items)
	r.mu.Unlock()
	if out == nil {
		out = []T{}
	}
	return out
}

// Len returns the number of items.
func (r *Repository[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLocked()
	return len(r.items)
}

// Version changes on every mutation. Views use it to decide when to recompute.
func (r *Repository[T]) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Get returns the item with id.
func (r *Repository[T]) Get(id string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLocked()
	if i := r.indexLocked(id); i >= 0 {
		return r.items[i], true
	}
	var zero T
	return zero, false
}

// Create builds an item from the defaults overlaid with partial, assigns a
// fresh id and prepends it.
func (r *Repository[T]) Create(partial Patch) T {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLocked()

	item := r.overlay(r.opts.Defaults(), partial)
	r.opts.SetID(&item, r.uniqueIDLocked())

	r.items = append([]T{item}, r.items...)
	r.version++
	r.persistLocked()
	return item
}

// Import prepends items in their given order, each with a fresh id.
func (r *Repository[T]) Import(items []T) []T {
	if len(items) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLocked()

	added := make([]T, len(items))
	for i, item := range items {
		r.opts.SetID(&item, r.uniqueIDLocked(added[:i]...))
		added[i] = item
	}
	r.items = append(added, r.items...)
	r.version++
	r.persistLocked()
	return slices.Clone(added)
}

// Update overlays patch on the item with id. The id itself never changes.
// Reports false, with nothing written, when no item matches.
func (r *Repository[T]) Update(id string, patch Patch) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLocked()

	i := r.indexLocked(id)
	if i < 0 {
		var zero T
		return zero, false
	}
	item := r.overlay(r.items[i], patch)
	r.opts.SetID(&item, id)
	r.items[i] = item
	r.version++
	r.persistLocked()
	return item, true
}

// Delete removes the item with id. Reports false, with nothing written, when
// no item matches.
func (r *Repository[T]) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLocked()

	i := r.indexLocked(id)
	if i < 0 {
		return false
	}
	r.items = slices.Delete(r.items, i, i+1)
	r.version++
	r.persistLocked()
	return true
}

func (r *Repository[T]) indexLocked(id string) int {
	return slices.IndexFunc(r.items, func(item T) bool { return r.opts.ID(item) == id })
}

func (r *Repository[T]) uniqueIDLocked(pending ...T) string {
	taken := func(id string) bool {
		if id == "" || r.indexLocked(id) >= 0 {
			return true
		}
		return slices.ContainsFunc(pending, func(item T) bool { return r.opts.ID(item) == id })
	}
	id := r.opts.NewID()
	for taken(id) {
		id = r.opts.NewID()
	}
	return id
}

func (r *Repository[T]) persistLocked() {
	if err := r.opts.Store.Save(r.opts.Key, r.items); err != nil {
		r.logger.Warn("persisting collection failed", "error", err)
	}
}

// overlay applies patch on top of base through the JSON encoding of T. A key
// whose value does not fit the field is dropped and logged; the rest still
// apply. "id" is never taken from a patch.
func (r *Repository[T]) overlay(base T, patch Patch) T {
	if len(patch) == 0 {
		return base
	}
	if out, err := applyPatch(base, patch); err == nil {
		return out
	}

	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := base
	for _, k := range keys {
		next, err := applyPatch(out, Patch{k: patch[k]})
		if err != nil {
			r.logger.Warn("ignoring patch field", "field", k, "error", err)
			continue
		}
		out = next
	}
	return out
}

func applyPatch[T any](base T, patch Patch) (T, error) {
	var out T
	raw, err := json.Marshal(base)
	if err != nil {
		return out, fmt.Errorf("encoding base: %w", err)
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return out, fmt.Errorf("decoding base: %w", err)
	}
	for k, v := range patch {
		if k == "id" {
			continue
		}
		fields[k] = v
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return out, fmt.Errorf("encoding patch: %w", err)
	}
	if err := json.Unmarshal(merged, &out); err != nil {
		return out, err
	}
	return out, nil
}
