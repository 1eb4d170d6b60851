package domain

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/localdesk/internal/entity"
)

// Registry holds one Collection per entity type, looked up by name.
type Registry struct {
	order  []Collection
	byName map[string]Collection
}

// NewRegistry binds every entity type to store. Collections load lazily on
// first use.
func NewRegistry(store entity.RecordStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{byName: make(map[string]Collection)}
	r.add(bind(tasks, store, logger))
	r.add(bind(tickets, store, logger))
	r.add(bind(transactions, store, logger))
	r.add(bind(products, store, logger))
	r.add(bind(students, store, logger))
	r.add(bind(investments, store, logger))
	return r
}

func (r *Registry) add(c Collection) {
	r.order = append(r.order, c)
	r.byName[c.Name()] = c
	r.byName[c.Key()] = c
}

// Get finds a collection by short name ("tasks") or storage key
// ("taskboard_tasks"), case-insensitively.
func (r *Registry) Get(name string) (Collection, error) {
	c, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %s)", ErrUnknownCollection, name, strings.Join(r.Names(), ", "))
	}
	return c, nil
}

// Names lists collection short names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	for i, c := range r.order {
		out[i] = c.Name()
	}
	return out
}

// All returns every collection in registration order.
func (r *Registry) All() []Collection {
	out := make([]Collection, len(r.order))
	copy(out, r.order)
	return out
}

// InitializeAll loads or seeds every collection.
func (r *Registry) InitializeAll() {
	for _, c := range r.order {
		c.Initialize()
	}
}
