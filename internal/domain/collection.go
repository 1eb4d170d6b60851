// Package domain defines the entity types of the six desk apps and exposes
// each as a Collection the HTTP, MCP and CLI surfaces drive by name.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kalambet/localdesk/internal/csvio"
	"github.com/kalambet/localdesk/internal/entity"
	"github.com/kalambet/localdesk/internal/interpret"
	"github.com/kalambet/localdesk/internal/view"
)

var (
	ErrNotFound          = errors.New("entity not found")
	ErrInvalid           = errors.New("invalid entity")
	ErrUnknownCollection = errors.New("unknown collection")
)

// Stat is one labelled aggregate shown under a listing.
type Stat struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ImportReport summarises a CSV import.
type ImportReport struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// Collection is a type-erased view of one entity repository.
type Collection interface {
	Name() string
	Key() string
	Form() interpret.Form
	// Fields lists the names usable in view criteria.
	Fields() []string
	Initialize()
	Len() int
	View(c view.Criteria) []any
	Summary(c view.Criteria, currency string) []Stat
	Get(id string) (any, bool)
	// Current returns the stored entity as a patch, for interpreting a
	// model response against an existing record.
	Current(id string) (entity.Patch, bool)
	// Defaults returns a fresh entity as a patch.
	Defaults() entity.Patch
	Create(p entity.Patch) (any, error)
	Update(id string, p entity.Patch) (any, error)
	Delete(id string) error
	ExportCSV(w io.Writer, c view.Criteria) error
	ImportCSV(r io.Reader) (ImportReport, error)
}

type spec[T any] struct {
	name     string
	key      string
	seed     func() []T
	defaults func() T
	id       func(T) string
	setID    func(*T, string)
	schema   view.Schema[T]
	form     interpret.Form
	columns  []csvio.Column[T]
	summary  func(rows []T, currency string) []Stat
}

type binding[T any] struct {
	spec spec[T]
	repo *entity.Repository[T]
	live *view.Live[T]
}

func bind[T any](s spec[T], store entity.RecordStore, logger *slog.Logger) *binding[T] {
	repo := entity.New(entity.Options[T]{
		Key:      s.key,
		Store:    store,
		Seed:     s.seed,
		Defaults: s.defaults,
		ID:       s.id,
		SetID:    s.setID,
		Logger:   logger,
	})
	return &binding[T]{spec: s, repo: repo, live: view.NewLive[T](repo, s.schema)}
}

func (b *binding[T]) Name() string           { return b.spec.name }
func (b *binding[T]) Key() string            { return b.spec.key }
func (b *binding[T]) Form() interpret.Form   { return b.spec.form }
func (b *binding[T]) Fields() []string       { return b.spec.schema.Names() }
func (b *binding[T]) Initialize()            { b.repo.Initialize() }
func (b *binding[T]) Len() int               { return b.repo.Len() }
func (b *binding[T]) Defaults() entity.Patch { return toPatch(b.spec.defaults()) }

func (b *binding[T]) View(c view.Criteria) []any {
	rows := b.live.Rows(c)
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}

func (b *binding[T]) Summary(c view.Criteria, currency string) []Stat {
	if b.spec.summary == nil {
		return nil
	}
	return b.spec.summary(b.live.Rows(c), currency)
}

func (b *binding[T]) Get(id string) (any, bool) {
	item, ok := b.repo.Get(id)
	if !ok {
		return nil, false
	}
	return item, true
}

func (b *binding[T]) Current(id string) (entity.Patch, bool) {
	item, ok := b.repo.Get(id)
	if !ok {
		return nil, false
	}
	return toPatch(item), true
}

func (b *binding[T]) Create(p entity.Patch) (any, error) {
	for _, name := range b.spec.form.Anchors() {
		if blank(p[name]) {
			return nil, fmt.Errorf("%w: %s is required", ErrInvalid, name)
		}
	}
	return b.repo.Create(p), nil
}

func (b *binding[T]) Update(id string, p entity.Patch) (any, error) {
	for _, name := range b.spec.form.Anchors() {
		if v, set := p[name]; set && blank(v) {
			return nil, fmt.Errorf("%w: %s cannot be empty", ErrInvalid, name)
		}
	}
	item, ok := b.repo.Update(id, p)
	if !ok {
		return nil, fmt.Errorf("%s %q: %w", b.spec.name, id, ErrNotFound)
	}
	return item, nil
}

func (b *binding[T]) Delete(id string) error {
	if !b.repo.Delete(id) {
		return fmt.Errorf("%s %q: %w", b.spec.name, id, ErrNotFound)
	}
	return nil
}

func (b *binding[T]) ExportCSV(w io.Writer, c view.Criteria) error {
	return csvio.Write(w, b.spec.columns, b.live.Rows(c))
}

func (b *binding[T]) ImportCSV(r io.Reader) (ImportReport, error) {
	items, skipped, err := csvio.Read(r, b.spec.columns, b.spec.defaults)
	if err != nil {
		return ImportReport{}, fmt.Errorf("importing %s: %w", b.spec.name, err)
	}
	b.repo.Import(items)
	return ImportReport{Imported: len(items), Skipped: skipped}, nil
}

func blank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}

func toPatch(v any) entity.Patch {
	data, err := json.Marshal(v)
	if err != nil {
		return entity.Patch{}
	}
	var p entity.Patch
	if err := json.Unmarshal(data, &p); err != nil {
		return entity.Patch{}
	}
	delete(p, "id")
	return p
}
