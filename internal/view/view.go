// Package view derives filtered, searched and sorted projections of a
// collection. Everything here is pure; callers own the source list.
package view

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// All is the equality sentinel meaning "no constraint".
const All = "all"

// Field exposes one attribute of T to the view engine.
type Field[T any] struct {
	Name       string
	Kind       Kind
	Searchable bool
	Get        func(T) Value
}

// TextField exposes a string attribute. Empty strings read as missing.
func TextField[T any](name string, searchable bool, get func(T) string) Field[T] {
	return Field[T]{Name: name, Kind: KindText, Searchable: searchable, Get: func(item T) Value {
		s := get(item)
		if s == "" {
			return Missing()
		}
		return Text(s)
	}}
}

// ListField exposes a list attribute. Search sees the joined elements.
func ListField[T any](name string, get func(T) []string) Field[T] {
	return Field[T]{Name: name, Kind: KindText, Searchable: true, Get: func(item T) Value {
		l := get(item)
		if len(l) == 0 {
			return Missing()
		}
		return Text(strings.Join(l, " "))
	}}
}

func NumberField[T any](name string, get func(T) float64) Field[T] {
	return Field[T]{Name: name, Kind: KindNumber, Get: func(item T) Value { return Number(get(item)) }}
}

// DateField exposes an ISO date string. Unparseable dates read as missing.
func DateField[T any](name string, get func(T) string) Field[T] {
	return Field[T]{Name: name, Kind: KindDate, Get: func(item T) Value { return DateString(get(item)) }}
}

// Schema is the set of fields a collection exposes for filtering and sorting.
type Schema[T any] struct {
	fields []Field[T]
	byName map[string]int
}

func NewSchema[T any](fields ...Field[T]) Schema[T] {
	s := Schema[T]{fields: fields, byName: make(map[string]int, len(fields))}
	for i, f := range fields {
		s.byName[strings.ToLower(f.Name)] = i
	}
	return s
}

// Field looks a field up by name, case-insensitively.
func (s Schema[T]) Field(name string) (Field[T], bool) {
	i, ok := s.byName[strings.ToLower(name)]
	if !ok {
		return Field[T]{}, false
	}
	return s.fields[i], true
}

// Names lists field names in declaration order.
func (s Schema[T]) Names() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// Range is an inclusive bound on one field. Empty Min or Max leaves that side open.
type Range struct {
	Field string
	Min   string
	Max   string
}

type Sort struct {
	Field string
	Desc  bool
}

// Criteria is the full set of view parameters. The zero value selects
// everything in source order.
type Criteria struct {
	Search string
	Equals map[string]string
	Ranges []Range
	Sort   *Sort
}

// Key renders c canonically so equal criteria produce equal keys.
func (c Criteria) Key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "q=%q", strings.ToLower(strings.TrimSpace(c.Search)))

	keys := make([]string, 0, len(c.Equals))
	for k := range c.Equals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, ";eq.%s=%q", strings.ToLower(k), strings.ToLower(c.Equals[k]))
	}
	for _, r := range c.Ranges {
		fmt.Fprintf(&b, ";rng.%s=%q..%q", strings.ToLower(r.Field), r.Min, r.Max)
	}
	if c.Sort != nil {
		fmt.Fprintf(&b, ";sort=%s,%t", strings.ToLower(c.Sort.Field), c.Sort.Desc)
	}
	return b.String()
}

// Apply returns the items of source that match c, in c's sort order. The
// source is never modified. Criteria naming unknown fields are ignored, and
// so are range bounds that do not parse as the field's kind.
func Apply[T any](source []T, schema Schema[T], c Criteria) []T {
	preds := compile(schema, c)

	out := make([]T, 0, len(source))
	for _, item := range source {
		if matchAll(item, preds) {
			out = append(out, item)
		}
	}

	if c.Sort != nil {
		if f, ok := schema.Field(c.Sort.Field); ok {
			desc := c.Sort.Desc
			slices.SortStableFunc(out, func(a, b T) int {
				va, vb := f.Get(a), f.Get(b)
				// Missing values stay last in both directions.
				if va.IsMissing() != vb.IsMissing() {
					if va.IsMissing() {
						return 1
					}
					return -1
				}
				if desc {
					return Compare(vb, va)
				}
				return Compare(va, vb)
			})
		}
	}
	return out
}

type predicate[T any] func(T) bool

func matchAll[T any](item T, preds []predicate[T]) bool {
	for _, p := range preds {
		if !p(item) {
			return false
		}
	}
	return true
}

func compile[T any](schema Schema[T], c Criteria) []predicate[T] {
	var preds []predicate[T]

	if q := strings.ToLower(strings.TrimSpace(c.Search)); q != "" {
		var searchable []Field[T]
		for _, f := range schema.fields {
			if f.Searchable {
				searchable = append(searchable, f)
			}
		}
		preds = append(preds, func(item T) bool {
			for _, f := range searchable {
				if strings.Contains(strings.ToLower(f.Get(item).String()), q) {
					return true
				}
			}
			return false
		})
	}

	for name, want := range c.Equals {
		want = strings.TrimSpace(want)
		if want == "" || strings.EqualFold(want, All) {
			continue
		}
		f, ok := schema.Field(name)
		if !ok {
			continue
		}
		preds = append(preds, func(item T) bool {
			return strings.EqualFold(f.Get(item).String(), want)
		})
	}

	for _, r := range c.Ranges {
		f, ok := schema.Field(r.Field)
		if !ok {
			continue
		}
		lo, hasLo := parseBound(f.Kind, r.Min)
		hi, hasHi := parseBound(f.Kind, r.Max)
		if !hasLo && !hasHi {
			continue
		}
		preds = append(preds, func(item T) bool {
			v := f.Get(item)
			if v.Kind() != f.Kind {
				return false
			}
			if hasLo && Compare(v, lo) < 0 {
				return false
			}
			if hasHi && Compare(v, hi) > 0 {
				return false
			}
			return true
		})
	}

	return preds
}
