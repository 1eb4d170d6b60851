package view

import (
	"slices"
	"sync"
	"testing"
)

type row struct {
	ID       string
	Title    string
	Category string
	Priority string
	Amount   float64
	Date     string
	Tags     []string
}

var rowSchema = NewSchema(
	TextField("title", true, func(r row) string { return r.Title }),
	TextField("category", true, func(r row) string { return r.Category }),
	TextField("priority", false, func(r row) string { return r.Priority }),
	NumberField("amount", func(r row) float64 { return r.Amount }),
	DateField("date", func(r row) string { return r.Date }),
	ListField("tags", func(r row) []string { return r.Tags }),
)

func sample() []row {
	return []row{
		{ID: "1", Title: "Quarterly report", Category: "Work", Priority: "high", Amount: 120, Date: "2024-03-01", Tags: []string{"finance"}},
		{ID: "2", Title: "Team sync", Category: "Work", Priority: "medium", Amount: 30, Date: "2024-01-15"},
		{ID: "3", Title: "Gym", Category: "Personal", Priority: "high", Amount: 45, Date: ""},
		{ID: "4", Title: "Dentist", Category: "personal", Priority: "low", Amount: 30, Date: "2024-02-10", Tags: []string{"health"}},
	}
}

func rowIDs(rows []row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func assertIDs(t *testing.T, got []row, want ...string) {
	t.Helper()
	ids := rowIDs(got)
	if len(ids) != len(want) {
		t.Fatalf("got ids %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("got ids %v, want %v", ids, want)
		}
	}
}

func TestApply_ZeroCriteriaKeepsOrder(t *testing.T) {
	assertIDs(t, Apply(sample(), rowSchema, Criteria{}), "1", "2", "3", "4")
}

func TestApply_SearchCaseInsensitiveSubstring(t *testing.T) {
	assertIDs(t, Apply(sample(), rowSchema, Criteria{Search: "REPORT"}), "1")
	assertIDs(t, Apply(sample(), rowSchema, Criteria{Search: "health"}), "4")
}

func TestApply_SearchMilk(t *testing.T) {
	rows := []row{{ID: "1", Title: "Buy milk"}, {ID: "2", Title: "Walk dog"}}
	got := Apply(rows, rowSchema, Criteria{Search: "milk"})
	if len(got) != 1 || got[0].Title != "Buy milk" {
		t.Errorf("search milk = %v, want only Buy milk", got)
	}
}

func TestApply_SearchSkipsNonSearchableFields(t *testing.T) {
	assertIDs(t, Apply(sample(), rowSchema, Criteria{Search: "medium"}))
}

func TestApply_EqualsSentinels(t *testing.T) {
	for _, v := range []string{"", "all", "ALL"} {
		got := Apply(sample(), rowSchema, Criteria{Equals: map[string]string{"priority": v}})
		if len(got) != 4 {
			t.Errorf("equals %q: expected no constraint, got %v", v, rowIDs(got))
		}
	}
}

func TestApply_EqualsCaseInsensitive(t *testing.T) {
	got := Apply(sample(), rowSchema, Criteria{Equals: map[string]string{"category": "Personal"}})
	assertIDs(t, got, "3", "4")
}

func TestApply_EqualsUnknownFieldIgnored(t *testing.T) {
	got := Apply(sample(), rowSchema, Criteria{Equals: map[string]string{"nope": "x"}})
	if len(got) != 4 {
		t.Errorf("expected unknown field to be ignored, got %v", rowIDs(got))
	}
}

func TestApply_NumberRangeInclusive(t *testing.T) {
	got := Apply(sample(), rowSchema, Criteria{Ranges: []Range{{Field: "amount", Min: "30", Max: "45"}}})
	assertIDs(t, got, "2", "3", "4")
}

func TestApply_DateRangeExcludesMissing(t *testing.T) {
	got := Apply(sample(), rowSchema, Criteria{Ranges: []Range{{Field: "date", Min: "2024-02-01"}}})
	assertIDs(t, got, "1", "4")
}

func TestApply_UnparseableBoundIgnored(t *testing.T) {
	got := Apply(sample(), rowSchema, Criteria{Ranges: []Range{{Field: "amount", Min: "lots"}}})
	if len(got) != 4 {
		t.Errorf("expected bad bound to be ignored, got %v", rowIDs(got))
	}
}

func TestApply_CombinedPredicatesAreConjunctive(t *testing.T) {
	got := Apply(sample(), rowSchema, Criteria{
		Search: "o",
		Equals: map[string]string{"priority": "high"},
		Ranges: []Range{{Field: "amount", Max: "100"}},
	})
	// "Quarterly report" matches the search but is over the max.
	assertIDs(t, got, "3")
}

func TestApply_SortStable(t *testing.T) {
	got := Apply(sample(), rowSchema, Criteria{Sort: &Sort{Field: "amount"}})
	// 2 and 4 tie at 30 and keep source order.
	assertIDs(t, got, "2", "4", "3", "1")

	got = Apply(sample(), rowSchema, Criteria{Sort: &Sort{Field: "amount", Desc: true}})
	assertIDs(t, got, "1", "3", "2", "4")
}

func TestApply_SortMissingLast(t *testing.T) {
	asc := Apply(sample(), rowSchema, Criteria{Sort: &Sort{Field: "date"}})
	assertIDs(t, asc, "2", "4", "1", "3")

	desc := Apply(sample(), rowSchema, Criteria{Sort: &Sort{Field: "date", Desc: true}})
	assertIDs(t, desc, "1", "4", "2", "3")
}

func TestApply_SortTextLexicographic(t *testing.T) {
	got := Apply(sample(), rowSchema, Criteria{Sort: &Sort{Field: "category"}})
	assertIDs(t, got, "3", "1", "2", "4")
}

func TestCompare_TextByteOrder(t *testing.T) {
	vals := []Value{Text("b"), Text("B"), Text("a"), Text("A")}
	slices.SortStableFunc(vals, Compare)
	want := []Value{Text("A"), Text("B"), Text("a"), Text("b")}
	if !slices.Equal(vals, want) {
		t.Errorf("sorted = %v, want %v", vals, want)
	}
}

func TestApply_DoesNotMutateSource(t *testing.T) {
	src := sample()
	Apply(src, rowSchema, Criteria{Sort: &Sort{Field: "amount", Desc: true}})
	assertIDs(t, src, "1", "2", "3", "4")
}

func TestCompare_MixedKinds(t *testing.T) {
	vals := []Value{Missing(), Text("a"), DateString("2024-01-01"), Number(5)}
	for i := 0; i < len(vals)-1; i++ {
		if Compare(vals[i], vals[i+1]) <= 0 {
			t.Errorf("expected %v after %v", vals[i], vals[i+1])
		}
	}
}

func TestCriteriaKey_Canonical(t *testing.T) {
	a := Criteria{Equals: map[string]string{"a": "1", "b": "2"}}
	b := Criteria{Equals: map[string]string{"b": "2", "a": "1"}}
	if a.Key() != b.Key() {
		t.Errorf("keys differ: %q vs %q", a.Key(), b.Key())
	}
	if a.Key() == (Criteria{}).Key() {
		t.Error("distinct criteria must have distinct keys")
	}
}

// --- Live ---

type fakeSource struct {
	mu      sync.Mutex
	items   []row
	version uint64
	lists   int
}

func (f *fakeSource) List() []row {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	return append([]row(nil), f.items...)
}

func (f *fakeSource) Version() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version
}

func (f *fakeSource) add(r row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, r)
	f.version++
}

func TestLive_MemoisesUntilVersionChanges(t *testing.T) {
	src := &fakeSource{items: sample(), version: 1}
	live := NewLive[row](src, rowSchema)
	c := Criteria{Equals: map[string]string{"priority": "high"}}

	first := live.Rows(c)
	second := live.Rows(c)
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("unexpected rows: %v / %v", rowIDs(first), rowIDs(second))
	}
	if live.recomputes != 1 {
		t.Errorf("expected one recompute, got %d", live.recomputes)
	}

	src.add(row{ID: "5", Priority: "high"})
	if got := live.Rows(c); len(got) != 3 {
		t.Fatalf("expected new row to appear, got %v", rowIDs(got))
	}
	if live.recomputes != 2 {
		t.Errorf("expected recompute after version change, got %d", live.recomputes)
	}
}

func TestLive_DistinctCriteriaCachedSeparately(t *testing.T) {
	src := &fakeSource{items: sample(), version: 1}
	live := NewLive[row](src, rowSchema)

	live.Rows(Criteria{Search: "gym"})
	live.Rows(Criteria{Search: "team"})
	live.Rows(Criteria{Search: "gym"})

	if live.recomputes != 2 {
		t.Errorf("expected 2 recomputes, got %d", live.recomputes)
	}
}
