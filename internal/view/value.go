package view

import (
	"cmp"
	"strconv"
	"strings"
	"time"
)

// Kind is the comparable type of a field value.
type Kind int

const (
	KindMissing Kind = iota
	KindNumber
	KindDate
	KindText
)

// rank orders kinds when two values of different kinds are compared:
// numbers, then dates, then text, then missing values last.
func (k Kind) rank() int {
	switch k {
	case KindNumber:
		return 0
	case KindDate:
		return 1
	case KindText:
		return 2
	default:
		return 3
	}
}

// Value is one extracted field value.
type Value struct {
	kind Kind
	num  float64
	text string
	date time.Time
}

func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

func Text(s string) Value { return Value{kind: KindText, text: s} }

func Date(t time.Time) Value { return Value{kind: KindDate, date: t} }

func Missing() Value { return Value{} }

// DateString parses an ISO date or RFC 3339 timestamp. Unparseable input is Missing.
func DateString(s string) Value {
	if t, ok := ParseDate(s); ok {
		return Date(t)
	}
	return Missing()
}

// ParseDate accepts the date layouts entities are stored with.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsMissing() bool { return v.kind == KindMissing }

// String renders the value the way equality filters and search see it.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindDate:
		return v.date.Format("2006-01-02")
	case KindText:
		return v.text
	default:
		return ""
	}
}

// Compare orders two values. Values of the same kind compare naturally,
// text byte-wise; otherwise kind rank decides.
func Compare(a, b Value) int {
	if a.kind != b.kind {
		return cmp.Compare(a.kind.rank(), b.kind.rank())
	}
	switch a.kind {
	case KindNumber:
		return cmp.Compare(a.num, b.num)
	case KindDate:
		return a.date.Compare(b.date)
	case KindText:
		return cmp.Compare(a.text, b.text)
	default:
		return 0
	}
}

// parseBound turns a range bound into a value of kind k.
func parseBound(k Kind, s string) (Value, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Value{}, false
	}
	switch k {
	case KindNumber:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, false
		}
		return Number(f), true
	case KindDate:
		t, ok := ParseDate(s)
		if !ok {
			return Value{}, false
		}
		return Date(t), true
	case KindText:
		return Text(s), true
	default:
		return Value{}, false
	}
}
