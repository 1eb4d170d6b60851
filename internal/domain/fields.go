package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/kalambet/localdesk/internal/csvio"
	"github.com/kalambet/localdesk/internal/view"
)

// DefaultCurrency is used when settings carry no currency.
const DefaultCurrency = "USD"

var now = time.Now

func today() string { return now().Format("2006-01-02") }

// FormatMoney renders d in the given ISO 4217 currency, e.g. "$1,234.50".
// Unknown codes fall back to the plain decimal with the code appended.
func FormatMoney(d decimal.Decimal, currency string) string {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		code = DefaultCurrency
	}
	cur := money.GetCurrency(code)
	if cur == nil {
		return d.StringFixed(2) + " " + code
	}
	minor := d.Shift(int32(cur.Fraction)).Round(0)
	return money.New(minor.IntPart(), code).Display()
}

func textCol[T any](header string, get func(T) string, set func(*T, string)) csvio.Column[T] {
	return csvio.Column[T]{
		Header: header,
		Quote:  true,
		Get:    get,
		Set: func(item *T, s string) error {
			set(item, s)
			return nil
		},
	}
}

// dateCol accepts an empty cell or an ISO date.
func dateCol[T any](header string, get func(T) string, set func(*T, string)) csvio.Column[T] {
	return csvio.Column[T]{
		Header: header,
		Quote:  true,
		Get:    get,
		Set: func(item *T, s string) error {
			if s != "" {
				if _, ok := view.ParseDate(s); !ok {
					return fmt.Errorf("%s: bad date %q", header, s)
				}
			}
			set(item, s)
			return nil
		},
	}
}

func listCol[T any](header string, get func(T) []string, set func(*T, []string)) csvio.Column[T] {
	return csvio.Column[T]{
		Header: header,
		Quote:  true,
		Get:    func(item T) string { return strings.Join(get(item), ", ") },
		Set: func(item *T, s string) error {
			var out []string
			for _, part := range strings.Split(s, ",") {
				if p := strings.TrimSpace(part); p != "" {
					out = append(out, p)
				}
			}
			set(item, out)
			return nil
		},
	}
}

func intCol[T any](header string, get func(T) int, set func(*T, int)) csvio.Column[T] {
	return csvio.Column[T]{
		Header: header,
		Get:    func(item T) string { return strconv.Itoa(get(item)) },
		Set: func(item *T, s string) error {
			if s == "" {
				set(item, 0)
				return nil
			}
			n, err := strconv.Atoi(s)
			if err != nil {
				return fmt.Errorf("%s: %w", header, err)
			}
			set(item, n)
			return nil
		},
	}
}

func floatCol[T any](header string, get func(T) float64, set func(*T, float64)) csvio.Column[T] {
	return csvio.Column[T]{
		Header: header,
		Get:    func(item T) string { return strconv.FormatFloat(get(item), 'f', -1, 64) },
		Set: func(item *T, s string) error {
			if s == "" {
				set(item, 0)
				return nil
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", header, err)
			}
			set(item, f)
			return nil
		},
	}
}

func decimalCol[T any](header string, get func(T) decimal.Decimal, set func(*T, decimal.Decimal)) csvio.Column[T] {
	return csvio.Column[T]{
		Header: header,
		Get:    func(item T) string { return get(item).String() },
		Set: func(item *T, s string) error {
			if s == "" {
				set(item, decimal.Zero)
				return nil
			}
			d, err := decimal.NewFromString(s)
			if err != nil {
				return fmt.Errorf("%s: %w", header, err)
			}
			set(item, d)
			return nil
		},
	}
}

func decimalField[T any](name string, get func(T) decimal.Decimal) view.Field[T] {
	return view.NumberField(name, func(item T) float64 { return get(item).InexactFloat64() })
}

func countBy[T any](rows []T, key func(T) string) map[string]int {
	out := make(map[string]int)
	for _, r := range rows {
		out[strings.ToLower(key(r))]++
	}
	return out
}
