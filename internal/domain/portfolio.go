package domain

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kalambet/localdesk/internal/csvio"
	"github.com/kalambet/localdesk/internal/interpret"
	"github.com/kalambet/localdesk/internal/view"
)

// Investment is a holding in the investment ledger. Currency empty means the
// app currency.
type Investment struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Symbol   string          `json:"symbol"`
	Kind     string          `json:"kind"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Date     string          `json:"date"`
	Notes    string          `json:"notes"`
}

// Value is quantity times price.
func (i Investment) Value() decimal.Decimal { return i.Quantity.Mul(i.Price) }

func investmentSeed() []Investment {
	return []Investment{
		{ID: "1", Name: "Apple Inc.", Symbol: "AAPL", Kind: "stock", Quantity: decimal.NewFromInt(10), Price: decimal.RequireFromString("189.25"), Currency: "USD", Date: "2024-05-15", Notes: "Long-term hold"},
		{ID: "2", Name: "Vanguard FTSE All-World", Symbol: "VWRL", Kind: "etf", Quantity: decimal.NewFromInt(25), Price: decimal.RequireFromString("112.40"), Currency: "EUR", Date: "2024-04-02"},
		{ID: "3", Name: "US Treasury 2030", Symbol: "UST30", Kind: "bond", Quantity: decimal.NewFromInt(5), Price: decimal.RequireFromString("98.10"), Currency: "USD", Date: "2024-03-20"},
	}
}

var investments = spec[Investment]{
	name: "investments",
	key:  "portfolio_investments",
	seed: investmentSeed,
	defaults: func() Investment {
		return Investment{Kind: "stock", Date: today()}
	},
	id:    func(i Investment) string { return i.ID },
	setID: func(i *Investment, id string) { i.ID = id },
	schema: view.NewSchema(
		view.TextField("name", true, func(i Investment) string { return i.Name }),
		view.TextField("symbol", true, func(i Investment) string { return i.Symbol }),
		view.TextField("kind", false, func(i Investment) string { return i.Kind }),
		decimalField("quantity", func(i Investment) decimal.Decimal { return i.Quantity }),
		decimalField("price", func(i Investment) decimal.Decimal { return i.Price }),
		decimalField("value", Investment.Value),
		view.TextField("currency", false, func(i Investment) string { return i.Currency }),
		view.DateField("date", func(i Investment) string { return i.Date }),
		view.TextField("notes", true, func(i Investment) string { return i.Notes }),
	),
	form: interpret.Form{
		Name:        "investment",
		Instruction: "Record the trade confirmation or note as an investment holding.",
		Fields: []interpret.Field{
			{Name: "name", Kind: interpret.FieldText, Anchor: true, Paths: []string{"$.name", "$.security", "$.instrument"}, Cues: []string{"name", "security", "instrument"}},
			{Name: "symbol", Kind: interpret.FieldText, Description: "ticker symbol", Paths: []string{"$.symbol", "$.ticker"}, Cues: []string{"symbol", "ticker"}},
			{Name: "quantity", Kind: interpret.FieldNumber, Paths: []string{"$.quantity", "$.shares", "$.units"}, Cues: []string{"quantity", "shares", "units"}},
			{Name: "price", Kind: interpret.FieldNumber, Description: "price per unit", Paths: []string{"$.price", "$.unit_price"}, Cues: []string{"price"}},
			{Name: "date", Kind: interpret.FieldDate, Paths: []string{"$.date", "$.trade_date"}, Cues: []string{"trade date", "date"}},
		},
	},
	columns: []csvio.Column[Investment]{
		textCol("Name", func(i Investment) string { return i.Name }, func(i *Investment, s string) { i.Name = s }),
		textCol("Symbol", func(i Investment) string { return i.Symbol }, func(i *Investment, s string) { i.Symbol = s }),
		textCol("Kind", func(i Investment) string { return i.Kind }, func(i *Investment, s string) { i.Kind = s }),
		decimalCol("Quantity", func(i Investment) decimal.Decimal { return i.Quantity }, func(i *Investment, d decimal.Decimal) { i.Quantity = d }),
		decimalCol("Price", func(i Investment) decimal.Decimal { return i.Price }, func(i *Investment, d decimal.Decimal) { i.Price = d }),
		textCol("Currency", func(i Investment) string { return i.Currency }, func(i *Investment, s string) { i.Currency = s }),
		dateCol("Date", func(i Investment) string { return i.Date }, func(i *Investment, s string) { i.Date = s }),
		textCol("Notes", func(i Investment) string { return i.Notes }, func(i *Investment, s string) { i.Notes = s }),
	},
	summary: func(rows []Investment, currency string) []Stat {
		totals := make(map[string]decimal.Decimal)
		for _, i := range rows {
			code := strings.ToUpper(i.Currency)
			if code == "" {
				code = strings.ToUpper(currency)
			}
			if code == "" {
				code = DefaultCurrency
			}
			totals[code] = totals[code].Add(i.Value())
		}
		codes := make([]string, 0, len(totals))
		for code := range totals {
			codes = append(codes, code)
		}
		slices.Sort(codes)

		stats := make([]Stat, 0, len(codes))
		for _, code := range codes {
			stats = append(stats, Stat{Label: "Value " + code, Value: FormatMoney(totals[code], code)})
		}
		return stats
	},
}
