package domain

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kalambet/localdesk/internal/csvio"
	"github.com/kalambet/localdesk/internal/interpret"
	"github.com/kalambet/localdesk/internal/view"
)

// Transaction is an expense-ledger entry. Amount is always positive; Type
// says which way the money moved.
type Transaction struct {
	ID          string          `json:"id"`
	Vendor      string          `json:"vendor"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Type        string          `json:"type"`
}

const (
	TypeExpense = "expense"
	TypeIncome  = "income"
)

func transactionSeed() []Transaction {
	return []Transaction{
		{ID: "1", Vendor: "Corner Grocery", Amount: decimal.RequireFromString("23.40"), Date: "2024-06-01", Category: "Food", Description: "Milk, bread, eggs", Type: TypeExpense},
		{ID: "2", Vendor: "Acme Corp", Amount: decimal.RequireFromString("2500.00"), Date: "2024-06-01", Category: "Salary", Description: "June salary", Type: TypeIncome},
		{ID: "3", Vendor: "City Transit", Amount: decimal.RequireFromString("45.00"), Date: "2024-06-03", Category: "Transport", Description: "Monthly pass", Type: TypeExpense},
	}
}

var transactions = spec[Transaction]{
	name: "transactions",
	key:  "ledger_transactions",
	seed: transactionSeed,
	defaults: func() Transaction {
		return Transaction{Date: today(), Category: "Other", Type: TypeExpense}
	},
	id:    func(t Transaction) string { return t.ID },
	setID: func(t *Transaction, id string) { t.ID = id },
	schema: view.NewSchema(
		view.TextField("vendor", true, func(t Transaction) string { return t.Vendor }),
		decimalField("amount", func(t Transaction) decimal.Decimal { return t.Amount }),
		view.DateField("date", func(t Transaction) string { return t.Date }),
		view.TextField("category", true, func(t Transaction) string { return t.Category }),
		view.TextField("description", true, func(t Transaction) string { return t.Description }),
		view.TextField("type", false, func(t Transaction) string { return t.Type }),
	),
	form: interpret.Form{
		Name:        "receipt",
		Instruction: "Read the receipt or note and record it as an expense.",
		Fields: []interpret.Field{
			{
				Name:        "vendor",
				Kind:        interpret.FieldText,
				Anchor:      true,
				Description: "merchant or payee name",
				Paths:       []string{"$.vendor", "$.merchant", "$.store", "$.payee", "$.receipt.vendor"},
				Cues:        []string{"vendor", "merchant", "store", "payee"},
			},
			{
				Name:        "amount",
				Kind:        interpret.FieldNumber,
				Anchor:      true,
				Description: "total paid",
				Paths:       []string{"$.amount", "$.total", "$.grand_total", "$.receipt.total"},
				Cues:        []string{"amount", "total", "sum"},
			},
			{Name: "date", Kind: interpret.FieldDate, Paths: []string{"$.date", "$.purchase_date", "$.receipt.date"}},
			{
				Name:  "description",
				Kind:  interpret.FieldText,
				Paths: []string{"$.description", "$.items", "$.item"},
				Cues:  []string{"description", "items", "item"},
			},
		},
	},
	columns: []csvio.Column[Transaction]{
		textCol("Vendor", func(t Transaction) string { return t.Vendor }, func(t *Transaction, s string) { t.Vendor = s }),
		decimalCol("Amount", func(t Transaction) decimal.Decimal { return t.Amount }, func(t *Transaction, d decimal.Decimal) { t.Amount = d }),
		dateCol("Date", func(t Transaction) string { return t.Date }, func(t *Transaction, s string) { t.Date = s }),
		textCol("Category", func(t Transaction) string { return t.Category }, func(t *Transaction, s string) { t.Category = s }),
		textCol("Description", func(t Transaction) string { return t.Description }, func(t *Transaction, s string) { t.Description = s }),
		textCol("Type", func(t Transaction) string { return t.Type }, func(t *Transaction, s string) { t.Type = s }),
	},
	summary: func(rows []Transaction, currency string) []Stat {
		income, expense := decimal.Zero, decimal.Zero
		for _, t := range rows {
			if strings.EqualFold(t.Type, TypeIncome) {
				income = income.Add(t.Amount)
			} else {
				expense = expense.Add(t.Amount)
			}
		}
		return []Stat{
			{Label: "Income", Value: FormatMoney(income, currency)},
			{Label: "Expenses", Value: FormatMoney(expense, currency)},
			{Label: "Balance", Value: FormatMoney(income.Sub(expense), currency)},
		}
	},
}
