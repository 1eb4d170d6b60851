package domain

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/kalambet/localdesk/internal/csvio"
	"github.com/kalambet/localdesk/internal/interpret"
	"github.com/kalambet/localdesk/internal/view"
)

// Product is a shop catalog item.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	SKU         string          `json:"sku"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Description string          `json:"description"`
}

func productSeed() []Product {
	return []Product{
		{ID: "1", Name: "Ceramic Mug", SKU: "MUG-001", Category: "Kitchen", Price: decimal.RequireFromString("12.50"), Stock: 40, Description: "350 ml stoneware mug"},
		{ID: "2", Name: "Linen Tote", SKU: "BAG-014", Category: "Accessories", Price: decimal.RequireFromString("24.00"), Stock: 15, Description: "Natural linen shopping bag"},
		{ID: "3", Name: "Desk Lamp", SKU: "LMP-203", Category: "Home", Price: decimal.RequireFromString("39.90"), Stock: 0, Description: "Adjustable LED lamp"},
	}
}

var products = spec[Product]{
	name: "products",
	key:  "shop_products",
	seed: productSeed,
	defaults: func() Product {
		return Product{Category: "General"}
	},
	id:    func(p Product) string { return p.ID },
	setID: func(p *Product, id string) { p.ID = id },
	schema: view.NewSchema(
		view.TextField("name", true, func(p Product) string { return p.Name }),
		view.TextField("sku", true, func(p Product) string { return p.SKU }),
		view.TextField("category", true, func(p Product) string { return p.Category }),
		decimalField("price", func(p Product) decimal.Decimal { return p.Price }),
		view.NumberField("stock", func(p Product) float64 { return float64(p.Stock) }),
		view.TextField("description", true, func(p Product) string { return p.Description }),
	),
	form: interpret.Form{
		Name:        "product",
		Instruction: "Write a catalog listing for the product described or pictured.",
		Fields: []interpret.Field{
			{Name: "name", Kind: interpret.FieldText, Anchor: true, Description: "product name", Paths: []string{"$.name", "$.title", "$.product"}, Cues: []string{"name", "product", "title"}},
			{Name: "category", Kind: interpret.FieldText},
			{Name: "price", Kind: interpret.FieldNumber, Description: "suggested retail price", Paths: []string{"$.price", "$.retail_price"}, Cues: []string{"price", "cost"}},
			{Name: "description", Kind: interpret.FieldText, Description: "one short marketing sentence"},
		},
	},
	columns: []csvio.Column[Product]{
		textCol("Name", func(p Product) string { return p.Name }, func(p *Product, s string) { p.Name = s }),
		textCol("SKU", func(p Product) string { return p.SKU }, func(p *Product, s string) { p.SKU = s }),
		textCol("Category", func(p Product) string { return p.Category }, func(p *Product, s string) { p.Category = s }),
		decimalCol("Price", func(p Product) decimal.Decimal { return p.Price }, func(p *Product, d decimal.Decimal) { p.Price = d }),
		intCol("Stock", func(p Product) int { return p.Stock }, func(p *Product, n int) { p.Stock = n }),
		textCol("Description", func(p Product) string { return p.Description }, func(p *Product, s string) { p.Description = s }),
	},
	summary: func(rows []Product, currency string) []Stat {
		value := decimal.Zero
		units, out := 0, 0
		for _, p := range rows {
			value = value.Add(p.Price.Mul(decimal.NewFromInt(int64(p.Stock))))
			units += p.Stock
			if p.Stock <= 0 {
				out++
			}
		}
		return []Stat{
			{Label: "Units", Value: strconv.Itoa(units)},
			{Label: "Out of stock", Value: strconv.Itoa(out)},
			{Label: "Inventory value", Value: FormatMoney(value, currency)},
		}
	},
}
