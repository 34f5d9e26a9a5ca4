package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// money renders amounts with exactly two decimal places, matching the
// NUMERIC(18,2) columns they are stored in.
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func (i OrderItem) MarshalJSON() ([]byte, error) {
	type plain OrderItem
	return json.Marshal(struct {
		plain
		UnitPrice string `json:"unit_price"`
		Subtotal  string `json:"subtotal"`
	}{plain(i), money(i.UnitPrice), money(i.Subtotal)})
}

func (o Order) MarshalJSON() ([]byte, error) {
	type plain Order
	return json.Marshal(struct {
		plain
		Total string `json:"total"`
	}{plain(o), money(o.Total)})
}

func (p Product) MarshalJSON() ([]byte, error) {
	type plain Product
	return json.Marshal(struct {
		plain
		Price string `json:"price"`
	}{plain(p), money(p.Price)})
}

func (e OrderCreatedEvent) MarshalJSON() ([]byte, error) {
	type plain OrderCreatedEvent
	return json.Marshal(struct {
		plain
		Total string `json:"total"`
	}{plain(e), money(e.Total)})
}
