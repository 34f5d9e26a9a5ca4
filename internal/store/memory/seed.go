package memory

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/marketplace-fulfillment/internal/domain"
)

// Seed loads the same demo accounts and catalog as the seed migration.
func Seed(s *Store, now time.Time) {
	for _, a := range []domain.Account{
		{ID: "seller-001", Email: "sales@acme.example.com", Role: domain.RoleSeller, CompanyName: "Acme Supplies"},
		{ID: "seller-002", Email: "hello@globex.example.com", Role: domain.RoleSeller, CompanyName: "Globex"},
		{ID: "buyer-001", Email: "buyer1@example.com", Role: domain.RoleBuyer},
		{ID: "buyer-002", Email: "buyer2@example.com", Role: domain.RoleBuyer},
	} {
		a.CreatedAt = now
		s.PutAccount(a)
	}

	for _, p := range []domain.Product{
		{ID: "ITEM-001", SellerID: "seller-001", Name: "Widget", Price: decimal.RequireFromString("5.00"), Stock: 100},
		{ID: "ITEM-002", SellerID: "seller-001", Name: "Gadget", Price: decimal.RequireFromString("12.50"), Stock: 20},
		{ID: "ITEM-003", SellerID: "seller-002", Name: "Gizmo", Price: decimal.RequireFromString("7.25"), Stock: 1},
	} {
		p.Active = true
		p.UpdatedAt = now
		s.PutProduct(p)
	}
}
