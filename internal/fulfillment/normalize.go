package fulfillment

import "github.com/joao-fontenele/marketplace-fulfillment/internal/domain"

type line struct {
	productID string
	quantity  int
}

// normalize merges duplicate products by summing their quantities and drops
// any line whose resulting quantity is not positive. First-seen order is kept.
func normalize(items []domain.LineRequest) ([]line, error) {
	if len(items) == 0 {
		return nil, domain.InvalidInput("at least one item is required")
	}

	index := make(map[string]int, len(items))
	merged := make([]line, 0, len(items))
	for _, it := range items {
		if it.ProductID == "" {
			return nil, domain.InvalidInput("item without product id")
		}
		if i, ok := index[it.ProductID]; ok {
			merged[i].quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(merged)
		merged = append(merged, line{productID: it.ProductID, quantity: it.Quantity})
	}

	out := merged[:0]
	for _, l := range merged {
		if l.quantity > 0 {
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		return nil, domain.InvalidInput("all quantities are invalid (<= 0)")
	}
	return out, nil
}

func productIDs(lines []line) []string {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.productID
	}
	return ids
}
