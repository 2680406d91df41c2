package promotions

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/EZERROUK/x-panel-sub002/internal/promotions/engine"
)

// UnknownSKU identifies lines with neither a SKU snapshot nor a product reference.
const UnknownSKU = "UNKNOWN"

// FromQuote converts loaded quote items into a cart. Items must already be hydrated;
// malformed values degrade to zero or sentinel values.
func FromQuote(q Quote) engine.Cart {
	lines := make([]engine.CartLine, 0, len(q.Items))
	for _, item := range q.Items {
		ref := strings.TrimSpace(item.ProductID)
		sku := ""
		if item.SKU != nil {
			sku = strings.TrimSpace(*item.SKU)
		}
		if sku == "" {
			sku = ref
		}
		if sku == "" {
			sku = UnknownSKU
		}
		price := decimal.Zero
		if item.UnitPriceHT != nil {
			price = *item.UnitPriceHT
		}
		lines = append(lines, engine.CartLine{
			SKU:       sku,
			ProductID: parseProductID(ref),
			Quantity:  item.Quantity.Round(0),
			UnitPrice: price,
			TaxRate:   item.TaxRate,
		})
	}
	return engine.NewCart(lines...)
}

// FromPayload converts transient cart items. Quantities keep their fractional part.
func FromPayload(items []PayloadItem) engine.Cart {
	lines := make([]engine.CartLine, 0, len(items))
	for _, item := range items {
		ref := strings.TrimSpace(string(item.ProductID))
		sku := ref
		if sku == "" {
			sku = UnknownSKU
		}
		lines = append(lines, engine.CartLine{
			SKU:       sku,
			ProductID: parseProductID(ref),
			Quantity:  item.Quantity.Decimal(),
			UnitPrice: item.UnitPriceHT.Decimal(),
			TaxRate:   item.TaxRate.Decimal(),
		})
	}
	return engine.NewCart(lines...)
}

func parseProductID(ref string) int64 {
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}
