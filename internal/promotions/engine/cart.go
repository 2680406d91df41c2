package engine

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// CartLine is one purchasable line. UnitPrice is tax-exclusive.
type CartLine struct {
	SKU        string          `json:"sku"`
	ProductID  int64           `json:"product_id"`
	CategoryID *int64          `json:"category_id,omitempty"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TaxRate    decimal.Decimal `json:"tax_rate"`
}

// AmountHT returns quantity × unit price.
func (l CartLine) AmountHT() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// TaxAmount returns the line tax using rate × base.
func (l CartLine) TaxAmount() decimal.Decimal {
	return l.AmountHT().Mul(l.TaxRate).Div(hundred)
}

// AmountTTC returns the tax-inclusive line amount.
func (l CartLine) AmountTTC() decimal.Decimal {
	return l.AmountHT().Add(l.TaxAmount())
}

// Amount returns the line amount under the given base convention.
func (l CartLine) Amount(base Base) decimal.Decimal {
	if base == BaseTTC {
		return l.AmountTTC()
	}
	return l.AmountHT()
}

// Cart is the canonical input of the engine. Totals are always derived from Lines.
type Cart struct {
	Lines []CartLine `json:"lines"`
}

// NewCart builds a cart from lines.
func NewCart(lines ...CartLine) Cart {
	return Cart{Lines: lines}
}

// Subtotal sums the tax-exclusive line amounts.
func (c Cart) Subtotal() decimal.Decimal {
	return c.sum(CartLine.AmountHT)
}

// TaxTotal sums line taxes.
func (c Cart) TaxTotal() decimal.Decimal {
	return c.sum(CartLine.TaxAmount)
}

// GrandTotal sums the tax-inclusive line amounts.
func (c Cart) GrandTotal() decimal.Decimal {
	return c.sum(CartLine.AmountTTC)
}

// Total returns the subtotal or grand total depending on base.
func (c Cart) Total(base Base) decimal.Decimal {
	if base == BaseTTC {
		return c.GrandTotal()
	}
	return c.Subtotal()
}

// Quantity sums line quantities.
func (c Cart) Quantity() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.Lines {
		total = total.Add(line.Quantity)
	}
	return total
}

func (c Cart) sum(amount func(CartLine) decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.Lines {
		total = total.Add(amount(line))
	}
	return total
}
