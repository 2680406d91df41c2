package promotions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/EZERROUK/x-panel-sub002/internal/promotions/engine"
)

// Quote is a persisted quotation with its lines loaded.
type Quote struct {
	ID            int64
	DiscountTotal decimal.Decimal
	Items         []QuoteItem
}

// QuoteItem is a quotation line as stored. ProductID is kept raw because legacy lines may
// reference products by a non-numeric key.
type QuoteItem struct {
	ProductID   string
	SKU         *string
	UnitPriceHT *decimal.Decimal
	Quantity    decimal.Decimal
	TaxRate     decimal.Decimal
}

// Redemption is one row of promotion redemption history.
type Redemption struct {
	ID          uuid.UUID
	PromotionID int64
	CodeID      *int64
	UserID      *int64
	QuoteID     int64
	Amount      decimal.Decimal
	RedeemedAt  time.Time
}

// QuoteResult is returned by the quote preview and apply operations.
type QuoteResult struct {
	QuoteID       int64                     `json:"quote_id"`
	Subtotal      decimal.Decimal           `json:"subtotal"`
	DiscountTotal decimal.Decimal           `json:"discount_total"`
	Applied       []engine.AppliedPromotion `json:"applied_promotions"`
	LineDiscounts []decimal.Decimal         `json:"line_discounts"`
}

// PreviewResult is returned for carts that have not been saved.
type PreviewResult struct {
	Subtotal        decimal.Decimal           `json:"subtotal"`
	TaxTotal        decimal.Decimal           `json:"tax_total"`
	GrandTotal      decimal.Decimal           `json:"grand_total"`
	DiscountTotal   decimal.Decimal           `json:"discount_total"`
	GrandTotalAfter decimal.Decimal           `json:"grand_total_after"`
	Applied         []engine.AppliedPromotion `json:"applied_promotions"`
	LineDiscounts   []decimal.Decimal         `json:"line_discounts"`
}

// ListFilter narrows the administration listing.
type ListFilter struct {
	Active *bool
}
