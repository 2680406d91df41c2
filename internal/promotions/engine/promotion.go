package engine

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Scope is the unit a promotion's discount is computed against.
type Scope string

const (
	ScopeOrder   Scope = "order"
	ScopeProduct Scope = "product"
	// ScopeCategory and ScopeBOGO are reserved; promotions using them never apply.
	ScopeCategory Scope = "category"
	ScopeBOGO     Scope = "bogo"
)

// EligibleProduct identifies a product a product-scoped promotion targets, by id, SKU or both.
type EligibleProduct struct {
	ProductID int64  `json:"product_id,omitempty"`
	SKU       string `json:"sku,omitempty"`
}

// Code is a redemption code unlocking a promotion.
type Code struct {
	ID     int64  `json:"id"`
	Code   string `json:"code"`
	Active bool   `json:"active"`
}

// Promotion is a read-only promotion definition as supplied by the catalog.
type Promotion struct {
	ID                    int64             `json:"id"`
	Name                  string            `json:"name"`
	Active                bool              `json:"active"`
	Priority              int               `json:"priority"`
	StartsAt              *time.Time        `json:"starts_at,omitempty"`
	EndsAt                *time.Time        `json:"ends_at,omitempty"`
	MinSubtotal           *decimal.Decimal  `json:"min_subtotal,omitempty"`
	MinQuantity           *decimal.Decimal  `json:"min_quantity,omitempty"`
	Scope                 Scope             `json:"scope"`
	Action                *Action           `json:"action,omitempty"`
	Products              []EligibleProduct `json:"products,omitempty"`
	Codes                 []Code            `json:"codes,omitempty"`
	StopFurtherProcessing *bool             `json:"stop_further_processing,omitempty"`
}

// ValidAt reports whether at lies inside the inclusive validity window.
func (p Promotion) ValidAt(at time.Time) bool {
	if p.StartsAt != nil && at.Before(*p.StartsAt) {
		return false
	}
	if p.EndsAt != nil && at.After(*p.EndsAt) {
		return false
	}
	return true
}

// MeetsConditions checks the minimum subtotal and quantity against the whole cart.
func (p Promotion) MeetsConditions(cart Cart) bool {
	if p.MinSubtotal != nil && cart.Subtotal().LessThan(*p.MinSubtotal) {
		return false
	}
	if p.MinQuantity != nil && cart.Quantity().LessThan(*p.MinQuantity) {
		return false
	}
	return true
}

// Stops reports whether evaluation halts after this promotion applied.
func (p Promotion) Stops(defaultStop bool) bool {
	if p.StopFurtherProcessing == nil {
		return defaultStop
	}
	return *p.StopFurtherProcessing
}

// HasCodes reports whether the promotion is gated by at least one active code.
func (p Promotion) HasCodes() bool {
	for _, c := range p.Codes {
		if c.Active {
			return true
		}
	}
	return false
}

// MatchCode returns the active code equal to code, which must already be normalised.
func (p Promotion) MatchCode(code string) (Code, bool) {
	if code == "" {
		return Code{}, false
	}
	for _, c := range p.Codes {
		if c.Active && NormalizeKey(c.Code) == code {
			return c, true
		}
	}
	return Code{}, false
}

// eligibility holds the lookup sets of a product-scoped promotion.
type eligibility struct {
	ids  map[string]struct{}
	skus map[string]struct{}
}

func newEligibility(products []EligibleProduct) eligibility {
	e := eligibility{ids: make(map[string]struct{}), skus: make(map[string]struct{})}
	for _, p := range products {
		if p.ProductID > 0 {
			id := strconv.FormatInt(p.ProductID, 10)
			e.ids[id] = struct{}{}
			e.skus[id] = struct{}{}
		}
		if sku := NormalizeKey(p.SKU); sku != "" {
			e.skus[sku] = struct{}{}
		}
	}
	return e
}

func (e eligibility) matches(line CartLine, matchSKU bool) bool {
	if line.ProductID > 0 {
		if _, ok := e.ids[strconv.FormatInt(line.ProductID, 10)]; ok {
			return true
		}
	}
	if !matchSKU {
		return false
	}
	sku := NormalizeKey(line.SKU)
	if sku == "" {
		return false
	}
	_, ok := e.skus[sku]
	return ok
}
