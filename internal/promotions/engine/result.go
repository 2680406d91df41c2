package engine

import "github.com/shopspring/decimal"

// LineAllocation is the share of a promotion allocated to the cart line at Index.
type LineAllocation struct {
	Index  int             `json:"index"`
	Amount decimal.Decimal `json:"amount"`
}

// Hint exposes the raw action for client-side display.
type Hint struct {
	Type  ActionType      `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// AppliedPromotion records one promotion that produced a discount.
type AppliedPromotion struct {
	PromotionID int64            `json:"promotion_id"`
	CodeID      *int64           `json:"code_id,omitempty"`
	Name        string           `json:"name"`
	Amount      decimal.Decimal  `json:"amount"`
	Lines       []LineAllocation `json:"lines_breakdown"`
	Hint        *Hint            `json:"hint,omitempty"`
}

// Result is the outcome of one engine invocation. DiscountTotal is the sum of applied
// amounts; because lines are rounded independently it can exceed the sum of breakdowns.
type Result struct {
	Applied       []AppliedPromotion `json:"applied_promotions"`
	DiscountTotal decimal.Decimal    `json:"discount_total"`
	LineDiscounts []decimal.Decimal  `json:"line_discounts"`
}

// EmptyResult returns a zero discount result sized for lineCount lines.
func EmptyResult(lineCount int) Result {
	return accumulator{}.start(lineCount).result()
}

// accumulator is threaded through the fold over candidate promotions.
type accumulator struct {
	applied       []AppliedPromotion
	total         decimal.Decimal
	lineDiscounts []decimal.Decimal
}

func (a accumulator) start(lineCount int) accumulator {
	lines := make([]decimal.Decimal, lineCount)
	for i := range lines {
		lines[i] = decimal.Zero
	}
	return accumulator{applied: []AppliedPromotion{}, total: decimal.Zero, lineDiscounts: lines}
}

func (a accumulator) add(p AppliedPromotion) accumulator {
	applied := make([]AppliedPromotion, len(a.applied), len(a.applied)+1)
	copy(applied, a.applied)
	lines := make([]decimal.Decimal, len(a.lineDiscounts))
	copy(lines, a.lineDiscounts)
	for _, alloc := range p.Lines {
		if alloc.Index >= 0 && alloc.Index < len(lines) {
			lines[alloc.Index] = lines[alloc.Index].Add(alloc.Amount)
		}
	}
	return accumulator{
		applied:       append(applied, p),
		total:         a.total.Add(p.Amount),
		lineDiscounts: lines,
	}
}

func (a accumulator) result() Result {
	lines := make([]decimal.Decimal, len(a.lineDiscounts))
	for i, d := range a.lineDiscounts {
		lines[i] = d.Round(2)
	}
	return Result{Applied: a.applied, DiscountTotal: a.total.Round(2), LineDiscounts: lines}
}
