package engine

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// candidate is a promotion selected for evaluation, with the code that unlocked it.
type candidate struct {
	promotion Promotion
	codeID    *int64
}

// evaluate runs the ordered candidates against cart and folds the applied promotions.
func evaluate(candidates []candidate, cart Cart, policy Policy, at time.Time, logger *slog.Logger) Result {
	acc := accumulator{}.start(len(cart.Lines))
	for _, c := range candidates {
		applied, ok := evaluatePromotion(c, cart, policy, at, logger)
		if !ok {
			continue
		}
		acc = acc.add(applied)
		if c.promotion.Stops(policy.StopByDefault) {
			break
		}
	}
	return acc.result()
}

func evaluatePromotion(c candidate, cart Cart, policy Policy, at time.Time, logger *slog.Logger) (AppliedPromotion, bool) {
	p := c.promotion
	if !p.ValidAt(at) || !p.MeetsConditions(cart) {
		return AppliedPromotion{}, false
	}
	if p.Action == nil {
		return AppliedPromotion{}, false
	}
	if !p.Action.Type.Supported() {
		logger.Warn("promotion has unsupported action type",
			slog.Int64("promotion_id", p.ID),
			slog.String("action_type", string(p.Action.Type)))
		return AppliedPromotion{}, false
	}

	var (
		indices []int
		base    decimal.Decimal
	)
	switch p.Scope {
	case ScopeOrder:
		indices = positiveLines(cart, policy.Base, nil)
		base = cart.Total(policy.Base)
	case ScopeProduct:
		elig := newEligibility(p.Products)
		indices = positiveLines(cart, policy.Base, func(line CartLine) bool {
			return elig.matches(line, policy.MatchSKU)
		})
		base = sumLines(cart, policy.Base, indices)
		if !base.IsPositive() {
			return AppliedPromotion{}, false
		}
	default:
		logger.Debug("promotion scope not evaluated",
			slog.Int64("promotion_id", p.ID),
			slog.String("scope", string(p.Scope)))
		return AppliedPromotion{}, false
	}

	amount := p.Action.Amount(base)
	if !amount.IsPositive() {
		return AppliedPromotion{}, false
	}

	applied := AppliedPromotion{
		PromotionID: p.ID,
		CodeID:      c.codeID,
		Name:        p.Name,
		Amount:      amount,
		Lines:       allocate(amount, cart, policy.Base, indices),
	}
	if policy.ExposeHints {
		applied.Hint = &Hint{Type: p.Action.Type, Value: p.Action.Value}
	}
	return applied, true
}

// positiveLines returns the indices of lines with a positive amount accepted by keep.
func positiveLines(cart Cart, base Base, keep func(CartLine) bool) []int {
	indices := make([]int, 0, len(cart.Lines))
	for i, line := range cart.Lines {
		if !line.Amount(base).IsPositive() {
			continue
		}
		if keep != nil && !keep(line) {
			continue
		}
		indices = append(indices, i)
	}
	return indices
}

func sumLines(cart Cart, base Base, indices []int) decimal.Decimal {
	total := decimal.Zero
	for _, i := range indices {
		total = total.Add(cart.Lines[i].Amount(base))
	}
	return total
}

// allocate spreads amount over the lines at indices in proportion to their amounts. Each
// share is rounded half-up to 2 decimals and capped at what is left unallocated, so the
// breakdown never sums above amount. Lines later in the cart absorb the rounding drift.
// Shares rounding to zero are omitted.
func allocate(amount decimal.Decimal, cart Cart, base Base, indices []int) []LineAllocation {
	allocations := []LineAllocation{}
	total := sumLines(cart, base, indices)
	if !total.IsPositive() || !amount.IsPositive() {
		return allocations
	}
	remaining := amount
	for _, i := range indices {
		share := amount.Mul(cart.Lines[i].Amount(base)).Div(total).Round(2)
		share = decimal.Min(share, remaining)
		if !share.IsPositive() {
			continue
		}
		remaining = remaining.Sub(share)
		allocations = append(allocations, LineAllocation{Index: i, Amount: share})
	}
	return allocations
}
