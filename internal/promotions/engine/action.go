package engine

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ActionType identifies how a promotion computes its discount.
type ActionType string

const (
	ActionPercent ActionType = "percent"
	ActionFixed   ActionType = "fixed"
)

// ParseActionType normalises a stored action type. Unknown values are returned as-is and
// evaluate to a zero discount.
func ParseActionType(raw string) ActionType {
	return ActionType(strings.ToLower(strings.TrimSpace(raw)))
}

// Supported reports whether the engine knows how to compute the action.
func (t ActionType) Supported() bool {
	switch t {
	case ActionPercent, ActionFixed:
		return true
	}
	return false
}

// Action is the single governing discount rule of a promotion.
type Action struct {
	Type        ActionType       `json:"type"`
	Value       decimal.Decimal  `json:"value"`
	MaxDiscount *decimal.Decimal `json:"max_discount,omitempty"`
}

// ComputeAmount maps an action to a discount on base, rounded half-up to 2 decimals.
// A non-positive value or base, or an unsupported type, yields zero.
func ComputeAmount(actionType ActionType, value, base decimal.Decimal) decimal.Decimal {
	if !value.IsPositive() || !base.IsPositive() {
		return decimal.Zero
	}
	switch actionType {
	case ActionPercent:
		return base.Mul(value).Div(hundred).Round(2)
	case ActionFixed:
		return decimal.Min(value, base).Round(2)
	default:
		return decimal.Zero
	}
}

// Amount computes the discount for base and applies the cap. A cap that is not positive is
// treated as absent.
func (a Action) Amount(base decimal.Decimal) decimal.Decimal {
	amount := ComputeAmount(a.Type, a.Value, base)
	if a.MaxDiscount != nil && a.MaxDiscount.IsPositive() {
		amount = decimal.Min(amount, a.MaxDiscount.Round(2))
	}
	return amount
}
