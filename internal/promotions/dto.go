package promotions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/EZERROUK/x-panel-sub002/internal/platform/httpx"
	"github.com/EZERROUK/x-panel-sub002/internal/promotions/engine"
)

// CodeRequest is the body of the quote preview and apply endpoints.
type CodeRequest struct {
	Code *string `json:"code"`
}

// CodeValue returns the supplied code or an empty string.
func (r CodeRequest) CodeValue() string {
	if r.Code == nil {
		return ""
	}
	return *r.Code
}

// PayloadRequest is the body of the transient cart endpoints.
type PayloadRequest struct {
	Code  *string       `json:"code"`
	Items []PayloadItem `json:"items"`
}

// CodeValue returns the supplied code or an empty string.
func (r PayloadRequest) CodeValue() string {
	if r.Code == nil {
		return ""
	}
	return *r.Code
}

// PayloadItem is a raw cart item. Every field is decoded leniently.
type PayloadItem struct {
	ProductID   LenientString  `json:"product_id"`
	Quantity    LenientDecimal `json:"quantity"`
	UnitPriceHT LenientDecimal `json:"unit_price_ht"`
	TaxRate     LenientDecimal `json:"tax_rate"`
}

// LenientString accepts a JSON string or number. Anything else decodes to "".
type LenientString string

func (s *LenientString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*s = ""
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err == nil {
			*s = LenientString(raw)
		}
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		*s = LenientString(num.String())
	}
	return nil
}

// LenientDecimal accepts a JSON number or numeric string. Anything else decodes to zero.
type LenientDecimal decimal.Decimal

func (d *LenientDecimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*d = LenientDecimal(decimal.Zero)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil
		}
	}
	if v, err := decimal.NewFromString(strings.TrimSpace(raw)); err == nil {
		*d = LenientDecimal(v)
	}
	return nil
}

func (d LenientDecimal) MarshalJSON() ([]byte, error) {
	return decimal.Decimal(d).MarshalJSON()
}

// Decimal returns the decoded value.
func (d LenientDecimal) Decimal() decimal.Decimal {
	return decimal.Decimal(d)
}

// CreatePromotionRequest is the administration payload for a new promotion.
type CreatePromotionRequest struct {
	Name                  string                   `json:"name" validate:"required,max=190"`
	Active                *bool                    `json:"active,omitempty"`
	Priority              int                      `json:"priority" validate:"gte=0"`
	StartsAt              *time.Time               `json:"starts_at,omitempty"`
	EndsAt                *time.Time               `json:"ends_at,omitempty"`
	MinSubtotal           *decimal.Decimal         `json:"min_subtotal,omitempty" validate:"omitempty,gte=0"`
	MinQuantity           *decimal.Decimal         `json:"min_quantity,omitempty" validate:"omitempty,gte=0"`
	Scope                 string                   `json:"scope" validate:"required,oneof=order product"`
	Action                ActionRequest            `json:"action"`
	Products              []EligibleProductRequest `json:"products,omitempty" validate:"dive"`
	Codes                 []string                 `json:"codes,omitempty" validate:"dive,required,max=64"`
	StopFurtherProcessing *bool                    `json:"stop_further_processing,omitempty"`
}

// ActionRequest describes the governing action of a new promotion.
type ActionRequest struct {
	Type        string           `json:"type" validate:"required,oneof=percent fixed"`
	Value       decimal.Decimal  `json:"value" validate:"gt=0"`
	MaxDiscount *decimal.Decimal `json:"max_discount,omitempty" validate:"omitempty,gt=0"`
}

// EligibleProductRequest targets a product by id, SKU or both.
type EligibleProductRequest struct {
	ProductID int64  `json:"product_id" validate:"gte=0"`
	SKU       string `json:"sku" validate:"max=64"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// toPromotion validates req and converts it into a promotion definition.
func (req CreatePromotionRequest) toPromotion(v *validator.Validate) (engine.Promotion, error) {
	req.Action.Type = string(engine.ParseActionType(req.Action.Type))
	req.Scope = strings.ToLower(strings.TrimSpace(req.Scope))
	req.Name = strings.TrimSpace(req.Name)

	if err := v.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
			}
			return engine.Promotion{}, fmt.Errorf("%w: %s", httpx.ErrValidation, strings.Join(msgs, "; "))
		}
		return engine.Promotion{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	if engine.ActionType(req.Action.Type) == engine.ActionPercent && req.Action.Value.GreaterThan(decimal.NewFromInt(100)) {
		return engine.Promotion{}, fmt.Errorf("%w: percent value must not exceed 100", httpx.ErrValidation)
	}
	if req.StartsAt != nil && req.EndsAt != nil && !req.EndsAt.After(*req.StartsAt) {
		return engine.Promotion{}, fmt.Errorf("%w: ends_at must be after starts_at", httpx.ErrValidation)
	}

	products := make([]engine.EligibleProduct, 0, len(req.Products))
	for _, p := range req.Products {
		sku := engine.NormalizeKey(p.SKU)
		if p.ProductID == 0 && sku == "" {
			return engine.Promotion{}, fmt.Errorf("%w: eligible product needs product_id or sku", httpx.ErrValidation)
		}
		products = append(products, engine.EligibleProduct{ProductID: p.ProductID, SKU: sku})
	}
	if engine.Scope(req.Scope) == engine.ScopeProduct && len(products) == 0 {
		return engine.Promotion{}, fmt.Errorf("%w: product scope requires eligible products", httpx.ErrValidation)
	}

	seen := make(map[string]struct{}, len(req.Codes))
	codes := make([]engine.Code, 0, len(req.Codes))
	for _, raw := range req.Codes {
		code := engine.NormalizeKey(raw)
		if code == "" {
			return engine.Promotion{}, fmt.Errorf("%w: empty code", httpx.ErrValidation)
		}
		if _, dup := seen[code]; dup {
			return engine.Promotion{}, fmt.Errorf("%w: duplicate code %s", httpx.ErrValidation, code)
		}
		seen[code] = struct{}{}
		codes = append(codes, engine.Code{Code: code, Active: true})
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return engine.Promotion{
		Name:        req.Name,
		Active:      active,
		Priority:    req.Priority,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		MinSubtotal: req.MinSubtotal,
		MinQuantity: req.MinQuantity,
		Scope:       engine.Scope(req.Scope),
		Action: &engine.Action{
			Type:        engine.ActionType(req.Action.Type),
			Value:       req.Action.Value,
			MaxDiscount: req.Action.MaxDiscount,
		},
		Products:              products,
		Codes:                 codes,
		StopFurtherProcessing: req.StopFurtherProcessing,
	}, nil
}

// parseBool accepts the query forms used by the listing filter.
func parseBool(raw string) (*bool, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid boolean %q", httpx.ErrValidation, raw)
	}
	return &v, nil
}
