package promotions

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EZERROUK/x-panel-sub002/internal/platform/httpx"
)

func TestFromQuote(t *testing.T) {
	sku := " SKU-9 "
	blank := "  "
	cart := FromQuote(Quote{ID: 1, Items: []QuoteItem{
		{ProductID: "12", SKU: &sku, UnitPriceHT: decPtr("10.5"), Quantity: dec("2.5"), TaxRate: dec("20")},
		{ProductID: "legacy-ref", SKU: &blank, UnitPriceHT: decPtr("3"), Quantity: dec("1")},
		{ProductID: "", Quantity: dec("1")},
	}})

	require.Len(t, cart.Lines, 3)

	first := cart.Lines[0]
	assert.Equal(t, "SKU-9", first.SKU)
	assert.Equal(t, int64(12), first.ProductID)
	assert.True(t, first.Quantity.Equal(dec("3")), "quantity rounds half away from zero")
	assert.True(t, first.UnitPrice.Equal(dec("10.5")))
	assert.True(t, first.TaxRate.Equal(dec("20")))

	second := cart.Lines[1]
	assert.Equal(t, "legacy-ref", second.SKU)
	assert.Zero(t, second.ProductID)

	third := cart.Lines[2]
	assert.Equal(t, UnknownSKU, third.SKU)
	assert.True(t, third.UnitPrice.IsZero())
	assert.True(t, third.TaxRate.IsZero())
}

func TestPayloadRequestDecodesLeniently(t *testing.T) {
	body := `{
		"code": "spring",
		"items": [
			{"product_id": 12, "quantity": "1.5", "unit_price_ht": 10, "tax_rate": "20"},
			{"product_id": "abc", "quantity": "lots", "unit_price_ht": null, "tax_rate": {"x": 1}},
			{"product_id": true}
		]
	}`
	var req PayloadRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	assert.Equal(t, "spring", req.CodeValue())
	require.Len(t, req.Items, 3)

	cart := FromPayload(req.Items)
	require.Len(t, cart.Lines, 3)

	assert.Equal(t, "12", cart.Lines[0].SKU)
	assert.Equal(t, int64(12), cart.Lines[0].ProductID)
	assert.True(t, cart.Lines[0].Quantity.Equal(dec("1.5")), "fractional quantity is kept")
	assert.True(t, cart.Lines[0].UnitPrice.Equal(dec("10")))
	assert.True(t, cart.Lines[0].TaxRate.Equal(dec("20")))

	assert.Equal(t, "abc", cart.Lines[1].SKU)
	assert.Zero(t, cart.Lines[1].ProductID)
	assert.True(t, cart.Lines[1].Quantity.IsZero())
	assert.True(t, cart.Lines[1].UnitPrice.IsZero())
	assert.True(t, cart.Lines[1].TaxRate.IsZero())

	assert.Equal(t, UnknownSKU, cart.Lines[2].SKU)
}

func TestCodeRequestWithoutCode(t *testing.T) {
	var req CodeRequest
	require.NoError(t, json.Unmarshal([]byte(`{}`), &req))
	assert.Empty(t, req.CodeValue())
}

func TestParseProductID(t *testing.T) {
	assert.Equal(t, int64(7), parseProductID("7"))
	assert.Zero(t, parseProductID("-7"))
	assert.Zero(t, parseProductID("7a"))
	assert.Zero(t, parseProductID(""))
}

func TestParseBool(t *testing.T) {
	v, err := parseBool("")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = parseBool("true")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.True(t, *v)

	_, err = parseBool("maybe")
	require.ErrorIs(t, err, httpx.ErrValidation)
}
