package promotions

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EZERROUK/x-panel-sub002/internal/platform/httpx"
	"github.com/EZERROUK/x-panel-sub002/internal/promotions/engine"
	"github.com/EZERROUK/x-panel-sub002/internal/shared"
)

type handlerFixture struct {
	repo   *memoryRepo
	keys   *memoryKeys
	router http.Handler
}

func newHandlerFixture(t *testing.T) handlerFixture {
	t.Helper()
	repo := newMemoryRepo(
		orderPromotion(1, 1, engine.ActionPercent, "10"),
		withCode(orderPromotion(2, 0, engine.ActionFixed, "5"), 21, "WELCOME"),
	)
	repo.quotes[7] = Quote{ID: 7, Items: []QuoteItem{quoteItem("1", "50", "2", "20")}}
	keys := newMemoryKeys()
	svc := newTestService(repo, ServiceConfig{Idempotency: keys})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Header.Get("X-User-ID") == "42" {
				req = req.WithContext(shared.ContextWithUserID(req.Context(), 42))
			}
			next.ServeHTTP(w, req)
		})
	})
	NewHandler(nil, svc).MountRoutes(r)
	return handlerFixture{repo: repo, keys: keys, router: r}
}

func (f handlerFixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestHandlerPreviewQuote(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodPost, "/quotes/7/promotions/preview", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		QuoteID       int64  `json:"quote_id"`
		DiscountTotal string `json:"discount_total"`
		Applied       []struct {
			PromotionID int64 `json:"promotion_id"`
		} `json:"applied_promotions"`
		LineDiscounts []string `json:"line_discounts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, int64(7), out.QuoteID)
	assert.Equal(t, "10", out.DiscountTotal)
	require.Len(t, out.Applied, 1)
	assert.Equal(t, int64(1), out.Applied[0].PromotionID)
	assert.Equal(t, []string{"10"}, out.LineDiscounts)
}

func TestHandlerApplyQuoteRecordsUser(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodPost, "/quotes/7/promotions/apply", `{"code":"welcome"}`, map[string]string{
		"X-User-ID":       "42",
		IdempotencyHeader: "abc",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.repo.redemptions, 1)
	require.NotNil(t, f.repo.redemptions[0].UserID)
	assert.Equal(t, int64(42), *f.repo.redemptions[0].UserID)
	assert.Equal(t, int64(2), f.repo.redemptions[0].PromotionID)

	rec = f.do(http.MethodPost, "/quotes/7/promotions/apply", `{"code":"welcome"}`, map[string]string{IdempotencyHeader: "abc"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, http.StatusConflict, decodeProblem(t, rec).Status)
}

func TestHandlerQuoteErrors(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodPost, "/quotes/abc/promotions/preview", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/quotes/99/promotions/preview", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", decodeProblem(t, rec).Title)

	rec = f.do(http.MethodPost, "/quotes/7/promotions/apply", `{"code":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.repo.redemptions)
}

func TestHandlerPreviewPayload(t *testing.T) {
	f := newHandlerFixture(t)

	body := `{"items":[{"product_id":"1","quantity":"2","unit_price_ht":"50","tax_rate":"20"}]}`
	rec := f.do(http.MethodPost, "/promotions/preview", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "100", out["subtotal"])
	assert.Equal(t, "120", out["grand_total"])
	assert.Equal(t, "12", out["discount_total"])
	assert.Equal(t, "108", out["grand_total_after"])

	rec = f.do(http.MethodPost, "/promotions/apply", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.repo.redemptions)
}

func TestHandlerAdministration(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodPost, "/promotions", `{"name":"Flash","scope":"order","priority":2,"action":{"type":"fixed","value":"3"},"codes":["flash"]}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created engine.Promotion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, int64(101), created.ID)
	require.Len(t, created.Codes, 1)
	assert.Equal(t, "FLASH", created.Codes[0].Code)

	rec = f.do(http.MethodPost, "/promotions", `{"name":"Broken","scope":"order","action":{"type":"percent","value":"150"}}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/promotions/101", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/promotions/404", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPost, "/promotions/1/deactivate", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var toggled engine.Promotion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &toggled))
	assert.False(t, toggled.Active)

	rec = f.do(http.MethodGet, "/promotions?active=true", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Data  []engine.Promotion `json:"data"`
		Total int                `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Equal(t, 2, listed.Total)

	rec = f.do(http.MethodGet, "/promotions?active=sometimes", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerListPagination(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodGet, "/promotions?page=2&per_page=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Data       []engine.Promotion `json:"data"`
		Total      int                `json:"total"`
		Pagination shared.Pagination  `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Equal(t, 2, listed.Total)
	require.Len(t, listed.Data, 1)
	assert.Equal(t, int64(2), listed.Data[0].ID)
	assert.Equal(t, shared.Pagination{Page: 2, PerPage: 1, Total: 2, TotalPages: 2}, listed.Pagination)

	rec = f.do(http.MethodGet, "/promotions?page=-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/promotions?page=9223372036854775807", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed.Data = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Empty(t, listed.Data)
	assert.Equal(t, 2, listed.Total)
}
