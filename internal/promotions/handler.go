package promotions

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/EZERROUK/x-panel-sub002/internal/platform/httpx"
	"github.com/EZERROUK/x-panel-sub002/internal/shared"
)

// IdempotencyHeader carries the client supplied key of a quote apply request.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes promotion endpoints as JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches promotion routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/quotes/{id}/promotions/preview", h.previewQuote)
	r.Post("/quotes/{id}/promotions/apply", h.applyQuote)

	r.Route("/promotions", func(r chi.Router) {
		r.Post("/preview", h.previewPayload)
		r.Post("/apply", h.applyPayload)
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.show)
		r.Post("/{id}/activate", h.setActive(true))
		r.Post("/{id}/deactivate", h.setActive(false))
	})
}

func (h *Handler) previewQuote(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CodeRequest
	if err := decodeOptional(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.PreviewQuote(r.Context(), id, req.CodeValue())
	if err != nil {
		h.fail(w, r, "preview quote promotions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) applyQuote(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CodeRequest
	if err := decodeOptional(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.ApplyQuote(r.Context(), ApplyQuoteInput{
		QuoteID:        id,
		Code:           req.CodeValue(),
		UserID:         shared.UserIDFromContext(r.Context()),
		IdempotencyKey: strings.TrimSpace(r.Header.Get(IdempotencyHeader)),
	})
	if err != nil {
		h.fail(w, r, "apply quote promotions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) previewPayload(w http.ResponseWriter, r *http.Request) {
	var req PayloadRequest
	if err := decodeOptional(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.PreviewPayload(r.Context(), req)
	if err != nil {
		h.fail(w, r, "preview payload promotions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) applyPayload(w http.ResponseWriter, r *http.Request) {
	var req PayloadRequest
	if err := decodeOptional(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.ApplyPayload(r.Context(), req)
	if err != nil {
		h.fail(w, r, "apply payload promotions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	active, err := parseBool(r.URL.Query().Get("active"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := queryInt(r, "page")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	perPage, err := queryInt(r, "per_page")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.ListPromotions(r.Context(), ListFilter{Active: active})
	if err != nil {
		h.fail(w, r, "list promotions", err)
		return
	}
	meta := shared.NewPagination(page, perPage, len(items))
	start, end := meta.Bounds()
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items[start:end], "total": meta.Total, "pagination": meta})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	promo, err := h.service.GetPromotion(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get promotion", err)
		return
	}
	httpx.JSON(w, http.StatusOK, promo)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreatePromotionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	promo, err := h.service.CreatePromotion(r.Context(), req)
	if err != nil {
		h.fail(w, r, "create promotion", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, promo)
}

func (h *Handler) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		promo, err := h.service.SetPromotionActive(r.Context(), id, active)
		if err != nil {
			h.fail(w, r, "set promotion active", err)
			return
		}
		httpx.JSON(w, http.StatusOK, promo)
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if !errors.Is(err, httpx.ErrNotFound) && !errors.Is(err, httpx.ErrValidation) && !errors.Is(err, httpx.ErrConflict) {
		h.logger.Error(msg, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id", httpx.ErrValidation)
	}
	return id, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: invalid %s", httpx.ErrValidation, name)
	}
	return v, nil
}

// decodeOptional decodes a JSON body, treating an empty body as the zero request.
func decodeOptional(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return nil
}
