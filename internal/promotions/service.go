package promotions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/EZERROUK/x-panel-sub002/internal/platform/httpx"
	"github.com/EZERROUK/x-panel-sub002/internal/promotions/engine"
	"github.com/EZERROUK/x-panel-sub002/internal/shared"
)

const idempotencyModule = "promotions"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetQuote(ctx context.Context, id int64) (Quote, error)
	ListActivePromotions(ctx context.Context, filter engine.Filter) ([]engine.Promotion, error)
	ListPromotions(ctx context.Context, filter ListFilter) ([]engine.Promotion, error)
	GetPromotion(ctx context.Context, id int64) (engine.Promotion, error)
}

// Invalidator drops cached catalogs after promotion changes.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// IdempotencyPort records processed request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort records administrative changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups optional collaborators. A nil Catalog reads straight from the
// repository.
type ServiceConfig struct {
	Catalog     engine.Catalog
	Invalidator Invalidator
	Idempotency IdempotencyPort
	Audit       AuditPort
	Metrics     *Metrics
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Service coordinates promotion evaluation, application and administration.
type Service struct {
	repo        RepositoryPort
	quotes      *engine.Engine
	payloads    *engine.Engine
	invalidator Invalidator
	idempotency IdempotencyPort
	audit       AuditPort
	metrics     *Metrics
	logger      *slog.Logger
	validate    *validator.Validate
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := cfg.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = repo
	}
	opts := []engine.Option{engine.WithLogger(logger), engine.WithClock(now)}
	return &Service{
		repo:        repo,
		quotes:      engine.New(catalog, engine.QuotePolicy(), opts...),
		payloads:    engine.New(catalog, engine.PayloadPolicy(), opts...),
		invalidator: cfg.Invalidator,
		idempotency: cfg.Idempotency,
		audit:       cfg.Audit,
		metrics:     cfg.Metrics,
		logger:      logger,
		validate:    newValidator(),
		now:         now,
	}
}

// ApplyQuoteInput describes a quote apply request.
type ApplyQuoteInput struct {
	QuoteID        int64
	Code           string
	UserID         *int64
	IdempotencyKey string
}

// PreviewQuote evaluates promotions for a persisted quote without writing anything.
func (s *Service) PreviewQuote(ctx context.Context, quoteID int64, code string) (QuoteResult, error) {
	_, out, err := s.evaluateQuote(ctx, quoteID, code)
	return out, err
}

// ApplyQuote evaluates promotions for a quote, then stores the discount and redemption
// history in one transaction. Concurrent applies on the same quote are last-write-wins.
func (s *Service) ApplyQuote(ctx context.Context, input ApplyQuoteInput) (QuoteResult, error) {
	key := ""
	if input.IdempotencyKey != "" && s.idempotency != nil {
		key = fmt.Sprintf("quote-apply:%d:%s", input.QuoteID, input.IdempotencyKey)
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return QuoteResult{}, fmt.Errorf("%w: %w", httpx.ErrConflict, err)
			}
			return QuoteResult{}, fmt.Errorf("promotions: idempotency: %w", err)
		}
	}

	out, err := s.applyQuote(ctx, input)
	if err != nil && key != "" {
		if delErr := s.idempotency.Delete(ctx, key); delErr != nil {
			s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", delErr))
		}
	}
	return out, err
}

func (s *Service) applyQuote(ctx context.Context, input ApplyQuoteInput) (QuoteResult, error) {
	res, out, err := s.evaluateQuote(ctx, input.QuoteID, input.Code)
	if err != nil {
		return QuoteResult{}, err
	}
	redeemedAt := s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateQuoteDiscount(ctx, input.QuoteID, res.DiscountTotal, res.Applied); err != nil {
			return err
		}
		for _, applied := range res.Applied {
			if err := tx.InsertRedemption(ctx, Redemption{
				ID:          uuid.New(),
				PromotionID: applied.PromotionID,
				CodeID:      applied.CodeID,
				UserID:      input.UserID,
				QuoteID:     input.QuoteID,
				Amount:      applied.Amount,
				RedeemedAt:  redeemedAt,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return QuoteResult{}, fmt.Errorf("promotions: apply quote %d: %w", input.QuoteID, err)
	}
	s.logger.Info("promotions applied to quote",
		slog.Int64("quote_id", input.QuoteID),
		slog.Int("applied", len(res.Applied)),
		slog.String("discount_total", res.DiscountTotal.StringFixed(2)))
	return out, nil
}

func (s *Service) evaluateQuote(ctx context.Context, quoteID int64, code string) (engine.Result, QuoteResult, error) {
	quote, err := s.repo.GetQuote(ctx, quoteID)
	if err != nil {
		return engine.Result{}, QuoteResult{}, fmt.Errorf("promotions: load quote: %w", err)
	}
	cart := FromQuote(quote)
	res, err := s.quotes.Apply(ctx, cart, code)
	s.metrics.Observe(s.quotes.Policy().Name, res, err)
	if err != nil {
		return engine.Result{}, QuoteResult{}, fmt.Errorf("promotions: evaluate quote %d: %w", quoteID, err)
	}
	return res, QuoteResult{
		QuoteID:       quote.ID,
		Subtotal:      cart.Subtotal().Round(2),
		DiscountTotal: res.DiscountTotal,
		Applied:       res.Applied,
		LineDiscounts: res.LineDiscounts,
	}, nil
}

// PreviewPayload evaluates a transient cart and reports its totals before and after discount.
func (s *Service) PreviewPayload(ctx context.Context, req PayloadRequest) (PreviewResult, error) {
	cart := FromPayload(req.Items)
	res, err := s.payloads.Apply(ctx, cart, req.CodeValue())
	s.metrics.Observe(s.payloads.Policy().Name, res, err)
	if err != nil {
		return PreviewResult{}, fmt.Errorf("promotions: evaluate payload: %w", err)
	}
	grand := cart.GrandTotal().Round(2)
	return PreviewResult{
		Subtotal:        cart.Subtotal().Round(2),
		TaxTotal:        cart.TaxTotal().Round(2),
		GrandTotal:      grand,
		DiscountTotal:   res.DiscountTotal,
		GrandTotalAfter: decimal.Max(decimal.Zero, grand.Sub(res.DiscountTotal)),
		Applied:         res.Applied,
		LineDiscounts:   res.LineDiscounts,
	}, nil
}

// ApplyPayload is PreviewPayload: transient carts are never persisted.
func (s *Service) ApplyPayload(ctx context.Context, req PayloadRequest) (PreviewResult, error) {
	return s.PreviewPayload(ctx, req)
}

// ListPromotions returns promotions for administration.
func (s *Service) ListPromotions(ctx context.Context, filter ListFilter) ([]engine.Promotion, error) {
	items, err := s.repo.ListPromotions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("promotions: list: %w", err)
	}
	if items == nil {
		items = []engine.Promotion{}
	}
	return items, nil
}

// GetPromotion returns one promotion.
func (s *Service) GetPromotion(ctx context.Context, id int64) (engine.Promotion, error) {
	return s.repo.GetPromotion(ctx, id)
}

// CreatePromotion validates and stores a new promotion.
func (s *Service) CreatePromotion(ctx context.Context, req CreatePromotionRequest) (engine.Promotion, error) {
	promo, err := req.toPromotion(s.validate)
	if err != nil {
		return engine.Promotion{}, err
	}
	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		id, err = tx.InsertPromotion(ctx, promo)
		return err
	})
	if err != nil {
		return engine.Promotion{}, fmt.Errorf("promotions: create: %w", err)
	}
	s.invalidate(ctx)
	s.record(ctx, "promotion.create", id, map[string]any{"name": promo.Name, "scope": promo.Scope, "codes": len(promo.Codes)})
	return s.repo.GetPromotion(ctx, id)
}

// SetPromotionActive activates or deactivates a promotion.
func (s *Service) SetPromotionActive(ctx context.Context, id int64, active bool) (engine.Promotion, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetPromotionActive(ctx, id, active)
	})
	if err != nil {
		return engine.Promotion{}, fmt.Errorf("promotions: set active: %w", err)
	}
	s.invalidate(ctx)
	action := "promotion.deactivate"
	if active {
		action = "promotion.activate"
	}
	s.record(ctx, action, id, nil)
	return s.repo.GetPromotion(ctx, id)
}

// ExpirePromotions deactivates promotions whose window has ended and returns how many
// were changed.
func (s *Service) ExpirePromotions(ctx context.Context) (int64, error) {
	var n int64
	at := s.now()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		n, err = tx.DeactivateExpired(ctx, at)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("promotions: expire: %w", err)
	}
	if n > 0 {
		s.invalidate(ctx)
		s.record(ctx, "promotion.expire", 0, map[string]any{"deactivated": n, "at": at})
	}
	return n, nil
}

// record writes an audit entry for an administrative change. The actor comes from the
// request context; id 0 targets the whole catalog.
func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entityID := "*"
	if id > 0 {
		entityID = strconv.FormatInt(id, 10)
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.UserIDFromContext(ctx),
		Action:   action,
		Entity:   "promotion",
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("record audit log", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Bump(ctx); err != nil {
		s.logger.Warn("bump promotions cache", slog.Any("error", err))
	}
}
