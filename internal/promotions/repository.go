package promotions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/EZERROUK/x-panel-sub002/internal/platform/db"
	"github.com/EZERROUK/x-panel-sub002/internal/platform/httpx"
	"github.com/EZERROUK/x-panel-sub002/internal/promotions/engine"
)

// Repository provides PostgreSQL backed persistence for promotions and quote discounts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	UpdateQuoteDiscount(ctx context.Context, quoteID int64, total decimal.Decimal, applied []engine.AppliedPromotion) error
	InsertRedemption(ctx context.Context, r Redemption) error
	InsertPromotion(ctx context.Context, p engine.Promotion) (int64, error)
	SetPromotionActive(ctx context.Context, id int64, active bool) error
	DeactivateExpired(ctx context.Context, at time.Time) (int64, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// Actions, eligible products and codes are aggregated as JSON so the catalog is read in a
// single round trip.
const selectPromotions = `
SELECT p.id, p.name, p.active, p.priority, p.starts_at, p.ends_at,
       p.min_subtotal::text, p.min_quantity::text, p.scope, p.stop_further_processing,
       (SELECT json_build_object('type', a.type, 'value', a.value, 'max_discount', a.max_discount)
          FROM promotion_actions a WHERE a.promotion_id = p.id ORDER BY a.id LIMIT 1) AS action,
       COALESCE((SELECT json_agg(json_build_object('product_id', pp.product_id, 'sku', pp.sku) ORDER BY pp.id)
          FROM promotion_products pp WHERE pp.promotion_id = p.id), '[]'::json) AS products,
       COALESCE((SELECT json_agg(json_build_object('id', c.id, 'code', c.code, 'active', c.active) ORDER BY c.id)
          FROM promotion_codes c WHERE c.promotion_id = p.id), '[]'::json) AS codes
FROM promotions p`

// ListActivePromotions returns active promotions valid at filter.At, ascending by priority.
// A non-empty filter.Code keeps only promotions owning that active code. A zero At skips
// the window predicate.
func (r *Repository) ListActivePromotions(ctx context.Context, filter engine.Filter) ([]engine.Promotion, error) {
	where := []string{"p.active = TRUE"}
	args := []any{}
	if !filter.At.IsZero() {
		args = append(args, filter.At)
		n := strconv.Itoa(len(args))
		where = append(where, "(p.starts_at IS NULL OR p.starts_at <= $"+n+")", "(p.ends_at IS NULL OR p.ends_at >= $"+n+")")
	}
	if filter.Code != "" {
		args = append(args, filter.Code)
		where = append(where, "EXISTS (SELECT 1 FROM promotion_codes c WHERE c.promotion_id = p.id AND c.active AND upper(btrim(c.code)) = $"+strconv.Itoa(len(args))+")")
	}
	query := selectPromotions + " WHERE " + strings.Join(where, " AND ") + " ORDER BY p.priority ASC, p.id ASC"
	return r.queryPromotions(ctx, query, args...)
}

// ListPromotions returns promotions for administration.
func (r *Repository) ListPromotions(ctx context.Context, filter ListFilter) ([]engine.Promotion, error) {
	query := selectPromotions
	args := []any{}
	if filter.Active != nil {
		query += " WHERE p.active = $1"
		args = append(args, *filter.Active)
	}
	query += " ORDER BY p.priority ASC, p.id ASC"
	return r.queryPromotions(ctx, query, args...)
}

// GetPromotion loads one promotion with its action, products and codes.
func (r *Repository) GetPromotion(ctx context.Context, id int64) (engine.Promotion, error) {
	items, err := r.queryPromotions(ctx, selectPromotions+" WHERE p.id = $1", id)
	if err != nil {
		return engine.Promotion{}, err
	}
	if len(items) == 0 {
		return engine.Promotion{}, fmt.Errorf("promotion %d: %w", id, httpx.ErrNotFound)
	}
	return items[0], nil
}

func (r *Repository) queryPromotions(ctx context.Context, query string, args ...any) ([]engine.Promotion, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query promotions: %w", err)
	}
	defer rows.Close()

	var out []engine.Promotion
	for rows.Next() {
		p, err := scanPromotion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate promotions: %w", err)
	}
	return out, nil
}

func scanPromotion(row pgx.Row) (engine.Promotion, error) {
	var (
		p                        engine.Promotion
		minSubtotal, minQuantity *string
		scope                    string
		action, products, codes  []byte
	)
	if err := row.Scan(
		&p.ID, &p.Name, &p.Active, &p.Priority, &p.StartsAt, &p.EndsAt,
		&minSubtotal, &minQuantity, &scope, &p.StopFurtherProcessing,
		&action, &products, &codes,
	); err != nil {
		return engine.Promotion{}, fmt.Errorf("scan promotion: %w", err)
	}
	p.Scope = engine.Scope(strings.ToLower(strings.TrimSpace(scope)))
	p.MinSubtotal = parseNullableDecimal(minSubtotal)
	p.MinQuantity = parseNullableDecimal(minQuantity)

	if len(action) > 0 && string(action) != "null" {
		var a engine.Action
		if err := json.Unmarshal(action, &a); err != nil {
			return engine.Promotion{}, fmt.Errorf("decode action of promotion %d: %w", p.ID, err)
		}
		a.Type = engine.ParseActionType(string(a.Type))
		p.Action = &a
	}
	if err := json.Unmarshal(products, &p.Products); err != nil {
		return engine.Promotion{}, fmt.Errorf("decode products of promotion %d: %w", p.ID, err)
	}
	if err := json.Unmarshal(codes, &p.Codes); err != nil {
		return engine.Promotion{}, fmt.Errorf("decode codes of promotion %d: %w", p.ID, err)
	}
	return p, nil
}

// GetQuote loads a quote with its lines in display order.
func (r *Repository) GetQuote(ctx context.Context, id int64) (Quote, error) {
	var (
		q     Quote
		total *string
	)
	err := r.pool.QueryRow(ctx, `SELECT id, discount_total::text FROM quotations WHERE id = $1`, id).Scan(&q.ID, &total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quote{}, fmt.Errorf("quote %d: %w", id, httpx.ErrNotFound)
		}
		return Quote{}, fmt.Errorf("get quote: %w", err)
	}
	if v := parseNullableDecimal(total); v != nil {
		q.DiscountTotal = *v
	}

	rows, err := r.pool.Query(ctx, `
SELECT product_ref, sku_snapshot, unit_price_ht_snapshot::text, quantity::text, tax_rate::text
FROM quotation_lines WHERE quotation_id = $1 ORDER BY line_order, id`, id)
	if err != nil {
		return Quote{}, fmt.Errorf("query quote lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			item                QuoteItem
			ref                 *string
			price, qty, taxRate *string
		)
		if err := rows.Scan(&ref, &item.SKU, &price, &qty, &taxRate); err != nil {
			return Quote{}, fmt.Errorf("scan quote line: %w", err)
		}
		if ref != nil {
			item.ProductID = *ref
		}
		item.UnitPriceHT = parseNullableDecimal(price)
		item.Quantity = valueOrZero(parseNullableDecimal(qty))
		item.TaxRate = valueOrZero(parseNullableDecimal(taxRate))
		q.Items = append(q.Items, item)
	}
	if err := rows.Err(); err != nil {
		return Quote{}, fmt.Errorf("iterate quote lines: %w", err)
	}
	return q, nil
}

func (t *txRepo) UpdateQuoteDiscount(ctx context.Context, quoteID int64, total decimal.Decimal, applied []engine.AppliedPromotion) error {
	if applied == nil {
		applied = []engine.AppliedPromotion{}
	}
	payload, err := json.Marshal(applied)
	if err != nil {
		return fmt.Errorf("encode applied promotions: %w", err)
	}
	tag, err := t.tx.Exec(ctx, `
UPDATE quotations SET discount_total = $2::numeric, applied_promotions = $3::jsonb, updated_at = NOW()
WHERE id = $1`, quoteID, total.String(), payload)
	if err != nil {
		return fmt.Errorf("update quote discount: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("quote %d: %w", quoteID, httpx.ErrNotFound)
	}
	return nil
}

func (t *txRepo) InsertRedemption(ctx context.Context, r Redemption) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO promotion_redemptions (id, promotion_id, code_id, user_id, quotation_id, amount, redeemed_at)
VALUES ($1, $2, $3, $4, $5, $6::numeric, $7)`,
		r.ID, r.PromotionID, r.CodeID, r.UserID, r.QuoteID, r.Amount.String(), r.RedeemedAt)
	if err != nil {
		return fmt.Errorf("insert redemption: %w", err)
	}
	return nil
}

func (t *txRepo) InsertPromotion(ctx context.Context, p engine.Promotion) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
INSERT INTO promotions (name, active, priority, starts_at, ends_at, min_subtotal, min_quantity, scope, stop_further_processing, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9, NOW(), NOW())
RETURNING id`,
		p.Name, p.Active, p.Priority, p.StartsAt, p.EndsAt,
		nullableDecimalString(p.MinSubtotal), nullableDecimalString(p.MinQuantity),
		string(p.Scope), p.StopFurtherProcessing,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert promotion: %w", err)
	}
	if p.Action != nil {
		_, err := t.tx.Exec(ctx, `
INSERT INTO promotion_actions (promotion_id, type, value, max_discount) VALUES ($1, $2, $3::numeric, $4::numeric)`,
			id, string(p.Action.Type), p.Action.Value.String(), nullableDecimalString(p.Action.MaxDiscount))
		if err != nil {
			return 0, fmt.Errorf("insert promotion action: %w", err)
		}
	}
	for _, product := range p.Products {
		var productID *int64
		if product.ProductID > 0 {
			v := product.ProductID
			productID = &v
		}
		var sku *string
		if product.SKU != "" {
			v := product.SKU
			sku = &v
		}
		if _, err := t.tx.Exec(ctx, `INSERT INTO promotion_products (promotion_id, product_id, sku) VALUES ($1, $2, $3)`, id, productID, sku); err != nil {
			return 0, fmt.Errorf("insert eligible product: %w", err)
		}
	}
	for _, code := range p.Codes {
		if _, err := t.tx.Exec(ctx, `INSERT INTO promotion_codes (promotion_id, code, active) VALUES ($1, $2, $3)`, id, code.Code, code.Active); err != nil {
			if isUniqueViolation(err) {
				return 0, fmt.Errorf("code %s already exists: %w", code.Code, httpx.ErrConflict)
			}
			return 0, fmt.Errorf("insert promotion code: %w", err)
		}
	}
	return id, nil
}

func (t *txRepo) SetPromotionActive(ctx context.Context, id int64, active bool) error {
	tag, err := t.tx.Exec(ctx, `UPDATE promotions SET active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set promotion active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("promotion %d: %w", id, httpx.ErrNotFound)
	}
	return nil
}

func (t *txRepo) DeactivateExpired(ctx context.Context, at time.Time) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
UPDATE promotions SET active = FALSE, updated_at = $1
WHERE active AND ends_at IS NOT NULL AND ends_at < $1`, at)
	if err != nil {
		return 0, fmt.Errorf("deactivate expired promotions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func parseNullableDecimal(raw *string) *decimal.Decimal {
	if raw == nil {
		return nil
	}
	v, err := decimal.NewFromString(strings.TrimSpace(*raw))
	if err != nil {
		return nil
	}
	return &v
}

func nullableDecimalString(v *decimal.Decimal) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func valueOrZero(v *decimal.Decimal) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return *v
}
