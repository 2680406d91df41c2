package engine

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"
)

// Filter narrows the catalog read. Code is already normalised; At is the evaluation instant
// used for the validity window.
type Filter struct {
	Code string
	At   time.Time
}

// Catalog supplies active promotions ordered by ascending priority with their action,
// eligible products and codes resolved.
type Catalog interface {
	ListActivePromotions(ctx context.Context, filter Filter) ([]Promotion, error)
}

// Engine evaluates a cart against the catalog under a fixed policy.
type Engine struct {
	catalog Catalog
	policy  Policy
	logger  *slog.Logger
	now     func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for configuration warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the evaluation clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New constructs an Engine.
func New(catalog Catalog, policy Policy, opts ...Option) *Engine {
	e := &Engine{
		catalog: catalog,
		policy:  policy,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the evaluation policy of the engine.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Apply evaluates cart with an optional redemption code. Only catalog errors are returned;
// every other anomaly yields no discount.
func (e *Engine) Apply(ctx context.Context, cart Cart, code string) (Result, error) {
	code = NormalizeKey(code)
	at := e.now()

	filter := Filter{At: at}
	if e.policy.CodeFilter == CodeExistence {
		filter.Code = code
	}
	promotions, err := e.catalog.ListActivePromotions(ctx, filter)
	if err != nil {
		return Result{}, fmt.Errorf("engine: list active promotions: %w", err)
	}

	candidates, ok := e.candidates(promotions, code)
	if !ok {
		return EmptyResult(len(cart.Lines)), nil
	}
	logger := e.logger.With(slog.String("policy", e.policy.Name))
	return evaluate(candidates, cart, e.policy, at, logger), nil
}

// candidates orders the catalog and applies the code strategy. It reports false when a
// supplied code short-circuits evaluation.
func (e *Engine) candidates(promotions []Promotion, code string) ([]candidate, bool) {
	ordered := make([]Promotion, 0, len(promotions))
	for _, p := range promotions {
		if p.Active {
			ordered = append(ordered, p)
		}
	}
	slices.SortStableFunc(ordered, func(a, b Promotion) int {
		return cmp.Compare(a.Priority, b.Priority)
	})

	if code == "" {
		out := make([]candidate, 0, len(ordered))
		for _, p := range ordered {
			if p.HasCodes() {
				continue
			}
			out = append(out, candidate{promotion: p})
		}
		return out, true
	}

	switch e.policy.CodeFilter {
	case CodeShortCircuit:
		for _, p := range ordered {
			if c, found := p.MatchCode(code); found {
				id := c.ID
				return []candidate{{promotion: p, codeID: &id}}, true
			}
		}
		return nil, false
	default:
		out := make([]candidate, 0, len(ordered))
		for _, p := range ordered {
			if c, found := p.MatchCode(code); found {
				id := c.ID
				out = append(out, candidate{promotion: p, codeID: &id})
			}
		}
		return out, true
	}
}
