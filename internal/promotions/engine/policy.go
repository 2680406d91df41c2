package engine

// Base selects the monetary convention discounts are computed on.
type Base int

const (
	// BaseHT computes on tax-exclusive amounts.
	BaseHT Base = iota
	// BaseTTC computes on tax-inclusive amounts.
	BaseTTC
)

func (b Base) String() string {
	if b == BaseTTC {
		return "ttc"
	}
	return "ht"
}

// CodeFilter selects how a supplied redemption code narrows the candidates.
type CodeFilter int

const (
	// CodeShortCircuit returns an empty result for an unknown code and otherwise evaluates only
	// the promotion owning the code.
	CodeShortCircuit CodeFilter = iota
	// CodeExistence asks the catalog for promotions owning the code and evaluates all of them.
	// An unknown code simply leaves no candidate.
	CodeExistence
)

// Policy configures one evaluation path. The persisted-quote and transient-cart paths
// disagree on base, default stop behaviour, code filtering and SKU matching; each caller
// names its policy explicitly.
type Policy struct {
	Name          string
	Base          Base
	StopByDefault bool
	CodeFilter    CodeFilter
	MatchSKU      bool
	ExposeHints   bool
}

// QuotePolicy is used for persisted quotes.
func QuotePolicy() Policy {
	return Policy{
		Name:          "quote",
		Base:          BaseHT,
		StopByDefault: true,
		CodeFilter:    CodeShortCircuit,
		MatchSKU:      true,
	}
}

// PayloadPolicy is used for carts that have not been saved yet.
func PayloadPolicy() Policy {
	return Policy{
		Name:          "payload",
		Base:          BaseTTC,
		StopByDefault: false,
		CodeFilter:    CodeExistence,
		MatchSKU:      false,
		ExposeHints:   true,
	}
}
