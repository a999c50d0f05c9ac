package checkout

import (
	"errors"
	"fmt"
	"math"
	"strings"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/mesh-intelligence/cartsync/pkg/types"
)

// DefaultFeeRule charges a fixed delivery fee of 10.
const DefaultFeeRule = "10"

// ErrInvalidFee is returned when a fee rule yields a negative, non-finite or
// non-numeric value.
var ErrInvalidFee = errors.New("delivery fee must be a non-negative number")

// feeEnv is the environment fee rules are evaluated against.
type feeEnv struct {
	Subtotal float64 `expr:"subtotal"`
	Count    int     `expr:"count"`
}

// FeeRule computes the delivery fee for a cart. The rule is an expression
// over subtotal and count, for example "subtotal >= 500 ? 0 : 40". A plain
// number is a fixed fee. The zero FeeRule charges nothing.
type FeeRule struct {
	source  string
	program *exprvm.Program
}

// ParseFeeRule compiles source. An empty source charges nothing.
func ParseFeeRule(source string) (FeeRule, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return FeeRule{}, nil
	}
	program, err := exprlang.Compile(source, exprlang.Env(feeEnv{}))
	if err != nil {
		return FeeRule{}, fmt.Errorf("compile delivery fee rule %q: %w", source, err)
	}
	return FeeRule{source: source, program: program}, nil
}

func (r FeeRule) String() string {
	return r.source
}

// Fee evaluates the rule. Empty carts pay no fee.
func (r FeeRule) Fee(subtotal float64, count int) (float64, error) {
	if r.program == nil || count == 0 {
		return 0, nil
	}
	out, err := exprlang.Run(r.program, feeEnv{Subtotal: subtotal, Count: count})
	if err != nil {
		return 0, fmt.Errorf("evaluate delivery fee rule %q: %w", r.source, err)
	}
	var fee float64
	switch v := out.(type) {
	case int:
		fee = float64(v)
	case int64:
		fee = float64(v)
	case float64:
		fee = v
	default:
		return 0, fmt.Errorf("%w: rule %q returned %T", ErrInvalidFee, r.source, out)
	}
	if fee < 0 || math.IsNaN(fee) || math.IsInf(fee, 0) {
		return 0, fmt.Errorf("%w: rule %q returned %v", ErrInvalidFee, r.source, fee)
	}
	return fee, nil
}

// Summary is the payable breakdown of a cart.
type Summary struct {
	Count       int     `json:"count"`
	Subtotal    float64 `json:"subtotal"`
	DeliveryFee float64 `json:"deliveryFee"`
	Total       float64 `json:"total"`
}

// Summarize totals items and applies rule for the delivery fee.
func Summarize(items []types.CartItem, rule FeeRule) (Summary, error) {
	var s Summary
	for _, it := range items {
		s.Count += it.Quantity
		s.Subtotal += it.LineTotal()
	}
	fee, err := rule.Fee(s.Subtotal, s.Count)
	if err != nil {
		return Summary{}, err
	}
	s.DeliveryFee = fee
	s.Total = s.Subtotal + fee
	return s, nil
}
