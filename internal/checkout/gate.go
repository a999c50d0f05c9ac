// Package checkout decides whether a cart may be checked out and computes
// its totals. Nothing here touches the network: stock is only as fresh as the
// last server sync.
package checkout

import "github.com/mesh-intelligence/cartsync/pkg/types"

// Reasons reported by CanCheckout.
const (
	ReasonEmptyCart  = "empty cart"
	ReasonOutOfStock = "out of stock"
)

// Result is the outcome of CanCheckout.
type Result struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
	// ItemID names the first item that failed the stock check.
	ItemID string `json:"itemId,omitempty"`
}

// CanCheckout reports whether items may proceed to checkout. Items without
// a known stock pass the stock check.
func CanCheckout(items []types.CartItem) Result {
	if len(items) == 0 {
		return Result{Reason: ReasonEmptyCart}
	}
	for _, it := range items {
		if it.Stock == nil {
			continue
		}
		if *it.Stock <= 0 || float64(it.Quantity) > *it.Stock {
			return Result{Reason: ReasonOutOfStock, ItemID: it.ID}
		}
	}
	return Result{OK: true}
}
