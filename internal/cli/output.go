package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/mesh-intelligence/cartsync/internal/checkout"
	"github.com/mesh-intelligence/cartsync/pkg/types"
)

// cartView is the JSON shape of a printed cart.
type cartView struct {
	Items []types.CartItem `json:"items"`
	Count int              `json:"count"`
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return sysError(fmt.Errorf("marshal JSON: %w", err))
	}
	fmt.Fprintln(w, string(out))
	return nil
}

func printCart(w io.Writer, items []types.CartItem, jsonMode bool) error {
	count := 0
	for _, it := range items {
		count += it.Quantity
	}
	if jsonMode {
		return printJSON(w, cartView{Items: items, Count: count})
	}
	if len(items) == 0 {
		fmt.Fprintln(w, "Cart is empty")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tNAME\tQTY\tUNIT\tPRICE\tTOTAL\tSTOCK")
	for _, it := range items {
		stock := "-"
		if it.Stock != nil {
			stock = strconv.FormatFloat(*it.Stock, 'f', -1, 64)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%.2f\t%.2f\t%s\n",
			it.ID, it.Name, it.Quantity, it.Unit, it.Price, it.LineTotal(), stock)
	}
	if err := tw.Flush(); err != nil {
		return sysError(err)
	}
	fmt.Fprintf(w, "%d item(s)\n", count)
	return nil
}

func printSummary(w io.Writer, s checkout.Summary) {
	fmt.Fprintf(w, "Subtotal:      %.2f\n", s.Subtotal)
	fmt.Fprintf(w, "Delivery fee:  %.2f\n", s.DeliveryFee)
	fmt.Fprintf(w, "Total:         %.2f\n", s.Total)
}
