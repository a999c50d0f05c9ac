// Package normalize maps the cart item shapes produced by the cart API and by
// older local snapshots into the canonical types.CartItem.
//
// Three shapes are recognised:
//
//	flat:            {"id": "p1", "name": "Milk", "price": 60, "quantity": 2}
//	nested product:  {"_id": "row1", "productId": {"_id": "p1", "name": "Milk"}, "quantity": 2}
//	alternate key:   {"_id": "row1", "product": {"id": "p1", "name": "Milk"}, "quantity": 2}
//
// Anything else, including non-object input, becomes a default item.
package normalize

import (
	"encoding/json"
	"math"

	"github.com/mesh-intelligence/cartsync/pkg/types"
)

// itemShape identifies which known item representation a raw item matched.
type itemShape int

const (
	shapeInvalid itemShape = iota
	shapeFlat
	shapeNestedProduct
	shapeAltProduct
)

// wireItem is the union of every top-level field any shape may carry.
type wireItem struct {
	ID        flexString      `json:"id"`
	CartRowID flexString      `json:"cartRowId"`
	RowID     flexString      `json:"_id"`
	ProductID json.RawMessage `json:"productId"`
	Product   json.RawMessage `json:"product"`
	Name      flexString      `json:"name"`
	Price     flexNumber      `json:"price"`
	Unit      flexString      `json:"unit"`
	Image     flexString      `json:"image"`
	Quantity  flexNumber      `json:"quantity"`
	Stock     flexNumber      `json:"stock"`
}

// wireProduct is a catalog product embedded in a cart row.
type wireProduct struct {
	MongoID flexString        `json:"_id"`
	ID      flexString        `json:"id"`
	Name    flexString        `json:"name"`
	Price   flexNumber        `json:"price"`
	Unit    flexString        `json:"unit"`
	Image   flexString        `json:"image"`
	Images  []json.RawMessage `json:"images"`
	Stock   flexNumber        `json:"stock"`
}

// parsed is a decoded raw item tagged with the shape it matched.
type parsed struct {
	shape   itemShape
	item    wireItem
	product *wireProduct
}

func parse(raw json.RawMessage) parsed {
	if !isObject(raw) {
		return parsed{shape: shapeInvalid}
	}
	var w wireItem
	if err := json.Unmarshal(raw, &w); err != nil {
		return parsed{shape: shapeInvalid}
	}
	if p, ok := decodeProduct(w.ProductID); ok {
		return parsed{shape: shapeNestedProduct, item: w, product: p}
	}
	if p, ok := decodeProduct(w.Product); ok {
		return parsed{shape: shapeAltProduct, item: w, product: p}
	}
	return parsed{shape: shapeFlat, item: w}
}

func decodeProduct(raw json.RawMessage) (*wireProduct, bool) {
	if !isObject(raw) {
		return nil, false
	}
	var p wireProduct
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false
	}
	return &p, true
}

// Normalize converts raw into a canonical CartItem. It is total: malformed or
// missing fields fall back to defaults. Normalizing the JSON encoding of a
// canonical item returns the same item.
func Normalize(raw json.RawMessage) types.CartItem {
	p := parse(raw)
	if p.shape == shapeInvalid {
		return defaultItem()
	}
	w := p.item
	prod := p.product
	if prod == nil {
		prod = &wireProduct{}
	}

	item := types.CartItem{
		ID:       firstString(w.ID, flatProductID(w.ProductID), prod.MongoID, prod.ID, altProductID(p)),
		Name:     firstString(w.Name, prod.Name),
		Unit:     firstString(w.Unit, prod.Unit),
		Image:    firstString(w.Image, prod.Image, firstImage(prod.Images)),
		Quantity: quantity(w.Quantity),
	}
	if item.Name == "" {
		item.Name = types.DefaultItemName
	}
	if item.Unit == "" {
		item.Unit = types.DefaultItemUnit
	}
	if rowID := firstString(w.CartRowID, w.RowID); rowID != "" {
		item.CartRowID = rowID
	}

	switch {
	case w.Price.ok:
		item.Price = nonNegative(w.Price.v)
	case prod.Price.ok:
		item.Price = nonNegative(prod.Price.v)
	}

	switch {
	case w.Stock.ok:
		item.Stock = stockPtr(w.Stock.v)
	case prod.Stock.ok:
		item.Stock = stockPtr(prod.Stock.v)
	}
	return item
}

// NormalizeAll normalizes every raw item, preserving order.
func NormalizeAll(raws []json.RawMessage) []types.CartItem {
	out := make([]types.CartItem, 0, len(raws))
	for _, raw := range raws {
		out = append(out, Normalize(raw))
	}
	return out
}

func defaultItem() types.CartItem {
	return types.CartItem{
		Name:     types.DefaultItemName,
		Unit:     types.DefaultItemUnit,
		Quantity: 1,
	}
}

// flatProductID reads productId when it holds a plain identifier rather than
// an embedded product.
func flatProductID(raw json.RawMessage) flexString {
	var s flexString
	if len(raw) == 0 || isObject(raw) {
		return s
	}
	_ = s.UnmarshalJSON(raw)
	return s
}

// altProductID returns the alternate product's id when the nested product
// object carried none.
func altProductID(p parsed) flexString {
	if p.shape != shapeNestedProduct {
		return flexString{}
	}
	alt, ok := decodeProduct(p.item.Product)
	if !ok {
		return flexString{}
	}
	return firstFlex(alt.MongoID, alt.ID)
}

func firstImage(images []json.RawMessage) flexString {
	if len(images) == 0 {
		return flexString{}
	}
	var s flexString
	if isObject(images[0]) {
		var obj struct {
			URL flexString `json:"url"`
		}
		_ = json.Unmarshal(images[0], &obj)
		return obj.URL
	}
	_ = s.UnmarshalJSON(images[0])
	return s
}

func firstFlex(vals ...flexString) flexString {
	for _, v := range vals {
		if v.ok {
			return v
		}
	}
	return flexString{}
}

func firstString(vals ...flexString) string {
	return firstFlex(vals...).v
}

func quantity(n flexNumber) int {
	if !n.ok {
		return 1
	}
	q := math.Trunc(n.v)
	if q < 1 {
		return 1
	}
	if q > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(q)
}

func nonNegative(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}

func stockPtr(f float64) *float64 {
	v := nonNegative(f)
	return &v
}
