package types

// Defaults substituted when a field is missing from every known item shape.
const (
	DefaultItemName = "Product"
	DefaultItemUnit = "piece"
)

// CartItem is the canonical cart line owned by the cart store.
type CartItem struct {
	// ID is the catalog product identifier; unique within a cart.
	ID string `json:"id"`

	// CartRowID is the server-side cart entry identifier. Empty until the
	// server has confirmed the line; quantity updates and removal need it.
	CartRowID string `json:"cartRowId,omitempty"`

	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Unit  string  `json:"unit"`

	// Image is a fallback glyph or a resolvable image locator.
	Image string `json:"image"`

	// Quantity is always at least 1.
	Quantity int `json:"quantity"`

	// Stock is the last known available stock; nil when the server did not say.
	Stock *float64 `json:"stock,omitempty"`
}

// HasRow reports whether the server has assigned a cart row to the item.
func (i CartItem) HasRow() bool {
	return i.CartRowID != ""
}

// LineTotal returns price times quantity.
func (i CartItem) LineTotal() float64 {
	return i.Price * float64(i.Quantity)
}

// State is a point-in-time view of the cart store.
type State struct {
	Items []CartItem `json:"items"`

	// Initialized becomes true once, after the first local hydration attempt.
	Initialized bool `json:"initialized"`

	// Loading is true only while a server request is outstanding.
	Loading bool `json:"loading"`
}

// Clone returns a deep copy of the state so listeners cannot alias store memory.
func (s State) Clone() State {
	out := s
	out.Items = CloneItems(s.Items)
	return out
}

// CloneItems copies items, including their stock pointers. A nil slice
// becomes an empty, non-nil slice.
func CloneItems(items []CartItem) []CartItem {
	out := make([]CartItem, len(items))
	for i, it := range items {
		if it.Stock != nil {
			v := *it.Stock
			it.Stock = &v
		}
		out[i] = it
	}
	return out
}

// FindItem returns the index of the item with the given catalog id, or -1.
func FindItem(items []CartItem, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}
