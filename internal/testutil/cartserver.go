package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Product is a catalog entry known to CartServer.
type Product struct {
	ID    string  `json:"_id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Unit  string  `json:"unit,omitempty"`
	Image string  `json:"image,omitempty"`
	Stock float64 `json:"stock"`
}

type serverRow struct {
	RowID     string
	ProductID string
	Quantity  int
}

// Failure makes CartServer answer the next requests with an error.
type Failure struct {
	Status  int
	Message string
	// Raw, when set, is written verbatim instead of a JSON message.
	Raw string
}

// CartServer is an httptest server implementing the cart API. Carts are
// keyed by the bearer token or the x-session-id header. Rows are returned in
// the nested product shape the real API uses.
type CartServer struct {
	*httptest.Server

	mu       sync.Mutex
	products map[string]Product
	carts    map[string][]serverRow
	nextRow  int
	failures []Failure
	requests []RecordedRequest

	// Before, when set, runs at the start of every request outside the lock.
	Before func(r *http.Request)
}

// RecordedRequest captures what CartServer received.
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   string
}

// NewCartServer starts a CartServer with the given catalog. Close it with
// t.Cleanup(srv.Close).
func NewCartServer(products ...Product) *CartServer {
	s := &CartServer{
		products: make(map[string]Product),
		carts:    make(map[string][]serverRow),
	}
	for _, p := range products {
		s.products[p.ID] = p
	}

	r := chi.NewRouter()
	r.Use(s.record)
	r.Route("/api/cart", func(r chi.Router) {
		r.Get("/", s.handleFetch)
		r.Post("/add", s.handleAdd)
		r.Put("/update/{rowID}", s.handleUpdate)
		r.Delete("/remove/{rowID}", s.handleRemove)
		r.Delete("/clear", s.handleClear)
	})
	s.Server = httptest.NewServer(r)
	return s
}

// FailNext queues failures answered in order before normal handling resumes.
func (s *CartServer) FailNext(failures ...Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failures...)
}

// SetStock changes a catalog product's stock.
func (s *CartServer) SetStock(productID string, stock float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.products[productID]
	p.Stock = stock
	s.products[productID] = p
}

// SetPrice changes a catalog product's price.
func (s *CartServer) SetPrice(productID string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.products[productID]
	p.Price = price
	s.products[productID] = p
}

// Requests returns every request received so far.
func (s *CartServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// Quantity returns the server-side quantity of productID in the cart of the
// given identity, or 0.
func (s *CartServer) Quantity(identity, productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.carts[identity] {
		if row.ProductID == productID {
			return row.Quantity
		}
	}
	return 0
}

// Seed puts productID with quantity into the cart of identity.
func (s *CartServer) Seed(identity, productID string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRow++
	s.carts[identity] = append(s.carts[identity], serverRow{
		RowID:     fmt.Sprintf("row%d", s.nextRow),
		ProductID: productID,
		Quantity:  quantity,
	})
}

func (s *CartServer) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(body))
		}
		if s.Before != nil {
			s.Before(r)
		}

		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Header: r.Header.Clone(),
			Body:   string(body),
		})
		var fail *Failure
		if len(s.failures) > 0 {
			f := s.failures[0]
			s.failures = s.failures[1:]
			fail = &f
		}
		s.mu.Unlock()

		if fail != nil {
			if fail.Raw != "" || fail.Message == "" {
				w.WriteHeader(fail.Status)
				_, _ = w.Write([]byte(fail.Raw))
				return
			}
			writeJSON(w, fail.Status, map[string]any{"success": false, "message": fail.Message})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func identity(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("x-session-id")
}

func (s *CartServer) handleFetch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeCartLocked(w, identity(r))
}

func (s *CartServer) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "productId is required"})
		return
	}
	if req.Quantity < 1 {
		req.Quantity = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[req.ProductID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Product not found"})
		return
	}
	id := identity(r)
	rows := s.carts[id]
	for i := range rows {
		if rows[i].ProductID == req.ProductID {
			if float64(rows[i].Quantity+req.Quantity) > p.Stock {
				writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Insufficient stock"})
				return
			}
			rows[i].Quantity += req.Quantity
			s.writeCartLocked(w, id)
			return
		}
	}
	if float64(req.Quantity) > p.Stock {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Insufficient stock"})
		return
	}
	s.nextRow++
	s.carts[id] = append(rows, serverRow{
		RowID:     fmt.Sprintf("row%d", s.nextRow),
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	s.writeCartLocked(w, id)
}

func (s *CartServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "quantity must be at least 1"})
		return
	}
	rowID := chi.URLParam(r, "rowID")

	s.mu.Lock()
	defer s.mu.Unlock()
	id := identity(r)
	rows := s.carts[id]
	for i := range rows {
		if rows[i].RowID == rowID {
			rows[i].Quantity = req.Quantity
			s.writeCartLocked(w, id)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"message": "Cart item not found"})
}

func (s *CartServer) handleRemove(w http.ResponseWriter, r *http.Request) {
	rowID := chi.URLParam(r, "rowID")

	s.mu.Lock()
	defer s.mu.Unlock()
	id := identity(r)
	rows := s.carts[id]
	for i := range rows {
		if rows[i].RowID == rowID {
			s.carts[id] = append(rows[:i:i], rows[i+1:]...)
			s.writeCartLocked(w, id)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"message": "Cart item not found"})
}

func (s *CartServer) handleClear(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := identity(r)
	delete(s.carts, id)
	s.writeCartLocked(w, id)
}

// writeCartLocked answers with the cart envelope. The caller must hold s.mu.
func (s *CartServer) writeCartLocked(w http.ResponseWriter, id string) {
	items := make([]map[string]any, 0, len(s.carts[id]))
	subtotal := 0.0
	for _, row := range s.carts[id] {
		p := s.products[row.ProductID]
		subtotal += p.Price * float64(row.Quantity)
		items = append(items, map[string]any{
			"_id":       row.RowID,
			"productId": p,
			"quantity":  row.Quantity,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"items":   items,
			"pricing": map[string]any{"subtotal": subtotal},
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
