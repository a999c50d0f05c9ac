// Package cart holds the cart state container. The Store is the only writer
// of the in-memory cart and of its durable snapshot. Every server-touching
// operation replaces the item list wholesale with the normalized server
// response; nothing is applied optimistically.
//
// Server-touching operations run one at a time in call order, so each one
// reads quantities the previous one committed. ResetLocal does not wait: it
// bumps a generation counter and any response that started under an older
// generation is dropped.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mesh-intelligence/cartsync/internal/gateway"
	"github.com/mesh-intelligence/cartsync/internal/normalize"
	"github.com/mesh-intelligence/cartsync/pkg/types"
)

// Gateway is the remote cart API as the Store uses it.
type Gateway interface {
	FetchCart(ctx context.Context) (gateway.Snapshot, error)
	AddItem(ctx context.Context, productID string, quantity int) (gateway.Snapshot, error)
	SetQuantity(ctx context.Context, cartRowID string, quantity int) (gateway.Snapshot, error)
	RemoveItem(ctx context.Context, cartRowID string) (gateway.Snapshot, error)
	ClearCart(ctx context.Context) (gateway.Snapshot, error)
}

// Listener receives a copy of the state after every change. Listeners run
// synchronously and must not call Store mutations.
type Listener func(types.State)

// ErrEmptyProductID is returned by AddItem for an item without a catalog id.
var ErrEmptyProductID = errors.New("product id must not be empty")

// Phase is the Store's position in its lifecycle.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseHydrated
	PhaseSynced
	PhaseSyncing
)

func (p Phase) String() string {
	switch p {
	case PhaseHydrated:
		return "hydrated"
	case PhaseSynced:
		return "synced"
	case PhaseSyncing:
		return "syncing"
	default:
		return "uninitialized"
	}
}

// Store is the cart state container.
type Store struct {
	gw     Gateway
	kv     types.KVStore
	logger *slog.Logger

	// ops serializes server-touching operations.
	ops sync.Mutex

	// notifyMu keeps listener deliveries in commit order.
	notifyMu sync.Mutex

	// persistMu orders snapshot writes against ResetLocal.
	persistMu sync.Mutex

	mu         sync.Mutex
	state      types.State
	synced     bool
	pending    int
	generation uint64
	listeners  map[int]Listener
	nextID     int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the Store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates an empty, uninitialized Store.
func NewStore(gw Gateway, kv types.KVStore, opts ...Option) *Store {
	s := &Store{
		gw:        gw,
		kv:        kv,
		logger:    slog.Default(),
		state:     types.State{Items: []types.CartItem{}},
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "cart")
	return s
}

// State returns a copy of the current state.
func (s *Store) State() types.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Items returns a copy of the current items.
func (s *Store) Items() []types.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.CloneItems(s.state.Items)
}

// Item returns the item with the given catalog id.
func (s *Store) Item(id string) (types.CartItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := types.FindItem(s.state.Items, id)
	if i < 0 {
		return types.CartItem{}, false
	}
	return types.CloneItems(s.state.Items[i : i+1])[0], true
}

// Count returns the total quantity across all items.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.state.Items {
		n += it.Quantity
	}
	return n
}

// Phase reports where the Store is in its lifecycle. PhaseSyncing is
// reported while a server request is outstanding.
func (s *Store) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.pending > 0:
		return PhaseSyncing
	case s.synced:
		return PhaseSynced
	case s.state.Initialized:
		return PhaseHydrated
	default:
		return PhaseUninitialized
	}
}

// Subscribe registers fn for state changes and returns a function that
// removes it.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// HydrateLocal loads the durable snapshot into memory and marks the Store
// initialized. Unreadable or corrupt snapshots hydrate an empty cart. A
// snapshot read after a server sync already committed is ignored.
func (s *Store) HydrateLocal(ctx context.Context) {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	items, err := s.readSnapshot(ctx)
	if err != nil {
		s.logger.Warn("local cart snapshot unusable, starting empty", "error", err)
		items = []types.CartItem{}
	}

	s.commit(func(st *types.State) {
		if !s.synced && s.generation == gen {
			st.Items = items
		}
		st.Initialized = true
	})
	s.logger.Debug("cart hydrated", "items", len(items))
}

func (s *Store) readSnapshot(ctx context.Context) ([]types.CartItem, error) {
	if s.kv == nil {
		return []types.CartItem{}, nil
	}
	raw, err := s.kv.Get(ctx, types.KeyCartSnapshot)
	if errors.Is(err, types.ErrNotFound) {
		return []types.CartItem{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var rows []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return dedupe(normalize.NormalizeAll(rows)), nil
}

// SyncFromServer replaces the cart with the server's. On failure the current
// items are kept and the error is returned.
func (s *Store) SyncFromServer(ctx context.Context) error {
	s.ops.Lock()
	defer s.ops.Unlock()
	return s.exchange(ctx, gateway.OpFetch, func(ctx context.Context) (gateway.Snapshot, error) {
		return s.gw.FetchCart(ctx)
	})
}

// AddItem asks the server to add quantity units of item. Quantities below 1
// add one unit. Nothing changes locally until the server answers.
func (s *Store) AddItem(ctx context.Context, item types.CartItem, quantity int) error {
	if item.ID == "" {
		return ErrEmptyProductID
	}
	if quantity < 1 {
		quantity = 1
	}
	s.ops.Lock()
	defer s.ops.Unlock()
	return s.exchange(ctx, gateway.OpAdd, func(ctx context.Context) (gateway.Snapshot, error) {
		return s.gw.AddItem(ctx, item.ID, quantity)
	})
}

// Increase adds one unit to the item with catalog id. Items the server has
// not confirmed yet are left alone.
func (s *Store) Increase(ctx context.Context, id string) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	item, ok := s.rowItem(id)
	if !ok {
		return nil
	}
	return s.exchange(ctx, gateway.OpUpdate, func(ctx context.Context) (gateway.Snapshot, error) {
		return s.gw.SetQuantity(ctx, item.CartRowID, item.Quantity+1)
	})
}

// Decrease removes one unit from the item with catalog id. At quantity 1 the
// item is removed instead.
func (s *Store) Decrease(ctx context.Context, id string) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	item, ok := s.rowItem(id)
	if !ok {
		return nil
	}
	if item.Quantity <= 1 {
		return s.removeLocked(ctx, item)
	}
	return s.exchange(ctx, gateway.OpUpdate, func(ctx context.Context) (gateway.Snapshot, error) {
		return s.gw.SetQuantity(ctx, item.CartRowID, item.Quantity-1)
	})
}

// Remove deletes the item with catalog id from the server cart.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	item, ok := s.rowItem(id)
	if !ok {
		return nil
	}
	return s.removeLocked(ctx, item)
}

// removeLocked must be called with s.ops held.
func (s *Store) removeLocked(ctx context.Context, item types.CartItem) error {
	return s.exchange(ctx, gateway.OpRemove, func(ctx context.Context) (gateway.Snapshot, error) {
		return s.gw.RemoveItem(ctx, item.CartRowID)
	})
}

// Clear empties the server cart and stores the (empty) result.
func (s *Store) Clear(ctx context.Context) error {
	s.ops.Lock()
	defer s.ops.Unlock()
	return s.exchange(ctx, gateway.OpClear, func(ctx context.Context) (gateway.Snapshot, error) {
		return s.gw.ClearCart(ctx)
	})
}

// ResetLocal empties the cart in memory and in durable storage without
// contacting the server. Responses still in flight are discarded.
func (s *Store) ResetLocal(ctx context.Context) {
	s.commit(func(st *types.State) {
		s.generation++
		s.synced = false
		st.Items = []types.CartItem{}
	})

	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if s.kv == nil {
		return
	}
	if err := s.kv.Remove(ctx, types.KeyCartSnapshot); err != nil {
		s.logger.Warn("removing local cart snapshot failed", "error", err)
	}
}

// rowItem returns the item for id when it exists and has a server row.
func (s *Store) rowItem(id string) (types.CartItem, bool) {
	item, ok := s.Item(id)
	switch {
	case !ok:
		s.logger.Debug("no such cart item", "id", id)
		return item, false
	case !item.HasRow():
		s.logger.Debug("cart item not confirmed by server yet", "id", id)
		return item, false
	}
	return item, true
}

// exchange performs one server call and commits its snapshot. The caller
// must hold s.ops.
func (s *Store) exchange(ctx context.Context, op string, call func(context.Context) (gateway.Snapshot, error)) error {
	var gen uint64
	s.commit(func(st *types.State) {
		gen = s.generation
		s.pending++
		st.Loading = true
	})

	snap, err := call(ctx)

	var items []types.CartItem
	if err == nil {
		items = dedupe(normalize.NormalizeAll(snap.Items))
	}

	stale := false
	s.commit(func(st *types.State) {
		s.pending--
		st.Loading = s.pending > 0
		if err != nil {
			return
		}
		if s.generation != gen {
			stale = true
			return
		}
		st.Items = items
		s.synced = true
	})

	if err != nil {
		s.logger.Warn("cart request failed, keeping current items", "op", op, "error", err)
		return err
	}
	if stale {
		staleResponses.Inc()
		s.logger.Info("dropping cart response from before local reset", "op", op)
		return nil
	}

	if perr := s.persist(ctx, gen, items); perr != nil {
		s.logger.Warn("persisting cart snapshot failed", "op", op, "error", perr)
	}
	return nil
}

// persist writes items as the durable snapshot unless ResetLocal ran since
// generation gen.
func (s *Store) persist(ctx context.Context, gen uint64, items []types.CartItem) error {
	if s.kv == nil {
		return nil
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	current := s.generation
	s.mu.Unlock()
	if current != gen {
		return nil
	}

	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.kv.Set(ctx, types.KeyCartSnapshot, string(data))
}

// commit applies fn to the state under the lock and notifies listeners with
// the result.
func (s *Store) commit(fn func(st *types.State)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	fn(&s.state)
	snapshot := s.state.Clone()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
}

// dedupe keeps one entry per catalog id. A later duplicate replaces the
// earlier entry in the earlier position.
func dedupe(items []types.CartItem) []types.CartItem {
	out := make([]types.CartItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, it := range items {
		if i, ok := index[it.ID]; ok {
			out[i] = it
			continue
		}
		index[it.ID] = len(out)
		out = append(out, it)
	}
	return out
}
