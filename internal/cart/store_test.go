package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/cartsync/internal/gateway"
	"github.com/mesh-intelligence/cartsync/internal/session"
	"github.com/mesh-intelligence/cartsync/internal/testutil"
	"github.com/mesh-intelligence/cartsync/pkg/types"
)

const guest = "guest-test"

var catalog = []testutil.Product{
	{ID: "p1", Name: "Milk", Price: 60, Unit: "litre", Stock: 10},
	{ID: "p2", Name: "Bread", Price: 35, Stock: 3},
	{ID: "p3", Name: "Eggs", Price: 72, Stock: 0},
}

type harness struct {
	srv   *testutil.CartServer
	kv    *testutil.MemKV
	store *Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := testutil.NewCartServer(catalog...)
	t.Cleanup(srv.Close)

	kv := testutil.NewMemKV()
	resolver := session.NewResolver(kv, nil, session.WithIDGenerator(func() string { return guest }))
	client := gateway.NewClient(srv.URL, resolver)
	return &harness{srv: srv, kv: kv, store: NewStore(client, kv)}
}

func ids(items []types.CartItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func storedSnapshot(t *testing.T, kv *testutil.MemKV) []types.CartItem {
	t.Helper()
	raw, ok := kv.Peek(types.KeyCartSnapshot)
	require.True(t, ok, "snapshot not persisted")
	var items []types.CartItem
	require.NoError(t, json.Unmarshal([]byte(raw), &items))
	return items
}

func TestHydrateLocalEmptyStorage(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, PhaseUninitialized, h.store.Phase())

	h.store.HydrateLocal(context.Background())

	st := h.store.State()
	assert.Equal(t, []types.CartItem{}, st.Items)
	assert.True(t, st.Initialized)
	assert.False(t, st.Loading)
	assert.Equal(t, PhaseHydrated, h.store.Phase())
}

func TestHydrateLocalNormalizesStoredShapes(t *testing.T) {
	h := newHarness(t)
	h.kv.Put(types.KeyCartSnapshot, `[
		{"id":"p1","cartRowId":"row1","name":"Milk","price":60,"unit":"litre","image":"","quantity":2},
		{"productId":{"_id":"p2","name":"Bread","price":"35"},"_id":"row2","quantity":"1"},
		{"id":"p1","cartRowId":"row1","name":"Milk","price":60,"quantity":4}
	]`)

	h.store.HydrateLocal(context.Background())

	items := h.store.Items()
	require.Len(t, items, 2)
	assert.Equal(t, []string{"p1", "p2"}, ids(items))
	assert.Equal(t, 4, items[0].Quantity, "later duplicate wins")
	assert.Equal(t, 35.0, items[1].Price)
	assert.Equal(t, "row2", items[1].CartRowID)
}

func TestHydrateLocalCorruptionStartsEmpty(t *testing.T) {
	for name, setup := range map[string]func(kv *testutil.MemKV){
		"unparseable": func(kv *testutil.MemKV) { kv.Put(types.KeyCartSnapshot, `{not json`) },
		"not a list":  func(kv *testutil.MemKV) { kv.Put(types.KeyCartSnapshot, `{"id":"p1"}`) },
		"read error":  func(kv *testutil.MemKV) { kv.SetFailures(true, false, false) },
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			setup(h.kv)

			h.store.HydrateLocal(context.Background())

			st := h.store.State()
			assert.Empty(t, st.Items)
			assert.True(t, st.Initialized)
		})
	}
}

func TestSyncFromServerReplacesWholesale(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.kv.Put(types.KeyCartSnapshot, `[{"id":"gone","cartRowId":"r0","name":"Stale","price":1,"quantity":9}]`)
	h.srv.Seed(guest, "p1", 2)

	h.store.HydrateLocal(ctx)
	require.Equal(t, []string{"gone"}, ids(h.store.Items()))

	require.NoError(t, h.store.SyncFromServer(ctx))

	items := h.store.Items()
	require.Len(t, items, 1)
	stock := 10.0
	assert.Equal(t, types.CartItem{
		ID: "p1", CartRowID: "row1", Name: "Milk", Price: 60, Unit: "litre", Quantity: 2, Stock: &stock,
	}, items[0])
	assert.Equal(t, items, storedSnapshot(t, h.kv))
	assert.Equal(t, PhaseSynced, h.store.Phase())
	assert.False(t, h.store.State().Loading)
}

func TestSyncFromServerFailureKeepsItems(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.srv.Seed(guest, "p1", 1)
	require.NoError(t, h.store.SyncFromServer(ctx))
	before := h.store.Items()

	h.srv.FailNext(testutil.Failure{Status: http.StatusInternalServerError})
	err := h.store.SyncFromServer(ctx)

	var reqErr *gateway.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "Request failed (500)", reqErr.Message)
	assert.Equal(t, before, h.store.Items())
	assert.False(t, h.store.State().Loading)
}

func TestSyncUpdatesPriceAndStock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.srv.Seed(guest, "p1", 1)
	require.NoError(t, h.store.SyncFromServer(ctx))

	h.srv.SetPrice("p1", 65)
	h.srv.SetStock("p1", 0)
	require.NoError(t, h.store.SyncFromServer(ctx))

	item, ok := h.store.Item("p1")
	require.True(t, ok)
	assert.Equal(t, 65.0, item.Price)
	require.NotNil(t, item.Stock)
	assert.Zero(t, *item.Stock)
}

func TestHydrateAfterSyncDoesNotClobber(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.srv.Seed(guest, "p1", 1)
	require.NoError(t, h.store.SyncFromServer(ctx))
	h.kv.Put(types.KeyCartSnapshot, `[{"id":"old","quantity":1}]`)

	h.store.HydrateLocal(ctx)

	assert.Equal(t, []string{"p1"}, ids(h.store.Items()))
	assert.True(t, h.store.State().Initialized)
}

func TestAddItem(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.store.AddItem(ctx, types.CartItem{ID: "p1", Name: "Milk"}, 2))
	require.NoError(t, h.store.AddItem(ctx, types.CartItem{ID: "p2"}, 0))

	items := h.store.Items()
	require.Equal(t, []string{"p1", "p2"}, ids(items))
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, 1, items[1].Quantity)
	assert.NotEmpty(t, items[0].CartRowID)
	assert.Equal(t, 3, h.store.Count())
	assert.Equal(t, items, storedSnapshot(t, h.kv))
}

func TestAddItemFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.store.AddItem(ctx, types.CartItem{ID: "p2"}, 3))
	before := h.store.Items()

	err := h.store.AddItem(ctx, types.CartItem{ID: "p2"}, 1)
	require.Error(t, err)
	assert.Equal(t, "Insufficient stock", err.Error())
	assert.Equal(t, before, h.store.Items())

	err = h.store.AddItem(ctx, types.CartItem{ID: "p3"}, 1)
	require.Error(t, err)
	assert.Equal(t, before, h.store.Items())
}

func TestAddItemRequiresProductID(t *testing.T) {
	h := newHarness(t)
	err := h.store.AddItem(context.Background(), types.CartItem{Name: "x"}, 1)
	assert.ErrorIs(t, err, ErrEmptyProductID)
	assert.Empty(t, h.srv.Requests())
}

func TestIncreaseAndDecrease(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.store.AddItem(ctx, types.CartItem{ID: "p1"}, 1))

	require.NoError(t, h.store.Increase(ctx, "p1"))
	require.NoError(t, h.store.Increase(ctx, "p1"))
	item, _ := h.store.Item("p1")
	assert.Equal(t, 3, item.Quantity)

	require.NoError(t, h.store.Decrease(ctx, "p1"))
	item, _ = h.store.Item("p1")
	assert.Equal(t, 2, item.Quantity)
	assert.Equal(t, 2, h.srv.Quantity(guest, "p1"))
}

func TestDecreaseAtOneRemoves(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.store.AddItem(ctx, types.CartItem{ID: "p1"}, 1))

	require.NoError(t, h.store.Decrease(ctx, "p1"))

	_, ok := h.store.Item("p1")
	assert.False(t, ok)
	reqs := h.srv.Requests()
	assert.Equal(t, http.MethodDelete, reqs[len(reqs)-1].Method)
	assert.True(t, strings.HasPrefix(reqs[len(reqs)-1].Path, "/api/cart/remove/"))
	for _, it := range h.store.Items() {
		assert.GreaterOrEqual(t, it.Quantity, 1)
	}
}

func TestMutationsWithoutRowAreNoOps(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.kv.Put(types.KeyCartSnapshot, `[{"id":"p1","name":"Milk","quantity":2}]`)
	h.store.HydrateLocal(ctx)
	before := h.store.Items()

	require.NoError(t, h.store.Increase(ctx, "p1"))
	require.NoError(t, h.store.Decrease(ctx, "p1"))
	require.NoError(t, h.store.Remove(ctx, "p1"))
	require.NoError(t, h.store.Increase(ctx, "unknown"))

	assert.Equal(t, before, h.store.Items())
	assert.Empty(t, h.srv.Requests())
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.store.AddItem(ctx, types.CartItem{ID: "p1"}, 1))
	require.NoError(t, h.store.AddItem(ctx, types.CartItem{ID: "p2"}, 2))

	require.NoError(t, h.store.Remove(ctx, "p2"))

	assert.Equal(t, []string{"p1"}, ids(h.store.Items()))
	assert.Equal(t, []string{"p1"}, ids(storedSnapshot(t, h.kv)))
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.store.AddItem(ctx, types.CartItem{ID: "p1"}, 1))

	require.NoError(t, h.store.Clear(ctx))

	assert.Empty(t, h.store.Items())
	assert.Empty(t, storedSnapshot(t, h.kv))
	assert.Zero(t, h.srv.Quantity(guest, "p1"))
}

func TestClearFailureKeepsItems(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.store.AddItem(ctx, types.CartItem{ID: "p1"}, 1))
	h.srv.FailNext(testutil.Failure{Status: http.StatusServiceUnavailable, Message: "maintenance"})

	err := h.store.Clear(ctx)
	require.EqualError(t, err, "maintenance")
	assert.Equal(t, []string{"p1"}, ids(h.store.Items()))
}

func TestResetLocal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.store.AddItem(ctx, types.CartItem{ID: "p1"}, 1))
	sent := len(h.srv.Requests())

	h.store.ResetLocal(ctx)

	assert.Empty(t, h.store.Items())
	_, ok := h.kv.Peek(types.KeyCartSnapshot)
	assert.False(t, ok)
	assert.Len(t, h.srv.Requests(), sent, "reset must not contact the server")
	assert.Equal(t, 1, h.srv.Quantity(guest, "p1"))
}

func TestPersistFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.store.HydrateLocal(ctx)
	h.kv.SetFailures(false, true, true)

	require.NoError(t, h.store.AddItem(ctx, types.CartItem{ID: "p1"}, 1))
	assert.Equal(t, []string{"p1"}, ids(h.store.Items()))

	h.store.ResetLocal(ctx)
	assert.Empty(t, h.store.Items())
}

func TestRapidIncreasesAreSerialized(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.store.AddItem(ctx, types.CartItem{ID: "p1"}, 1))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.store.Increase(ctx, "p1"))
		}()
	}
	wg.Wait()

	item, _ := h.store.Item("p1")
	assert.Equal(t, 6, item.Quantity)
	assert.Equal(t, 6, h.srv.Quantity(guest, "p1"))
	assert.False(t, h.store.State().Loading)
}

func TestResponseAfterResetIsDropped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	reached := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.srv.Before = func(r *http.Request) {
		if r.URL.Path == "/api/cart/add" {
			once.Do(func() { close(reached) })
			<-release
		}
	}
	before := promtest.ToFloat64(staleResponses)

	done := make(chan error, 1)
	go func() { done <- h.store.AddItem(ctx, types.CartItem{ID: "p1"}, 1) }()

	<-reached
	assert.True(t, h.store.State().Loading)
	assert.Equal(t, PhaseSyncing, h.store.Phase())
	h.store.ResetLocal(ctx)
	close(release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("AddItem did not return")
	}

	assert.Empty(t, h.store.Items())
	assert.False(t, h.store.State().Loading)
	_, ok := h.kv.Peek(types.KeyCartSnapshot)
	assert.False(t, ok, "stale response must not be persisted")
	assert.Equal(t, before+1, promtest.ToFloat64(staleResponses))
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	var mu sync.Mutex
	var seen []types.State
	unsubscribe := h.store.Subscribe(func(st types.State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, st)
	})

	require.NoError(t, h.store.AddItem(ctx, types.CartItem{ID: "p1"}, 1))

	mu.Lock()
	require.Len(t, seen, 2)
	assert.True(t, seen[0].Loading)
	assert.Empty(t, seen[0].Items)
	assert.False(t, seen[1].Loading)
	assert.Equal(t, []string{"p1"}, ids(seen[1].Items))
	seen[1].Items[0].Quantity = 99
	mu.Unlock()

	item, _ := h.store.Item("p1")
	assert.Equal(t, 1, item.Quantity, "listeners get copies")

	unsubscribe()
	unsubscribe()
	require.NoError(t, h.store.SyncFromServer(ctx))
	mu.Lock()
	assert.Len(t, seen, 2)
	mu.Unlock()
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "uninitialized", PhaseUninitialized.String())
	assert.Equal(t, "hydrated", PhaseHydrated.String())
	assert.Equal(t, "synced", PhaseSynced.String())
	assert.Equal(t, "syncing", PhaseSyncing.String())
}

type fixedGateway struct {
	snap gateway.Snapshot
}

func (g fixedGateway) FetchCart(context.Context) (gateway.Snapshot, error) { return g.snap, nil }
func (g fixedGateway) AddItem(context.Context, string, int) (gateway.Snapshot, error) {
	return g.snap, nil
}
func (g fixedGateway) SetQuantity(context.Context, string, int) (gateway.Snapshot, error) {
	return g.snap, nil
}
func (g fixedGateway) RemoveItem(context.Context, string) (gateway.Snapshot, error) {
	return g.snap, nil
}
func (g fixedGateway) ClearCart(context.Context) (gateway.Snapshot, error) { return g.snap, nil }

func TestServerDuplicatesCollapse(t *testing.T) {
	gw := fixedGateway{snap: gateway.Snapshot{Items: []json.RawMessage{
		json.RawMessage(`{"_id":"row1","productId":{"_id":"p1","name":"Milk","price":60},"quantity":1}`),
		json.RawMessage(`{"_id":"row2","productId":{"_id":"p2","name":"Bread","price":35},"quantity":1}`),
		json.RawMessage(`{"_id":"row3","productId":{"_id":"p1","name":"Milk","price":60},"quantity":5}`),
		json.RawMessage(`"garbage"`),
	}}}
	store := NewStore(gw, nil)

	require.NoError(t, store.SyncFromServer(context.Background()))

	items := store.Items()
	require.Equal(t, []string{"p1", "p2", ""}, ids(items))
	assert.Equal(t, "row3", items[0].CartRowID)
	assert.Equal(t, 5, items[0].Quantity)
}

func TestOversizedResponseKeepsItems(t *testing.T) {
	ctx := context.Background()
	body := `{"success":true,"data":{"items":[{"_id":"row1","productId":{"_id":"p1","name":"Milk","price":60},"quantity":2}]}}`
	var padded atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := body
		if padded.Load() {
			out += strings.Repeat(" ", 5<<20)
		}
		_, _ = w.Write([]byte(out))
	}))
	t.Cleanup(srv.Close)

	kv := testutil.NewMemKV()
	store := NewStore(gateway.NewClient(srv.URL, nil), kv)
	require.NoError(t, store.SyncFromServer(ctx))
	require.Equal(t, 2, store.Count())

	padded.Store(true)
	err := store.SyncFromServer(ctx)

	assert.ErrorIs(t, err, gateway.ErrBodyTooLarge)
	assert.Equal(t, 2, store.Count())
	assert.Equal(t, []string{"p1"}, ids(storedSnapshot(t, kv)))
}

func TestMutationErrorsReachCallerWithoutStateChange(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.store.AddItem(ctx, types.CartItem{ID: "p1"}, 2))
	before := h.store.Items()
	stored := storedSnapshot(t, h.kv)

	var mu sync.Mutex
	var seen []types.State
	unsubscribe := h.store.Subscribe(func(st types.State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, st)
	})
	defer unsubscribe()

	ops := map[string]func() error{
		"sync":     func() error { return h.store.SyncFromServer(ctx) },
		"add":      func() error { return h.store.AddItem(ctx, types.CartItem{ID: "p2"}, 1) },
		"increase": func() error { return h.store.Increase(ctx, "p1") },
		"decrease": func() error { return h.store.Decrease(ctx, "p1") },
		"remove":   func() error { return h.store.Remove(ctx, "p1") },
		"clear":    func() error { return h.store.Clear(ctx) },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			h.srv.FailNext(testutil.Failure{Status: http.StatusBadGateway})

			var reqErr *gateway.RequestError
			require.ErrorAs(t, op(), &reqErr)
			assert.Equal(t, http.StatusBadGateway, reqErr.Status)
			assert.Equal(t, before, h.store.Items())
			assert.Equal(t, stored, storedSnapshot(t, h.kv))
		})
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	for _, st := range seen {
		assert.Equal(t, before, st.Items)
	}
}
