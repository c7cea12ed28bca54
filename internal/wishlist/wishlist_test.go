package wishlist

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jafarshop/storefront/internal/domain"
	"github.com/jafarshop/storefront/internal/storage"
)

type stubCart struct {
	added []domain.Product
	err   error
}

func (s *stubCart) AddItem(_ context.Context, p domain.Product) error {
	if s.err != nil {
		return s.err
	}
	s.added = append(s.added, p)
	return nil
}

// gatedRepo blocks its first Save until release is closed
type gatedRepo struct {
	storage.Repository[State]
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedRepo) Save(ctx context.Context, state State) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.started)
		<-g.release
	}
	return g.Repository.Save(ctx, state)
}

func newStore(t *testing.T) (*Store, storage.Backend) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	backend := storage.NewMemoryBackend()
	return NewStore(storage.NewJSONRepository[State](backend, storage.KeyWishlist, logger), logger), backend
}

func product(id string) domain.Product {
	return domain.Product{ID: id, Name: "Product " + id, Price: decimal.NewFromInt(5)}
}

func TestAddAndRemove(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddItem(ctx, product("a")))
	require.NoError(t, store.AddItem(ctx, product("a")))
	assert.True(t, store.IsInWishlist("a"))
	assert.Equal(t, 1, store.Count())

	require.NoError(t, store.RemoveItem(ctx, "a"))
	assert.False(t, store.IsInWishlist("a"))
	assert.Equal(t, 0, store.Count())
}

func TestIsInWishlistTracksLastCall(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	ids := []string{"a", "b", "c"}
	last := map[string]bool{}

	for i := 0; i < 300; i++ {
		id := ids[rng.Intn(len(ids))]
		if rng.Intn(2) == 0 {
			require.NoError(t, store.AddItem(ctx, product(id)))
			last[id] = true
		} else {
			require.NoError(t, store.RemoveItem(ctx, id))
			last[id] = false
		}

		for _, check := range ids {
			assert.Equal(t, last[check], store.IsInWishlist(check), "step %d id %s", i, check)
		}
	}
}

func TestToggle(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	saved, err := store.Toggle(ctx, product("a"))
	require.NoError(t, err)
	assert.True(t, saved)

	saved, err = store.Toggle(ctx, product("a"))
	require.NoError(t, err)
	assert.False(t, saved)
	assert.False(t, store.IsInWishlist("a"))
}

func TestPersistsAcrossStores(t *testing.T) {
	store, backend := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddItem(ctx, product("a")))
	require.NoError(t, store.AddItem(ctx, product("b")))

	logger := zaptest.NewLogger(t)
	reopened := NewStore(storage.NewJSONRepository[State](backend, storage.KeyWishlist, logger), logger)
	require.NoError(t, reopened.Load(ctx))

	assert.True(t, reopened.IsInWishlist("a"))
	assert.True(t, reopened.IsInWishlist("b"))
	assert.Equal(t, 2, reopened.Count())
}

func TestMoveToCart(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.AddItem(ctx, product("a")))

	t.Run("cart failure keeps item", func(t *testing.T) {
		cart := &stubCart{err: errors.New("boom")}
		assert.Error(t, store.MoveToCart(ctx, "a", cart))
		assert.True(t, store.IsInWishlist("a"))
	})

	t.Run("success", func(t *testing.T) {
		cart := &stubCart{}
		require.NoError(t, store.MoveToCart(ctx, "a", cart))
		require.Len(t, cart.added, 1)
		assert.Equal(t, "a", cart.added[0].ID)
		assert.False(t, store.IsInWishlist("a"))
	})

	t.Run("missing id is noop", func(t *testing.T) {
		cart := &stubCart{}
		require.NoError(t, store.MoveToCart(ctx, "zzz", cart))
		assert.Empty(t, cart.added)
	})
}

func TestSubscribeOnlyOnChange(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	calls := 0
	store.Subscribe(func(State) { calls++ })

	require.NoError(t, store.AddItem(ctx, product("a")))
	require.NoError(t, store.AddItem(ctx, product("a")))
	require.NoError(t, store.RemoveItem(ctx, "missing"))

	assert.Equal(t, 1, calls)
}

func TestConcurrentChangesPersistLatestState(t *testing.T) {
	logger := zaptest.NewLogger(t)
	inner := storage.NewJSONRepository[State](storage.NewMemoryBackend(), storage.KeyWishlist, logger)
	repo := &gatedRepo{Repository: inner, started: make(chan struct{}), release: make(chan struct{})}
	store := NewStore(repo, logger)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, store.AddItem(ctx, product("a")))
	}()
	<-repo.started
	go func() {
		defer wg.Done()
		assert.NoError(t, store.AddItem(ctx, product("b")))
	}()
	close(repo.release)
	wg.Wait()

	persisted, err := inner.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, persisted.Items, 2)
}

func TestStaleSnapshotIsNotSaved(t *testing.T) {
	store, backend := newStore(t)
	ctx := context.Background()

	newer := State{Items: []domain.WishlistItem{{Product: product("a")}, {Product: product("b")}}}
	require.NoError(t, store.save(ctx, 2, newer))
	require.NoError(t, store.save(ctx, 1, State{Items: newer.Items[:1]}))

	persisted, err := storage.NewJSONRepository[State](backend, storage.KeyWishlist, zaptest.NewLogger(t)).Load(ctx)
	require.NoError(t, err)
	assert.Len(t, persisted.Items, 2)
}

func TestListenersRunAfterSave(t *testing.T) {
	store, backend := newStore(t)
	repo := storage.NewJSONRepository[State](backend, storage.KeyWishlist, zaptest.NewLogger(t))
	ctx := context.Background()

	var persistedCounts []int
	store.Subscribe(func(State) {
		persisted, err := repo.Load(ctx)
		require.NoError(t, err)
		persistedCounts = append(persistedCounts, len(persisted.Items))
	})

	require.NoError(t, store.AddItem(ctx, product("a")))
	require.NoError(t, store.RemoveItem(ctx, "a"))

	assert.Equal(t, []int{1, 0}, persistedCounts)
}
