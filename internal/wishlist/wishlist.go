// Package wishlist holds the locally persisted set of saved products.
package wishlist

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jafarshop/storefront/internal/domain"
	"github.com/jafarshop/storefront/internal/storage"
)

// State is the persisted wishlist snapshot
type State struct {
	Items []domain.WishlistItem `json:"items"`
}

// Listener is notified with a copy of the state after every change
type Listener func(State)

// CartAdder is the part of the cart store MoveToCart needs
type CartAdder interface {
	AddItem(ctx context.Context, product domain.Product) error
}

// Store is the wishlist state container. It is safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	items     []domain.WishlistItem
	version   uint64
	repo      storage.Repository[State]
	listeners map[int]Listener
	nextID    int
	now       func() time.Time
	logger    *zap.Logger

	saveMu sync.Mutex
	saved  uint64 // newest version handed to repo, guarded by saveMu
}

// NewStore creates an empty wishlist backed by repo
func NewStore(repo storage.Repository[State], logger *zap.Logger) *Store {
	return &Store{
		repo:      repo,
		listeners: make(map[int]Listener),
		now:       time.Now,
		logger:    logger,
	}
}

// Load rehydrates the wishlist, keeping the first entry per product id
func (s *Store) Load(ctx context.Context) error {
	state, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.items = nil
	seen := make(map[string]bool, len(state.Items))
	for _, item := range state.Items {
		if item.Product.ID == "" || seen[item.Product.ID] {
			continue
		}
		seen[item.Product.ID] = true
		s.items = append(s.items, item)
	}
	snap := s.snapshot()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// AddItem saves product; adding a saved product is a no-op
func (s *Store) AddItem(ctx context.Context, product domain.Product) error {
	return s.mutate(ctx, func() bool {
		if s.indexOf(product.ID) >= 0 {
			return false
		}
		s.items = append(s.items, domain.WishlistItem{Product: product, AddedAt: s.now()})
		return true
	})
}

func (s *Store) RemoveItem(ctx context.Context, id string) error {
	return s.mutate(ctx, func() bool {
		i := s.indexOf(id)
		if i < 0 {
			return false
		}
		s.items = append(s.items[:i], s.items[i+1:]...)
		return true
	})
}

// Toggle adds product when absent, removes it when present, and reports
// whether it is saved afterwards.
func (s *Store) Toggle(ctx context.Context, product domain.Product) (bool, error) {
	var saved bool
	err := s.mutate(ctx, func() bool {
		if i := s.indexOf(product.ID); i >= 0 {
			s.items = append(s.items[:i], s.items[i+1:]...)
			saved = false
			return true
		}
		s.items = append(s.items, domain.WishlistItem{Product: product, AddedAt: s.now()})
		saved = true
		return true
	})
	return saved, err
}

func (s *Store) Clear(ctx context.Context) error {
	return s.mutate(ctx, func() bool {
		changed := len(s.items) > 0
		s.items = nil
		return changed
	})
}

// MoveToCart adds the saved product to cart and then removes it from the wishlist
func (s *Store) MoveToCart(ctx context.Context, id string, cart CartAdder) error {
	s.mu.Lock()
	i := s.indexOf(id)
	var product domain.Product
	if i >= 0 {
		product = s.items[i].Product
	}
	s.mu.Unlock()

	if i < 0 {
		return nil
	}
	if err := cart.AddItem(ctx, product); err != nil {
		return err
	}
	return s.RemoveItem(ctx, id)
}

func (s *Store) IsInWishlist(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOf(id) >= 0
}

func (s *Store) Items() []domain.WishlistItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot().Items
}

func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// mutate persists and then notifies, only when fn reports a change
func (s *Store) mutate(ctx context.Context, fn func() bool) error {
	s.mu.Lock()
	if !fn() {
		s.mu.Unlock()
		return nil
	}
	s.version++
	version := s.version
	snap := s.snapshot()
	s.mu.Unlock()

	err := s.save(ctx, version, snap)

	s.mu.Lock()
	current := s.snapshot()
	s.mu.Unlock()
	s.notify(current)

	return err
}

// save writes snap unless a newer version was already written
func (s *Store) save(ctx context.Context, version uint64, snap State) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if version < s.saved {
		return nil
	}
	s.saved = version

	if err := s.repo.Save(ctx, snap); err != nil {
		s.logger.Error("Failed to persist wishlist", zap.Error(err))
		return err
	}
	return nil
}

func (s *Store) indexOf(id string) int {
	for i, item := range s.items {
		if item.Product.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) snapshot() State {
	items := make([]domain.WishlistItem, len(s.items))
	copy(items, s.items)
	return State{Items: items}
}

func (s *Store) notify(snap State) {
	s.mu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}
