// Package cart holds the locally persisted shopping cart.
package cart

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/storefront/internal/domain"
	"github.com/jafarshop/storefront/internal/storage"
)

// State is the persisted cart snapshot. Total is stored for readers of the
// snapshot but always recomputed from Items on load.
type State struct {
	Items []domain.CartItem `json:"items"`
	Total decimal.Decimal   `json:"total"`
}

// Listener is notified with a copy of the state after every mutation
type Listener func(State)

// Store is the cart state container. It is safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	items     []domain.CartItem
	total     decimal.Decimal
	version   uint64
	repo      storage.Repository[State]
	listeners map[int]Listener
	nextID    int
	logger    *zap.Logger

	saveMu sync.Mutex
	saved  uint64 // newest version handed to repo, guarded by saveMu
}

// NewStore creates an empty cart backed by repo
func NewStore(repo storage.Repository[State], logger *zap.Logger) *Store {
	return &Store{
		repo:      repo,
		listeners: make(map[int]Listener),
		logger:    logger,
	}
}

// Load rehydrates the cart from the repository, dropping lines that violate
// the quantity or uniqueness invariants.
func (s *Store) Load(ctx context.Context) error {
	state, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.items = s.items[:0]
	seen := make(map[string]bool, len(state.Items))
	for _, item := range state.Items {
		if item.Quantity < 1 {
			continue
		}
		if item.Product.ID != "" && seen[item.Product.ID] {
			continue
		}
		seen[item.Product.ID] = true
		s.items = append(s.items, item)
	}
	s.recompute()
	snap := s.snapshot()
	s.mu.Unlock()

	s.logger.Debug("Cart loaded", zap.Int("lines", len(snap.Items)), zap.String("total", snap.Total.String()))
	s.notify(snap)
	return nil
}

// AddItem increments the product's quantity, inserting it with quantity 1
// when absent.
func (s *Store) AddItem(ctx context.Context, product domain.Product) error {
	return s.mutate(ctx, func() {
		if i := s.indexOf(product.ID); i >= 0 {
			s.items[i].Quantity++
			return
		}
		s.items = append(s.items, domain.CartItem{Product: product, Quantity: 1})
	})
}

// RemoveItem deletes the line for id, if any
func (s *Store) RemoveItem(ctx context.Context, id string) error {
	return s.mutate(ctx, func() {
		s.removeLocked(id)
	})
}

// UpdateQuantity sets the quantity for id; q <= 0 removes the line
func (s *Store) UpdateQuantity(ctx context.Context, id string, q int) error {
	return s.mutate(ctx, func() {
		if q <= 0 {
			s.removeLocked(id)
			return
		}
		if i := s.indexOf(id); i >= 0 {
			s.items[i].Quantity = q
		}
	})
}

// Clear empties the cart
func (s *Store) Clear(ctx context.Context) error {
	return s.mutate(ctx, func() {
		s.items = nil
	})
}

// Items returns a copy of the cart lines
func (s *Store) Items() []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot().Items
}

// Total returns the derived cart total
func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Count returns the number of units in the cart
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, item := range s.items {
		n += item.Quantity
	}
	return n
}

// IsEmpty reports whether the cart has no lines
func (s *Store) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items) == 0
}

// OrderItems projects the cart into the order-submission shape. Lines without
// a product ID are dropped; lines without an image get the placeholder.
func (s *Store) OrderItems() []domain.OrderItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.OrderItem, 0, len(s.items))
	for _, item := range s.items {
		if item.Product.ID == "" {
			s.logger.Warn("Skipping cart line without product id", zap.String("name", item.Product.Name))
			continue
		}
		image := domain.PlaceholderImage
		if len(item.Product.Images) > 0 && item.Product.Images[0] != "" {
			image = item.Product.Images[0]
		}
		out = append(out, domain.OrderItem{
			Product:  item.Product.ID,
			Name:     item.Product.Name,
			Quantity: item.Quantity,
			Image:    image,
			Price:    item.Product.Price,
		})
	}
	return out
}

// Subscribe registers fn for change notifications and returns an unsubscribe func
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

// mutate applies fn under the lock, recomputes the total, persists and then
// notifies with the current state. The in-memory state keeps the mutation even
// when persisting fails.
func (s *Store) mutate(ctx context.Context, fn func()) error {
	s.mu.Lock()
	fn()
	s.recompute()
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

// save writes snap unless a newer version was already written. Saves are
// serialized so an older snapshot never overwrites a newer one.
func (s *Store) save(ctx context.Context, version uint64, snap State) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if version < s.saved {
		s.logger.Debug("Skipping stale cart snapshot", zap.Uint64("version", version), zap.Uint64("saved", s.saved))
		return nil
	}
	s.saved = version

	if err := s.repo.Save(ctx, snap); err != nil {
		s.logger.Error("Failed to persist cart", zap.Error(err))
		return err
	}
	return nil
}

func (s *Store) recompute() {
	total := decimal.Zero
	for _, item := range s.items {
		total = total.Add(item.Subtotal())
	}
	s.total = total
}

func (s *Store) indexOf(id string) int {
	for i, item := range s.items {
		if item.Product.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) removeLocked(id string) {
	if i := s.indexOf(id); i >= 0 {
		s.items = append(s.items[:i], s.items[i+1:]...)
	}
}

func (s *Store) snapshot() State {
	items := make([]domain.CartItem, len(s.items))
	copy(items, s.items)
	return State{Items: items, Total: s.total}
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
