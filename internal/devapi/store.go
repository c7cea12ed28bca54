package devapi

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jafarshop/storefront/internal/domain"
	"github.com/jafarshop/storefront/pkg/errors"
)

type userRecord struct {
	domain.User
	PasswordHash string
}

type paymentMethodRecord struct {
	domain.PaymentMethod
	ProviderToken string
}

// Store is the in-memory backing of the development API. All methods are
// safe for concurrent use and hand out copies.
type Store struct {
	mu sync.RWMutex

	users          map[string]*userRecord
	products       map[string]*domain.Product
	orders         map[string]*domain.Order
	orderIntents   map[string]string
	coupons        map[string]*domain.Coupon
	addresses      map[string][]domain.Address
	paymentMethods map[string][]paymentMethodRecord
	refunds        map[string]*domain.RefundRequest
	reviews        map[string][]domain.Review

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:          make(map[string]*userRecord),
		products:       make(map[string]*domain.Product),
		orders:         make(map[string]*domain.Order),
		orderIntents:   make(map[string]string),
		coupons:        make(map[string]*domain.Coupon),
		addresses:      make(map[string][]domain.Address),
		paymentMethods: make(map[string][]paymentMethodRecord),
		refunds:        make(map[string]*domain.RefundRequest),
		reviews:        make(map[string][]domain.Review),
		now:            time.Now,
	}
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// Users

func (s *Store) CreateUser(u domain.User, passwordHash string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range s.users {
		if existing.Email == email {
			return domain.User{}, &errors.ErrValidation{Field: "email", Message: "email is already registered"}
		}
	}

	u.ID = newID()
	u.Email = email
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	u.CreatedAt = s.now()
	s.users[u.ID] = &userRecord{User: u, PasswordHash: passwordHash}
	return u, nil
}

func (s *Store) UserByEmail(email string) (userRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email == email {
			return *u, nil
		}
	}
	return userRecord{}, &errors.ErrNotFound{Resource: "user", ID: email}
}

func (s *Store) User(id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return domain.User{}, &errors.ErrNotFound{Resource: "user", ID: id}
	}
	return u.User, nil
}

func (s *Store) ListUsers() []domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.User)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) UpdateUser(id string, fn func(*domain.User) error) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return domain.User{}, &errors.ErrNotFound{Resource: "user", ID: id}
	}
	updated := u.User
	if err := fn(&updated); err != nil {
		return domain.User{}, err
	}
	updated.Email = strings.ToLower(strings.TrimSpace(updated.Email))
	for otherID, other := range s.users {
		if otherID != id && other.Email == updated.Email {
			return domain.User{}, &errors.ErrValidation{Field: "email", Message: "email is already registered"}
		}
	}
	u.User = updated
	return updated, nil
}

func (s *Store) DeleteUser(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return &errors.ErrNotFound{Resource: "user", ID: id}
	}
	delete(s.users, id)
	delete(s.addresses, id)
	delete(s.paymentMethods, id)
	return nil
}

// Products

func (s *Store) PutProduct(p domain.Product) domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = newID()
		p.CreatedAt = s.now()
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	s.products[p.ID] = &p
	return p
}

func (s *Store) Product(id string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, &errors.ErrNotFound{Resource: "product", ID: id}
	}
	return *p, nil
}

func (s *Store) DeleteProduct(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return &errors.ErrNotFound{Resource: "product", ID: id}
	}
	delete(s.products, id)
	return nil
}

// Products returns every product matching filter
func (s *Store) Products(filter func(domain.Product) bool) []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if filter == nil || filter(*p) {
			out = append(out, *p)
		}
	}
	return out
}

// Orders

// PlaceOrder checks stock and coupon usage, reserves both and stores the
// order in one critical section.
func (s *Store) PlaceOrder(order domain.Order, couponCode string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range order.OrderItems {
		p, ok := s.products[item.Product]
		if !ok {
			return domain.Order{}, &errors.ErrValidation{Field: "orderItems", Message: "product " + item.Product + " no longer exists"}
		}
		if p.CountInStock < item.Quantity {
			return domain.Order{}, &errors.APIError{
				Status:  409,
				Code:    "OUT_OF_STOCK",
				Message: p.Name + " is out of stock",
			}
		}
	}

	var coupon *domain.Coupon
	if couponCode != "" {
		coupon = s.couponByCodeLocked(couponCode)
		if coupon == nil {
			return domain.Order{}, &errors.ErrValidation{Field: "couponCode", Message: "coupon not found"}
		}
		if coupon.MaxUses > 0 && coupon.UsedCount >= coupon.MaxUses {
			return domain.Order{}, &errors.ErrValidation{Field: "couponCode", Message: "coupon usage limit reached"}
		}
	}

	for _, item := range order.OrderItems {
		s.products[item.Product].CountInStock -= item.Quantity
	}
	if coupon != nil {
		coupon.UsedCount++
	}

	order.ID = newID()
	order.CreatedAt = s.now()
	s.orders[order.ID] = &order
	return order, nil
}

func (s *Store) Order(id string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, &errors.ErrNotFound{Resource: "order", ID: id}
	}
	return *o, nil
}

func (s *Store) UpdateOrder(id string, fn func(*domain.Order) error) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, &errors.ErrNotFound{Resource: "order", ID: id}
	}
	updated := *o
	if err := fn(&updated); err != nil {
		return domain.Order{}, err
	}
	*o = updated
	return updated, nil
}

func (s *Store) Orders(filter func(domain.Order) bool) []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Order, 0)
	for _, o := range s.orders {
		if filter == nil || filter(*o) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *Store) SetOrderIntent(orderID, intentID string) {
	s.mu.Lock()
	s.orderIntents[orderID] = intentID
	s.mu.Unlock()
}

func (s *Store) OrderIntent(orderID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.orderIntents[orderID]
	return id, ok
}

// Coupons

func (s *Store) couponByCodeLocked(code string) *domain.Coupon {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, c := range s.coupons {
		if c.Code == code {
			return c
		}
	}
	return nil
}

func (s *Store) CouponByCode(code string) (domain.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.couponByCodeLocked(code)
	if c == nil {
		return domain.Coupon{}, &errors.ErrNotFound{Resource: "coupon", ID: code}
	}
	return *c, nil
}

func (s *Store) PutCoupon(c domain.Coupon) (domain.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	if existing := s.couponByCodeLocked(c.Code); existing != nil && existing.ID != c.ID {
		return domain.Coupon{}, &errors.ErrValidation{Field: "code", Message: "coupon code already exists"}
	}
	if c.ID == "" {
		c.ID = newID()
	} else if _, ok := s.coupons[c.ID]; !ok {
		return domain.Coupon{}, &errors.ErrNotFound{Resource: "coupon", ID: c.ID}
	}
	s.coupons[c.ID] = &c
	return c, nil
}

func (s *Store) DeleteCoupon(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.coupons[id]; !ok {
		return &errors.ErrNotFound{Resource: "coupon", ID: id}
	}
	delete(s.coupons, id)
	return nil
}

func (s *Store) Coupons() []domain.Coupon {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Coupon, 0, len(s.coupons))
	for _, c := range s.coupons {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Addresses

func (s *Store) Addresses(userID string) []domain.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Address{}, s.addresses[userID]...)
}

func (s *Store) SaveAddress(userID string, addr domain.Address) (domain.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.addresses[userID]
	if addr.ID == "" {
		addr.ID = newID()
		addr.IsDefault = len(list) == 0
		s.addresses[userID] = append(list, addr)
		return addr, nil
	}
	for i := range list {
		if list[i].ID == addr.ID {
			addr.IsDefault = list[i].IsDefault
			list[i] = addr
			return addr, nil
		}
	}
	return domain.Address{}, &errors.ErrNotFound{Resource: "address", ID: addr.ID}
}

func (s *Store) DeleteAddress(userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.addresses[userID]
	for i := range list {
		if list[i].ID == id {
			wasDefault := list[i].IsDefault
			list = append(list[:i], list[i+1:]...)
			if wasDefault && len(list) > 0 {
				list[0].IsDefault = true
			}
			s.addresses[userID] = list
			return nil
		}
	}
	return &errors.ErrNotFound{Resource: "address", ID: id}
}

func (s *Store) SetDefaultAddress(userID, id string) (domain.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.addresses[userID]
	idx := -1
	for i := range list {
		if list[i].ID == id {
			idx = i
		}
	}
	if idx < 0 {
		return domain.Address{}, &errors.ErrNotFound{Resource: "address", ID: id}
	}
	for i := range list {
		list[i].IsDefault = i == idx
	}
	return list[idx], nil
}

// Payment methods

func (s *Store) PaymentMethods(userID string) []domain.PaymentMethod {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PaymentMethod, 0, len(s.paymentMethods[userID]))
	for _, m := range s.paymentMethods[userID] {
		out = append(out, m.PaymentMethod)
	}
	return out
}

func (s *Store) AddPaymentMethod(userID string, m domain.PaymentMethod, token string) domain.PaymentMethod {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.paymentMethods[userID]
	m.ID = newID()
	m.IsDefault = len(list) == 0
	s.paymentMethods[userID] = append(list, paymentMethodRecord{PaymentMethod: m, ProviderToken: token})
	return m
}

func (s *Store) DeletePaymentMethod(userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.paymentMethods[userID]
	for i := range list {
		if list[i].ID == id {
			wasDefault := list[i].IsDefault
			list = append(list[:i], list[i+1:]...)
			if wasDefault && len(list) > 0 {
				list[0].IsDefault = true
			}
			s.paymentMethods[userID] = list
			return nil
		}
	}
	return &errors.ErrNotFound{Resource: "payment method", ID: id}
}

func (s *Store) SetDefaultPaymentMethod(userID, id string) (domain.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.paymentMethods[userID]
	idx := -1
	for i := range list {
		if list[i].ID == id {
			idx = i
		}
	}
	if idx < 0 {
		return domain.PaymentMethod{}, &errors.ErrNotFound{Resource: "payment method", ID: id}
	}
	for i := range list {
		list[i].IsDefault = i == idx
	}
	return list[idx].PaymentMethod, nil
}

// Refunds

func (s *Store) CreateRefund(r domain.RefundRequest) (domain.RefundRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.refunds {
		if existing.Order == r.Order && existing.Status != domain.RefundStatusRejected {
			return domain.RefundRequest{}, &errors.ErrValidation{Field: "orderId", Message: "a refund is already open for this order"}
		}
	}
	r.ID = newID()
	r.Status = domain.RefundStatusPending
	r.CreatedAt = s.now()
	r.UpdatedAt = r.CreatedAt
	s.refunds[r.ID] = &r
	return r, nil
}

func (s *Store) UpdateRefund(id string, fn func(*domain.RefundRequest) error) (domain.RefundRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.refunds[id]
	if !ok {
		return domain.RefundRequest{}, &errors.ErrNotFound{Resource: "refund", ID: id}
	}
	updated := *r
	if err := fn(&updated); err != nil {
		return domain.RefundRequest{}, err
	}
	updated.UpdatedAt = s.now()
	*r = updated
	return updated, nil
}

func (s *Store) Refunds(filter func(domain.RefundRequest) bool) []domain.RefundRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RefundRequest, 0)
	for _, r := range s.refunds {
		if filter == nil || filter(*r) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Reviews

func (s *Store) Reviews(productID string) []domain.Review {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Review{}, s.reviews[productID]...)
}

// AddReview stores a review and refreshes the product's rating aggregate
func (s *Store) AddReview(r domain.Review) (domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[r.Product]
	if !ok {
		return domain.Review{}, &errors.ErrNotFound{Resource: "product", ID: r.Product}
	}
	for _, existing := range s.reviews[r.Product] {
		if existing.User == r.User {
			return domain.Review{}, &errors.ErrValidation{Field: "product", Message: "product already reviewed"}
		}
	}

	r.ID = newID()
	r.CreatedAt = s.now()
	reviews := append(s.reviews[r.Product], r)
	s.reviews[r.Product] = reviews

	sum := 0
	for _, rv := range reviews {
		sum += rv.Rating
	}
	p.NumReviews = len(reviews)
	p.Rating = float64(sum) / float64(len(reviews))
	return r, nil
}
