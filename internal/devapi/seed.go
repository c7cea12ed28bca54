package devapi

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/jafarshop/storefront/internal/domain"
)

// Seed accounts for local development
const (
	SeedAdminEmail    = "admin@example.com"
	SeedCustomerEmail = "jane@example.com"
	SeedPassword      = "password123"
)

type seedProduct struct {
	name, category, brand, price string
	stock                        int
}

var seedProducts = []seedProduct{
	{"Wireless Headphones", "electronics", "Sonic", "89.99", 25},
	{"Mechanical Keyboard", "electronics", "Keyforge", "129.00", 10},
	{"USB-C Charger 65W", "electronics", "Voltix", "34.50", 40},
	{"Ceramic Pour-Over Set", "kitchen", "Kettle & Co", "42.00", 15},
	{"Cast Iron Skillet", "kitchen", "Forge", "55.00", 12},
	{"Chef's Knife 8in", "kitchen", "Edgewise", "74.95", 8},
	{"Desk Lamp", "home", "Lumen", "19.99", 30},
	{"Linen Throw Blanket", "home", "Nest", "64.00", 18},
	{"Trail Running Shoes", "outdoors", "Stride", "119.00", 20},
	{"Insulated Water Bottle", "outdoors", "Frost", "24.99", 50},
	{"Hiking Daypack 22L", "outdoors", "Summit", "79.00", 14},
	{"Paperback Notebook", "stationery", "Inkwell", "6.50", 100},
	{"Fountain Pen", "stationery", "Inkwell", "38.00", 0},
}

// Seed fills an empty store with demo accounts, products and coupons
func Seed(store *Store) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(SeedPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash seed password: %w", err)
	}

	if _, err := store.CreateUser(domain.User{Name: "Admin", Email: SeedAdminEmail, Role: domain.RoleAdmin}, string(hash)); err != nil {
		return err
	}
	if _, err := store.CreateUser(domain.User{Name: "Jane Doe", Email: SeedCustomerEmail, Role: domain.RoleUser}, string(hash)); err != nil {
		return err
	}

	for _, sp := range seedProducts {
		store.PutProduct(domain.Product{
			Name:         sp.name,
			Description:  sp.name + " by " + sp.brand,
			Price:        decimal.RequireFromString(sp.price),
			Category:     sp.category,
			Brand:        sp.brand,
			CountInStock: sp.stock,
		})
	}

	coupons := []domain.Coupon{
		{Code: "WELCOME10", DiscountType: domain.DiscountTypePercentage, DiscountValue: decimal.NewFromInt(10), IsActive: true},
		{Code: "SAVE20", DiscountType: domain.DiscountTypeFixed, DiscountValue: decimal.NewFromInt(20), MinPurchase: decimal.NewFromInt(100), IsActive: true},
		{Code: "RETIRED", DiscountType: domain.DiscountTypeFixed, DiscountValue: decimal.NewFromInt(5), IsActive: false},
	}
	for _, c := range coupons {
		if _, err := store.PutCoupon(c); err != nil {
			return err
		}
	}
	return nil
}
