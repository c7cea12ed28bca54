package devapi

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/storefront/internal/domain"
	"github.com/jafarshop/storefront/pkg/errors"
)

const (
	defaultPageSize = 12
	maxPageSize     = 100
)

// productInput is the admin create/update payload
type productInput struct {
	Name         string   `json:"name" binding:"required"`
	Description  string   `json:"description"`
	Price        string   `json:"price" binding:"required"`
	Category     string   `json:"category" binding:"required"`
	Brand        string   `json:"brand"`
	Images       []string `json:"images"`
	CountInStock int      `json:"countInStock" binding:"min=0"`
}

func (in productInput) apply(p *domain.Product) error {
	price, err := decimal.NewFromString(in.Price)
	if err != nil || price.IsNegative() {
		return &errors.ErrValidation{Field: "price", Message: "price must be a non-negative decimal"}
	}
	p.Name = in.Name
	p.Description = in.Description
	p.Price = price.Round(2)
	p.Category = in.Category
	p.Brand = in.Brand
	p.Images = in.Images
	p.CountInStock = in.CountInStock
	return nil
}

func sortProducts(products []domain.Product, order string) {
	less := func(a, b domain.Product) bool { return a.CreatedAt.After(b.CreatedAt) }
	switch order {
	case "price_asc":
		less = func(a, b domain.Product) bool { return a.Price.LessThan(b.Price) }
	case "price_desc":
		less = func(a, b domain.Product) bool { return a.Price.GreaterThan(b.Price) }
	case "rating":
		less = func(a, b domain.Product) bool { return a.Rating > b.Rating }
	}
	sort.SliceStable(products, func(i, j int) bool {
		a, b := products[i], products[j]
		if less(a, b) {
			return true
		}
		if less(b, a) {
			return false
		}
		return a.ID < b.ID
	})
}

// handleListProducts handles GET /api/products. The cursor is the id of the
// last product of the previous page in the requested sort order.
func handleListProducts(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultPageSize
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid limit", map[string]string{"limit": "must be a positive integer"})
				return
			}
			limit = n
		}
		if limit > maxPageSize {
			limit = maxPageSize
		}

		search := strings.ToLower(strings.TrimSpace(c.Query("search")))
		category := c.Query("category")
		products := store.Products(func(p domain.Product) bool {
			if category != "" && !strings.EqualFold(p.Category, category) {
				return false
			}
			if search != "" &&
				!strings.Contains(strings.ToLower(p.Name), search) &&
				!strings.Contains(strings.ToLower(p.Description), search) {
				return false
			}
			return true
		})
		sortProducts(products, c.Query("sort"))

		start := 0
		if cursor := c.Query("cursor"); cursor != "" {
			start = -1
			for i, p := range products {
				if p.ID == cursor {
					start = i + 1
					break
				}
			}
			if start < 0 {
				fail(c, http.StatusBadRequest, "INVALID_CURSOR", "cursor does not match any product", nil)
				return
			}
		}

		end := start + limit
		if end > len(products) {
			end = len(products)
		}
		page := products[start:end]

		m := meta{Total: len(products)}
		if end < len(products) && len(page) > 0 {
			m.HasMore = true
			m.NextCursor = page[len(page)-1].ID
		}
		respondPage(c, page, m)
	}
}

// handleGetProduct handles GET /api/products/:id
func handleGetProduct(store *Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		product, err := store.Product(c.Param("id"))
		if err != nil {
			handleError(c, err, logger)
			return
		}
		respond(c, http.StatusOK, product)
	}
}

// handleListCategories handles GET /api/products/categories
func handleListCategories(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		seen := make(map[string]struct{})
		categories := []string{}
		for _, p := range store.Products(nil) {
			if _, ok := seen[p.Category]; ok || p.Category == "" {
				continue
			}
			seen[p.Category] = struct{}{}
			categories = append(categories, p.Category)
		}
		sort.Strings(categories)
		respond(c, http.StatusOK, categories)
	}
}

// handleCreateProduct handles POST /api/products (admin)
func handleCreateProduct(store *Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in productInput
		if !bindJSON(c, &in) {
			return
		}
		var p domain.Product
		if err := in.apply(&p); err != nil {
			handleError(c, err, logger)
			return
		}
		p = store.PutProduct(p)
		logger.Info("Product created", zap.String("product_id", p.ID))
		respond(c, http.StatusCreated, p)
	}
}

// handleUpdateProduct handles PUT /api/products/:id (admin)
func handleUpdateProduct(store *Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := store.Product(c.Param("id"))
		if err != nil {
			handleError(c, err, logger)
			return
		}
		var in productInput
		if !bindJSON(c, &in) {
			return
		}
		if err := in.apply(&p); err != nil {
			handleError(c, err, logger)
			return
		}
		respond(c, http.StatusOK, store.PutProduct(p))
	}
}

// handleDeleteProduct handles DELETE /api/products/:id (admin)
func handleDeleteProduct(store *Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.DeleteProduct(c.Param("id")); err != nil {
			handleError(c, err, logger)
			return
		}
		respondMessage(c, "Product removed")
	}
}

type reviewRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment" binding:"required"`
}

// reviewEligibility: the user has a paid order containing the product and
// has not reviewed it yet.
func reviewEligibility(store *Store, userID, productID string) domain.ReviewEligibility {
	for _, r := range store.Reviews(productID) {
		if r.User == userID {
			return domain.ReviewEligibility{CanReview: false, Reason: "You have already reviewed this product"}
		}
	}

	purchased := store.Orders(func(o domain.Order) bool {
		if o.User.ID != userID || !o.IsPaid {
			return false
		}
		for _, item := range o.OrderItems {
			if item.Product == productID {
				return true
			}
		}
		return false
	})
	if len(purchased) == 0 {
		return domain.ReviewEligibility{CanReview: false, Reason: "Only customers who bought this product can review it"}
	}
	return domain.ReviewEligibility{CanReview: true}
}

// handleListReviews handles GET /api/products/:id/reviews
func handleListReviews(store *Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := store.Product(id); err != nil {
			handleError(c, err, logger)
			return
		}
		respond(c, http.StatusOK, store.Reviews(id))
	}
}

// handleReviewEligibility handles GET /api/products/:id/reviews/eligibility
func handleReviewEligibility(store *Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := store.Product(id); err != nil {
			handleError(c, err, logger)
			return
		}
		respond(c, http.StatusOK, reviewEligibility(store, currentUser(c).ID, id))
	}
}

// handleCreateReview handles POST /api/products/:id/reviews
func handleCreateReview(store *Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reviewRequest
		if !bindJSON(c, &req) {
			return
		}

		id := c.Param("id")
		user := currentUser(c)
		if _, err := store.Product(id); err != nil {
			handleError(c, err, logger)
			return
		}
		if e := reviewEligibility(store, user.ID, id); !e.CanReview {
			fail(c, http.StatusForbidden, "NOT_ELIGIBLE", e.Reason, nil)
			return
		}

		review, err := store.AddReview(domain.Review{
			Product: id,
			User:    user.ID,
			Name:    user.Name,
			Rating:  req.Rating,
			Comment: req.Comment,
		})
		if err != nil {
			handleError(c, err, logger)
			return
		}
		respond(c, http.StatusCreated, review)
	}
}
