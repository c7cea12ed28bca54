package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jafarshop/storefront/internal/domain"
)

// Product sort orders accepted by the API
const (
	SortNewest    = "newest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortRating    = "rating"
)

// ListProductsParams filters and pages the product listing
type ListProductsParams struct {
	Cursor   string
	Limit    int
	Search   string
	Sort     string
	Category string
}

func (p ListProductsParams) values() url.Values {
	q := url.Values{}
	if p.Cursor != "" {
		q.Set("cursor", p.Cursor)
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Search != "" {
		q.Set("search", p.Search)
	}
	if p.Sort != "" {
		q.Set("sort", p.Sort)
	}
	if p.Category != "" {
		q.Set("category", p.Category)
	}
	return q
}

// Page is one cursor page of results
type Page[T any] struct {
	Items      []T
	NextCursor string
	HasMore    bool
}

func pageFrom[T any](items []T, meta *Meta) *Page[T] {
	page := &Page[T]{Items: items}
	if meta != nil {
		page.NextCursor = meta.NextCursor
		page.HasMore = meta.HasMore && meta.NextCursor != ""
	}
	return page
}

// ListProducts returns one page of products
func (c *Client) ListProducts(ctx context.Context, params ListProductsParams) (*Page[domain.Product], error) {
	var products []domain.Product
	meta, err := c.do(ctx, http.MethodGet, "/products", params.values(), nil, &products)
	if err != nil {
		return nil, err
	}
	return pageFrom(products, meta), nil
}

// GetProduct returns a product by id
func (c *Client) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	if _, err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(id), nil, nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// ListCategories returns the distinct product categories
func (c *Client) ListCategories(ctx context.Context) ([]string, error) {
	var categories []string
	if _, err := c.do(ctx, http.MethodGet, "/products/categories", nil, nil, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// CreateReviewRequest represents a new review
type CreateReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// ListReviews returns a product's reviews
func (c *Client) ListReviews(ctx context.Context, productID string) ([]domain.Review, error) {
	var reviews []domain.Review
	path := "/products/" + url.PathEscape(productID) + "/reviews"
	if _, err := c.do(ctx, http.MethodGet, path, nil, nil, &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

// CreateReview posts a review for a product
func (c *Client) CreateReview(ctx context.Context, productID string, req CreateReviewRequest) (*domain.Review, error) {
	var review domain.Review
	path := "/products/" + url.PathEscape(productID) + "/reviews"
	if _, err := c.do(ctx, http.MethodPost, path, nil, req, &review); err != nil {
		return nil, err
	}
	return &review, nil
}

// CanReview asks whether the current user may review a product
func (c *Client) CanReview(ctx context.Context, productID string) (*domain.ReviewEligibility, error) {
	var eligibility domain.ReviewEligibility
	path := "/products/" + url.PathEscape(productID) + "/reviews/eligibility"
	if _, err := c.do(ctx, http.MethodGet, path, nil, nil, &eligibility); err != nil {
		return nil, err
	}
	return &eligibility, nil
}
