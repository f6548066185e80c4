// Package catalog serves products, categories and reviews, with a read-through
// cache in front of the store.
package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/vjcreations/storefront/internal/apperr"
	"github.com/vjcreations/storefront/internal/auth"
	"github.com/vjcreations/storefront/internal/store"
	"github.com/vjcreations/storefront/pkg/models"
)

const DefaultPageSize = 8

const (
	placeholderImage = "/images/p1.jpg"
	keyAllProducts   = "products:all"
	keyCategories    = "categories"
)

var ErrInvalidType = apperr.Validation("Invalid or missing product type")

// Cache is the read-through cache the catalog consults before the store.
type Cache interface {
	Get(ctx context.Context, name string, dst interface{}) (bool, error)
	Set(ctx context.Context, name string, value interface{}) error
	Invalidate(ctx context.Context) error
}

type Service struct {
	products store.ProductStore
	cache    Cache
	logger   *logrus.Logger
	now      func() time.Time
}

func NewService(products store.ProductStore, cache Cache, logger *logrus.Logger) *Service {
	return &Service{products: products, cache: cache, logger: logger, now: time.Now}
}

// SearchParams are the raw query-string filters. "all" and "" both mean unfiltered.
type SearchParams struct {
	Query    string
	Category string
	Price    string
	Rating   string
	Order    string
	Page     int
	PageSize int
}

type ProductInput struct {
	Name         string          `json:"name" validate:"required"`
	Slug         string          `json:"slug" validate:"required"`
	Type         string          `json:"type" validate:"required,oneof=product service"`
	Image        string          `json:"image"`
	Images       []string        `json:"images"`
	Brand        string          `json:"brand"`
	Category     string          `json:"category"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	CountInStock int             `json:"countInStock" validate:"gte=0"`
}

type ReviewInput struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"required"`
}

type ReviewResult struct {
	Message    string        `json:"message"`
	Review     models.Review `json:"review"`
	NumReviews int           `json:"numReviews"`
	Rating     float64       `json:"rating"`
}

func unfiltered(v string) bool {
	return v == "" || v == "all"
}

func pages(total, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

func normalizePaging(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return page, pageSize
}

// ParsePriceRange parses "min-max" into inclusive decimal bounds.
func ParsePriceRange(s string) (*decimal.Decimal, *decimal.Decimal, error) {
	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		return nil, nil, apperr.Validation("price must look like min-max")
	}
	lower, err := decimal.NewFromString(strings.TrimSpace(lo))
	if err != nil {
		return nil, nil, apperr.Validation("price must look like min-max")
	}
	upper, err := decimal.NewFromString(strings.TrimSpace(hi))
	if err != nil {
		return nil, nil, apperr.Validation("price must look like min-max")
	}
	return &lower, &upper, nil
}

func (s *Service) filter(params SearchParams) (store.ProductFilter, error) {
	page, pageSize := normalizePaging(params.Page, params.PageSize)
	f := store.ProductFilter{
		Order:    store.SortOrder(params.Order),
		Page:     page,
		PageSize: pageSize,
	}
	if !unfiltered(params.Query) {
		f.Query = params.Query
	}
	if !unfiltered(params.Category) {
		f.Category = params.Category
	}
	if !unfiltered(params.Price) {
		lower, upper, err := ParsePriceRange(params.Price)
		if err != nil {
			return f, err
		}
		f.MinPrice, f.MaxPrice = lower, upper
	}
	if !unfiltered(params.Rating) {
		rating, err := strconv.ParseFloat(params.Rating, 64)
		if err != nil {
			return f, apperr.Validation("rating must be a number")
		}
		f.MinRating = &rating
	}
	return f, nil
}

func (s *Service) Search(ctx context.Context, params SearchParams) (*models.ProductPage, error) {
	f, err := s.filter(params)
	if err != nil {
		return nil, err
	}
	products, total, err := s.products.SearchProducts(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	return &models.ProductPage{
		Products:      nonNil(products),
		CountProducts: total,
		Page:          f.Page,
		Pages:         pages(total, f.PageSize),
	}, nil
}

// AdminList pages through every product, newest first.
func (s *Service) AdminList(ctx context.Context, page, pageSize int) (*models.ProductPage, error) {
	return s.Search(ctx, SearchParams{Order: string(store.SortNewest), Page: page, PageSize: pageSize})
}

func nonNil(products []models.Product) []models.Product {
	if products == nil {
		return []models.Product{}
	}
	return products
}

// cached runs load on a miss and fills the cache. Cache errors are logged and skipped.
func (s *Service) cached(ctx context.Context, key string, dst interface{}, load func() error) error {
	found, err := s.cache.Get(ctx, key, dst)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Cache read failed, falling back to store")
	}
	if found {
		return nil
	}
	if err := load(); err != nil {
		return err
	}
	if err := s.cache.Set(ctx, key, dst); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Cache write failed")
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.WithError(err).Error("Failed to invalidate catalog cache")
	}
}

func (s *Service) List(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.cached(ctx, keyAllProducts, &products, func() error {
		list, err := s.products.ListProducts(ctx)
		products = nonNil(list)
		return err
	})
	return products, err
}

func (s *Service) Categories(ctx context.Context) ([]string, error) {
	var categories []string
	err := s.cached(ctx, keyCategories, &categories, func() error {
		list, err := s.products.Categories(ctx)
		if list == nil {
			list = []string{}
		}
		categories = list
		return err
	})
	return categories, err
}

func (s *Service) GetByID(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product
	err := s.cached(ctx, "product:id:"+id, &p, func() error {
		found, err := s.products.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		p = *found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) GetBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var p models.Product
	err := s.cached(ctx, "product:slug:"+slug, &p, func() error {
		found, err := s.products.GetProductBySlug(ctx, slug)
		if err != nil {
			return err
		}
		p = *found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create adds a placeholder product of the given type for an admin to edit.
func (s *Service) Create(ctx context.Context, actor *models.User, productType string) (*models.Product, error) {
	if err := auth.RequireAdmin(actor); err != nil {
		return nil, err
	}
	t := models.ProductType(productType)
	if !t.Valid() {
		return nil, ErrInvalidType
	}

	stamp := s.now().UnixNano()
	p := &models.Product{
		Name:        fmt.Sprintf("Name %d", stamp),
		Slug:        fmt.Sprintf("Name-%d", stamp),
		Type:        t,
		Image:       placeholderImage,
		Images:      []string{},
		Brand:       "Brand",
		Category:    "Category",
		Description: "Description",
		Price:       decimal.Zero,
	}
	if err := s.products.CreateProduct(ctx, p); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	s.invalidate(ctx)

	s.logger.WithFields(logrus.Fields{"product_id": p.ID, "type": p.Type, "admin_id": actor.ID}).Info("Product created")
	return p, nil
}

func (s *Service) Update(ctx context.Context, actor *models.User, id string, in ProductInput) (*models.Product, error) {
	if err := auth.RequireAdmin(actor); err != nil {
		return nil, err
	}
	t := models.ProductType(in.Type)
	if !t.Valid() {
		return nil, ErrInvalidType
	}
	if in.Price.IsNegative() {
		return nil, apperr.Validation("price must be at least 0")
	}
	if in.CountInStock < 0 {
		return nil, apperr.Validation("countInStock must be at least 0")
	}

	p := &models.Product{
		ID:           id,
		Name:         strings.TrimSpace(in.Name),
		Slug:         strings.TrimSpace(in.Slug),
		Type:         t,
		Image:        in.Image,
		Images:       in.Images,
		Brand:        in.Brand,
		Category:     in.Category,
		Description:  in.Description,
		Price:        in.Price.Round(2),
		CountInStock: in.CountInStock,
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	if err := s.products.UpdateProduct(ctx, p); err != nil {
		return nil, fmt.Errorf("update product %s: %w", id, err)
	}
	s.invalidate(ctx)
	return p, nil
}

func (s *Service) Delete(ctx context.Context, actor *models.User, id string) error {
	if err := auth.RequireAdmin(actor); err != nil {
		return err
	}
	if err := s.products.DeleteProduct(ctx, id); err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	s.invalidate(ctx)
	s.logger.WithFields(logrus.Fields{"product_id": id, "admin_id": actor.ID}).Info("Product deleted")
	return nil
}

// AddReview records actor's review. One review per reviewer name per product.
func (s *Service) AddReview(ctx context.Context, actor *models.User, productID string, in ReviewInput) (*ReviewResult, error) {
	review := models.Review{
		Name:      actor.Name,
		Comment:   in.Comment,
		Rating:    in.Rating,
		CreatedAt: s.now().UTC(),
	}
	p, err := s.products.AddReview(ctx, productID, review)
	if err != nil {
		return nil, fmt.Errorf("review product %s: %w", productID, err)
	}
	s.invalidate(ctx)

	return &ReviewResult{
		Message:    "Review Created",
		Review:     p.Reviews[len(p.Reviews)-1],
		NumReviews: p.NumReviews,
		Rating:     p.Rating,
	}, nil
}
