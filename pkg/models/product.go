package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices go over the wire as JSON numbers, matching what storefront clients send.
	decimal.MarshalJSONWithoutQuotes = true
}

type ProductType string

const (
	ProductTypeGood    ProductType = "product"
	ProductTypeService ProductType = "service"
)

func (t ProductType) Valid() bool {
	return t == ProductTypeGood || t == ProductTypeService
}

// IsBookable reports whether the product is sold by event date rather than stock.
func (t ProductType) IsBookable() bool {
	return t == ProductTypeService
}

type Product struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Slug         string          `json:"slug"`
	Type         ProductType     `json:"type"`
	Image        string          `json:"image"`
	Images       []string        `json:"images"`
	Brand        string          `json:"brand"`
	Category     string          `json:"category"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	CountInStock int             `json:"countInStock"`
	Rating       float64         `json:"rating"`
	NumReviews   int             `json:"numReviews"`
	Reviews      []Review        `json:"reviews"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type Review struct {
	Name      string    `json:"name"`
	Comment   string    `json:"comment"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasReviewBy reports whether name already reviewed the product.
func (p *Product) HasReviewBy(name string) bool {
	for _, r := range p.Reviews {
		if r.Name == name {
			return true
		}
	}
	return false
}

// AddReview appends r and recomputes the aggregate rating and count.
func (p *Product) AddReview(r Review) {
	p.Reviews = append(p.Reviews, r)
	p.NumReviews = len(p.Reviews)
	p.Rating = AverageRating(p.Reviews, p.Rating)
}

// AverageRating is the mean review rating, or fallback when there are no reviews.
func AverageRating(reviews []Review, fallback float64) float64 {
	if len(reviews) == 0 {
		return fallback
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	return float64(sum) / float64(len(reviews))
}

type ProductPage struct {
	Products      []Product `json:"products"`
	CountProducts int       `json:"countProducts"`
	Page          int       `json:"page"`
	Pages         int       `json:"pages"`
}
