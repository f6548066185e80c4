package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/vjcreations/storefront/internal/store"
	"github.com/vjcreations/storefront/pkg/models"
)

const productColumns = `id, name, slug, type, image, images, brand, category, description,
	price, count_in_stock, rating, num_reviews, created_at, updated_at`

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Slug, &p.Type, &p.Image, pq.Array(&p.Images), &p.Brand, &p.Category,
		&p.Description, &p.Price, &p.CountInStock, &p.Rating, &p.NumReviews, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...any) ([]models.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := make([]models.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachReviews(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// attachReviews loads reviews for all products in one query.
func (s *Store) attachReviews(ctx context.Context, products []models.Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]string, len(products))
	index := make(map[string]int, len(products))
	for i := range products {
		ids[i] = products[i].ID
		index[products[i].ID] = i
		products[i].Reviews = []models.Review{}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, name, comment, rating, created_at
		FROM reviews WHERE product_id = ANY($1) ORDER BY id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query reviews: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var productID string
		var r models.Review
		if err := rows.Scan(&productID, &r.Name, &r.Comment, &r.Rating, &r.CreatedAt); err != nil {
			return fmt.Errorf("scan review: %w", err)
		}
		i := index[productID]
		products[i].Reviews = append(products[i].Reviews, r)
	}
	return rows.Err()
}

func (s *Store) getProduct(ctx context.Context, where string, arg any) (*models.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE `+where, arg)
	p, err := scanProduct(row)
	if err != nil {
		return nil, notFound(err, store.ErrProductNotFound, "get product")
	}
	products := []models.Product{*p}
	if err := s.attachReviews(ctx, products); err != nil {
		return nil, err
	}
	return &products[0], nil
}

func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at`)
}

var productOrderBy = map[store.SortOrder]string{
	store.SortFeatured: "num_reviews DESC, created_at DESC",
	store.SortLowest:   "price ASC",
	store.SortHighest:  "price DESC",
	store.SortTopRated: "rating DESC",
	store.SortNewest:   "created_at DESC",
}

func (s *Store) SearchProducts(ctx context.Context, filter store.ProductFilter) ([]models.Product, int, error) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Query != "" {
		add("name ILIKE '%%' || $%d || '%%'", filter.Query)
	}
	if filter.Category != "" {
		add("category = $%d", filter.Category)
	}
	if filter.MinPrice != nil {
		add("price >= $%d", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		add("price <= $%d", *filter.MaxPrice)
	}
	if filter.MinRating != nil {
		add("rating >= $%d", *filter.MinRating)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	orderBy, ok := productOrderBy[filter.Order]
	if !ok {
		orderBy = productOrderBy[store.SortNewest]
	}
	query := `SELECT ` + productColumns + ` FROM products` + where + ` ORDER BY ` + orderBy + `, id`
	if filter.PageSize > 0 {
		args = append(args, filter.PageSize, filter.Offset())
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	products, err := s.queryProducts(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (s *Store) Categories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT category FROM products ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]string, 0)
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	return s.getProduct(ctx, "id = $1", id)
}

func (s *Store) GetProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	return s.getProduct(ctx, "slug = $1", slug)
}

// images never writes NULL into the NOT NULL images column.
func images(p *models.Product) interface{} {
	if p.Images == nil {
		p.Images = []string{}
	}
	return pq.Array(p.Images)
}

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		p.ID, p.Name, p.Slug, p.Type, p.Image, images(p), p.Brand, p.Category,
		p.Description, p.Price, p.CountInStock, p.Rating, p.NumReviews, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return uniqueOr(err, store.ErrDuplicateProduct, "insert product")
	}
	return nil
}

func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	row := s.db.QueryRowContext(ctx, `
		UPDATE products SET name = $2, slug = $3, type = $4, image = $5, images = $6, brand = $7,
			category = $8, description = $9, price = $10, count_in_stock = $11, updated_at = $12
		WHERE id = $1
		RETURNING `+productColumns,
		p.ID, p.Name, p.Slug, p.Type, p.Image, images(p), p.Brand,
		p.Category, p.Description, p.Price, p.CountInStock, time.Now().UTC(),
	)
	updated, err := scanProduct(row)
	if err != nil {
		if e := notFound(err, store.ErrProductNotFound, "update product"); e == store.ErrProductNotFound {
			return e
		}
		return uniqueOr(err, store.ErrDuplicateProduct, "update product")
	}
	products := []models.Product{*updated}
	if err := s.attachReviews(ctx, products); err != nil {
		return err
	}
	*p = products[0]
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return requireRow(res, store.ErrProductNotFound)
}

// AddReview inserts the review and recomputes the aggregates in one transaction.
// The (product_id, name) unique index backs the duplicate check.
func (s *Store) AddReview(ctx context.Context, productID string, review models.Review) (*models.Product, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx, `SELECT TRUE FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&exists)
	if err != nil {
		return nil, notFound(err, store.ErrProductNotFound, "lock product")
	}

	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO reviews (product_id, name, comment, rating, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		productID, review.Name, review.Comment, review.Rating, review.CreatedAt,
	)
	if err != nil {
		return nil, uniqueOr(err, store.ErrDuplicateReview, "insert review")
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE products SET
			num_reviews = (SELECT COUNT(*) FROM reviews WHERE product_id = $1),
			rating = (SELECT AVG(rating) FROM reviews WHERE product_id = $1),
			updated_at = $2
		WHERE id = $1`, productID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("update rating: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit review: %w", err)
	}
	return s.GetProduct(ctx, productID)
}
