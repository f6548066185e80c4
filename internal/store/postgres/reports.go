package postgres

import (
	"context"
	"fmt"

	"github.com/vjcreations/storefront/pkg/models"
)

func (s *Store) salesBucket(ctx context.Context, key, where string) (models.SalesBucket, error) {
	b := models.SalesBucket{Key: key}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(total_price), 0) FROM orders `+where).Scan(&b.Orders, &b.Sales)
	if err != nil {
		return b, fmt.Errorf("sales bucket %s: %w", key, err)
	}
	return b, nil
}

func (s *Store) salesBuckets(ctx context.Context, keyExpr string) ([]models.SalesBucket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+keyExpr+` AS k, COUNT(*), COALESCE(SUM(total_price), 0)
		FROM orders GROUP BY k ORDER BY k`)
	if err != nil {
		return nil, fmt.Errorf("sales buckets: %w", err)
	}
	defer rows.Close()

	buckets := make([]models.SalesBucket, 0)
	for rows.Next() {
		var b models.SalesBucket
		if err := rows.Scan(&b.Key, &b.Orders, &b.Sales); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

func (s *Store) countBuckets(ctx context.Context, column, table string) ([]models.CountBucket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+column+` AS k, COUNT(*) AS n FROM `+table+` GROUP BY k ORDER BY n DESC, k`)
	if err != nil {
		return nil, fmt.Errorf("count buckets %s.%s: %w", table, column, err)
	}
	defer rows.Close()

	buckets := make([]models.CountBucket, 0)
	for rows.Next() {
		var b models.CountBucket
		if err := rows.Scan(&b.Key, &b.Count); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

func (s *Store) topSellingProducts(ctx context.Context) ([]models.ProductSales, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, MIN(name), SUM(quantity), SUM(price * quantity) AS sales
		FROM order_items GROUP BY product_id
		ORDER BY sales DESC, MIN(name) LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("top selling products: %w", err)
	}
	defer rows.Close()

	top := make([]models.ProductSales, 0)
	for rows.Next() {
		var ps models.ProductSales
		if err := rows.Scan(&ps.ProductID, &ps.Name, &ps.Quantity, &ps.Sales); err != nil {
			return nil, err
		}
		top = append(top, ps)
	}
	return top, rows.Err()
}

func (s *Store) Summary(ctx context.Context) (*models.Summary, error) {
	summary := &models.Summary{}
	var err error

	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&summary.Users); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	all, err := s.salesBucket(ctx, "all", "")
	if err != nil {
		return nil, err
	}
	summary.Orders, summary.TotalSales = all.Orders, all.Sales

	if summary.UnpaidOrders, err = s.salesBucket(ctx, "unpaid", "WHERE NOT is_paid"); err != nil {
		return nil, err
	}
	if summary.UndeliveredOrders, err = s.salesBucket(ctx, "undelivered", "WHERE NOT is_delivered"); err != nil {
		return nil, err
	}
	if summary.PaymentMethods, err = s.salesBuckets(ctx, "payment_method"); err != nil {
		return nil, err
	}
	if summary.DailyOrders, err = s.salesBuckets(ctx, `to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD')`); err != nil {
		return nil, err
	}
	if summary.MonthlyOrders, err = s.salesBuckets(ctx, `to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM')`); err != nil {
		return nil, err
	}
	if summary.YearlyOrders, err = s.salesBuckets(ctx, `to_char(created_at AT TIME ZONE 'UTC', 'YYYY')`); err != nil {
		return nil, err
	}
	if summary.OrdersByCity, err = s.countBuckets(ctx, "city", "orders"); err != nil {
		return nil, err
	}
	if summary.UsersByCity, err = s.countBuckets(ctx, "city", "users"); err != nil {
		return nil, err
	}
	if summary.ProductCategories, err = s.countBuckets(ctx, "category", "products"); err != nil {
		return nil, err
	}
	if summary.TopSellingProducts, err = s.topSellingProducts(ctx); err != nil {
		return nil, err
	}
	return summary, nil
}

func (s *Store) SellerStats(ctx context.Context) (*models.SellerStats, error) {
	brands, err := s.countBuckets(ctx, "brand", "products")
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.brand, SUM(i.quantity), SUM(i.price * i.quantity)
		FROM order_items i JOIN products p ON p.id = i.product_id
		GROUP BY p.brand ORDER BY p.brand`)
	if err != nil {
		return nil, fmt.Errorf("brand sales: %w", err)
	}
	defer rows.Close()

	sales := make([]models.BrandSales, 0)
	for rows.Next() {
		var b models.BrandSales
		if err := rows.Scan(&b.Brand, &b.Quantity, &b.Sales); err != nil {
			return nil, err
		}
		sales = append(sales, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &models.SellerStats{ProductBrands: brands, BrandSales: sales}, nil
}
