package memory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/vjcreations/storefront/pkg/models"
)

const topSellingLimit = 10

type salesAccumulator struct {
	order   []string
	buckets map[string]*models.SalesBucket
}

func newSalesAccumulator() *salesAccumulator {
	return &salesAccumulator{buckets: make(map[string]*models.SalesBucket)}
}

func (a *salesAccumulator) add(key string, amount decimal.Decimal) {
	b, ok := a.buckets[key]
	if !ok {
		b = &models.SalesBucket{Key: key, Sales: decimal.Zero}
		a.buckets[key] = b
		a.order = append(a.order, key)
	}
	b.Orders++
	b.Sales = b.Sales.Add(amount)
}

// sorted returns buckets ordered by key ascending.
func (a *salesAccumulator) sorted() []models.SalesBucket {
	sort.Strings(a.order)
	out := make([]models.SalesBucket, 0, len(a.order))
	for _, key := range a.order {
		out = append(out, *a.buckets[key])
	}
	return out
}

func countBuckets(counts map[string]int) []models.CountBucket {
	out := make([]models.CountBucket, 0, len(counts))
	for key, n := range counts {
		out = append(out, models.CountBucket{Key: key, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func lineTotal(item models.OrderItem) decimal.Decimal {
	return item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
}

func (s *Store) Summary(ctx context.Context) (*models.Summary, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	summary := &models.Summary{
		Users:             len(s.users),
		TotalSales:        decimal.Zero,
		UnpaidOrders:      models.SalesBucket{Key: "unpaid", Sales: decimal.Zero},
		UndeliveredOrders: models.SalesBucket{Key: "undelivered", Sales: decimal.Zero},
	}

	methods := newSalesAccumulator()
	daily := newSalesAccumulator()
	monthly := newSalesAccumulator()
	yearly := newSalesAccumulator()
	ordersByCity := make(map[string]int)
	products := make(map[string]*models.ProductSales)

	for _, o := range s.orders {
		created := o.CreatedAt.UTC()
		summary.Orders++
		summary.TotalSales = summary.TotalSales.Add(o.TotalPrice)
		if !o.IsPaid {
			summary.UnpaidOrders.Orders++
			summary.UnpaidOrders.Sales = summary.UnpaidOrders.Sales.Add(o.TotalPrice)
		}
		if !o.IsDelivered {
			summary.UndeliveredOrders.Orders++
			summary.UndeliveredOrders.Sales = summary.UndeliveredOrders.Sales.Add(o.TotalPrice)
		}

		methods.add(string(o.PaymentMethod), o.TotalPrice)
		daily.add(created.Format("2006-01-02"), o.TotalPrice)
		monthly.add(created.Format("2006-01"), o.TotalPrice)
		yearly.add(created.Format("2006"), o.TotalPrice)
		ordersByCity[o.ShippingAddress.City]++

		for _, item := range o.Items {
			ps, ok := products[item.ProductID]
			if !ok {
				ps = &models.ProductSales{ProductID: item.ProductID, Name: item.Name, Sales: decimal.Zero}
				products[item.ProductID] = ps
			}
			ps.Quantity += item.Quantity
			ps.Sales = ps.Sales.Add(lineTotal(item))
		}
	}

	usersByCity := make(map[string]int)
	for _, u := range s.users {
		usersByCity[u.City]++
	}
	categories := make(map[string]int)
	for _, p := range s.products {
		categories[p.Category]++
	}

	summary.PaymentMethods = methods.sorted()
	summary.DailyOrders = daily.sorted()
	summary.MonthlyOrders = monthly.sorted()
	summary.YearlyOrders = yearly.sorted()
	summary.OrdersByCity = countBuckets(ordersByCity)
	summary.UsersByCity = countBuckets(usersByCity)
	summary.ProductCategories = countBuckets(categories)

	top := make([]models.ProductSales, 0, len(products))
	for _, ps := range products {
		top = append(top, *ps)
	}
	sort.Slice(top, func(i, j int) bool {
		if !top[i].Sales.Equal(top[j].Sales) {
			return top[i].Sales.GreaterThan(top[j].Sales)
		}
		return top[i].Name < top[j].Name
	})
	if len(top) > topSellingLimit {
		top = top[:topSellingLimit]
	}
	summary.TopSellingProducts = top

	return summary, nil
}

func (s *Store) SellerStats(ctx context.Context) (*models.SellerStats, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	brandCounts := make(map[string]int)
	for _, p := range s.products {
		brandCounts[p.Brand]++
	}

	sales := make(map[string]*models.BrandSales)
	for _, o := range s.orders {
		for _, item := range o.Items {
			// Lines whose product was deleted have no brand to attribute to.
			p, ok := s.products[item.ProductID]
			if !ok {
				continue
			}
			bs, ok := sales[p.Brand]
			if !ok {
				bs = &models.BrandSales{Brand: p.Brand, Sales: decimal.Zero}
				sales[p.Brand] = bs
			}
			bs.Quantity += item.Quantity
			bs.Sales = bs.Sales.Add(lineTotal(item))
		}
	}

	brandSales := make([]models.BrandSales, 0, len(sales))
	for _, bs := range sales {
		brandSales = append(brandSales, *bs)
	}
	sort.Slice(brandSales, func(i, j int) bool { return brandSales[i].Brand < brandSales[j].Brand })

	return &models.SellerStats{
		ProductBrands: countBuckets(brandCounts),
		BrandSales:    brandSales,
	}, nil
}
