package models

import "github.com/shopspring/decimal"

type CountBucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type SalesBucket struct {
	Key    string          `json:"key"`
	Orders int             `json:"orders"`
	Sales  decimal.Decimal `json:"sales"`
}

type ProductSales struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"productName"`
	Quantity  int             `json:"quantity"`
	Sales     decimal.Decimal `json:"totalSales"`
}

type BrandSales struct {
	Brand    string          `json:"brand"`
	Quantity int             `json:"quantity"`
	Sales    decimal.Decimal `json:"sales"`
}

// Summary feeds the admin dashboard.
type Summary struct {
	Users              int             `json:"users"`
	Orders             int             `json:"orders"`
	TotalSales         decimal.Decimal `json:"totalSales"`
	UnpaidOrders       SalesBucket     `json:"unpaidOrders"`
	UndeliveredOrders  SalesBucket     `json:"undeliveredOrders"`
	PaymentMethods     []SalesBucket   `json:"paymentMethods"`
	DailyOrders        []SalesBucket   `json:"dailyOrders"`
	MonthlyOrders      []SalesBucket   `json:"monthlyOrders"`
	YearlyOrders       []SalesBucket   `json:"yearlyOrders"`
	OrdersByCity       []CountBucket   `json:"ordersByCity"`
	UsersByCity        []CountBucket   `json:"usersByCity"`
	ProductCategories  []CountBucket   `json:"productCategories"`
	TopSellingProducts []ProductSales  `json:"topSellingProducts"`
}

// SellerStats breaks sales down by product brand.
type SellerStats struct {
	ProductBrands []CountBucket `json:"productBrands"`
	BrandSales    []BrandSales  `json:"brandSales"`
}
