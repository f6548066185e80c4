// Package seed loads fixture users and products into a store.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/vjcreations/storefront/internal/store"
	"github.com/vjcreations/storefront/pkg/models"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

//go:embed fixtures.yaml
var defaultFixtures []byte

type UserFixture struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	MobileNo string `yaml:"mobileNo"`
	City     string `yaml:"city"`
	Address  string `yaml:"address"`
	IsAdmin  bool   `yaml:"isAdmin"`
}

type ProductFixture struct {
	Name         string   `yaml:"name"`
	Slug         string   `yaml:"slug"`
	Type         string   `yaml:"type"`
	Category     string   `yaml:"category"`
	Image        string   `yaml:"image"`
	Images       []string `yaml:"images"`
	Price        string   `yaml:"price"`
	CountInStock int      `yaml:"countInStock"`
	Brand        string   `yaml:"brand"`
	Rating       float64  `yaml:"rating"`
	NumReviews   int      `yaml:"numReviews"`
	Description  string   `yaml:"description"`
}

type Fixtures struct {
	Users    []UserFixture    `yaml:"users"`
	Products []ProductFixture `yaml:"products"`
}

// Parse decodes and checks a fixture document.
func Parse(data []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}
	for i, p := range f.Products {
		if !models.ProductType(p.Type).Valid() {
			return nil, fmt.Errorf("product %d (%s): type must be product or service", i, p.Name)
		}
		if _, err := decimal.NewFromString(p.Price); err != nil {
			return nil, fmt.Errorf("product %d (%s): invalid price %q", i, p.Name, p.Price)
		}
	}
	for i, u := range f.Users {
		if u.Email == "" || u.Password == "" {
			return nil, fmt.Errorf("user %d (%s): email and password are required", i, u.Name)
		}
	}
	return &f, nil
}

// Default returns the bundled fixtures.
func Default() *Fixtures {
	f, err := Parse(defaultFixtures)
	if err != nil {
		panic(err)
	}
	return f
}

// Load reads fixtures from path, or the bundled set when path is empty.
func Load(path string) (*Fixtures, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures: %w", err)
	}
	return Parse(data)
}

type Config struct {
	BatchSize    int
	Concurrency  int
	DryRun       bool
	SkipExisting bool
	BcryptCost   int
}

func DefaultConfig() Config {
	return Config{
		BatchSize:    10,
		Concurrency:  4,
		SkipExisting: true,
		BcryptCost:   bcrypt.DefaultCost,
	}
}

type RecordError struct {
	Record string `json:"record"`
	Error  string `json:"error"`
}

type Result struct {
	TotalRecords   int           `json:"total_records"`
	Created        int           `json:"created"`
	Skipped        int           `json:"skipped"`
	Failed         int           `json:"failed"`
	ProcessingTime time.Duration `json:"processing_time"`
	ErrorDetails   []RecordError `json:"error_details"`
	DryRun         bool          `json:"dry_run"`
}

func (r *Result) merge(other *Result) {
	r.Created += other.Created
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	r.ErrorDetails = append(r.ErrorDetails, other.ErrorDetails...)
}

func (r *Result) record(name string, err error) {
	switch {
	case err == nil:
		r.Created++
	case errors.Is(err, errSkipped):
		r.Skipped++
	default:
		r.Failed++
		r.ErrorDetails = append(r.ErrorDetails, RecordError{Record: name, Error: err.Error()})
	}
}

var errSkipped = errors.New("already exists")

type Seeder struct {
	users    store.UserStore
	products store.ProductStore
	config   Config
	logger   *logrus.Logger
}

func NewSeeder(users store.UserStore, products store.ProductStore, config Config, logger *logrus.Logger) *Seeder {
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &Seeder{users: users, products: products, config: config, logger: logger}
}

// Run imports users one by one and products in concurrent batches.
func (s *Seeder) Run(ctx context.Context, f *Fixtures) (*Result, error) {
	start := time.Now()
	result := &Result{
		TotalRecords: len(f.Users) + len(f.Products),
		ErrorDetails: []RecordError{},
		DryRun:       s.config.DryRun,
	}

	s.logger.WithFields(logrus.Fields{
		"users":    len(f.Users),
		"products": len(f.Products),
		"dry_run":  s.config.DryRun,
	}).Info("Starting seed")

	if s.config.DryRun {
		result.Created = result.TotalRecords
		result.ProcessingTime = time.Since(start)
		return result, nil
	}

	for _, u := range f.Users {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.record(u.Email, s.seedUser(ctx, u))
	}

	result.merge(s.seedProducts(ctx, f.Products))
	result.ProcessingTime = time.Since(start)

	s.logger.WithFields(logrus.Fields{
		"created":  result.Created,
		"skipped":  result.Skipped,
		"failed":   result.Failed,
		"duration": result.ProcessingTime,
	}).Info("Seed completed")
	return result, ctx.Err()
}

func (s *Seeder) seedUser(ctx context.Context, f UserFixture) error {
	email := strings.ToLower(strings.TrimSpace(f.Email))
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		if s.config.SkipExisting {
			return errSkipped
		}
		return store.ErrEmailTaken
	} else if !errors.Is(err, store.ErrUserNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(f.Password), s.config.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.users.CreateUser(ctx, &models.User{
		Name:         f.Name,
		Email:        email,
		PasswordHash: string(hash),
		MobileNo:     f.MobileNo,
		City:         f.City,
		Address:      f.Address,
		IsAdmin:      f.IsAdmin,
	})
}

func (s *Seeder) batches(products []ProductFixture) [][]ProductFixture {
	var out [][]ProductFixture
	for i := 0; i < len(products); i += s.config.BatchSize {
		end := i + s.config.BatchSize
		if end > len(products) {
			end = len(products)
		}
		out = append(out, products[i:end])
	}
	return out
}

func (s *Seeder) seedProducts(ctx context.Context, products []ProductFixture) *Result {
	result := &Result{ErrorDetails: []RecordError{}}
	batches := s.batches(products)

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, s.config.Concurrency)
	results := make(chan *Result, len(batches))

	for _, batch := range batches {
		wg.Add(1)
		go func(batch []ProductFixture) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			batchResult := &Result{}
			for _, p := range batch {
				if ctx.Err() != nil {
					return
				}
				batchResult.record(p.Slug, s.seedProduct(ctx, p))
			}
			results <- batchResult
		}(batch)
	}

	wg.Wait()
	close(results)
	for r := range results {
		result.merge(r)
	}
	return result
}

func (s *Seeder) seedProduct(ctx context.Context, f ProductFixture) error {
	if _, err := s.products.GetProductBySlug(ctx, f.Slug); err == nil {
		if s.config.SkipExisting {
			return errSkipped
		}
		return store.ErrDuplicateProduct
	} else if !errors.Is(err, store.ErrProductNotFound) {
		return err
	}

	images := f.Images
	if images == nil {
		images = []string{}
	}
	p := &models.Product{
		Name:         f.Name,
		Slug:         f.Slug,
		Type:         models.ProductType(f.Type),
		Image:        f.Image,
		Images:       images,
		Brand:        f.Brand,
		Category:     f.Category,
		Description:  f.Description,
		Price:        decimal.RequireFromString(f.Price),
		CountInStock: f.CountInStock,
		Rating:       f.Rating,
		NumReviews:   f.NumReviews,
	}
	if err := s.products.CreateProduct(ctx, p); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{"product_id": p.ID, "slug": p.Slug}).Debug("Seeded product")
	return nil
}
