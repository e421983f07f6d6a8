package catalog

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/tebahq/teba/internal/shared"
)

// RepositoryPort abstracts catalog persistence for the service layer.
type RepositoryPort interface {
	CreateProduct(ctx context.Context, p Product) (int64, error)
	UpdateProduct(ctx context.Context, p Product) error
	GetProduct(ctx context.Context, id int64) (Product, error)
	GetProductBySKU(ctx context.Context, sku string) (Product, error)
	ListProducts(ctx context.Context, search string, limit, offset int) ([]Product, int, error)
	CreateCategory(ctx context.Context, c Category) (int64, error)
	ListCategories(ctx context.Context) ([]Category, error)
	CreateSupplier(ctx context.Context, s Supplier) (int64, error)
	ListSuppliers(ctx context.Context) ([]Supplier, error)
	CreateLocation(ctx context.Context, l Location) (int64, error)
	ListLocations(ctx context.Context) ([]Location, error)
}

// CreateProductInput is the payload for registering a product.
type CreateProductInput struct {
	CategoryID   *int64 `json:"category_id" validate:"omitempty,gt=0"`
	Name         string `json:"name" validate:"required,max=200"`
	SKU          string `json:"sku" validate:"required,max=64"`
	CostPrice    string `json:"cost_price" validate:"required"`
	SellingPrice string `json:"selling_price" validate:"required"`
	ReorderLevel int64  `json:"reorder_level" validate:"gte=0"`
}

// UpdateProductInput is the payload for editing a product. SKU is immutable.
type UpdateProductInput struct {
	CategoryID   *int64 `json:"category_id" validate:"omitempty,gt=0"`
	Name         string `json:"name" validate:"required,max=200"`
	CostPrice    string `json:"cost_price" validate:"required"`
	SellingPrice string `json:"selling_price" validate:"required"`
	ReorderLevel int64  `json:"reorder_level" validate:"gte=0"`
}

// CreateCategoryInput is the payload for a new category.
type CreateCategoryInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

// CreateSupplierInput is the payload for a new supplier.
type CreateSupplierInput struct {
	Name          string `json:"name" validate:"required,max=200"`
	ContactPerson string `json:"contact_person" validate:"max=200"`
	Email         string `json:"email" validate:"omitempty,email"`
	Phone         string `json:"phone" validate:"max=32"`
	Address       string `json:"address" validate:"max=500"`
}

// CreateLocationInput is the payload for a new location.
type CreateLocationInput struct {
	Name    string `json:"name" validate:"required,max=200"`
	Address string `json:"address" validate:"max=500"`
}

// Service implements master-data use cases.
type Service struct {
	repo     RepositoryPort
	validate *validator.Validate
}

// NewService constructs a catalog service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, validate: validator.New()}
}

func parsePrice(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %s is not a valid amount", shared.ErrInvalidInput, field)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s must not be negative", shared.ErrInvalidInput, field)
	}
	return d, nil
}

// CreateProduct validates and registers a product.
func (s *Service) CreateProduct(ctx context.Context, input CreateProductInput) (Product, error) {
	if err := s.validate.Struct(input); err != nil {
		return Product{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	cost, err := parsePrice("cost_price", input.CostPrice)
	if err != nil {
		return Product{}, err
	}
	selling, err := parsePrice("selling_price", input.SellingPrice)
	if err != nil {
		return Product{}, err
	}
	product := Product{
		CategoryID:   input.CategoryID,
		Name:         input.Name,
		SKU:          input.SKU,
		CostPrice:    cost,
		SellingPrice: selling,
		ReorderLevel: input.ReorderLevel,
	}
	id, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return Product{}, err
	}
	return s.repo.GetProduct(ctx, id)
}

// UpdateProduct validates and rewrites a product.
func (s *Service) UpdateProduct(ctx context.Context, id int64, input UpdateProductInput) (Product, error) {
	if err := s.validate.Struct(input); err != nil {
		return Product{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	cost, err := parsePrice("cost_price", input.CostPrice)
	if err != nil {
		return Product{}, err
	}
	selling, err := parsePrice("selling_price", input.SellingPrice)
	if err != nil {
		return Product{}, err
	}
	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	existing.CategoryID = input.CategoryID
	existing.Name = input.Name
	existing.CostPrice = cost
	existing.SellingPrice = selling
	existing.ReorderLevel = input.ReorderLevel
	if err := s.repo.UpdateProduct(ctx, existing); err != nil {
		return Product{}, err
	}
	return existing, nil
}

// GetProduct fetches a product.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// GetProductBySKU fetches a product by SKU.
func (s *Service) GetProductBySKU(ctx context.Context, sku string) (Product, error) {
	return s.repo.GetProductBySKU(ctx, sku)
}

// ListProducts returns a page of products.
func (s *Service) ListProducts(ctx context.Context, search string, page, perPage int) ([]Product, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	products, total, err := s.repo.ListProducts(ctx, search, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return products, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// CreateCategory validates and inserts a category.
func (s *Service) CreateCategory(ctx context.Context, input CreateCategoryInput) (Category, error) {
	if err := s.validate.Struct(input); err != nil {
		return Category{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	c := Category{Name: input.Name, Description: input.Description}
	id, err := s.repo.CreateCategory(ctx, c)
	if err != nil {
		return Category{}, err
	}
	c.ID = id
	return c, nil
}

// ListCategories returns all categories.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.repo.ListCategories(ctx)
}

// CreateSupplier validates and inserts a supplier.
func (s *Service) CreateSupplier(ctx context.Context, input CreateSupplierInput) (Supplier, error) {
	if err := s.validate.Struct(input); err != nil {
		return Supplier{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	sup := Supplier{
		Name:          input.Name,
		ContactPerson: input.ContactPerson,
		Email:         input.Email,
		Phone:         input.Phone,
		Address:       input.Address,
	}
	id, err := s.repo.CreateSupplier(ctx, sup)
	if err != nil {
		return Supplier{}, err
	}
	sup.ID = id
	return sup, nil
}

// ListSuppliers returns all suppliers.
func (s *Service) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

// CreateLocation validates and inserts a location.
func (s *Service) CreateLocation(ctx context.Context, input CreateLocationInput) (Location, error) {
	if err := s.validate.Struct(input); err != nil {
		return Location{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	loc := Location{Name: input.Name, Address: input.Address}
	id, err := s.repo.CreateLocation(ctx, loc)
	if err != nil {
		return Location{}, err
	}
	loc.ID = id
	return loc, nil
}

// ListLocations returns all locations.
func (s *Service) ListLocations(ctx context.Context) ([]Location, error) {
	return s.repo.ListLocations(ctx)
}
