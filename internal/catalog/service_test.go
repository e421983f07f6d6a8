package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tebahq/teba/internal/shared"
)

type memoryRepo struct {
	products   map[int64]Product
	categories map[int64]Category
	suppliers  map[int64]Supplier
	locations  map[int64]Location
	nextID     int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products:   make(map[int64]Product),
		categories: make(map[int64]Category),
		suppliers:  make(map[int64]Supplier),
		locations:  make(map[int64]Location),
	}
}

func (m *memoryRepo) CreateProduct(ctx context.Context, p Product) (int64, error) {
	for _, existing := range m.products {
		if existing.SKU == p.SKU {
			return 0, errors.New(`duplicate key value violates unique constraint "products_sku_key"`)
		}
	}
	m.nextID++
	p.ID = m.nextID
	m.products[p.ID] = p
	return p.ID, nil
}

func (m *memoryRepo) UpdateProduct(ctx context.Context, p Product) error {
	if _, ok := m.products[p.ID]; !ok {
		return shared.ErrNotFound
	}
	m.products[p.ID] = p
	return nil
}

func (m *memoryRepo) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, ok := m.products[id]
	if !ok {
		return Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (m *memoryRepo) GetProductBySKU(ctx context.Context, sku string) (Product, error) {
	for _, p := range m.products {
		if p.SKU == sku {
			return p, nil
		}
	}
	return Product{}, shared.ErrNotFound
}

func (m *memoryRepo) ListProducts(ctx context.Context, search string, limit, offset int) ([]Product, int, error) {
	var matched []Product
	for id := int64(1); id <= m.nextID; id++ {
		p, ok := m.products[id]
		if !ok {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(search)) &&
			!strings.Contains(strings.ToLower(p.SKU), strings.ToLower(search)) {
			continue
		}
		matched = append(matched, p)
	}
	total := len(matched)
	if offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[offset:]
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (m *memoryRepo) CreateCategory(ctx context.Context, c Category) (int64, error) {
	m.nextID++
	c.ID = m.nextID
	m.categories[c.ID] = c
	return c.ID, nil
}

func (m *memoryRepo) ListCategories(ctx context.Context) ([]Category, error) {
	out := make([]Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}
	return out, nil
}

func (m *memoryRepo) CreateSupplier(ctx context.Context, s Supplier) (int64, error) {
	m.nextID++
	s.ID = m.nextID
	m.suppliers[s.ID] = s
	return s.ID, nil
}

func (m *memoryRepo) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	out := make([]Supplier, 0, len(m.suppliers))
	for _, s := range m.suppliers {
		out = append(out, s)
	}
	return out, nil
}

func (m *memoryRepo) CreateLocation(ctx context.Context, l Location) (int64, error) {
	m.nextID++
	l.ID = m.nextID
	m.locations[l.ID] = l
	return l.ID, nil
}

func (m *memoryRepo) ListLocations(ctx context.Context) ([]Location, error) {
	out := make([]Location, 0, len(m.locations))
	for _, l := range m.locations {
		out = append(out, l)
	}
	return out, nil
}

func TestCreateProductParsesPrices(t *testing.T) {
	svc := NewService(newMemoryRepo())

	product, err := svc.CreateProduct(context.Background(), CreateProductInput{
		Name:         "Sugar 50kg",
		SKU:          "SUG-50",
		CostPrice:    "4300.50",
		SellingPrice: "4650",
		ReorderLevel: 100,
	})
	require.NoError(t, err)
	require.Equal(t, "4300.5", product.CostPrice.String())
	require.Equal(t, "4650", product.SellingPrice.String())
	require.Equal(t, int64(100), product.ReorderLevel)

	bySKU, err := svc.GetProductBySKU(context.Background(), "SUG-50")
	require.NoError(t, err)
	require.Equal(t, product.ID, bySKU.ID)
}

func TestCreateProductRejectsBadPrice(t *testing.T) {
	svc := NewService(newMemoryRepo())

	_, err := svc.CreateProduct(context.Background(), CreateProductInput{
		Name:         "Sugar",
		SKU:          "SUG-1",
		CostPrice:    "abc",
		SellingPrice: "10",
	})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.CreateProduct(context.Background(), CreateProductInput{
		Name:         "Sugar",
		SKU:          "SUG-1",
		CostPrice:    "10",
		SellingPrice: "-5",
	})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestCreateProductRequiresFields(t *testing.T) {
	svc := NewService(newMemoryRepo())

	_, err := svc.CreateProduct(context.Background(), CreateProductInput{
		SKU:          "SUG-1",
		CostPrice:    "10",
		SellingPrice: "12",
	})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestUpdateProductKeepsSKU(t *testing.T) {
	svc := NewService(newMemoryRepo())

	created, err := svc.CreateProduct(context.Background(), CreateProductInput{
		Name:         "Rice 25kg",
		SKU:          "RIC-25",
		CostPrice:    "2100",
		SellingPrice: "2350",
		ReorderLevel: 50,
	})
	require.NoError(t, err)

	updated, err := svc.UpdateProduct(context.Background(), created.ID, UpdateProductInput{
		Name:         "Rice 25kg premium",
		CostPrice:    "2200",
		SellingPrice: "2500",
		ReorderLevel: 80,
	})
	require.NoError(t, err)
	require.Equal(t, "RIC-25", updated.SKU)
	require.Equal(t, "Rice 25kg premium", updated.Name)
	require.Equal(t, "2200", updated.CostPrice.String())
	require.Equal(t, int64(80), updated.ReorderLevel)
}

func TestUpdateMissingProduct(t *testing.T) {
	svc := NewService(newMemoryRepo())

	_, err := svc.UpdateProduct(context.Background(), 99, UpdateProductInput{
		Name:         "Ghost",
		CostPrice:    "1",
		SellingPrice: "2",
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListProductsPaginates(t *testing.T) {
	svc := NewService(newMemoryRepo())

	for _, name := range []string{"Sugar", "Rice", "Flour", "Salt", "Oil"} {
		_, err := svc.CreateProduct(context.Background(), CreateProductInput{
			Name:         name,
			SKU:          "SKU-" + name,
			CostPrice:    "10",
			SellingPrice: "12",
		})
		require.NoError(t, err)
	}

	page1, p, err := svc.ListProducts(context.Background(), "", 1, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.Equal(t, 5, p.Total)
	require.Equal(t, 3, p.TotalPages)

	page3, p, err := svc.ListProducts(context.Background(), "", 3, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	require.Equal(t, "Oil", page3[0].Name)
	require.Equal(t, 3, p.TotalPages)

	filtered, p, err := svc.ListProducts(context.Background(), "ric", 1, 20)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, "Rice", filtered[0].Name)
	require.Equal(t, 1, p.Total)
}

func TestCreateCategoryAndLookups(t *testing.T) {
	svc := NewService(newMemoryRepo())

	cat, err := svc.CreateCategory(context.Background(), CreateCategoryInput{Name: "Grains"})
	require.NoError(t, err)
	require.NotZero(t, cat.ID)

	cats, err := svc.ListCategories(context.Background())
	require.NoError(t, err)
	require.Len(t, cats, 1)

	_, err = svc.CreateSupplier(context.Background(), CreateSupplierInput{Name: "Acme Mills", Email: "not-an-email"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	sup, err := svc.CreateSupplier(context.Background(), CreateSupplierInput{Name: "Acme Mills", Email: "sales@acme.test"})
	require.NoError(t, err)
	require.NotZero(t, sup.ID)

	loc, err := svc.CreateLocation(context.Background(), CreateLocationInput{Name: "Main Warehouse"})
	require.NoError(t, err)
	require.NotZero(t, loc.ID)

	locs, err := svc.ListLocations(context.Background())
	require.NoError(t, err)
	require.Len(t, locs, 1)
}
