package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tebahq/teba/internal/shared"
)

// Repository provides PostgreSQL backed persistence for master data.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateProduct inserts a product. SKU collisions surface as ErrInvalidInput.
func (r *Repository) CreateProduct(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO products (category_id, name, sku, cost_price, selling_price, reorder_level)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		p.CategoryID, p.Name, p.SKU, p.CostPrice.String(), p.SellingPrice.String(), p.ReorderLevel).
		Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("%w: sku %q already exists", shared.ErrInvalidInput, p.SKU)
		}
		return 0, err
	}
	return id, nil
}

// UpdateProduct rewrites mutable product fields.
func (r *Repository) UpdateProduct(ctx context.Context, p Product) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE products
		SET category_id = $2, name = $3, cost_price = $4, selling_price = $5, reorder_level = $6
		WHERE id = $1`,
		p.ID, p.CategoryID, p.Name, p.CostPrice.String(), p.SellingPrice.String(), p.ReorderLevel)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// GetProduct fetches a product by ID.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	return r.scanProduct(r.pool.QueryRow(ctx, `
		SELECT id, category_id, name, sku, cost_price::text, selling_price::text, reorder_level, created_at
		FROM products WHERE id = $1`, id))
}

// GetProductBySKU fetches a product by SKU.
func (r *Repository) GetProductBySKU(ctx context.Context, sku string) (Product, error) {
	return r.scanProduct(r.pool.QueryRow(ctx, `
		SELECT id, category_id, name, sku, cost_price::text, selling_price::text, reorder_level, created_at
		FROM products WHERE sku = $1`, sku))
}

func (r *Repository) scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var cost, selling string
	err := row.Scan(&p.ID, &p.CategoryID, &p.Name, &p.SKU, &cost, &selling, &p.ReorderLevel, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, shared.ErrNotFound
		}
		return Product{}, err
	}
	if p.CostPrice, err = decimal.NewFromString(cost); err != nil {
		return Product{}, err
	}
	if p.SellingPrice, err = decimal.NewFromString(selling); err != nil {
		return Product{}, err
	}
	return p, nil
}

// ListProducts returns products with optional search, paginated.
func (r *Repository) ListProducts(ctx context.Context, search string, limit, offset int) ([]Product, int, error) {
	countSQL := `SELECT COUNT(*) FROM products WHERE 1=1`
	dataSQL := `SELECT id, category_id, name, sku, cost_price::text, selling_price::text, reorder_level, created_at FROM products WHERE 1=1`
	args := []any{}
	if search != "" {
		args = append(args, "%"+search+"%")
		countSQL += ` AND (name ILIKE $1 OR sku ILIKE $1)`
		dataSQL += ` AND (name ILIKE $1 OR sku ILIKE $1)`
	}

	var total int
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataSQL += fmt.Sprintf(` ORDER BY name LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		var cost, selling string
		if err := rows.Scan(&p.ID, &p.CategoryID, &p.Name, &p.SKU, &cost, &selling, &p.ReorderLevel, &p.CreatedAt); err != nil {
			return nil, 0, err
		}
		if p.CostPrice, err = decimal.NewFromString(cost); err != nil {
			return nil, 0, err
		}
		if p.SellingPrice, err = decimal.NewFromString(selling); err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

// CreateCategory inserts a category.
func (r *Repository) CreateCategory(ctx context.Context, c Category) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO categories (name, description) VALUES ($1, $2) RETURNING id`,
		c.Name, c.Description).Scan(&id)
	return id, err
}

// ListCategories returns all categories.
func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, COALESCE(description, '') FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// CreateSupplier inserts a supplier.
func (r *Repository) CreateSupplier(ctx context.Context, s Supplier) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO suppliers (name, contact_person, email, phone, address)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		s.Name, s.ContactPerson, s.Email, s.Phone, s.Address).Scan(&id)
	return id, err
}

// ListSuppliers returns all suppliers.
func (r *Repository) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, COALESCE(contact_person, ''), COALESCE(email, ''), COALESCE(phone, ''), COALESCE(address, '')
		FROM suppliers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var suppliers []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.Name, &s.ContactPerson, &s.Email, &s.Phone, &s.Address); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, rows.Err()
}

// CreateLocation inserts a location.
func (r *Repository) CreateLocation(ctx context.Context, l Location) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO locations (name, address) VALUES ($1, $2) RETURNING id`,
		l.Name, l.Address).Scan(&id)
	return id, err
}

// ListLocations returns all locations.
func (r *Repository) ListLocations(ctx context.Context) ([]Location, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, COALESCE(address, ''), created_at FROM locations ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var locations []Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Address, &l.CreatedAt); err != nil {
			return nil, err
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}
