package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

var productColumns = []string{
	"id", "supplier_id", "name", "description", "image_ref", "price_minor", "stock", "created_at", "updated_at",
}

type catalogRepository struct {
	db querier
}

// NewCatalogRepository создаёт PostgreSQL-реализацию CatalogRepository.
func NewCatalogRepository(store *Store) domain.CatalogRepository {
	return &catalogRepository{db: store.pool}
}

func (r *catalogRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query, args, err := psql.Select(productColumns...).From("products").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Product{}, fmt.Errorf("build product query: %w", err)
	}
	product, err := scanProduct(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, domain.ErrNotFound
		}
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	return product, nil
}

func (r *catalogRepository) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	builder := psql.Select(productColumns...).From("products").OrderBy("lower(name)", "id")
	if filter.SupplierID != "" {
		builder = builder.Where(sq.Eq{"supplier_id": filter.SupplierID})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build product list query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		result = append(result, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return result, nil
}

func (r *catalogRepository) Create(ctx context.Context, product domain.Product) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = product.CreatedAt
	}

	query, args, err := psql.Insert("products").Columns(productColumns...).Values(
		product.ID, product.SupplierID, product.Name, product.Description, product.ImageRef,
		product.PriceMinor, product.Stock, product.CreatedAt, product.UpdatedAt,
	).ToSql()
	if err != nil {
		return fmt.Errorf("build product insert: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *catalogRepository) UpdatePriceStock(ctx context.Context, id, supplierID string, priceMinor int64, stock int) (domain.Product, error) {
	if stock < 0 {
		return domain.Product{}, domain.NewValidationError("stock", "must be non-negative")
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query, args, err := psql.Update("products").
		Set("price_minor", priceMinor).
		Set("stock", stock).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id, "supplier_id": supplierID}).
		Suffix("RETURNING " + joinColumns(productColumns)).
		ToSql()
	if err != nil {
		return domain.Product{}, fmt.Errorf("build product update: %w", err)
	}
	product, err := scanProduct(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, domain.ErrNotFound
		}
		return domain.Product{}, fmt.Errorf("update product: %w", err)
	}
	return product, nil
}

func (r *catalogRepository) Delete(ctx context.Context, id, supplierID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query, args, err := psql.Delete("products").Where(sq.Eq{"id": id, "supplier_id": supplierID}).ToSql()
	if err != nil {
		return fmt.Errorf("build product delete: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.SupplierID, &p.Name, &p.Description, &p.ImageRef, &p.PriceMinor, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func joinColumns(columns []string) string {
	return strings.Join(columns, ", ")
}

var _ domain.CatalogRepository = (*catalogRepository)(nil)
