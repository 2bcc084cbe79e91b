package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

var (
	orderColumns = []string{
		"id", "buyer_id", "status", "currency", "total_minor", "delivery_address", "delivery_phone", "created_at", "updated_at",
	}
	orderItemColumns = []string{
		"id", "order_id", "product_id", "supplier_id", "product_name", "price_minor", "quantity", "status", "created_at", "updated_at",
	}
)

type orderRepository struct {
	db querier
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.pool}
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	order, err := selectOrder(ctx, r.db, id, false)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Items, err = selectOrderItems(ctx, r.db, id); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *orderRepository) ListByBuyer(ctx context.Context, buyerID string, limit int) ([]domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	builder := psql.Select(orderColumns...).From("orders").
		Where(sq.Eq{"buyer_id": buyerID}).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build buyer orders query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list buyer orders: %w", err)
	}
	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range orders {
		if orders[i].Items, err = selectOrderItems(ctx, r.db, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *orderRepository) ListBySupplier(ctx context.Context, supplierID string, limit int) ([]domain.SupplierOrderSummary, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	builder := psql.Select(
		"o.id", "o.buyer_id", "o.status", "o.delivery_address", "o.delivery_phone",
		"SUM(i.price_minor * i.quantity)", "o.created_at",
	).
		From("orders o").
		Join("order_items i ON i.order_id = o.id").
		Where(sq.Eq{"i.supplier_id": supplierID}).
		GroupBy("o.id").
		OrderBy("o.created_at DESC", "o.id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build supplier orders query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list supplier orders: %w", err)
	}
	defer rows.Close()

	result := make([]domain.SupplierOrderSummary, 0)
	for rows.Next() {
		var (
			summary domain.SupplierOrderSummary
			status  string
		)
		if err := rows.Scan(
			&summary.OrderID, &summary.BuyerID, &status, &summary.DeliveryAddress,
			&summary.DeliveryPhone, &summary.SubtotalMinor, &summary.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan supplier order: %w", err)
		}
		summary.Status = domain.OrderStatus(status)
		result = append(result, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate supplier order rows: %w", err)
	}
	return result, nil
}

func (r *orderRepository) ListItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := selectOrder(ctx, r.db, orderID, false); err != nil {
		return nil, err
	}
	return selectOrderItems(ctx, r.db, orderID)
}

func selectOrder(ctx context.Context, db querier, id string, forUpdate bool) (domain.Order, error) {
	builder := psql.Select(orderColumns...).From("orders").Where(sq.Eq{"id": id})
	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return domain.Order{}, fmt.Errorf("build order query: %w", err)
	}
	order, err := scanOrder(db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

func selectOrderItems(ctx context.Context, db querier, orderID string) ([]domain.OrderItem, error) {
	query, args, err := psql.Select(orderItemColumns...).From("order_items").
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build order items query: %w", err)
	}

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		item, err := scanOrderItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order item rows: %w", err)
	}
	return items, nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o      domain.Order
		status string
	)
	err := row.Scan(&o.ID, &o.BuyerID, &status, &o.Currency, &o.TotalMinor, &o.DeliveryAddress, &o.DeliveryPhone, &o.CreatedAt, &o.UpdatedAt)
	o.Status = domain.OrderStatus(status)
	return o, err
}

func scanOrderItem(row pgx.Row) (domain.OrderItem, error) {
	var (
		item   domain.OrderItem
		status string
	)
	err := row.Scan(
		&item.ID, &item.OrderID, &item.ProductID, &item.SupplierID, &item.ProductName,
		&item.PriceMinor, &item.Quantity, &status, &item.CreatedAt, &item.UpdatedAt,
	)
	item.Status = domain.ItemStatus(status)
	return item, err
}

var _ domain.OrderRepository = (*orderRepository)(nil)
