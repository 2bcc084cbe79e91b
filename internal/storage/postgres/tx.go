package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type txManager struct {
	store *Store
}

// NewTxManager создаёт менеджер транзакций. Уровень изоляции READ COMMITTED,
// конкурирующие записи сериализуются блокировками строк FOR UPDATE.
func NewTxManager(store *Store) domain.TxManager {
	return &txManager{store: store}
}

func (m *txManager) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	if m.store == nil || m.store.pool == nil {
		return errStoreNotInitialized
	}

	pgTx, err := m.store.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = pgTx.Rollback(context.Background())
			panic(p)
		}
		if err != nil {
			_ = pgTx.Rollback(context.Background())
		}
	}()

	if err = fn(ctx, &postgresTx{tx: pgTx}); err != nil {
		return err
	}
	if err = pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) LockProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	query, args, err := psql.Select(productColumns...).From("products").
		Where(sq.Eq{"id": sorted}).
		OrderBy("id").
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lock products query: %w", err)
	}

	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan locked product: %w", err)
		}
		result[product.ID] = product
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate locked products: %w", err)
	}
	return result, nil
}

func (t *postgresTx) DecrementStock(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return domain.NewValidationError("quantity", "must be greater than zero")
	}

	query, args, err := psql.Update("products").
		Set("stock", sq.Expr("stock - ?", qty)).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": productID}).
		Where(sq.GtOrEq{"stock": qty}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build decrement stock: %w", err)
	}
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	product, err := t.getProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.ProductUnavailableError{ProductID: productID}
		}
		return err
	}
	return &domain.InsufficientStockError{
		ProductID: productID,
		Name:      product.Name,
		Requested: qty,
		Available: product.Stock,
	}
}

func (t *postgresTx) getProduct(ctx context.Context, id string) (domain.Product, error) {
	query, args, err := psql.Select(productColumns...).From("products").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Product{}, fmt.Errorf("build product query: %w", err)
	}
	product, err := scanProduct(t.tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, domain.ErrNotFound
		}
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	return product, nil
}

func (t *postgresTx) CreateOrder(ctx context.Context, order domain.Order) error {
	query, args, err := psql.Insert("orders").Columns(orderColumns...).Values(
		order.ID, order.BuyerID, string(order.Status), order.Currency, order.TotalMinor,
		order.DeliveryAddress, order.DeliveryPhone, order.CreatedAt, order.UpdatedAt,
	).ToSql()
	if err != nil {
		return fmt.Errorf("build order insert: %w", err)
	}
	if _, err := t.tx.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert order %s: %w", order.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	if len(order.Items) == 0 {
		return nil
	}
	items := psql.Insert("order_items").Columns(append(orderItemColumns, "position")...)
	for i, item := range order.Items {
		items = items.Values(
			item.ID, order.ID, item.ProductID, item.SupplierID, item.ProductName,
			item.PriceMinor, item.Quantity, string(item.Status), item.CreatedAt, item.UpdatedAt, i,
		)
	}
	query, args, err = items.ToSql()
	if err != nil {
		return fmt.Errorf("build order items insert: %w", err)
	}
	if _, err := t.tx.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert order items: %w", domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert order items: %w", err)
	}
	return nil
}

func (t *postgresTx) LockOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return selectOrder(ctx, t.tx, orderID, true)
}

func (t *postgresTx) LockOrderItem(ctx context.Context, itemID string) (domain.OrderItem, error) {
	query, args, err := psql.Select(orderItemColumns...).From("order_items").
		Where(sq.Eq{"id": itemID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return domain.OrderItem{}, fmt.Errorf("build order item query: %w", err)
	}
	item, err := scanOrderItem(t.tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OrderItem{}, domain.ErrNotFound
		}
		return domain.OrderItem{}, fmt.Errorf("lock order item: %w", err)
	}
	return item, nil
}

func (t *postgresTx) ListOrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	return selectOrderItems(ctx, t.tx, orderID)
}

func (t *postgresTx) UpdateItemStatus(ctx context.Context, itemID string, status domain.ItemStatus, at time.Time) error {
	return t.updateStatus(ctx, "order_items", itemID, string(status), at)
}

func (t *postgresTx) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus, at time.Time) error {
	return t.updateStatus(ctx, "orders", orderID, string(status), at)
}

func (t *postgresTx) updateStatus(ctx context.Context, table, id, status string, at time.Time) error {
	query, args, err := psql.Update(table).
		Set("status", status).
		Set("updated_at", at).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build %s status update: %w", table, err)
	}
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s status: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *postgresTx) EnqueueOutbox(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	return insertOutbox(ctx, t.tx, msg)
}

func (t *postgresTx) AppendTimeline(ctx context.Context, event domain.TimelineEvent) error {
	return insertTimeline(ctx, t.tx, event)
}

var (
	_ domain.TxManager = (*txManager)(nil)
	_ domain.Tx        = (*postgresTx)(nil)
)
