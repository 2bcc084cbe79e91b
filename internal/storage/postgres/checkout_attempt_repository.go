package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const checkoutAttemptsTable = "checkout_attempts"

var checkoutAttemptColumns = []string{
	"buyer_id", "idempotency_key", "request_hash", "status", "order_id",
	"http_status", "response_body", "expires_at", "created_at", "updated_at",
}

type checkoutAttemptRepository struct {
	db querier
}

// NewCheckoutAttemptRepository создаёт PostgreSQL-реализацию CheckoutAttemptRepository.
func NewCheckoutAttemptRepository(store *Store) domain.CheckoutAttemptRepository {
	return &checkoutAttemptRepository{db: store.pool}
}

func attemptKeyEq(key domain.CheckoutKey) sq.Eq {
	return sq.Eq{"buyer_id": key.BuyerID, "idempotency_key": key.Key}
}

// Begin вставляет попытку через ON CONFLICT DO NOTHING: при гонке двух запросов с одним
// ключом строку получает ровно один, второй читает её и получает AlreadyExists.
func (r *checkoutAttemptRepository) Begin(ctx context.Context, key domain.CheckoutKey, requestHash string, expiresAt time.Time) (domain.CheckoutAttempt, error) {
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return domain.CheckoutAttempt{}, err
	}
	requestHash = strings.TrimSpace(requestHash)
	if requestHash == "" {
		return domain.CheckoutAttempt{}, domain.ErrIdempotencyRequestHashRequired
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	query, args, err := psql.Insert(checkoutAttemptsTable).Columns(checkoutAttemptColumns...).
		Values(key.BuyerID, key.Key, requestHash, string(domain.CheckoutAttemptProcessing), nil, nil, nil, expiresAt, now, now).
		Suffix("ON CONFLICT (buyer_id, idempotency_key) DO NOTHING").
		ToSql()
	if err != nil {
		return domain.CheckoutAttempt{}, fmt.Errorf("build checkout attempt insert: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return domain.CheckoutAttempt{}, fmt.Errorf("begin checkout attempt: %w", err)
	}

	if tag.RowsAffected() == 0 {
		existing, getErr := r.Get(ctx, key)
		if getErr != nil {
			return domain.CheckoutAttempt{}, fmt.Errorf("load existing checkout attempt: %w", getErr)
		}
		if existing.RequestHash != requestHash {
			return existing, domain.ErrIdempotencyHashMismatch
		}
		return existing, domain.ErrIdempotencyKeyAlreadyExists
	}

	return domain.CheckoutAttempt{
		BuyerID:     key.BuyerID,
		Key:         key.Key,
		RequestHash: requestHash,
		Status:      domain.CheckoutAttemptProcessing,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (r *checkoutAttemptRepository) Get(ctx context.Context, key domain.CheckoutKey) (domain.CheckoutAttempt, error) {
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return domain.CheckoutAttempt{}, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query, args, err := psql.Select(checkoutAttemptColumns...).From(checkoutAttemptsTable).Where(attemptKeyEq(key)).ToSql()
	if err != nil {
		return domain.CheckoutAttempt{}, fmt.Errorf("build checkout attempt query: %w", err)
	}

	var (
		attempt    domain.CheckoutAttempt
		statusRaw  string
		orderID    pgtype.Text
		httpStatus pgtype.Int4
	)
	err = r.db.QueryRow(ctx, query, args...).Scan(
		&attempt.BuyerID,
		&attempt.Key,
		&attempt.RequestHash,
		&statusRaw,
		&orderID,
		&httpStatus,
		&attempt.ResponseBody,
		&attempt.ExpiresAt,
		&attempt.CreatedAt,
		&attempt.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CheckoutAttempt{}, domain.ErrIdempotencyKeyNotFound
		}
		return domain.CheckoutAttempt{}, fmt.Errorf("get checkout attempt: %w", err)
	}

	attempt.Status = domain.CheckoutAttemptStatus(statusRaw)
	if !attempt.Status.Valid() {
		return domain.CheckoutAttempt{}, fmt.Errorf("invalid checkout attempt status %q for %s", statusRaw, key)
	}
	attempt.OrderID = orderID.String
	if httpStatus.Valid {
		attempt.HTTPStatus = int(httpStatus.Int32)
	}
	return attempt, nil
}

func (r *checkoutAttemptRepository) Finish(ctx context.Context, key domain.CheckoutKey, outcome domain.CheckoutOutcome) error {
	key = key.Normalize()
	status, err := outcome.Status()
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var orderID any
	if outcome.OrderID != "" {
		orderID = outcome.OrderID
	}
	query, args, err := psql.Update(checkoutAttemptsTable).
		Set("status", string(status)).
		Set("order_id", orderID).
		Set("http_status", outcome.HTTPStatus).
		Set("response_body", outcome.Body).
		Set("updated_at", time.Now().UTC()).
		Where(attemptKeyEq(key)).
		Where(sq.Eq{"status": string(domain.CheckoutAttemptProcessing)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build checkout attempt update: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("finish checkout attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

func (r *checkoutAttemptRepository) Release(ctx context.Context, key domain.CheckoutKey) error {
	key = key.Normalize()

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query, args, err := psql.Delete(checkoutAttemptsTable).
		Where(attemptKeyEq(key)).
		Where(sq.Eq{"status": string(domain.CheckoutAttemptProcessing)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build checkout attempt release: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("release checkout attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

func (r *checkoutAttemptRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	return r.deleteOldest(ctx, sq.LtOrEq{"expires_at": before}, "expires_at", limit)
}

func (r *checkoutAttemptRepository) ReleaseStale(ctx context.Context, before time.Time, limit int) (int, error) {
	return r.deleteOldest(ctx, sq.And{
		sq.Eq{"status": string(domain.CheckoutAttemptProcessing)},
		sq.LtOrEq{"updated_at": before},
	}, "updated_at", limit)
}

// deleteOldest удаляет до limit строк под условием where, начиная с самых старых по orderBy.
func (r *checkoutAttemptRepository) deleteOldest(ctx context.Context, where sq.Sqlizer, orderBy string, limit int) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	builder := psql.Delete(checkoutAttemptsTable)
	if limit > 0 {
		sub := psql.Select("buyer_id", "idempotency_key").From(checkoutAttemptsTable).
			Where(where).
			OrderBy(orderBy + " ASC").
			Limit(uint64(limit))
		builder = builder.Where(sq.Expr("(buyer_id, idempotency_key) IN (?)", sub))
	} else {
		builder = builder.Where(where)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build checkout attempt delete: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete checkout attempts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

var _ domain.CheckoutAttemptRepository = (*checkoutAttemptRepository)(nil)
