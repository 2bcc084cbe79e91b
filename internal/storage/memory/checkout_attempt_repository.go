package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// checkoutAttemptsInMemory хранит попытки оформления. Ключ: покупатель + Idempotency-Key.
type checkoutAttemptsInMemory struct {
	mu       sync.Mutex
	attempts map[domain.CheckoutKey]domain.CheckoutAttempt
	now      func() time.Time
}

// NewCheckoutAttemptRepository создаёт in-memory реализацию CheckoutAttemptRepository.
func NewCheckoutAttemptRepository() domain.CheckoutAttemptRepository {
	return &checkoutAttemptsInMemory{
		attempts: make(map[domain.CheckoutKey]domain.CheckoutAttempt),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *checkoutAttemptsInMemory) Begin(_ context.Context, key domain.CheckoutKey, requestHash string, expiresAt time.Time) (domain.CheckoutAttempt, error) {
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return domain.CheckoutAttempt{}, err
	}
	requestHash = strings.TrimSpace(requestHash)
	if requestHash == "" {
		return domain.CheckoutAttempt{}, domain.ErrIdempotencyRequestHashRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.attempts[key]; ok {
		if existing.RequestHash != requestHash {
			return cloneAttempt(existing), domain.ErrIdempotencyHashMismatch
		}
		return cloneAttempt(existing), domain.ErrIdempotencyKeyAlreadyExists
	}

	now := r.now()
	attempt := domain.CheckoutAttempt{
		BuyerID:     key.BuyerID,
		Key:         key.Key,
		RequestHash: requestHash,
		Status:      domain.CheckoutAttemptProcessing,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.attempts[key] = attempt
	return cloneAttempt(attempt), nil
}

func (r *checkoutAttemptsInMemory) Get(_ context.Context, key domain.CheckoutKey) (domain.CheckoutAttempt, error) {
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return domain.CheckoutAttempt{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	attempt, ok := r.attempts[key]
	if !ok {
		return domain.CheckoutAttempt{}, domain.ErrIdempotencyKeyNotFound
	}
	return cloneAttempt(attempt), nil
}

// Finish фиксирует ответ только для попытки в processing: сохранённый итог не перезаписывается.
func (r *checkoutAttemptsInMemory) Finish(_ context.Context, key domain.CheckoutKey, outcome domain.CheckoutOutcome) error {
	key = key.Normalize()
	status, err := outcome.Status()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	attempt, ok := r.attempts[key]
	if !ok || attempt.Status != domain.CheckoutAttemptProcessing {
		return domain.ErrIdempotencyKeyNotFound
	}
	attempt.Status = status
	attempt.OrderID = outcome.OrderID
	attempt.HTTPStatus = outcome.HTTPStatus
	attempt.ResponseBody = append([]byte(nil), outcome.Body...)
	attempt.UpdatedAt = r.now()
	r.attempts[key] = attempt
	return nil
}

func (r *checkoutAttemptsInMemory) Release(_ context.Context, key domain.CheckoutKey) error {
	key = key.Normalize()

	r.mu.Lock()
	defer r.mu.Unlock()

	attempt, ok := r.attempts[key]
	if !ok || attempt.Status != domain.CheckoutAttemptProcessing {
		return domain.ErrIdempotencyKeyNotFound
	}
	delete(r.attempts, key)
	return nil
}

func (r *checkoutAttemptsInMemory) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	return r.deleteWhere(limit, func(a domain.CheckoutAttempt) bool {
		return !a.ExpiresAt.After(before)
	}, func(a domain.CheckoutAttempt) time.Time { return a.ExpiresAt }), nil
}

func (r *checkoutAttemptsInMemory) ReleaseStale(_ context.Context, before time.Time, limit int) (int, error) {
	return r.deleteWhere(limit, func(a domain.CheckoutAttempt) bool {
		return a.Status == domain.CheckoutAttemptProcessing && !a.UpdatedAt.After(before)
	}, func(a domain.CheckoutAttempt) time.Time { return a.UpdatedAt }), nil
}

// deleteWhere удаляет самые старые по orderBy попытки, подходящие под match.
func (r *checkoutAttemptsInMemory) deleteWhere(limit int, match func(domain.CheckoutAttempt) bool, orderBy func(domain.CheckoutAttempt) time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var candidates []domain.CheckoutAttempt
	for _, attempt := range r.attempts {
		if match(attempt) {
			candidates = append(candidates, attempt)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return orderBy(candidates[i]).Before(orderBy(candidates[j]))
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	for _, attempt := range candidates {
		delete(r.attempts, attempt.CheckoutKey())
	}
	return len(candidates)
}

func cloneAttempt(src domain.CheckoutAttempt) domain.CheckoutAttempt {
	dst := src
	dst.ResponseBody = append([]byte(nil), src.ResponseBody...)
	return dst
}

var _ domain.CheckoutAttemptRepository = (*checkoutAttemptsInMemory)(nil)
