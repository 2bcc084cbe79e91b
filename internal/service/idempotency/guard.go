package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
)

// DefaultTTL: время жизни попытки оформления.
const DefaultTTL = 24 * time.Hour

// Исходы запроса с ключом для метрик.
const (
	outcomeStarted      = "started"
	outcomeStored       = "stored"
	outcomeReplayed     = "replayed"
	outcomeInProgress   = "in_progress"
	outcomeHashMismatch = "hash_mismatch"
	outcomeReleased     = "released"
)

// Response: ответ оформления. OrderID заполнен, если заказ создан.
type Response struct {
	Status  int
	Body    []byte
	OrderID string
}

// Option настраивает Guard.
type Option func(*Guard)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

// WithMetrics подключает метрики идемпотентного оформления.
func WithMetrics(mx *metrics.MarketplaceMetrics) Option {
	return func(g *Guard) {
		g.metrics = mx
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

// Guard гарантирует, что оформление с одним ключом покупателя выполняется не больше одного раза.
//
// Повтор с тем же телом получает сохранённый ответ (и созданный заказ), с другим телом,
// ErrIdempotencyHashMismatch. Сохраняются только окончательные ответы: 2xx и 4xx.
// После 5xx или паники обработчика ключ освобождается, и клиент может повторить запрос.
type Guard struct {
	repo    domain.CheckoutAttemptRepository
	ttl     time.Duration
	logger  *log.Entry
	metrics *metrics.MarketplaceMetrics
	now     func() time.Time
}

// NewGuard создаёт Guard. ttl<=0 означает DefaultTTL.
func NewGuard(repo domain.CheckoutAttemptRepository, ttl time.Duration, options ...Option) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	g := &Guard{repo: repo, ttl: ttl}
	for _, option := range options {
		option(g)
	}
	if g.logger == nil {
		g.logger = log.WithField("component", "idempotency")
	}
	if g.now == nil {
		g.now = func() time.Time { return time.Now().UTC() }
	}
	return g
}

// RequestHash считает отпечаток запроса: маршрут и тело.
func RequestHash(scope string, body []byte) string {
	payload := make([]byte, 0, len(scope)+1+len(body))
	payload = append(payload, scope...)
	payload = append(payload, ':')
	payload = append(payload, body...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Do выполняет handler один раз на ключ покупателя. Пустой Key отключает защиту.
// replayed=true означает, что ответ взят из сохранённой попытки.
func (g *Guard) Do(ctx context.Context, key domain.CheckoutKey, requestHash string, handler func(context.Context) Response) (resp Response, replayed bool, err error) {
	key = key.Normalize()
	if g == nil || g.repo == nil || key.Key == "" {
		return handler(ctx), false, nil
	}

	attempt, err := g.repo.Begin(ctx, key, requestHash, g.now().Add(g.ttl))
	if err != nil {
		return g.replay(key, attempt, err)
	}
	g.record(outcomeStarted)

	defer func() {
		if p := recover(); p != nil {
			g.release(ctx, key, "handler panicked")
			panic(p)
		}
	}()

	resp = handler(ctx)
	if resp.Status >= http.StatusInternalServerError {
		g.release(ctx, key, "transient failure")
		return resp, false, nil
	}
	g.finish(ctx, key, resp)
	return resp, false, nil
}

func (g *Guard) replay(key domain.CheckoutKey, attempt domain.CheckoutAttempt, beginErr error) (Response, bool, error) {
	switch {
	case errors.Is(beginErr, domain.ErrIdempotencyHashMismatch):
		g.record(outcomeHashMismatch)
		return Response{}, false, beginErr
	case errors.Is(beginErr, domain.ErrIdempotencyKeyAlreadyExists):
		if !attempt.Finished() {
			g.record(outcomeInProgress)
			return Response{}, false, domain.ErrIdempotencyInProgress
		}
		g.record(outcomeReplayed)
		g.logger.WithFields(log.Fields{
			"buyer_id":        key.BuyerID,
			"idempotency_key": key.Key,
			"order_id":        attempt.OrderID,
			"status":          attempt.HTTPStatus,
		}).Info("checkout replayed from stored attempt")
		return Response{Status: attempt.HTTPStatus, Body: attempt.ResponseBody, OrderID: attempt.OrderID}, true, nil
	default:
		return Response{}, false, fmt.Errorf("begin checkout attempt: %w", beginErr)
	}
}

func (g *Guard) finish(ctx context.Context, key domain.CheckoutKey, resp Response) {
	err := g.repo.Finish(context.WithoutCancel(ctx), key, domain.CheckoutOutcome{
		HTTPStatus: resp.Status,
		Body:       resp.Body,
		OrderID:    resp.OrderID,
	})
	if err != nil {
		g.logger.WithError(err).WithFields(log.Fields{
			"buyer_id":        key.BuyerID,
			"idempotency_key": key.Key,
			"order_id":        resp.OrderID,
		}).Warn("failed to store checkout attempt outcome")
		return
	}
	g.record(outcomeStored)
}

// release освобождает ключ даже при отменённом запросе: иначе он висел бы в processing до чистки.
func (g *Guard) release(ctx context.Context, key domain.CheckoutKey, reason string) {
	fields := log.Fields{"buyer_id": key.BuyerID, "idempotency_key": key.Key, "reason": reason}
	if err := g.repo.Release(context.WithoutCancel(ctx), key); err != nil {
		g.logger.WithError(err).WithFields(fields).Warn("failed to release checkout attempt")
		return
	}
	g.record(outcomeReleased)
	g.logger.WithFields(fields).Info("checkout attempt released")
}

func (g *Guard) record(outcome string) {
	if g.metrics != nil {
		g.metrics.RecordCheckoutKey(outcome)
	}
}
