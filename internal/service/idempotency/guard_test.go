package idempotency

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

func buyerKey(buyer, key string) domain.CheckoutKey {
	return domain.CheckoutKey{BuyerID: buyer, Key: key}
}

func placed(orderID string) Response {
	return Response{Status: http.StatusCreated, Body: []byte(`{"id":"` + orderID + `"}`), OrderID: orderID}
}

func TestGuard_ReplaysPlacedOrder(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCheckoutAttemptRepository()
	guard := NewGuard(repo, 0)
	hash := RequestHash("POST /api/v1/checkout", []byte(`{"delivery_address":"a"}`))

	var calls atomic.Int32
	handler := func(context.Context) Response {
		calls.Add(1)
		return placed("o-1")
	}

	first, replayed, err := guard.Do(ctx, buyerKey("buyer-1", "key-1"), hash, handler)
	require.NoError(t, err)
	assert.False(t, replayed)

	second, replayed, err := guard.Do(ctx, buyerKey("buyer-1", "key-1"), hash, handler)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())

	attempt, err := repo.Get(ctx, buyerKey("buyer-1", "key-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutAttemptPlaced, attempt.Status)
	assert.Equal(t, "o-1", attempt.OrderID)
}

func TestGuard_ReplaysRejectedCheckout(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(memory.NewCheckoutAttemptRepository(), 0)
	hash := RequestHash("scope", []byte("body"))

	rejected := Response{Status: http.StatusConflict, Body: []byte(`{"error":"Not enough stock"}`)}
	_, _, err := guard.Do(ctx, buyerKey("buyer-1", "key-2"), hash, func(context.Context) Response { return rejected })
	require.NoError(t, err)

	resp, replayed, err := guard.Do(ctx, buyerKey("buyer-1", "key-2"), hash, func(context.Context) Response {
		t.Fatal("handler must not run twice")
		return Response{}
	})
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, rejected, resp)
}

func TestGuard_ServerErrorReleasesKey(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCheckoutAttemptRepository()
	guard := NewGuard(repo, 0)
	key := buyerKey("buyer-1", "key-5xx")

	resp, replayed, err := guard.Do(ctx, key, "hash", func(context.Context) Response {
		return Response{Status: http.StatusInternalServerError, Body: []byte(`{"error":"internal error"}`)}
	})
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, http.StatusInternalServerError, resp.Status)

	_, err = repo.Get(ctx, key)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)

	retry, replayed, err := guard.Do(ctx, key, "hash", func(context.Context) Response { return placed("o-2") })
	require.NoError(t, err)
	assert.False(t, replayed, "5xx must not be replayed")
	assert.Equal(t, "o-2", retry.OrderID)
}

func TestGuard_PanicReleasesKey(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCheckoutAttemptRepository()
	guard := NewGuard(repo, 0)
	key := buyerKey("buyer-1", "key-panic")

	assert.PanicsWithValue(t, "boom", func() {
		_, _, _ = guard.Do(ctx, key, "hash", func(context.Context) Response { panic("boom") })
	})

	_, err := repo.Get(ctx, key)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)

	_, replayed, err := guard.Do(ctx, key, "hash", func(context.Context) Response { return placed("o-3") })
	require.NoError(t, err)
	assert.False(t, replayed)
}

func TestGuard_ReleasesKeyWhenRequestCancelled(t *testing.T) {
	repo := memory.NewCheckoutAttemptRepository()
	guard := NewGuard(repo, 0)
	key := buyerKey("buyer-1", "key-cancel")

	ctx, cancel := context.WithCancel(context.Background())
	_, _, err := guard.Do(ctx, key, "hash", func(context.Context) Response {
		cancel()
		return Response{Status: http.StatusServiceUnavailable}
	})
	require.NoError(t, err)

	_, err = repo.Get(context.Background(), key)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
}

func TestGuard_KeysAreScopedPerBuyer(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(memory.NewCheckoutAttemptRepository(), 0)

	var calls atomic.Int32
	handler := func(orderID string) func(context.Context) Response {
		return func(context.Context) Response {
			calls.Add(1)
			return placed(orderID)
		}
	}

	a, replayed, err := guard.Do(ctx, buyerKey("alice", "same-key"), "hash-a", handler("o-a"))
	require.NoError(t, err)
	assert.False(t, replayed)

	b, replayed, err := guard.Do(ctx, buyerKey("bob", "same-key"), "hash-b", handler("o-b"))
	require.NoError(t, err)
	assert.False(t, replayed, "another buyer must not receive alice's order")
	assert.Equal(t, "o-a", a.OrderID)
	assert.Equal(t, "o-b", b.OrderID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGuard_HashMismatchAndInProgress(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(memory.NewCheckoutAttemptRepository(), 0)
	key := buyerKey("buyer-1", "key-3")

	_, _, err := guard.Do(ctx, key, "hash-a", func(context.Context) Response {
		_, _, innerErr := guard.Do(ctx, key, "hash-a", func(context.Context) Response { return Response{} })
		assert.ErrorIs(t, innerErr, domain.ErrIdempotencyInProgress)
		return placed("o-4")
	})
	require.NoError(t, err)

	_, _, err = guard.Do(ctx, key, "hash-b", func(context.Context) Response { return Response{} })
	assert.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
}

func TestGuard_EmptyKeyBypasses(t *testing.T) {
	guard := NewGuard(memory.NewCheckoutAttemptRepository(), 0)

	var calls int
	for i := 0; i < 2; i++ {
		_, replayed, err := guard.Do(context.Background(), buyerKey("buyer-1", " "), "hash", func(context.Context) Response {
			calls++
			return Response{Status: http.StatusCreated}
		})
		require.NoError(t, err)
		assert.False(t, replayed)
	}
	assert.Equal(t, 2, calls)
}

func TestGuard_RecordsOutcomes(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	mx := metrics.NewMarketplaceMetricsWithRegisterer(reg)
	guard := NewGuard(memory.NewCheckoutAttemptRepository(), 0, WithMetrics(mx))
	key := buyerKey("buyer-1", "key-m")

	_, _, _ = guard.Do(ctx, key, "hash", func(context.Context) Response { return Response{Status: http.StatusBadGateway} })
	_, _, _ = guard.Do(ctx, key, "hash", func(context.Context) Response { return placed("o-5") })
	_, _, _ = guard.Do(ctx, key, "hash", func(context.Context) Response { return placed("o-6") })

	expected := `
# HELP marketplace_checkout_idempotency_total Checkout requests carrying an Idempotency-Key grouped by outcome
# TYPE marketplace_checkout_idempotency_total counter
marketplace_checkout_idempotency_total{outcome="released"} 1
marketplace_checkout_idempotency_total{outcome="replayed"} 1
marketplace_checkout_idempotency_total{outcome="started"} 2
marketplace_checkout_idempotency_total{outcome="stored"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "marketplace_checkout_idempotency_total"))
}

func TestRequestHash_DependsOnScopeAndBody(t *testing.T) {
	base := RequestHash("POST /api/v1/checkout", []byte("x"))
	assert.Len(t, base, 64)
	assert.Equal(t, base, RequestHash("POST /api/v1/checkout", []byte("x")))
	assert.NotEqual(t, base, RequestHash("POST /api/v2/checkout", []byte("x")))
	assert.NotEqual(t, base, RequestHash("POST /api/v1/checkout", []byte("y")))
}
