package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/cart"
	"github.com/vladislavdragonenkov/marketplace/internal/service/catalog"
	"github.com/vladislavdragonenkov/marketplace/internal/service/checkout"
	"github.com/vladislavdragonenkov/marketplace/internal/service/fulfillment"
	"github.com/vladislavdragonenkov/marketplace/internal/service/idempotency"
	"github.com/vladislavdragonenkov/marketplace/internal/service/orders"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

type apiEnv struct {
	router  *chi.Mux
	catalog domain.CatalogRepository
}

func newAPI(t *testing.T, products ...domain.Product) apiEnv {
	t.Helper()
	store := memory.NewStore()
	catalogRepo := memory.NewCatalogRepository(store)
	for _, p := range products {
		require.NoError(t, catalogRepo.Create(context.Background(), p))
	}
	tx := memory.NewTxManager(store)
	carts := cart.NewManager(catalogRepo, memory.NewCartStore())

	router := NewRouter(Services{
		Carts:       carts,
		Checkout:    checkout.NewService(tx, carts),
		Fulfillment: fulfillment.NewService(tx),
		Catalog:     catalog.NewService(catalogRepo, nil),
		Orders:      orders.NewService(memory.NewOrderRepository(store), store.Timeline()),
		Idempotency: idempotency.NewGuard(memory.NewCheckoutAttemptRepository(), 0),
	}, Options{})
	return apiEnv{router: router, catalog: catalogRepo}
}

type caller struct {
	id, role, session string
}

func buyer(id string) caller    { return caller{id: id, role: string(domain.RoleBuyer)} }
func supplier(id string) caller { return caller{id: id, role: string(domain.RoleSupplier)} }

func (e apiEnv) do(t *testing.T, c caller, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch v := body.(type) {
		case string:
			buf.WriteString(v)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(v))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.id != "" {
		req.Header.Set(HeaderActorID, c.id)
		req.Header.Set(HeaderActorRole, c.role)
	}
	if c.session != "" {
		req.Header.Set(HeaderSessionID, c.session)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e apiEnv) login(t *testing.T, c caller) caller {
	t.Helper()
	rec := e.do(t, c, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	assert.Equal(t, resp.SessionID, rec.Header().Get(HeaderSessionID))
	c.session = resp.SessionID
	return c
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func seedProducts() []domain.Product {
	return []domain.Product{
		{ID: "a", SupplierID: "sup-1", Name: "Desk lamp", PriceMinor: 5000, Stock: 5},
		{ID: "b", SupplierID: "sup-2", Name: "Notebook", PriceMinor: 3000, Stock: 1},
	}
}

func TestProductsArePublic(t *testing.T) {
	env := newAPI(t, seedProducts()...)

	rec := env.do(t, caller{}, http.MethodGet, "/api/v1/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeAs[[]productResponse](t, rec)
	require.Len(t, list, 2)

	rec = env.do(t, caller{}, http.MethodGet, "/api/v1/products?supplier_id=sup-2", nil)
	list = decodeAs[[]productResponse](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "30.00", list[0].Price)

	rec = env.do(t, caller{}, http.MethodGet, "/api/v1/products/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, caller{}, http.MethodGet, "/api/v1/products?limit=-3", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestIdentityAndRoles(t *testing.T) {
	env := newAPI(t, seedProducts()...)

	tests := []struct {
		name   string
		caller caller
		method string
		path   string
		want   int
	}{
		{"no identity", caller{}, http.MethodGet, "/api/v1/orders", http.StatusUnauthorized},
		{"unknown role", caller{id: "x", role: "admin"}, http.MethodGet, "/api/v1/orders", http.StatusUnauthorized},
		{"supplier on buyer route", supplier("sup-1"), http.MethodGet, "/api/v1/orders", http.StatusForbidden},
		{"buyer on supplier route", buyer("buyer-1"), http.MethodGet, "/api/v1/supplier/orders", http.StatusForbidden},
		{"cart without session", buyer("buyer-1"), http.MethodGet, "/api/v1/cart", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.caller, tt.method, tt.path, nil)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestSessionBelongsToActor(t *testing.T) {
	env := newAPI(t, seedProducts()...)
	alice := env.login(t, buyer("alice"))

	mallory := buyer("mallory")
	mallory.session = alice.session
	rec := env.do(t, mallory, http.MethodGet, "/api/v1/cart", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCartOperations(t *testing.T) {
	env := newAPI(t, seedProducts()...)
	c := env.login(t, buyer("buyer-1"))

	rec := env.do(t, c, http.MethodPost, "/api/v1/cart/items", addToCartRequest{ProductID: "a", Quantity: 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decodeAs[addToCartResponse](t, rec).CartSize)

	// Новая строка создаётся с количеством 1, поэтому 1+5 уже больше остатка 5.
	rec = env.do(t, c, http.MethodPost, "/api/v1/cart/items", addToCartRequest{ProductID: "a", Quantity: 5})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeAs[errorBody](t, rec)
	assert.Equal(t, "stock_exceeded", body.Error.Code)
	require.NotNil(t, body.Error.Available)
	assert.Equal(t, 5, *body.Error.Available)

	rec = env.do(t, c, http.MethodPut, "/api/v1/cart/items/a", `{"quantity":3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cartResp := decodeAs[cartResponse](t, rec)
	assert.Equal(t, "150.00", cartResp.Total)

	rec = env.do(t, c, http.MethodPut, "/api/v1/cart/items/a", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, c, http.MethodDelete, "/api/v1/cart/items/a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeAs[cartResponse](t, rec).Size)

	rec = env.do(t, c, http.MethodDelete, "/api/v1/sessions", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSessionUnusableAfterLogout(t *testing.T) {
	env := newAPI(t, seedProducts()...)
	c := env.login(t, buyer("buyer-1"))

	require.Equal(t, http.StatusOK, env.do(t, c, http.MethodPost, "/api/v1/cart/items", addToCartRequest{ProductID: "a"}).Code)
	require.Equal(t, http.StatusNoContent, env.do(t, c, http.MethodDelete, "/api/v1/sessions", nil).Code)

	requests := []struct {
		method, path string
		body         any
	}{
		{http.MethodPost, "/api/v1/cart/items", addToCartRequest{ProductID: "a"}},
		{http.MethodGet, "/api/v1/cart", nil},
		{http.MethodPut, "/api/v1/cart/items/a", `{"quantity":2}`},
		{http.MethodDelete, "/api/v1/cart/items/a", nil},
		{http.MethodPost, "/api/v1/checkout", checkoutRequest{DeliveryAddress: "Main st 1", DeliveryPhone: "+7 999 000 00 00"}},
		{http.MethodDelete, "/api/v1/sessions", nil},
	}
	for _, req := range requests {
		rec := env.do(t, c, req.method, req.path, req.body)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s: %s", req.method, req.path, rec.Body.String())
		assert.Equal(t, "session_expired", decodeAs[errorBody](t, rec).Error.Code)
	}

	// Чужой актор тоже не может подобрать завершённую сессию.
	other := buyer("buyer-2")
	other.session = c.session
	rec := env.do(t, other, http.MethodPost, "/api/v1/cart/items", addToCartRequest{ProductID: "a"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	made := buyer("buyer-3")
	made.session = "never-opened"
	rec = env.do(t, made, http.MethodGet, "/api/v1/cart", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCartQuantityUpperBound(t *testing.T) {
	env := newAPI(t, seedProducts()...)
	c := env.login(t, buyer("buyer-1"))

	rec := env.do(t, c, http.MethodPost, "/api/v1/cart/items", addToCartRequest{ProductID: "a", Quantity: maxCartQuantity + 1})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Equal(t, "quantity", decodeAs[errorBody](t, rec).Error.Field)

	require.Equal(t, http.StatusOK, env.do(t, c, http.MethodPost, "/api/v1/cart/items", addToCartRequest{ProductID: "a"}).Code)
	rec = env.do(t, c, http.MethodPost, "/api/v1/cart/items", addToCartRequest{ProductID: "a", Quantity: maxCartQuantity})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, c, http.MethodPut, "/api/v1/cart/items/a", map[string]int{"quantity": maxCartQuantity + 1})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, c, http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeAs[cartResponse](t, rec)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 1, resp.Items[0].Quantity)
}

func TestSetQuantityOnRemovedProductReturnsNote(t *testing.T) {
	env := newAPI(t, seedProducts()...)
	c := env.login(t, buyer("buyer-1"))

	require.Equal(t, http.StatusOK, env.do(t, c, http.MethodPost, "/api/v1/cart/items", addToCartRequest{ProductID: "a"}).Code)
	require.Equal(t, http.StatusNoContent, env.do(t, supplier("sup-1"), http.MethodDelete, "/api/v1/supplier/products/a", nil).Code)

	rec := env.do(t, c, http.MethodPut, "/api/v1/cart/items/a", `{"quantity":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeAs[cartResponse](t, rec)
	assert.Equal(t, 0, resp.Size)
	require.Len(t, resp.Notes, 1)
	assert.Equal(t, string(domain.AdjustmentRemoved), resp.Notes[0].Kind)
}

func TestCheckoutAndFulfillmentFlow(t *testing.T) {
	env := newAPI(t, seedProducts()...)
	c := env.login(t, buyer("buyer-1"))

	require.Equal(t, http.StatusOK, env.do(t, c, http.MethodPost, "/api/v1/cart/items", addToCartRequest{ProductID: "a"}).Code)
	require.Equal(t, http.StatusOK, env.do(t, c, http.MethodPost, "/api/v1/cart/items", addToCartRequest{ProductID: "a"}).Code)
	require.Equal(t, http.StatusOK, env.do(t, c, http.MethodPost, "/api/v1/cart/items", addToCartRequest{ProductID: "b"}).Code)

	rec := env.do(t, c, http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "130.00", decodeAs[cartResponse](t, rec).Total)

	checkoutBody := checkoutRequest{DeliveryAddress: "221B Baker Street", DeliveryPhone: "+44 20 7946 0000"}
	rec = env.do(t, c, http.MethodPost, "/api/v1/checkout", checkoutBody, HeaderIdempotencyKey, "key-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := rec.Body.String()
	order := decodeAs[orderResponse](t, rec)
	assert.Equal(t, "130.00", order.Total)
	assert.Equal(t, string(domain.OrderStatusPending), order.Status)
	require.Len(t, order.Items, 2)
	for _, item := range order.Items {
		assert.Equal(t, string(domain.ItemStatusPending), item.Status)
	}

	// Повтор с тем же ключом не создаёт второй заказ.
	rec = env.do(t, c, http.MethodPost, "/api/v1/checkout", checkoutBody, HeaderIdempotencyKey, "key-1")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "true", rec.Header().Get(HeaderReplayed))
	assert.JSONEq(t, first, rec.Body.String())

	rec = env.do(t, c, http.MethodPost, "/api/v1/checkout", checkoutRequest{DeliveryAddress: "elsewhere", DeliveryPhone: "+1 555 0100"}, HeaderIdempotencyKey, "key-1")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, c, http.MethodGet, "/api/v1/cart", nil)
	assert.Equal(t, 0, decodeAs[cartResponse](t, rec).Size)

	rec = env.do(t, c, http.MethodGet, "/api/v1/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeAs[orderListResponse](t, rec).Orders, 1)

	p, err := env.catalog.Get(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)

	// Поставщик видит только свою долю заказа.
	rec = env.do(t, supplier("sup-1"), http.MethodGet, "/api/v1/supplier/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summaries := decodeAs[[]supplierOrderSummaryResponse](t, rec)
	require.Len(t, summaries, 1)
	assert.Equal(t, "100.00", summaries[0].Subtotal)

	rec = env.do(t, supplier("sup-1"), http.MethodGet, "/api/v1/supplier/orders/"+order.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeAs[supplierOrderResponse](t, rec)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "100.00", view.Earnings)

	var itemA, itemB orderItemResponse
	for _, item := range order.Items {
		if item.SupplierID == "sup-1" {
			itemA = item
		} else {
			itemB = item
		}
	}
	itemPath := func(id string) string { return "/api/v1/supplier/orders/" + order.ID + "/items/" + id }

	rec = env.do(t, supplier("sup-2"), http.MethodPatch, itemPath(itemA.ID), updateItemStatusRequest{Status: "Processing"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, supplier("sup-1"), http.MethodPatch, itemPath(itemA.ID), updateItemStatusRequest{Status: "Lost"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, supplier("sup-1"), http.MethodPatch, itemPath(itemA.ID), updateItemStatusRequest{Status: "shipped"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_status", decodeAs[errorBody](t, rec).Error.Code)

	rec = env.do(t, supplier("sup-1"), http.MethodPatch, itemPath(itemA.ID), updateItemStatusRequest{Status: "Shipped"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	changed := decodeAs[itemStatusResponse](t, rec)
	assert.True(t, changed.ItemChanged)
	assert.Equal(t, string(domain.OrderStatusPending), changed.OrderStatus)

	rec = env.do(t, supplier("sup-1"), http.MethodPatch, itemPath(itemA.ID), updateItemStatusRequest{Status: "Processing"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, supplier("sup-2"), http.MethodPatch, itemPath(itemB.ID), updateItemStatusRequest{Status: "Shipped"})
	require.Equal(t, http.StatusOK, rec.Code)
	changed = decodeAs[itemStatusResponse](t, rec)
	assert.True(t, changed.OrderChanged)
	assert.Equal(t, string(domain.OrderStatusShipped), changed.OrderStatus)

	rec = env.do(t, supplier("sup-2"), http.MethodPatch, itemPath(itemB.ID), updateItemStatusRequest{Status: "Shipped"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeAs[itemStatusResponse](t, rec).ItemChanged)

	rec = env.do(t, c, http.MethodGet, "/api/v1/orders/"+order.ID+"/timeline", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.GreaterOrEqual(t, len(decodeAs[[]timelineEventResponse](t, rec)), 3)

	rec = env.do(t, buyer("someone-else"), http.MethodGet, "/api/v1/orders/"+order.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckoutStopsWhenCartWasAdjusted(t *testing.T) {
	env := newAPI(t, seedProducts()...)
	c := env.login(t, buyer("buyer-1"))
	require.Equal(t, http.StatusOK, env.do(t, c, http.MethodPost, "/api/v1/cart/items", addToCartRequest{ProductID: "a"}).Code)
	require.Equal(t, http.StatusOK, env.do(t, c, http.MethodPut, "/api/v1/cart/items/a", `{"quantity":5}`).Code)

	rec := env.do(t, supplier("sup-1"), http.MethodPatch, "/api/v1/supplier/products/a", `{"price":"50.00","stock":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, c, http.MethodPost, "/api/v1/checkout", checkoutRequest{DeliveryAddress: "Main st 1", DeliveryPhone: "+7 999 000 00 00"})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	resp := decodeAs[checkoutAdjustedResponse](t, rec)
	assert.Equal(t, "cart_adjusted", resp.Error.Code)
	require.Len(t, resp.Cart.Notes, 1)
	assert.Equal(t, string(domain.AdjustmentClamped), resp.Cart.Notes[0].Kind)
	assert.Equal(t, 2, resp.Cart.Items[0].Quantity)

	// Вторая попытка оформляет уже урезанную корзину.
	rec = env.do(t, c, http.MethodPost, "/api/v1/checkout", checkoutRequest{DeliveryAddress: "Main st 1", DeliveryPhone: "+7 999 000 00 00"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "100.00", decodeAs[orderResponse](t, rec).Total)
}

func TestCheckoutValidation(t *testing.T) {
	env := newAPI(t, seedProducts()...)
	c := env.login(t, buyer("buyer-1"))

	rec := env.do(t, c, http.MethodPost, "/api/v1/checkout", checkoutRequest{DeliveryAddress: "Main st 1", DeliveryPhone: "+7 999"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "cart_empty", decodeAs[errorBody](t, rec).Error.Code)

	rec = env.do(t, c, http.MethodPost, "/api/v1/checkout", `{"delivery_address":""}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "delivery_address", decodeAs[errorBody](t, rec).Error.Field)

	rec = env.do(t, c, http.MethodPost, "/api/v1/checkout", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSupplierProductManagement(t *testing.T) {
	env := newAPI(t, seedProducts()...)
	sup := supplier("sup-3")

	rec := env.do(t, sup, http.MethodPost, "/api/v1/supplier/products", `{"name":"Mug","price":"12.345","stock":3}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, sup, http.MethodPost, "/api/v1/supplier/products", `{"name":"Mug","stock":3}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, sup, http.MethodPost, "/api/v1/supplier/products", `{"name":"Mug","price":"12.5","stock":3}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeAs[productResponse](t, rec)
	assert.Equal(t, "12.50", created.Price)
	assert.Equal(t, "sup-3", created.SupplierID)

	rec = env.do(t, supplier("sup-1"), http.MethodPatch, "/api/v1/supplier/products/"+created.ID, `{"price":"1.00","stock":1}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, sup, http.MethodPatch, "/api/v1/supplier/products/"+created.ID, `{"price":12,"stock":-1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, sup, http.MethodPatch, "/api/v1/supplier/products/"+created.ID, `{"price":12,"stock":7}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 7, decodeAs[productResponse](t, rec).Stock)

	rec = env.do(t, supplier("sup-1"), http.MethodDelete, "/api/v1/supplier/products/"+created.ID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = env.do(t, sup, http.MethodDelete, "/api/v1/supplier/products/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, caller{}, http.MethodGet, "/api/v1/products/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckoutIdempotencyKeyIsPerBuyer(t *testing.T) {
	env := newAPI(t, seedProducts()...)
	alice := env.login(t, buyer("alice"))
	bob := env.login(t, buyer("bob"))

	require.Equal(t, http.StatusOK, env.do(t, alice, http.MethodPost, "/api/v1/cart/items", addToCartRequest{ProductID: "a"}).Code)
	require.Equal(t, http.StatusOK, env.do(t, bob, http.MethodPost, "/api/v1/cart/items", addToCartRequest{ProductID: "a"}).Code)

	body := checkoutRequest{DeliveryAddress: "1 Main St", DeliveryPhone: "+1 555 0100"}
	rec := env.do(t, alice, http.MethodPost, "/api/v1/checkout", body, HeaderIdempotencyKey, "shared-key")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	aliceOrder := decodeAs[orderResponse](t, rec)

	// Тот же ключ другого покупателя оформляет его собственный заказ.
	rec = env.do(t, bob, http.MethodPost, "/api/v1/checkout", body, HeaderIdempotencyKey, "shared-key")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Empty(t, rec.Header().Get(HeaderReplayed))
	bobOrder := decodeAs[orderResponse](t, rec)
	assert.NotEqual(t, aliceOrder.ID, bobOrder.ID)
	assert.Equal(t, "bob", bobOrder.BuyerID)

	p, err := env.catalog.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)
}
