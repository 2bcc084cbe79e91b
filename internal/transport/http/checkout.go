package httptransport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/checkout"
	"github.com/vladislavdragonenkov/marketplace/internal/service/idempotency"
)

const checkoutScope = "POST /api/v1/checkout"

// placeOrder оформляет заказ из корзины сессии.
//
// Перед оформлением корзина сверяется с остатками. Если сверка что-то поменяла, заказ не
// создаётся: клиент получает 409 с обновлённой корзиной и заметками и повторяет запрос.
// Idempotency-Key действует в пределах покупателя: повтор того же покупателя с тем же ключом
// получает сохранённый ответ и тот же заказ. Ответы 5xx не сохраняются.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	key := domain.CheckoutKey{BuyerID: actorFrom(r.Context()).ID, Key: r.Header.Get(HeaderIdempotencyKey)}
	hash := idempotency.RequestHash(checkoutScope, raw)

	resp, replayed, err := h.guard.Do(r.Context(), key, hash, func(ctx context.Context) idempotency.Response {
		return h.checkoutOnce(ctx, r, raw)
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if replayed {
		w.Header().Set(HeaderReplayed, "true")
	}
	writeRaw(w, resp.Status, resp.Body)
}

func (h *Handler) checkoutOnce(ctx context.Context, r *http.Request, raw []byte) idempotency.Response {
	var req checkoutRequest
	if err := decode(raw, &req); err != nil {
		return h.errorResponse(r, err)
	}

	sid := sessionFrom(ctx)
	cart, notes, err := h.carts.Reconcile(ctx, sid)
	if err != nil {
		return h.errorResponse(r, err)
	}
	if len(notes) > 0 {
		return render(http.StatusConflict, checkoutAdjustedResponse{
			Error: errorDetail{
				Code:    "cart_adjusted",
				Message: "cart was adjusted to current stock, review it and place the order again",
			},
			Cart: toCartResponse(cart, notes),
		})
	}

	order, err := h.checkout.PlaceOrder(ctx, checkout.PlaceOrderInput{
		BuyerID:         actorFrom(ctx).ID,
		SessionID:       sid,
		Entries:         cart.Entries,
		DeliveryAddress: req.DeliveryAddress,
		DeliveryPhone:   req.DeliveryPhone,
	})
	if err != nil {
		return h.errorResponse(r, err)
	}
	resp := render(http.StatusCreated, toOrderResponse(order))
	resp.OrderID = order.ID
	return resp
}

func (h *Handler) errorResponse(r *http.Request, err error) idempotency.Response {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		requestLogger(r, h.logger).WithError(err).Error("checkout failed")
	}
	return render(status, body)
}

func render(status int, v any) idempotency.Response {
	body, err := json.Marshal(v)
	if err != nil {
		return idempotency.Response{Status: http.StatusInternalServerError, Body: []byte(`{"error":{"code":"internal","message":"Internal Server Error"}}`)}
	}
	return idempotency.Response{Status: status, Body: body}
}
