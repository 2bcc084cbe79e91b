package httptransport

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// openSession начинает сессию покупателя с пустой корзиной.
func (h *Handler) openSession(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	sid := h.newSession()
	if _, err := h.carts.Open(r.Context(), sid, actor.ID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.Header().Set(HeaderSessionID, sid)
	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: sid})
}

// closeSession завершает сессию, корзина удаляется.
func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Discard(r.Context(), sessionFrom(r.Context())); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getCart сверяет корзину с остатками и возвращает её вместе с заметками о корректировках.
func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	cart, notes, err := h.carts.Reconcile(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(cart, notes))
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	var req addToCartRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	size, err := h.carts.AddOrIncrement(r.Context(), sessionFrom(r.Context()), req.ProductID, req.Quantity)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, addToCartResponse{CartSize: size})
}

// setQuantity меняет количество строки. Исчезнувший товар удаляется из корзины,
// клиент получает корзину и заметку вместо ошибки.
func (h *Handler) setQuantity(w http.ResponseWriter, r *http.Request) {
	var req setQuantityRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	productID := chi.URLParam(r, "productID")
	cart, err := h.carts.SetQuantity(r.Context(), sessionFrom(r.Context()), productID, *req.Quantity)
	if errors.Is(err, domain.ErrProductGone) {
		writeJSON(w, http.StatusOK, toCartResponse(cart, []domain.Adjustment{{
			ProductID: productID,
			Kind:      domain.AdjustmentRemoved,
			Message:   err.Error(),
		}}))
		return
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(cart, nil))
}

func (h *Handler) removeFromCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.Remove(r.Context(), sessionFrom(r.Context()), chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(cart, nil))
}
