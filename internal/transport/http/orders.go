package httptransport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/fulfillment"
)

// queryLimit читает ?limit=. Пустое значение даёт 0, и сервис подставит лимит по умолчанию.
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, domain.NewValidationError("limit", "must be a non-negative integer")
	}
	return limit, nil
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	list, err := h.orders.ListForBuyer(r.Context(), actorFrom(r.Context()).ID, limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp := orderListResponse{Orders: make([]orderResponse, 0, len(list))}
	for _, o := range list {
		resp.Orders = append(resp.Orders, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetForBuyer(r.Context(), actorFrom(r.Context()).ID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) orderTimeline(w http.ResponseWriter, r *http.Request) {
	events, err := h.orders.Timeline(r.Context(), actorFrom(r.Context()).ID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp := make([]timelineEventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, timelineEventResponse{Type: ev.Type, Reason: ev.Reason, OccurredAt: ev.Occurred})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listSupplierOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	list, err := h.orders.ListForSupplier(r.Context(), actorFrom(r.Context()).ID, limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp := make([]supplierOrderSummaryResponse, 0, len(list))
	for _, s := range list {
		resp = append(resp, supplierOrderSummaryResponse{
			OrderID:         s.OrderID,
			BuyerID:         s.BuyerID,
			Status:          string(s.Status),
			DeliveryAddress: s.DeliveryAddress,
			DeliveryPhone:   s.DeliveryPhone,
			Subtotal:        formatMinor(s.SubtotalMinor),
			CreatedAt:       s.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getSupplierOrder(w http.ResponseWriter, r *http.Request) {
	view, err := h.orders.GetForSupplier(r.Context(), actorFrom(r.Context()).ID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSupplierOrderResponse(view))
}

// updateItemStatus продвигает позицию поставщика по жизненному циклу.
// Повтор того же статуса возвращает 200 с item_changed=false.
func (h *Handler) updateItemStatus(w http.ResponseWriter, r *http.Request) {
	var req updateItemStatusRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := h.fulfillment.UpdateItemStatus(r.Context(), fulfillment.UpdateItemStatusInput{
		OrderID:    chi.URLParam(r, "orderID"),
		ItemID:     chi.URLParam(r, "itemID"),
		Status:     req.Status,
		SupplierID: actorFrom(r.Context()).ID,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, itemStatusResponse{
		Item:         toOrderItemResponse(res.Item),
		OrderStatus:  string(res.OrderStatus),
		ItemChanged:  res.ItemChanged,
		OrderChanged: res.OrderChanged,
	})
}
