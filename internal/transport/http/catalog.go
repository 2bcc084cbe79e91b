package httptransport

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/catalog"
)

// listProducts: витрина, ?supplier_id= ограничивает товарами одного поставщика.
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	products, err := h.catalog.List(r.Context(), domain.ProductFilter{
		SupplierID: strings.TrimSpace(r.URL.Query().Get("supplier_id")),
		Limit:      limit,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, toProductResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.Get(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	price, err := parsePrice("price", *req.Price)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	product, err := h.catalog.CreateProduct(r.Context(), catalog.CreateProductInput{
		SupplierID:  actorFrom(r.Context()).ID,
		Name:        req.Name,
		Description: req.Description,
		ImageRef:    req.ImageRef,
		PriceMinor:  price,
		Stock:       req.Stock,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(product))
}

// updateProduct меняет цену и остаток. Чужой товар даёт 403.
func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req updateProductRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	price, err := parsePrice("price", *req.Price)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	product, err := h.catalog.UpdatePriceStock(r.Context(), actorFrom(r.Context()).ID, chi.URLParam(r, "productID"), price, *req.Stock)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteProduct(r.Context(), actorFrom(r.Context()).ID, chi.URLParam(r, "productID")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
