package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/fekuna/omnipos-offline-sync/internal/auth"
	"github.com/fekuna/omnipos-offline-sync/internal/httpx"
	"github.com/fekuna/omnipos-offline-sync/internal/logger"
	"github.com/fekuna/omnipos-offline-sync/internal/model"
	"github.com/fekuna/omnipos-offline-sync/internal/stock"
	"github.com/fekuna/omnipos-offline-sync/internal/stock/dto"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type StockHandler struct {
	uc     stock.UseCase
	logger logger.ZapLogger
}

func NewStockHandler(uc stock.UseCase, log logger.ZapLogger) *StockHandler {
	return &StockHandler{uc: uc, logger: log}
}

func (h *StockHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/stock", func(r chi.Router) {
		r.Get("/low", h.listLowStock)
		r.Get("/products/{id}", h.getProduct)
		r.Post("/products/{id}/adjust", h.adjustStock)
		r.Get("/products/{id}/movements", h.listMovements)
	})
}

type AdjustStockRequest struct {
	Amount json.Number `json:"amount"`
	Reason string      `json:"reason"`
}

func (h *StockHandler) adjustStock(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(chi.URLParam(r, "id"))
	if err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}

	var req AdjustStockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "amount must be a JSON number")
		return
	}
	if req.Amount == "" {
		httpx.BadRequest(w, "amount is required")
		return
	}
	amount, err := stock.ParseAmount(req.Amount.String())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	res, err := h.uc.AdjustStock(r.Context(), &dto.AdjustStockInput{
		ProductID: id,
		Amount:    amount,
		Reason:    req.Reason,
		Actor:     auth.GetActor(r.Context()),
	})
	if err != nil {
		h.logger.Debug("adjust stock rejected", zap.Int64("product_id", id), zap.Error(err))
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *StockHandler) listLowStock(w http.ResponseWriter, r *http.Request) {
	products, err := h.uc.ListLowStock(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, products)
}

func (h *StockHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(chi.URLParam(r, "id"))
	if err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	p, err := h.uc.GetProduct(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *StockHandler) listMovements(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(chi.URLParam(r, "id"))
	if err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}

	q := r.URL.Query()
	filters := &dto.MovementFilters{
		ProductID: id,
		Kind:      model.MovementKind(strings.ToLower(q.Get("kind"))),
	}
	if filters.Page, err = httpx.IntParam(q.Get("page"), 1); err != nil {
		httpx.BadRequest(w, "page "+err.Error())
		return
	}
	if filters.PageSize, err = httpx.IntParam(q.Get("page_size"), 50); err != nil {
		httpx.BadRequest(w, "page_size "+err.Error())
		return
	}
	if filters.From, err = timeParam(q.Get("from")); err != nil {
		httpx.BadRequest(w, "from must be RFC 3339")
		return
	}
	if filters.To, err = timeParam(q.Get("to")); err != nil {
		httpx.BadRequest(w, "to must be RFC 3339")
		return
	}

	movements, total, err := h.uc.ListMovements(r.Context(), filters)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.Page{
		Items:    movements,
		Total:    total,
		Page:     filters.Page,
		PageSize: filters.PageSize,
	})
}

func timeParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
