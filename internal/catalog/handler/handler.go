package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/fekuna/omnipos-offline-sync/internal/auth"
	"github.com/fekuna/omnipos-offline-sync/internal/catalog"
	"github.com/fekuna/omnipos-offline-sync/internal/catalog/dto"
	"github.com/fekuna/omnipos-offline-sync/internal/httpx"
	"github.com/fekuna/omnipos-offline-sync/internal/logger"
	"github.com/fekuna/omnipos-offline-sync/internal/stock"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type ProductHandler struct {
	uc     catalog.UseCase
	logger logger.ZapLogger
}

func NewProductHandler(uc catalog.UseCase, log logger.ZapLogger) *ProductHandler {
	return &ProductHandler{uc: uc, logger: log}
}

func (h *ProductHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/products", func(r chi.Router) {
		r.Post("/", h.createProduct)
		r.Get("/", h.listProducts)
		r.Get("/code/{code}", h.getProductByCode)
		r.Get("/{id}", h.getProduct)
		r.Put("/{id}", h.updateProduct)
		r.Delete("/{id}", h.deactivateProduct)
	})
}

type CreateProductRequest struct {
	Code         string           `json:"code"`
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	Category     string           `json:"category"`
	Price        decimal.Decimal  `json:"price"`
	Cost         decimal.Decimal  `json:"cost"`
	TaxRate      *decimal.Decimal `json:"tax_rate"`
	MinQuantity  *int64           `json:"min_quantity"`
	InitialStock json.Number      `json:"initial_stock"`
}

type UpdateProductRequest struct {
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Cost        decimal.Decimal `json:"cost"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	MinQuantity int64           `json:"min_quantity"`
	IsActive    *bool           `json:"is_active"`
	Quantity    json.Number     `json:"quantity"`
}

func (h *ProductHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "invalid json: "+err.Error())
		return
	}

	var initial int64
	if req.InitialStock != "" {
		n, err := stock.ParseAmount(req.InitialStock.String())
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		initial = n
	}

	p, err := h.uc.CreateProduct(r.Context(), &dto.CreateProductInput{
		Code:         req.Code,
		Name:         req.Name,
		Description:  req.Description,
		Category:     req.Category,
		Price:        req.Price,
		Cost:         req.Cost,
		TaxRate:      req.TaxRate,
		MinQuantity:  req.MinQuantity,
		InitialStock: initial,
		Actor:        auth.GetActor(r.Context()),
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, p)
}

func (h *ProductHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := &dto.ProductFilters{
		SearchQuery: q.Get("search"),
		SortBy:      q.Get("sort_by"),
		SortOrder:   q.Get("sort_order"),
	}

	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.BadRequest(w, "active must be a boolean")
			return
		}
		filters.IsActive = &active
	}

	var err error
	if filters.Page, err = httpx.IntParam(q.Get("page"), 1); err != nil {
		httpx.BadRequest(w, "page "+err.Error())
		return
	}
	if filters.PageSize, err = httpx.IntParam(q.Get("page_size"), 20); err != nil {
		httpx.BadRequest(w, "page_size "+err.Error())
		return
	}

	products, total, err := h.uc.ListProducts(r.Context(), filters)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.Page{
		Items:    products,
		Total:    total,
		Page:     filters.Page,
		PageSize: filters.PageSize,
	})
}

func (h *ProductHandler) getProduct(w http.ResponseWriter, r *http.Request) {
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

func (h *ProductHandler) getProductByCode(w http.ResponseWriter, r *http.Request) {
	p, err := h.uc.GetProductByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *ProductHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(chi.URLParam(r, "id"))
	if err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}

	var req UpdateProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "invalid json: "+err.Error())
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	var target *int64
	if req.Quantity != "" {
		n, err := stock.ParseAmount(req.Quantity.String())
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		target = &n
	}

	p, err := h.uc.UpdateProduct(r.Context(), &dto.UpdateProductInput{
		ID:          id,
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		Cost:        req.Cost,
		TaxRate:     req.TaxRate,
		MinQuantity: req.MinQuantity,
		IsActive:    active,
		Quantity:    target,
		Actor:       auth.GetActor(r.Context()),
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *ProductHandler) deactivateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(chi.URLParam(r, "id"))
	if err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	p, err := h.uc.DeactivateProduct(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}
