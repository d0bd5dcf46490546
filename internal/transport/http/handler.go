package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Chmgx81/ordina/internal/cache"
	"github.com/Chmgx81/ordina/internal/models"
	"github.com/Chmgx81/ordina/internal/service"
	"github.com/Chmgx81/ordina/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Handler struct {
	svc      service.LedgerService
	cache    cache.Cache // nil-safe: без Redis отчёты считаются каждый раз
	cacheTTL time.Duration
	log      *zap.Logger
}

func NewHandler(svc service.LedgerService, c cache.Cache, cacheTTL time.Duration, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, cache: c, cacheTTL: cacheTTL, log: log}
}

// --- products ---

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	p, err := h.svc.CreateProduct(r.Context(), service.ProductInput{
		SKU:               req.SKU,
		Name:              req.Name,
		Description:       req.Description,
		Category:          req.Category,
		Barcode:           req.Barcode,
		PriceCents:        req.PriceCents,
		InitialStock:      req.InitialStock,
		LowStockThreshold: req.LowStockThreshold,
		Actor:             req.Actor,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapProduct(p))
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.svc.GetProduct(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapProduct(p))
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, total, err := h.svc.ListProducts(r.Context(), service.ProductListFilter{
		Query:    q.Get("q"),
		Category: q.Get("category"),
		Limit:    atoiDefault(q.Get("limit"), 20),
		Offset:   atoiDefault(q.Get("offset"), 0),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ProductListResponse{Products: mapProducts(list), Total: total})
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	p, err := h.svc.UpdateProduct(r.Context(), id, service.ProductPatch{
		SKU:               req.SKU,
		Name:              req.Name,
		Description:       req.Description,
		Category:          req.Category,
		Barcode:           req.Barcode,
		PriceCents:        req.PriceCents,
		LowStockThreshold: req.LowStockThreshold,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapProduct(p))
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	deleted, err := h.svc.DeleteProduct(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "not_found", "product not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- ledger ---

func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	stock, err := h.svc.GetStock(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StockResponse{ProductID: id.String(), Stock: stock})
}

func (h *Handler) RecordMovement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req RecordMovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	m, err := h.svc.RecordMovement(r.Context(), id, service.MovementInput{
		Type:     models.MovementType(req.Type),
		Quantity: req.Quantity,
		Actor:    req.Actor,
		Note:     req.Note,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapMovement(m))
}

func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := service.MovementListFilter{Limit: atoiDefault(q.Get("limit"), 100)}

	if v := q.Get("product_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_product_id", err.Error())
			return
		}
		f.ProductID = &id
	}
	if v := q.Get("type"); v != "" {
		t := models.MovementType(v)
		if t != models.MovementIn && t != models.MovementOut {
			writeError(w, http.StatusBadRequest, "invalid_type", "type must be in or out")
			return
		}
		f.Type = &t
	}
	var ok bool
	if f.From, ok = queryTime(w, q.Get("from")); !ok {
		return
	}
	if f.To, ok = queryTime(w, q.Get("to")); !ok {
		return
	}

	list, err := h.svc.ListMovements(r.Context(), f)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]MovementResponse, 0, len(list))
	for i := range list {
		out = append(out, mapMovement(&list[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// --- orders ---

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	items := make([]service.OrderItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		pid, err := uuid.Parse(it.ProductID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_product_id", err.Error())
			return
		}
		items = append(items, service.OrderItemInput{ProductID: pid, Quantity: it.Quantity})
	}

	order, err := h.svc.PlaceOrder(r.Context(), service.PlaceOrderInput{
		CustomerName: req.CustomerName,
		Actor:        req.Actor,
		Items:        items,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapOrder(order))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	o, err := h.svc.GetOrder(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrder(o))
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := service.OrderListFilter{
		Limit:  atoiDefault(q.Get("limit"), 20),
		Offset: atoiDefault(q.Get("offset"), 0),
	}
	if v := q.Get("status"); v != "" {
		st := models.OrderStatus(v)
		f.Status = &st
	}
	var ok bool
	if f.From, ok = queryTime(w, q.Get("from")); !ok {
		return
	}
	if f.To, ok = queryTime(w, q.Get("to")); !ok {
		return
	}

	list, total, err := h.svc.ListOrders(r.Context(), f)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OrderListResponse{Orders: mapOrders(list), Total: total})
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateOrderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	o, err := h.svc.UpdateOrderStatus(r.Context(), id, models.OrderStatus(req.Status))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrder(o))
}

// --- reports ---

func (h *Handler) TopProducts(w http.ResponseWriter, r *http.Request) {
	limit := atoiDefault(r.URL.Query().Get("limit"), 10)

	cacheKey := ""
	if h.cache != nil {
		cacheKey = h.cache.Key("top-products", strconv.Itoa(limit))
		if raw, err := h.cache.Get(r.Context(), cacheKey); err == nil && raw != "" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(raw))
			return
		}
	}

	list, err := h.svc.TopSellingProducts(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]TopProductResponse, 0, len(list))
	for _, tp := range list {
		out = append(out, TopProductResponse{Product: mapProduct(&tp.Product), UnitsSold: tp.UnitsSold})
	}

	if h.cache != nil {
		if raw, err := json.Marshal(out); err == nil {
			if err := h.cache.Set(r.Context(), cacheKey, raw, h.cacheTTL); err != nil {
				h.log.Warn("cache set", zap.Error(err))
			}
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.LowStockProducts(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapProducts(list))
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.GetDashboard(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapDashboard(d))
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- helpers ---

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var insufficient *storage.InsufficientStockError
	if errors.As(err, &insufficient) {
		// отказ заказа всегда называет товар и дефицит
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:     "insufficient_stock",
			Message:   insufficient.Error(),
			ProductID: insufficient.ProductID.String(),
			Requested: insufficient.Requested,
			Available: insufficient.Available,
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrProductNotFound), errors.Is(err, service.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrEmptyOrder),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidPrice),
		errors.Is(err, service.ErrInvalidThreshold),
		errors.Is(err, service.ErrInvalidMovementType),
		errors.Is(err, service.ErrProductInvalid):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, service.ErrSKUAlreadyExists),
		errors.Is(err, service.ErrDuplicateOrder),
		errors.Is(err, service.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, service.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", err.Error())
	default:
		h.log.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return uuid.Nil, false
	}
	return id, true
}

func queryTime(w http.ResponseWriter, raw string) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_time", err.Error())
		return nil, false
	}
	return &t, true
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
