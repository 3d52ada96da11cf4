package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-core.git/internal/coupon"
	"github.com/ariefcatur/go-order-core.git/internal/locker"
	"github.com/ariefcatur/go-order-core.git/internal/orders"
	"github.com/ariefcatur/go-order-core.git/internal/redisx"
	"github.com/ariefcatur/go-order-core.git/internal/saga"
	"github.com/ariefcatur/go-order-core.git/internal/stock"
)

// Saga is the order workflow behind the API.
type Saga interface {
	CreateOrder(ctx context.Context, in saga.CreateOrderInput) (orders.Order, error)
	PayOrder(ctx context.Context, orderID, paymentMethod string) (orders.Order, error)
	CancelOrder(ctx context.Context, orderID, reason string) error
	IssueCoupon(ctx context.Context, couponID, userID string) (coupon.UserCoupon, error)
}

type OrderReader interface {
	Get(ctx context.Context, orderID string) (orders.Order, error)
	ItemsByOrder(ctx context.Context, orderID string) ([]orders.OrderItem, error)
}

type StockReader interface {
	Item(ctx context.Context, itemID string) (stock.Item, error)
	Available(ctx context.Context, itemID string) (int, error)
}

type OrdersHandler struct {
	Saga   Saga
	Orders OrderReader
	Stock  StockReader
	Redis  *redis.Client
	Log    *zap.Logger
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/pay", h.payOrder)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Get("/items/{id}", h.getItem)
	r.Post("/coupons/{id}/issue", h.issueCoupon)
}

type CreateOrderReq struct {
	UserID   string        `json:"user_id"`
	Items    []ItemLineReq `json:"items"`
	CouponID *string       `json:"coupon_id,omitempty"`
}

type ItemLineReq struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type OrderResp struct {
	OrderID        string         `json:"order_id"`
	OrderNumber    string         `json:"order_number"`
	UserID         string         `json:"user_id"`
	Status         string         `json:"status"`
	TotalAmount    string         `json:"total_amount"`
	DiscountAmount string         `json:"discount_amount"`
	FinalAmount    string         `json:"final_amount"`
	ExpiresAt      time.Time      `json:"expires_at"`
	Items          []ItemLineResp `json:"items,omitempty"`
}

type ItemLineResp struct {
	ItemID    string `json:"item_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Status    string `json:"status"`
}

type PayOrderReq struct {
	PaymentMethod string `json:"payment_method"`
}

type CancelOrderReq struct {
	Reason string `json:"reason"`
}

type IssueCouponReq struct {
	UserID string `json:"user_id"`
}

type UserCouponResp struct {
	UserCouponID string `json:"user_coupon_id"`
	CouponID     string `json:"coupon_id"`
	UserID       string `json:"user_id"`
	Status       string `json:"status"`
}

type ItemResp struct {
	ItemID    string `json:"item_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Available int    `json:"available"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), map[string]string{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, stock.ErrItemNotFound),
		errors.Is(err, coupon.ErrCouponNotFound),
		errors.Is(err, coupon.ErrUserCouponNotFound):
		return http.StatusNotFound
	case errors.Is(err, stock.ErrInsufficientStock),
		errors.Is(err, coupon.ErrQuotaExceeded),
		errors.Is(err, coupon.ErrAlreadyIssued),
		errors.Is(err, coupon.ErrAlreadyUsed),
		errors.Is(err, orders.ErrAlreadyPaid),
		errors.Is(err, orders.ErrTerminalState):
		return http.StatusConflict
	case errors.Is(err, stock.ErrInvalidQuantity),
		errors.Is(err, coupon.ErrMinOrderNotMet),
		errors.Is(err, coupon.ErrNotInValidityWindow),
		errors.Is(err, saga.ErrNoItems):
		return http.StatusBadRequest
	case errors.Is(err, locker.ErrLockTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func toOrderResp(o orders.Order, items []orders.OrderItem) OrderResp {
	resp := OrderResp{
		OrderID:        o.ID,
		OrderNumber:    o.OrderNumber,
		UserID:         o.UserID,
		Status:         string(o.Status),
		TotalAmount:    o.TotalAmount.String(),
		DiscountAmount: o.DiscountAmount.String(),
		FinalAmount:    o.FinalAmount.String(),
		ExpiresAt:      o.ExpiresAt,
	}
	for _, it := range items {
		resp.Items = append(resp.Items, ItemLineResp{
			ItemID:    it.ItemID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.String(),
			Status:    string(it.Status),
		})
	}
	return resp
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.UserID == "" || len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	in := saga.CreateOrderInput{UserID: req.UserID, CouponID: req.CouponID}
	for _, it := range req.Items {
		in.Items = append(in.Items, saga.ItemRequest{ItemID: it.ItemID, Quantity: it.Quantity})
	}

	ord, err := h.Saga.CreateOrder(ctx, in)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cacheStatus(ctx, ord)
	writeJSON(w, http.StatusCreated, toOrderResp(ord, nil))
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ord, err := h.Orders.Get(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	items, err := h.Orders.ItemsByOrder(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(ord, items))
}

func (h *OrdersHandler) payOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	var req PayOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "UNKNOWN"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	ord, err := h.Saga.PayOrder(ctx, orderID, req.PaymentMethod)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cacheStatus(ctx, ord)
	writeJSON(w, http.StatusOK, toOrderResp(ord, nil))
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	var req CancelOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Reason == "" {
		req.Reason = "cancelled by user"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.Saga.CancelOrder(ctx, orderID, req.Reason); err != nil {
		writeError(w, err)
		return
	}

	ord, err := h.Orders.Get(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, ord)
	writeJSON(w, http.StatusOK, toOrderResp(ord, nil))
}

func (h *OrdersHandler) getItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	item, err := h.Stock.Item(ctx, itemID)
	if err != nil {
		writeError(w, err)
		return
	}
	available, err := h.Stock.Available(ctx, itemID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ItemResp{
		ItemID:    item.ID,
		SKU:       item.SKU,
		Name:      item.Name,
		UnitPrice: item.UnitPrice.String(),
		Available: available,
	})
}

func (h *OrdersHandler) issueCoupon(w http.ResponseWriter, r *http.Request) {
	couponID := chi.URLParam(r, "id")

	var req IssueCouponReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	uc, err := h.Saga.IssueCoupon(ctx, couponID, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, UserCouponResp{
		UserCouponID: uc.ID,
		CouponID:     uc.CouponID,
		UserID:       uc.UserID,
		Status:       string(uc.Status),
	})
}

// cacheStatus is a best-effort read-side shortcut; the database stays the
// source of truth.
func (h *OrdersHandler) cacheStatus(ctx context.Context, o orders.Order) {
	if h.Redis == nil {
		return
	}
	body, err := json.Marshal(map[string]string{"status": string(o.Status)})
	if err != nil {
		return
	}
	if err := h.Redis.Set(ctx, redisx.OrderStatusKey(o.ID), body, redisx.TTLStatusCache).Err(); err != nil {
		h.Log.Warn("status cache set failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}
