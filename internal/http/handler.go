package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"shopcheckout/internal/gateway"
	"shopcheckout/internal/models"
	"shopcheckout/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Shown for pay-flow failures instead of gateway internals.
const confirmFailedMessage = "payment could not be confirmed, please contact support with your order reference"

type Handler struct {
	Orders    *services.OrderService
	Reconcile *services.ReconcileService
	Logger    *zap.Logger
}

func NewHandler(orders *services.OrderService, reconcile *services.ReconcileService, logger *zap.Logger) *Handler {
	return &Handler{Orders: orders, Reconcile: reconcile, Logger: logger}
}

type itemRequest struct {
	Name     string `json:"name"`
	Desc     string `json:"desc"`
	Amount   int64  `json:"amount"`
	IsPublic bool   `json:"isPublic"`
}

type itemResponse struct {
	ItemID   string `json:"itemId"`
	Name     string `json:"name"`
	Desc     string `json:"desc,omitempty"`
	Amount   int64  `json:"amount"`
	IsPublic bool   `json:"isPublic"`
}

func toItemResponse(item *models.Item) itemResponse {
	return itemResponse{
		ItemID:   item.ItemID,
		Name:     item.Name,
		Desc:     item.Desc,
		Amount:   item.Amount,
		IsPublic: item.IsPublic,
	}
}

func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	item := &models.Item{
		Name:     req.Name,
		Desc:     req.Desc,
		Amount:   req.Amount,
		IsPublic: req.IsPublic,
	}
	if err := h.Orders.CreateItem(r.Context(), item); err != nil {
		switch {
		case errors.Is(err, services.ErrMissingName):
			writeError(w, http.StatusBadRequest, "missing item name")
		case errors.Is(err, services.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "amount must be non-negative")
		default:
			h.Logger.Error("create item failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "create item failed")
		}
		return
	}
	writeJSON(w, http.StatusCreated, toItemResponse(item))
}

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Orders.ListItems(r.Context())
	if err != nil {
		h.Logger.Error("list items failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list items failed")
		return
	}
	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toItemResponse(item))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemId")
	item, err := h.Orders.GetItem(r.Context(), itemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "item not found")
			return
		}
		h.Logger.Error("get item failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get item failed")
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(item))
}

type createOrderRequest struct {
	ItemID string `json:"itemId"`
}

type orderResponse struct {
	OrderID       string `json:"orderId"`
	ItemID        string `json:"itemId"`
	MerchantRef   string `json:"merchantReference"`
	GatewayRef    string `json:"gatewayReference,omitempty"`
	Name          string `json:"name"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
	PaidConfirmed bool   `json:"paidConfirmed"`
	ReceiptURL    string `json:"receiptUrl,omitempty"`
	CancelReason  string `json:"cancelReason,omitempty"`
	FailReason    string `json:"failReason,omitempty"`
	PaidAt        string `json:"paidAt,omitempty"`
	CancelledAt   string `json:"cancelledAt,omitempty"`
	FailedAt      string `json:"failedAt,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
}

func toOrderResponse(order *models.Order) orderResponse {
	resp := orderResponse{
		OrderID:       order.OrderID,
		ItemID:        order.ItemID,
		MerchantRef:   order.MerchantRef,
		GatewayRef:    order.GatewayRef,
		Name:          order.Name,
		Amount:        order.Amount,
		Status:        string(order.Status),
		PaidConfirmed: order.PaidConfirmed(),
		CancelReason:  order.CancelReason(),
		FailReason:    order.FailReason(),
	}
	// Receipts for unconfirmed payments are withheld.
	if order.PaidConfirmed() {
		resp.ReceiptURL = order.ReceiptURL()
	}
	if t := order.PaidAt(); t != nil {
		resp.PaidAt = t.Format(time.RFC3339)
	}
	if t := order.CancelledAt(); t != nil {
		resp.CancelledAt = t.Format(time.RFC3339)
	}
	if t := order.FailedAt(); t != nil {
		resp.FailedAt = t.Format(time.RFC3339)
	}
	if !order.CreatedAt.IsZero() {
		resp.CreatedAt = order.CreatedAt.Format(time.RFC3339)
	}
	return resp
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	userID := r.Header.Get("X-User-Id")
	order, err := h.Orders.CreateOrder(r.Context(), userID, req.ItemID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMissingUserID):
			writeError(w, http.StatusUnauthorized, "missing user id")
		case errors.Is(err, pgx.ErrNoRows):
			writeError(w, http.StatusNotFound, "item not found")
		default:
			h.Logger.Error("create order failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "create order failed")
		}
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadOrder(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

type confirmRequest struct {
	GatewayReference string `json:"gatewayReference"`
}

func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	order, ok := h.loadOrder(w, r)
	if !ok {
		return
	}

	if err := h.Reconcile.ConfirmPayment(r.Context(), order, req.GatewayReference); err != nil {
		switch {
		case errors.Is(err, services.ErrMissingGatewayRef):
			writeError(w, http.StatusBadRequest, "missing gateway reference")
		case errors.Is(err, services.ErrOrderNotReady):
			writeError(w, http.StatusConflict, "order is not awaiting payment")
		case errors.Is(err, gateway.ErrNotFound):
			writeError(w, http.StatusNotFound, confirmFailedMessage)
		case errors.Is(err, services.ErrIntegrityMismatch):
			h.Logger.Error("payment integrity mismatch",
				zap.String("order_id", order.OrderID), zap.Error(err))
			writeError(w, http.StatusConflict, confirmFailedMessage)
		default:
			h.Logger.Error("confirm payment failed",
				zap.String("order_id", order.OrderID), zap.Error(err))
			writeError(w, http.StatusBadGateway, confirmFailedMessage)
		}
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	order, ok := h.loadOrder(w, r)
	if !ok {
		return
	}

	if err := h.Reconcile.CancelPayment(r.Context(), order, req.Reason); err != nil {
		switch {
		case errors.Is(err, services.ErrNoGatewayPayment):
			writeError(w, http.StatusBadRequest, "order has no gateway payment")
		case errors.Is(err, gateway.ErrNotFound):
			writeError(w, http.StatusNotFound, "payment not found at gateway")
		case errors.Is(err, services.ErrIntegrityMismatch):
			h.Logger.Error("payment integrity mismatch",
				zap.String("order_id", order.OrderID), zap.Error(err))
			writeError(w, http.StatusConflict, "payment record mismatch, please contact support")
		default:
			h.Logger.Error("cancel payment failed",
				zap.String("order_id", order.OrderID), zap.Error(err))
			writeError(w, http.StatusBadGateway, "cancel failed, please retry")
		}
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	status := models.OrderStatus(r.URL.Query().Get("status"))
	if !models.ValidStatus(status) {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	orders, err := h.Orders.ListOrdersByStatus(r.Context(), status)
	if err != nil {
		h.Logger.Error("list orders failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list orders failed")
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, toOrderResponse(order))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetOrderByMerchantRef(w http.ResponseWriter, r *http.Request) {
	merchantRef := chi.URLParam(r, "merchantRef")
	order, err := h.Orders.GetOrderByMerchantRef(r.Context(), merchantRef)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.Logger.Error("get order by merchant ref failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get order failed")
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

type bulkReconcileRequest struct {
	OrderIDs []string `json:"orderIds"`
	Action   string   `json:"action"`
	Reason   string   `json:"reason"`
}

type bulkReconcileResponse struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
}

func (h *Handler) BulkReconcile(w http.ResponseWriter, r *http.Request) {
	var req bulkReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if len(req.OrderIDs) == 0 {
		writeError(w, http.StatusBadRequest, "no order ids")
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "cancelled by operator"
	}

	processed, skipped, err := h.Reconcile.BulkReconcile(r.Context(), req.OrderIDs, services.BulkAction(req.Action), reason)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}
	writeJSON(w, http.StatusOK, bulkReconcileResponse{Processed: processed, Skipped: skipped})
}

func (h *Handler) loadOrder(w http.ResponseWriter, r *http.Request) (*models.Order, bool) {
	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return nil, false
	}

	order, err := h.Orders.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "order not found")
			return nil, false
		}
		h.Logger.Error("get order failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get order failed")
		return nil, false
	}
	return order, true
}
