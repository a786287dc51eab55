package http

import (
	"net/http"
	"time"

	"shopcheckout/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser origin checks are the storefront's concern; the API is
	// served behind the same CORS policy as the REST routes.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const statusPollInterval = 2 * time.Second

type statusEvent struct {
	OrderID       string `json:"orderId"`
	Status        string `json:"status"`
	PaidConfirmed bool   `json:"paidConfirmed"`
}

// OrderStatusFeed streams order status snapshots over a websocket while the
// shopper's payment is being collected and reconciled. A snapshot is pushed
// immediately, then on every status change; the feed closes once the order
// leaves ready, since any later change (paid -> cancelled) is operator-driven.
func (h *Handler) OrderStatusFeed(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	order, err := h.Orders.GetOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	last := models.OrderStatus("")
	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	for {
		if order.Status != last {
			last = order.Status
			ev := statusEvent{
				OrderID:       order.OrderID,
				Status:        string(order.Status),
				PaidConfirmed: order.PaidConfirmed(),
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
			if order.Status != models.OrderReady {
				return
			}
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		order, err = h.Orders.GetOrder(r.Context(), orderID)
		if err != nil {
			h.Logger.Warn("status feed poll failed",
				zap.String("order_id", orderID), zap.Error(err))
			return
		}
	}
}
