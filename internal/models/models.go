package models

import (
	"encoding/json"
	"time"
)

type OrderStatus string

const (
	OrderReady     OrderStatus = "ready"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
	OrderFailed    OrderStatus = "failed"
)

func ValidStatus(s OrderStatus) bool {
	switch s {
	case OrderReady, OrderPaid, OrderCancelled, OrderFailed:
		return true
	}
	return false
}

// TerminalStatus reports whether no further transition can leave this status.
// paid is semi-terminal: it still exits through the cancel flow.
func TerminalStatus(s OrderStatus) bool {
	return s == OrderCancelled || s == OrderFailed
}

type Item struct {
	ItemID    string
	Name      string
	Desc      string
	Amount    int64
	IsPublic  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentMeta is the gateway's record of a payment attempt, stored verbatim on
// the order after every reconciliation. The named fields are the ones the
// reconciliation logic reads; Raw keeps the full gateway body for audit and
// for keys this struct does not name.
type PaymentMeta struct {
	MerchantRef  string `json:"merchant_reference"`
	Amount       int64  `json:"amount"`
	Status       string `json:"status,omitempty"`
	PaidAt       *int64 `json:"paid_at,omitempty"`
	CancelledAt  *int64 `json:"cancelled_at,omitempty"`
	FailedAt     *int64 `json:"failed_at,omitempty"`
	ReceiptURL   string `json:"receipt_url,omitempty"`
	CancelReason string `json:"cancel_reason,omitempty"`
	FailReason   string `json:"fail_reason,omitempty"`

	Raw json.RawMessage `json:"-"`
}

type Order struct {
	OrderID     string
	UserID      string
	ItemID      string
	MerchantRef string
	GatewayRef  string
	Name        string
	Amount      int64
	Status      OrderStatus
	Meta        *PaymentMeta
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (o *Order) IsReady() bool     { return o.Status == OrderReady }
func (o *Order) IsPaid() bool      { return o.Status == OrderPaid }
func (o *Order) IsCancelled() bool { return o.Status == OrderCancelled }
func (o *Order) IsFailed() bool    { return o.Status == OrderFailed }

// PaidConfirmed reports whether the payment is actually settled: the order is
// marked paid and the amount the gateway collected equals the amount
// snapshotted at checkout. The pay flow sets status optimistically, so status
// alone must never be used as proof of a correct payment.
func (o *Order) PaidConfirmed() bool {
	return o.Status == OrderPaid && o.Meta != nil && o.Amount == o.Meta.Amount
}

func (o *Order) ReceiptURL() string {
	if o.Meta == nil {
		return ""
	}
	return o.Meta.ReceiptURL
}

func (o *Order) CancelReason() string {
	if o.Meta == nil {
		return ""
	}
	return o.Meta.CancelReason
}

func (o *Order) FailReason() string {
	if o.Meta == nil {
		return ""
	}
	return o.Meta.FailReason
}

func (o *Order) PaidAt() *time.Time {
	if o.Meta == nil {
		return nil
	}
	return epochTime(o.Meta.PaidAt)
}

func (o *Order) CancelledAt() *time.Time {
	if o.Meta == nil {
		return nil
	}
	return epochTime(o.Meta.CancelledAt)
}

func (o *Order) FailedAt() *time.Time {
	if o.Meta == nil {
		return nil
	}
	return epochTime(o.Meta.FailedAt)
}

// StatusFromMeta derives the order status the gateway's record implies. The
// cancel flow uses it to converge the local row to the gateway's authoritative
// state; it falls back to current when the record decides nothing.
func StatusFromMeta(meta *PaymentMeta, current OrderStatus) OrderStatus {
	if meta == nil {
		return current
	}
	switch {
	case meta.CancelledAt != nil:
		return OrderCancelled
	case meta.FailedAt != nil:
		return OrderFailed
	case meta.PaidAt != nil:
		return OrderPaid
	}
	return current
}

func epochTime(ts *int64) *time.Time {
	if ts == nil {
		return nil
	}
	t := time.Unix(*ts, 0).UTC()
	return &t
}
