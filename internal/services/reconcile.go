package services

import (
	"context"
	"errors"
	"fmt"

	"shopcheckout/internal/gateway"
	"shopcheckout/internal/metrics"
	"shopcheckout/internal/models"

	"go.uber.org/zap"
)

var (
	// ErrIntegrityMismatch means the gateway echoed a merchant reference that
	// is not this order's. That indicates a forged or misrouted gateway
	// reference; the operation aborts and nothing is persisted.
	ErrIntegrityMismatch = errors.New("merchant reference mismatch")

	ErrOrderNotReady     = errors.New("order is not awaiting payment")
	ErrNoGatewayPayment  = errors.New("order has no gateway payment")
	ErrMissingGatewayRef = errors.New("missing gateway reference")
)

// Gateway is the payment-gateway surface reconciliation needs. *gateway.Client
// satisfies it.
type Gateway interface {
	FindByReference(ctx context.Context, ref string) (*models.PaymentMeta, error)
	Cancel(ctx context.Context, reason, ref string) (*models.PaymentMeta, error)
}

// ReconcileService bridges local order state and the gateway's view of a
// payment. The gateway is the source of truth for payment status; the store
// is the source of truth for the order and its merchant reference.
type ReconcileService struct {
	Store   Store
	Gateway Gateway
	Logger  *zap.Logger
}

// Refresh loads the gateway's record for the order's payment into order.Meta.
// An order that never started payment collection is left untouched. When
// override is non-nil it is used instead of querying the gateway, for callers
// that already hold a fresh response. The order is persisted only when commit
// is set; otherwise only the in-memory order changes.
func (s *ReconcileService) Refresh(ctx context.Context, order *models.Order, override *models.PaymentMeta, commit bool) error {
	if order.GatewayRef == "" {
		return nil
	}

	meta := override
	if meta == nil {
		var err error
		meta, err = s.Gateway.FindByReference(ctx, order.GatewayRef)
		if err != nil {
			return err
		}
	}

	if meta.MerchantRef != order.MerchantRef {
		return fmt.Errorf("%w: order %s expects %s, gateway echoed %s",
			ErrIntegrityMismatch, order.OrderID, order.MerchantRef, meta.MerchantRef)
	}

	order.Meta = meta
	if commit {
		return s.Store.UpdateOrderReconciled(ctx, order)
	}
	return nil
}

// ConfirmPayment runs the pay flow: bind the client-supplied gateway reference
// to the order, mark it paid, and reconcile against the gateway's record.
//
// Status is set to paid before the gateway record is validated; an amount
// mismatch therefore still commits as paid, and Order.PaidConfirmed is the
// check downstream consumers must use before treating the payment as settled.
// A record whose failed_at is set commits as failed instead.
func (s *ReconcileService) ConfirmPayment(ctx context.Context, order *models.Order, gatewayRef string) error {
	if gatewayRef == "" {
		metrics.RecordReconciliation("confirm", "rejected")
		return ErrMissingGatewayRef
	}

	claimed, err := s.Store.ClaimForPayment(ctx, order.OrderID, gatewayRef)
	if err != nil {
		return err
	}
	if !claimed {
		metrics.RecordReconciliation("confirm", "not_ready")
		return ErrOrderNotReady
	}
	order.GatewayRef = gatewayRef
	order.Status = models.OrderPaid

	if err := s.Refresh(ctx, order, nil, false); err != nil {
		// Nothing is persisted past the claim: the stored order keeps
		// status ready and carries no meta.
		metrics.RecordReconciliation("confirm", outcomeForError(err))
		order.Status = models.OrderReady
		return err
	}

	if order.Meta.FailedAt != nil {
		order.Status = models.OrderFailed
	}

	if err := s.Store.UpdateOrderReconciled(ctx, order); err != nil {
		return err
	}

	switch {
	case order.Status == models.OrderFailed:
		metrics.RecordReconciliation("confirm", "failed")
	case order.PaidConfirmed():
		metrics.RecordReconciliation("confirm", "confirmed")
	default:
		s.Logger.Warn("paid amount does not match order snapshot",
			zap.String("order_id", order.OrderID),
			zap.Int64("expected", order.Amount),
			zap.Int64("gateway", order.Meta.Amount),
		)
		metrics.RecordReconciliation("confirm", "unconfirmed")
	}
	return nil
}

// CancelPayment runs the cancel flow. When the gateway refuses the cancel at
// the response level (already cancelled, not cancellable) the refusal is not
// an error for the caller: the flow falls back to a plain refresh so the local
// record converges to whatever the gateway's state actually is, which makes
// cancel retries idempotent. The order is always persisted at the end of
// either path; only integrity, not-found, and transport failures abort.
func (s *ReconcileService) CancelPayment(ctx context.Context, order *models.Order, reason string) error {
	if order.GatewayRef == "" {
		metrics.RecordReconciliation("cancel", "rejected")
		return ErrNoGatewayPayment
	}

	meta, err := s.Gateway.Cancel(ctx, reason, order.GatewayRef)
	if err != nil {
		var respErr *gateway.ResponseError
		if !errors.As(err, &respErr) {
			metrics.RecordReconciliation("cancel", outcomeForError(err))
			return err
		}

		s.Logger.Info("gateway refused cancel, reconciling to gateway state",
			zap.String("order_id", order.OrderID),
			zap.Int("code", respErr.Code),
			zap.String("message", respErr.Message),
		)
		meta = nil
	}

	if meta != nil && meta.MerchantRef != order.MerchantRef {
		metrics.RecordReconciliation("cancel", "integrity_mismatch")
		return fmt.Errorf("%w: order %s expects %s, gateway echoed %s",
			ErrIntegrityMismatch, order.OrderID, order.MerchantRef, meta.MerchantRef)
	}

	if err := s.Refresh(ctx, order, meta, false); err != nil {
		metrics.RecordReconciliation("cancel", outcomeForError(err))
		return err
	}

	order.Status = models.StatusFromMeta(order.Meta, order.Status)
	if err := s.Store.UpdateOrderReconciled(ctx, order); err != nil {
		return err
	}
	metrics.RecordReconciliation("cancel", string(order.Status))
	return nil
}

type BulkAction string

const (
	BulkRefresh BulkAction = "refresh"
	BulkCancel  BulkAction = "cancel"
)

// BulkReconcile reconciles each order independently: an error on one order is
// logged and does not block the rest. Cancel skips orders that are not paid.
// Returns how many orders were processed and how many were skipped.
func (s *ReconcileService) BulkReconcile(ctx context.Context, orderIDs []string, action BulkAction, reason string) (processed, skipped int, err error) {
	if action != BulkRefresh && action != BulkCancel {
		return 0, 0, fmt.Errorf("unknown bulk action %q", action)
	}

	for _, orderID := range orderIDs {
		order, err := s.Store.GetOrder(ctx, orderID)
		if err != nil {
			s.Logger.Warn("bulk reconcile: order load failed",
				zap.String("order_id", orderID), zap.Error(err))
			skipped++
			continue
		}

		switch action {
		case BulkRefresh:
			err = s.Refresh(ctx, order, nil, true)
		case BulkCancel:
			if !order.IsPaid() {
				skipped++
				continue
			}
			err = s.CancelPayment(ctx, order, reason)
		}
		if err != nil {
			s.Logger.Warn("bulk reconcile: operation failed",
				zap.String("order_id", orderID),
				zap.String("action", string(action)),
				zap.Error(err))
			continue
		}
		processed++
	}
	return processed, skipped, nil
}

func outcomeForError(err error) string {
	switch {
	case errors.Is(err, ErrIntegrityMismatch):
		return "integrity_mismatch"
	case errors.Is(err, gateway.ErrNotFound):
		return "not_found"
	default:
		return "transport_error"
	}
}
