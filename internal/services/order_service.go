package services

import (
	"context"
	"errors"

	"shopcheckout/internal/cache"
	"shopcheckout/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrMissingUserID = errors.New("missing user id")
	ErrInvalidAmount = errors.New("amount must be non-negative")
	ErrMissingName   = errors.New("missing item name")
)

// Store is the order-store surface the services need. *store.Store satisfies
// it; tests substitute an in-memory fake.
type Store interface {
	CreateItem(ctx context.Context, item *models.Item) error
	GetItem(ctx context.Context, itemID string) (*models.Item, error)
	ListPublicItems(ctx context.Context) ([]*models.Item, error)

	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	GetOrderByMerchantRef(ctx context.Context, merchantRef string) (*models.Order, error)
	ListOrdersByStatus(ctx context.Context, status models.OrderStatus) ([]*models.Order, error)
	ClaimForPayment(ctx context.Context, orderID, gatewayRef string) (bool, error)
	UpdateOrderReconciled(ctx context.Context, order *models.Order) error
}

type OrderService struct {
	Store  Store
	Items  *cache.ItemCache // optional, nil when redis is not configured
	Logger *zap.Logger
}

func (s *OrderService) CreateItem(ctx context.Context, item *models.Item) error {
	if item.Name == "" {
		return ErrMissingName
	}
	if item.Amount < 0 {
		return ErrInvalidAmount
	}
	if item.ItemID == "" {
		item.ItemID = uuid.NewString()
	}
	return s.Store.CreateItem(ctx, item)
}

func (s *OrderService) GetItem(ctx context.Context, itemID string) (*models.Item, error) {
	if s.Items != nil {
		item, err := s.Items.Get(ctx, itemID)
		if err != nil {
			s.Logger.Warn("item cache read failed", zap.String("item_id", itemID), zap.Error(err))
		} else if item != nil {
			return item, nil
		}
	}

	item, err := s.Store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if s.Items != nil {
		if err := s.Items.Set(ctx, item); err != nil {
			s.Logger.Warn("item cache write failed", zap.String("item_id", itemID), zap.Error(err))
		}
	}
	return item, nil
}

func (s *OrderService) ListItems(ctx context.Context) ([]*models.Item, error) {
	return s.Store.ListPublicItems(ctx)
}

// CreateOrder commits the shopper to purchasing an item at its current price.
// The item's name and amount are snapshotted onto the order so later catalog
// edits cannot change what this purchase was for.
func (s *OrderService) CreateOrder(ctx context.Context, userID, itemID string) (*models.Order, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}

	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		OrderID:     uuid.NewString(),
		UserID:      userID,
		ItemID:      item.ItemID,
		MerchantRef: uuid.NewString(),
		Name:        item.Name,
		Amount:      item.Amount,
		Status:      models.OrderReady,
	}

	if err := s.Store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.Store.GetOrder(ctx, orderID)
}

func (s *OrderService) GetOrderByMerchantRef(ctx context.Context, merchantRef string) (*models.Order, error) {
	return s.Store.GetOrderByMerchantRef(ctx, merchantRef)
}

func (s *OrderService) ListOrdersByStatus(ctx context.Context, status models.OrderStatus) ([]*models.Order, error) {
	return s.Store.ListOrdersByStatus(ctx, status)
}
