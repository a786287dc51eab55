package store

import (
	"context"
	"encoding/json"

	"shopcheckout/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

func (s *Store) CreateItem(ctx context.Context, item *models.Item) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO items (item_id, name, description, amount, is_public)
		VALUES ($1,$2,$3,$4,$5)
	`,
		item.ItemID,
		item.Name,
		item.Desc,
		item.Amount,
		item.IsPublic,
	)
	return err
}

func (s *Store) GetItem(ctx context.Context, itemID string) (*models.Item, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT item_id, name, description, amount, is_public, created_at, updated_at
		FROM items WHERE item_id=$1
	`, itemID)

	var item models.Item
	err := row.Scan(
		&item.ItemID,
		&item.Name,
		&item.Desc,
		&item.Amount,
		&item.IsPublic,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListPublicItems(ctx context.Context) ([]*models.Item, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT item_id, name, description, amount, is_public, created_at, updated_at
		FROM items
		WHERE is_public
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		var item models.Item
		if err := rows.Scan(
			&item.ItemID,
			&item.Name,
			&item.Desc,
			&item.Amount,
			&item.IsPublic,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	meta, err := metaToJSON(order.Meta)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO orders (
			order_id, user_id, item_id, merchant_ref, gateway_ref,
			name, amount, status, meta
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		order.OrderID,
		order.UserID,
		order.ItemID,
		order.MerchantRef,
		order.GatewayRef,
		order.Name,
		order.Amount,
		order.Status,
		meta,
	)
	return err
}

const orderColumns = `order_id, user_id, item_id, merchant_ref, gateway_ref,
	name, amount, status, meta, created_at, updated_at`

func (s *Store) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id=$1`, orderID)
	return scanOrder(row)
}

func (s *Store) GetOrderByMerchantRef(ctx context.Context, merchantRef string) (*models.Order, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE merchant_ref=$1`, merchantRef)
	return scanOrder(row)
}

func (s *Store) ListOrdersByStatus(ctx context.Context, status models.OrderStatus) ([]*models.Order, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status=$1
		ORDER BY created_at DESC
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// ClaimForPayment attaches a gateway reference to an order that is still
// awaiting payment. The status guard serializes double-submitted pay attempts
// at the storage layer: the second claim sees zero rows affected.
func (s *Store) ClaimForPayment(ctx context.Context, orderID, gatewayRef string) (bool, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE orders
		SET gateway_ref=$2, updated_at=now()
		WHERE order_id=$1 AND status='ready'
	`, orderID, gatewayRef)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// UpdateOrderReconciled persists the outcome of a reconciliation. merchant_ref
// is deliberately absent from the SET list; it is immutable after creation.
// Unconditional by order id: the last successful refresh wins.
func (s *Store) UpdateOrderReconciled(ctx context.Context, order *models.Order) error {
	meta, err := metaToJSON(order.Meta)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
		UPDATE orders
		SET gateway_ref=$2, status=$3, meta=$4, updated_at=now()
		WHERE order_id=$1
	`, order.OrderID, order.GatewayRef, order.Status, meta)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var order models.Order
	var meta []byte

	err := row.Scan(
		&order.OrderID,
		&order.UserID,
		&order.ItemID,
		&order.MerchantRef,
		&order.GatewayRef,
		&order.Name,
		&order.Amount,
		&order.Status,
		&meta,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.Meta, err = metaFromJSON(meta)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// metaToJSON prefers the raw gateway body when one was captured so the stored
// column stays a byte-faithful audit record of what the gateway said.
func metaToJSON(m *models.PaymentMeta) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	if len(m.Raw) > 0 {
		return m.Raw, nil
	}
	return json.Marshal(m)
}

func metaFromJSON(data []byte) (*models.PaymentMeta, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m models.PaymentMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	m.Raw = append(json.RawMessage(nil), data...)
	return &m, nil
}
