package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Order is a placed order. Kind is KindFull or KindQuick.
type Order struct {
	ID            int64     `db:"id"`
	UserID        int64     `db:"user_id"`
	Kind          string    `db:"kind"`
	CustomerName  string    `db:"customer_name"`
	Username      string    `db:"username"`
	Phone         string    `db:"phone"`
	City          string    `db:"city"`
	DeliveryPoint string    `db:"delivery_point"`
	ContactMethod string    `db:"contact_method"`
	Total         float64   `db:"total"`
	Status        string    `db:"status"`
	CreatedAt     time.Time `db:"created_at"`
}

// OrderLine snapshots a product at order time.
type OrderLine struct {
	ID          int64   `db:"id"`
	OrderID     int64   `db:"order_id"`
	ItemID      int64   `db:"item_id"`
	ProductName string  `db:"product_name"`
	Quantity    float64 `db:"quantity"`
	Unit        string  `db:"unit"`
	UnitPrice   float64 `db:"unit_price"`
}

// OrderSummary is a row of the "my orders" list.
type OrderSummary struct {
	ID        int64     `db:"id"`
	Kind      string    `db:"kind"`
	Total     float64   `db:"total"`
	Status    string    `db:"status"`
	LineCount int64     `db:"line_count"`
	CreatedAt time.Time `db:"created_at"`
}

// Tx is the subset of store operations available inside InTx.
type Tx interface {
	CartLines(ctx context.Context, userID int64) ([]CartLine, error)
	InsertOrder(ctx context.Context, o Order) (int64, error)
	InsertOrderLine(ctx context.Context, l OrderLine) error
	ClearCart(ctx context.Context, userID int64) (int64, error)
}

type txStore struct {
	tx *sqlx.Tx
}

func (t *txStore) CartLines(ctx context.Context, userID int64) ([]CartLine, error) {
	return cartLines(ctx, t.tx, userID)
}

func (t *txStore) ClearCart(ctx context.Context, userID int64) (int64, error) {
	return clearCart(ctx, t.tx, userID)
}

func (t *txStore) InsertOrder(ctx context.Context, o Order) (int64, error) {
	const q = `INSERT INTO orders (user_id, kind, customer_name, username, phone, city, delivery_point, contact_method, total)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`
	var id int64
	err := t.tx.QueryRowxContext(ctx, t.tx.Rebind(q),
		o.UserID, o.Kind, o.CustomerName, o.Username, o.Phone, o.City, o.DeliveryPoint, o.ContactMethod, o.Total,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: insert order: %w", err)
	}
	return id, nil
}

func (t *txStore) InsertOrderLine(ctx context.Context, l OrderLine) error {
	const q = `INSERT INTO order_lines (order_id, item_id, product_name, quantity, unit, unit_price)
VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := t.tx.ExecContext(ctx, t.tx.Rebind(q),
		l.OrderID, l.ItemID, l.ProductName, l.Quantity, l.Unit, l.UnitPrice,
	); err != nil {
		return fmt.Errorf("store: insert order line: %w", err)
	}
	return nil
}

// Order loads a single order.
func (s *Store) Order(ctx context.Context, orderID int64) (Order, error) {
	const q = `SELECT id, user_id, kind, customer_name, username, phone, city, delivery_point,
    contact_method, total, status, created_at FROM orders WHERE id = ?`
	var o Order
	if err := s.db.GetContext(ctx, &o, s.db.Rebind(q), orderID); err != nil {
		return Order{}, fmt.Errorf("store: load order: %w", err)
	}
	return o, nil
}

// OrderLines lists the lines of an order.
func (s *Store) OrderLines(ctx context.Context, orderID int64) ([]OrderLine, error) {
	const q = `SELECT id, order_id, item_id, product_name, quantity, unit, unit_price
FROM order_lines WHERE order_id = ? ORDER BY id`
	var lines []OrderLine
	if err := s.db.SelectContext(ctx, &lines, s.db.Rebind(q), orderID); err != nil {
		return nil, fmt.Errorf("store: list order lines: %w", err)
	}
	return lines, nil
}

// RecentOrders lists up to limit of the user's orders, newest first.
func (s *Store) RecentOrders(ctx context.Context, userID int64, limit int) ([]OrderSummary, error) {
	if limit <= 0 {
		limit = 5
	}
	const q = `SELECT o.id, o.kind, o.total, o.status, o.created_at,
    (SELECT COUNT(*) FROM order_lines l WHERE l.order_id = o.id) AS line_count
FROM orders o WHERE o.user_id = ? ORDER BY o.id DESC LIMIT ?`
	var out []OrderSummary
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(q), userID, limit); err != nil {
		return nil, fmt.Errorf("store: recent orders: %w", err)
	}
	return out, nil
}
