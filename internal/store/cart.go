package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// CartLine is one pending (user, item, quantity) purchase.
type CartLine struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	ItemID    int64     `db:"item_id"`
	Quantity  float64   `db:"quantity"`
	CreatedAt time.Time `db:"created_at"`
}

// AddCartLine adds qty of itemID to the user's cart, merging into an existing line.
func (s *Store) AddCartLine(ctx context.Context, userID, itemID int64, qty float64) error {
	const q = `INSERT INTO cart_lines (user_id, item_id, quantity) VALUES (?, ?, ?)
ON CONFLICT (user_id, item_id) DO UPDATE SET
    quantity = cart_lines.quantity + excluded.quantity,
    updated_at = CURRENT_TIMESTAMP`
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(q), userID, itemID, qty); err != nil {
		return fmt.Errorf("store: add cart line: %w", err)
	}
	return nil
}

// CartLines lists the user's cart in insertion order.
func (s *Store) CartLines(ctx context.Context, userID int64) ([]CartLine, error) {
	return cartLines(ctx, s.db, userID)
}

// RemoveCartLine deletes one of the user's lines. It reports whether a row was
// removed; a missing line is not an error.
func (s *Store) RemoveCartLine(ctx context.Context, userID, lineID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM cart_lines WHERE id = ? AND user_id = ?`), lineID, userID)
	if err != nil {
		return false, fmt.Errorf("store: remove cart line: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: remove cart line: %w", err)
	}
	return n > 0, nil
}

// ClearCart deletes all of the user's lines and returns how many were removed.
func (s *Store) ClearCart(ctx context.Context, userID int64) (int64, error) {
	return clearCart(ctx, s.db, userID)
}

func cartLines(ctx context.Context, q sqlx.ExtContext, userID int64) ([]CartLine, error) {
	const query = `SELECT id, user_id, item_id, quantity, created_at FROM cart_lines WHERE user_id = ? ORDER BY id`
	var lines []CartLine
	if err := sqlx.SelectContext(ctx, q, &lines, q.Rebind(query), userID); err != nil {
		return nil, fmt.Errorf("store: list cart: %w", err)
	}
	return lines, nil
}

func clearCart(ctx context.Context, q sqlx.ExtContext, userID int64) (int64, error) {
	res, err := q.ExecContext(ctx, q.Rebind(`DELETE FROM cart_lines WHERE user_id = ?`), userID)
	if err != nil {
		return 0, fmt.Errorf("store: clear cart: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: clear cart: %w", err)
	}
	return n, nil
}
