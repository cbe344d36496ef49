// Package cart accumulates catalog quantities per user with merge semantics.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/m3rciful/farmbot/core/logger"
	"github.com/m3rciful/farmbot/internal/catalog"
	"github.com/m3rciful/farmbot/internal/store"
)

var (
	// ErrInvalidQuantity is returned for zero, negative or non-finite quantities.
	ErrInvalidQuantity = errors.New("cart: invalid quantity")
	// ErrUnknownItem is returned when the item id is not in the catalog.
	ErrUnknownItem = errors.New("cart: unknown item")
)

// Store is the persistence the cart relies on.
type Store interface {
	AddCartLine(ctx context.Context, userID, itemID int64, qty float64) error
	CartLines(ctx context.Context, userID int64) ([]store.CartLine, error)
	RemoveCartLine(ctx context.Context, userID, lineID int64) (bool, error)
	ClearCart(ctx context.Context, userID int64) (int64, error)
}

// Line is a cart line joined with its catalog item.
type Line struct {
	ID       int64
	Item     catalog.Item
	Quantity float64
}

// Subtotal is price times quantity rounded to cents.
func (l Line) Subtotal() float64 {
	return RoundCents(l.Item.Price * l.Quantity)
}

// Manager implements cart operations over a Store and a Catalog.
type Manager struct {
	store   Store
	catalog *catalog.Catalog
}

// NewManager wires a cart manager.
func NewManager(s Store, c *catalog.Catalog) *Manager {
	return &Manager{store: s, catalog: c}
}

// Add merges qty of itemID into the user's cart.
func (m *Manager) Add(ctx context.Context, userID, itemID int64, qty float64) error {
	if qty <= 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
		return ErrInvalidQuantity
	}
	if _, ok := m.catalog.Lookup(itemID); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownItem, itemID)
	}
	if err := m.store.AddCartLine(ctx, userID, itemID, qty); err != nil {
		return fmt.Errorf("cart: add: %w", err)
	}
	logger.Info(ctx, logger.CompCart, "cart.add",
		slog.Int64("item_id", itemID),
		slog.Float64("qty", qty),
	)
	return nil
}

// Remove deletes one line. Removing a missing line is a no-op.
func (m *Manager) Remove(ctx context.Context, userID, lineID int64) error {
	removed, err := m.store.RemoveCartLine(ctx, userID, lineID)
	if err != nil {
		return fmt.Errorf("cart: remove: %w", err)
	}
	logger.Info(ctx, logger.CompCart, "cart.remove",
		slog.Int64("line_id", lineID),
		slog.Bool("removed", removed),
	)
	return nil
}

// Clear empties the user's cart.
func (m *Manager) Clear(ctx context.Context, userID int64) error {
	n, err := m.store.ClearCart(ctx, userID)
	if err != nil {
		return fmt.Errorf("cart: clear: %w", err)
	}
	logger.Info(ctx, logger.CompCart, "cart.clear", slog.Int64("lines", n))
	return nil
}

// Lines lists the user's cart joined with the catalog. Lines whose item left
// the catalog are omitted.
func (m *Manager) Lines(ctx context.Context, userID int64) ([]Line, error) {
	rows, err := m.store.CartLines(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("cart: list: %w", err)
	}
	return Join(m.catalog, rows), nil
}

// Join resolves stored lines against the catalog, dropping unknown items.
func Join(c *catalog.Catalog, rows []store.CartLine) []Line {
	lines := make([]Line, 0, len(rows))
	for _, r := range rows {
		item, ok := c.Lookup(r.ItemID)
		if !ok {
			continue
		}
		lines = append(lines, Line{ID: r.ID, Item: item, Quantity: r.Quantity})
	}
	return lines
}

// Total sums the lines and rounds to cents.
func Total(lines []Line) float64 {
	var sum float64
	for _, l := range lines {
		sum += l.Item.Price * l.Quantity
	}
	return RoundCents(sum)
}

// RoundCents rounds v to two decimals.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
