// Package orders turns a completed checkout into a durable order.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/m3rciful/farmbot/core/logger"
	"github.com/m3rciful/farmbot/internal/cart"
	"github.com/m3rciful/farmbot/internal/catalog"
	"github.com/m3rciful/farmbot/internal/store"
)

var (
	// ErrEmptyCart is returned when there is nothing orderable in the cart.
	ErrEmptyCart = errors.New("orders: cart is empty")
	// ErrTotalChanged is matched by *TotalChangedError.
	ErrTotalChanged = errors.New("orders: cart total changed")
	// ErrUnknownItem is returned for a quick order of an item not in the catalog.
	ErrUnknownItem = errors.New("orders: unknown item")
)

// TotalChangedError reports that the cart changed since the total was shown.
type TotalChangedError struct {
	Expected float64
	Current  float64
}

func (e *TotalChangedError) Error() string {
	return fmt.Sprintf("orders: cart total changed from %.2f to %.2f", e.Expected, e.Current)
}

// Is matches ErrTotalChanged.
func (e *TotalChangedError) Is(target error) bool {
	return target == ErrTotalChanged
}

// Contact methods of a quick order.
const (
	MethodCall = "call"
	MethodChat = "chat"
)

// TxRunner runs fn in a single database transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(store.Tx) error) error
}

// Reader lists placed orders.
type Reader interface {
	RecentOrders(ctx context.Context, userID int64, limit int) ([]store.OrderSummary, error)
}

// Fields are the customer details captured by the checkout dialogue.
type Fields struct {
	Name          string
	Username      string
	Phone         string
	City          string
	DeliveryPoint string
}

// QuickFields describe a single-item quick order.
type QuickFields struct {
	ItemID        int64
	Name          string
	Username      string
	Phone         string
	ContactMethod string
}

// Receipt describes a placed order.
type Receipt struct {
	OrderID int64
	Total   float64
	Lines   []cart.Line
}

// Service places orders.
type Service struct {
	tx      TxRunner
	reader  Reader
	catalog *catalog.Catalog
}

// NewService wires the order service. reader may be nil when Recent is unused.
func NewService(tx TxRunner, reader Reader, c *catalog.Catalog) *Service {
	return &Service{tx: tx, reader: reader, catalog: c}
}

// Checkout creates an order from the user's current cart and clears the cart,
// all in one transaction. The total is recomputed from the cart and must match
// expectedTotal.
func (s *Service) Checkout(ctx context.Context, userID int64, f Fields, expectedTotal float64) (Receipt, error) {
	var rc Receipt
	err := s.tx.InTx(ctx, func(tx store.Tx) error {
		rows, err := tx.CartLines(ctx, userID)
		if err != nil {
			return err
		}
		lines := cart.Join(s.catalog, rows)
		if len(lines) == 0 {
			return ErrEmptyCart
		}
		total := cart.Total(lines)
		if math.Abs(total-expectedTotal) >= 0.005 {
			return &TotalChangedError{Expected: expectedTotal, Current: total}
		}

		orderID, err := tx.InsertOrder(ctx, store.Order{
			UserID:        userID,
			Kind:          store.KindFull,
			CustomerName:  f.Name,
			Username:      f.Username,
			Phone:         f.Phone,
			City:          f.City,
			DeliveryPoint: f.DeliveryPoint,
			Total:         total,
		})
		if err != nil {
			return err
		}
		for _, l := range lines {
			if err := tx.InsertOrderLine(ctx, store.OrderLine{
				OrderID:     orderID,
				ItemID:      l.Item.ID,
				ProductName: l.Item.Name,
				Quantity:    l.Quantity,
				Unit:        l.Item.Unit,
				UnitPrice:   l.Item.Price,
			}); err != nil {
				return err
			}
		}
		if _, err := tx.ClearCart(ctx, userID); err != nil {
			return err
		}
		rc = Receipt{OrderID: orderID, Total: total, Lines: lines}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrEmptyCart) || errors.Is(err, ErrTotalChanged) {
			return Receipt{}, err
		}
		return Receipt{}, fmt.Errorf("orders: checkout: %w", err)
	}
	logger.Info(ctx, logger.CompOrders, "order.placed",
		slog.Int64("order_id", rc.OrderID),
		slog.Int("lines", len(rc.Lines)),
		slog.Float64("total", rc.Total),
	)
	return rc, nil
}

// QuickOrder records a single-item order whose quantity is agreed later with
// the operator, so the total and line quantity are zero.
func (s *Service) QuickOrder(ctx context.Context, userID int64, f QuickFields) (Receipt, error) {
	item, ok := s.catalog.Lookup(f.ItemID)
	if !ok {
		return Receipt{}, fmt.Errorf("%w: %d", ErrUnknownItem, f.ItemID)
	}
	var orderID int64
	err := s.tx.InTx(ctx, func(tx store.Tx) error {
		id, err := tx.InsertOrder(ctx, store.Order{
			UserID:        userID,
			Kind:          store.KindQuick,
			CustomerName:  f.Name,
			Username:      f.Username,
			Phone:         f.Phone,
			ContactMethod: f.ContactMethod,
		})
		if err != nil {
			return err
		}
		orderID = id
		return tx.InsertOrderLine(ctx, store.OrderLine{
			OrderID:     id,
			ItemID:      item.ID,
			ProductName: item.Name,
			Unit:        item.Unit,
			UnitPrice:   item.Price,
		})
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("orders: quick order: %w", err)
	}
	logger.Info(ctx, logger.CompOrders, "order.quick",
		slog.Int64("order_id", orderID),
		slog.Int64("item_id", item.ID),
		slog.String("method", f.ContactMethod),
	)
	return Receipt{OrderID: orderID, Lines: []cart.Line{{Item: item}}}, nil
}

// Recent lists the user's latest orders.
func (s *Service) Recent(ctx context.Context, userID int64, limit int) ([]store.OrderSummary, error) {
	if s.reader == nil {
		return nil, nil
	}
	out, err := s.reader.RecentOrders(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("orders: recent: %w", err)
	}
	return out, nil
}
