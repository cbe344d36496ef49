// Package store persists users, sessions, carts, orders and inbound messages.
// Queries are written with ? placeholders and rebound for the active driver.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/farmbot/core/logger"
)

// Default session values used when a user has no stored session.
const (
	DefaultState   = "idle"
	DefaultSection = "main_menu"
	emptyTemp      = "{}"
)

// Order kinds.
const (
	KindFull  = "full"
	KindQuick = "quick"
)

// Store is the sqlx-backed persistence layer. It is safe for concurrent use.
type Store struct {
	db *sqlx.DB
}

// New wraps an open database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// User is a Telegram account seen by the bot.
type User struct {
	ID        int64  `db:"id"`
	FirstName string `db:"first_name"`
	LastName  string `db:"last_name"`
	Username  string `db:"username"`
}

// SaveUser inserts or refreshes a user's profile.
func (s *Store) SaveUser(ctx context.Context, u User) error {
	const q = `INSERT INTO users (id, first_name, last_name, username) VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    first_name = excluded.first_name,
    last_name = excluded.last_name,
    username = excluded.username,
    updated_at = CURRENT_TIMESTAMP`
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(q), u.ID, u.FirstName, u.LastName, u.Username); err != nil {
		return fmt.Errorf("store: save user: %w", err)
	}
	return nil
}

// SessionRecord is the stored dialogue state of one user. TempData holds a JSON object.
type SessionRecord struct {
	UserID      int64     `db:"user_id"`
	State       string    `db:"state"`
	TempData    string    `db:"temp_data"`
	LastSection string    `db:"last_section"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Session returns the user's session, or the default idle session when none is stored.
func (s *Store) Session(ctx context.Context, userID int64) (SessionRecord, error) {
	const q = `SELECT user_id, state, temp_data, last_section, updated_at FROM sessions WHERE user_id = ?`
	var rec SessionRecord
	err := s.db.GetContext(ctx, &rec, s.db.Rebind(q), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{
			UserID:      userID,
			State:       DefaultState,
			TempData:    emptyTemp,
			LastSection: DefaultSection,
		}, nil
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("store: load session: %w", err)
	}
	if rec.TempData == "" {
		rec.TempData = emptyTemp
	}
	return rec, nil
}

// SaveSession upserts the user's session row.
func (s *Store) SaveSession(ctx context.Context, rec SessionRecord) error {
	if rec.TempData == "" {
		rec.TempData = emptyTemp
	}
	const q = `INSERT INTO sessions (user_id, state, temp_data, last_section) VALUES (?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
    state = excluded.state,
    temp_data = excluded.temp_data,
    last_section = excluded.last_section,
    updated_at = CURRENT_TIMESTAMP`
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(q), rec.UserID, rec.State, rec.TempData, rec.LastSection); err != nil {
		return fmt.Errorf("store: save session: %w", err)
	}
	return nil
}

// DeleteSession removes the user's session row. Deleting a missing row is not an error.
func (s *Store) DeleteSession(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM sessions WHERE user_id = ?`), userID); err != nil {
		return fmt.Errorf("store: delete session: %w", err)
	}
	return nil
}

// InboundMessage is free text kept for a human to follow up.
type InboundMessage struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	UserName  string    `db:"user_name"`
	Username  string    `db:"username"`
	Text      string    `db:"text"`
	Kind      string    `db:"kind"`
	ItemID    int64     `db:"item_id"`
	CreatedAt time.Time `db:"created_at"`
}

// SaveMessage appends an inbound message and returns its id.
func (s *Store) SaveMessage(ctx context.Context, m InboundMessage) (int64, error) {
	const q = `INSERT INTO messages (user_id, user_name, username, text, kind, item_id)
VALUES (?, ?, ?, ?, ?, ?) RETURNING id`
	var id int64
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(q),
		m.UserID, m.UserName, m.Username, m.Text, m.Kind, m.ItemID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: save message: %w", err)
	}
	return id, nil
}

// Messages lists a user's inbound messages, oldest first.
func (s *Store) Messages(ctx context.Context, userID int64) ([]InboundMessage, error) {
	const q = `SELECT id, user_id, user_name, username, text, kind, item_id, created_at
FROM messages WHERE user_id = ? ORDER BY id`
	var out []InboundMessage
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(q), userID); err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	return out, nil
}

// Stats aggregates counters for the admin report and the health page.
type Stats struct {
	Orders      int64   `db:"orders"`
	QuickOrders int64   `db:"quick_orders"`
	Revenue     float64 `db:"revenue"`
	Messages    int64   `db:"messages"`
	Users       int64   `db:"users"`
	ActiveCarts int64   `db:"active_carts"`
}

// Map flattens stats for JSON output.
func (st Stats) Map() map[string]int64 {
	return map[string]int64{
		"orders":       st.Orders,
		"quick_orders": st.QuickOrders,
		"messages":     st.Messages,
		"users":        st.Users,
		"active_carts": st.ActiveCarts,
	}
}

// Stats returns store-wide counters.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	const q = `SELECT
    (SELECT COUNT(*) FROM orders WHERE kind = 'full') AS orders,
    (SELECT COUNT(*) FROM orders WHERE kind = 'quick') AS quick_orders,
    (SELECT COALESCE(SUM(total), 0) FROM orders WHERE kind = 'full') AS revenue,
    (SELECT COUNT(*) FROM messages) AS messages,
    (SELECT COUNT(*) FROM users) AS users,
    (SELECT COUNT(DISTINCT user_id) FROM cart_lines) AS active_carts`
	var st Stats
	if err := s.db.GetContext(ctx, &st, q); err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	return st, nil
}

// InTx runs fn inside a transaction. It commits when fn returns nil and rolls
// back on error or panic.
func (s *Store) InTx(ctx context.Context, fn func(Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logger.Warn(ctx, logger.CompDB, "tx.rollback_failed",
					slog.String("err", rbErr.Error()),
				)
			}
		}
	}()

	if err = fn(&txStore{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}
