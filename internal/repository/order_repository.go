package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gourmet-house/pricing-service/internal/model"
	"github.com/gourmet-house/pricing-service/internal/service"
	"github.com/gourmet-house/pricing-service/pkg/database"
)

// OrderRepository provides data access for orders.
type OrderRepository struct {
	pool PoolInterface
}

// NewOrderRepository creates a new OrderRepository with the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// NewOrderRepositoryWithPool creates a new OrderRepository with a custom
// pool interface. This is primarily used for testing.
func NewOrderRepositoryWithPool(pool PoolInterface) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Insert persists an order. Cart lines are stored as a JSONB document since
// this service never queries into them.
func (r *OrderRepository) Insert(ctx context.Context, tx database.TxQuerier, order *model.Order) error {
	lines, err := json.Marshal(order.Lines)
	if err != nil {
		return fmt.Errorf("marshal order lines: %w", err)
	}

	query := `INSERT INTO orders (id, user_id, restaurant_id, order_type, lines,
			subtotal, discount, total, applied_instrument_id, free_delivery, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = tx.Exec(ctx, query,
		order.ID, order.UserID, order.RestaurantID, string(order.OrderType), lines,
		order.Subtotal, order.Discount, order.Total, order.AppliedInstrumentID,
		order.FreeDelivery, string(order.Status))
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// CountDeliveredByUser returns how many orders the user has in the
// DELIVERED state. Drives the new-users-only eligibility check.
func (r *OrderRepository) CountDeliveredByUser(ctx context.Context, q database.TxQuerier, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM orders WHERE user_id = $1 AND status = 'DELIVERED'`

	var count int
	if err := q.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count delivered orders for user %s: %w", userID, err)
	}
	return count, nil
}

// UpdateStatus moves an order to a new status.
// Returns service.ErrOrderNotFound if no row matches.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status model.OrderStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update order %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrOrderNotFound
	}
	return nil
}
