package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gourmet-house/pricing-service/internal/model"
	"github.com/gourmet-house/pricing-service/internal/service"
	"github.com/gourmet-house/pricing-service/pkg/database"
)

// UsageRepository provides data access for instrument usage records.
type UsageRepository struct {
	pool PoolInterface
}

// NewUsageRepository creates a new UsageRepository with the given pool.
func NewUsageRepository(pool *pgxpool.Pool) *UsageRepository {
	return &UsageRepository{pool: pool}
}

// NewUsageRepositoryWithPool creates a new UsageRepository with a custom
// pool interface. This is primarily used for testing.
func NewUsageRepositoryWithPool(pool PoolInterface) *UsageRepository {
	return &UsageRepository{pool: pool}
}

// CountByUserAndInstrument returns how many usage records exist for the
// (instrument, user) pair. Accepts a TxQuerier so the count can run inside
// the order-creation transaction under the instrument row lock.
func (r *UsageRepository) CountByUserAndInstrument(ctx context.Context, q database.TxQuerier, instrumentID, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM usage_records WHERE instrument_id = $1 AND user_id = $2`

	var count int
	if err := q.QueryRow(ctx, query, instrumentID, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count usages for instrument %s user %s: %w", instrumentID, userID, err)
	}
	return count, nil
}

// Record inserts a usage record within a transaction. The unique order_id
// constraint guarantees at most one record per order.
// Returns service.ErrUsageAlreadyRecorded on a duplicate order.
func (r *UsageRepository) Record(ctx context.Context, tx database.TxQuerier, rec *model.UsageRecord) error {
	query := `INSERT INTO usage_records (id, instrument_id, user_id, order_id, discount_applied)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := tx.Exec(ctx, query, rec.ID, rec.InstrumentID, rec.UserID, rec.OrderID, rec.DiscountApplied)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return service.ErrUsageAlreadyRecorded
		}
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// HasUsage reports whether any usage record exists for the instrument.
// Used to decide between soft and hard delete.
func (r *UsageRepository) HasUsage(ctx context.Context, instrumentID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM usage_records WHERE instrument_id = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, instrumentID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check usage for instrument %s: %w", instrumentID, err)
	}
	return exists, nil
}
