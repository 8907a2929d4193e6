package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gourmet-house/pricing-service/internal/model"
	"github.com/gourmet-house/pricing-service/internal/service"
	"github.com/gourmet-house/pricing-service/pkg/database"
)

// PoolInterface defines the database operations needed by repositories.
// This allows for easier testing with mocks.
type PoolInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const instrumentColumns = `id, code, kind, description, discount_type, value, max_discount,
	min_purchase_amount, valid_from, valid_until, usage_limit, used_count,
	usage_limit_per_user, restaurants, order_types, days_allowed,
	window_start, window_end, dishes, dish_categories, dish_types,
	new_users_only, is_active, created_by, created_at`

// InstrumentRepository provides data access for discount instruments using pgx.
type InstrumentRepository struct {
	pool PoolInterface
}

// NewInstrumentRepository creates a new InstrumentRepository with the given pool.
func NewInstrumentRepository(pool *pgxpool.Pool) *InstrumentRepository {
	return &InstrumentRepository{pool: pool}
}

// NewInstrumentRepositoryWithPool creates a new InstrumentRepository with a
// custom pool interface. This is primarily used for testing.
func NewInstrumentRepositoryWithPool(pool PoolInterface) *InstrumentRepository {
	return &InstrumentRepository{pool: pool}
}

// Insert inserts a new instrument.
// Returns service.ErrInstrumentExists if the code is already taken.
func (r *InstrumentRepository) Insert(ctx context.Context, inst *model.Instrument) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO instruments (id, code, kind, description, discount_type, value, max_discount,
			min_purchase_amount, valid_from, valid_until, usage_limit,
			usage_limit_per_user, restaurants, order_types, days_allowed,
			window_start, window_end, dishes, dish_categories, dish_types,
			new_users_only, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		inst.ID, inst.Code, string(inst.Kind), inst.Description, string(inst.DiscountType),
		inst.Value, inst.MaxDiscount, inst.MinPurchaseAmount, inst.ValidFrom, inst.ValidUntil,
		inst.UsageLimit, inst.UsageLimitPerUser, inst.Restaurants,
		orderTypesToStrings(inst.OrderTypes), weekdaysToInts(inst.DaysAllowed),
		inst.WindowStart, inst.WindowEnd, inst.Dishes, inst.DishCategories, inst.DishTypes,
		inst.NewUsersOnly, inst.IsActive, inst.CreatedBy)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return service.ErrInstrumentExists
		}
		return fmt.Errorf("insert instrument: %w", err)
	}
	return nil
}

// GetByCode retrieves an instrument by its normalized code.
// Returns nil, nil if the instrument is not found (service layer handles this).
func (r *InstrumentRepository) GetByCode(ctx context.Context, code string) (*model.Instrument, error) {
	query := `SELECT ` + instrumentColumns + ` FROM instruments WHERE code = $1`

	inst, err := scanInstrument(r.pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get instrument by code %s: %w", code, err)
	}
	return inst, nil
}

// GetByCodeForUpdate retrieves an instrument with a row lock (SELECT FOR UPDATE).
// The lock is held until the transaction completes, serializing concurrent
// order submissions against the same code.
// Returns service.ErrInstrumentNotFound if the instrument doesn't exist.
func (r *InstrumentRepository) GetByCodeForUpdate(ctx context.Context, tx database.TxQuerier, code string) (*model.Instrument, error) {
	query := `SELECT ` + instrumentColumns + ` FROM instruments WHERE code = $1 FOR UPDATE`

	inst, err := scanInstrument(tx.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrInstrumentNotFound
		}
		return nil, fmt.Errorf("get instrument for update %s: %w", code, err)
	}
	return inst, nil
}

// IncrementUsage increments used_count by 1, guarded by the usage limit.
// The WHERE clause makes the increment conditional: a row whose counter has
// reached its limit is not updated, and service.ErrUsageExhausted is
// returned so the caller can abort the transaction.
func (r *InstrumentRepository) IncrementUsage(ctx context.Context, tx database.TxQuerier, id string) error {
	query := `UPDATE instruments
		SET used_count = used_count + 1
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`

	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("increment usage for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrUsageExhausted
	}
	return nil
}

// ListActivePromotions returns promotions currently applicable at a
// restaurant: active, inside their validity window, allowed on now's
// weekday, inside their time-of-day window, and with global usage
// remaining. Restaurant filtering matches the allow-list semantics (empty
// list = all restaurants). Window bounds are zero-padded "HH:MM" strings,
// so the comparison is plain string ordering; the clock minute is derived
// from now in Go to keep it on the same clock the pricer uses.
func (r *InstrumentRepository) ListActivePromotions(ctx context.Context, restaurantID string, now time.Time) ([]model.Instrument, error) {
	query := `SELECT ` + instrumentColumns + ` FROM instruments
		WHERE kind = 'PROMOTION'
		  AND is_active
		  AND valid_from <= $2 AND valid_until >= $2
		  AND (cardinality(restaurants) = 0 OR $1 = ANY(restaurants))
		  AND (cardinality(days_allowed) = 0 OR $3 = ANY(days_allowed))
		  AND (window_start = '' OR window_end = '' OR $4 BETWEEN window_start AND window_end)
		  AND (usage_limit IS NULL OR used_count < usage_limit)
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, restaurantID, now, int(now.Weekday()), now.Format("15:04"))
	if err != nil {
		return nil, fmt.Errorf("list active promotions: %w", err)
	}
	defer rows.Close()

	promotions := []model.Instrument{}
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan promotion: %w", err)
		}
		promotions = append(promotions, *inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate promotions: %w", err)
	}
	return promotions, nil
}

// Deactivate soft-deletes an instrument by clearing is_active.
// Returns service.ErrInstrumentNotFound if no row matches.
func (r *InstrumentRepository) Deactivate(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE instruments SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate instrument %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrInstrumentNotFound
	}
	return nil
}

// Delete hard-deletes an instrument. Only valid for instruments that have
// never been used; the service layer enforces that.
func (r *InstrumentRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM instruments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete instrument %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrInstrumentNotFound
	}
	return nil
}

// scanInstrument reads one instrument row. Array columns come back as
// text[]/int[] and are converted to their typed slices.
func scanInstrument(row pgx.Row) (*model.Instrument, error) {
	var inst model.Instrument
	var kind, discountType string
	var orderTypes []string
	var days []int32

	err := row.Scan(
		&inst.ID, &inst.Code, &kind, &inst.Description, &discountType,
		&inst.Value, &inst.MaxDiscount, &inst.MinPurchaseAmount,
		&inst.ValidFrom, &inst.ValidUntil, &inst.UsageLimit, &inst.UsedCount,
		&inst.UsageLimitPerUser, &inst.Restaurants, &orderTypes, &days,
		&inst.WindowStart, &inst.WindowEnd, &inst.Dishes, &inst.DishCategories,
		&inst.DishTypes, &inst.NewUsersOnly, &inst.IsActive, &inst.CreatedBy,
		&inst.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	inst.Kind = model.InstrumentKind(kind)
	inst.DiscountType = model.DiscountType(discountType)
	for _, ot := range orderTypes {
		inst.OrderTypes = append(inst.OrderTypes, model.OrderType(ot))
	}
	for _, d := range days {
		inst.DaysAllowed = append(inst.DaysAllowed, time.Weekday(d))
	}
	return &inst, nil
}

func orderTypesToStrings(types []model.OrderType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func weekdaysToInts(days []time.Weekday) []int32 {
	out := make([]int32, len(days))
	for i, d := range days {
		out[i] = int32(d)
	}
	return out
}
