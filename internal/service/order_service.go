package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gourmet-house/pricing-service/internal/model"
	"github.com/gourmet-house/pricing-service/internal/pricing"
	"github.com/gourmet-house/pricing-service/pkg/database"
)

// InstrumentRepositoryInterface defines the interface for instrument data access.
type InstrumentRepositoryInterface interface {
	Insert(ctx context.Context, inst *model.Instrument) error
	GetByCode(ctx context.Context, code string) (*model.Instrument, error)
	GetByCodeForUpdate(ctx context.Context, tx database.TxQuerier, code string) (*model.Instrument, error)
	IncrementUsage(ctx context.Context, tx database.TxQuerier, id string) error
	ListActivePromotions(ctx context.Context, restaurantID string, now time.Time) ([]model.Instrument, error)
	Deactivate(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// UsageRepositoryInterface defines the interface for usage record data access.
type UsageRepositoryInterface interface {
	CountByUserAndInstrument(ctx context.Context, q database.TxQuerier, instrumentID, userID string) (int, error)
	Record(ctx context.Context, tx database.TxQuerier, rec *model.UsageRecord) error
	HasUsage(ctx context.Context, instrumentID string) (bool, error)
}

// OrderRepositoryInterface defines the interface for order data access.
type OrderRepositoryInterface interface {
	Insert(ctx context.Context, tx database.TxQuerier, order *model.Order) error
	CountDeliveredByUser(ctx context.Context, q database.TxQuerier, userID string) (int, error)
	UpdateStatus(ctx context.Context, id string, status model.OrderStatus) error
}

// TxBeginner defines the interface for beginning transactions.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderService prices carts and creates orders. Pricing itself is pure
// (internal/pricing); this service owns the transaction that makes order
// persistence, usage recording and the used_count increment atomic.
type OrderService struct {
	pool        TxBeginner
	db          database.TxQuerier
	instruments InstrumentRepositoryInterface
	usages      UsageRepositoryInterface
	orders      OrderRepositoryInterface
	now         func() time.Time
}

// NewOrderService creates a new OrderService with the given pool and repositories.
func NewOrderService(pool *pgxpool.Pool, instruments InstrumentRepositoryInterface, usages UsageRepositoryInterface, orders OrderRepositoryInterface) *OrderService {
	return &OrderService{
		pool:        pool,
		db:          pool,
		instruments: instruments,
		usages:      usages,
		orders:      orders,
		now:         time.Now,
	}
}

// NewOrderServiceWithDeps creates an OrderService with custom transaction
// and query dependencies. Primarily used for testing.
func NewOrderServiceWithDeps(pool TxBeginner, db database.TxQuerier, instruments InstrumentRepositoryInterface, usages UsageRepositoryInterface, orders OrderRepositoryInterface) *OrderService {
	return &OrderService{
		pool:        pool,
		db:          db,
		instruments: instruments,
		usages:      usages,
		orders:      orders,
		now:         time.Now,
	}
}

// PriceOrder computes a quote for the cart without persisting anything.
// Returns ErrInstrumentNotFound for an unknown code, a *pricing.Rejection
// for an ineligible instrument, or a wrapped infrastructure error.
func (s *OrderService) PriceOrder(ctx context.Context, req *model.PriceOrderRequest) (*model.PricingResult, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}

	var inst *model.Instrument
	if req.Code != "" {
		var err error
		inst, err = s.instruments.GetByCode(ctx, model.NormalizeCode(req.Code))
		if err != nil {
			return nil, fmt.Errorf("resolve code: %w", err)
		}
		if inst == nil {
			return nil, ErrInstrumentNotFound
		}
	}

	evalCtx, err := s.buildEvalContext(ctx, s.db, inst, req)
	if err != nil {
		return nil, err
	}

	result, rej := pricing.Price(req.Lines, inst, evalCtx)
	if rej != nil {
		return nil, rej
	}
	return &result, nil
}

// CreateOrder prices the cart and persists the order. When an instrument is
// applied, the order insert, the usage record and the used_count increment
// commit in one transaction: usage is never charged for an order that
// failed to save, and the conditional increment keeps used_count at or
// below usage_limit under concurrent submissions.
//
// The instrument row is locked (SELECT FOR UPDATE) for the duration, so
// evaluation never acts on a counter another transaction is changing.
func (s *OrderService) CreateOrder(ctx context.Context, req *model.PriceOrderRequest) (*model.Order, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	// 1. Resolve and lock the instrument row.
	var inst *model.Instrument
	if req.Code != "" {
		inst, err = s.instruments.GetByCodeForUpdate(ctx, tx, model.NormalizeCode(req.Code))
		if err != nil {
			if errors.Is(err, ErrInstrumentNotFound) {
				return nil, ErrInstrumentNotFound
			}
			return nil, fmt.Errorf("get instrument for update: %w", err)
		}
	}

	// 2. Gather usage counts under the lock and price the cart.
	evalCtx, err := s.buildEvalContext(ctx, tx, inst, req)
	if err != nil {
		return nil, err
	}
	result, rej := pricing.Price(req.Lines, inst, evalCtx)
	if rej != nil {
		return nil, rej
	}

	// 3. Persist the order.
	order := &model.Order{
		ID:                  uuid.New().String(),
		UserID:              req.UserID,
		RestaurantID:        req.RestaurantID,
		OrderType:           req.OrderType,
		Lines:               req.Lines,
		Subtotal:            result.Subtotal,
		Discount:            result.DiscountAmount,
		Total:               result.Total,
		AppliedInstrumentID: result.AppliedInstrumentID,
		FreeDelivery:        result.FreeDelivery,
		Status:              model.StatusCreated,
		CreatedAt:           s.now(),
	}
	if err := s.orders.Insert(ctx, tx, order); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	// 4. Charge usage. The increment is conditional on the limit; zero rows
	// affected means another submission exhausted the counter between our
	// read and now, and the whole order rolls back.
	if result.AppliedInstrumentID != nil {
		if err := s.instruments.IncrementUsage(ctx, tx, inst.ID); err != nil {
			if errors.Is(err, ErrUsageExhausted) {
				return nil, &pricing.Rejection{
					Reason:  pricing.ReasonGlobalLimitReached,
					Message: "this code has reached its usage limit",
				}
			}
			return nil, fmt.Errorf("increment usage: %w", err)
		}

		rec := &model.UsageRecord{
			ID:              uuid.New().String(),
			InstrumentID:    inst.ID,
			UserID:          req.UserID,
			OrderID:         order.ID,
			DiscountApplied: result.DiscountAmount,
		}
		if err := s.usages.Record(ctx, tx, rec); err != nil {
			return nil, fmt.Errorf("record usage: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return order, nil
}

// UpdateOrderStatus moves an order through its lifecycle. Status values are
// validated at the DTO layer; this only requires the order to exist.
// Returns ErrOrderNotFound for an unknown id.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) error {
	if id == "" {
		return ErrInvalidRequest
	}
	return s.orders.UpdateStatus(ctx, id, status)
}

// buildEvalContext assembles the eligibility inputs. Usage counts are
// fetched only when the instrument consults them; a failed lookup aborts
// evaluation rather than passing the check.
func (s *OrderService) buildEvalContext(ctx context.Context, q database.TxQuerier, inst *model.Instrument, req *model.PriceOrderRequest) (pricing.EvalContext, error) {
	evalCtx := pricing.EvalContext{
		Now:          s.now(),
		UserID:       req.UserID,
		RestaurantID: req.RestaurantID,
		OrderType:    req.OrderType,
	}
	if inst == nil {
		return evalCtx, nil
	}

	if inst.UsageLimitPerUser != nil {
		count, err := s.usages.CountByUserAndInstrument(ctx, q, inst.ID, req.UserID)
		if err != nil {
			return evalCtx, fmt.Errorf("count user usages: %w", err)
		}
		evalCtx.UserUsageCount = count
	}
	if inst.NewUsersOnly {
		delivered, err := s.orders.CountDeliveredByUser(ctx, q, req.UserID)
		if err != nil {
			return evalCtx, fmt.Errorf("count delivered orders: %w", err)
		}
		evalCtx.DeliveredOrders = delivered
	}
	return evalCtx, nil
}
