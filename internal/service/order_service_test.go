package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gourmet-house/pricing-service/internal/model"
	"github.com/gourmet-house/pricing-service/internal/pricing"
	"github.com/gourmet-house/pricing-service/pkg/database"
)

// testNow is a Wednesday afternoon; all service tests pin the clock to it.
var testNow = time.Date(2025, time.March, 12, 14, 30, 0, 0, time.UTC)

func intPtr(i int) *int {
	return &i
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// mockInstrumentRepository is a mock implementation of InstrumentRepositoryInterface.
type mockInstrumentRepository struct {
	insertFn               func(ctx context.Context, inst *model.Instrument) error
	getByCodeFn            func(ctx context.Context, code string) (*model.Instrument, error)
	getByCodeForUpdateFn   func(ctx context.Context, tx database.TxQuerier, code string) (*model.Instrument, error)
	incrementUsageFn       func(ctx context.Context, tx database.TxQuerier, id string) error
	listActivePromotionsFn func(ctx context.Context, restaurantID string, now time.Time) ([]model.Instrument, error)
	deactivateFn           func(ctx context.Context, id string) error
	deleteFn               func(ctx context.Context, id string) error
}

func (m *mockInstrumentRepository) Insert(ctx context.Context, inst *model.Instrument) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, inst)
	}
	return nil
}

func (m *mockInstrumentRepository) GetByCode(ctx context.Context, code string) (*model.Instrument, error) {
	if m.getByCodeFn != nil {
		return m.getByCodeFn(ctx, code)
	}
	return nil, nil
}

func (m *mockInstrumentRepository) GetByCodeForUpdate(ctx context.Context, tx database.TxQuerier, code string) (*model.Instrument, error) {
	if m.getByCodeForUpdateFn != nil {
		return m.getByCodeForUpdateFn(ctx, tx, code)
	}
	return nil, ErrInstrumentNotFound
}

func (m *mockInstrumentRepository) IncrementUsage(ctx context.Context, tx database.TxQuerier, id string) error {
	if m.incrementUsageFn != nil {
		return m.incrementUsageFn(ctx, tx, id)
	}
	return nil
}

func (m *mockInstrumentRepository) ListActivePromotions(ctx context.Context, restaurantID string, now time.Time) ([]model.Instrument, error) {
	if m.listActivePromotionsFn != nil {
		return m.listActivePromotionsFn(ctx, restaurantID, now)
	}
	return []model.Instrument{}, nil
}

func (m *mockInstrumentRepository) Deactivate(ctx context.Context, id string) error {
	if m.deactivateFn != nil {
		return m.deactivateFn(ctx, id)
	}
	return nil
}

func (m *mockInstrumentRepository) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

// mockUsageRepository is a mock implementation of UsageRepositoryInterface.
type mockUsageRepository struct {
	countFn    func(ctx context.Context, q database.TxQuerier, instrumentID, userID string) (int, error)
	recordFn   func(ctx context.Context, tx database.TxQuerier, rec *model.UsageRecord) error
	hasUsageFn func(ctx context.Context, instrumentID string) (bool, error)
}

func (m *mockUsageRepository) CountByUserAndInstrument(ctx context.Context, q database.TxQuerier, instrumentID, userID string) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, q, instrumentID, userID)
	}
	return 0, nil
}

func (m *mockUsageRepository) Record(ctx context.Context, tx database.TxQuerier, rec *model.UsageRecord) error {
	if m.recordFn != nil {
		return m.recordFn(ctx, tx, rec)
	}
	return nil
}

func (m *mockUsageRepository) HasUsage(ctx context.Context, instrumentID string) (bool, error) {
	if m.hasUsageFn != nil {
		return m.hasUsageFn(ctx, instrumentID)
	}
	return false, nil
}

// mockOrderRepository is a mock implementation of OrderRepositoryInterface.
type mockOrderRepository struct {
	insertFn         func(ctx context.Context, tx database.TxQuerier, order *model.Order) error
	countDeliveredFn func(ctx context.Context, q database.TxQuerier, userID string) (int, error)
	updateStatusFn   func(ctx context.Context, id string, status model.OrderStatus) error
}

func (m *mockOrderRepository) Insert(ctx context.Context, tx database.TxQuerier, order *model.Order) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, tx, order)
	}
	return nil
}

func (m *mockOrderRepository) CountDeliveredByUser(ctx context.Context, q database.TxQuerier, userID string) (int, error) {
	if m.countDeliveredFn != nil {
		return m.countDeliveredFn(ctx, q, userID)
	}
	return 0, nil
}

func (m *mockOrderRepository) UpdateStatus(ctx context.Context, id string, status model.OrderStatus) error {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, status)
	}
	return nil
}

// mockTx is a mock implementation of pgx.Tx for testing transactions.
type mockTx struct {
	commitFn   func(ctx context.Context) error
	rollbackFn func(ctx context.Context) error
	committed  bool
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("nested transactions not supported")
}

func (m *mockTx) Commit(ctx context.Context) error {
	m.committed = true
	if m.commitFn != nil {
		return m.commitFn(ctx)
	}
	return nil
}

func (m *mockTx) Rollback(ctx context.Context) error {
	if m.rollbackFn != nil {
		return m.rollbackFn(ctx)
	}
	return nil
}

func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return nil
}

func (m *mockTx) LargeObjects() pgx.LargeObjects {
	return pgx.LargeObjects{}
}

func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}

func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func (m *mockTx) Conn() *pgx.Conn {
	return nil
}

// mockTxBeginner is a mock implementation of TxBeginner.
type mockTxBeginner struct {
	tx *mockTx
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	if m.tx == nil {
		m.tx = &mockTx{}
	}
	return m.tx, nil
}

func validInstrument() *model.Instrument {
	return &model.Instrument{
		ID:           "inst-1",
		Code:         "SAVE20",
		Kind:         model.KindCoupon,
		DiscountType: model.DiscountPercentage,
		Value:        dec("20"),
		ValidFrom:    testNow.Add(-24 * time.Hour),
		ValidUntil:   testNow.Add(24 * time.Hour),
		IsActive:     true,
	}
}

func validRequest(code string) *model.PriceOrderRequest {
	return &model.PriceOrderRequest{
		UserID:       "user_001",
		RestaurantID: "rest_001",
		OrderType:    model.OrderDelivery,
		Code:         code,
		Lines: []model.CartLine{
			{DishID: "dish_1", Quantity: 2, UnitPrice: dec("25.00")},
			{DishID: "dish_2", Quantity: 1, UnitPrice: dec("50.00")},
		},
	}
}

func newTestOrderService(instruments *mockInstrumentRepository, usages *mockUsageRepository, orders *mockOrderRepository) (*OrderService, *mockTxBeginner) {
	beginner := &mockTxBeginner{tx: &mockTx{}}
	svc := NewOrderServiceWithDeps(beginner, nil, instruments, usages, orders)
	svc.now = func() time.Time { return testNow }
	return svc, beginner
}

func TestOrderService_CreateOrder_NoCode(t *testing.T) {
	var inserted *model.Order
	orders := &mockOrderRepository{
		insertFn: func(ctx context.Context, tx database.TxQuerier, order *model.Order) error {
			inserted = order
			return nil
		},
	}
	incremented := false
	instruments := &mockInstrumentRepository{
		incrementUsageFn: func(ctx context.Context, tx database.TxQuerier, id string) error {
			incremented = true
			return nil
		},
	}
	usages := &mockUsageRepository{}

	svc, beginner := newTestOrderService(instruments, usages, orders)
	order, err := svc.CreateOrder(context.Background(), validRequest(""))

	require.NoError(t, err)
	require.NotNil(t, order)
	assert.True(t, order.Subtotal.Equal(dec("100")))
	assert.True(t, order.Discount.IsZero())
	assert.True(t, order.Total.Equal(dec("100")))
	assert.Nil(t, order.AppliedInstrumentID)
	assert.Equal(t, model.StatusCreated, order.Status)
	require.NotNil(t, inserted)
	assert.NotEmpty(t, inserted.ID)
	assert.False(t, incremented, "no instrument, no usage increment")
	assert.True(t, beginner.tx.committed, "transaction should commit")
}

func TestOrderService_CreateOrder_WithInstrument(t *testing.T) {
	inst := validInstrument()
	inst.MaxDiscount = func() *decimal.Decimal { d := dec("15"); return &d }()
	inst.MinPurchaseAmount = dec("50")

	var lockedCode string
	instruments := &mockInstrumentRepository{
		getByCodeForUpdateFn: func(ctx context.Context, tx database.TxQuerier, code string) (*model.Instrument, error) {
			lockedCode = code
			return inst, nil
		},
	}
	var recorded *model.UsageRecord
	usages := &mockUsageRepository{
		recordFn: func(ctx context.Context, tx database.TxQuerier, rec *model.UsageRecord) error {
			recorded = rec
			return nil
		},
	}
	var inserted *model.Order
	orders := &mockOrderRepository{
		insertFn: func(ctx context.Context, tx database.TxQuerier, order *model.Order) error {
			inserted = order
			return nil
		},
	}

	svc, beginner := newTestOrderService(instruments, usages, orders)
	order, err := svc.CreateOrder(context.Background(), validRequest("save20"))

	require.NoError(t, err)
	assert.Equal(t, "SAVE20", lockedCode, "code should be normalized before lookup")
	assert.True(t, order.Discount.Equal(dec("15")), "20%% of 100 capped at 15")
	assert.True(t, order.Total.Equal(dec("85")))
	require.NotNil(t, order.AppliedInstrumentID)
	assert.Equal(t, "inst-1", *order.AppliedInstrumentID)

	require.NotNil(t, recorded, "usage must be recorded")
	assert.Equal(t, "inst-1", recorded.InstrumentID)
	assert.Equal(t, "user_001", recorded.UserID)
	assert.Equal(t, inserted.ID, recorded.OrderID, "usage record references the persisted order")
	assert.True(t, recorded.DiscountApplied.Equal(dec("15")))
	assert.True(t, beginner.tx.committed)
}

func TestOrderService_CreateOrder_UnknownCode(t *testing.T) {
	instruments := &mockInstrumentRepository{
		getByCodeForUpdateFn: func(ctx context.Context, tx database.TxQuerier, code string) (*model.Instrument, error) {
			return nil, ErrInstrumentNotFound
		},
	}

	svc, beginner := newTestOrderService(instruments, &mockUsageRepository{}, &mockOrderRepository{})
	order, err := svc.CreateOrder(context.Background(), validRequest("NOPE"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInstrumentNotFound))
	assert.Nil(t, order)
	assert.False(t, beginner.tx.committed)
}

func TestOrderService_CreateOrder_RejectedInstrument(t *testing.T) {
	inst := validInstrument()
	inst.ValidUntil = testNow.Add(-time.Hour)

	instruments := &mockInstrumentRepository{
		getByCodeForUpdateFn: func(ctx context.Context, tx database.TxQuerier, code string) (*model.Instrument, error) {
			return inst, nil
		},
	}
	recorded := false
	usages := &mockUsageRepository{
		recordFn: func(ctx context.Context, tx database.TxQuerier, rec *model.UsageRecord) error {
			recorded = true
			return nil
		},
	}
	insertedOrder := false
	orders := &mockOrderRepository{
		insertFn: func(ctx context.Context, tx database.TxQuerier, order *model.Order) error {
			insertedOrder = true
			return nil
		},
	}

	svc, beginner := newTestOrderService(instruments, usages, orders)
	order, err := svc.CreateOrder(context.Background(), validRequest("SAVE20"))

	require.Error(t, err)
	var rej *pricing.Rejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, pricing.ReasonExpired, rej.Reason)
	assert.Nil(t, order)
	assert.False(t, insertedOrder, "rejected pricing must not create the order")
	assert.False(t, recorded, "rejected pricing must not record usage")
	assert.False(t, beginner.tx.committed)
}

func TestOrderService_CreateOrder_IncrementExhausted(t *testing.T) {
	// The conditional increment finds the counter exhausted at commit
	// time: the whole order rolls back with GLOBAL_LIMIT_REACHED.
	inst := validInstrument()
	inst.UsageLimit = intPtr(100)
	inst.UsedCount = 99

	instruments := &mockInstrumentRepository{
		getByCodeForUpdateFn: func(ctx context.Context, tx database.TxQuerier, code string) (*model.Instrument, error) {
			return inst, nil
		},
		incrementUsageFn: func(ctx context.Context, tx database.TxQuerier, id string) error {
			return ErrUsageExhausted
		},
	}
	recorded := false
	usages := &mockUsageRepository{
		recordFn: func(ctx context.Context, tx database.TxQuerier, rec *model.UsageRecord) error {
			recorded = true
			return nil
		},
	}

	svc, beginner := newTestOrderService(instruments, usages, &mockOrderRepository{})
	order, err := svc.CreateOrder(context.Background(), validRequest("SAVE20"))

	require.Error(t, err)
	var rej *pricing.Rejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, pricing.ReasonGlobalLimitReached, rej.Reason)
	assert.Nil(t, order)
	assert.False(t, recorded)
	assert.False(t, beginner.tx.committed, "exhausted increment must roll back")
}

func TestOrderService_CreateOrder_UsageCountLookupFailure(t *testing.T) {
	// A failed per-user count is an infrastructure fault, not a
	// business-rule rejection: it must never pass the check silently.
	inst := validInstrument()
	inst.UsageLimitPerUser = intPtr(1)

	instruments := &mockInstrumentRepository{
		getByCodeForUpdateFn: func(ctx context.Context, tx database.TxQuerier, code string) (*model.Instrument, error) {
			return inst, nil
		},
	}
	dbErr := errors.New("connection reset")
	usages := &mockUsageRepository{
		countFn: func(ctx context.Context, q database.TxQuerier, instrumentID, userID string) (int, error) {
			return 0, dbErr
		},
	}

	svc, beginner := newTestOrderService(instruments, usages, &mockOrderRepository{})
	order, err := svc.CreateOrder(context.Background(), validRequest("SAVE20"))

	require.Error(t, err)
	var rej *pricing.Rejection
	assert.False(t, errors.As(err, &rej), "infrastructure faults are not rejections")
	assert.True(t, errors.Is(err, dbErr))
	assert.Nil(t, order)
	assert.False(t, beginner.tx.committed)
}

func TestOrderService_PriceOrder_Quote(t *testing.T) {
	inst := validInstrument()
	instruments := &mockInstrumentRepository{
		getByCodeFn: func(ctx context.Context, code string) (*model.Instrument, error) {
			assert.Equal(t, "SAVE20", code)
			return inst, nil
		},
		incrementUsageFn: func(ctx context.Context, tx database.TxQuerier, id string) error {
			t.Fatal("quote must not increment usage")
			return nil
		},
	}
	usages := &mockUsageRepository{
		recordFn: func(ctx context.Context, tx database.TxQuerier, rec *model.UsageRecord) error {
			t.Fatal("quote must not record usage")
			return nil
		},
	}

	svc, _ := newTestOrderService(instruments, usages, &mockOrderRepository{})
	result, err := svc.PriceOrder(context.Background(), validRequest("save20"))

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Subtotal.Equal(dec("100")))
	assert.True(t, result.DiscountAmount.Equal(dec("20")))
	assert.True(t, result.Total.Equal(dec("80")))
}

func TestOrderService_PriceOrder_UnknownCode(t *testing.T) {
	instruments := &mockInstrumentRepository{
		getByCodeFn: func(ctx context.Context, code string) (*model.Instrument, error) {
			return nil, nil // not found
		},
	}

	svc, _ := newTestOrderService(instruments, &mockUsageRepository{}, &mockOrderRepository{})
	result, err := svc.PriceOrder(context.Background(), validRequest("GHOST"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInstrumentNotFound))
	assert.Nil(t, result)
}

func TestOrderService_PriceOrder_PerUserLimitReached(t *testing.T) {
	// Global headroom remains but the user already used the code once.
	inst := validInstrument()
	inst.UsageLimit = intPtr(100)
	inst.UsedCount = 2
	inst.UsageLimitPerUser = intPtr(1)

	instruments := &mockInstrumentRepository{
		getByCodeFn: func(ctx context.Context, code string) (*model.Instrument, error) {
			return inst, nil
		},
	}
	usages := &mockUsageRepository{
		countFn: func(ctx context.Context, q database.TxQuerier, instrumentID, userID string) (int, error) {
			return 1, nil
		},
	}

	svc, _ := newTestOrderService(instruments, usages, &mockOrderRepository{})
	result, err := svc.PriceOrder(context.Background(), validRequest("SAVE20"))

	require.Error(t, err)
	var rej *pricing.Rejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, pricing.ReasonPerUserLimitReached, rej.Reason)
	assert.Nil(t, result)
}

func TestOrderService_PriceOrder_NewUsersOnlyConsultsOrderHistory(t *testing.T) {
	inst := validInstrument()
	inst.NewUsersOnly = true

	instruments := &mockInstrumentRepository{
		getByCodeFn: func(ctx context.Context, code string) (*model.Instrument, error) {
			return inst, nil
		},
	}
	orders := &mockOrderRepository{
		countDeliveredFn: func(ctx context.Context, q database.TxQuerier, userID string) (int, error) {
			assert.Equal(t, "user_001", userID)
			return 2, nil
		},
	}

	svc, _ := newTestOrderService(instruments, &mockUsageRepository{}, orders)
	_, err := svc.PriceOrder(context.Background(), validRequest("SAVE20"))

	require.Error(t, err)
	var rej *pricing.Rejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, pricing.ReasonNewUsersOnly, rej.Reason)
}

func TestOrderService_UpdateOrderStatus(t *testing.T) {
	var gotID string
	var gotStatus model.OrderStatus
	orders := &mockOrderRepository{
		updateStatusFn: func(ctx context.Context, id string, status model.OrderStatus) error {
			gotID = id
			gotStatus = status
			return nil
		},
	}

	svc, _ := newTestOrderService(&mockInstrumentRepository{}, &mockUsageRepository{}, orders)
	err := svc.UpdateOrderStatus(context.Background(), "order-1", model.StatusDelivered)

	require.NoError(t, err)
	assert.Equal(t, "order-1", gotID)
	assert.Equal(t, model.StatusDelivered, gotStatus)
}

func TestOrderService_UpdateOrderStatus_NotFound(t *testing.T) {
	orders := &mockOrderRepository{
		updateStatusFn: func(ctx context.Context, id string, status model.OrderStatus) error {
			return ErrOrderNotFound
		},
	}

	svc, _ := newTestOrderService(&mockInstrumentRepository{}, &mockUsageRepository{}, orders)
	err := svc.UpdateOrderStatus(context.Background(), "ghost", model.StatusCancelled)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOrderNotFound))
}

func TestOrderService_UpdateOrderStatus_EmptyID(t *testing.T) {
	svc, _ := newTestOrderService(&mockInstrumentRepository{}, &mockUsageRepository{}, &mockOrderRepository{})

	err := svc.UpdateOrderStatus(context.Background(), "", model.StatusDelivered)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}

func TestOrderService_PriceOrder_NilRequest(t *testing.T) {
	svc, _ := newTestOrderService(&mockInstrumentRepository{}, &mockUsageRepository{}, &mockOrderRepository{})

	result, err := svc.PriceOrder(context.Background(), nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRequest))
	assert.Nil(t, result)
}
