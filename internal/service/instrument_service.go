package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gourmet-house/pricing-service/internal/model"
)

// InstrumentService provides business logic for managing discount
// instruments: creation, lookup, listing and retirement.
type InstrumentService struct {
	instruments InstrumentRepositoryInterface
	usages      UsageRepositoryInterface
	now         func() time.Time
}

// NewInstrumentService creates a new InstrumentService with the given repositories.
func NewInstrumentService(instruments InstrumentRepositoryInterface, usages UsageRepositoryInterface) *InstrumentService {
	return &InstrumentService{
		instruments: instruments,
		usages:      usages,
		now:         time.Now,
	}
}

// CreateCoupon creates a COUPON instrument from the request.
// Returns ErrInstrumentExists if the code is taken, ErrInvalidRequest for
// cross-field violations the DTO validator cannot express.
func (s *InstrumentService) CreateCoupon(ctx context.Context, req *model.CreateCouponRequest) (*model.Instrument, error) {
	if req == nil || req.Value == nil {
		return nil, ErrInvalidRequest
	}

	inst := &model.Instrument{
		ID:                uuid.New().String(),
		Code:              model.NormalizeCode(req.Code),
		Kind:              model.KindCoupon,
		Description:       req.Description,
		DiscountType:      req.DiscountType,
		Value:             *req.Value,
		MaxDiscount:       req.MaxDiscount,
		MinPurchaseAmount: valueOrZero(req.MinPurchaseAmount),
		ValidFrom:         req.ValidFrom,
		ValidUntil:        req.ValidUntil,
		UsageLimit:        req.UsageLimit,
		UsageLimitPerUser: req.UsageLimitPerUser,
		Restaurants:       req.Restaurants,
		OrderTypes:        req.OrderTypes,
		NewUsersOnly:      req.NewUsersOnly,
		IsActive:          true,
		CreatedBy:         req.CreatedBy,
	}
	if err := s.prepare(inst); err != nil {
		return nil, err
	}
	if err := s.instruments.Insert(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// CreatePromotion creates a PROMOTION instrument from the request.
func (s *InstrumentService) CreatePromotion(ctx context.Context, req *model.CreatePromotionRequest) (*model.Instrument, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}
	// Value is mandatory for amount-bearing discount types only.
	value := decimal.Zero
	if req.Value != nil {
		value = *req.Value
	} else if req.DiscountType == model.DiscountPercentage || req.DiscountType == model.DiscountFixedAmount {
		return nil, fmt.Errorf("%w: value is required for %s", ErrInvalidRequest, req.DiscountType)
	}
	if (req.WindowStart == "") != (req.WindowEnd == "") {
		return nil, fmt.Errorf("%w: time window requires both start and end", ErrInvalidRequest)
	}

	inst := &model.Instrument{
		ID:                uuid.New().String(),
		Code:              model.NormalizeCode(req.Code),
		Kind:              model.KindPromotion,
		Description:       req.Description,
		DiscountType:      req.DiscountType,
		Value:             value,
		MaxDiscount:       req.MaxDiscount,
		MinPurchaseAmount: valueOrZero(req.MinPurchaseAmount),
		ValidFrom:         req.ValidFrom,
		ValidUntil:        req.ValidUntil,
		UsageLimit:        req.UsageLimit,
		UsageLimitPerUser: req.UsageLimitPerUser,
		Restaurants:       req.Restaurants,
		OrderTypes:        req.OrderTypes,
		DaysAllowed:       req.DaysAllowed,
		WindowStart:       req.WindowStart,
		WindowEnd:         req.WindowEnd,
		Dishes:            req.Dishes,
		DishCategories:    req.DishCategories,
		DishTypes:         req.DishTypes,
		NewUsersOnly:      req.NewUsersOnly,
		IsActive:          true,
		CreatedBy:         req.CreatedBy,
	}
	if err := s.prepare(inst); err != nil {
		return nil, err
	}
	if err := s.instruments.Insert(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// prepare applies defaults and cross-field validation shared by both kinds.
func (s *InstrumentService) prepare(inst *model.Instrument) error {
	if inst.ValidFrom.IsZero() {
		inst.ValidFrom = s.now()
	}
	if !inst.ValidUntil.After(inst.ValidFrom) {
		return fmt.Errorf("%w: valid_until must be after valid_from", ErrInvalidRequest)
	}
	switch inst.DiscountType {
	case model.DiscountPercentage:
		if inst.Value.IsNegative() || inst.Value.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("%w: percentage value must be between 0 and 100", ErrInvalidRequest)
		}
	case model.DiscountFixedAmount:
		if inst.Value.IsNegative() {
			return fmt.Errorf("%w: fixed amount must not be negative", ErrInvalidRequest)
		}
	}
	if inst.MaxDiscount != nil && inst.MaxDiscount.IsNegative() {
		return fmt.Errorf("%w: max_discount must not be negative", ErrInvalidRequest)
	}
	if inst.MinPurchaseAmount.IsNegative() {
		return fmt.Errorf("%w: min_purchase_amount must not be negative", ErrInvalidRequest)
	}
	return nil
}

// GetByCode retrieves an instrument by code with its remaining-uses summary.
// Returns ErrInstrumentNotFound if the code resolves to nothing.
func (s *InstrumentService) GetByCode(ctx context.Context, code string) (*model.InstrumentResponse, error) {
	inst, err := s.instruments.GetByCode(ctx, model.NormalizeCode(code))
	if err != nil {
		return nil, fmt.Errorf("get instrument: %w", err)
	}
	if inst == nil {
		return nil, ErrInstrumentNotFound
	}
	return &model.InstrumentResponse{
		Instrument:    *inst,
		RemainingUses: inst.RemainingUses(),
	}, nil
}

// ListActivePromotions returns promotions currently applicable at a restaurant.
func (s *InstrumentService) ListActivePromotions(ctx context.Context, restaurantID string) ([]model.Instrument, error) {
	promotions, err := s.instruments.ListActivePromotions(ctx, restaurantID, s.now())
	if err != nil {
		return nil, fmt.Errorf("list promotions: %w", err)
	}
	return promotions, nil
}

// DeleteByCode retires an instrument. Instruments with recorded usage are
// soft-deleted (deactivated) so usage history keeps a valid reference;
// never-used instruments are removed outright. Reports whether the delete
// was soft.
func (s *InstrumentService) DeleteByCode(ctx context.Context, code string) (bool, error) {
	inst, err := s.instruments.GetByCode(ctx, model.NormalizeCode(code))
	if err != nil {
		return false, fmt.Errorf("get instrument: %w", err)
	}
	if inst == nil {
		return false, ErrInstrumentNotFound
	}

	used, err := s.usages.HasUsage(ctx, inst.ID)
	if err != nil {
		return false, fmt.Errorf("check usage: %w", err)
	}
	if used {
		if err := s.instruments.Deactivate(ctx, inst.ID); err != nil {
			return false, fmt.Errorf("deactivate instrument: %w", err)
		}
		return true, nil
	}
	if err := s.instruments.Delete(ctx, inst.ID); err != nil {
		return false, fmt.Errorf("delete instrument: %w", err)
	}
	return false, nil
}

func valueOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
