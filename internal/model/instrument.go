package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// InstrumentKind distinguishes the two discount instrument variants.
type InstrumentKind string

const (
	KindCoupon    InstrumentKind = "COUPON"
	KindPromotion InstrumentKind = "PROMOTION"
)

// DiscountType enumerates the supported discount strategies.
type DiscountType string

const (
	DiscountPercentage  DiscountType = "PERCENTAGE"
	DiscountFixedAmount DiscountType = "FIXED_AMOUNT"
	DiscountBuyOneFree  DiscountType = "BUY_N_GET_1_FREE"
	DiscountFreeShip    DiscountType = "FREE_SHIPPING"
)

// OrderType enumerates how an order is fulfilled.
type OrderType string

const (
	OrderDineIn   OrderType = "DINE_IN"
	OrderTakeaway OrderType = "TAKEAWAY"
	OrderDelivery OrderType = "DELIVERY"
)

// Instrument is a coupon or promotion: the unit of discount configuration.
// Codes are stored normalized to upper case; NormalizeCode must be applied
// before any lookup.
type Instrument struct {
	ID          string         `json:"id"`
	Code        string         `json:"code"`
	Kind        InstrumentKind `json:"kind"`
	Description string         `json:"description"`

	DiscountType DiscountType     `json:"discount_type"`
	Value        decimal.Decimal  `json:"value"`
	MaxDiscount  *decimal.Decimal `json:"max_discount,omitempty"`

	MinPurchaseAmount decimal.Decimal `json:"min_purchase_amount"`
	ValidFrom         time.Time       `json:"valid_from"`
	ValidUntil        time.Time       `json:"valid_until"`

	UsageLimit        *int `json:"usage_limit,omitempty"`
	UsedCount         int  `json:"used_count"`
	UsageLimitPerUser *int `json:"usage_limit_per_user,omitempty"`

	// Allow-lists; empty means no restriction.
	Restaurants []string    `json:"restaurants,omitempty"`
	OrderTypes  []OrderType `json:"order_types,omitempty"`

	// Promotion-only applicability filters.
	DaysAllowed    []time.Weekday `json:"days_allowed,omitempty"`
	WindowStart    string         `json:"window_start,omitempty"` // "HH:MM", inclusive
	WindowEnd      string         `json:"window_end,omitempty"`   // "HH:MM", inclusive
	Dishes         []string       `json:"dishes,omitempty"`
	DishCategories []string       `json:"dish_categories,omitempty"`
	DishTypes      []string       `json:"dish_types,omitempty"`

	NewUsersOnly bool `json:"new_users_only"`
	IsActive     bool `json:"is_active"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"-"`
}

// NormalizeCode converts a user-supplied code to its stored form.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// RemainingUses returns how many global uses are left, or nil when unlimited.
func (i *Instrument) RemainingUses() *int {
	if i.UsageLimit == nil {
		return nil
	}
	left := *i.UsageLimit - i.UsedCount
	if left < 0 {
		left = 0
	}
	return &left
}

// UsageRecord is durable evidence that a user applied an instrument to an
// order. The order ID is unique: an order records usage for at most one
// instrument.
type UsageRecord struct {
	ID              string          `json:"id"`
	InstrumentID    string          `json:"instrument_id"`
	UserID          string          `json:"user_id"`
	OrderID         string          `json:"order_id"`
	DiscountApplied decimal.Decimal `json:"discount_applied"`
	UsedAt          time.Time       `json:"used_at"`
}

// CreateCouponRequest is the DTO for POST /api/coupons.
type CreateCouponRequest struct {
	Code              string           `json:"code" validate:"required,notblank,min=4,max=20"`
	Description       string           `json:"description" validate:"required,notblank,max=200"`
	DiscountType      DiscountType     `json:"discount_type" validate:"required,oneof=PERCENTAGE FIXED_AMOUNT"`
	Value             *decimal.Decimal `json:"value" validate:"required"`
	MaxDiscount       *decimal.Decimal `json:"max_discount"`
	MinPurchaseAmount *decimal.Decimal `json:"min_purchase_amount"`
	ValidFrom         time.Time        `json:"valid_from"`
	ValidUntil        time.Time        `json:"valid_until" validate:"required"`
	UsageLimit        *int             `json:"usage_limit" validate:"omitempty,gte=1"`
	UsageLimitPerUser *int             `json:"usage_limit_per_user" validate:"omitempty,gte=1"`
	Restaurants       []string         `json:"restaurants"`
	OrderTypes        []OrderType      `json:"order_types" validate:"dive,oneof=DINE_IN TAKEAWAY DELIVERY"`
	NewUsersOnly      bool             `json:"new_users_only"`
	CreatedBy         string           `json:"created_by" validate:"required,notblank,max=255"`
}

// CreatePromotionRequest is the DTO for POST /api/promotions.
type CreatePromotionRequest struct {
	Code              string           `json:"code" validate:"required,notblank,min=4,max=20"`
	Description       string           `json:"description" validate:"required,notblank,max=500"`
	DiscountType      DiscountType     `json:"discount_type" validate:"required,oneof=PERCENTAGE FIXED_AMOUNT BUY_N_GET_1_FREE FREE_SHIPPING"`
	Value             *decimal.Decimal `json:"value"`
	MaxDiscount       *decimal.Decimal `json:"max_discount"`
	MinPurchaseAmount *decimal.Decimal `json:"min_purchase_amount"`
	ValidFrom         time.Time        `json:"valid_from"`
	ValidUntil        time.Time        `json:"valid_until" validate:"required"`
	UsageLimit        *int             `json:"usage_limit" validate:"omitempty,gte=1"`
	UsageLimitPerUser *int             `json:"usage_limit_per_user" validate:"omitempty,gte=1"`
	Restaurants       []string         `json:"restaurants"`
	OrderTypes        []OrderType      `json:"order_types" validate:"dive,oneof=DINE_IN TAKEAWAY DELIVERY"`
	DaysAllowed       []time.Weekday   `json:"days_allowed" validate:"dive,gte=0,lte=6"`
	WindowStart       string           `json:"window_start" validate:"omitempty,timeofday"`
	WindowEnd         string           `json:"window_end" validate:"omitempty,timeofday"`
	Dishes            []string         `json:"dishes"`
	DishCategories    []string         `json:"dish_categories"`
	DishTypes         []string         `json:"dish_types"`
	NewUsersOnly      bool             `json:"new_users_only"`
	CreatedBy         string           `json:"created_by" validate:"required,notblank,max=255"`
}

// InstrumentResponse is the API response DTO for GET /api/instruments/:code.
type InstrumentResponse struct {
	Instrument
	RemainingUses *int `json:"remaining_uses,omitempty"`
}
