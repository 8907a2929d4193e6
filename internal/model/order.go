package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus tracks an order through its lifecycle. Only StatusDelivered
// matters to the pricing core: it is the terminal state used for the
// new-users-only check.
type OrderStatus string

const (
	StatusCreated   OrderStatus = "CREATED"
	StatusPreparing OrderStatus = "PREPARING"
	StatusOnTheWay  OrderStatus = "ON_THE_WAY"
	StatusDelivered OrderStatus = "DELIVERED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// CartLine is one line of a cart: a dish, how many, and the unit price the
// caller resolved for it. Category and type feed promotion applicability
// filters.
type CartLine struct {
	DishID       string          `json:"dish_id" validate:"required,notblank"`
	DishCategory string          `json:"dish_category"`
	DishType     string          `json:"dish_type"`
	Quantity     int             `json:"quantity" validate:"required,gte=1"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
}

// ExtendedPrice returns quantity times unit price.
func (l CartLine) ExtendedPrice() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// PricingResult is the outcome of pricing a cart. DiscountAmount is always
// within [0, Subtotal]; delivery fee, tax and tip are applied by the caller.
type PricingResult struct {
	Subtotal            decimal.Decimal `json:"subtotal"`
	DiscountAmount      decimal.Decimal `json:"discount_amount"`
	Total               decimal.Decimal `json:"total"`
	AppliedInstrumentID *string         `json:"applied_instrument_id,omitempty"`
	FreeDelivery        bool            `json:"free_delivery"`
}

// Order is the persisted host record a pricing result is attached to.
type Order struct {
	ID                  string          `json:"id"`
	UserID              string          `json:"user_id"`
	RestaurantID        string          `json:"restaurant_id"`
	OrderType           OrderType       `json:"order_type"`
	Lines               []CartLine      `json:"lines"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	Discount            decimal.Decimal `json:"discount"`
	Total               decimal.Decimal `json:"total"`
	AppliedInstrumentID *string         `json:"applied_instrument_id,omitempty"`
	FreeDelivery        bool            `json:"free_delivery"`
	Status              OrderStatus     `json:"status"`
	CreatedAt           time.Time       `json:"created_at"`
}

// PriceOrderRequest is the DTO for POST /api/orders/quote and POST /api/orders.
type PriceOrderRequest struct {
	UserID       string     `json:"user_id" validate:"required,notblank,max=255"`
	RestaurantID string     `json:"restaurant_id" validate:"required,notblank,max=255"`
	OrderType    OrderType  `json:"order_type" validate:"required,oneof=DINE_IN TAKEAWAY DELIVERY"`
	Code         string     `json:"code" validate:"omitempty,max=20"`
	Lines        []CartLine `json:"lines" validate:"required,min=1,dive"`
}

// UpdateOrderStatusRequest is the DTO for PATCH /api/orders/:id/status.
type UpdateOrderStatusRequest struct {
	Status OrderStatus `json:"status" validate:"required,oneof=CREATED PREPARING ON_THE_WAY DELIVERED CANCELLED"`
}

// OrderResponse is the API response DTO for POST /api/orders.
type OrderResponse struct {
	Order   Order         `json:"order"`
	Pricing PricingResult `json:"pricing"`
}
