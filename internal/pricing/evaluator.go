package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/gourmet-house/pricing-service/internal/model"
)

// EvalContext carries everything eligibility evaluation needs besides the
// instrument itself. Counts are pre-fetched by the caller so Evaluate stays
// deterministic: same instrument, same context, same verdict.
type EvalContext struct {
	Now          time.Time
	UserID       string
	RestaurantID string
	OrderType    model.OrderType
	Subtotal     decimal.Decimal

	// UserUsageCount is how many usage records exist for (instrument, user).
	// Only consulted when the instrument sets a per-user limit.
	UserUsageCount int
	// DeliveredOrders is how many orders the user has in the DELIVERED
	// state. Only consulted when the instrument is new-users-only.
	DeliveredOrders int
}

// Evaluate decides whether inst may be applied in ctx. It returns nil when
// the instrument is eligible, or a *Rejection naming the first failed check.
// Checks run in a fixed order; the first failure short-circuits.
func Evaluate(inst *model.Instrument, ctx EvalContext) *Rejection {
	if !inst.IsActive {
		return reject(ReasonInstrumentInactive, "this code is no longer active")
	}
	if ctx.Now.Before(inst.ValidFrom) {
		return reject(ReasonNotYetValid, "this code is not valid yet")
	}
	if ctx.Now.After(inst.ValidUntil) {
		return reject(ReasonExpired, "this code has expired")
	}
	if inst.UsageLimit != nil && inst.UsedCount >= *inst.UsageLimit {
		return reject(ReasonGlobalLimitReached, "this code has reached its usage limit")
	}
	if ctx.Subtotal.LessThan(inst.MinPurchaseAmount) {
		return rejectBelowMinimum(inst.MinPurchaseAmount)
	}
	if inst.UsageLimitPerUser != nil && ctx.UserUsageCount >= *inst.UsageLimitPerUser {
		return reject(ReasonPerUserLimitReached, "you have already used this code the maximum number of times")
	}
	if len(inst.Restaurants) > 0 && ctx.RestaurantID != "" && !contains(inst.Restaurants, ctx.RestaurantID) {
		return reject(ReasonRestaurantNotApplicable, "this code is not valid at this restaurant")
	}
	if inst.NewUsersOnly && ctx.DeliveredOrders > 0 {
		return reject(ReasonNewUsersOnly, "this code is for new customers only")
	}
	if inst.Kind == model.KindPromotion {
		if rej := checkSchedule(inst, ctx.Now); rej != nil {
			return rej
		}
	}
	if len(inst.OrderTypes) > 0 && ctx.OrderType != "" && !containsOrderType(inst.OrderTypes, ctx.OrderType) {
		return reject(ReasonOrderTypeNotApplicable, "this code is not valid for this order type")
	}
	return nil
}

// checkSchedule enforces a promotion's day-of-week allow-list and
// time-of-day window. The window is inclusive on both ends and never spans
// midnight.
func checkSchedule(inst *model.Instrument, now time.Time) *Rejection {
	if len(inst.DaysAllowed) > 0 && !containsWeekday(inst.DaysAllowed, now.Weekday()) {
		return reject(ReasonDayNotApplicable, "this promotion does not apply today")
	}
	if inst.WindowStart != "" && inst.WindowEnd != "" {
		start, okS := minuteOfDay(inst.WindowStart)
		end, okE := minuteOfDay(inst.WindowEnd)
		if okS && okE {
			current := now.Hour()*60 + now.Minute()
			if current < start || current > end {
				return reject(ReasonOutsideTimeWindow, "this promotion does not apply at this time")
			}
		}
	}
	return nil
}

// minuteOfDay parses an "HH:MM" string into minutes since midnight.
func minuteOfDay(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsOrderType(list []model.OrderType, v model.OrderType) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsWeekday(list []time.Weekday, v time.Weekday) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
