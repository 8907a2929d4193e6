// Package pricing holds the discount eligibility evaluator and the order
// pricer. Everything here is a pure computation over explicit inputs: the
// evaluation timestamp, usage counts and instrument snapshot are passed in
// by the caller, never read from the clock or the database.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Reason identifies why an instrument was rejected for an order.
type Reason string

const (
	ReasonInstrumentNotFound      Reason = "INSTRUMENT_NOT_FOUND"
	ReasonInstrumentInactive      Reason = "INSTRUMENT_INACTIVE"
	ReasonNotYetValid             Reason = "NOT_YET_VALID"
	ReasonExpired                 Reason = "EXPIRED"
	ReasonGlobalLimitReached      Reason = "GLOBAL_LIMIT_REACHED"
	ReasonBelowMinimumPurchase    Reason = "BELOW_MINIMUM_PURCHASE"
	ReasonPerUserLimitReached     Reason = "PER_USER_LIMIT_REACHED"
	ReasonRestaurantNotApplicable Reason = "RESTAURANT_NOT_APPLICABLE"
	ReasonNewUsersOnly            Reason = "NEW_USERS_ONLY"
	ReasonDayNotApplicable        Reason = "DAY_NOT_APPLICABLE"
	ReasonOutsideTimeWindow       Reason = "OUTSIDE_TIME_WINDOW"
	ReasonOrderTypeNotApplicable  Reason = "ORDER_TYPE_NOT_APPLICABLE"
	ReasonInvalidCart             Reason = "INVALID_CART"
)

// Rejection is a business-rule failure. It is an expected outcome of
// evaluation, distinct from infrastructure errors: callers must check for
// it with errors.As and map it to a user-facing message, never to a 500.
type Rejection struct {
	Reason  Reason
	Message string
}

func (r *Rejection) Error() string {
	return r.Message
}

func reject(reason Reason, message string) *Rejection {
	return &Rejection{Reason: reason, Message: message}
}

func rejectBelowMinimum(minimum decimal.Decimal) *Rejection {
	return &Rejection{
		Reason:  ReasonBelowMinimumPurchase,
		Message: fmt.Sprintf("minimum purchase amount is %s", minimum.StringFixed(2)),
	}
}
