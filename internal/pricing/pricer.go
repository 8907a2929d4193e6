package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/gourmet-house/pricing-service/internal/model"
)

// Price computes the pricing result for a cart, applying inst when one is
// supplied. It is a pure computation: no clock reads, no repository calls,
// no mutation. A nil return from Evaluate is required before any discount
// is computed; an ineligible instrument fails the whole pricing operation.
func Price(lines []model.CartLine, inst *model.Instrument, ctx EvalContext) (model.PricingResult, *Rejection) {
	if rej := validateCart(lines); rej != nil {
		return model.PricingResult{}, rej
	}

	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.ExtendedPrice())
	}

	result := model.PricingResult{
		Subtotal:       subtotal.Round(2),
		DiscountAmount: decimal.Zero,
		Total:          subtotal.Round(2),
	}
	if inst == nil {
		return result, nil
	}

	ctx.Subtotal = subtotal
	if rej := Evaluate(inst, ctx); rej != nil {
		return model.PricingResult{}, rej
	}

	discount, freeDelivery := computeDiscount(inst, lines, subtotal)

	// The discount can never exceed or negate the subtotal.
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	discount = discount.Round(2)

	result.DiscountAmount = discount
	result.Total = subtotal.Sub(discount).Round(2)
	result.AppliedInstrumentID = &inst.ID
	result.FreeDelivery = freeDelivery
	return result, nil
}

// validateCart rejects empty carts and lines with non-positive quantity or
// unit price.
func validateCart(lines []model.CartLine) *Rejection {
	if len(lines) == 0 {
		return reject(ReasonInvalidCart, "cart must contain at least one line")
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			return reject(ReasonInvalidCart, "line quantity must be greater than zero")
		}
		if !line.UnitPrice.IsPositive() {
			return reject(ReasonInvalidCart, "line unit price must be greater than zero")
		}
	}
	return nil
}
