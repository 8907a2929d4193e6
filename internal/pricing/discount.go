package pricing

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/gourmet-house/pricing-service/internal/model"
)

var hundred = decimal.NewFromInt(100)

// computeDiscount returns the merchandise discount for an eligible
// instrument, before the final subtotal clamp, plus whether the delivery
// fee should be waived.
func computeDiscount(inst *model.Instrument, lines []model.CartLine, subtotal decimal.Decimal) (decimal.Decimal, bool) {
	switch inst.DiscountType {
	case model.DiscountPercentage:
		d := subtotal.Mul(inst.Value).Div(hundred)
		if inst.MaxDiscount != nil && d.GreaterThan(*inst.MaxDiscount) {
			d = *inst.MaxDiscount
		}
		return d, false
	case model.DiscountFixedAmount:
		return inst.Value, false
	case model.DiscountBuyOneFree:
		return buyOneGetOneDiscount(inst, lines), false
	case model.DiscountFreeShip:
		// The waiver applies to the delivery fee, which is owned by the
		// caller; the merchandise subtotal is untouched.
		return decimal.Zero, true
	default:
		return decimal.Zero, false
	}
}

// buyOneGetOneDiscount implements the 2-for-1 rule: among lines matching
// the instrument's dish filters, every two units of a line form a pair and
// one unit of the pair is free. Matching lines are ordered by unit price
// descending and the free units are taken from the head of that order, so
// the discounted unit is always the cheaper one of its pair.
func buyOneGetOneDiscount(inst *model.Instrument, lines []model.CartLine) decimal.Decimal {
	matching := make([]model.CartLine, 0, len(lines))
	for _, line := range lines {
		if appliesToLine(inst, line) {
			matching = append(matching, line)
		}
	}
	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].UnitPrice.GreaterThan(matching[j].UnitPrice)
	})

	pairs := 0
	for _, line := range matching {
		pairs += line.Quantity / 2
	}
	if pairs > len(matching) {
		pairs = len(matching)
	}

	discount := decimal.Zero
	for _, line := range matching[:pairs] {
		discount = discount.Add(line.UnitPrice)
	}
	return discount
}

// appliesToLine checks a cart line against the instrument's dish,
// dish-category and dish-type allow-lists. An instrument with no filters
// applies to every line.
func appliesToLine(inst *model.Instrument, line model.CartLine) bool {
	if len(inst.Dishes) > 0 {
		return contains(inst.Dishes, line.DishID)
	}
	if len(inst.DishCategories) > 0 {
		return line.DishCategory != "" && contains(inst.DishCategories, line.DishCategory)
	}
	if len(inst.DishTypes) > 0 {
		return line.DishType != "" && contains(inst.DishTypes, line.DishType)
	}
	return true
}
