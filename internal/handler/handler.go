package handler

import (
	"errors"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/gourmet-house/pricing-service/internal/pricing"
)

// formatValidationError converts validator errors into the API's
// "invalid request: <field> ..." message format. Only the first violation
// is reported.
func formatValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			field := snakeCase(fe.Field())
			switch fe.Tag() {
			case "required":
				return "invalid request: " + field + " is required"
			case "notblank":
				return "invalid request: " + field + " cannot be whitespace only"
			case "min":
				return "invalid request: " + field + " is below the minimum length or count"
			case "max":
				return "invalid request: " + field + " exceeds the maximum length"
			case "gte":
				return "invalid request: " + field + " is below the minimum value"
			case "lte":
				return "invalid request: " + field + " is above the maximum value"
			case "oneof":
				return "invalid request: " + field + " has an unsupported value"
			case "timeofday":
				return "invalid request: " + field + " must be in HH:MM format"
			default:
				return "invalid request: " + field + " is invalid"
			}
		}
	}
	return "invalid request"
}

// snakeCase converts an exported Go field name to its JSON form. A run of
// capitals ("ID" in UserID) stays one word.
func snakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (!unicode.IsUpper(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// rejectionResponse maps a business-rule rejection to 422 with the reason
// code alongside the human-readable message. Infrastructure errors never
// reach this path; they are logged and answered with a plain 500 so a
// database outage is not reported as an invalid code.
func rejectionResponse(c *fiber.Ctx, rej *pricing.Rejection) error {
	return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
		"error":  rej.Message,
		"reason": string(rej.Reason),
	})
}
