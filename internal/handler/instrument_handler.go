package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/gourmet-house/pricing-service/internal/model"
	"github.com/gourmet-house/pricing-service/internal/service"
)

// InstrumentServiceInterface defines the interface for instrument business logic.
type InstrumentServiceInterface interface {
	CreateCoupon(ctx context.Context, req *model.CreateCouponRequest) (*model.Instrument, error)
	CreatePromotion(ctx context.Context, req *model.CreatePromotionRequest) (*model.Instrument, error)
	GetByCode(ctx context.Context, code string) (*model.InstrumentResponse, error)
	ListActivePromotions(ctx context.Context, restaurantID string) ([]model.Instrument, error)
	DeleteByCode(ctx context.Context, code string) (bool, error)
}

// InstrumentHandler handles HTTP requests for instrument administration.
type InstrumentHandler struct {
	service   InstrumentServiceInterface
	validator *validator.Validate
}

// NewInstrumentHandler creates a new InstrumentHandler with the given service and validator.
func NewInstrumentHandler(svc InstrumentServiceInterface, v *validator.Validate) *InstrumentHandler {
	return &InstrumentHandler{service: svc, validator: v}
}

// CreateCoupon handles POST /api/coupons requests.
func (h *InstrumentHandler) CreateCoupon(c *fiber.Ctx) error {
	var req model.CreateCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	inst, err := h.service.CreateCoupon(c.Context(), &req)
	if err != nil {
		return h.createError(c, err, req.Code)
	}

	log.Info().
		Str("code", inst.Code).
		Str("discount_type", string(inst.DiscountType)).
		Msg("coupon created")
	return c.Status(fiber.StatusCreated).JSON(inst)
}

// CreatePromotion handles POST /api/promotions requests.
func (h *InstrumentHandler) CreatePromotion(c *fiber.Ctx) error {
	var req model.CreatePromotionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	inst, err := h.service.CreatePromotion(c.Context(), &req)
	if err != nil {
		return h.createError(c, err, req.Code)
	}

	log.Info().
		Str("code", inst.Code).
		Str("discount_type", string(inst.DiscountType)).
		Msg("promotion created")
	return c.Status(fiber.StatusCreated).JSON(inst)
}

// createError maps instrument creation failures to HTTP responses.
func (h *InstrumentHandler) createError(c *fiber.Ctx, err error, code string) error {
	if errors.Is(err, service.ErrInstrumentExists) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "an instrument with this code already exists"})
	}
	if errors.Is(err, service.ErrInvalidRequest) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	log.Error().Err(err).Str("code", code).Msg("failed to create instrument")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
}

// GetInstrument handles GET /api/instruments/:code requests.
func (h *InstrumentHandler) GetInstrument(c *fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: code is required"})
	}

	inst, err := h.service.GetByCode(c.Context(), code)
	if err != nil {
		if errors.Is(err, service.ErrInstrumentNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "instrument not found"})
		}
		log.Error().Err(err).Str("code", code).Msg("failed to get instrument")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
	return c.JSON(inst)
}

// DeleteInstrument handles DELETE /api/instruments/:code requests.
// Instruments with recorded usage are deactivated; unused ones are removed.
func (h *InstrumentHandler) DeleteInstrument(c *fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: code is required"})
	}

	soft, err := h.service.DeleteByCode(c.Context(), code)
	if err != nil {
		if errors.Is(err, service.ErrInstrumentNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "instrument not found"})
		}
		log.Error().Err(err).Str("code", code).Msg("failed to delete instrument")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	result := "deleted"
	if soft {
		result = "deactivated"
	}
	log.Info().Str("code", code).Str("result", result).Msg("instrument removed")
	return c.JSON(fiber.Map{"result": result})
}

// ListPromotions handles GET /api/restaurants/:id/promotions requests.
func (h *InstrumentHandler) ListPromotions(c *fiber.Ctx) error {
	restaurantID := c.Params("id")
	if restaurantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: restaurant id is required"})
	}

	promotions, err := h.service.ListActivePromotions(c.Context(), restaurantID)
	if err != nil {
		log.Error().Err(err).Str("restaurant_id", restaurantID).Msg("failed to list promotions")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
	return c.JSON(fiber.Map{"promotions": promotions})
}
