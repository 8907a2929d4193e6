package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/gourmet-house/pricing-service/internal/model"
	"github.com/gourmet-house/pricing-service/internal/pricing"
	"github.com/gourmet-house/pricing-service/internal/service"
)

// OrderServiceInterface defines the interface for order business logic.
type OrderServiceInterface interface {
	PriceOrder(ctx context.Context, req *model.PriceOrderRequest) (*model.PricingResult, error)
	CreateOrder(ctx context.Context, req *model.PriceOrderRequest) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) error
}

// OrderHandler handles HTTP requests for quoting and creating orders.
type OrderHandler struct {
	service   OrderServiceInterface
	validator *validator.Validate
}

// NewOrderHandler creates a new OrderHandler with the given service and validator.
func NewOrderHandler(svc OrderServiceInterface, v *validator.Validate) *OrderHandler {
	return &OrderHandler{service: svc, validator: v}
}

// QuoteOrder handles POST /api/orders/quote requests. It prices the cart
// without persisting anything.
func (h *OrderHandler) QuoteOrder(c *fiber.Ctx) error {
	req, err := h.parseRequest(c)
	if req == nil {
		return err
	}

	result, err := h.service.PriceOrder(c.Context(), req)
	if err != nil {
		return h.pricingError(c, err, req)
	}

	return c.JSON(result)
}

// CreateOrder handles POST /api/orders requests. It prices the cart,
// persists the order and records instrument usage in one transaction.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	req, err := h.parseRequest(c)
	if req == nil {
		return err
	}

	order, err := h.service.CreateOrder(c.Context(), req)
	if err != nil {
		return h.pricingError(c, err, req)
	}

	log.Info().
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Str("order_id", order.ID).
		Str("user_id", order.UserID).
		Str("total", order.Total.StringFixed(2)).
		Str("discount", order.Discount.StringFixed(2)).
		Msg("order created")

	return c.Status(fiber.StatusCreated).JSON(model.OrderResponse{
		Order: *order,
		Pricing: model.PricingResult{
			Subtotal:            order.Subtotal,
			DiscountAmount:      order.Discount,
			Total:               order.Total,
			AppliedInstrumentID: order.AppliedInstrumentID,
			FreeDelivery:        order.FreeDelivery,
		},
	})
}

// UpdateOrderStatus handles PATCH /api/orders/:id/status requests.
func (h *OrderHandler) UpdateOrderStatus(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: order id is required"})
	}

	var req model.UpdateOrderStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	if err := h.service.UpdateOrderStatus(c.Context(), id, req.Status); err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order not found"})
		}
		log.Error().Err(err).Str("order_id", id).Msg("failed to update order status")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	log.Info().Str("order_id", id).Str("status", string(req.Status)).Msg("order status updated")
	return c.JSON(fiber.Map{"id": id, "status": req.Status})
}

// parseRequest parses and validates the shared quote/create body. A nil
// request means the error response has already been written.
func (h *OrderHandler) parseRequest(c *fiber.Ctx) (*model.PriceOrderRequest, error) {
	var req model.PriceOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}
	return &req, nil
}

// pricingError maps pricing failures to HTTP responses. Business-rule
// rejections get 422 with a reason code; unknown codes get 404;
// everything else is an infrastructure fault and answers 500.
func (h *OrderHandler) pricingError(c *fiber.Ctx, err error, req *model.PriceOrderRequest) error {
	var rej *pricing.Rejection
	if errors.As(err, &rej) {
		return rejectionResponse(c, rej)
	}
	if errors.Is(err, service.ErrInstrumentNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "instrument not found"})
	}
	if errors.Is(err, service.ErrInvalidRequest) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	log.Error().
		Err(err).
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Str("user_id", req.UserID).
		Str("code", req.Code).
		Msg("pricing failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
}
