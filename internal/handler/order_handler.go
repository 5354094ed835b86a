package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"storefront/internal/middleware"
	"storefront/internal/usecase"
)

const headerIdempotencyKey = "X-Idempotency-Key"

type OrderHandler struct {
	uc *usecase.OrderUsecase
}

func NewOrderHandler(uc *usecase.OrderUsecase) *OrderHandler {
	return &OrderHandler{uc: uc}
}

// 価格は受け取らない（サーバー側で決める）
type OrderCreateRequest struct {
	Items []usecase.CartLine `json:"items"`
}

func (h *OrderHandler) RegisterRoutes(g *echo.Group, authMW echo.MiddlewareFunc) {
	orders := g.Group("/orders", authMW)

	orders.POST("", h.create)
	orders.GET("/my-orders", h.list)
}

func (h *OrderHandler) create(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return writeError(c, usecase.ErrUnauthorized)
	}

	var req OrderCreateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "body", "invalid body")
	}

	//二重送信防止キーはヘッダーから受け取る
	out, err := h.uc.PlaceOrder(c.Request().Context(), userID, usecase.PlaceOrderInput{
		Items:          req.Items,
		IdempotencyKey: c.Request().Header.Get(headerIdempotencyKey),
	})
	if err != nil {
		return writeError(c, err)
	}

	if out.Replayed {
		return c.JSON(http.StatusOK, out)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *OrderHandler) list(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return writeError(c, usecase.ErrUnauthorized)
	}

	out, err := h.uc.ListMyOrders(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
