package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"storefront/internal/middleware"
	"storefront/internal/usecase"
)

type AdminProductHandler struct {
	uc *usecase.AdminProductUsecase
}

func NewAdminProductHandler(uc *usecase.AdminProductUsecase) *AdminProductHandler {
	return &AdminProductHandler{uc: uc}
}

// 作成・更新共通。priceは "1200.00" でも 1200 でも受け付ける。
type ProductRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int64           `json:"stock"`
	Image       string          `json:"image"`
}

func (r ProductRequest) input() usecase.AdminProductInput {
	return usecase.AdminProductInput{
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Stock:       r.Stock,
		Image:       r.Image,
	}
}

type SuccessResponse struct {
	Message string `json:"message"`
}

func (h *AdminProductHandler) RegisterRoutes(g *echo.Group, authMW echo.MiddlewareFunc) {
	admin := g.Group("/admin", authMW, middleware.AdminRoleGuard())

	admin.POST("/products", h.create)
	admin.PUT("/products/:id", h.update)
	admin.DELETE("/products/:id", h.delete)
}

func (h *AdminProductHandler) create(c echo.Context) error {
	actorID, ok := middleware.UserID(c)
	if !ok {
		return writeError(c, usecase.ErrUnauthorized)
	}

	var req ProductRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "body", "invalid body")
	}

	out, err := h.uc.Create(c.Request().Context(), actorID, req.input())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *AdminProductHandler) update(c echo.Context) error {
	actorID, ok := middleware.UserID(c)
	if !ok {
		return writeError(c, usecase.ErrUnauthorized)
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "id", "invalid id")
	}

	var req ProductRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "body", "invalid body")
	}

	out, err := h.uc.Update(c.Request().Context(), actorID, id, req.input())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminProductHandler) delete(c echo.Context) error {
	actorID, ok := middleware.UserID(c)
	if !ok {
		return writeError(c, usecase.ErrUnauthorized)
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "id", "invalid id")
	}

	if err := h.uc.Delete(c.Request().Context(), actorID, id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}
