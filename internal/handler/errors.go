package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"storefront/internal/logging"
	"storefront/internal/usecase"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Field     string `json:"field,omitempty"`
	ProductID *int64 `json:"product_id,omitempty"`
	Available *int64 `json:"available,omitempty"`
	Requested *int64 `json:"requested,omitempty"`
}

// usecaseのエラーをHTTPステータスとJSONに変換
func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}

	var (
		stockErr *usecase.InsufficientStockError
		notFound *usecase.ProductNotFoundError
		invalid  *usecase.ValidationError
	)

	switch {
	case errors.As(err, &stockErr):
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error:     err.Error(),
			Code:      "insufficient_stock",
			ProductID: &stockErr.ProductID,
			Available: &stockErr.Available,
			Requested: &stockErr.Requested,
		})
	case errors.As(err, &notFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:     err.Error(),
			Code:      "product_not_found",
			ProductID: &notFound.ProductID,
		})
	case errors.As(err, &invalid):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "validation_error", Field: invalid.Field})
	case errors.Is(err, usecase.ErrValidation):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "validation_error"})
	case errors.Is(err, usecase.ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: "unauthorized"})
	case errors.Is(err, usecase.ErrForbidden):
		return c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden", Code: "forbidden"})
	case errors.Is(err, usecase.ErrNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, usecase.ErrInsufficientStock):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "insufficient_stock"})
	case errors.Is(err, usecase.ErrConflict):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "conflict"})
	case errors.Is(err, context.DeadlineExceeded):
		logging.FromContext(c.Request().Context()).Error("request timed out", "error", err)
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "timed out, try again", Code: "timeout"})
	}

	//500 中身は返さない
	logging.FromContext(c.Request().Context()).Error("internal error", "error", err)
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: "internal"})
}

func badRequest(c echo.Context, field, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: "validation_error", Field: field})
}
