package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"storefront/internal/domain/model"
	"storefront/internal/logging"
	auth "storefront/internal/usecase/auth_usecase"
)

const (
	CtxUserIDKey   = "user_id"   // int64
	CtxUserRoleKey = "user_role" // model.Role
)

// トークン検証の約束（JWTService）
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// bearerAuth用のJWT検証ミドルウェア。
func AuthJWT(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			//Bearer形式か確認してtokenを抜く
			authz := c.Request().Header.Get(echo.HeaderAuthorization)
			parts := strings.SplitN(authz, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}
			rawToken := strings.TrimSpace(parts[1])
			if rawToken == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			id, err := verifier.Verify(rawToken)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			//contextへ保存
			c.Set(CtxUserIDKey, id.UserID)
			c.Set(CtxUserRoleKey, id.Role)

			// 以降のログにuser_idを載せる
			ctx := c.Request().Context()
			l := logging.FromContext(ctx).With("user_id", id.UserID)
			c.SetRequest(c.Request().WithContext(logging.IntoContext(ctx, l)))

			return next(c)
		}
	}
}

// contextからuser_idを取り出す
func UserID(c echo.Context) (int64, bool) {
	id, ok := c.Get(CtxUserIDKey).(int64)
	return id, ok && id > 0
}

func UserRole(c echo.Context) (model.Role, bool) {
	role, ok := c.Get(CtxUserRoleKey).(model.Role)
	return role, ok && role != ""
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func errorJSON(code string) errorResponse {
	return errorResponse{Error: strings.ReplaceAll(code, "_", " "), Code: code}
}
