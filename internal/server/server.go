package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"storefront/internal/config"
	"storefront/internal/handler"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/middleware"
	"storefront/internal/usecase"
	auth "storefront/internal/usecase/auth_usecase"
)

// 外から渡すインフラ。Events/Idemはnil可。
type Infra struct {
	DB     *gorm.DB
	Logger *slog.Logger
	Events usecase.OrderEventPublisher
	Idem   usecase.IdempotencyCache
}

// New はリポジトリ→usecase→handlerを組み立ててechoを返す。
func New(cfg config.Config, in Infra) *echo.Echo {
	//Repository（GORM実装）生成
	productRepo := infraRepo.NewProductGormRepository(in.DB)
	userRepo := infraRepo.NewUserGormRepository(in.DB)
	txm := infraRepo.NewTxManagerGorm(in.DB)

	//JWT / bcrypt
	jwtSvc := auth.NewJWTService(cfg.JWTSecret, cfg.JWTTTL, auth.SystemClock{})
	hasherCost := bcrypt.DefaultCost
	if !cfg.IsProd() {
		hasherCost = bcrypt.MinCost
	}

	//Usecase生成
	registerUC := auth.NewRegisterUserUsecase(userRepo, auth.NewBcryptPasswordHasher(hasherCost), jwtSvc)
	loginUC := auth.NewLoginUsecase(userRepo, auth.NewBcryptPasswordVerifier(), jwtSvc)
	productUC := usecase.NewProductUsecase(productRepo)
	orderUC := usecase.NewOrderUsecase(txm, in.Events, in.Idem, cfg.OrderTxTimeout)
	adminOrderUC := usecase.NewAdminOrderUsecase(txm, in.Events, cfg.AdminPageSize)
	adminProductUC := usecase.NewAdminProductUsecase(txm)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(in.Logger))
	e.Use(echomw.BodyLimit("1M"))
	if cfg.FEURL != "" {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: []string{cfg.FEURL},
			AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, "X-Idempotency-Key"},
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		}))
	}

	registerRoutes(e, routes{
		authMW:        middleware.AuthJWT(jwtSvc),
		auth:          handler.NewAuthHandler(registerUC, loginUC),
		products:      handler.NewProductHandler(productUC),
		orders:        handler.NewOrderHandler(orderUC),
		adminOrders:   handler.NewAdminOrderHandler(adminOrderUC),
		adminProducts: handler.NewAdminProductHandler(adminProductUC),
		health:        pingDB(in.DB),
	})
	return e
}

// Start はctxが終わるまで待ち受け、その後graceful shutdownする。
func Start(ctx context.Context, e *echo.Echo, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	return nil
}

func pingDB(db *gorm.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
