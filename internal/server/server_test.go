package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/handler"
	"storefront/internal/infra/db/testdb"
	"storefront/internal/logging"
	"storefront/internal/usecase"
	auth "storefront/internal/usecase/auth_usecase"
)

type testClient struct {
	baseURL string
	http    *http.Client
}

func newTestServer(t *testing.T) (*testClient, *gorm.DB) {
	t.Helper()

	gdb := testdb.New(t)
	cfg := config.Config{
		JWTSecret:      "test-secret",
		JWTTTL:         time.Hour,
		GoEnv:          "dev",
		OrderTxTimeout: 5 * time.Second,
		AdminPageSize:  10,
	}
	e := New(cfg, Infra{DB: gdb, Logger: logging.NewWithWriter(io.Discard, "error")})

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	return &testClient{baseURL: srv.URL, http: srv.Client()}, gdb
}

func (c *testClient) doJSON(t *testing.T, method, path, bearer string, body any, headers ...string) (*http.Response, []byte) {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, c.baseURL+path, reqBody)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := c.http.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func requireStatus(t *testing.T, resp *http.Response, want int, body []byte) {
	t.Helper()
	require.Equalf(t, want, resp.StatusCode, "body=%s", string(body))
}

func mustDecode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoErrorf(t, json.Unmarshal(body, &v), "body=%s", string(body))
	return v
}

func register(t *testing.T, c *testClient, name, email string) auth.AuthOutput {
	t.Helper()
	resp, body := c.doJSON(t, http.MethodPost, "/api/auth/register", "", handler.RegisterRequest{
		Name: name, Email: email, Password: "s3cret-pass",
	})
	requireStatus(t, resp, http.StatusCreated, body)
	return mustDecode[auth.AuthOutput](t, body)
}

func login(t *testing.T, c *testClient, email string) string {
	t.Helper()
	resp, body := c.doJSON(t, http.MethodPost, "/api/auth/login", "", handler.LoginRequest{
		Email: email, Password: "s3cret-pass",
	})
	requireStatus(t, resp, http.StatusOK, body)
	out := mustDecode[auth.AuthOutput](t, body)
	require.NotEmpty(t, out.Token)
	return out.Token
}

// 管理者はDBで昇格させてから再ログインする
func adminToken(t *testing.T, c *testClient, gdb *gorm.DB) string {
	t.Helper()
	register(t, c, "Admin", "admin@example.com")
	require.NoError(t, gdb.Model(&model.User{}).
		Where("email = ?", "admin@example.com").
		Update("role", model.RoleAdmin).Error)
	return login(t, c, "admin@example.com")
}

func seedProduct(t *testing.T, gdb *gorm.DB, name, price string, stock int64) model.Product {
	t.Helper()
	p := model.Product{Name: name, Price: decimal.RequireFromString(price), Stock: stock}
	require.NoError(t, gdb.Create(&p).Error)
	return p
}

func stockOf(t *testing.T, gdb *gorm.DB, id int64) int64 {
	t.Helper()
	var p model.Product
	require.NoError(t, gdb.First(&p, id).Error)
	return p.Stock
}

func TestHealthz(t *testing.T) {
	c, _ := newTestServer(t)

	resp, body := c.doJSON(t, http.MethodGet, "/healthz", "", nil)
	requireStatus(t, resp, http.StatusOK, body)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestCatalog(t *testing.T) {
	c, gdb := newTestServer(t)
	p := seedProduct(t, gdb, "Widget", "100.00", 5)

	resp, body := c.doJSON(t, http.MethodGet, "/api/products", "", nil)
	requireStatus(t, resp, http.StatusOK, body)
	list := mustDecode[[]model.Product](t, body)
	require.Len(t, list, 1)
	assert.Equal(t, "Widget", list[0].Name)

	resp, body = c.doJSON(t, http.MethodGet, "/api/products/"+strconv.FormatInt(p.ID, 10), "", nil)
	requireStatus(t, resp, http.StatusOK, body)

	resp, body = c.doJSON(t, http.MethodGet, "/api/products/9999", "", nil)
	requireStatus(t, resp, http.StatusNotFound, body)
}

func TestOrders_RequireToken(t *testing.T) {
	c, _ := newTestServer(t)

	resp, body := c.doJSON(t, http.MethodPost, "/api/orders", "", map[string]any{
		"items": []usecase.CartLine{{ProductID: 1, Quantity: 1}},
	})
	requireStatus(t, resp, http.StatusUnauthorized, body)

	resp, body = c.doJSON(t, http.MethodGet, "/api/orders/my-orders", "not-a-token", nil)
	requireStatus(t, resp, http.StatusUnauthorized, body)
}

func TestOrderFlow(t *testing.T) {
	c, gdb := newTestServer(t)
	widget := seedProduct(t, gdb, "Widget", "100.00", 5)

	buyer := register(t, c, "Buyer", "buyer@example.com")
	admin := adminToken(t, c, gdb)

	// 注文: A×2 @100 → total 200, 在庫 5→3
	resp, body := c.doJSON(t, http.MethodPost, "/api/orders", buyer.Token, map[string]any{
		"items": []usecase.CartLine{{ProductID: widget.ID, Quantity: 2}},
	}, "X-Idempotency-Key", "checkout-1")
	requireStatus(t, resp, http.StatusCreated, body)
	placed := mustDecode[usecase.OrderOutput](t, body)
	assert.True(t, decimal.NewFromInt(200).Equal(placed.Total), "total=%s", placed.Total)
	assert.Equal(t, model.OrderStatusPending, placed.Status)
	assert.Equal(t, buyer.User.ID, placed.UserID)
	assert.Equal(t, int64(3), stockOf(t, gdb, widget.ID))

	// 同じキーの再送は既存注文を返す
	resp, body = c.doJSON(t, http.MethodPost, "/api/orders", buyer.Token, map[string]any{
		"items": []usecase.CartLine{{ProductID: widget.ID, Quantity: 2}},
	}, "X-Idempotency-Key", "checkout-1")
	requireStatus(t, resp, http.StatusOK, body)
	replayed := mustDecode[usecase.OrderOutput](t, body)
	assert.Equal(t, placed.ID, replayed.ID)
	assert.Equal(t, int64(3), stockOf(t, gdb, widget.ID))

	// 在庫不足は409で詳細を返す
	resp, body = c.doJSON(t, http.MethodPost, "/api/orders", buyer.Token, map[string]any{
		"items": []usecase.CartLine{{ProductID: widget.ID, Quantity: 10}},
	})
	requireStatus(t, resp, http.StatusConflict, body)
	errBody := mustDecode[handler.ErrorResponse](t, body)
	assert.Equal(t, "insufficient_stock", errBody.Code)
	require.NotNil(t, errBody.Available)
	require.NotNil(t, errBody.Requested)
	assert.Equal(t, widget.ID, *errBody.ProductID)
	assert.Equal(t, int64(3), *errBody.Available)
	assert.Equal(t, int64(10), *errBody.Requested)
	assert.Equal(t, int64(3), stockOf(t, gdb, widget.ID))

	// 存在しない商品は404
	resp, body = c.doJSON(t, http.MethodPost, "/api/orders", buyer.Token, map[string]any{
		"items": []usecase.CartLine{{ProductID: 9999, Quantity: 1}},
	})
	requireStatus(t, resp, http.StatusNotFound, body)
	assert.Equal(t, "product_not_found", mustDecode[handler.ErrorResponse](t, body).Code)

	// 数量0は400
	resp, body = c.doJSON(t, http.MethodPost, "/api/orders", buyer.Token, map[string]any{
		"items": []usecase.CartLine{{ProductID: widget.ID, Quantity: 0}},
	})
	requireStatus(t, resp, http.StatusBadRequest, body)

	// 履歴
	resp, body = c.doJSON(t, http.MethodGet, "/api/orders/my-orders", buyer.Token, nil)
	requireStatus(t, resp, http.StatusOK, body)
	history := mustDecode[[]usecase.OrderOutput](t, body)
	require.Len(t, history, 1)
	require.Len(t, history[0].Items, 1)
	assert.Equal(t, "Widget", history[0].Items[0].Name)
	assert.Equal(t, int64(2), history[0].Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(100).Equal(history[0].Items[0].Price))

	// 一般ユーザーは管理APIに入れない
	resp, body = c.doJSON(t, http.MethodGet, "/api/admin/orders", buyer.Token, nil)
	requireStatus(t, resp, http.StatusForbidden, body)

	// 管理者一覧
	resp, body = c.doJSON(t, http.MethodGet, "/api/admin/orders?status=pending", admin, nil)
	requireStatus(t, resp, http.StatusOK, body)
	list := mustDecode[usecase.AdminOrderListOutput](t, body)
	assert.Equal(t, int64(1), list.Total)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "Buyer", list.Items[0].Name)
	assert.Equal(t, "buyer@example.com", list.Items[0].Email)
	assert.Equal(t, 1, list.Page)
	assert.Equal(t, 10, list.Limit)

	orderPath := "/api/admin/orders/" + strconv.FormatInt(placed.ID, 10)

	resp, body = c.doJSON(t, http.MethodGet, orderPath+"/items", admin, nil)
	requireStatus(t, resp, http.StatusOK, body)
	items := mustDecode[[]usecase.OrderItemOutput](t, body)
	require.Len(t, items, 1)
	assert.Equal(t, widget.ID, items[0].ProductID)

	// pending → shipped（明細はそのまま）
	resp, body = c.doJSON(t, http.MethodPut, orderPath+"/status", admin, map[string]string{"status": "shipped"})
	requireStatus(t, resp, http.StatusOK, body)
	updated := mustDecode[model.Order](t, body)
	assert.Equal(t, model.OrderStatusShipped, updated.Status)
	assert.True(t, placed.Total.Equal(updated.Total))

	resp, body = c.doJSON(t, http.MethodGet, orderPath+"/items", admin, nil)
	requireStatus(t, resp, http.StatusOK, body)
	assert.Equal(t, items, mustDecode[[]usecase.OrderItemOutput](t, body))

	// 後戻りは409、未知のステータスは400
	resp, body = c.doJSON(t, http.MethodPut, orderPath+"/status", admin, map[string]string{"status": "pending"})
	requireStatus(t, resp, http.StatusConflict, body)
	resp, body = c.doJSON(t, http.MethodPut, orderPath+"/status", admin, map[string]string{"status": "lost"})
	requireStatus(t, resp, http.StatusBadRequest, body)

	resp, body = c.doJSON(t, http.MethodPut, "/api/admin/orders/9999/status", admin, map[string]string{"status": "shipped"})
	requireStatus(t, resp, http.StatusNotFound, body)

	resp, body = c.doJSON(t, http.MethodGet, orderPath+"/history", admin, nil)
	requireStatus(t, resp, http.StatusOK, body)
	changes := mustDecode[[]usecase.StatusChangeOutput](t, body)
	require.Len(t, changes, 1)
	assert.Equal(t, model.OrderStatusPending, changes[0].From)
	assert.Equal(t, model.OrderStatusShipped, changes[0].To)
}

func TestAuth_DuplicateAndBadLogin(t *testing.T) {
	c, _ := newTestServer(t)
	register(t, c, "Buyer", "buyer@example.com")

	resp, body := c.doJSON(t, http.MethodPost, "/api/auth/register", "", handler.RegisterRequest{
		Name: "Other", Email: "BUYER@example.com", Password: "s3cret-pass",
	})
	requireStatus(t, resp, http.StatusConflict, body)

	resp, body = c.doJSON(t, http.MethodPost, "/api/auth/login", "", handler.LoginRequest{
		Email: "buyer@example.com", Password: "wrong-pass",
	})
	requireStatus(t, resp, http.StatusUnauthorized, body)
}

func TestAdminProductLifecycle(t *testing.T) {
	c, gdb := newTestServer(t)
	buyer := register(t, c, "Buyer", "buyer@example.com")
	admin := adminToken(t, c, gdb)

	// 一般ユーザーは商品を作れない
	resp, body := c.doJSON(t, http.MethodPost, "/api/admin/products", buyer.Token, map[string]any{
		"name": "Kettle", "price": "30.00", "stock": 3,
	})
	requireStatus(t, resp, http.StatusForbidden, body)

	resp, body = c.doJSON(t, http.MethodPost, "/api/admin/products", admin, map[string]any{
		"name": "Kettle", "description": "1L", "price": "30.00", "stock": 3, "image": "/img/kettle.png",
	})
	requireStatus(t, resp, http.StatusCreated, body)
	kettle := mustDecode[model.Product](t, body)
	assert.Equal(t, "Kettle", kettle.Name)
	assert.Equal(t, int64(3), stockOf(t, gdb, kettle.ID))
	adminPath := "/api/admin/products/" + strconv.FormatInt(kettle.ID, 10)

	resp, body = c.doJSON(t, http.MethodPost, "/api/admin/products", admin, map[string]any{
		"name": "Bad", "price": "-1", "stock": 1,
	})
	requireStatus(t, resp, http.StatusBadRequest, body)
	assert.Equal(t, "price", mustDecode[handler.ErrorResponse](t, body).Field)

	resp, body = c.doJSON(t, http.MethodPost, "/api/orders", buyer.Token, map[string]any{
		"items": []usecase.CartLine{{ProductID: kettle.ID, Quantity: 1}},
	})
	requireStatus(t, resp, http.StatusCreated, body)

	// 値上げしても注文済みの価格は変わらない
	resp, body = c.doJSON(t, http.MethodPut, adminPath, admin, map[string]any{
		"name": "Kettle", "description": "1L", "price": 45, "stock": 10, "image": "/img/kettle.png",
	})
	requireStatus(t, resp, http.StatusOK, body)
	updated := mustDecode[model.Product](t, body)
	assert.True(t, decimal.NewFromInt(45).Equal(updated.Price))
	assert.Equal(t, int64(10), stockOf(t, gdb, kettle.ID))

	resp, body = c.doJSON(t, http.MethodDelete, adminPath, buyer.Token, nil)
	requireStatus(t, resp, http.StatusForbidden, body)

	resp, body = c.doJSON(t, http.MethodDelete, adminPath, admin, nil)
	requireStatus(t, resp, http.StatusOK, body)
	assert.Equal(t, "deleted", mustDecode[handler.SuccessResponse](t, body).Message)

	resp, body = c.doJSON(t, http.MethodGet, "/api/products", "", nil)
	requireStatus(t, resp, http.StatusOK, body)
	assert.Empty(t, mustDecode[[]model.Product](t, body))

	resp, body = c.doJSON(t, http.MethodGet, "/api/products/"+strconv.FormatInt(kettle.ID, 10), "", nil)
	requireStatus(t, resp, http.StatusNotFound, body)

	resp, body = c.doJSON(t, http.MethodPost, "/api/orders", buyer.Token, map[string]any{
		"items": []usecase.CartLine{{ProductID: kettle.ID, Quantity: 1}},
	})
	requireStatus(t, resp, http.StatusNotFound, body)
	assert.Equal(t, "product_not_found", mustDecode[handler.ErrorResponse](t, body).Code)

	// 削除後も注文履歴には商品名と当時の価格が残る
	resp, body = c.doJSON(t, http.MethodGet, "/api/orders/my-orders", buyer.Token, nil)
	requireStatus(t, resp, http.StatusOK, body)
	history := mustDecode[[]usecase.OrderOutput](t, body)
	require.Len(t, history, 1)
	require.Len(t, history[0].Items, 1)
	assert.Equal(t, "Kettle", history[0].Items[0].Name)
	assert.True(t, decimal.NewFromInt(30).Equal(history[0].Items[0].Price))

	resp, body = c.doJSON(t, http.MethodDelete, adminPath, admin, nil)
	requireStatus(t, resp, http.StatusNotFound, body)
}
