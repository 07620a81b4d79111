package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/health"
	"github.com/vladislavdragonenkov/pos/internal/service/catalog"
	"github.com/vladislavdragonenkov/pos/internal/service/httpapi"
	"github.com/vladislavdragonenkov/pos/internal/service/idempotency"
	"github.com/vladislavdragonenkov/pos/internal/service/order"
	"github.com/vladislavdragonenkov/pos/internal/storage/memory"
)

type fixture struct {
	handler   http.Handler
	companyID string
	userID    string
	burgerID  string
	friesID   string
}

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "test")
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	logger := quietLogger()
	handler := httpapi.NewRouter(httpapi.Deps{
		Orders:  order.New(store, nil, order.WithLogger(logger)),
		Catalog: catalog.New(store, catalog.WithBcryptCost(bcrypt.MinCost), catalog.WithLogger(logger)),
		Guard:   idempotency.NewGuard(memory.NewIdempotencyRepository(), idempotency.DefaultTTL, logger),
		Health:  health.NewHandler("test"),
		Metrics: promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{}),
		Logger:  logger,
	})

	f := &fixture{handler: handler}
	f.companyID = f.createID(t, "/companies", map[string]any{
		"name": "Cafe Central", "email": "owner@cafe.example", "address": "Main st, 1",
	})
	f.userID = f.createID(t, "/users", map[string]any{
		"companyId": f.companyID, "name": "Ann Smith", "email": "ann@cafe.example",
		"password": "secret-pass", "role": "WAITER",
	})
	f.burgerID = f.createID(t, "/products", map[string]any{
		"companyId": f.companyID, "name": "Burger", "price": "10.00",
	})
	f.friesID = f.createID(t, "/products", map[string]any{
		"companyId": f.companyID, "name": "Fries", "price": 15,
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(v)
	default:
		payload, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) createID(t *testing.T, path string, body map[string]any) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, path, body, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	return created.ID
}

func (f *fixture) orderBody(items ...map[string]any) map[string]any {
	return map[string]any{
		"client":      "Table 4",
		"companyId":   f.companyID,
		"userId":      f.userID,
		"totalAmount": "999.99",
		"orderItems":  items,
	}
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) order.View {
	t.Helper()
	var view order.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	return view
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestOrders_CreateGetListDelete(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/orders", f.orderBody(
		map[string]any{"productId": f.burgerID, "quantity": 2},
		map[string]any{"productId": f.friesID, "quantity": 1},
	), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decodeView(t, rec)
	require.Equal(t, "35.00", created.TotalAmount)
	require.Equal(t, "PENDING", created.Status)
	require.Equal(t, "PENDING", created.PaymentStatus)
	require.Equal(t, "Ann Smith", created.User.Name)
	require.Len(t, created.OrderItems, 2)
	require.Equal(t, "10.00", created.OrderItems[0].Price)
	require.Equal(t, "Burger", created.OrderItems[0].Product.Name)

	rec = f.do(t, http.MethodGet, "/orders/"+created.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, created.TotalAmount, decodeView(t, rec).TotalAmount)

	rec = f.do(t, http.MethodGet, "/orders", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []order.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	rec = f.do(t, http.MethodDelete, "/orders/"+created.ID, nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/orders/"+created.ID, nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not_found", decodeError(t, rec)["error"])
}

func TestOrders_RequestValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body any
	}{
		{name: "invalid json", body: "{"},
		{name: "empty body", body: nil},
		{name: "missing client", body: map[string]any{"companyId": f.companyID, "userId": f.userID}},
		{name: "company is not uuid", body: map[string]any{"client": "A", "companyId": "abc", "userId": f.userID}},
		{name: "user is missing", body: map[string]any{"client": "A", "companyId": f.companyID}},
		{name: "unknown status", body: map[string]any{
			"client": "A", "companyId": f.companyID, "userId": f.userID, "status": "DONE",
		}},
		{name: "unknown payment method", body: map[string]any{
			"client": "A", "companyId": f.companyID, "userId": f.userID, "paymentMethod": "BITCOIN",
		}},
		{name: "zero quantity", body: f.orderBody(map[string]any{"productId": f.burgerID, "quantity": 0})},
		{name: "product is not uuid", body: f.orderBody(map[string]any{"productId": "burger", "quantity": 1})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/orders", tt.body, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			require.Equal(t, "validation_failed", decodeError(t, rec)["error"])
		})
	}

	rec := f.do(t, http.MethodGet, "/orders/not-a-uuid", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrders_UnknownReferencesReturnNotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/orders", f.orderBody(
		map[string]any{"productId": f.burgerID, "quantity": 1},
		map[string]any{"productId": uuid.NewString(), "quantity": 1},
	), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "product not found", decodeError(t, rec)["message"])

	rec = f.do(t, http.MethodGet, "/orders", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())

	body := f.orderBody()
	body["userId"] = uuid.NewString()
	rec = f.do(t, http.MethodPost, "/orders", body, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "user not found", decodeError(t, rec)["message"])
}

func TestOrders_IdempotencyKeyReplaysResponse(t *testing.T) {
	f := newFixture(t)
	headers := map[string]string{httpapi.HeaderIdempotencyKey: "create-1"}
	body := f.orderBody(map[string]any{"productId": f.burgerID, "quantity": 1})

	first := f.do(t, http.MethodPost, "/orders", body, headers)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	require.Empty(t, first.Header().Get(httpapi.HeaderIdempotencyReplayed))

	second := f.do(t, http.MethodPost, "/orders", body, headers)
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, "true", second.Header().Get(httpapi.HeaderIdempotencyReplayed))
	require.JSONEq(t, first.Body.String(), second.Body.String())

	rec := f.do(t, http.MethodGet, "/orders", nil, nil)
	var list []order.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	changed := f.orderBody(map[string]any{"productId": f.burgerID, "quantity": 3})
	conflict := f.do(t, http.MethodPost, "/orders", changed, headers)
	require.Equal(t, http.StatusConflict, conflict.Code)
	require.Equal(t, "conflict", decodeError(t, conflict)["error"])
}

func TestOrders_IdempotencyKeyReplaysFailure(t *testing.T) {
	f := newFixture(t)
	headers := map[string]string{httpapi.HeaderIdempotencyKey: "create-bad"}
	body := f.orderBody(map[string]any{"productId": uuid.NewString(), "quantity": 1})

	first := f.do(t, http.MethodPost, "/orders", body, headers)
	require.Equal(t, http.StatusNotFound, first.Code)

	second := f.do(t, http.MethodPost, "/orders", body, headers)
	require.Equal(t, http.StatusNotFound, second.Code)
	require.Equal(t, "true", second.Header().Get(httpapi.HeaderIdempotencyReplayed))
	require.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestOrders_PatchMergesItemsAndHeader(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/orders", f.orderBody(
		map[string]any{"productId": f.burgerID, "quantity": 1},
	), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeView(t, rec)
	burgerItem := created.OrderItems[0].ID

	rec = f.do(t, http.MethodPatch, "/orders/"+created.ID, map[string]any{
		"status":        "IN_PROGRESS",
		"paymentMethod": "PIX",
		"orderItems": []map[string]any{
			{"id": burgerItem, "productId": f.burgerID, "quantity": 3},
			{"productId": f.friesID, "quantity": 1},
		},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	updated := decodeView(t, rec)
	require.Equal(t, "IN_PROGRESS", updated.Status)
	require.NotNil(t, updated.PaymentMethod)
	require.Equal(t, "PIX", *updated.PaymentMethod)
	require.Equal(t, "Table 4", updated.Client)
	require.Len(t, updated.OrderItems, 2)
	require.Equal(t, "45.00", updated.TotalAmount)

	rec = f.do(t, http.MethodPatch, "/orders/"+created.ID, map[string]any{"status": "LOST"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPatch, "/orders/"+uuid.NewString(), map[string]any{"client": "B"}, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrders_PatchNullClearsOptionalFields(t *testing.T) {
	f := newFixture(t)

	body := f.orderBody(map[string]any{"productId": f.burgerID, "quantity": 1})
	body["paymentMethod"] = "CARD"
	body["notes"] = "no onions"
	rec := f.do(t, http.MethodPost, "/orders", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeView(t, rec)
	require.NotNil(t, created.Notes)

	rec = f.do(t, http.MethodPatch, "/orders/"+created.ID, `{"notes": null}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeView(t, rec)
	require.Nil(t, updated.Notes)
	require.NotNil(t, updated.PaymentMethod)
	require.Equal(t, "CARD", *updated.PaymentMethod)
	require.Equal(t, "Table 4", updated.Client)

	rec = f.do(t, http.MethodPatch, "/orders/"+created.ID, `{"client": "Table 5"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, decodeView(t, rec).PaymentMethod, "absent field must stay untouched")

	rec = f.do(t, http.MethodPatch, "/orders/"+created.ID, `{"paymentMethod": null}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Nil(t, decodeView(t, rec).PaymentMethod)

	rec = f.do(t, http.MethodGet, "/orders/"+created.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stored := decodeView(t, rec)
	require.Nil(t, stored.Notes)
	require.Nil(t, stored.PaymentMethod)
	require.Equal(t, "Table 5", stored.Client)
}

func TestOrders_ItemRoutes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/orders", f.orderBody(
		map[string]any{"productId": f.burgerID, "quantity": 2},
		map[string]any{"productId": f.friesID, "quantity": 1},
	), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeView(t, rec)
	itemPath := "/orders/" + created.ID + "/items/" + created.OrderItems[0].ID

	rec = f.do(t, http.MethodGet, itemPath, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var item map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	require.Equal(t, "10.00", item["price"])
	require.Equal(t, created.ID, item["orderId"])

	rec = f.do(t, http.MethodDelete, itemPath, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	after := decodeView(t, rec)
	require.Len(t, after.OrderItems, 1)
	require.Equal(t, "15.00", after.TotalAmount)

	rec = f.do(t, http.MethodGet, itemPath, nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCatalog_ProductLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/products/"+f.friesID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var product map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &product))
	require.Equal(t, "15.00", product["price"])
	require.Equal(t, true, product["isAvailable"])

	rec = f.do(t, http.MethodPatch, "/products/"+f.friesID, map[string]any{"price": "17.5", "isAvailable": false}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &product))
	require.Equal(t, "17.50", product["price"])
	require.Equal(t, false, product["isAvailable"])

	rec = f.do(t, http.MethodGet, "/products?companyId="+f.companyID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var products []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
	require.Len(t, products, 2)

	rec = f.do(t, http.MethodGet, "/products?companyId=nope", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/products", map[string]any{"companyId": f.companyID, "name": "Soda"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodDelete, "/products/"+f.friesID, nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodGet, "/products/"+f.friesID, nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCatalog_ProductInUseCannotBeDeleted(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/orders", f.orderBody(
		map[string]any{"productId": f.burgerID, "quantity": 1},
	), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodDelete, "/products/"+f.burgerID, nil, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "conflict", decodeError(t, rec)["error"])
}

func TestCatalog_CategoriesAndCompanies(t *testing.T) {
	f := newFixture(t)

	categoryID := f.createID(t, "/categories", map[string]any{"companyId": f.companyID, "name": "Drinks"})

	rec := f.do(t, http.MethodGet, "/categories?companyId="+f.companyID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var categories []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &categories))
	require.Len(t, categories, 1)
	require.Equal(t, categoryID, categories[0]["id"])

	rec = f.do(t, http.MethodDelete, "/categories/"+categoryID, nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/companies/"+f.companyID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/companies", map[string]any{
		"name": "Second", "email": "owner@cafe.example",
	}, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/companies", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var companies []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &companies))
	require.Len(t, companies, 1)
}

func TestUsers_ResponseHidesPassword(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/users/"+f.userID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, strings.ToLower(rec.Body.String()), "password")
	require.Contains(t, rec.Body.String(), `"role":"WAITER"`)

	rec = f.do(t, http.MethodGet, "/users?companyId="+f.companyID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, strings.ToLower(rec.Body.String()), "hash")

	rec = f.do(t, http.MethodPost, "/users", map[string]any{
		"companyId": f.companyID, "name": "Bob", "email": "bob@cafe.example", "password": "short", "role": "ADMIN",
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCatalog_PatchCompanyCategoryUser(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPatch, "/companies/"+f.companyID, map[string]any{"phone": "+55 11 5555-0000", "address": "Second st, 2"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var company map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &company))
	require.Equal(t, "Cafe Central", company["name"])
	require.Equal(t, "Second st, 2", company["address"])
	require.Equal(t, "+55 11 5555-0000", company["phone"])

	rec = f.do(t, http.MethodPatch, "/companies/"+f.companyID, map[string]any{"email": "broken"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	categoryID := f.createID(t, "/categories", map[string]any{"companyId": f.companyID, "name": "Drinks"})
	rec = f.do(t, http.MethodPatch, "/categories/"+categoryID, map[string]any{"name": "Cold drinks"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/categories/"+categoryID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var category map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &category))
	require.Equal(t, "Cold drinks", category["name"])

	rec = f.do(t, http.MethodGet, "/categories/"+uuid.NewString(), nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPatch, "/users/"+f.userID, map[string]any{"role": "ADMIN", "password": "another-pass"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"role":"ADMIN"`)
	require.NotContains(t, strings.ToLower(rec.Body.String()), "password")

	rec = f.do(t, http.MethodPatch, "/users/"+f.userID, map[string]any{"companyId": "nope"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPatch, "/users/"+f.userID, map[string]any{"password": "short"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCatalog_PublicProductsOnlyAvailable(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPatch, "/products/"+f.friesID, map[string]any{"isAvailable": false}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/public/products", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var products []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
	require.Len(t, products, 1)
	require.Equal(t, f.burgerID, products[0]["id"])

	rec = f.do(t, http.MethodGet, "/public/products?companyId="+uuid.NewString(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())
}

type failingOrders struct {
	httpapi.OrderService
}

func (failingOrders) List(context.Context) ([]domain.OrderAggregate, error) {
	return nil, domain.Internal("order.list", errors.New("connection reset by peer"))
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	handler := httpapi.NewRouter(httpapi.Deps{Orders: failingOrders{}, Logger: quietLogger()})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"internal","message":"internal error"}`, rec.Body.String())
}

// flakyCreate проваливает первые вызовы Create, дальше отдаёт управление настоящему сервису.
type flakyCreate struct {
	httpapi.OrderService

	failures []error
}

func (f *flakyCreate) Create(ctx context.Context, header domain.OrderHeader, items []domain.ItemRequest) (domain.OrderAggregate, error) {
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return domain.OrderAggregate{}, err
	}
	return f.OrderService.Create(ctx, header, items)
}

func TestOrders_IdempotencyKeyRetriesAfterInternalFailure(t *testing.T) {
	store := memory.NewStore()
	logger := quietLogger()
	orders := &flakyCreate{
		OrderService: order.New(store, nil, order.WithLogger(logger)),
		failures: []error{
			domain.Internal("order.create", errors.New("connection reset by peer")),
			domain.Internal("order.create", context.Canceled),
		},
	}
	f := &fixture{
		handler: httpapi.NewRouter(httpapi.Deps{
			Orders:  orders,
			Catalog: catalog.New(store, catalog.WithBcryptCost(bcrypt.MinCost), catalog.WithLogger(logger)),
			Guard:   idempotency.NewGuard(memory.NewIdempotencyRepository(), idempotency.DefaultTTL, logger),
			Logger:  logger,
		}),
	}
	f.companyID = f.createID(t, "/companies", map[string]any{"name": "Cafe Central", "email": "owner@cafe.example"})
	f.userID = f.createID(t, "/users", map[string]any{
		"companyId": f.companyID, "name": "Ann Smith", "email": "ann@cafe.example",
		"password": "secret-pass", "role": "WAITER",
	})
	f.burgerID = f.createID(t, "/products", map[string]any{"companyId": f.companyID, "name": "Burger", "price": "10.00"})

	headers := map[string]string{httpapi.HeaderIdempotencyKey: "create-retry"}
	body := f.orderBody(map[string]any{"productId": f.burgerID, "quantity": 2})

	for range 2 {
		rec := f.do(t, http.MethodPost, "/orders", body, headers)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.Empty(t, rec.Header().Get(httpapi.HeaderIdempotencyReplayed), "failures must not be cached")
	}

	created := f.do(t, http.MethodPost, "/orders", body, headers)
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	require.Empty(t, created.Header().Get(httpapi.HeaderIdempotencyReplayed))
	require.Equal(t, "20.00", decodeView(t, created).TotalAmount)

	replay := f.do(t, http.MethodPost, "/orders", body, headers)
	require.Equal(t, http.StatusCreated, replay.Code)
	require.Equal(t, "true", replay.Header().Get(httpapi.HeaderIdempotencyReplayed))

	rec := f.do(t, http.MethodGet, "/orders", nil, nil)
	var list []order.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
}

func TestOpsEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/livez", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"version":"test"`)

	rec = f.do(t, http.MethodGet, "/readyz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
