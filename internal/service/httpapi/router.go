// Package httpapi - REST-транспорт сервиса заказов поверх chi.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/health"
	"github.com/vladislavdragonenkov/pos/internal/service/catalog"
	"github.com/vladislavdragonenkov/pos/internal/service/idempotency"
)

// OrderService - операции над агрегатом заказа, которые нужны транспорту.
type OrderService interface {
	Create(ctx context.Context, header domain.OrderHeader, items []domain.ItemRequest) (domain.OrderAggregate, error)
	Get(ctx context.Context, id string) (domain.OrderAggregate, error)
	List(ctx context.Context) ([]domain.OrderAggregate, error)
	Update(ctx context.Context, id string, patch domain.OrderPatch, items []domain.ItemRequest) (domain.OrderAggregate, error)
	Remove(ctx context.Context, id string) (domain.OrderAggregate, error)
	GetItem(ctx context.Context, orderID, itemID string) (domain.OrderItem, error)
	RemoveItem(ctx context.Context, orderID, itemID string) (domain.OrderAggregate, error)
}

// CatalogService - справочники заведения.
type CatalogService interface {
	CreateCompany(ctx context.Context, in catalog.CompanyInput) (domain.Company, error)
	GetCompany(ctx context.Context, id string) (domain.Company, error)
	ListCompanies(ctx context.Context) ([]domain.Company, error)
	UpdateCompany(ctx context.Context, id string, patch catalog.CompanyPatch) (domain.Company, error)
	DeleteCompany(ctx context.Context, id string) error

	CreateCategory(ctx context.Context, in catalog.CategoryInput) (domain.Category, error)
	GetCategory(ctx context.Context, id string) (domain.Category, error)
	ListCategories(ctx context.Context, companyID string) ([]domain.Category, error)
	UpdateCategory(ctx context.Context, id string, patch catalog.CategoryPatch) (domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	CreateProduct(ctx context.Context, in catalog.ProductInput) (domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	ListProducts(ctx context.Context, companyID string) ([]domain.Product, error)
	ListAvailableProducts(ctx context.Context, companyID string) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, id string, patch catalog.ProductPatch) (domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	CreateUser(ctx context.Context, in catalog.UserInput) (domain.User, error)
	GetUser(ctx context.Context, id string) (domain.User, error)
	ListUsers(ctx context.Context, companyID string) ([]domain.User, error)
	UpdateUser(ctx context.Context, id string, patch catalog.UserPatch) (domain.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// Deps - зависимости роутера. Guard, Health и Metrics необязательны.
type Deps struct {
	Orders  OrderService
	Catalog CatalogService
	Guard   *idempotency.Guard
	Health  *health.Handler
	Metrics http.Handler
	Logger  *log.Entry
}

// NewRouter собирает chi-роутер со всеми маршрутами API и служебными эндпоинтами.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "http")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
	r.Get("/livez", health.LivenessHandler)
	if deps.Health != nil {
		r.Method(http.MethodGet, "/healthz", deps.Health)
		r.Get("/readyz", deps.Health.ReadinessHandler)
	}

	if deps.Orders != nil {
		orders := &orderHandler{service: deps.Orders, guard: deps.Guard, logger: logger}
		r.Route("/orders", orders.RegisterRoutes)
	}
	if deps.Catalog != nil {
		h := &catalogHandler{service: deps.Catalog}
		h.RegisterRoutes(r)
	}
	return r
}

func requestLogger(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.WithFields(log.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"duration_ms": time.Since(started).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			}).Debug("http request")
		})
	}
}
