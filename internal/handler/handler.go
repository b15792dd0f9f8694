// Package handler exposes the dashboard and user APIs over net/http.
package handler

import (
	"context"
	"net/http"

	"github.com/xenking/orders-dashboard/internal/domain/client"
	"github.com/xenking/orders-dashboard/internal/domain/order"
	"github.com/xenking/orders-dashboard/internal/domain/product"
	"github.com/xenking/orders-dashboard/internal/domain/report"
	"github.com/xenking/orders-dashboard/internal/domain/user"
	"github.com/xenking/orders-dashboard/pkg/httpmiddleware"
)

// ReportService computes the dashboard views.
type ReportService interface {
	MiniStats(ctx context.Context) (*report.MiniStats, error)
	RevenueChart(ctx context.Context) (*report.RevenueChart, error)
	PopularCategories(ctx context.Context) ([]report.CategoryShare, error)
	RecentSales(ctx context.Context) ([]report.RecentSale, error)
	TopProducts(ctx context.Context) ([]report.ProductRank, error)
	TopClients(ctx context.Context) ([]report.ClientRank, error)
	ClientDetails(ctx context.Context, identifier string) (*report.ClientDetails, error)
}

// OrderService settles orders.
type OrderService interface {
	CreateOrder(ctx context.Context, req order.CreateOrderRequest) (*order.CreateOrderResult, error)
}

// UserService manages dashboard accounts.
type UserService interface {
	Register(ctx context.Context, req user.RegisterRequest) (*user.Session, error)
	Login(ctx context.Context, email, password string) (*user.Session, error)
	UpdateProfile(ctx context.Context, id int64, req user.UpdateRequest) (*user.Session, error)
}

// TokenParser verifies a bearer token and returns its subject.
type TokenParser interface {
	Parse(token string) (string, error)
}

// Cache stores encoded dashboard responses. Invalidate is called after
// every successful write.
type Cache interface {
	Fetch(ctx context.Context, key string, fill func(ctx context.Context) ([]byte, error)) ([]byte, error)
	Invalidate(ctx context.Context)
}

// NopCache always calls fill.
type NopCache struct{}

// Fetch implements Cache.
func (NopCache) Fetch(ctx context.Context, _ string, fill func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	return fill(ctx)
}

// Invalidate implements Cache.
func (NopCache) Invalidate(context.Context) {}

// Deps holds the handler's collaborators.
type Deps struct {
	Reports    ReportService
	Orders     OrderService
	Users      UserService
	Tokens     TokenParser
	Products   product.Repository
	Categories product.CategoryRepository
	Clients    client.Repository
	// Cache defaults to NopCache.
	Cache Cache
	// AuthRateLimit guards register and login. Optional.
	AuthRateLimit httpmiddleware.Middleware
}

// Config holds presentation settings.
type Config struct {
	// Currency suffixes the revenue series name.
	Currency string
}

// Handler serves the HTTP API.
type Handler struct {
	Deps
	cfg Config
}

// NewHandler constructs a Handler.
func NewHandler(cfg Config, deps Deps) *Handler {
	if deps.Cache == nil {
		deps.Cache = NopCache{}
	}
	if deps.AuthRateLimit == nil {
		deps.AuthRateLimit = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{Deps: deps, cfg: cfg}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	const dash = "/api/dashboard"

	mux.HandleFunc("GET "+dash+"/mini-stats", h.MiniStats)
	mux.HandleFunc("GET "+dash+"/revenue-chart", h.RevenueChart)
	mux.HandleFunc("GET "+dash+"/popular-categories", h.PopularCategories)
	mux.HandleFunc("GET "+dash+"/recent-sales", h.RecentSales)
	mux.HandleFunc("GET "+dash+"/top10-products", h.TopProducts)
	mux.HandleFunc("GET "+dash+"/top10-clients", h.TopClients)
	mux.HandleFunc("GET "+dash+"/client-details/{name}", h.ClientDetails)
	mux.HandleFunc("POST "+dash+"/createOrder", h.CreateOrder)

	mux.HandleFunc("GET "+dash+"/all-products", h.ListProducts)
	mux.HandleFunc("POST "+dash+"/product", h.CreateProduct)
	mux.HandleFunc("PUT "+dash+"/product/{id}", h.UpdateProduct)
	mux.HandleFunc("DELETE "+dash+"/product/{id}", h.DeleteProduct)
	mux.HandleFunc("GET "+dash+"/categories", h.ListCategories)
	mux.HandleFunc("POST "+dash+"/createCategory", h.CreateCategory)

	mux.HandleFunc("GET "+dash+"/all-clients", h.ListClients)
	mux.HandleFunc("POST "+dash+"/createClient", h.CreateClient)
	mux.HandleFunc("PUT "+dash+"/client/{id}", h.UpdateClient)
	mux.HandleFunc("DELETE "+dash+"/client/{id}", h.DeleteClient)

	mux.Handle("POST /api/user/register", h.AuthRateLimit(http.HandlerFunc(h.RegisterUser)))
	mux.Handle("POST /api/user/login", h.AuthRateLimit(http.HandlerFunc(h.LoginUser)))
	mux.Handle("PUT /api/user/update/{id}", h.requireToken(http.HandlerFunc(h.UpdateUser)))
}
