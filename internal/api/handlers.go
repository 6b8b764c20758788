package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/estofados/storefront/internal/app"
	"github.com/estofados/storefront/internal/middleware"
	"github.com/estofados/storefront/internal/models"
	"github.com/estofados/storefront/internal/notify"
	"github.com/estofados/storefront/internal/services"
	"github.com/gorilla/mux"
)

// App exposes the storefront core over HTTP
type App struct {
	core   *app.App
	logger *slog.Logger
}

// NewApp creates a new gateway around the application state
func NewApp(core *app.App) *App {
	return &App{core: core, logger: core.Logger}
}

// SetupRoutes configures the HTTP routes
func (a *App) SetupRoutes(r *mux.Router) {
	// Middleware
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.CORSMiddleware)
	r.Use(middleware.RecoverMiddleware(a.logger))
	r.Use(middleware.MetricsMiddleware(a.core.Metrics, a.logger))

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", a.HealthHandler).Methods("GET")
	api.HandleFunc("/state", a.StateHandler).Methods("GET")
	api.HandleFunc("/events", a.EventsHandler).Methods("GET")

	// Session
	api.HandleFunc("/session", a.GetSessionHandler).Methods("GET")
	api.HandleFunc("/session/login", a.LoginHandler).Methods("POST")
	api.HandleFunc("/session/register", a.RegisterHandler).Methods("POST")
	api.HandleFunc("/session/logout", a.LogoutHandler).Methods("POST")

	// Cart
	api.HandleFunc("/cart", a.GetCartHandler).Methods("GET")
	api.HandleFunc("/cart/refresh", a.RefreshCartHandler).Methods("POST")
	api.HandleFunc("/cart/items", a.AddToCartHandler).Methods("POST")
	api.HandleFunc("/cart/items/{productId}", a.RemoveFromCartHandler).Methods("DELETE")

	// Catalog
	api.HandleFunc("/categories", a.ListCategoriesHandler).Methods("GET")
	api.HandleFunc("/reviews", a.ListReviewsHandler).Methods("GET")
	api.HandleFunc("/products", a.ListProductsHandler).Methods("GET")
	api.HandleFunc("/products/{id}", a.GetProductHandler).Methods("GET")
	api.HandleFunc("/filters", a.GetFiltersHandler).Methods("GET")
	api.HandleFunc("/filters", a.UpdateFiltersHandler).Methods("PUT")
	api.HandleFunc("/catalog/reload", a.ReloadCatalogHandler).Methods("POST")

	// Checkout handoff
	api.HandleFunc("/checkout/cart", a.CartCheckoutHandler).Methods("GET")
	api.HandleFunc("/checkout/products/{id}", a.ProductCheckoutHandler).Methods("GET")

	api.HandleFunc("/notifications", a.ListNotificationsHandler).Methods("GET")

	// mux only runs middleware on a matched route, so preflight needs one
	api.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

// actionResponse reports an operation whose outcome is a notice
type actionResponse struct {
	Success bool           `json:"success"`
	Session models.Session `json:"session"`
	Notice  *notify.Notice `json:"notice,omitempty"`
}

// HealthHandler handles GET /api/v1/health
func (a *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// StateHandler handles GET /api/v1/state
func (a *App) StateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.core.Snapshot())
}

// GetSessionHandler handles GET /api/v1/session
func (a *App) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess := a.core.Session.Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": sess.Authenticated(),
		"user":          sess.User,
	})
}

// LoginHandler handles POST /api/v1/session/login
func (a *App) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	a.writeAction(w, a.core.Session.LoginOutcome(r.Context(), req.Email, req.Password), http.StatusUnauthorized)
}

// RegisterHandler handles POST /api/v1/session/register
func (a *App) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	a.writeAction(w, a.core.Session.RegisterOutcome(r.Context(), req), http.StatusBadRequest)
}

// LogoutHandler handles POST /api/v1/session/logout
func (a *App) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	a.writeAction(w, a.core.Session.LogoutOutcome(r.Context()), http.StatusOK)
}

func (a *App) writeAction(w http.ResponseWriter, out services.Outcome, failStatus int) {
	resp := actionResponse{Success: out.OK, Session: a.core.Session.Current(), Notice: &out.Notice}
	status := http.StatusOK
	if !out.OK {
		status = failStatus
	}
	writeJSON(w, status, resp)
}

// GetCartHandler handles GET /api/v1/cart
func (a *App) GetCartHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.core.Cart.Snapshot())
}

// RefreshCartHandler handles POST /api/v1/cart/refresh
func (a *App) RefreshCartHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.core.Cart.Refresh(r.Context()); err != nil {
		a.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.core.Cart.Snapshot())
}

// AddToCartHandler handles POST /api/v1/cart/items
func (a *App) AddToCartHandler(w http.ResponseWriter, r *http.Request) {
	var req models.AddToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "product_id is required")
		return
	}

	cart, err := a.core.Cart.Add(r.Context(), req.ProductID, req.Quantity)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// RemoveFromCartHandler handles DELETE /api/v1/cart/items/{productId}
func (a *App) RemoveFromCartHandler(w http.ResponseWriter, r *http.Request) {
	cart, err := a.core.Cart.Remove(r.Context(), mux.Vars(r)["productId"])
	if err != nil {
		a.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// ListCategoriesHandler handles GET /api/v1/categories
func (a *App) ListCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.core.Catalog.Categories())
}

// ListReviewsHandler handles GET /api/v1/reviews
func (a *App) ListReviewsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.core.Catalog.Reviews())
}

// ListProductsHandler handles GET /api/v1/products and returns the filtered, sorted view
func (a *App) ListProductsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.core.Catalog.VisibleProducts())
}

// GetProductHandler handles GET /api/v1/products/{id}
func (a *App) GetProductHandler(w http.ResponseWriter, r *http.Request) {
	product, err := a.core.Catalog.Product(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// GetFiltersHandler handles GET /api/v1/filters
func (a *App) GetFiltersHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.core.Catalog.Filter())
}

// UpdateFiltersHandler handles PUT /api/v1/filters. Omitted fields keep their value.
func (a *App) UpdateFiltersHandler(w http.ResponseWriter, r *http.Request) {
	filter := a.core.Catalog.Filter()
	if err := json.NewDecoder(r.Body).Decode(&filter); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := a.core.Catalog.SetFilter(filter); err != nil {
		a.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"filter":   a.core.Catalog.Filter(),
		"products": a.core.Catalog.VisibleProducts(),
	})
}

// ReloadCatalogHandler handles POST /api/v1/catalog/reload
func (a *App) ReloadCatalogHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.core.Catalog.LoadAll(r.Context()))
}

// CartCheckoutHandler handles GET /api/v1/checkout/cart
func (a *App) CartCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	link, err := a.core.Checkout.CartLink(a.core.Cart.Snapshot(), a.core.Session.Current().User)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": link})
}

// ProductCheckoutHandler handles GET /api/v1/checkout/products/{id}
func (a *App) ProductCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	product, err := a.core.Catalog.Product(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": a.core.Checkout.ProductLink(*product)})
}

// ListNotificationsHandler handles GET /api/v1/notifications. ?drain=true
// also removes the returned notices.
func (a *App) ListNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("drain") == "true" {
		writeJSON(w, http.StatusOK, a.core.Notices.Drain())
		return
	}
	writeJSON(w, http.StatusOK, a.core.Notices.Recent())
}

// writeErr maps core errors onto HTTP statuses
func (a *App) writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrStaleSession):
		status = http.StatusConflict
	case errors.Is(err, models.ErrEmptyCart), errors.Is(err, models.ErrInvalidSortKey):
		status = http.StatusBadRequest
	case models.IsNetwork(err):
		status = http.StatusBadGateway
	case models.HTTPStatus(err) >= 400 && models.HTTPStatus(err) < 500:
		status = models.HTTPStatus(err)
	case models.HTTPStatus(err) != 0:
		status = http.StatusBadGateway
	}
	if status >= 500 {
		a.logger.Error("request failed", slog.String("error", err.Error()))
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
