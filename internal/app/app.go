// Package app assembles the storefront core into one application-state
// object. Consumers hold a *App and go through its services; nothing is global.
package app

import (
	"context"
	"log/slog"

	"github.com/estofados/storefront/internal/metrics"
	"github.com/estofados/storefront/internal/models"
	"github.com/estofados/storefront/internal/notify"
	"github.com/estofados/storefront/internal/services"
	"github.com/estofados/storefront/internal/state"
	"github.com/estofados/storefront/internal/storeapi"
	"github.com/estofados/storefront/internal/tokenstore"
	"github.com/estofados/storefront/pkg/config"
)

// App is the application state: session, cart, catalog and notices
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Metrics  *metrics.AppMetrics
	Hub      *state.Hub
	Notices  *notify.Center
	Client   *storeapi.Client
	Session  *services.SessionService
	Cart     *services.CartService
	Catalog  *services.CatalogService
	Checkout *services.CheckoutService
}

// State is a point-in-time view of everything the presentation reads
type State struct {
	Version    uint64              `json:"version"`
	Session    models.Session      `json:"session"`
	Cart       models.Cart         `json:"cart"`
	Filter     models.FilterState  `json:"filter"`
	Products   []models.Product    `json:"products"`
	Categories []models.Category   `json:"categories"`
	Reviews    []models.Review     `json:"reviews"`
	Catalog    services.LoadStatus `json:"catalog"`
	Notices    []notify.Notice     `json:"notices"`
}

// New wires the services around one client and one credential holder.
// m may be nil.
func New(cfg *config.Config, store tokenstore.Store, m *metrics.AppMetrics, logger *slog.Logger, opts ...storeapi.Option) *App {
	if logger == nil {
		logger = slog.Default()
	}
	hub := state.NewHub()
	notices := notify.NewCenter(logger, m, hub, 0)

	clientOpts := []storeapi.Option{
		storeapi.WithTimeout(cfg.StoreAPITimeout),
		storeapi.WithRateLimit(cfg.StoreAPIRateLimit, cfg.StoreAPIRateBurst),
		storeapi.WithVerifyPath(cfg.AuthVerifyPath),
		storeapi.WithMetrics(m),
		storeapi.WithLogger(logger),
	}
	client := storeapi.New(cfg.StoreAPIURL, storeapi.NewCredentials(), append(clientOpts, opts...)...)

	cart := services.NewCartService(client, notices, hub, m, logger)
	session := services.NewSessionService(client, store, notices, hub, m, logger)
	session.BindCart(cart)

	catalog := services.NewCatalogService(client, notices, hub, m, logger,
		services.WithAfterLoad(func(ctx context.Context) {
			if session.Authenticated() {
				// Refresh reports its own failures
				_ = cart.Refresh(ctx)
			}
		}),
	)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  m,
		Hub:      hub,
		Notices:  notices,
		Client:   client,
		Session:  session,
		Cart:     cart,
		Catalog:  catalog,
		Checkout: services.NewCheckoutService(cfg.WhatsAppNumber, cfg.StoreName),
	}
}

// Bootstrap restores a stored session and loads the catalog, which in turn
// refreshes the cart when a session exists
func (a *App) Bootstrap(ctx context.Context) services.LoadStatus {
	if err := a.Session.Restore(ctx); err != nil {
		a.Logger.Warn("session restore failed", slog.String("error", err.Error()))
	}
	status := a.Catalog.LoadAll(ctx)
	a.Logger.Info("storefront ready",
		slog.Bool("authenticated", a.Session.Authenticated()),
		slog.Int("products", len(a.Catalog.Products())),
		slog.Bool("catalog_partial", status.Failed()),
	)
	return status
}

// Snapshot collects the current state
func (a *App) Snapshot() State {
	return State{
		Version:    a.Hub.Version(),
		Session:    a.Session.Current(),
		Cart:       a.Cart.Snapshot(),
		Filter:     a.Catalog.Filter(),
		Products:   a.Catalog.VisibleProducts(),
		Categories: a.Catalog.Categories(),
		Reviews:    a.Catalog.Reviews(),
		Catalog:    a.Catalog.LoadStatus(),
		Notices:    a.Notices.Recent(),
	}
}
