package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/estofados/storefront/internal/metrics"
	"github.com/estofados/storefront/internal/models"
	"github.com/estofados/storefront/internal/notify"
	"github.com/estofados/storefront/internal/state"
	"github.com/estofados/storefront/internal/storeapi"
)

type cartOp struct {
	name      string
	needLogin string
	failed    string
	succeeded string
}

var (
	opRefresh = cartOp{name: "refresh", needLogin: "Faça login para ver seu carrinho", failed: "Erro ao carregar o carrinho"}
	opAdd     = cartOp{name: "add", needLogin: "Faça login para adicionar produtos ao carrinho", failed: "Erro ao adicionar ao carrinho", succeeded: "Produto adicionado ao carrinho!"}
	opRemove  = cartOp{name: "remove", needLogin: "Faça login para acessar seu carrinho", failed: "Erro ao remover do carrinho", succeeded: "Produto removido do carrinho"}
)

// CartService keeps the cart snapshot last returned by the store API.
// The snapshot is only ever replaced wholesale from a response.
type CartService struct {
	mu   sync.RWMutex
	cart models.Cart

	client    *storeapi.Client
	creds     *storeapi.Credentials
	notifier  notify.Notifier
	publisher state.Publisher
	metrics   *metrics.AppMetrics
	logger    *slog.Logger
}

// NewCartService creates a new cart service with an empty cart
func NewCartService(client *storeapi.Client, notifier notify.Notifier, publisher state.Publisher, m *metrics.AppMetrics, logger *slog.Logger) *CartService {
	if publisher == nil {
		publisher = state.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CartService{
		cart:      models.EmptyCart(),
		client:    client,
		creds:     client.Credentials(),
		notifier:  notifier,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// Snapshot returns a copy of the current cart
func (s *CartService) Snapshot() models.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Clone()
}

// Reset empties the cart without calling the API
func (s *CartService) Reset() {
	s.mu.Lock()
	s.cart = models.EmptyCart()
	s.mu.Unlock()
	s.publisher.Publish(state.TopicCart)
}

// Refresh replaces the cart with the API's copy
func (s *CartService) Refresh(ctx context.Context) error {
	_, err := s.sync(ctx, opRefresh, s.client.GetCart)
	return err
}

// Add adds quantity units of a product. Quantities below 1 count as 1.
func (s *CartService) Add(ctx context.Context, productID string, quantity int) (models.Cart, error) {
	if quantity < 1 {
		quantity = 1
	}
	return s.sync(ctx, opAdd, func(ctx context.Context) (models.Cart, error) {
		return s.client.AddToCart(ctx, productID, quantity)
	})
}

// Remove drops a product line from the cart
func (s *CartService) Remove(ctx context.Context, productID string) (models.Cart, error) {
	return s.sync(ctx, opRemove, func(ctx context.Context) (models.Cart, error) {
		return s.client.RemoveFromCart(ctx, productID)
	})
}

// sync runs call under the current credential and installs its result,
// unless the credential changed while the call was in flight.
func (s *CartService) sync(ctx context.Context, op cartOp, call func(context.Context) (models.Cart, error)) (models.Cart, error) {
	token, epoch := s.creds.Snapshot()
	if token == "" {
		s.metrics.RecordCartMutation(ctx, op.name, false)
		s.notifier.Notify(notify.KindWarning, op.needLogin)
		return models.Cart{}, models.ErrUnauthenticated
	}

	cart, err := call(ctx)
	if err != nil {
		s.metrics.RecordCartMutation(ctx, op.name, false)
		if s.creds.Epoch() != epoch {
			s.metrics.RecordStaleResponse(ctx, op.name)
			s.logger.Info("discarding cart failure from an ended session",
				slog.String("op", op.name), slog.String("error", err.Error()))
			return models.Cart{}, models.ErrStaleSession
		}
		s.logger.Warn("cart sync failed", slog.String("op", op.name), slog.String("error", err.Error()))
		s.notifier.Notify(notify.KindError, op.failed)
		return models.Cart{}, fmt.Errorf("cart %s: %w", op.name, err)
	}

	s.mu.Lock()
	if s.creds.Epoch() != epoch {
		s.mu.Unlock()
		s.metrics.RecordStaleResponse(ctx, op.name)
		s.logger.Info("discarding cart response from an ended session", slog.String("op", op.name))
		return models.Cart{}, models.ErrStaleSession
	}
	s.cart = cart.Clone()
	s.mu.Unlock()

	s.publisher.Publish(state.TopicCart)
	s.metrics.RecordCartMutation(ctx, op.name, true)
	s.metrics.RecordCartItems(ctx, cart.ItemCount())
	if op.succeeded != "" {
		s.notifier.Notify(notify.KindSuccess, op.succeeded)
	}
	return cart.Clone(), nil
}
