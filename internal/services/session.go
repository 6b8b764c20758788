package services

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/estofados/storefront/internal/metrics"
	"github.com/estofados/storefront/internal/models"
	"github.com/estofados/storefront/internal/notify"
	"github.com/estofados/storefront/internal/state"
	"github.com/estofados/storefront/internal/storeapi"
	"github.com/estofados/storefront/internal/tokenstore"
	"github.com/golang-jwt/jwt/v5"
)

// User-facing session messages
const (
	msgLoginOK       = "Login realizado com sucesso!"
	msgLoginFailed   = "Erro ao fazer login"
	msgRegisterOK    = "Cadastro realizado com sucesso!"
	msgRegisterFail  = "Erro ao criar conta"
	msgLogoutOK      = "Logout realizado com sucesso"
	msgSessionExpiry = "Sua sessão expirou. Faça login novamente."
)

// CartSync is the part of the cart the session drives on identity changes
type CartSync interface {
	Refresh(ctx context.Context) error
	Reset()
}

// SessionService owns the credential and the identified user
type SessionService struct {
	mu   sync.RWMutex
	user *models.User

	client    *storeapi.Client
	creds     *storeapi.Credentials
	store     tokenstore.Store
	cart      CartSync
	notifier  notify.Notifier
	publisher state.Publisher
	metrics   *metrics.AppMetrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewSessionService creates a session service around the client's credentials
func NewSessionService(
	client *storeapi.Client,
	store tokenstore.Store,
	notifier notify.Notifier,
	publisher state.Publisher,
	m *metrics.AppMetrics,
	logger *slog.Logger,
) *SessionService {
	if publisher == nil {
		publisher = state.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		client:    client,
		creds:     client.Credentials(),
		store:     store,
		notifier:  notifier,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// BindCart connects the cart the session refreshes on login and clears on logout
func (s *SessionService) BindCart(cart CartSync) {
	s.cart = cart
}

// Current returns the session. User is nil whenever Token is empty.
func (s *SessionService) Current() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess := models.Session{Token: s.creds.Token()}
	if sess.Token != "" && s.user != nil {
		u := *s.user
		sess.User = &u
	}
	return sess
}

// Outcome is the result of a session action and the notice it raised
type Outcome struct {
	OK     bool
	Notice notify.Notice
}

// Authenticated reports whether a credential is held
func (s *SessionService) Authenticated() bool {
	return s.creds.Token() != ""
}

// Login authenticates, persists the token and reloads the cart for the new identity
func (s *SessionService) Login(ctx context.Context, email, password string) bool {
	return s.LoginOutcome(ctx, email, password).OK
}

// LoginOutcome is Login, also returning the notice shown for it
func (s *SessionService) LoginOutcome(ctx context.Context, email, password string) Outcome {
	resp, err := s.client.Login(ctx, models.LoginRequest{Email: email, Password: password})
	if err == nil && resp.AccessToken == "" {
		err = &models.HTTPError{Op: "POST /auth/login", Status: http.StatusBadGateway}
	}
	if err != nil {
		s.metrics.RecordAuth(ctx, "login", false)
		s.logger.Warn("login failed", slog.String("email", email), slog.String("error", err.Error()))
		return Outcome{Notice: s.report(notify.KindError, models.ServerMessage(err, msgLoginFailed))}
	}

	s.establish(ctx, resp.AccessToken, resp.User)
	s.metrics.RecordAuth(ctx, "login", true)
	s.logger.Info("user logged in", slog.String("user_id", resp.User.ID))

	if s.cart != nil {
		// Refresh reports its own failures
		_ = s.cart.Refresh(ctx)
	}
	return Outcome{OK: true, Notice: s.report(notify.KindSuccess, msgLoginOK)}
}

// Register creates an account and signs it in. The cart is not reloaded
// since a new account has none; the previous identity's snapshot is cleared.
func (s *SessionService) Register(ctx context.Context, req models.RegisterRequest) bool {
	return s.RegisterOutcome(ctx, req).OK
}

// RegisterOutcome is Register, also returning the notice shown for it
func (s *SessionService) RegisterOutcome(ctx context.Context, req models.RegisterRequest) Outcome {
	resp, err := s.client.Register(ctx, req)
	if err == nil && resp.AccessToken == "" {
		err = &models.HTTPError{Op: "POST /auth/register", Status: http.StatusBadGateway}
	}
	if err != nil {
		s.metrics.RecordAuth(ctx, "register", false)
		s.logger.Warn("registration failed", slog.String("email", req.Email), slog.String("error", err.Error()))
		return Outcome{Notice: s.report(notify.KindError, models.ServerMessage(err, msgRegisterFail))}
	}

	s.establish(ctx, resp.AccessToken, resp.User)
	s.metrics.RecordAuth(ctx, "register", true)
	s.logger.Info("user registered", slog.String("user_id", resp.User.ID))
	return Outcome{OK: true, Notice: s.report(notify.KindSuccess, msgRegisterOK)}
}

// Logout drops the credential everywhere and empties the cart. It cannot fail.
func (s *SessionService) Logout(ctx context.Context) {
	s.LogoutOutcome(ctx)
}

// LogoutOutcome is Logout, also returning the notice shown for it
func (s *SessionService) LogoutOutcome(ctx context.Context) Outcome {
	if err := s.store.Clear(ctx); err != nil {
		s.logger.Warn("failed to clear stored token", slog.String("error", err.Error()))
	}

	s.mu.Lock()
	s.creds.Clear()
	s.user = nil
	s.mu.Unlock()

	if s.cart != nil {
		s.cart.Reset()
	}
	s.publisher.Publish(state.TopicSession)
	s.logger.Info("user logged out")
	return Outcome{OK: true, Notice: s.report(notify.KindSuccess, msgLogoutOK)}
}

// report shows a notice and returns a copy for the caller
func (s *SessionService) report(kind notify.Kind, message string) notify.Notice {
	s.notifier.Notify(kind, message)
	return notify.Notice{Kind: kind, Message: message, At: s.now()}
}

// Restore reinstates a stored token. Expired or rejected tokens are
// discarded. When the API cannot confirm the identity (no verification
// endpoint, or unreachable) the token is kept without a user.
func (s *SessionService) Restore(ctx context.Context) error {
	token, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Error("failed to load stored token", slog.String("error", err.Error()))
		return err
	}
	if token == "" {
		return nil
	}

	if tokenExpired(token, s.now()) {
		s.logger.Info("stored token expired")
		s.discard(ctx)
		return nil
	}

	user, err := s.client.Me(ctx, token)
	switch status := models.HTTPStatus(err); {
	case err == nil:
		s.install(token, user)
		s.metrics.RecordAuth(ctx, "restore", true)
		s.logger.Info("session restored", slog.String("user_id", user.ID))

	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		s.logger.Info("stored token rejected", slog.Int("http_status", status))
		s.discard(ctx)

	default:
		s.install(token, nil)
		s.metrics.RecordAuth(ctx, "restore", true)
		s.logger.Warn("session restored without identity", slog.String("error", err.Error()))
	}
	return nil
}

// establish persists and installs a freshly issued credential
func (s *SessionService) establish(ctx context.Context, token string, user models.User) {
	if err := s.store.Save(ctx, token); err != nil {
		// the in-memory session still works, it just won't survive a restart
		s.logger.Warn("failed to persist token", slog.String("error", err.Error()))
	}
	s.install(token, &user)
	if s.cart != nil {
		s.cart.Reset()
	}
}

func (s *SessionService) install(token string, user *models.User) {
	s.mu.Lock()
	s.creds.Set(token)
	s.user = user
	s.mu.Unlock()
	s.publisher.Publish(state.TopicSession)
}

func (s *SessionService) discard(ctx context.Context) {
	if err := s.store.Clear(ctx); err != nil {
		s.logger.Warn("failed to clear stored token", slog.String("error", err.Error()))
	}
	s.metrics.RecordAuth(ctx, "restore", false)
	s.notifier.Notify(notify.KindWarning, msgSessionExpiry)
}

// tokenExpired reads the exp claim without verifying the signature. Tokens
// that are not JWTs, or carry no exp, are left for the API to judge.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}
