// Package storeapitest provides an in-memory store API for tests. It follows
// the wire format of the real service: snake_case JSON under /api, bearer
// JWTs, {"detail": ...} errors, and carts whose totals are computed server side.
package storeapitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/estofados/storefront/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Secret signs the tokens the fake issues
var Secret = []byte("storeapitest-secret")

type account struct {
	user     models.User
	password string
}

type failure struct {
	status int
	detail string
}

// Server is a fake store API
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	categories []models.Category
	products   []models.Product
	reviews    []models.Review
	accounts   map[string]*account // by email
	carts      map[string]models.Cart
	failures   map[string]failure
	hooks      map[string]func()
	calls      map[string]int
	authHeader map[string]string
	meEnabled  bool
}

// New starts a fake seeded with a small catalog. It is closed on test cleanup.
func New(t testing.TB) *Server {
	s := &Server{
		accounts:   make(map[string]*account),
		carts:      make(map[string]models.Cart),
		failures:   make(map[string]failure),
		hooks:      make(map[string]func()),
		calls:      make(map[string]int),
		authHeader: make(map[string]string),
		meEnabled:  true,
	}
	s.seed()

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/login", s.wrap("POST /auth/login", s.login)).Methods(http.MethodPost)
	api.HandleFunc("/auth/register", s.wrap("POST /auth/register", s.register)).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", s.wrap("GET /auth/me", s.me)).Methods(http.MethodGet)
	api.HandleFunc("/cart", s.wrap("GET /cart", s.getCart)).Methods(http.MethodGet)
	api.HandleFunc("/cart/add", s.wrap("POST /cart/add", s.addToCart)).Methods(http.MethodPost)
	api.HandleFunc("/cart/remove/{id}", s.wrap("DELETE /cart/remove", s.removeFromCart)).Methods(http.MethodDelete)
	api.HandleFunc("/categories", s.wrap("GET /categories", s.listCategories)).Methods(http.MethodGet)
	api.HandleFunc("/products", s.wrap("GET /products", s.listProducts)).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", s.wrap("GET /products/{id}", s.getProduct)).Methods(http.MethodGet)
	api.HandleFunc("/reviews", s.wrap("GET /reviews", s.listReviews)).Methods(http.MethodGet)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// BaseURL is the API root to hand to storeapi.New
func (s *Server) BaseURL() string {
	return s.URL + "/api"
}

func (s *Server) seed() {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s.categories = []models.Category{
		{ID: "cat-sofas", Name: "Sofás", Slug: "sofas", Description: "Sofás modernos", ImageURL: "https://img/sofas"},
		{ID: "cat-poltronas", Name: "Poltronas", Slug: "poltronas", Description: "Poltronas decorativas", ImageURL: "https://img/poltronas"},
	}
	s.products = []models.Product{
		{ID: "p-sofa-verde", Name: "Sofá Moderno Verde", Description: "Sofá de 3 lugares em tecido verde", Price: 2499.90,
			CategoryID: "cat-sofas", CategoryName: "Sofás", InStock: true, ImageURL: "https://img/p1",
			Images: []string{"https://img/p1"}, Specifications: models.Specifications{"lugares": "3"},
			CreatedAt: models.Timestamp{Time: base}},
		{ID: "p-poltrona-couro", Name: "Poltrona Couro Marrom", Description: "Poltrona decorativa em couro", Price: 2199.90,
			CategoryID: "cat-poltronas", CategoryName: "Poltronas", InStock: true, ImageURL: "https://img/p2",
			Images: []string{"https://img/p2"}, Specifications: models.Specifications{"material": "Couro"},
			CreatedAt: models.Timestamp{Time: base.Add(24 * time.Hour)}},
		{ID: "p-sofa-branco", Name: "Sofá Branco Clean", Description: "Sofá minimalista", Price: 2899.90,
			CategoryID: "cat-sofas", CategoryName: "Sofás", InStock: true, ImageURL: "https://img/p3",
			Images: []string{"https://img/p3"}, Specifications: models.Specifications{"lugares": "2"},
			CreatedAt: models.Timestamp{Time: base.Add(48 * time.Hour)}},
	}
	s.reviews = []models.Review{
		{ID: "r1", UserName: "Mariana Silva", UserLocation: "Copacabana, RJ", Rating: 5, Comment: "Excelente qualidade!"},
	}
}

// SetProducts replaces the product list
func (s *Server) SetProducts(products []models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = products
}

// AddUser registers an account and returns its user
func (s *Server) AddUser(name, email, password, phone string) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := models.User{ID: uuid.NewString(), Name: name, Email: email, Phone: phone}
	s.accounts[email] = &account{user: u, password: password}
	return u
}

// TokenFor issues a valid token for a registered email
func (s *Server) TokenFor(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.accounts[email]
	if acc == nil {
		return ""
	}
	return issue(acc.user.ID, 30*24*time.Hour)
}

// SetCart replaces the stored cart of a registered email
func (s *Server) SetCart(email string, cart models.Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[email] = cart.Clone()
}

// Cart returns the stored cart of a registered email
func (s *Server) Cart(email string) models.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cartLocked(email)
}

// Fail makes route answer status with detail until Recover is called.
// Routes look like "GET /cart" or "DELETE /cart/remove".
func (s *Server) Fail(route string, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = failure{status: status, detail: detail}
}

// Recover clears a failure set with Fail
func (s *Server) Recover(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, route)
}

// Hook runs fn before route is handled. fn may block.
func (s *Server) Hook(route string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[route] = fn
}

// DisableMe makes the verification endpoint answer 404, like an API without one
func (s *Server) DisableMe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meEnabled = false
}

// Calls returns how many requests route received
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// TotalCalls returns how many requests the fake received
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// LastAuthorization returns the Authorization header of the last request to route
func (s *Server) LastAuthorization(route string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authHeader[route]
}

func (s *Server) wrap(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[route]++
		s.authHeader[route] = r.Header.Get("Authorization")
		hook := s.hooks[route]
		f, failing := s.failures[route]
		s.mu.Unlock()

		if hook != nil {
			hook()
		}
		if failing {
			writeDetail(w, f.status, f.detail)
			return
		}
		h(w, r)
	}
}

func issue(userID string, ttl time.Duration) string {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	})
	signed, err := token.SignedString(Secret)
	if err != nil {
		panic(fmt.Sprintf("storeapitest: sign token: %v", err))
	}
	return signed
}

// IssueExpired returns a correctly signed token that expired an hour ago
func IssueExpired(userID string) string {
	return issue(userID, -time.Hour)
}

// currentEmail resolves the bearer token to an account email
func (s *Server) currentEmail(r *http.Request) (string, bool) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return "", false
	}
	claims := &jwt.RegisteredClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return Secret, nil }); err != nil {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for email, acc := range s.accounts {
		if acc.user.ID == claims.Subject {
			return email, true
		}
	}
	return "", false
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	s.mu.Lock()
	acc := s.accounts[req.Email]
	s.mu.Unlock()
	if acc == nil || acc.password != req.Password {
		writeDetail(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}
	writeJSON(w, http.StatusOK, models.AuthResponse{AccessToken: issue(acc.user.ID, 30*24*time.Hour), TokenType: "bearer", User: acc.user})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	s.mu.Lock()
	_, exists := s.accounts[req.Email]
	s.mu.Unlock()
	if exists {
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}
	u := s.AddUser(req.Name, req.Email, req.Password, req.Phone)
	writeJSON(w, http.StatusOK, models.AuthResponse{AccessToken: issue(u.ID, 30*24*time.Hour), TokenType: "bearer", User: u})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	enabled := s.meEnabled
	s.mu.Unlock()
	if !enabled {
		writeDetail(w, http.StatusNotFound, "Not Found")
		return
	}
	email, ok := s.currentEmail(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Invalid authentication credentials")
		return
	}
	s.mu.Lock()
	u := s.accounts[email].user
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) cartLocked(email string) models.Cart {
	cart, ok := s.carts[email]
	if !ok {
		return models.EmptyCart()
	}
	return cart.Clone()
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	email, ok := s.currentEmail(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Invalid authentication credentials")
		return
	}
	writeJSON(w, http.StatusOK, s.Cart(email))
}

func (s *Server) addToCart(w http.ResponseWriter, r *http.Request) {
	email, ok := s.currentEmail(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Invalid authentication credentials")
		return
	}
	var req models.AddToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	s.mu.Lock()
	var product *models.Product
	for i := range s.products {
		if s.products[i].ID == req.ProductID {
			product = &s.products[i]
			break
		}
	}
	if product == nil {
		s.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Product not found")
		return
	}
	cart := s.cartLocked(email)
	found := false
	for i := range cart.Items {
		if cart.Items[i].ProductID == product.ID {
			cart.Items[i].Quantity += req.Quantity
			found = true
			break
		}
	}
	if !found {
		cart.Items = append(cart.Items, models.CartItem{
			ProductID:    product.ID,
			ProductName:  product.Name,
			ProductImage: product.ImageURL,
			UnitPrice:    product.Price,
			Quantity:     req.Quantity,
		})
	}
	cart.Total = total(cart.Items)
	s.carts[email] = cart
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, models.CartMutationResponse{Message: "Item added to cart", Cart: cart})
}

func (s *Server) removeFromCart(w http.ResponseWriter, r *http.Request) {
	email, ok := s.currentEmail(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Invalid authentication credentials")
		return
	}
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	cart := s.cartLocked(email)
	kept := cart.Items[:0]
	for _, item := range cart.Items {
		if item.ProductID != id {
			kept = append(kept, item)
		}
	}
	cart.Items = kept
	cart.Total = total(cart.Items)
	s.carts[email] = cart
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, models.CartMutationResponse{Message: "Item removed from cart", Cart: cart})
}

func (s *Server) listCategories(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.categories)
}

func (s *Server) listProducts(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.products)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.ID == id {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Product not found")
}

func (s *Server) listReviews(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.reviews)
}

func total(items []models.CartItem) float64 {
	var sum float64
	for _, item := range items {
		sum += item.UnitPrice * float64(item.Quantity)
	}
	return sum
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
