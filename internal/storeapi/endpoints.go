package storeapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/estofados/storefront/internal/models"
)

// Login calls POST /auth/login.
func (c *Client) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	var out models.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", "/auth/login", req, &out, ""); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register calls POST /auth/register.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	var out models.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", "/auth/register", req, &out, ""); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me resolves the user behind token using the verification path.
func (c *Client) Me(ctx context.Context, token string) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, http.MethodGet, c.verifyPath, c.verifyPath, nil, &out, token); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCart calls GET /cart.
func (c *Client) GetCart(ctx context.Context) (models.Cart, error) {
	var out models.Cart
	if err := c.do(ctx, http.MethodGet, "/cart", "/cart", nil, &out, ""); err != nil {
		return models.Cart{}, err
	}
	return out.Clone(), nil
}

// AddToCart calls POST /cart/add and returns the cart the API computed.
func (c *Client) AddToCart(ctx context.Context, productID string, quantity int) (models.Cart, error) {
	var out models.CartMutationResponse
	req := models.AddToCartRequest{ProductID: productID, Quantity: quantity}
	if err := c.do(ctx, http.MethodPost, "/cart/add", "/cart/add", req, &out, ""); err != nil {
		return models.Cart{}, err
	}
	return out.Cart.Clone(), nil
}

// RemoveFromCart calls DELETE /cart/remove/{productId} and returns the cart the API computed.
func (c *Client) RemoveFromCart(ctx context.Context, productID string) (models.Cart, error) {
	var out models.CartMutationResponse
	path := "/cart/remove/" + url.PathEscape(productID)
	if err := c.do(ctx, http.MethodDelete, "/cart/remove/{product_id}", path, nil, &out, ""); err != nil {
		return models.Cart{}, err
	}
	return out.Cart.Clone(), nil
}

// ListCategories calls GET /categories.
func (c *Client) ListCategories(ctx context.Context) ([]models.Category, error) {
	var out []models.Category
	err := c.do(ctx, http.MethodGet, "/categories", "/categories", nil, &out, "")
	return out, err
}

// ListProducts calls GET /products.
func (c *Client) ListProducts(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	err := c.do(ctx, http.MethodGet, "/products", "/products", nil, &out, "")
	return out, err
}

// GetProduct calls GET /products/{id}.
func (c *Client) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var out models.Product
	if err := c.do(ctx, http.MethodGet, "/products/{id}", "/products/"+url.PathEscape(id), nil, &out, ""); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListReviews calls GET /reviews.
func (c *Client) ListReviews(ctx context.Context) ([]models.Review, error) {
	var out []models.Review
	err := c.do(ctx, http.MethodGet, "/reviews", "/reviews", nil, &out, "")
	return out, err
}
