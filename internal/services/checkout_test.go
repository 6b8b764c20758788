package services

import (
	"net/url"
	"strings"
	"testing"

	"github.com/estofados/storefront/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeText(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get("text")
}

func TestCheckout_CartLink(t *testing.T) {
	s := NewCheckoutService("+55 (21) 99999-9999", "Estofados Premium Outlet")
	cart := models.Cart{
		Items: []models.CartItem{
			{ProductID: "p1", ProductName: "Sofá Moderno Verde", Quantity: 2, UnitPrice: 2499.90},
			{ProductID: "p2", ProductName: "Poltrona Couro Marrom", Quantity: 1, UnitPrice: 2199.90},
		},
		Total: 7199.70,
	}
	user := &models.User{Name: "Ana", Phone: "21 98888-0000"}

	link, err := s.CartLink(cart, user)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(link, "https://wa.me/5521999999999?text="))
	assert.NotContains(t, link, "+", "spaces are percent-encoded")

	text := decodeText(t, link)
	assert.Contains(t, text, "Estofados Premium Outlet")
	assert.Contains(t, text, "Sofá Moderno Verde (2x) - R$ 2.499,90")
	assert.Contains(t, text, "Poltrona Couro Marrom (1x) - R$ 2.199,90")
	assert.Contains(t, text, "Total: R$ 7.199,70")
	assert.Contains(t, text, "Nome: Ana")
	assert.Contains(t, text, "Telefone: 21 98888-0000")
}

func TestCheckout_CartLinkUsesServerTotal(t *testing.T) {
	s := NewCheckoutService("5521999999999", "")
	cart := models.Cart{
		Items: []models.CartItem{{ProductName: "Sofá", Quantity: 1, UnitPrice: 100}},
		Total: 90,
	}

	link, err := s.CartLink(cart, nil)
	require.NoError(t, err)
	text := decodeText(t, link)
	assert.Contains(t, text, "Total: R$ 90,00")
	assert.NotContains(t, text, "Nome:")
}

func TestCheckout_EmptyCart(t *testing.T) {
	s := NewCheckoutService("5521999999999", "Loja")

	_, err := s.CartLink(models.EmptyCart(), nil)
	assert.ErrorIs(t, err, models.ErrEmptyCart)
}

func TestCheckout_ProductLink(t *testing.T) {
	s := NewCheckoutService("5521999999999", "Loja")

	link := s.ProductLink(models.Product{Name: "Sofá Branco Clean", Price: 2899.90})
	text := decodeText(t, link)
	assert.Equal(t, "Olá! Tenho interesse no produto Sofá Branco Clean (R$ 2.899,90). Poderia me passar mais informações?", text)
}
