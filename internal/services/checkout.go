package services

import (
	"net/url"
	"strings"

	"github.com/estofados/storefront/internal/models"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const whatsappBase = "https://wa.me/"

// CheckoutService builds WhatsApp deep links that hand a cart or a product
// inquiry over to the store's sales channel. There is no payment or order API.
type CheckoutService struct {
	number    string
	storeName string
	printer   *message.Printer
}

// NewCheckoutService creates a checkout service for a WhatsApp number in any
// format; only its digits are kept
func NewCheckoutService(number, storeName string) *CheckoutService {
	return &CheckoutService{
		number:    digits(number),
		storeName: storeName,
		printer:   message.NewPrinter(language.BrazilianPortuguese),
	}
}

// CartLink lists the cart's items and its server-computed total. user may be nil.
func (s *CheckoutService) CartLink(cart models.Cart, user *models.User) (string, error) {
	if len(cart.Items) == 0 {
		return "", models.ErrEmptyCart
	}

	var b strings.Builder
	b.WriteString("Olá! Gostaria de finalizar meu pedido")
	if s.storeName != "" {
		b.WriteString(" na ")
		b.WriteString(s.storeName)
	}
	b.WriteString(":\n\n")
	for _, item := range cart.Items {
		b.WriteString(s.printer.Sprintf("• %s (%dx) - %s\n", item.ProductName, item.Quantity, s.price(item.UnitPrice)))
	}
	b.WriteString("\nTotal: ")
	b.WriteString(s.price(cart.Total))

	if user != nil {
		b.WriteString("\n\nNome: ")
		b.WriteString(user.Name)
		if user.Phone != "" {
			b.WriteString("\nTelefone: ")
			b.WriteString(user.Phone)
		}
	}

	return s.link(b.String()), nil
}

// ProductLink asks about a single product
func (s *CheckoutService) ProductLink(p models.Product) string {
	msg := "Olá! Tenho interesse no produto " + p.Name + " (" + s.price(p.Price) + "). Poderia me passar mais informações?"
	return s.link(msg)
}

func (s *CheckoutService) price(v float64) string {
	return s.printer.Sprintf("R$ %.2f", v)
}

func (s *CheckoutService) link(msg string) string {
	// spaces as %20; wa.me does not decode '+'
	return whatsappBase + s.number + "?text=" + strings.ReplaceAll(url.QueryEscape(msg), "+", "%20")
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
