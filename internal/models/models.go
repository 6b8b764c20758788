package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// User represents the identified account behind a session
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	IsAdmin   bool      `json:"is_admin,omitempty"`
	CreatedAt Timestamp `json:"created_at,omitzero"`
}

// Session is the current credential plus the identified user, if any.
// User is only set while Token is set.
type Session struct {
	Token string `json:"-"`
	User  *User  `json:"user"`
}

// Authenticated reports whether a credential is held
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// Category represents a catalog category
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
}

// Product represents a product in the catalog
type Product struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Price          float64        `json:"price"`
	ImageURL       string         `json:"image_url"`
	Images         []string       `json:"images"`
	CategoryID     string         `json:"category_id"`
	CategoryName   string         `json:"category_name"`
	InStock        bool           `json:"in_stock"`
	Specifications Specifications `json:"specifications"`
	CreatedAt      Timestamp      `json:"created_at"`
}

// Review represents a customer testimonial
type Review struct {
	ID           string    `json:"id"`
	UserName     string    `json:"user_name"`
	UserLocation string    `json:"user_location"`
	UserImage    string    `json:"user_image"`
	Rating       int       `json:"rating"`
	Comment      string    `json:"comment"`
	CreatedAt    Timestamp `json:"created_at,omitzero"`
}

// CartItem represents a line in the cart snapshot
type CartItem struct {
	ProductID    string  `json:"product_id"`
	ProductName  string  `json:"product_name"`
	ProductImage string  `json:"product_image"`
	Quantity     int     `json:"quantity"`
	UnitPrice    float64 `json:"price"`
}

// Cart is the authoritative snapshot last reported by the store API.
// Total is never recomputed locally.
type Cart struct {
	Items []CartItem `json:"items"`
	Total float64    `json:"total"`
}

// EmptyCart returns a cart with no items and a zero total
func EmptyCart() Cart {
	return Cart{Items: []CartItem{}}
}

// Clone returns a deep copy of the cart with a non-nil item slice
func (c Cart) Clone() Cart {
	items := slices.Clone(c.Items)
	if items == nil {
		items = []CartItem{}
	}
	return Cart{Items: items, Total: c.Total}
}

// ItemCount returns the number of units across all lines
func (c Cart) ItemCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// SortKey selects the ordering of the derived product view
type SortKey string

const (
	SortByName    SortKey = "name"
	SortByNewest  SortKey = "newest"
	SortByPopular SortKey = "popular"
)

// AllCategories is the category filter value that passes every product
const AllCategories = "all"

// ParseSortKey validates a sort key
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case SortByName, SortByNewest, SortByPopular:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSortKey, s)
}

// FilterState drives the derived product view
type FilterState struct {
	SearchTerm string  `json:"search_term"`
	Category   string  `json:"category"`
	SortKey    SortKey `json:"sort_key"`
}

// DefaultFilter returns the filter state a new catalog starts with
func DefaultFilter() FilterState {
	return FilterState{Category: AllCategories, SortKey: SortByName}
}

// LoginRequest represents a request to sign in
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest represents a request to create an account
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

// AuthResponse is returned by the login and register endpoints
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        User   `json:"user"`
}

// AddToCartRequest represents a request to add item to cart
type AddToCartRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CartMutationResponse is returned by the cart add and remove endpoints
type CartMutationResponse struct {
	Message string `json:"message"`
	Cart    Cart   `json:"cart"`
}

// Specifications maps a product attribute to its display value.
// Non-string values sent by the API are stringified.
type Specifications map[string]string

// UnmarshalJSON implements json.Unmarshaler
func (s *Specifications) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Specifications, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		case nil:
			out[k] = ""
		default:
			b, err := json.Marshal(val)
			if err != nil {
				return err
			}
			out[k] = string(b)
		}
	}
	*s = out
	return nil
}

// Timestamp is a time that also accepts ISO-8601 values without a zone,
// which the store API emits for stored datetimes. Those are taken as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// UnmarshalJSON implements json.Unmarshaler
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

// MarshalJSON implements json.Marshaler
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}
